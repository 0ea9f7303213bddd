package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "missing-finder",
	Short: "Register missing-person cases and match photos against them",
	Long: `Missing Finder keeps a registry of missing-person cases. Each case carries
a reference photo whose face embedding is matched against photos of people
who were found, so that families and volunteers can be put in touch.

Every command reads its configuration from the environment (or a .env file).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("owner", "", "Requester id (defaults to MISSING_FINDER_USER or $USER)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// resolveOwner returns the requester id used by the case commands.
func resolveOwner(cmd *cobra.Command) string {
	if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
		return owner
	}
	if owner := os.Getenv("MISSING_FINDER_USER"); owner != "" {
		return owner
	}
	return os.Getenv("USER")
}
