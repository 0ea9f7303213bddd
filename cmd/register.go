package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/finder"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <photo>",
	Short: "Register a missing-person case",
	Long: `Register a missing-person case with a reference photo.

The photo is embedded, stored and indexed. Location lookup and reverse image
search run alongside; their failures are reported as warnings and do not stop
the registration.

Examples:
  missing-finder register asha.jpg --owner meera --name "Asha" --age 9 \
    --gender Female --location "Pune" --contact-name "Meera" \
    --contact-number "+91 98200 00000"`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Full name of the missing person")
	registerCmd.Flags().Int("age", -1, "Age in years")
	registerCmd.Flags().String("gender", "", "Gender (Male, Female, Other)")
	registerCmd.Flags().String("notes", "", "Identifying notes")
	registerCmd.Flags().String("location", "", "Last known location")
	registerCmd.Flags().String("date", "", "Sighting date YYYY-MM-DD (default today)")
	registerCmd.Flags().String("contact-name", "", "Contact person")
	registerCmd.Flags().String("contact-number", "", "Contact phone number")
	registerCmd.Flags().String("relation", "", "Relation of the contact to the missing person")
	registerCmd.Flags().String("address", "", "Contact address")
	registerCmd.Flags().String("national-id", "", "Contact national ID (shown masked)")
	registerCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput := mustGetBool(cmd, "json")

	photo, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}

	in := finder.RegisterInput{
		Profile: database.Profile{
			Name:   mustGetString(cmd, "name"),
			Age:    mustGetInt(cmd, "age"),
			Gender: database.Gender(mustGetString(cmd, "gender")),
			Notes:  mustGetString(cmd, "notes"),
		},
		Contact: database.Contact{
			Name:       mustGetString(cmd, "contact-name"),
			Number:     mustGetString(cmd, "contact-number"),
			Relation:   mustGetString(cmd, "relation"),
			Address:    mustGetString(cmd, "address"),
			NationalID: mustGetString(cmd, "national-id"),
		},
		Location: mustGetString(cmd, "location"),
		Image:    photo,
	}
	if date := mustGetString(cmd, "date"); date != "" {
		in.SightingDate, err = time.Parse(time.DateOnly, date)
		if err != nil {
			return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
		}
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.Register(ctx, in, resolveOwner(cmd))
	if err != nil {
		return err
	}
	a.saveGraph()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"case": res.Value, "warnings": res.Warnings})
	}

	fmt.Printf("Registered case %s for %s\n", res.Value.ID, res.Value.Name)
	fmt.Printf("Photo: %s\n", res.Value.PhotoReference)
	if c := res.Value.Coordinates; c != nil {
		fmt.Printf("Location: %s (%.5f, %.5f)\n", res.Value.Location, c.Latitude, c.Longitude)
	}
	for _, link := range res.Value.RelatedLinks {
		fmt.Printf("Related: %s\n", link)
	}
	for _, w := range res.Warnings {
		fmt.Printf("Warning [%s]: %s\n", w.Code, w.Message)
	}
	return nil
}
