package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/missing-finder/internal/finder"
	"github.com/spf13/cobra"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage your cases",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your open cases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cases, err := a.service.ListByOwner(ctx, resolveOwner(cmd))
			if err != nil {
				return err
			}
			return printCases(cases, mustGetBool(cmd, "json"))
		})
	},
}

var casesResolvedCmd = &cobra.Command{
	Use:   "resolved",
	Short: "List your resolved cases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cases, err := a.service.ListResolvedByOwner(ctx, resolveOwner(cmd))
			if err != nil {
				return err
			}
			return printCases(cases, mustGetBool(cmd, "json"))
		})
	},
}

var casesShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show one case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			view, err := a.service.GetCase(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		})
	},
}

var casesFoundCmd = &cobra.Command{
	Use:   "found <case-id>",
	Short: "Mark one of your cases as found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			view, err := a.service.MarkFound(ctx, args[0], resolveOwner(cmd))
			if err != nil {
				return err
			}
			a.saveGraph()
			fmt.Printf("Case %s (%s) marked as found\n", view.ID, view.Name)
			return nil
		})
	},
}

var casesDeleteCmd = &cobra.Command{
	Use:   "delete <case-id>",
	Short: "Permanently delete one of your resolved cases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.service.DeleteResolved(ctx, args[0], resolveOwner(cmd)); err != nil {
				return err
			}
			fmt.Printf("Case %s deleted\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(casesCmd)
	casesCmd.AddCommand(casesListCmd, casesResolvedCmd, casesShowCmd, casesFoundCmd, casesDeleteCmd)

	casesListCmd.Flags().Bool("json", false, "Output as JSON")
	casesResolvedCmd.Flags().Bool("json", false, "Output as JSON")
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printCases(cases []finder.CaseView, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cases)
	}
	if len(cases) == 0 {
		fmt.Println("No cases")
		return nil
	}
	fmt.Printf("%-36s  %-24s  %-4s  %-10s  %s\n", "ID", "NAME", "AGE", "SEEN", "LOCATION")
	for _, c := range cases {
		fmt.Printf("%-36s  %-24s  %-4d  %-10s  %s\n", c.ID, c.Name, c.Age, c.SightingDate, c.Location)
	}
	fmt.Printf("\n%d case(s)\n", len(cases))
	return nil
}
