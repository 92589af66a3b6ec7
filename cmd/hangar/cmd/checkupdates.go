package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-hangar/internal/updates"
)

func init() {
	rootCmd.AddCommand(checkUpdatesCmd)
	checkUpdatesCmd.Flags().String("cave", "", "Check a single cave instead of all")
}

var checkUpdatesCmd = &cobra.Command{
	Use:   "check-updates",
	Short: "Check installed games for available updates",
	Long: `Runs a user-initiated ("noisy") update check: network failures are
reported instead of silently skipped, and every result is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()

		checker := app.newChecker(nil)

		caveID, _ := cmd.Flags().GetString("cave")
		var results []updates.Result
		if caveID != "" {
			cave, err := app.store.GetCave(caveID)
			if err != nil {
				return err
			}
			results = append(results, checker.CheckCave(cmd.Context(), cave, true))
		} else {
			results, err = checker.CheckAll(cmd.Context(), true)
			if err != nil {
				return err
			}
		}

		for _, res := range results {
			switch {
			case res.Err != nil:
				fmt.Printf("%s: check failed: %v\n", res.CaveID, res.Err)
			case res.Ambiguous():
				fmt.Printf("%s: %d recent uploads, pick one manually\n", res.CaveID, len(res.Choices))
			case res.HasUpgrade && res.UpgradePath != nil:
				fmt.Printf("%s: update available (%d patches)\n", res.CaveID, len(res.UpgradePath.Builds))
			case res.HasUpgrade:
				fmt.Printf("%s: update available\n", res.CaveID)
			default:
				fmt.Printf("%s: up to date\n", res.CaveID)
			}
		}
		return nil
	},
}
