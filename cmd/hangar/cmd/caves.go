package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-hangar/internal/helpers"
)

func init() {
	rootCmd.AddCommand(cavesCmd)
	cavesCmd.AddCommand(cavesListCmd)
	cavesCmd.AddCommand(cavesUninstallCmd)
	cavesCmd.AddCommand(cavesLaunchCmd)
}

var cavesCmd = &cobra.Command{
	Use:   "caves",
	Short: "Inspect and manage installed games",
}

var cavesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed games",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()

		caves, err := app.store.AllCaves()
		if err != nil {
			return err
		}
		if len(caves) == 0 {
			fmt.Println("Nothing installed.")
			return nil
		}
		for _, cave := range caves {
			title := fmt.Sprintf("game %d", cave.GameID)
			if cave.Game != nil && cave.Game.Title != "" {
				title = cave.Game.Title
			}
			line := fmt.Sprintf("%s  %s (%s)", cave.ID, title,
				helpers.BytesToSize(uint64(cave.InstalledSize)))
			if cave.Morphing {
				line += "  [repairing]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var cavesUninstallCmd = &cobra.Command{
	Use:   "uninstall <cave-id>",
	Short: "Uninstall a game and remove its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(true)
		if err != nil {
			return err
		}
		defer app.close()

		if err := app.performer.Uninstall(cmd.Context(), args[0]); err != nil {
			return err
		}
		log.Infof("Uninstalled cave %s", args[0])
		return nil
	},
}

var cavesLaunchCmd = &cobra.Command{
	Use:   "launch <cave-id>",
	Short: "Launch an installed game (a repairing cave queues a heal instead)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()
		return app.performer.Launch(cmd.Context(), args[0])
	},
}
