package cmd

import (
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-hangar/internal/models"
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queuePrioritizeCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueDiscardCmd)
	queueCmd.AddCommand(queueClearFinishedCmd)

	queueAddCmd.Flags().String("title", "", "Game title (used for the install folder name)")
	queueAddCmd.Flags().Int64("upload", 0, "Upload id to install")
	queueAddCmd.Flags().String("location", "appdata", "Install location name")
	queueAddCmd.Flags().String("reason", string(models.ReasonInstall), "Download reason (install, reinstall, update)")
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manipulate the download queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all download items, front of the queue first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()

		items := app.queue.Items()
		if len(items) == 0 {
			fmt.Println("Queue empty.")
			return nil
		}
		for _, item := range items {
			fmt.Println(describeItem(item), " id:", item.ID, " rank:", item.Rank)
		}
		return nil
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <game-id>",
	Short: "Queue a game for download and install",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gameID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid game id %q: %w", args[0], err)
		}
		title, _ := cmd.Flags().GetString("title")
		uploadID, _ := cmd.Flags().GetInt64("upload")
		location, _ := cmd.Flags().GetString("location")
		reason, _ := cmd.Flags().GetString("reason")

		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()

		game := &models.Game{ID: gameID, Title: title}
		var upload *models.Upload
		if uploadID != 0 {
			upload = &models.Upload{ID: uploadID, CreatedAt: time.Now()}
		}

		item, err := app.performer.NewItem(game, upload, nil, models.DownloadReason(reason), location)
		if err != nil {
			return err
		}
		item, err = app.queue.Enqueue(item)
		if err != nil {
			return err
		}
		log.Infof("Queued download %s at rank %d", item.ID, item.Rank)
		return nil
	},
}

var queuePrioritizeCmd = &cobra.Command{
	Use:   "prioritize <item-id>",
	Short: "Move an item to the front of the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()
		return app.queue.Prioritize(args[0])
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <item-id>",
	Short: "Requeue a failed item at the back of the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()
		return app.queue.Deprioritize(args[0])
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <item-id>",
	Short: "Remove an item from the queue, cleaning up its scratch state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()
		return app.queue.Discard(args[0])
	},
}

var queueClearFinishedCmd = &cobra.Command{
	Use:   "clear-finished",
	Short: "Discard every finished download, keeping in-flight ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(false)
		if err != nil {
			return err
		}
		defer app.close()
		n := app.queue.ClearFinished()
		log.Infof("Cleared %d finished downloads", n)
		return nil
	},
}
