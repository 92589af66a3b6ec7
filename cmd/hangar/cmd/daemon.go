package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-hangar/internal/helpers"
	"go-hangar/internal/models"
	"go-hangar/internal/updates"
)

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().Bool("paused", false, "Start with the download queue paused")
	daemonCmd.Flags().Bool("no-update-checks", false, "Disable the background update check loop")
	daemonCmd.Flags().Int("tick-interval", 0, "Queue tick interval in ms (overrides config)")
	_ = viper.BindPFlag("daemon.paused", daemonCmd.Flags().Lookup("paused"))
	_ = viper.BindPFlag("daemon.no_update_checks", daemonCmd.Flags().Lookup("no-update-checks"))
	_ = viper.BindPFlag("daemon.tick_interval", daemonCmd.Flags().Lookup("tick-interval"))
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the download/install orchestration loop",
	Long: `Runs the queue watcher: promotes at most one download to active at a
time, drives installs through the patcher subprocess, and periodically
checks installed games for updates.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if viper.GetBool("daemon.paused") {
		globalConfig.StartPaused = true
	}
	app, err := openApp(true)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tickInterval := time.Duration(globalConfig.TickIntervalMs) * time.Millisecond
	if override := viper.GetInt("daemon.tick_interval"); override > 0 {
		tickInterval = time.Duration(override) * time.Millisecond
	}

	if !viper.GetBool("daemon.no_update_checks") {
		checker := app.newChecker(func(res updates.Result) {
			if res.Err != nil {
				log.WithError(res.Err).Warnf("Update check failed for cave %s", res.CaveID)
				return
			}
			if res.HasUpgrade {
				log.Infof("Update available for cave %s", res.CaveID)
			}
		})
		go checker.Run(ctx)
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	log.Infof("Daemon running, ticking every %s", tickInterval)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down, cancelling active transfer")
			if id := app.queue.ActiveID(); id != "" {
				if h := app.registry.ByTag(id); h != nil {
					h.CancelGracefully()
				}
			}
			// Give the unwind a moment so staging state settles.
			deadline := time.After(5 * time.Second)
			for app.registry.Len() > 0 {
				select {
				case <-deadline:
					log.Warn("Timed out waiting for tasks to settle")
					return nil
				case <-time.After(50 * time.Millisecond):
				}
			}
			return nil

		case <-ticker.C:
			app.queue.Tick()
			renderStatus(writer, app)
		}
	}
}

// renderStatus paints a one-screen queue summary through the live
// writer.
func renderStatus(writer *uilive.Writer, app *app) {
	items := app.queue.Items()
	if len(items) == 0 {
		fmt.Fprintln(writer, "Queue empty.")
		return
	}

	activeID := app.queue.ActiveID()
	for _, item := range items {
		fmt.Fprintf(writer, "%s %s\n", statusGlyph(item, activeID), describeItem(item))
	}
	_ = writer.Flush()
}

func statusGlyph(item *models.DownloadItem, activeID string) string {
	switch {
	case item.ID == activeID:
		return ">"
	case item.Finished && item.Err != "":
		return "x"
	case item.Finished:
		return "+"
	default:
		return "."
	}
}

func describeItem(item *models.DownloadItem) string {
	title := fmt.Sprintf("game %d", item.GameID)
	if item.Game != nil && item.Game.Title != "" {
		title = item.Game.Title
	}
	desc := fmt.Sprintf("%s (%s)", title, item.Reason)
	if !item.Finished && item.Progress > 0 {
		desc += fmt.Sprintf(" %.1f%% %s/s", item.Progress*100, helpers.BytesToSize(uint64(item.BPS)))
	}
	if item.Err != "" {
		desc += " error: " + item.Err
	}
	return desc
}
