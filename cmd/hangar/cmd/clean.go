package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("dry-run", "n", false, "List stale staging folders without removing them")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale staging folders",
	Long: `Scans the staging root and removes any per-download staging folder that
no longer belongs to a queued download. These accumulate when the process is
killed mid-operation.`,
	RunE: runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	stagingRoot := cfg.StagingPath
	if stagingRoot == "" {
		if cfg.LibraryPath == "" {
			return fmt.Errorf("neither StagingPath nor LibraryPath is configured, cannot determine where to clean")
		}
		stagingRoot = filepath.Join(cfg.LibraryPath, "staging")
		log.Warnf("StagingPath is empty, inferring staging root from LibraryPath: %s", stagingRoot)
	}

	entries, err := os.ReadDir(stagingRoot)
	if os.IsNotExist(err) {
		log.Infof("Staging root does not exist, nothing to clean: %s", stagingRoot)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading staging root %q: %w", stagingRoot, err)
	}

	app, err := openApp(false)
	if err != nil {
		return err
	}
	defer app.close()

	// Every live download owns exactly one staging folder, named after its ID.
	live := make(map[string]bool)
	items, err := app.store.AllDownloads()
	if err != nil {
		return err
	}
	for _, item := range items {
		live[filepath.Base(item.StagingFolder)] = true
	}

	var removed, failed int
	for _, entry := range entries {
		if !entry.IsDir() || live[entry.Name()] {
			continue
		}
		path := filepath.Join(stagingRoot, entry.Name())
		if dryRun {
			fmt.Println(path)
			removed++
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Errorf("Failed to remove stale staging folder %q: %v", path, err)
			failed++
			continue
		}
		log.Infof("Removed stale staging folder: %s", path)
		removed++
	}

	if dryRun {
		log.Infof("Clean (dry run) complete. %d stale folder(s) found.", removed)
	} else {
		log.Infof("Clean complete. Removed %d stale folder(s).", removed)
	}
	if failed > 0 {
		return fmt.Errorf("failed to remove %d folder(s)", failed)
	}
	return nil
}
