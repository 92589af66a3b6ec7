// Package deploy synchronizes an install destination with a staging
// folder: after a successful run the destination's file set exactly matches
// staging, orphans from previous deploys are gone, and the receipt records
// the new file set.
package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go-hangar/internal/helpers"
	"go-hangar/internal/models"
	"go-hangar/internal/receipt"
	"go-hangar/internal/taskctx"

	log "github.com/sirupsen/logrus"
)

// orphanDeleteWorkers bounds concurrent orphan deletions.
const orphanDeleteWorkers = 4

// SingleResult is returned by the single-file override hook.
type SingleResult struct {
	// Deployed means the hook already performed the deployment; the engine
	// short-circuits without touching the destination.
	Deployed bool
}

// Params configures one deploy run.
type Params struct {
	// StagePath is the source of truth for what should exist.
	StagePath string
	// DestPath is the live install location.
	DestPath string
	// Cave is recorded in the receipt.
	Cave *models.Cave
	// InstallerKind, when non-empty, is cached in the receipt.
	InstallerKind string

	// OnSingle, when set, is offered a staging area containing exactly one
	// file before the generic engine acts. An error from the hook aborts
	// the whole deploy.
	OnSingle func(path string) (SingleResult, error)

	// OnProgress receives byte-level merge progress.
	OnProgress func(taskctx.Progress)

	// Task carries cancellation; may be nil for callers outside a task.
	Task *taskctx.Context

	Logger *log.Entry
}

// Result reports what a deploy did.
type Result struct {
	// Files is the deployed file list, relative slash-separated paths.
	Files []string
}

// Deploy makes DestPath's file set match StagePath's, removing files left
// over from previous deploys, and writes the new receipt only after the
// merge fully succeeds. Running it twice with identical staging content is
// idempotent.
func Deploy(params Params) (*Result, error) {
	logger := params.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	stagingFiles, err := helpers.ListFilesRelative(params.StagePath)
	if err != nil {
		return nil, fmt.Errorf("enumerating staging folder: %w", err)
	}
	logger.Infof("Deploying %d files from %s to %s", len(stagingFiles), params.StagePath, params.DestPath)

	if len(stagingFiles) == 1 && params.OnSingle != nil {
		singlePath := filepath.Join(params.StagePath, filepath.FromSlash(stagingFiles[0]))
		res, err := params.OnSingle(singlePath)
		if err != nil {
			return nil, fmt.Errorf("single-file deploy hook: %w", err)
		}
		if res.Deployed {
			logger.Info("Single-file hook handled the deployment, short-circuiting")
			return &Result{Files: stagingFiles}, nil
		}
	}

	if !helpers.CheckAndMakeDir(params.DestPath) {
		return nil, fmt.Errorf("could not create destination %s", params.DestPath)
	}

	previousFiles, err := previousFileSet(params.DestPath, logger)
	if err != nil {
		return nil, err
	}

	if err := checkpoint(params.Task); err != nil {
		return nil, err
	}

	orphans := subtract(previousFiles, stagingFiles)
	if len(orphans) > 0 {
		logger.Infof("Removing %d orphaned files from previous deploy", len(orphans))
		deleteOrphans(params.DestPath, orphans, logger)
	}

	if err := mergeFolders(params, stagingFiles, logger); err != nil {
		return nil, err
	}

	// The receipt only advances once the merge fully succeeded, so a
	// failed deploy never records unfinished state.
	err = receipt.Write(params.DestPath, &receipt.Receipt{
		Cave:          params.Cave,
		Files:         stagingFiles,
		InstallerKind: params.InstallerKind,
	})
	if err != nil {
		return nil, fmt.Errorf("writing receipt: %w", err)
	}

	return &Result{Files: stagingFiles}, nil
}

// previousFileSet determines what the destination contained before this
// deploy: the receipt when one is readable, otherwise a full listing of
// the destination itself.
func previousFileSet(dest string, logger *log.Entry) ([]string, error) {
	r, err := receipt.Read(dest)
	if err != nil {
		// An unreadable receipt is no worse than a corrupt one: the
		// destination listing still yields a correct orphan set.
		logger.WithError(err).Warnf("Could not read receipt in %s, falling back to listing", dest)
		r = nil
	}
	if r.HasFiles() {
		logger.Debugf("Using receipt with %d files as previous file set", len(r.Files))
		return r.Files, nil
	}

	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return nil, nil
	}
	logger.Debug("No usable receipt, falling back to destination listing")
	listing, err := helpers.ListFilesRelative(dest)
	if err != nil {
		return nil, fmt.Errorf("listing destination: %w", err)
	}
	return filterReceiptArtifacts(listing), nil
}

// filterReceiptArtifacts drops the receipt's own directory from a
// destination listing so it never counts as deployed content.
func filterReceiptArtifacts(files []string) []string {
	var out []string
	for _, f := range files {
		if strings.HasPrefix(f, ".itch/") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// subtract returns the members of prev that are absent from next.
func subtract(prev, next []string) []string {
	nextSet := make(map[string]bool, len(next))
	for _, f := range next {
		nextSet[f] = true
	}
	var orphans []string
	for _, f := range prev {
		if !nextSet[f] {
			orphans = append(orphans, f)
		}
	}
	return orphans
}

// deleteOrphans removes leftover files with bounded concurrency. Failures
// are logged, not fatal: a file we cannot delete should not sink the whole
// deploy.
func deleteOrphans(dest string, orphans []string, logger *log.Entry) {
	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < orphanDeleteWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				full := filepath.Join(dest, filepath.FromSlash(rel))
				if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
					logger.WithError(err).Warnf("Could not remove orphan %s", rel)
					continue
				}
				logger.Debugf("Removed orphan %s", rel)
				// Opportunistically prune now-empty parent directories.
				// os.Remove refuses non-empty dirs, which is exactly the
				// stop condition we want.
				dir := filepath.Dir(full)
				for dir != dest && os.Remove(dir) == nil {
					dir = filepath.Dir(dir)
				}
			}
		}()
	}

	for _, rel := range orphans {
		jobs <- rel
	}
	close(jobs)
	wg.Wait()
}

// mergeFolders copies every staging file into the destination, overwriting
// existing files and reporting byte progress.
func mergeFolders(params Params, files []string, logger *log.Entry) error {
	var totalBytes int64
	sizes := make(map[string]int64, len(files))
	for _, rel := range files {
		info, err := os.Stat(filepath.Join(params.StagePath, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("stating staging file %s: %w", rel, err)
		}
		sizes[rel] = info.Size()
		totalBytes += info.Size()
	}

	var copiedBytes int64
	for i, rel := range files {
		if err := checkpoint(params.Task); err != nil {
			return err
		}

		src := filepath.Join(params.StagePath, filepath.FromSlash(rel))
		dst := filepath.Join(params.DestPath, filepath.FromSlash(rel))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("merging %s: %w", rel, err)
		}

		copiedBytes += sizes[rel]
		if params.OnProgress != nil && totalBytes > 0 {
			params.OnProgress(taskctx.Progress{
				Progress: float64(copiedBytes) / float64(totalBytes),
			})
		}
		logger.Debugf("Merged %d/%d: %s", i+1, len(files), rel)
	}
	return nil
}

// copyFile copies src over dst, creating parent directories and preserving
// the source's mode bits.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func checkpoint(task *taskctx.Context) error {
	if task == nil {
		return nil
	}
	return task.Checkpoint()
}
