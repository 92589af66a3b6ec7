package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go-hangar/internal/deploy"
	"go-hangar/internal/receipt"
	"go-hangar/internal/taskctx"
	"go-hangar/internal/wharf"

	log "github.com/sirupsen/logrus"
)

// archiveManager handles generic archives: the subprocess unpacks the
// artifact into staging, then the deploy engine reconciles staging into
// the destination.
type archiveManager struct {
	client wharf.Client
}

func (m *archiveManager) Install(ctx context.Context, opts Opts) (*InstallResult, error) {
	logger := opLogger(opts)

	_, err := m.client.Operation(ctx, wharf.OperationParams{
		Type:          wharf.OpInstall,
		StageFolder:   opts.StagePath,
		InstallFolder: opts.DestPath,
		ArtifactPath:  opts.ArtifactPath,
		Game:          opts.Game,
		Upload:        opts.Upload,
		Build:         opts.Build,
		Credentials:   opts.Credentials,
		OnProgress:    stageProgress(opts.Task),
		OnLog:         forwardLogs(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("unpacking artifact: %w", err)
	}

	// Some archives wrap a platform installer as their only member. Hand
	// that file to the matching package manager instead of deploying the
	// installer binary as if it were the game.
	onSingle := func(path string) (deploy.SingleResult, error) {
		kind, ok := sniffKind(path, logger)
		if !ok || kind == KindArchive || kind == KindNaked {
			return deploy.SingleResult{}, nil
		}
		logger.Infof("Archive wraps a %s installer, delegating", kind)
		nested := opts
		nested.ArtifactPath = path
		pkg := &packageManager{client: m.client, kind: kind}
		if _, err := pkg.Install(ctx, nested); err != nil {
			return deploy.SingleResult{}, err
		}
		return deploy.SingleResult{Deployed: true}, nil
	}

	return deployStaging(opts, KindArchive, logger, onSingle)
}

func (m *archiveManager) Uninstall(ctx context.Context, opts Opts) error {
	return uninstallByReceipt(opts)
}

// nakedManager handles artifacts that are the game itself: a single bare
// executable, deployed as-is.
type nakedManager struct{}

func (m *nakedManager) Install(ctx context.Context, opts Opts) (*InstallResult, error) {
	logger := opLogger(opts)

	if opts.ArtifactPath != "" {
		// Place the artifact in staging so the generic engine takes over.
		dst := filepath.Join(opts.StagePath, filepath.Base(opts.ArtifactPath))
		if opts.ArtifactPath != dst {
			if err := os.MkdirAll(opts.StagePath, 0700); err != nil {
				return nil, fmt.Errorf("creating staging folder: %w", err)
			}
			if err := os.Rename(opts.ArtifactPath, dst); err != nil {
				return nil, fmt.Errorf("staging naked artifact: %w", err)
			}
		}
	}

	return deployStaging(opts, KindNaked, logger, nil)
}

func (m *nakedManager) Uninstall(ctx context.Context, opts Opts) error {
	return uninstallByReceipt(opts)
}

// packageManager covers platform package formats (msi, dmg, nsis, inno).
// Both directions are delegated wholesale to the subprocess, which knows
// how to drive the platform's own installer machinery.
type packageManager struct {
	client wharf.Client
	kind   Kind
}

func (m *packageManager) Install(ctx context.Context, opts Opts) (*InstallResult, error) {
	logger := opLogger(opts)

	res, err := m.client.Operation(ctx, wharf.OperationParams{
		Type:          wharf.OpInstall,
		StageFolder:   opts.StagePath,
		InstallFolder: opts.DestPath,
		ArtifactPath:  opts.ArtifactPath,
		Game:          opts.Game,
		Upload:        opts.Upload,
		Build:         opts.Build,
		Credentials:   opts.Credentials,
		OnProgress:    stageProgress(opts.Task),
		OnLog:         forwardLogs(logger),
	})
	if err != nil {
		return nil, err
	}

	rec := &receipt.Receipt{
		Cave:          opts.Cave,
		Files:         res.Files,
		InstallerKind: string(m.kind),
	}
	if err := receipt.Write(opts.DestPath, rec); err != nil {
		return nil, err
	}
	return &InstallResult{Files: res.Files, Cave: opts.Cave, Receipt: rec}, nil
}

func (m *packageManager) Uninstall(ctx context.Context, opts Opts) error {
	_, err := m.client.Operation(ctx, wharf.OperationParams{
		Type:          wharf.OpUninstall,
		InstallFolder: opts.DestPath,
		Game:          opts.Game,
		Upload:        opts.Upload,
		Credentials:   opts.Credentials,
		OnLog:         forwardLogs(opLogger(opts)),
	})
	return err
}

// deployStaging runs the deploy engine from staging to destination and
// packages the result, caching kind in the receipt for later resolution.
func deployStaging(opts Opts, kind Kind, logger *log.Entry, onSingle func(path string) (deploy.SingleResult, error)) (*InstallResult, error) {
	res, err := deploy.Deploy(deploy.Params{
		StagePath:     opts.StagePath,
		DestPath:      opts.DestPath,
		Cave:          opts.Cave,
		InstallerKind: string(kind),
		Task:          opts.Task,
		Logger:        logger,
		OnProgress:    stageProgress(opts.Task),
		OnSingle:      onSingle,
	})
	if err != nil {
		return nil, err
	}
	rec, err := receipt.Read(opts.DestPath)
	if err != nil {
		return nil, err
	}
	files := res.Files
	if rec.HasFiles() {
		// A single-file hook may have delegated the deploy elsewhere; the
		// receipt, not the staging listing, knows what actually landed.
		files = rec.Files
	}
	return &InstallResult{Files: files, Cave: opts.Cave, Receipt: rec}, nil
}

// uninstallByReceipt removes whatever the receipt says was deployed, then
// the receipt itself and the folder if empty.
func uninstallByReceipt(opts Opts) error {
	logger := opLogger(opts)

	rec, err := receipt.Read(opts.DestPath)
	if err != nil {
		return err
	}
	var files []string
	if rec.HasFiles() {
		files = rec.Files
	} else {
		// No receipt: remove the whole folder, it is all ours.
		logger.Warnf("No receipt for %s, removing folder wholesale", opts.DestPath)
		return os.RemoveAll(opts.DestPath)
	}

	for _, rel := range files {
		full := filepath.Join(opts.DestPath, filepath.FromSlash(rel))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warnf("Could not remove %s", rel)
		}
	}
	_ = os.RemoveAll(filepath.Join(opts.DestPath, ".itch"))
	// Leaves non-empty folders alone: anything else in there (saves,
	// mods) was not deployed by us.
	_ = os.Remove(opts.DestPath)
	return nil
}

func opLogger(opts Opts) *log.Entry {
	if opts.Logger != nil {
		return opts.Logger
	}
	return log.NewEntry(log.StandardLogger())
}

func stageProgress(task *taskctx.Context) func(taskctx.Progress) {
	if task == nil {
		return nil
	}
	return task.Publish
}

func forwardLogs(logger *log.Entry) func(level, message string) {
	return func(level, message string) {
		switch level {
		case "error":
			logger.Error(message)
		case "warn", "warning":
			logger.Warn(message)
		default:
			logger.Info(message)
		}
	}
}
