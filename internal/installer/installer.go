// Package installer dispatches install/uninstall work to the capability
// matching an artifact's installer kind.
package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go-hangar/internal/helpers"
	"go-hangar/internal/models"
	"go-hangar/internal/receipt"
	"go-hangar/internal/taskctx"
	"go-hangar/internal/wharf"

	log "github.com/sirupsen/logrus"
)

// Kind is a closed set of installer kinds. Every kind has a manager; the
// mapping in managerFor is total, so there is no "no manager found" path.
type Kind string

const (
	KindArchive Kind = "archive"
	KindNaked   Kind = "naked"
	KindMSI     Kind = "msi"
	KindDMG     Kind = "dmg"
	KindNSIS    Kind = "nsis"
	KindInno    Kind = "inno"
)

// MissingDepsError reports shared libraries or runtimes the artifact needs
// but the host lacks. Structured so the shell can message precisely
// instead of dumping a string.
type MissingDepsError struct {
	Arch      string
	Libraries []string
}

func (e *MissingDepsError) Error() string {
	return fmt.Sprintf("missing dependencies for %s: %v", e.Arch, e.Libraries)
}

// Opts parameterizes one install or uninstall operation.
type Opts struct {
	// Kind forces a specific installer kind; empty means resolve.
	Kind Kind

	// ArtifactPath is the downloaded artifact to unpack (empty for
	// in-place operations).
	ArtifactPath string
	// StagePath is the scratch folder builds are unpacked into.
	StagePath string
	// DestPath is the live install folder.
	DestPath string

	Game   *models.Game
	Upload *models.Upload
	Build  *models.Build
	Cave   *models.Cave

	// Credentials are forwarded to the patch subprocess.
	Credentials wharf.Credentials

	Task   *taskctx.Context
	Logger *log.Entry
}

// InstallResult reports what an install produced.
type InstallResult struct {
	// Files deployed into DestPath, relative paths.
	Files []string
	// Cave is the updated cave record.
	Cave *models.Cave
	// Receipt is the receipt as written, when the manager wrote one.
	Receipt *receipt.Receipt
}

// Manager is one installer capability.
type Manager interface {
	Install(ctx context.Context, opts Opts) (*InstallResult, error)
	Uninstall(ctx context.Context, opts Opts) error
}

// Registry resolves installer kinds and dispatches to managers.
type Registry struct {
	client wharf.Client
}

// NewRegistry builds a registry delegating subprocess work to client.
func NewRegistry(client wharf.Client) *Registry {
	return &Registry{client: client}
}

// ResolveKind picks the installer kind for an operation, in priority
// order: explicitly specified, cached in the destination's receipt,
// content-sniffed from the artifact, generic archive fallback.
func (r *Registry) ResolveKind(opts Opts) Kind {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	if opts.Kind != "" {
		logger.Debugf("Using explicitly specified installer kind %q", opts.Kind)
		return opts.Kind
	}

	if rec, err := receipt.Read(opts.DestPath); err == nil && rec != nil && rec.InstallerKind != "" {
		logger.Debugf("Using receipt-cached installer kind %q", rec.InstallerKind)
		return Kind(rec.InstallerKind)
	}

	if opts.ArtifactPath != "" {
		if kind, ok := sniffKind(opts.ArtifactPath, logger); ok {
			logger.Debugf("Sniffed installer kind %q from %s", kind, opts.ArtifactPath)
			return kind
		}
	}

	logger.Debug("Falling back to generic archive handling")
	return KindArchive
}

// managerFor is the total mapping from kind to capability.
func (r *Registry) managerFor(kind Kind) Manager {
	switch kind {
	case KindNaked:
		return &nakedManager{}
	case KindMSI, KindDMG, KindNSIS, KindInno:
		return &packageManager{client: r.client, kind: kind}
	case KindArchive:
		return &archiveManager{client: r.client}
	default:
		// Unknown tags from a hand-edited receipt degrade to archive.
		return &archiveManager{client: r.client}
	}
}

// Install verifies the artifact against the upload's published hashes when
// both are present, then resolves the kind and runs the matching manager.
func (r *Registry) Install(ctx context.Context, opts Opts) (*InstallResult, error) {
	if opts.ArtifactPath != "" && opts.Upload != nil {
		h := opts.Upload.Hashes
		if h.BLAKE3 != "" || h.CRC32 != "" || h.SHA256 != "" {
			if !helpers.CheckHash(opts.ArtifactPath, h) {
				return nil, fmt.Errorf("verifying artifact %s: %w",
					filepath.Base(opts.ArtifactPath), helpers.ErrHashMismatch)
			}
		}
	}

	kind := r.ResolveKind(opts)
	res, err := r.managerFor(kind).Install(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s install: %w", kind, err)
	}
	return res, nil
}

// Uninstall resolves the kind and runs the matching manager.
func (r *Registry) Uninstall(ctx context.Context, opts Opts) error {
	kind := r.ResolveKind(opts)
	if err := r.managerFor(kind).Uninstall(ctx, opts); err != nil {
		return fmt.Errorf("%s uninstall: %w", kind, err)
	}
	return nil
}

// InPlace runs a heal or revert against an existing cave. These reuse the
// cave record directly and bypass kind resolution entirely, since no new
// artifact is being unpacked.
func (r *Registry) InPlace(ctx context.Context, reason models.DownloadReason, opts Opts) (*InstallResult, error) {
	if opts.Cave == nil {
		return nil, errors.New("in-place operation requires an existing cave")
	}
	opType := wharf.OpHeal
	if reason == models.ReasonRevert {
		opType = wharf.OpRevert
	}
	res, err := r.client.Operation(ctx, wharf.OperationParams{
		Type:          opType,
		StageFolder:   opts.StagePath,
		InstallFolder: opts.DestPath,
		Game:          opts.Game,
		Upload:        opts.Upload,
		Build:         opts.Build,
		Credentials:   opts.Credentials,
	})
	if err != nil {
		return nil, fmt.Errorf("in-place %s: %w", reason, err)
	}
	return &InstallResult{Files: res.Files, Cave: opts.Cave}, nil
}
