// Package wharf is the boundary to the external patch/installer
// subprocess. The wire protocol is opaque to this module; the core only
// issues requests and reacts to streamed notifications through callbacks.
package wharf

import (
	"context"
	"errors"

	"go-hangar/internal/models"
	"go-hangar/internal/taskctx"
)

// ErrNetwork classifies connectivity failures so background checks can
// degrade to a silent skip instead of surfacing an error banner.
var ErrNetwork = errors.New("network error")

// Credentials authorize an operation against the remote service.
type Credentials struct {
	APIKey      string
	DownloadKey int64
}

// OperationType names the request kinds the subprocess understands.
type OperationType string

const (
	OpInstall   OperationType = "install"
	OpUninstall OperationType = "uninstall"
	OpHeal      OperationType = "heal"
	OpRevert    OperationType = "revert"
)

// OperationParams describes one install/uninstall/heal/revert request.
type OperationParams struct {
	Type          OperationType
	StageFolder   string
	InstallFolder string
	// ArtifactPath points at an already-downloaded artifact for unpack
	// paths; empty when the subprocess fetches the build itself.
	ArtifactPath string

	Game   *models.Game
	Upload *models.Upload
	Build  *models.Build

	Credentials Credentials

	// OnProgress receives streamed progress notifications.
	OnProgress func(taskctx.Progress)
	// OnLog receives streamed subprocess log lines.
	OnLog func(level string, message string)
}

// OperationResult is the terminal response to an operation request.
type OperationResult struct {
	// Files deployed into the install folder, relative paths.
	Files []string
	// InstalledSize is the resulting on-disk size in bytes.
	InstalledSize int64
	// Build tracks the build the install folder now corresponds to, for
	// wharf-enabled uploads.
	Build *models.Build
}

// LaunchParams describes a launch request.
type LaunchParams struct {
	InstallFolder string
	Candidate     *models.Candidate
	Credentials   Credentials
}

// Client is the RPC boundary to the subprocess. Implementations must
// honor ctx cancellation at their next protocol round-trip.
type Client interface {
	Operation(ctx context.Context, params OperationParams) (*OperationResult, error)
	Launch(ctx context.Context, params LaunchParams) error
}
