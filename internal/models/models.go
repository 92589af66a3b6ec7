package models

import (
	"time"
)

type (
	Config struct {
		// Paths
		LibraryPath  string `toml:"LibraryPath"`
		DatabasePath string `toml:"DatabasePath"`
		IndexPath    string `toml:"IndexPath"`
		StagingPath  string `toml:"StagingPath"`

		// Install locations, keyed by name ("appdata", "external", ...).
		InstallLocations map[string]string `toml:"InstallLocations"`

		// Remote service
		ApiKey              string `toml:"ApiKey"`
		ApiDelayMs          int    `toml:"ApiDelayMs"`
		ApiClientTimeoutSec int    `toml:"ApiClientTimeoutSec"`

		// Scheduler behavior
		TickIntervalMs         int  `toml:"TickIntervalMs"`
		UpdateCheckIntervalMin int  `toml:"UpdateCheckIntervalMin"`
		StartPaused            bool `toml:"StartPaused"`

		// Other
		LogLevel string `toml:"LogLevel"`
	}

	Game struct {
		ID        int64    `json:"id"`
		Title     string   `json:"title"`
		ShortText string   `json:"shortText,omitempty"`
		URL       string   `json:"url,omitempty"`
		UserID    int64    `json:"userId,omitempty"`
		Tags      []string `json:"tags,omitempty"`
	}

	Upload struct {
		ID          int64  `json:"id"`
		Filename    string `json:"filename"`
		DisplayName string `json:"displayName,omitempty"`
		Size        int64  `json:"size"`
		// BuildID is non-zero for wharf-enabled (incrementally patchable)
		// uploads.
		BuildID   int64     `json:"buildId,omitempty"`
		Hashes    Hashes    `json:"hashes,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Build struct {
		ID            int64     `json:"id"`
		ParentBuildID int64     `json:"parentBuildId,omitempty"`
		Version       string    `json:"version,omitempty"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	Hashes struct {
		SHA256 string `json:"sha256,omitempty"`
		CRC32  string `json:"crc32,omitempty"`
		BLAKE3 string `json:"blake3,omitempty"`
	}

	// Verdict is the result of sniffing an install folder for runnable
	// executable candidates.
	Verdict struct {
		BasePath   string      `json:"basePath"`
		TotalSize  int64       `json:"totalSize"`
		Candidates []Candidate `json:"candidates,omitempty"`
	}

	Candidate struct {
		Path   string `json:"path"`
		Flavor string `json:"flavor"`
		Arch   string `json:"arch,omitempty"`
		Size   int64  `json:"size"`
	}

	// Cave is a locally installed instance of a game.
	Cave struct {
		ID              string    `json:"id"`
		GameID          int64     `json:"gameId"`
		Game            *Game     `json:"game,omitempty"`
		InstallLocation string    `json:"installLocation"`
		InstallFolder   string    `json:"installFolder"`
		Upload          *Upload   `json:"upload,omitempty"`
		Build           *Build    `json:"build,omitempty"`
		Verdict         *Verdict  `json:"verdict,omitempty"`
		SecondsRun      int64     `json:"secondsRun"`
		LastTouchedAt   time.Time `json:"lastTouchedAt,omitempty"`
		InstalledAt     time.Time `json:"installedAt,omitempty"`
		InstalledSize   int64     `json:"installedSize"`
		// Morphing is set while a repair/heal is rewriting the install
		// folder. A morphing cave must not be launched.
		Morphing bool `json:"morphing,omitempty"`
		// InstalledBy records which profile performed the install.
		InstalledBy int64 `json:"installedBy,omitempty"`
	}

	// DownloadItem is one queued or historical transfer.
	DownloadItem struct {
		ID     string         `json:"id"`
		GameID int64          `json:"gameId"`
		Game   *Game          `json:"game,omitempty"`
		CaveID string         `json:"caveId,omitempty"`
		Reason DownloadReason `json:"reason"`
		Upload *Upload        `json:"upload,omitempty"`
		Build  *Build         `json:"build,omitempty"`

		// Rank orders the queue; lower rank downloads first. Signed so
		// prioritize can always mint a new minimum and retry a new maximum.
		Rank int64 `json:"rank"`

		// InstallLocation names the configured install location the item
		// deploys into.
		InstallLocation string `json:"installLocation,omitempty"`
		StagingFolder   string `json:"stagingFolder,omitempty"`
		// InstallFolder is the absolute destination folder, recorded so
		// discard cleanup can wipe a failed fresh install.
		InstallFolder string `json:"installFolder,omitempty"`
		// Fresh is true when this item creates a brand-new install, which
		// makes the destination folder fair game for cleanup on failure.
		Fresh bool `json:"fresh,omitempty"`

		Progress float64 `json:"progress"`
		BPS      float64 `json:"bps"`
		ETA      float64 `json:"eta"`

		Finished   bool      `json:"finished"`
		StartedAt  time.Time `json:"startedAt,omitempty"`
		FinishedAt time.Time `json:"finishedAt,omitempty"`
		Err        string    `json:"err,omitempty"`
		ErrStack   string    `json:"errStack,omitempty"`
	}
)

// DownloadReason records why a transfer was queued.
type DownloadReason string

const (
	ReasonInstall   DownloadReason = "install"
	ReasonReinstall DownloadReason = "reinstall"
	ReasonUpdate    DownloadReason = "update"
	ReasonRevert    DownloadReason = "revert"
	ReasonHeal      DownloadReason = "heal"
)

// Wharf reports whether the upload tracks a build id, enabling incremental
// patch updates instead of full reinstalls.
func (u *Upload) Wharf() bool {
	return u != nil && u.BuildID != 0
}

// Pending reports whether this item is still competing for the active slot.
func (i *DownloadItem) Pending() bool {
	return !i.Finished
}
