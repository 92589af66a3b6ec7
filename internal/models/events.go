package models

import "time"

// Events crossing the task boundary, consumed by the shell/UI layer.

type (
	DownloadStarted struct {
		ID     string         `json:"id"`
		Reason DownloadReason `json:"reason"`
		Game   *Game          `json:"game,omitempty"`
		Upload *Upload        `json:"upload,omitempty"`
	}

	DownloadProgress struct {
		ID       string  `json:"id"`
		Progress float64 `json:"progress"`
		BPS      float64 `json:"bps"`
		ETA      float64 `json:"eta"`
	}

	DownloadEnded struct {
		ID       string `json:"id"`
		Err      string `json:"err,omitempty"`
		ErrStack string `json:"errStack,omitempty"`
	}

	DownloadDiscarded struct {
		ID string `json:"id"`
	}

	TaskStarted struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		GameID    int64     `json:"gameId,omitempty"`
		StartedAt time.Time `json:"startedAt"`
	}

	TaskProgress struct {
		ID       string  `json:"id"`
		Progress float64 `json:"progress"`
		BPS      float64 `json:"bps"`
		ETA      float64 `json:"eta"`
	}

	TaskEnded struct {
		ID  string `json:"id"`
		Err string `json:"err,omitempty"`
	}
)
