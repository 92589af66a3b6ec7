// Package updates decides, per installed cave, whether a newer build or
// upload is available and whether an incremental patch path applies.
package updates

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go-hangar/internal/models"
	"go-hangar/internal/store"
	"go-hangar/internal/wharf"

	log "github.com/sirupsen/logrus"
)

// Client is the remote service boundary the checker talks to.
type Client interface {
	// ListUploads returns the game's current uploads.
	ListUploads(ctx context.Context, gameID int64) ([]*models.Upload, error)
	// GetUpload returns the current state of one upload.
	GetUpload(ctx context.Context, uploadID int64) (*models.Upload, error)
	// FindUpgradePath computes the patch chain from one build to another.
	FindUpgradePath(ctx context.Context, uploadID, fromBuild, toBuild int64) (*UpgradePath, error)
}

// UpgradePath is a chain of incremental patches.
type UpgradePath struct {
	Builds    []*models.Build
	TotalSize int64
}

// Result is the outcome of checking one cave.
type Result struct {
	CaveID string
	// HasUpgrade means a newer build/upload was found.
	HasUpgrade bool
	// Upload/Build describe the upgrade target when unambiguous.
	Upload *models.Upload
	Build  *models.Build
	// UpgradePath is set when an incremental patch path applies.
	UpgradePath *UpgradePath
	// Choices holds multiple recent uploads the user must pick from;
	// the checker never auto-resolves that ambiguity.
	Choices []*models.Upload
	// Err is a per-cave check failure; it never stops the overall pass.
	Err error
}

// Ambiguous reports whether the user must choose among several uploads.
func (r *Result) Ambiguous() bool {
	return len(r.Choices) > 1
}

// Opts configures a checker.
type Opts struct {
	Client Client
	Store  *store.Store
	// ProfileID is the signed-in account; caves installed by another
	// account are skipped.
	ProfileID int64
	// IsRunning reports whether a cave's game is currently running.
	IsRunning func(caveID string) bool
	// Interval is the base delay between background passes; actual delay
	// is jittered around it.
	Interval time.Duration
	// PerItemDelay spaces out requests within a pass.
	PerItemDelay time.Duration
	// OnResult receives each cave's result as a pass progresses.
	OnResult func(Result)
}

// Checker runs update checks, as a background loop or on demand.
type Checker struct {
	opts Opts
}

// NewChecker validates opts and builds a checker.
func NewChecker(opts Opts) *Checker {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.PerItemDelay < 0 {
		opts.PerItemDelay = 0
	}
	return &Checker{opts: opts}
}

// CheckCave decides whether one cave has an update. Noisy mode is for
// user-initiated checks: network failures are reported instead of being
// silently skipped.
func (c *Checker) CheckCave(ctx context.Context, cave *models.Cave, noisy bool) Result {
	res := Result{CaveID: cave.ID}

	switch {
	case cave.InstalledBy != 0 && cave.InstalledBy != c.opts.ProfileID:
		log.Debugf("Skipping update check for cave %s: installed by another profile", cave.ID)
		return res
	case cave.Verdict == nil || len(cave.Verdict.Candidates) == 0:
		log.Debugf("Skipping update check for cave %s: not launchable", cave.ID)
		return res
	case c.opts.IsRunning != nil && c.opts.IsRunning(cave.ID):
		log.Debugf("Skipping update check for cave %s: currently running", cave.ID)
		return res
	}

	if cave.Build != nil && cave.Upload != nil {
		return c.checkBuildTracked(ctx, cave, noisy)
	}
	return c.checkByFreshness(ctx, cave, noisy)
}

// checkBuildTracked compares the upload's current build id against the
// cave's recorded one; a mismatch means an upgrade with a patch path.
func (c *Checker) checkBuildTracked(ctx context.Context, cave *models.Cave, noisy bool) Result {
	res := Result{CaveID: cave.ID}

	upload, err := c.opts.Client.GetUpload(ctx, cave.Upload.ID)
	if err != nil {
		res.Err = c.triage(err, noisy, cave.ID)
		return res
	}
	if upload.BuildID == 0 || upload.BuildID == cave.Build.ID {
		return res
	}

	res.HasUpgrade = true
	res.Upload = upload
	res.Build = &models.Build{ID: upload.BuildID}

	// Computing the patch path can itself fail (server-side); that is
	// reported on the result, not thrown, so the pass continues.
	path, err := c.opts.Client.FindUpgradePath(ctx, upload.ID, cave.Build.ID, upload.BuildID)
	if err != nil {
		res.Err = fmt.Errorf("computing upgrade path for cave %s: %w", cave.ID, err)
		return res
	}
	res.UpgradePath = path
	return res
}

// checkByFreshness falls back to upload timestamps for caves that do not
// track a build id.
func (c *Checker) checkByFreshness(ctx context.Context, cave *models.Cave, noisy bool) Result {
	res := Result{CaveID: cave.ID}

	uploads, err := c.opts.Client.ListUploads(ctx, cave.GameID)
	if err != nil {
		res.Err = c.triage(err, noisy, cave.ID)
		return res
	}

	var recent []*models.Upload
	for _, u := range uploads {
		if u.UpdatedAt.After(cave.InstalledAt) {
			recent = append(recent, u)
		}
	}

	switch len(recent) {
	case 0:
		return res
	case 1:
		u := recent[0]
		differentUpload := cave.Upload == nil || u.ID != cave.Upload.ID
		newlyPatchable := cave.Upload != nil && !cave.Upload.Wharf() && u.Wharf()
		if differentUpload || newlyPatchable {
			res.HasUpgrade = true
			res.Upload = u
		}
		return res
	default:
		// Several candidates are newer than the install; surface the
		// choice instead of guessing.
		res.Choices = recent
		return res
	}
}

// triage maps a check failure to its reporting policy: network errors
// degrade to a silent skip unless the check was user-initiated.
func (c *Checker) triage(err error, noisy bool, caveID string) error {
	if errors.Is(err, wharf.ErrNetwork) && !noisy {
		log.WithError(err).Debugf("Network error checking cave %s, skipping silently", caveID)
		return nil
	}
	return fmt.Errorf("checking cave %s: %w", caveID, err)
}

// CheckAll runs one pass over every cave, spacing requests out to avoid
// bursting the remote service.
func (c *Checker) CheckAll(ctx context.Context, noisy bool) ([]Result, error) {
	caves, err := c.opts.Store.AllCaves()
	if err != nil {
		return nil, err
	}

	var results []Result
	for i, cave := range caves {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if i > 0 && c.opts.PerItemDelay > 0 {
			select {
			case <-time.After(c.opts.PerItemDelay):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		res := c.CheckCave(ctx, cave, noisy)
		if c.opts.OnResult != nil {
			c.opts.OnResult(res)
		}
		results = append(results, res)
	}
	return results, nil
}

// Run loops background passes with a jittered inter-pass delay until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	for {
		delay := jitter(c.opts.Interval)
		log.Debugf("Next update check pass in %s", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if _, err := c.CheckAll(ctx, false); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Update check pass failed")
		}
	}
}

// jitter spreads a delay within +-25% of its base value.
func jitter(base time.Duration) time.Duration {
	spread := int64(base) / 4
	if spread <= 0 {
		return base
	}
	return base - time.Duration(spread/2) + time.Duration(rand.Int63n(spread))
}
