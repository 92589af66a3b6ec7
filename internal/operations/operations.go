// Package operations implements the work behind queued downloads: driving
// the patch subprocess and installer registry, reconciling staging into the
// install folder, and keeping cave records and the library index current.
package operations

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-hangar/internal/helpers"
	"go-hangar/internal/index"
	"go-hangar/internal/installer"
	"go-hangar/internal/models"
	"go-hangar/internal/store"
	"go-hangar/internal/taskctx"
	"go-hangar/internal/wharf"
)

// Performer executes download items and launches installed games.
type Performer struct {
	Store       *store.Store
	Registry    *installer.Registry
	Client      wharf.Client
	Index       bleve.Index
	Credentials wharf.Credentials

	// StagingRoot hosts per-item scratch folders.
	StagingRoot string
	// InstallLocations maps location names to base directories.
	InstallLocations map[string]string

	// EnqueueHeal requeues a repair download; used to redirect launches
	// of morphing caves.
	EnqueueHeal func(cave *models.Cave) error
}

// Perform is the queue's unit of work for one download item.
func (p *Performer) Perform(t *taskctx.Context, logger *log.Entry, item *models.DownloadItem) error {
	switch item.Reason {
	case models.ReasonHeal, models.ReasonRevert:
		return p.performInPlace(t, logger, item)
	default:
		return p.performInstall(t, logger, item)
	}
}

// performInstall covers install, reinstall and update: the subprocess
// fetches/unpacks into staging, the installer registry deploys into the
// install folder, then the cave record and library index are updated.
func (p *Performer) performInstall(t *taskctx.Context, logger *log.Entry, item *models.DownloadItem) error {
	cave, err := p.caveForItem(item)
	if err != nil {
		return err
	}

	destPath, err := p.installPath(cave)
	if err != nil {
		return err
	}
	stagePath := item.StagingFolder
	if stagePath == "" {
		stagePath = filepath.Join(p.StagingRoot, item.ID)
	}
	if !helpers.CheckAndMakeDir(stagePath) {
		return fmt.Errorf("could not create staging folder %s", stagePath)
	}

	if err := t.Checkpoint(); err != nil {
		return err
	}

	res, err := p.Registry.Install(t.Ctx(), installer.Opts{
		ArtifactPath: "", // the subprocess fetches the build itself
		StagePath:    stagePath,
		DestPath:     destPath,
		Game:         item.Game,
		Upload:       item.Upload,
		Build:        item.Build,
		Cave:         cave,
		Credentials:  p.Credentials,
		Task:         t,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if err := t.Checkpoint(); err != nil {
		return err
	}

	cave.Upload = item.Upload
	cave.Build = item.Build
	cave.InstalledAt = time.Now()
	cave.InstalledSize = deployedSize(destPath, res.Files)
	cave.Verdict = sniffVerdict(destPath, res.Files)
	if err := p.Store.SaveCave(cave); err != nil {
		return fmt.Errorf("persisting cave after install: %w", err)
	}

	item.CaveID = cave.ID
	if p.Index != nil {
		kind := ""
		if res.Receipt != nil {
			kind = res.Receipt.InstallerKind
		}
		if err := index.IndexCave(p.Index, cave, kind); err != nil {
			logger.WithError(err).Warn("Could not index cave for library search")
		}
	}

	// Staging served its purpose; keep the disk clean.
	helpers.WipeDir(stagePath)
	logger.Infof("Installed game %d into %s (%s)", item.GameID, destPath,
		helpers.BytesToSize(uint64(cave.InstalledSize)))
	return nil
}

// performInPlace covers heal and revert: no new artifact is unpacked, the
// existing cave is repaired (or rolled back) in its install folder. The
// cave is marked morphing for the duration so it cannot be launched
// mid-rewrite.
func (p *Performer) performInPlace(t *taskctx.Context, logger *log.Entry, item *models.DownloadItem) error {
	if item.CaveID == "" {
		return fmt.Errorf("%s requires an existing cave", item.Reason)
	}
	cave, err := p.Store.GetCave(item.CaveID)
	if err != nil {
		return fmt.Errorf("loading cave %s: %w", item.CaveID, err)
	}
	destPath, err := p.installPath(cave)
	if err != nil {
		return err
	}

	cave.Morphing = true
	if err := p.Store.SaveCave(cave); err != nil {
		return err
	}
	// Morphing survives a crash or a failed rewrite: the flag is only
	// cleared once the repair fully succeeds, so a torn install folder
	// stays unlaunchable and launch keeps redirecting to a heal.

	stagePath := filepath.Join(p.StagingRoot, item.ID)
	if !helpers.CheckAndMakeDir(stagePath) {
		return fmt.Errorf("could not create staging folder %s", stagePath)
	}

	res, err := p.Registry.InPlace(t.Ctx(), item.Reason, installer.Opts{
		StagePath:   stagePath,
		DestPath:    destPath,
		Game:        item.Game,
		Upload:      cave.Upload,
		Build:       item.Build,
		Cave:        cave,
		Credentials: p.Credentials,
		Task:        t,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if item.Reason == models.ReasonRevert && item.Build != nil {
		cave.Build = item.Build
	}
	cave.InstalledSize = deployedSize(destPath, res.Files)
	cave.Morphing = false
	if err := p.Store.SaveCave(cave); err != nil {
		return fmt.Errorf("persisting cave after %s: %w", item.Reason, err)
	}
	helpers.WipeDir(stagePath)
	logger.Infof("%s of cave %s complete", item.Reason, cave.ID)
	return nil
}

// Launch starts an installed game. Launching a morphing cave is redirected
// into a queued heal download instead.
func (p *Performer) Launch(ctx context.Context, caveID string) error {
	cave, err := p.Store.GetCave(caveID)
	if err != nil {
		return fmt.Errorf("loading cave %s: %w", caveID, err)
	}

	if cave.Morphing {
		log.Warnf("Cave %s is mid-repair, queueing a heal instead of launching", caveID)
		if p.EnqueueHeal == nil {
			return fmt.Errorf("cave %s is being repaired and cannot be launched", caveID)
		}
		return p.EnqueueHeal(cave)
	}

	if cave.Verdict == nil || len(cave.Verdict.Candidates) == 0 {
		return fmt.Errorf("cave %s has no launchable candidates", caveID)
	}
	candidate := cave.Verdict.Candidates[0]

	destPath, err := p.installPath(cave)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	err = p.Client.Launch(ctx, wharf.LaunchParams{
		InstallFolder: destPath,
		Candidate:     &candidate,
		Credentials:   p.Credentials,
	})
	var deps *installer.MissingDepsError
	if errors.As(err, &deps) {
		log.Errorf("Cannot launch cave %s: host is missing %s libraries: %s",
			caveID, deps.Arch, strings.Join(deps.Libraries, ", "))
	}

	// Playtime is recorded whether or not the session ended cleanly.
	cave.SecondsRun += int64(time.Since(startedAt).Seconds())
	cave.LastTouchedAt = time.Now()
	if saveErr := p.Store.SaveCave(cave); saveErr != nil {
		log.WithError(saveErr).Warnf("Could not persist playtime for cave %s", caveID)
	}
	return err
}

// Uninstall removes a cave's files, record, and index entry.
func (p *Performer) Uninstall(ctx context.Context, caveID string) error {
	cave, err := p.Store.GetCave(caveID)
	if err != nil {
		return fmt.Errorf("loading cave %s: %w", caveID, err)
	}
	destPath, err := p.installPath(cave)
	if err != nil {
		return err
	}

	err = p.Registry.Uninstall(ctx, installer.Opts{
		DestPath:    destPath,
		Game:        cave.Game,
		Upload:      cave.Upload,
		Cave:        cave,
		Credentials: p.Credentials,
	})
	if err != nil {
		return err
	}

	if err := p.Store.DeleteCave(caveID); err != nil {
		return err
	}
	if p.Index != nil {
		if err := index.RemoveCave(p.Index, caveID); err != nil {
			log.WithError(err).Warnf("Could not remove cave %s from library index", caveID)
		}
	}
	return nil
}

// caveForItem loads the item's cave, or mints a fresh one for new
// installs.
func (p *Performer) caveForItem(item *models.DownloadItem) (*models.Cave, error) {
	if item.CaveID != "" {
		cave, err := p.Store.GetCave(item.CaveID)
		if err != nil {
			return nil, fmt.Errorf("loading cave %s: %w", item.CaveID, err)
		}
		return cave, nil
	}

	folder := fmt.Sprintf("game-%d", item.GameID)
	if item.Game != nil && item.Game.Title != "" {
		folder = helpers.ConvertToSlug(item.Game.Title)
	}
	cave := &models.Cave{
		ID:              uuid.NewString(),
		GameID:          item.GameID,
		Game:            item.Game,
		InstallLocation: item.InstallLocation,
		InstallFolder:   folder,
	}
	return cave, nil
}

// NewItem builds a download item ready for enqueueing, with its scratch
// and destination folders pinned down so discard cleanup always knows
// what to wipe.
func (p *Performer) NewItem(game *models.Game, upload *models.Upload, build *models.Build, reason models.DownloadReason, location string) (*models.DownloadItem, error) {
	base, ok := p.InstallLocations[location]
	if !ok {
		return nil, fmt.Errorf("unknown install location %q", location)
	}

	item := &models.DownloadItem{
		ID:              uuid.NewString(),
		GameID:          game.ID,
		Game:            game,
		Reason:          reason,
		Upload:          upload,
		Build:           build,
		InstallLocation: location,
		Fresh:           reason == models.ReasonInstall,
	}
	item.StagingFolder = filepath.Join(p.StagingRoot, item.ID)

	folder := fmt.Sprintf("game-%d", game.ID)
	if game.Title != "" {
		folder = helpers.ConvertToSlug(game.Title)
	}
	item.InstallFolder = filepath.Join(base, folder)
	return item, nil
}

// NewHealItem builds the repair download for a morphing or damaged cave.
func (p *Performer) NewHealItem(cave *models.Cave) (*models.DownloadItem, error) {
	destPath, err := p.installPath(cave)
	if err != nil {
		return nil, err
	}
	item := &models.DownloadItem{
		ID:              uuid.NewString(),
		GameID:          cave.GameID,
		Game:            cave.Game,
		CaveID:          cave.ID,
		Reason:          models.ReasonHeal,
		Upload:          cave.Upload,
		Build:           cave.Build,
		InstallLocation: cave.InstallLocation,
		InstallFolder:   destPath,
	}
	item.StagingFolder = filepath.Join(p.StagingRoot, item.ID)
	return item, nil
}

// installPath resolves a cave's absolute install folder.
func (p *Performer) installPath(cave *models.Cave) (string, error) {
	base, ok := p.InstallLocations[cave.InstallLocation]
	if !ok {
		return "", fmt.Errorf("unknown install location %q", cave.InstallLocation)
	}
	return filepath.Join(base, cave.InstallFolder), nil
}
