// Package queue implements the persistent download queue: it tracks every
// queued, active and finished transfer, enforces the single-active-transfer
// invariant, survives process restarts, and drives progress reporting.
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-hangar/internal/helpers"
	"go-hangar/internal/models"
	"go-hangar/internal/store"
	"go-hangar/internal/taskctx"
	"go-hangar/internal/tasks"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Events receives download lifecycle notifications. Callbacks fire after
// the queue's lock is released, so implementations may call back into the
// queue.
type Events interface {
	DownloadStarted(models.DownloadStarted)
	DownloadProgress(models.DownloadProgress)
	DownloadEnded(models.DownloadEnded)
	DownloadDiscarded(models.DownloadDiscarded)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) DownloadStarted(models.DownloadStarted)     {}
func (NopEvents) DownloadProgress(models.DownloadProgress)   {}
func (NopEvents) DownloadEnded(models.DownloadEnded)         {}
func (NopEvents) DownloadDiscarded(models.DownloadDiscarded) {}

// Work performs the actual transfer and install for one item. It must
// observe t at every suspension point and unwind promptly once cancelled.
type Work func(t *taskctx.Context, logger *log.Entry, item *models.DownloadItem) error

// Opts configures a queue.
type Opts struct {
	Store    *store.Store
	Registry *tasks.Registry
	Events   Events
	// TaskEvents receives the wrapped tasks' lifecycle events.
	TaskEvents tasks.Events
	Work       Work
	// Parent is the context download tasks derive from.
	Parent context.Context
	// StartPaused keeps the queue from promoting anything until Resume.
	StartPaused bool
}

// Queue is the download state machine. All state transitions are
// serialized through its mutex; Tick is driven by an external periodic
// scheduler and two ticks never overlap.
type Queue struct {
	mu sync.Mutex

	store    *store.Store
	registry *tasks.Registry
	events   Events
	taskEv   tasks.Events
	work     Work
	parent   context.Context

	items  map[string]*models.DownloadItem
	paused bool
	// activeID tracks the item whose task is currently running; empty
	// when no transfer is in flight.
	activeID string
	// discardPending marks items whose running task must tear them down
	// once it unwinds.
	discardPending map[string]bool
}

// New restores the queue from the store. Items that were mid-flight when
// the process died come back unfinished and compete for the active slot
// again on the first tick.
func New(opts Opts) (*Queue, error) {
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	if opts.TaskEvents == nil {
		opts.TaskEvents = tasks.NopEvents{}
	}
	if opts.Parent == nil {
		opts.Parent = context.Background()
	}

	q := &Queue{
		store:          opts.Store,
		registry:       opts.Registry,
		events:         opts.Events,
		taskEv:         opts.TaskEvents,
		work:           opts.Work,
		parent:         opts.Parent,
		items:          make(map[string]*models.DownloadItem),
		paused:         opts.StartPaused,
		discardPending: make(map[string]bool),
	}

	if opts.Store != nil {
		restored, err := opts.Store.AllDownloads()
		if err != nil {
			return nil, fmt.Errorf("restoring download queue: %w", err)
		}
		for _, item := range restored {
			q.items[item.ID] = item
		}
		if len(restored) > 0 {
			log.Infof("Restored %d download items from database", len(restored))
		}
	}
	return q, nil
}

// Enqueue inserts a new item at the front of the queue (rank = current
// minimum - 1; newest items always download first) and supersedes any
// other pending items for the same game.
func (q *Queue) Enqueue(item *models.DownloadItem) (*models.DownloadItem, error) {
	var discarded []models.DownloadDiscarded
	defer func() {
		for _, e := range discarded {
			q.events.DownloadDiscarded(e)
		}
	}()
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, other := range q.items {
		if other.GameID == item.GameID && other.Pending() {
			log.Infof("New download for game %d supersedes item %s", item.GameID, other.ID)
			if e, ok := q.discardLocked(other.ID); ok {
				discarded = append(discarded, e)
			}
		}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Rank = q.minRankLocked() - 1
	item.Finished = false

	q.items[item.ID] = item
	if err := q.persistLocked(item); err != nil {
		return nil, err
	}
	log.WithField("reason", item.Reason).Infof("Enqueued download %s for game %d at rank %d", item.ID, item.GameID, item.Rank)
	return item, nil
}

// Tick re-evaluates which item should be active. It gracefully cancels a
// displaced or paused transfer and starts the newly selected one, but
// never both in the same tick: a cancelled task must fully unwind (and
// release its staging folder) before a successor starts.
func (q *Queue) Tick() {
	var started *models.DownloadStarted
	var launch func()
	defer func() {
		if started != nil {
			q.events.DownloadStarted(*started)
		}
		if launch != nil {
			launch()
		}
	}()
	q.mu.Lock()
	defer q.mu.Unlock()

	desired := ""
	if !q.paused {
		if item := q.selectActiveLocked(); item != nil {
			desired = item.ID
		}
	}

	if q.activeID != "" && q.activeID != desired {
		if h := q.registry.ByTag(q.activeID); h != nil {
			log.Debugf("Gracefully cancelling active download %s", q.activeID)
			h.CancelGracefully()
		}
		// Wait for the unwind; the next tick promotes the successor.
		return
	}

	if desired != "" && q.activeID == "" {
		e, l := q.startLocked(q.items[desired])
		started, launch = &e, l
	}
}

// selectActiveLocked picks the non-finished item with the numerically
// smallest rank.
func (q *Queue) selectActiveLocked() *models.DownloadItem {
	var best *models.DownloadItem
	for _, item := range q.items {
		if !item.Pending() {
			continue
		}
		if best == nil || item.Rank < best.Rank {
			best = item
		}
	}
	return best
}

// startLocked claims the active slot and prepares the work goroutine. The
// caller launches the returned closure after releasing the lock and
// emitting the start event, so the task can never settle before its start
// is observable.
func (q *Queue) startLocked(item *models.DownloadItem) (models.DownloadStarted, func()) {
	if item.StartedAt.IsZero() {
		item.StartedAt = time.Now()
	}
	q.activeID = item.ID
	if err := q.persistLocked(item); err != nil {
		log.WithError(err).Warnf("Could not persist download %s at start", item.ID)
	}

	// The work goroutine gets its own copy; item state is owned by the
	// queue and only mutated under its lock.
	itemID := item.ID
	snapshot := *item
	launch := func() {
		go func() {
			err := tasks.Run(tasks.RunOpts{
				Name:     "download",
				GameID:   snapshot.GameID,
				Tag:      itemID,
				Registry: q.registry,
				Events:   q.taskEv,
				Parent:   q.parent,
				OnProgress: func(p taskctx.Progress) {
					q.applyProgress(itemID, p)
				},
				Work: func(t *taskctx.Context, logger *log.Entry) error {
					return q.work(t, logger, &snapshot)
				},
			})
			q.settle(itemID, &snapshot, err)
		}()
	}

	return models.DownloadStarted{
		ID:     item.ID,
		Reason: item.Reason,
		Game:   item.Game,
		Upload: item.Upload,
	}, launch
}

// applyProgress folds a (already coalesced) progress sample into item
// state and persists it.
func (q *Queue) applyProgress(id string, p taskctx.Progress) {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	item.Progress = p.Progress
	item.BPS = p.BPS
	item.ETA = p.ETA
	if err := q.persistLocked(item); err != nil {
		log.WithError(err).Debugf("Could not persist progress for %s", id)
	}
	q.mu.Unlock()

	q.events.DownloadProgress(models.DownloadProgress{
		ID:       id,
		Progress: p.Progress,
		BPS:      p.BPS,
		ETA:      p.ETA,
	})
}

// settle handles a task's terminal outcome. Completion (success or hard
// failure) marks the item finished; a cooperative stop either leaves it
// queued or, when a discard was pending, performs cleanup - never both.
func (q *Queue) settle(id string, snapshot *models.DownloadItem, err error) {
	var ended *models.DownloadEnded
	var discarded *models.DownloadDiscarded
	defer func() {
		if ended != nil {
			q.events.DownloadEnded(*ended)
		}
		if discarded != nil {
			q.events.DownloadDiscarded(*discarded)
		}
	}()
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeID == id {
		q.activeID = ""
	}
	item, ok := q.items[id]
	if !ok {
		return
	}

	// The work ran against its own copy; fold the fields it is allowed to
	// set back into the live item before it is persisted.
	if snapshot != nil && snapshot.CaveID != "" {
		item.CaveID = snapshot.CaveID
	}

	if q.discardPending[id] {
		delete(q.discardPending, id)
		e := q.cleanupLocked(item)
		discarded = &e
		return
	}

	switch {
	case err == nil:
		item.Finished = true
		item.FinishedAt = time.Now()
		item.Progress = 1
		item.BPS = 0
		item.ETA = 0
		q.mustPersistLocked(item)
		ended = &models.DownloadEnded{ID: id}
		log.Infof("Download %s finished", id)

	case taskctx.IsCancelled(err):
		// Not a failure: the item keeps its place in the queue (paused or
		// displaced) and its error fields stay untouched.
		item.BPS = 0
		item.ETA = 0
		q.mustPersistLocked(item)
		log.Debugf("Download %s stopped cooperatively: %v", id, err)

	default:
		item.Finished = true
		item.FinishedAt = time.Now()
		item.Err = err.Error()
		item.ErrStack = fmt.Sprintf("%+v", err)
		q.mustPersistLocked(item)
		ended = &models.DownloadEnded{
			ID:       id,
			Err:      item.Err,
			ErrStack: item.ErrStack,
		}
		log.WithError(err).Errorf("Download %s failed", id)
	}
}

// Discard removes an item from the live set. An item with a running task
// is aborted and torn down by the task's own unwinding path; otherwise
// cleanup happens synchronously.
func (q *Queue) Discard(id string) error {
	var discarded *models.DownloadDiscarded
	defer func() {
		if discarded != nil {
			q.events.DownloadDiscarded(*discarded)
		}
	}()
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[id]; !ok {
		return fmt.Errorf("no download item with id %s", id)
	}
	if e, ok := q.discardLocked(id); ok {
		discarded = &e
	}
	return nil
}

// discardLocked tears an item down, or defers to the running task's
// unwinding path. The event is returned (not emitted) so callers can fire
// it once the lock is released; false means cleanup is still pending.
func (q *Queue) discardLocked(id string) (models.DownloadDiscarded, bool) {
	item := q.items[id]
	if h := q.registry.ByTag(id); h != nil {
		log.Debugf("Discard of %s pending, aborting its running task", id)
		q.discardPending[id] = true
		h.MarkDiscarded()
		h.Abort()
		return models.DownloadDiscarded{}, false
	}
	return q.cleanupLocked(item), true
}

// cleanupLocked wipes the item's scratch state and forgets it. The
// staging folder always goes; the destination folder goes too when this
// was a fresh install that never completed, so no half-install lingers.
func (q *Queue) cleanupLocked(item *models.DownloadItem) models.DownloadDiscarded {
	if item.StagingFolder != "" {
		helpers.WipeDir(item.StagingFolder)
	}
	freshFailure := item.Fresh && !(item.Finished && item.Err == "")
	if freshFailure && item.InstallFolder != "" {
		log.Debugf("Wiping partial fresh install at %s", item.InstallFolder)
		helpers.WipeDir(item.InstallFolder)
	}

	delete(q.items, item.ID)
	if q.store != nil {
		if err := q.store.DeleteDownload(item.ID); err != nil {
			log.WithError(err).Warnf("Could not delete download record %s", item.ID)
		}
	}
	log.Infof("Discarded download %s", item.ID)
	return models.DownloadDiscarded{ID: item.ID}
}

// Prioritize moves an item to the front: its new rank is strictly less
// than every other item's rank at call time.
func (q *Queue) Prioritize(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return fmt.Errorf("no download item with id %s", id)
	}
	item.Rank = q.minRankLocked() - 1
	return q.persistLocked(item)
}

// Deprioritize (retry) moves an item to the back: its new rank is
// strictly greater than every other item's rank at call time. A finished
// failed item is reopened so it runs again.
func (q *Queue) Deprioritize(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return fmt.Errorf("no download item with id %s", id)
	}
	item.Rank = q.maxRankLocked() + 1
	if item.Finished && item.Err != "" {
		item.Finished = false
		item.FinishedAt = time.Time{}
		item.Err = ""
		item.ErrStack = ""
		item.Progress = 0
	}
	return q.persistLocked(item)
}

// Pause stops promoting items; the active transfer, if any, is
// gracefully cancelled on the next tick.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	log.Info("Download queue paused")
}

// Resume lets ticks promote items again.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	log.Info("Download queue resumed")
}

// Paused reports whether the queue is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// ActiveID returns the id of the in-flight item, or "".
func (q *Queue) ActiveID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeID
}

// ClearFinished discards every finished item, one by one, so each goes
// through the same cleanup contract as a single discard.
func (q *Queue) ClearFinished() int {
	var discarded []models.DownloadDiscarded
	defer func() {
		for _, e := range discarded {
			q.events.DownloadDiscarded(e)
		}
	}()
	q.mu.Lock()
	defer q.mu.Unlock()

	var finished []string
	for id, item := range q.items {
		if item.Finished {
			finished = append(finished, id)
		}
	}
	for _, id := range finished {
		if e, ok := q.discardLocked(id); ok {
			discarded = append(discarded, e)
		}
	}
	return len(finished)
}

// Items returns a snapshot of all items, sorted by rank.
func (q *Queue) Items() []*models.DownloadItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.DownloadItem, 0, len(q.items))
	for _, item := range q.items {
		copied := *item
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Get returns a snapshot of one item, or nil.
func (q *Queue) Get(id string) *models.DownloadItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return nil
	}
	copied := *item
	return &copied
}

func (q *Queue) minRankLocked() int64 {
	var min int64
	first := true
	for _, item := range q.items {
		if first || item.Rank < min {
			min = item.Rank
			first = false
		}
	}
	return min
}

func (q *Queue) maxRankLocked() int64 {
	var max int64
	first := true
	for _, item := range q.items {
		if first || item.Rank > max {
			max = item.Rank
			first = false
		}
	}
	return max
}

func (q *Queue) persistLocked(item *models.DownloadItem) error {
	if q.store == nil {
		return nil
	}
	return q.store.SaveDownload(item)
}

func (q *Queue) mustPersistLocked(item *models.DownloadItem) {
	if err := q.persistLocked(item); err != nil {
		log.WithError(err).Warnf("Could not persist download %s", item.ID)
	}
}
