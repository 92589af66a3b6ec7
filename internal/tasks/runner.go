package tasks

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go-hangar/internal/models"
	"go-hangar/internal/taskctx"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Events receives task lifecycle notifications.
type Events interface {
	TaskStarted(models.TaskStarted)
	TaskProgress(models.TaskProgress)
	TaskEnded(models.TaskEnded)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) TaskStarted(models.TaskStarted)   {}
func (NopEvents) TaskProgress(models.TaskProgress) {}
func (NopEvents) TaskEnded(models.TaskEnded)       {}

// RunOpts configures one task run.
type RunOpts struct {
	// Name identifies the kind of work ("install", "launch", ...).
	Name   string
	GameID int64
	// Tag correlates the task with a download item id.
	Tag string

	Registry *Registry
	Events   Events

	// OnProgress additionally receives coalesced progress, beyond the
	// TaskProgress events.
	OnProgress func(taskctx.Progress)
	// OnError is invoked for genuine failures (not cancellation) with the
	// error and the task's accumulated log text.
	OnError func(err error, logText string)

	// Parent is the context the task derives from.
	Parent context.Context

	// Work is the unit of work. It must observe t at suspension points
	// and may log through logger; those lines are captured per-task.
	Work func(t *taskctx.Context, logger *log.Entry) error
}

// Run executes opts.Work as a tracked task. It registers a handle for the
// task's lifetime, captures its log output in memory, forwards coalesced
// progress, and always emits exactly one TaskEnded event after all
// cleanup, whatever the outcome. The work's error is returned unchanged
// so callers can apply their own cancellation triage.
func Run(opts RunOpts) error {
	if opts.Parent == nil {
		opts.Parent = context.Background()
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}

	id := uuid.NewString()

	var logBuf bytes.Buffer
	taskLog := log.New()
	taskLog.SetOutput(&logBuf)
	taskLog.SetLevel(log.DebugLevel)
	logger := taskLog.WithField("task", opts.Name)

	t := taskctx.New(opts.Parent, id, func(p taskctx.Progress) {
		opts.Events.TaskProgress(models.TaskProgress{
			ID:       id,
			Progress: p.Progress,
			BPS:      p.BPS,
			ETA:      p.ETA,
		})
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	})

	handle := &Handle{id: id, name: opts.Name, tag: opts.Tag, task: t}
	if opts.Registry != nil {
		opts.Registry.put(handle)
	}

	opts.Events.TaskStarted(models.TaskStarted{
		ID:        id,
		Name:      opts.Name,
		GameID:    opts.GameID,
		StartedAt: time.Now(),
	})
	log.WithField("task", opts.Name).Debugf("Task %s started", id)

	err := runWork(opts.Work, t, logger)

	// Settle: flush trailing progress, drop the handle, then the single
	// terminal event. Order matters; the handle must be gone before
	// observers react to TaskEnded.
	t.FlushProgress()
	if opts.Registry != nil {
		opts.Registry.remove(id)
	}

	ended := models.TaskEnded{ID: id}
	switch {
	case err == nil:
		logger.Infof("Task %s finished", opts.Name)
	case taskctx.IsCancelled(err):
		// Cooperative stops are logged, never surfaced as failures.
		logger.Infof("Task %s was stopped: %v", opts.Name, err)
	default:
		logger.WithError(err).Errorf("Task %s failed", opts.Name)
		ended.Err = err.Error()
		if opts.OnError != nil {
			opts.OnError(err, logBuf.String())
		}
	}

	opts.Events.TaskEnded(ended)
	return err
}

// runWork isolates the work call so a panic inside it still settles the
// task instead of tearing the scheduler down.
func runWork(work func(*taskctx.Context, *log.Entry) error, t *taskctx.Context, logger *log.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return work(t, logger)
}
