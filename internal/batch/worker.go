// Package batch runs the background loop that drains due entries from the
// scheduling queue and hands them to the content synchronizer.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

// PresentationStore abstracts the lookups the worker does before a pass.
type PresentationStore interface {
	schedule.StatusWriter
	GetPresentationAny(id string) (storage.Presentation, error)
}

// Passer runs one synchronization pass.
type Passer interface {
	Pass(ctx context.Context, id string) (contentsync.Result, error)
}

// Options tunes a Worker. Zero values select defaults.
type Options struct {
	// Poll is the sleep between ticks. Defaults to 1s.
	Poll time.Duration
	// Workers bounds concurrent passes across presentations. Defaults to 1.
	Workers int
	Clock   schedule.Clock
	Logger  *slog.Logger
}

// Worker polls the queue and processes due presentations.
type Worker struct {
	queue   *schedule.Queue
	store   PresentationStore
	passer  Passer
	poll    time.Duration
	workers int
	clock   schedule.Clock
	logger  *slog.Logger

	passes atomic.Int64
}

// NewWorker creates a Worker with the given dependencies.
func NewWorker(queue *schedule.Queue, store PresentationStore, passer Passer, opts Options) *Worker {
	if opts.Poll <= 0 {
		opts.Poll = time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		queue:   queue,
		store:   store,
		passer:  passer,
		poll:    opts.Poll,
		workers: opts.Workers,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Run ticks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("batch worker started", "poll", w.poll, "workers", w.workers)
	defer w.logger.Info("batch worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		w.Tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Tick processes one snapshot of due entries and returns how many passes ran.
// Different presentations may run concurrently up to the worker limit; one
// presentation never has two passes at once.
func (w *Worker) Tick(ctx context.Context) int {
	due := w.queue.Due(w.clock.Now())
	if len(due) == 0 {
		return 0
	}

	var ran atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.workers)
	for _, id := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if w.process(ctx, id) {
				ran.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	return int(ran.Load())
}

// Passes returns the total number of passes run since start.
func (w *Worker) Passes() int64 {
	return w.passes.Load()
}

// process handles one due id and reports whether a pass ran. It never
// returns an error; every outcome is settled on the queue and logged.
func (w *Worker) process(ctx context.Context, id string) (ran bool) {
	if !w.queue.TryBegin(id) {
		w.logger.Debug("pass already in flight, skipping", "presentation_id", id)
		return false
	}
	defer w.queue.End(id)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pass panicked", "presentation_id", id, "panic", fmt.Sprint(r))
		}
	}()

	p, err := w.store.GetPresentationAny(id)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.Error("queue entry for unknown presentation, dropping", "presentation_id", id)
		w.queue.Remove(id)
		return false
	}
	if err != nil {
		w.logger.Warn("loading presentation", "presentation_id", id, "error", err)
		return false
	}
	if p.Deleted {
		w.logger.Debug("presentation deleted, dropping queue entry", "presentation_id", id)
		w.queue.Remove(id)
		w.syncMirror(id)
		return false
	}
	if p.RetryAfter != nil && p.RetryAfter.After(w.clock.Now()) {
		w.logger.Debug("in backoff, skipping", "presentation_id", id, "retry_after", p.RetryAfter)
		return false
	}

	start := time.Now()
	w.passes.Add(1)
	res, err := w.passer.Pass(ctx, id)
	switch {
	case errors.Is(err, contentsync.ErrPresentationGone):
		w.logger.Debug("presentation deleted during pass", "presentation_id", id)
	case errors.Is(err, storage.ErrNotFound):
		w.logger.Error("presentation vanished during pass", "presentation_id", id, "error", err)
		w.queue.Remove(id)
	case ctx.Err() != nil:
		w.logger.Info("pass interrupted by shutdown", "presentation_id", id)
	case err != nil:
		w.logger.Warn("pass failed", "presentation_id", id, "result", res.String(), "error", err)
	default:
		w.logger.Debug("pass finished", "presentation_id", id, "result", res.String(),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return true
}

func (w *Worker) syncMirror(id string) {
	if err := w.queue.Sync(id, w.store); err != nil {
		w.logger.Warn("updating processing schedule", "presentation_id", id, "error", err)
	}
}
