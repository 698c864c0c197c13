// Package contentsync runs synchronization passes: it folds unprocessed
// feedback into a presentation's live page through a Generator and records
// failures for retry.
package contentsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/podium/internal/generation"
	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

const defaultTimeout = 30 * time.Second

// Result describes how a pass ended.
type Result int

const (
	// ResultIdle means there was nothing to process.
	ResultIdle Result = iota
	// ResultUpdated means a new digest was committed.
	ResultUpdated
	// ResultFailed means generation failed and the failure was recorded.
	ResultFailed
	// ResultConflict means the record changed during the pass; nothing was written.
	ResultConflict
)

func (r Result) String() string {
	switch r {
	case ResultIdle:
		return "idle"
	case ResultUpdated:
		return "updated"
	case ResultFailed:
		return "failed"
	case ResultConflict:
		return "conflict"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ErrPresentationGone is returned when the presentation was deleted before
// or during the pass. It is not a failure; callers drop the work silently.
var ErrPresentationGone = errors.New("presentation deleted")

// GenerationError reports a failed generator call. Message is what gets
// stored as last_error_message.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Store is the persistence the synchronizer needs.
type Store interface {
	FailureStore
	schedule.StatusWriter
	GetPresentationAny(id string) (storage.Presentation, error)
	ListUnprocessedFeedback(presentationID string) ([]storage.Feedback, error)
	CountUnprocessedFeedback(presentationID string) (int, error)
	CommitDigest(c storage.DigestCommit) error
}

// Options tunes a Synchronizer. Zero values select defaults.
type Options struct {
	Timeout   time.Duration
	MaxTokens int
	Backoff   time.Duration
	Clock     schedule.Clock
	Logger    *slog.Logger
}

// Synchronizer runs one pass at a time per presentation. Callers must hold
// the queue's per-id claim (schedule.Queue.TryBegin) around Pass.
type Synchronizer struct {
	store     Store
	queue     *schedule.Queue
	gen       generation.Generator
	failures  *FailureRecorder
	clock     schedule.Clock
	timeout   time.Duration
	maxTokens int
	logger    *slog.Logger
}

func New(store Store, queue *schedule.Queue, gen generation.Generator, opts Options) *Synchronizer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = generation.DefaultMaxTokens
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synchronizer{
		store:     store,
		queue:     queue,
		gen:       gen,
		failures:  NewFailureRecorder(store, opts.Backoff, opts.Clock),
		clock:     opts.Clock,
		timeout:   opts.Timeout,
		maxTokens: opts.MaxTokens,
		logger:    opts.Logger,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Pass runs one synchronization pass for id.
//
// Feedback that is unprocessed when the pass starts is sent to the generator
// together with the current digest. On success the items are marked processed
// and the digest replaced in one transaction; the queue entry is removed
// unless more work is waiting. On failure nothing is marked processed, the
// failure is recorded and the queue entry stays. If ctx is cancelled during
// generation no failure is recorded.
func (s *Synchronizer) Pass(ctx context.Context, id string) (Result, error) {
	p, err := s.store.GetPresentationAny(id)
	if err != nil {
		return ResultIdle, fmt.Errorf("loading presentation %s: %w", id, err)
	}
	if p.Deleted {
		s.drop(id)
		return ResultIdle, ErrPresentationGone
	}

	s.queue.ClearPending(id)

	items, err := s.store.ListUnprocessedFeedback(id)
	if err != nil {
		return ResultIdle, fmt.Errorf("listing unprocessed feedback: %w", err)
	}
	if len(items) == 0 {
		s.queue.Finish(id, false)
		s.sync(id)
		return ResultIdle, nil
	}

	req := BuildPrompt(p, items, s.maxTokens)
	digest, genErr := s.generate(ctx, req)
	if genErr != nil && ctx.Err() != nil {
		// Interrupted by the caller, not a backend failure. Keep the items
		// pending and record nothing.
		s.queue.Enqueue(id)
		s.sync(id)
		return ResultIdle, fmt.Errorf("pass for %s interrupted: %w", id, ctx.Err())
	}
	if genErr != nil {
		return s.fail(id, genErr)
	}

	ids := make([]string, len(items))
	for i, f := range items {
		ids[i] = f.ID
	}
	err = s.store.CommitDigest(storage.DigestCommit{
		PresentationID: id,
		Revision:       p.Revision,
		FeedbackIDs:    ids,
		Digest:         digest,
		At:             s.clock.Now().UTC(),
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.drop(id)
		return ResultIdle, ErrPresentationGone
	case errors.Is(err, storage.ErrConflict):
		// A reset landed mid-pass; its items are unprocessed again.
		s.queue.Enqueue(id)
		s.sync(id)
		return ResultConflict, fmt.Errorf("committing digest for %s: %w", id, err)
	case err != nil:
		return ResultIdle, fmt.Errorf("committing digest for %s: %w", id, err)
	}

	remaining, err := s.store.CountUnprocessedFeedback(id)
	if err != nil {
		s.logger.Warn("counting remaining feedback", "presentation_id", id, "error", err)
		remaining = 1
	}
	s.queue.Finish(id, remaining > 0)
	s.sync(id)

	s.logger.Info("live page updated", "presentation_id", id, "items", len(items), "remaining", remaining)
	return ResultUpdated, nil
}

// generate calls the backend under the pass timeout and validates the output.
func (s *Synchronizer) generate(ctx context.Context, req generation.Request) (string, *GenerationError) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	out, err := s.gen.Generate(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &GenerationError{Message: fmt.Sprintf("generation timed out after %s", s.timeout), Err: err}
		}
		return "", &GenerationError{Message: err.Error(), Err: err}
	}
	s.logger.Debug("generation finished", "duration_ms", s.clock.Now().Sub(start).Milliseconds())

	out = generation.CleanOutput(out)
	if strings.TrimSpace(out) == "" {
		return "", &GenerationError{Message: "generator returned an empty response"}
	}
	return out, nil
}

func (s *Synchronizer) fail(id string, genErr *GenerationError) (Result, error) {
	if err := s.failures.Record(id, genErr.Message); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.drop(id)
			return ResultIdle, ErrPresentationGone
		}
		return ResultFailed, fmt.Errorf("recording failure for %s: %w (after %w)", id, err, genErr)
	}
	// Out-of-band passes may run without an entry; make sure one exists.
	s.queue.Enqueue(id)
	s.sync(id)
	return ResultFailed, genErr
}

func (s *Synchronizer) drop(id string) {
	s.queue.Remove(id)
	s.sync(id)
}

func (s *Synchronizer) sync(id string) {
	if err := s.queue.Sync(id, s.store); err != nil {
		s.logger.Warn("updating processing schedule", "presentation_id", id, "error", err)
	}
}
