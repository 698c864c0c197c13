// Package feedback is the entry point for audience feedback: submission,
// processing status, manual retry, reset and the lifecycle of the background
// processing loop.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kalambet/podium/internal/batch"
	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/ratelimit"
	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

const (
	DefaultMaxContent     = 500
	DefaultMaxParticipant = 100
	DefaultRecovery       = "@every 5m"

	StatusQueued = "queued"
)

var (
	// ErrFeedbackDisabled is returned when the presenter closed feedback.
	ErrFeedbackDisabled = errors.New("feedback is disabled for this presentation")
	// ErrPassInProgress is returned by RetryNow when a pass for the same
	// presentation is already running.
	ErrPassInProgress = errors.New("a processing pass is already running")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("feedback service already started")
)

// ValidationError rejects a submission synchronously.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// SubmitRequest is one audience feedback item.
type SubmitRequest struct {
	PresentationID string
	Content        string
	Participant    string
}

// Ack confirms a submission was stored and queued. It does not carry the
// regenerated page.
type Ack struct {
	FeedbackID string    `json:"feedback_id"`
	Status     string    `json:"status"`
	NextUpdate time.Time `json:"next_update"`
}

// ProcessingStatus is a read-only view of queue and record state.
type ProcessingStatus struct {
	Scheduled   bool       `json:"scheduled"`
	NextUpdate  *time.Time `json:"next_update,omitempty"`
	InFlight    bool       `json:"in_flight"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`
	Unprocessed int        `json:"unprocessed"`
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	MaxContent       int
	MaxParticipant   int
	RecoverySchedule string
	Clock            schedule.Clock
	Logger           *slog.Logger
}

// Service coordinates submissions with the scheduling queue and owns the
// background worker.
type Service struct {
	store   *storage.Store
	queue   *schedule.Queue
	syncer  *contentsync.Synchronizer
	worker  *batch.Worker
	limiter *ratelimit.Limiter
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	sweeper *cron.Cron
}

func New(store *storage.Store, queue *schedule.Queue, syncer *contentsync.Synchronizer,
	worker *batch.Worker, limiter *ratelimit.Limiter, opts Options) *Service {
	if opts.MaxContent <= 0 {
		opts.MaxContent = DefaultMaxContent
	}
	if opts.MaxParticipant <= 0 {
		opts.MaxParticipant = DefaultMaxParticipant
	}
	if opts.RecoverySchedule == "" {
		opts.RecoverySchedule = DefaultRecovery
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:   store,
		queue:   queue,
		syncer:  syncer,
		worker:  worker,
		limiter: limiter,
		opts:    opts,
		logger:  opts.Logger,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Submit validates and stores one feedback item, then queues the
// presentation for the next slot.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Ack, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Ack{}, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	if n := utf8.RuneCountInString(content); n > s.opts.MaxContent {
		return Ack{}, &ValidationError{Field: "content", Message: fmt.Sprintf("must be at most %d characters, got %d", s.opts.MaxContent, n)}
	}

	var participant *string
	if name := strings.TrimSpace(req.Participant); name != "" {
		if n := utf8.RuneCountInString(name); n > s.opts.MaxParticipant {
			return Ack{}, &ValidationError{Field: "participant", Message: fmt.Sprintf("must be at most %d characters, got %d", s.opts.MaxParticipant, n)}
		}
		participant = &name
	}

	p, err := s.store.GetPresentation(req.PresentationID)
	if err != nil {
		return Ack{}, fmt.Errorf("loading presentation: %w", err)
	}
	if p.FeedbackDisabled {
		return Ack{}, ErrFeedbackDisabled
	}

	f := storage.Feedback{
		ID:             uuid.New().String(),
		PresentationID: p.ID,
		Content:        content,
		Participant:    participant,
		SubmittedAt:    s.opts.Clock.Now().UTC(),
	}
	if err := s.store.CreateFeedback(f); err != nil {
		return Ack{}, fmt.Errorf("storing feedback: %w", err)
	}

	entry, created := s.queue.Enqueue(p.ID)
	s.syncMirror(p.ID)
	if created {
		s.logger.Debug("presentation queued", "presentation_id", p.ID, "next_update", entry.NextProcessingTime)
	}

	return Ack{FeedbackID: f.ID, Status: StatusQueued, NextUpdate: entry.NextProcessingTime}, nil
}

// Status reports whether a pass is pending and the last outcome.
func (s *Service) Status(id string) (ProcessingStatus, error) {
	p, err := s.store.GetPresentation(id)
	if err != nil {
		return ProcessingStatus{}, fmt.Errorf("loading presentation: %w", err)
	}
	n, err := s.store.CountUnprocessedFeedback(id)
	if err != nil {
		return ProcessingStatus{}, fmt.Errorf("counting feedback: %w", err)
	}

	st := ProcessingStatus{
		InFlight:    s.queue.InFlight(id),
		LastUpdated: p.LastUpdated,
		LastError:   p.LastErrorMessage,
		RetryAfter:  p.RetryAfter,
		Unprocessed: n,
	}
	if e, ok := s.queue.Get(id); ok {
		next := e.NextProcessingTime
		st.Scheduled = true
		st.NextUpdate = &next
	}
	return st, nil
}

// List returns stored feedback, newest first.
func (s *Service) List(id string, limit, offset int) ([]storage.Feedback, error) {
	if _, err := s.store.GetPresentation(id); err != nil {
		return nil, fmt.Errorf("loading presentation: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListFeedback(id, limit, offset)
}

// RetryNow runs one pass out of band, ignoring any backoff. It is rate
// limited per actor and refused while another pass for id is running.
func (s *Service) RetryNow(ctx context.Context, actor, id string) (contentsync.Result, error) {
	if _, err := s.store.GetPresentation(id); err != nil {
		return contentsync.ResultIdle, fmt.Errorf("loading presentation: %w", err)
	}
	if !s.queue.TryBegin(id) {
		return contentsync.ResultIdle, ErrPassInProgress
	}
	defer s.queue.End(id)

	if !s.limiter.Allow(actor) {
		return contentsync.ResultIdle, ratelimit.ErrRateLimited
	}

	s.logger.Info("manual retry", "presentation_id", id, "actor", actor)
	return s.syncer.Pass(ctx, id)
}

// Reset marks every feedback item unprocessed and queues a full rebuild.
// The current page stays visible until the rebuild succeeds.
func (s *Service) Reset(id string) (int, error) {
	n, err := s.store.ResetFeedback(id)
	if err != nil {
		return 0, fmt.Errorf("resetting feedback: %w", err)
	}
	s.queue.Enqueue(id)
	s.syncMirror(id)
	s.logger.Info("processing reset", "presentation_id", id, "items", n)
	return n, nil
}

// Recover queues every live presentation with unprocessed feedback or a
// pending retry. It returns the number of new queue entries.
func (s *Service) Recover(ctx context.Context) (int, error) {
	ids, err := s.store.ListPendingPresentationIDs()
	if err != nil {
		return 0, fmt.Errorf("listing pending presentations: %w", err)
	}
	created := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if _, ok := s.queue.Enqueue(id); ok {
			created++
		}
		s.syncMirror(id)
	}
	return created, nil
}

// Start rebuilds the queue from storage, launches the worker and schedules
// the periodic recovery sweep. It may be called once.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	n, err := s.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering queue: %w", err)
	}
	if n > 0 {
		s.logger.Info("recovered pending presentations", "count", n)
	}
	// Rows scheduled by a previous process that have no work left.
	stale, err := s.store.ClearProcessingSchedules(s.queue.IDs())
	if err != nil {
		return fmt.Errorf("clearing stale schedules: %w", err)
	}
	if stale > 0 {
		s.logger.Info("cleared stale processing schedules", "count", stale)
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(s.opts.RecoverySchedule, s.sweep); err != nil {
		return fmt.Errorf("scheduling recovery sweep %q: %w", s.opts.RecoverySchedule, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.worker.Run(runCtx)
	}()
	sweeper.Start()

	s.started = true
	s.cancel = cancel
	s.done = done
	s.sweeper = sweeper
	return nil
}

// Stop halts the sweep and the worker and waits for an in-flight tick.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.sweeper.Stop().Done()
	s.cancel()
	<-s.done
	s.started = false
}

// sweep catches durable work the queue does not know about, e.g. feedback
// written by another process sharing the database.
func (s *Service) sweep() {
	n, err := s.Recover(context.Background())
	if err != nil {
		s.logger.Warn("recovery sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("recovery sweep queued presentations", "count", n)
	}
}

func (s *Service) syncMirror(id string) {
	if err := s.queue.Sync(id, s.store); err != nil {
		s.logger.Warn("updating processing schedule", "presentation_id", id, "error", err)
	}
}
