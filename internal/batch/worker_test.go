package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/generation"
	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockGenerator struct {
	calls atomic.Int32
	fn    func(req generation.Request) (string, error)
}

func (g *mockGenerator) Generate(_ context.Context, req generation.Request) (string, error) {
	g.calls.Add(1)
	return g.fn(req)
}

type passFunc func(ctx context.Context, id string) (contentsync.Result, error)

func (f passFunc) Pass(ctx context.Context, id string) (contentsync.Result, error) { return f(ctx, id) }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestPresentation(t *testing.T, s *storage.Store, id string) {
	t.Helper()
	if err := s.CreatePresentation(storage.Presentation{
		ID: id, Title: "T " + id, Description: "D", AccessCode: "code-" + id, Owner: "alice",
		CreatedAt: time.Now().UTC(), LiveInfoVisible: true,
	}); err != nil {
		t.Fatalf("CreatePresentation: %v", err)
	}
}

func addFeedback(t *testing.T, s *storage.Store, q *schedule.Queue, pid, id string, at time.Time) {
	t.Helper()
	if err := s.CreateFeedback(storage.Feedback{ID: id, PresentationID: pid, Content: "feedback " + id, SubmittedAt: at}); err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}
	q.Enqueue(pid)
}

type harness struct {
	store  *storage.Store
	queue  *schedule.Queue
	clock  *mockClock
	gen    *mockGenerator
	worker *Worker
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	store := openTestStore(t)
	clock := &mockClock{now: time.Date(2025, 6, 1, 10, 0, 1, 0, time.UTC)}
	q := schedule.NewQueueWithClock(10*time.Second, clock)
	gen := &mockGenerator{fn: func(generation.Request) (string, error) { return "## Page", nil }}
	syncer := contentsync.New(store, q, gen, contentsync.Options{Clock: clock, Timeout: time.Second})
	w := NewWorker(q, store, syncer, Options{Workers: workers, Clock: clock, Poll: time.Millisecond})
	return &harness{store: store, queue: q, clock: clock, gen: gen, worker: w}
}

func TestTick_NothingDueBeforeSlot(t *testing.T) {
	h := newHarness(t, 1)
	createTestPresentation(t, h.store, "P")
	addFeedback(t, h.store, h.queue, "P", "f1", h.clock.Now())

	if n := h.worker.Tick(context.Background()); n != 0 {
		t.Errorf("Tick before slot ran %d passes", n)
	}
	if h.gen.calls.Load() != 0 {
		t.Error("generator called before slot")
	}
}

func TestTick_ProcessesAtSlot(t *testing.T) {
	h := newHarness(t, 1)
	createTestPresentation(t, h.store, "P")
	addFeedback(t, h.store, h.queue, "P", "f1", h.clock.Now())

	h.clock.Advance(9 * time.Second)
	if n := h.worker.Tick(context.Background()); n != 1 {
		t.Fatalf("Tick ran %d passes, want 1", n)
	}
	p, _ := h.store.GetPresentation("P")
	if p.FeedbackDigest == nil || *p.FeedbackDigest != "## Page" {
		t.Errorf("digest = %v", p.FeedbackDigest)
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue len = %d, want 0", h.queue.Len())
	}
}

func TestTick_FailureThenBackoffThenRetry(t *testing.T) {
	h := newHarness(t, 1)
	createTestPresentation(t, h.store, "P")
	addFeedback(t, h.store, h.queue, "P", "f1", h.clock.Now())

	fail := true
	h.gen.fn = func(generation.Request) (string, error) {
		if fail {
			return "", errors.New("timeout")
		}
		return "## Page", nil
	}

	h.clock.Advance(9 * time.Second)
	h.worker.Tick(context.Background())
	if h.queue.Len() != 1 {
		t.Fatal("entry removed after failure")
	}

	// Still inside the backoff window: skipped.
	fail = false
	h.clock.Advance(5 * time.Second)
	if n := h.worker.Tick(context.Background()); n != 0 {
		t.Fatalf("Tick during backoff ran %d passes", n)
	}
	if h.gen.calls.Load() != 1 {
		t.Fatalf("generator calls = %d, want 1", h.gen.calls.Load())
	}

	h.clock.Advance(6 * time.Second)
	if n := h.worker.Tick(context.Background()); n != 1 {
		t.Fatalf("Tick after backoff ran %d passes, want 1", n)
	}
	p, _ := h.store.GetPresentation("P")
	if p.HasError() || p.RetryAfter != nil {
		t.Error("error fields not cleared after successful retry")
	}
	if h.queue.Len() != 0 {
		t.Error("entry kept after successful retry")
	}
}

func TestTick_DeletedPresentationDropped(t *testing.T) {
	h := newHarness(t, 1)
	createTestPresentation(t, h.store, "P")
	addFeedback(t, h.store, h.queue, "P", "f1", h.clock.Now())
	h.queue.Sync("P", h.store)
	h.store.DeletePresentation("P", h.clock.Now())

	h.clock.Advance(time.Minute)
	if n := h.worker.Tick(context.Background()); n != 0 {
		t.Errorf("Tick ran %d passes for deleted presentation", n)
	}
	if h.queue.Len() != 0 {
		t.Error("entry kept for deleted presentation")
	}
	p, _ := h.store.GetPresentationAny("P")
	if p.ProcessingScheduled {
		t.Error("mirror still scheduled after delete")
	}
	if h.gen.calls.Load() != 0 {
		t.Error("generator called for deleted presentation")
	}
}

func TestTick_UnknownPresentationDropped(t *testing.T) {
	h := newHarness(t, 1)
	h.queue.Enqueue("ghost")
	h.clock.Advance(time.Minute)

	h.worker.Tick(context.Background())
	if h.queue.Len() != 0 {
		t.Error("entry for unknown presentation kept")
	}
}

func TestTick_FailureIsolation(t *testing.T) {
	store := openTestStore(t)
	clock := &mockClock{now: time.Date(2025, 6, 1, 10, 0, 1, 0, time.UTC)}
	q := schedule.NewQueueWithClock(10*time.Second, clock)
	for _, id := range []string{"a", "b", "c"} {
		createTestPresentation(t, store, id)
		q.Enqueue(id)
	}

	var seen sync.Map
	passer := passFunc(func(_ context.Context, id string) (contentsync.Result, error) {
		seen.Store(id, true)
		switch id {
		case "a":
			panic("boom")
		case "b":
			return contentsync.ResultFailed, errors.New("generation failed")
		}
		q.Remove(id)
		return contentsync.ResultUpdated, nil
	})
	w := NewWorker(q, store, passer, Options{Clock: clock})

	clock.Advance(time.Minute)
	if n := w.Tick(context.Background()); n != 2 {
		t.Errorf("Tick ran %d passes, want 2 (panic not counted)", n)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := seen.Load(id); !ok {
			t.Errorf("%s not processed", id)
		}
	}
	if q.InFlight("a") {
		t.Error("claim leaked after panic")
	}
}

func TestTick_SkipsInFlight(t *testing.T) {
	h := newHarness(t, 1)
	createTestPresentation(t, h.store, "P")
	addFeedback(t, h.store, h.queue, "P", "f1", h.clock.Now())
	h.clock.Advance(time.Minute)

	if !h.queue.TryBegin("P") {
		t.Fatal("TryBegin failed")
	}
	if n := h.worker.Tick(context.Background()); n != 0 {
		t.Errorf("Tick ran %d passes while a manual pass holds the claim", n)
	}
	h.queue.End("P")
	if n := h.worker.Tick(context.Background()); n != 1 {
		t.Errorf("Tick ran %d passes after claim released, want 1", n)
	}
}

func TestTick_BoundedConcurrency(t *testing.T) {
	store := openTestStore(t)
	clock := &mockClock{now: time.Date(2025, 6, 1, 10, 0, 1, 0, time.UTC)}
	q := schedule.NewQueueWithClock(10*time.Second, clock)
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		createTestPresentation(t, store, id)
		q.Enqueue(id)
	}

	var active, maxActive atomic.Int32
	passer := passFunc(func(_ context.Context, id string) (contentsync.Result, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return contentsync.ResultUpdated, nil
	})
	w := NewWorker(q, store, passer, Options{Clock: clock, Workers: 2})

	clock.Advance(time.Minute)
	if n := w.Tick(context.Background()); n != len(ids) {
		t.Fatalf("Tick ran %d passes, want %d", n, len(ids))
	}
	if got := maxActive.Load(); got > 2 {
		t.Errorf("max concurrent passes = %d, want <= 2", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, 1)
	createTestPresentation(t, h.store, "P")
	addFeedback(t, h.store, h.queue, "P", "f1", h.clock.Now())
	h.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for h.queue.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not process the due entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.worker.Passes() != 1 {
		t.Errorf("Passes = %d, want 1", h.worker.Passes())
	}
}
