// Package schedule holds the in-memory processing queue that coalesces
// feedback bursts into slot-aligned synchronization passes.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is the queue state of one presentation.
type Entry struct {
	PresentationID     string
	NextProcessingTime time.Time
	HasPendingWork     bool
}

// StatusWriter persists the externally visible copy of an entry.
// Implemented by storage.Store.
type StatusWriter interface {
	SetProcessingSchedule(id string, scheduled bool, next *time.Time) error
}

// Queue maps presentation ids to their next eligible processing time.
// All state is guarded by one mutex; no method blocks on I/O while holding it.
type Queue struct {
	interval time.Duration
	clock    Clock

	mu       sync.Mutex
	entries  map[string]*Entry
	inflight map[string]struct{}

	// syncMu orders mirror writes so the stored copy converges to the
	// latest queue state.
	syncMu sync.Mutex
}

// NewQueue creates a Queue aligning new entries to interval boundaries.
// If interval <= 0, it defaults to 10s.
func NewQueue(interval time.Duration) *Queue {
	return NewQueueWithClock(interval, realClock{})
}

// NewQueueWithClock creates a Queue with a custom clock (for testing).
func NewQueueWithClock(interval time.Duration, clock Clock) *Queue {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Queue{
		interval: interval,
		clock:    clock,
		entries:  make(map[string]*Entry),
		inflight: make(map[string]struct{}),
	}
}

// Interval returns the slot length.
func (q *Queue) Interval() time.Duration { return q.interval }

// NextSlot returns the first interval boundary strictly after now. Boundaries
// are counted from midnight UTC of now's day, so every process agrees on them.
func NextSlot(now time.Time, interval time.Duration) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := now.Sub(midnight)
	slot := midnight.Add((elapsed/interval + 1) * interval)
	if !slot.After(now) {
		slot = slot.Add(interval)
	}
	return slot
}

// Enqueue inserts id at the next slot boundary. An existing entry keeps its
// scheduled time and is only marked as having pending work.
func (q *Queue) Enqueue(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[id]; ok {
		e.HasPendingWork = true
		return *e, false
	}
	e := &Entry{
		PresentationID:     id,
		NextProcessingTime: NextSlot(q.clock.Now(), q.interval),
		HasPendingWork:     true,
	}
	q.entries[id] = e
	return *e, true
}

// Due returns ids whose scheduled time is at or before now, oldest first.
// Entries are not removed, and ids with a pass in flight are skipped.
func (q *Queue) Due(now time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*Entry
	for id, e := range q.entries {
		if _, busy := q.inflight[id]; busy {
			continue
		}
		if !e.NextProcessingTime.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextProcessingTime.Equal(due[j].NextProcessingTime) {
			return due[i].PresentationID < due[j].PresentationID
		}
		return due[i].NextProcessingTime.Before(due[j].NextProcessingTime)
	})

	ids := make([]string, len(due))
	for i, e := range due {
		ids[i] = e.PresentationID
	}
	return ids
}

// Get returns a copy of the entry for id.
func (q *Queue) Get(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove drops the entry for id. The in-flight claim is untouched.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
}

// Len returns the number of queued presentations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IDs returns the queued presentation ids in sorted order.
func (q *Queue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.entries))
	for id := range q.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TryBegin claims id for one synchronization pass. It returns false if a
// pass for id is already running. Every successful TryBegin must be paired
// with End.
func (q *Queue) TryBegin(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.inflight[id]; busy {
		return false
	}
	q.inflight[id] = struct{}{}
	return true
}

// End releases the claim taken by TryBegin.
func (q *Queue) End(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
}

// InFlight reports whether a pass for id is running.
func (q *Queue) InFlight(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, busy := q.inflight[id]
	return busy
}

// ClearPending resets the pending-work flag at the start of a pass, so an
// Enqueue that races the pass is visible to Finish.
func (q *Queue) ClearPending(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok {
		e.HasPendingWork = false
	}
}

// Finish settles the entry after a successful pass. The entry is removed
// unless work arrived during the pass or moreWork is set, in which case it
// moves to the next slot. kept reports whether the entry still exists.
func (q *Queue) Finish(id string, moreWork bool) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		if !moreWork {
			return Entry{}, false
		}
		e = &Entry{PresentationID: id}
		q.entries[id] = e
	}
	if !e.HasPendingWork && !moreWork {
		delete(q.entries, id)
		return Entry{}, false
	}
	e.NextProcessingTime = NextSlot(q.clock.Now(), q.interval)
	e.HasPendingWork = true
	return *e, true
}

// Sync writes the current state of id to w. Concurrent calls are ordered so
// the last write always reflects the latest queue state.
func (q *Queue) Sync(id string, w StatusWriter) error {
	q.syncMu.Lock()
	defer q.syncMu.Unlock()

	e, ok := q.Get(id)
	if !ok {
		return w.SetProcessingSchedule(id, false, nil)
	}
	next := e.NextProcessingTime
	return w.SetProcessingSchedule(id, true, &next)
}
