package contentsync

import (
	"strings"
	"time"

	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

// DefaultBackoff is the fixed wait after a failed pass.
const DefaultBackoff = 10 * time.Second

// FailureStore persists error/retry state.
type FailureStore interface {
	RecordFailure(id string, build func(storage.Presentation) storage.Failure) error
}

// FailureRecorder writes the error/retry fields of a content record after a
// failed pass. It never clears them; only a successful commit does.
type FailureRecorder struct {
	store   FailureStore
	backoff time.Duration
	clock   schedule.Clock
}

// NewFailureRecorder creates a recorder with a fixed backoff.
// If backoff <= 0, it defaults to 10s.
func NewFailureRecorder(store FailureStore, backoff time.Duration, clock schedule.Clock) *FailureRecorder {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &FailureRecorder{store: store, backoff: backoff, clock: clock}
}

// Record stores message together with retry_after = now + backoff and a
// snapshot of the last good page.
func (r *FailureRecorder) Record(id, message string) error {
	now := r.clock.Now().UTC()
	return r.store.RecordFailure(id, func(p storage.Presentation) storage.Failure {
		return storage.Failure{
			Message:       message,
			At:            now,
			RetryAfter:    now.Add(r.backoff),
			FailedContext: lastGoodContent(p),
		}
	})
}

// lastGoodContent is the digest as it stood before the failed pass, or a
// title/description stub when nothing has been synthesized yet.
func lastGoodContent(p storage.Presentation) string {
	if p.FeedbackDigest != nil && strings.TrimSpace(*p.FeedbackDigest) != "" {
		return *p.FeedbackDigest
	}
	return "# " + p.Title + "\n\n" + p.Description
}
