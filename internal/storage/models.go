package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an optimistic revision check fails because
// another writer committed first.
var ErrConflict = errors.New("revision conflict")

// ContentRecord is the generated state kept for one presentation.
// Nil pointers mean "absent".
type ContentRecord struct {
	StaticInfo     *string    `json:"static_info,omitempty"`
	FeedbackDigest *string    `json:"feedback_digest,omitempty"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`

	ProcessingScheduled bool       `json:"processing_scheduled"`
	NextProcessingTime  *time.Time `json:"next_processing_time,omitempty"`

	LastErrorMessage *string    `json:"last_error_message,omitempty"`
	LastErrorTime    *time.Time `json:"last_error_time,omitempty"`
	RetryAfter       *time.Time `json:"retry_after,omitempty"`
	FailedContext    *string    `json:"failed_context,omitempty"`

	RebuildPending bool  `json:"rebuild_pending"`
	Revision       int64 `json:"revision"`
}

// HasError reports whether a failure is recorded and not yet cleared.
func (r ContentRecord) HasError() bool {
	return r.LastErrorMessage != nil
}

type Presentation struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Context          string     `json:"context"`
	Content          string     `json:"content"`
	AccessCode       string     `json:"access_code"`
	Owner            string     `json:"owner"`
	CreatedAt        time.Time  `json:"created_at"`
	FeedbackDisabled bool       `json:"feedback_disabled"`
	LiveInfoVisible  bool       `json:"live_info_visible"`
	Deleted          bool       `json:"deleted"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`

	ContentRecord
}

type Feedback struct {
	ID             string     `json:"id"`
	PresentationID string     `json:"presentation_id"`
	Content        string     `json:"content"`
	Participant    *string    `json:"participant,omitempty"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	Processed      bool       `json:"processed"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// PresentationUpdate lists the authored fields an edit may change.
// Nil fields are left untouched.
type PresentationUpdate struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Context          *string `json:"context,omitempty"`
	Content          *string `json:"content,omitempty"`
	FeedbackDisabled *bool   `json:"feedback_disabled,omitempty"`
	LiveInfoVisible  *bool   `json:"live_info_visible,omitempty"`
}

// Failure is the error/retry state written after a failed generation pass.
type Failure struct {
	Message       string
	At            time.Time
	RetryAfter    time.Time
	FailedContext string
}
