package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding presentations, their generated
// content records and audience feedback.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "podium.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Presentations ---

const presentationColumns = `id, title, description, context, content, access_code, owner, created_at,
	feedback_disabled, live_info_visible, is_deleted, deleted_at,
	static_info, feedback_digest, last_updated, processing_scheduled, next_processing_time,
	last_error_message, last_error_time, retry_after, failed_context, rebuild_pending, revision`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPresentation(row rowScanner) (Presentation, error) {
	var p Presentation
	var createdAt string
	var deletedAt, staticInfo, digest, lastUpdated, nextTime sql.NullString
	var lastErr, lastErrTime, retryAfter, failedCtx sql.NullString

	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Context, &p.Content, &p.AccessCode, &p.Owner, &createdAt,
		&p.FeedbackDisabled, &p.LiveInfoVisible, &p.Deleted, &deletedAt,
		&staticInfo, &digest, &lastUpdated, &p.ProcessingScheduled, &nextTime,
		&lastErr, &lastErrTime, &retryAfter, &failedCtx, &p.RebuildPending, &p.Revision,
	)
	if err != nil {
		return Presentation{}, err
	}

	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Presentation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	p.StaticInfo = stringPtr(staticInfo)
	p.FeedbackDigest = stringPtr(digest)
	p.LastErrorMessage = stringPtr(lastErr)
	p.FailedContext = stringPtr(failedCtx)

	for _, f := range []struct {
		name string
		src  sql.NullString
		dst  **time.Time
	}{
		{"deleted_at", deletedAt, &p.DeletedAt},
		{"last_updated", lastUpdated, &p.LastUpdated},
		{"next_processing_time", nextTime, &p.NextProcessingTime},
		{"last_error_time", lastErrTime, &p.LastErrorTime},
		{"retry_after", retryAfter, &p.RetryAfter},
	} {
		t, err := parseNullTime(f.src)
		if err != nil {
			return Presentation{}, fmt.Errorf("parsing %s: %w", f.name, err)
		}
		*f.dst = t
	}
	return p, nil
}

func (s *Store) CreatePresentation(p Presentation) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO presentations (id, title, description, context, content, access_code, owner, created_at,
			feedback_disabled, live_info_visible, static_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Context, p.Content, p.AccessCode, p.Owner, formatTime(createdAt),
		p.FeedbackDisabled, p.LiveInfoVisible, nullString(p.StaticInfo),
	)
	return err
}

// GetPresentation returns a live presentation. Logically deleted rows are
// reported as ErrNotFound.
func (s *Store) GetPresentation(id string) (Presentation, error) {
	p, err := s.GetPresentationAny(id)
	if err != nil {
		return Presentation{}, err
	}
	if p.Deleted {
		return Presentation{}, ErrNotFound
	}
	return p, nil
}

// GetPresentationAny returns a presentation including logically deleted ones.
// Only the worker and diagnostics should need this.
func (s *Store) GetPresentationAny(id string) (Presentation, error) {
	p, err := scanPresentation(s.db.QueryRow(`SELECT `+presentationColumns+` FROM presentations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Presentation{}, ErrNotFound
	}
	return p, err
}

func (s *Store) GetPresentationByAccessCode(code string) (Presentation, error) {
	p, err := scanPresentation(s.db.QueryRow(
		`SELECT `+presentationColumns+` FROM presentations WHERE access_code = ? AND is_deleted = 0`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return Presentation{}, ErrNotFound
	}
	return p, err
}

// ListPresentations returns live presentations, newest first. An empty owner
// lists all owners.
func (s *Store) ListPresentations(owner string, limit, offset int) ([]Presentation, error) {
	query := `SELECT ` + presentationColumns + ` FROM presentations WHERE is_deleted = 0`
	args := []any{}
	if owner != "" {
		query += ` AND owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Presentation
	for rows.Next() {
		p, err := scanPresentation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *Store) UpdatePresentation(id string, u PresentationUpdate) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Context != nil {
		add("context", *u.Context)
	}
	if u.Content != nil {
		add("content", *u.Content)
	}
	if u.FeedbackDisabled != nil {
		add("feedback_disabled", *u.FeedbackDisabled)
	}
	if u.LiveInfoVisible != nil {
		add("live_info_visible", *u.LiveInfoVisible)
	}
	if len(sets) == 0 {
		_, err := s.GetPresentation(id)
		return err
	}

	args = append(args, id)
	res, err := s.db.Exec(`UPDATE presentations SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`, args...)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DeletePresentation marks a presentation deleted. The row and its feedback
// stay in place.
func (s *Store) DeletePresentation(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE presentations SET is_deleted = 1, deleted_at = ? WHERE id = ? AND is_deleted = 0`,
		formatTime(at), id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) SetStaticInfo(id, text string) error {
	res, err := s.db.Exec(`UPDATE presentations SET static_info = ? WHERE id = ? AND is_deleted = 0`, text, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SetProcessingSchedule updates the externally visible copy of a queue entry.
// A nil next clears next_processing_time.
func (s *Store) SetProcessingSchedule(id string, scheduled bool, next *time.Time) error {
	_, err := s.db.Exec(`UPDATE presentations SET processing_scheduled = ?, next_processing_time = ? WHERE id = ?`,
		scheduled, nullTime(next), id)
	return err
}

// ClearProcessingSchedules resets the stored schedule of every presentation
// not in keep. It returns the number of rows changed.
func (s *Store) ClearProcessingSchedules(keep []string) (int, error) {
	query := `UPDATE presentations SET processing_scheduled = 0, next_processing_time = NULL
		WHERE (processing_scheduled = 1 OR next_processing_time IS NOT NULL)`
	args := make([]any, len(keep))
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for i, id := range keep {
			args[i] = id
		}
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListPendingPresentationIDs returns live presentations that still have
// unprocessed feedback or an unresolved failure.
func (s *Store) ListPendingPresentationIDs() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT p.id FROM presentations p
		WHERE p.is_deleted = 0 AND (
			p.retry_after IS NOT NULL OR
			EXISTS (SELECT 1 FROM feedback f WHERE f.presentation_id = p.id AND f.is_processed = 0)
		)
		ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Content record transitions ---

// DigestCommit is the result of a successful synchronization pass.
type DigestCommit struct {
	PresentationID string
	Revision       int64 // revision observed when the pass started
	FeedbackIDs    []string
	Digest         string
	At             time.Time
}

// CommitDigest atomically marks the included feedback processed, replaces
// the digest and clears the error/retry fields. If the record changed since
// c.Revision was read, nothing is written and ErrConflict is returned.
func (s *Store) CommitDigest(c DigestCommit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback()

	at := formatTime(c.At)
	res, err := tx.Exec(`
		UPDATE presentations SET
			feedback_digest = ?, last_updated = ?,
			last_error_message = NULL, last_error_time = NULL, retry_after = NULL, failed_context = NULL,
			rebuild_pending = 0, revision = revision + 1
		WHERE id = ? AND revision = ? AND is_deleted = 0`,
		c.Digest, at, c.PresentationID, c.Revision,
	)
	if err != nil {
		return fmt.Errorf("updating digest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var deleted bool
		err := tx.QueryRow(`SELECT is_deleted FROM presentations WHERE id = ?`, c.PresentationID).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}

	for _, id := range c.FeedbackIDs {
		if _, err := tx.Exec(`UPDATE feedback SET is_processed = 1, processed_at = ?
			WHERE id = ? AND presentation_id = ? AND is_processed = 0`, at, id, c.PresentationID); err != nil {
			return fmt.Errorf("marking feedback %s processed: %w", id, err)
		}
	}

	return tx.Commit()
}

// RecordFailure writes error/retry state for a presentation. build receives
// the row as read inside the transaction, so the snapshot it returns reflects
// the content before the failed pass.
func (s *Store) RecordFailure(id string, build func(Presentation) Failure) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning failure transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPresentation(tx.QueryRow(`SELECT `+presentationColumns+` FROM presentations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if p.Deleted {
		return ErrNotFound
	}

	f := build(p)
	if _, err := tx.Exec(`
		UPDATE presentations SET last_error_message = ?, last_error_time = ?, retry_after = ?, failed_context = ?
		WHERE id = ?`,
		f.Message, formatTime(f.At), formatTime(f.RetryAfter), f.FailedContext, id,
	); err != nil {
		return fmt.Errorf("writing failure: %w", err)
	}
	return tx.Commit()
}

// --- Feedback ---

func (s *Store) CreateFeedback(f Feedback) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, presentation_id, content, participant, submitted_at, is_processed)
		VALUES (?, ?, ?, ?, ?, 0)`,
		f.ID, f.PresentationID, f.Content, nullString(f.Participant), formatTime(f.SubmittedAt),
	)
	return err
}

const feedbackColumns = `id, presentation_id, content, participant, submitted_at, is_processed, processed_at`

func scanFeedback(row rowScanner) (Feedback, error) {
	var f Feedback
	var participant, processedAt sql.NullString
	var submittedAt string
	if err := row.Scan(&f.ID, &f.PresentationID, &f.Content, &participant, &submittedAt, &f.Processed, &processedAt); err != nil {
		return Feedback{}, err
	}
	var err error
	if f.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return Feedback{}, fmt.Errorf("parsing submitted_at: %w", err)
	}
	if f.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return Feedback{}, fmt.Errorf("parsing processed_at: %w", err)
	}
	f.Participant = stringPtr(participant)
	return f, nil
}

func (s *Store) queryFeedback(query string, args ...any) ([]Feedback, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// ListUnprocessedFeedback returns unprocessed items in submission order.
func (s *Store) ListUnprocessedFeedback(presentationID string) ([]Feedback, error) {
	return s.queryFeedback(`SELECT `+feedbackColumns+` FROM feedback
		WHERE presentation_id = ? AND is_processed = 0
		ORDER BY submitted_at ASC, id ASC`, presentationID)
}

// ListFeedback returns all items for a presentation, newest first.
func (s *Store) ListFeedback(presentationID string, limit, offset int) ([]Feedback, error) {
	return s.queryFeedback(`SELECT `+feedbackColumns+` FROM feedback
		WHERE presentation_id = ?
		ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`, presentationID, limit, offset)
}

func (s *Store) CountUnprocessedFeedback(presentationID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback WHERE presentation_id = ? AND is_processed = 0`,
		presentationID).Scan(&n)
	return n, err
}

// MarkFeedbackProcessed flags the given items. Already processed items are
// left untouched.
func (s *Store) MarkFeedbackProcessed(ids []string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE feedback SET is_processed = 1, processed_at = ? WHERE id = ? AND is_processed = 0`,
			formatTime(at), id); err != nil {
			return fmt.Errorf("marking feedback %s processed: %w", id, err)
		}
	}
	return tx.Commit()
}

// ResetFeedback flips every item of a presentation back to unprocessed and
// flags the record for a full rebuild. The revision bump makes any pass that
// is already running fail its commit.
func (s *Store) ResetFeedback(presentationID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE presentations SET rebuild_pending = 1, revision = revision + 1
		WHERE id = ? AND is_deleted = 0`, presentationID)
	if err != nil {
		return 0, err
	}
	if err := expectOneRow(res); err != nil {
		return 0, err
	}

	res, err = tx.Exec(`UPDATE feedback SET is_processed = 0, processed_at = NULL WHERE presentation_id = ?`, presentationID)
	if err != nil {
		return 0, fmt.Errorf("resetting feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// --- helpers ---

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically in time
// order. RFC3339Nano drops trailing zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts the variable-width RFC3339 form.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
