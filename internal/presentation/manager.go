// Package presentation manages authored presentations: creation, edits,
// logical deletion, the generated background section and the public page.
package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/podium/internal/generation"
	"github.com/kalambet/podium/internal/ratelimit"
	"github.com/kalambet/podium/internal/storage"
)

const (
	accessCodeLength = 8
	maxCodeAttempts  = 5
	defaultTimeout   = 30 * time.Second
	maxTitleLength   = 200
)

var (
	// ErrGenerationUnavailable is returned when no generation backend is configured.
	ErrGenerationUnavailable = errors.New("no generation backend configured")
	// ErrInvalidDraft is returned for drafts that cannot be saved.
	ErrInvalidDraft = errors.New("invalid presentation")
	// ErrGenerationFailed wraps backend errors and malformed output.
	ErrGenerationFailed = errors.New("generation failed")
)

// Draft is the authored material of a presentation.
type Draft struct {
	Title            string `json:"title" yaml:"title"`
	Description      string `json:"description" yaml:"description"`
	Context          string `json:"context" yaml:"context"`
	Content          string `json:"content" yaml:"content"`
	FeedbackDisabled bool   `json:"feedback_disabled" yaml:"feedback_disabled"`
	LiveInfoVisible  *bool  `json:"live_info_visible,omitempty" yaml:"live_info_visible,omitempty"`
}

// Page is what the audience sees for an access code.
type Page struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StaticInfo      *string    `json:"static_info,omitempty"`
	LiveInfo        *string    `json:"live_info,omitempty"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
	Scheduled       bool       `json:"scheduled"`
	NextUpdate      *time.Time `json:"next_update,omitempty"`
	FeedbackEnabled bool       `json:"feedback_enabled"`
}

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	Timeout   time.Duration
	MaxTokens int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager owns presentation CRUD and the static background section.
// gen may be nil, in which case static info and previews are unavailable.
type Manager struct {
	store   *storage.Store
	gen     generation.Generator
	limiter *ratelimit.Limiter
	opts    Options
	logger  *slog.Logger
}

func NewManager(store *storage.Store, gen generation.Generator, limiter *ratelimit.Limiter, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = generation.DefaultMaxTokens
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{store: store, gen: gen, limiter: limiter, opts: opts, logger: opts.Logger}
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidDraft)
	}
	if len([]rune(title)) > maxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrInvalidDraft, maxTitleLength)
	}
	return nil
}

// Create stores a new presentation under owner with a fresh access code and
// then tries to generate its background section. A generation failure does
// not fail the create; the section can be refreshed later.
func (m *Manager) Create(ctx context.Context, owner string, d Draft) (storage.Presentation, error) {
	if err := validateTitle(d.Title); err != nil {
		return storage.Presentation{}, err
	}
	visible := true
	if d.LiveInfoVisible != nil {
		visible = *d.LiveInfoVisible
	}

	p := storage.Presentation{
		ID:               uuid.New().String(),
		Title:            strings.TrimSpace(d.Title),
		Description:      d.Description,
		Context:          d.Context,
		Content:          d.Content,
		Owner:            owner,
		CreatedAt:        m.opts.Now().UTC(),
		FeedbackDisabled: d.FeedbackDisabled,
		LiveInfoVisible:  visible,
	}

	var err error
	for range maxCodeAttempts {
		p.AccessCode = newAccessCode()
		if err = m.store.CreatePresentation(p); err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return storage.Presentation{}, fmt.Errorf("creating presentation: %w", err)
		}
	}
	if err != nil {
		return storage.Presentation{}, fmt.Errorf("allocating access code: %w", err)
	}
	m.logger.Info("presentation created", "presentation_id", p.ID, "owner", owner)

	if m.gen != nil {
		if _, err := m.RefreshStaticInfo(ctx, owner, p.ID); err != nil {
			m.logger.Warn("static info not generated", "presentation_id", p.ID, "error", err)
		}
	}
	return m.store.GetPresentation(p.ID)
}

// newAccessCode returns a short lowercase code for public URLs.
func newAccessCode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:accessCodeLength]
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (m *Manager) Get(id string) (storage.Presentation, error) {
	return m.store.GetPresentation(id)
}

func (m *Manager) List(owner string, limit, offset int) ([]storage.Presentation, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.store.ListPresentations(owner, limit, offset)
}

// Update applies an edit. Changing authored material regenerates the
// background section; toggles alone do not.
func (m *Manager) Update(ctx context.Context, actor, id string, u storage.PresentationUpdate) (storage.Presentation, error) {
	if u.Title != nil {
		if err := validateTitle(*u.Title); err != nil {
			return storage.Presentation{}, err
		}
		t := strings.TrimSpace(*u.Title)
		u.Title = &t
	}
	if err := m.store.UpdatePresentation(id, u); err != nil {
		return storage.Presentation{}, fmt.Errorf("updating presentation: %w", err)
	}

	if m.gen != nil && (u.Title != nil || u.Description != nil || u.Context != nil || u.Content != nil) {
		if _, err := m.RefreshStaticInfo(ctx, actor, id); err != nil {
			m.logger.Warn("static info not regenerated", "presentation_id", id, "error", err)
		}
	}
	return m.store.GetPresentation(id)
}

// Delete hides a presentation. Its feedback and generated content are kept,
// and the worker drops any pending queue entry.
func (m *Manager) Delete(id string) error {
	if err := m.store.DeletePresentation(id, m.opts.Now().UTC()); err != nil {
		return fmt.Errorf("deleting presentation: %w", err)
	}
	m.logger.Info("presentation deleted", "presentation_id", id)
	return nil
}

// RefreshStaticInfo regenerates the background section from the authored
// material. It is rate limited per actor. On failure the previous section
// stays in place.
func (m *Manager) RefreshStaticInfo(ctx context.Context, actor, id string) (string, error) {
	if m.gen == nil {
		return "", ErrGenerationUnavailable
	}
	p, err := m.store.GetPresentation(id)
	if err != nil {
		return "", err
	}
	if !m.limiter.Allow(actor) {
		return "", ratelimit.ErrRateLimited
	}

	text, err := m.generate(ctx, StaticPrompt(Draft{
		Title: p.Title, Description: p.Description, Context: p.Context, Content: p.Content,
	}, m.opts.MaxTokens))
	if err != nil {
		return "", err
	}
	if err := m.store.SetStaticInfo(id, text); err != nil {
		return "", fmt.Errorf("storing static info: %w", err)
	}
	return text, nil
}

// Preview renders the background section for a draft without saving it.
func (m *Manager) Preview(ctx context.Context, actor string, d Draft) (string, error) {
	if m.gen == nil {
		return "", ErrGenerationUnavailable
	}
	if err := validateTitle(d.Title); err != nil {
		return "", err
	}
	if !m.limiter.Allow(actor) {
		return "", ratelimit.ErrRateLimited
	}
	return m.generate(ctx, StaticPrompt(d, m.opts.MaxTokens))
}

func (m *Manager) generate(ctx context.Context, req generation.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	out, err := m.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	out = generation.CleanOutput(out)
	if out == "" {
		return "", fmt.Errorf("%w: generator returned an empty response", ErrGenerationFailed)
	}
	return out, nil
}

// PublicPage projects a presentation for the audience. The live section is
// omitted when the presenter hid it.
func (m *Manager) PublicPage(code string) (Page, string, error) {
	p, err := m.store.GetPresentationByAccessCode(code)
	if err != nil {
		return Page{}, "", err
	}
	page := Page{
		Title:           p.Title,
		Description:     p.Description,
		StaticInfo:      p.StaticInfo,
		LastUpdated:     p.LastUpdated,
		Scheduled:       p.ProcessingScheduled,
		NextUpdate:      p.NextProcessingTime,
		FeedbackEnabled: !p.FeedbackDisabled,
	}
	if p.LiveInfoVisible {
		page.LiveInfo = p.FeedbackDigest
	}
	return page, p.ID, nil
}

const staticSystemPrompt = `You write the background section of a presentation's information page in Markdown.
Use headings, lists and emphasis for a clear structure.
Only state facts supported by the material you are given.
Return the section and nothing else.`

// StaticPrompt builds the request for the background section.
func StaticPrompt(d Draft, maxTokens int) generation.Request {
	var sb strings.Builder
	sb.WriteString("Write a well-structured information page for this presentation.\n\n")
	sb.WriteString("# Title\n")
	sb.WriteString(strings.TrimSpace(d.Title))
	sb.WriteString("\n")
	if s := strings.TrimSpace(d.Description); s != "" {
		sb.WriteString("\n# Description\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if s := strings.TrimSpace(d.Context); s != "" {
		sb.WriteString("\n# Context\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if s := strings.TrimSpace(d.Content); s != "" {
		sb.WriteString("\n# Main content\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return generation.Request{System: staticSystemPrompt, Prompt: sb.String(), MaxTokens: maxTokens}
}
