package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/presentation"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Presentations *presentation.Manager
	Feedback      *feedback.Service
	Token         string
	HTTPClient    *http.Client // for imports; nil uses the importer default
}

// NewRouter serves the public audience routes and, behind bearer auth, the
// management routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/p/{code}", handlePublicPage(deps))
	r.Post("/p/{code}/feedback", handleSubmitFeedback(deps))
	r.Get("/p/{code}/status", handlePublicStatus(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		mountAdmin(r, deps)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handlePublicPage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _, err := deps.Presentations.PublicPage(chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, err, "load page")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

type submitRequest struct {
	Content     string `json:"content"`
	Participant string `json:"participant"`
}

func handleSubmitFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, id, err := deps.Presentations.PublicPage(chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, err, "load page")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		ack, err := deps.Feedback.Submit(r.Context(), feedback.SubmitRequest{
			PresentationID: id,
			Content:        req.Content,
			Participant:    req.Participant,
		})
		if err != nil {
			writeError(w, err, "submit feedback")
			return
		}
		writeJSON(w, http.StatusAccepted, ack)
	}
}

// publicStatus leaves out error details, which are for the presenter only.
type publicStatus struct {
	Scheduled   bool       `json:"scheduled"`
	NextUpdate  *time.Time `json:"next_update,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

func handlePublicStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, id, err := deps.Presentations.PublicPage(chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, err, "load page")
			return
		}
		st, err := deps.Feedback.Status(id)
		if err != nil {
			writeError(w, err, "load status")
			return
		}
		writeJSON(w, http.StatusOK, publicStatus{
			Scheduled:   st.Scheduled,
			NextUpdate:  st.NextUpdate,
			LastUpdated: st.LastUpdated,
		})
	}
}
