package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/podium/internal/importer"
	"github.com/kalambet/podium/internal/presentation"
	"github.com/kalambet/podium/internal/storage"
)

const maxImportBodySize = importer.MaxBytes*4/3 + 1024 // base64 PDF plus envelope

func mountAdmin(r chi.Router, deps Deps) {
	r.Post("/presentations", handleCreatePresentation(deps))
	r.Get("/presentations", handleListPresentations(deps))
	r.Get("/presentations/{id}", handleGetPresentation(deps))
	r.Patch("/presentations/{id}", handleUpdatePresentation(deps))
	r.Delete("/presentations/{id}", handleDeletePresentation(deps))
	r.Get("/presentations/{id}/feedback", handleListFeedback(deps))
	r.Get("/presentations/{id}/status", handleStatus(deps))
	r.Post("/presentations/{id}/retry", handleRetry(deps))
	r.Post("/presentations/{id}/reset", handleReset(deps))
	r.Post("/presentations/{id}/static", handleRefreshStatic(deps))
	r.Post("/presentations/{id}/import", handleImport(deps))
	r.Post("/preview", handlePreview(deps))
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleCreatePresentation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d presentation.Draft
		if !decodeBody(w, r, maxRequestBodySize, &d) {
			return
		}
		p, err := deps.Presentations.Create(r.Context(), actor(r), d)
		if err != nil {
			writeError(w, err, "create presentation")
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleListPresentations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		list, err := deps.Presentations.List(r.URL.Query().Get("owner"), limit, offset)
		if err != nil {
			writeError(w, err, "list presentations")
			return
		}
		if list == nil {
			list = []storage.Presentation{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetPresentation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Presentations.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "get presentation")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdatePresentation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u storage.PresentationUpdate
		if !decodeBody(w, r, maxRequestBodySize, &u) {
			return
		}
		p, err := deps.Presentations.Update(r.Context(), actor(r), chi.URLParam(r, "id"), u)
		if err != nil {
			writeError(w, err, "update presentation")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleDeletePresentation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Presentations.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, err, "delete presentation")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		items, err := deps.Feedback.List(chi.URLParam(r, "id"), limit, offset)
		if err != nil {
			writeError(w, err, "list feedback")
			return
		}
		if items == nil {
			items = []storage.Feedback{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Feedback.Status(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "load status")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleRetry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Feedback.RetryNow(r.Context(), actor(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "retry processing")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": res.String()})
	}
}

func handleReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Feedback.Reset(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "reset processing")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "items": n})
	}
}

func handleRefreshStatic(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := deps.Presentations.RefreshStaticInfo(r.Context(), actor(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "refresh static info")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"static_info": text})
	}
}

func handlePreview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d presentation.Draft
		if !decodeBody(w, r, maxRequestBodySize, &d) {
			return
		}
		text, err := deps.Presentations.Preview(r.Context(), actor(r), d)
		if err != nil {
			writeError(w, err, "render preview")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"static_info": text})
	}
}

// ImportRequest replaces a presentation's main content with text extracted
// from a web page or a base64-encoded PDF.
type ImportRequest struct {
	URL string `json:"url,omitempty"`
	PDF string `json:"pdf,omitempty"`
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req ImportRequest
		if !decodeBody(w, r, maxImportBodySize, &req) {
			return
		}
		if _, err := deps.Presentations.Get(id); err != nil {
			writeError(w, err, "get presentation")
			return
		}

		var doc importer.Document
		var err error
		switch {
		case req.URL != "":
			doc, err = importer.FetchURL(r.Context(), deps.HTTPClient, req.URL)
			if err != nil && !errors.Is(err, importer.ErrEmpty) {
				httpError(w, http.StatusBadGateway, "api_error", "failed to import url: %v", err)
				return
			}
		case req.PDF != "":
			data, decErr := base64.StdEncoding.DecodeString(req.PDF)
			if decErr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 pdf")
				return
			}
			if !bytes.HasPrefix(data, []byte("%PDF")) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pdf does not look like a PDF document")
				return
			}
			doc, err = importer.FromPDF(data)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of url or pdf is required")
			return
		}
		if err != nil {
			writeError(w, err, "import document")
			return
		}

		p, err := deps.Presentations.Update(r.Context(), actor(r), id, storage.PresentationUpdate{Content: &doc.Text})
		if err != nil {
			writeError(w, err, "update presentation")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
