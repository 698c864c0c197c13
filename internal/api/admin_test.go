package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/podium/internal/batch"
	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/generation"
	"github.com/kalambet/podium/internal/presentation"
	"github.com/kalambet/podium/internal/ratelimit"
	"github.com/kalambet/podium/internal/schedule"
	"github.com/kalambet/podium/internal/storage"
)

const testToken = "test-token-12345"

type mockGenerator struct {
	mu     sync.Mutex
	output string
	err    error
	calls  int
}

func (g *mockGenerator) Generate(_ context.Context, _ generation.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

func (g *mockGenerator) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type testEnv struct {
	handler http.Handler
	deps    Deps
	store   *storage.Store
	queue   *schedule.Queue
	gen     *mockGenerator
}

// newTestEnv wires the real services over an in-memory store. The manager
// has no generator so creating presentations does not consume rate limit.
func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	queue := schedule.NewQueue(10 * time.Second)
	gen := &mockGenerator{output: "## Live\n- point"}
	syncer := contentsync.New(store, queue, gen, contentsync.Options{})
	worker := batch.NewWorker(queue, store, syncer, batch.Options{})
	limiter := ratelimit.New(limit, time.Hour)

	deps := Deps{
		Presentations: presentation.NewManager(store, nil, limiter, presentation.Options{}),
		Feedback:      feedback.New(store, queue, syncer, worker, limiter, feedback.Options{}),
		Token:         testToken,
		HTTPClient:    http.DefaultClient,
	}
	return &testEnv{handler: NewRouter(deps), deps: deps, store: store, queue: queue, gen: gen}
}

func (e *testEnv) create(t *testing.T, d presentation.Draft) storage.Presentation {
	t.Helper()
	p, err := e.deps.Presentations.Create(context.Background(), "owner", d)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Type
}

func TestAuth_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t, 10)

	for _, token := range []string{"", "wrong"} {
		rr := env.do(authReq(http.MethodGet, "/presentations", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
		if got := errorType(t, rr); got != "authentication_error" {
			t.Errorf("error type = %q", got)
		}
	}
}

func TestCreateAndGetPresentation(t *testing.T) {
	env := newTestEnv(t, 10)

	req := authReq(http.MethodPost, "/presentations", `{"title":"Go at scale","description":"d","content":"slides"}`, testToken)
	req.Header.Set(ActorHeader, "alice")
	rr := env.do(req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created storage.Presentation
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Owner != "alice" || created.AccessCode == "" || !created.LiveInfoVisible {
		t.Errorf("created = %+v", created)
	}

	rr = env.do(authReq(http.MethodGet, "/presentations/"+created.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got storage.Presentation
	json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Title != "Go at scale" || got.Content != "slides" {
		t.Errorf("got = %+v", got)
	}

	rr = env.do(authReq(http.MethodGet, "/presentations?owner=alice", "", testToken))
	var list []storage.Presentation
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("list len = %d, want 1", len(list))
	}
}

func TestCreatePresentation_Invalid(t *testing.T) {
	env := newTestEnv(t, 10)

	rr := env.do(authReq(http.MethodPost, "/presentations", `{"title":"  "}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty title status = %d", rr.Code)
	}
	rr = env.do(authReq(http.MethodPost, "/presentations", `{not json`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rr.Code)
	}
}

func TestGetPresentation_NotFound(t *testing.T) {
	env := newTestEnv(t, 10)

	rr := env.do(authReq(http.MethodGet, "/presentations/nope", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if got := errorType(t, rr); got != "not_found" {
		t.Errorf("error type = %q", got)
	}
}

func TestUpdateAndDeletePresentation(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})

	rr := env.do(authReq(http.MethodPatch, "/presentations/"+p.ID, `{"description":"new","feedback_disabled":true}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got storage.Presentation
	json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Description != "new" || !got.FeedbackDisabled || got.Title != "T" {
		t.Errorf("updated = %+v", got)
	}

	rr = env.do(authReq(http.MethodDelete, "/presentations/"+p.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(authReq(http.MethodGet, "/presentations/"+p.ID, "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rr.Code)
	}
	rr = env.do(authReq(http.MethodDelete, "/presentations/"+p.ID, "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rr.Code)
	}
}

func TestRetry_UpdatesLivePage(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})
	if _, err := env.deps.Feedback.Submit(context.Background(), feedback.SubmitRequest{PresentationID: p.ID, Content: "more examples please"}); err != nil {
		t.Fatal(err)
	}

	rr := env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/retry", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("retry status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["result"] != "updated" {
		t.Errorf("result = %q, want updated", body["result"])
	}

	got, _ := env.store.GetPresentation(p.ID)
	if got.FeedbackDigest == nil || *got.FeedbackDigest != "## Live\n- point" {
		t.Errorf("digest = %v", got.FeedbackDigest)
	}
	if _, ok := env.queue.Get(p.ID); ok {
		t.Error("queue entry kept after successful retry")
	}
}

func TestRetry_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})
	env.deps.Feedback.Submit(context.Background(), feedback.SubmitRequest{PresentationID: p.ID, Content: "q"})
	env.gen.fail(errors.New("upstream 503"))

	rr := env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/retry", "", testToken))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502; body = %s", rr.Code, rr.Body.String())
	}

	rr = env.do(authReq(http.MethodGet, "/presentations/"+p.ID+"/status", "", testToken))
	var st feedback.ProcessingStatus
	json.Unmarshal(rr.Body.Bytes(), &st)
	if st.LastError == nil || !strings.Contains(*st.LastError, "upstream 503") {
		t.Errorf("last error = %v", st.LastError)
	}
	if !st.Scheduled || st.Unprocessed != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestRetry_RateLimited(t *testing.T) {
	env := newTestEnv(t, 1)
	p := env.create(t, presentation.Draft{Title: "T"})

	rr := env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/retry", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("first retry status = %d", rr.Code)
	}
	rr = env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/retry", "", testToken))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second retry status = %d, want 429", rr.Code)
	}
	if got := errorType(t, rr); got != "rate_limit_error" {
		t.Errorf("error type = %q", got)
	}

	// Another actor has its own budget.
	req := authReq(http.MethodPost, "/presentations/"+p.ID+"/retry", "", testToken)
	req.Header.Set(ActorHeader, "bob")
	if rr := env.do(req); rr.Code != http.StatusOK {
		t.Errorf("other actor status = %d", rr.Code)
	}
}

func TestRetry_InProgress(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})

	if !env.queue.TryBegin(p.ID) {
		t.Fatal("TryBegin failed")
	}
	defer env.queue.End(p.ID)

	rr := env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/retry", "", testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})
	env.deps.Feedback.Submit(context.Background(), feedback.SubmitRequest{PresentationID: p.ID, Content: "a"})
	env.deps.Feedback.RetryNow(context.Background(), "owner", p.ID)

	rr := env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/reset", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Status string `json:"status"`
		Items  int    `json:"items"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Status != "queued" || body.Items != 1 {
		t.Errorf("body = %+v", body)
	}
	if _, ok := env.queue.Get(p.ID); !ok {
		t.Error("reset did not queue the presentation")
	}
}

func TestListFeedback(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})
	for i := range 3 {
		env.deps.Feedback.Submit(context.Background(), feedback.SubmitRequest{PresentationID: p.ID, Content: fmt.Sprintf("item %d", i)})
	}

	rr := env.do(authReq(http.MethodGet, "/presentations/"+p.ID+"/feedback?limit=2", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var items []storage.Feedback
	json.Unmarshal(rr.Body.Bytes(), &items)
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}

	rr = env.do(authReq(http.MethodGet, "/presentations/missing/feedback", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing presentation status = %d", rr.Code)
	}
}

func TestPreview_Unavailable(t *testing.T) {
	env := newTestEnv(t, 10)
	rr := env.do(authReq(http.MethodPost, "/preview", `{"title":"Draft"}`, testToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestPreview_WithGenerator(t *testing.T) {
	env := newTestEnv(t, 10)
	gen := &mockGenerator{output: "## About"}
	env.deps.Presentations = presentation.NewManager(env.store, gen, ratelimit.New(10, time.Hour), presentation.Options{})
	h := NewRouter(env.deps)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/preview", `{"title":"Draft"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["static_info"] != "## About" {
		t.Errorf("body = %v", body)
	}

	gen.fail(errors.New("boom"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/preview", `{"title":"Draft"}`, testToken))
	if rr.Code != http.StatusBadGateway {
		t.Errorf("failure status = %d, want 502", rr.Code)
	}
}

func TestImport_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Talk</h1><ul><li>Backpressure</li></ul></body></html>`)
	}))
	defer srv.Close()

	env := newTestEnv(t, 10)
	env.deps.HTTPClient = srv.Client()
	env.handler = NewRouter(env.deps)
	p := env.create(t, presentation.Draft{Title: "T"})

	rr := env.do(authReq(http.MethodPost, "/presentations/"+p.ID+"/import", `{"url":"`+srv.URL+`"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got storage.Presentation
	json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Content != "# Talk\n\n- Backpressure" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestImport_BadRequests(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"no source", "/presentations/" + p.ID + "/import", `{}`, http.StatusBadRequest},
		{"bad base64", "/presentations/" + p.ID + "/import", `{"pdf":"***"}`, http.StatusBadRequest},
		{"not a pdf", "/presentations/" + p.ID + "/import", `{"pdf":"` + base64.StdEncoding.EncodeToString([]byte("hello")) + `"}`, http.StatusBadRequest},
		{"unknown presentation", "/presentations/nope/import", `{"url":"http://example.invalid"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(authReq(http.MethodPost, tc.path, tc.body, testToken))
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}
