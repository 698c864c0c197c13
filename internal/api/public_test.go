package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/presentation"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 10)
	rr := env.do(authReq(http.MethodGet, "/health", "", ""))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestPublicPage(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "Go at scale", Description: "Lessons"})

	rr := env.do(authReq(http.MethodGet, "/p/"+p.AccessCode, "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var page presentation.Page
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Title != "Go at scale" || page.Description != "Lessons" || !page.FeedbackEnabled {
		t.Errorf("page = %+v", page)
	}
	if page.LiveInfo != nil {
		t.Error("live info present before any feedback was processed")
	}

	rr = env.do(authReq(http.MethodGet, "/p/unknown", "", ""))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown code status = %d", rr.Code)
	}
}

func TestSubmitFeedback(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})

	rr := env.do(authReq(http.MethodPost, "/p/"+p.AccessCode+"/feedback", `{"content":"  What about generics? ","participant":"Ann"}`, ""))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var ack feedback.Ack
	json.Unmarshal(rr.Body.Bytes(), &ack)
	if ack.Status != "queued" || ack.FeedbackID == "" || ack.NextUpdate.IsZero() {
		t.Errorf("ack = %+v", ack)
	}

	items, _ := env.store.ListFeedback(p.ID, 10, 0)
	if len(items) != 1 || items[0].Content != "What about generics?" || items[0].Participant == nil || *items[0].Participant != "Ann" {
		t.Errorf("stored = %+v", items)
	}
	if e, ok := env.queue.Get(p.ID); !ok || !e.NextProcessingTime.Equal(ack.NextUpdate) {
		t.Errorf("queue entry = %+v, %v", e, ok)
	}
}

func TestSubmitFeedback_Rejections(t *testing.T) {
	env := newTestEnv(t, 10)
	open := env.create(t, presentation.Draft{Title: "open"})
	closed := env.create(t, presentation.Draft{Title: "closed", FeedbackDisabled: true})

	cases := []struct {
		name string
		code string
		body string
		want int
	}{
		{"empty content", open.AccessCode, `{"content":"   "}`, http.StatusBadRequest},
		{"too long", open.AccessCode, `{"content":"` + strings.Repeat("x", 501) + `"}`, http.StatusBadRequest},
		{"long name", open.AccessCode, `{"content":"ok","participant":"` + strings.Repeat("n", 101) + `"}`, http.StatusBadRequest},
		{"bad json", open.AccessCode, `{`, http.StatusBadRequest},
		{"disabled", closed.AccessCode, `{"content":"hi"}`, http.StatusForbidden},
		{"unknown code", "zzzzzzzz", `{"content":"hi"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(authReq(http.MethodPost, "/p/"+tc.code+"/feedback", tc.body, ""))
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}

	n, _ := env.store.CountUnprocessedFeedback(open.ID)
	if n != 0 {
		t.Errorf("rejected submissions stored %d items", n)
	}
}

func TestPublicStatus_HidesErrors(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})
	env.deps.Feedback.Submit(context.Background(), feedback.SubmitRequest{PresentationID: p.ID, Content: "q"})
	env.gen.fail(errors.New("secret upstream detail"))
	env.deps.Feedback.RetryNow(context.Background(), "owner", p.ID)

	rr := env.do(authReq(http.MethodGet, "/p/"+p.AccessCode+"/status", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret upstream detail") {
		t.Error("public status exposes error details")
	}
	var st publicStatus
	json.Unmarshal(rr.Body.Bytes(), &st)
	if !st.Scheduled || st.NextUpdate == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestPublicPage_AfterProcessing(t *testing.T) {
	env := newTestEnv(t, 10)
	p := env.create(t, presentation.Draft{Title: "T"})
	env.do(authReq(http.MethodPost, "/p/"+p.AccessCode+"/feedback", `{"content":"great talk"}`, ""))
	if _, err := env.deps.Feedback.RetryNow(context.Background(), "owner", p.ID); err != nil {
		t.Fatal(err)
	}

	rr := env.do(authReq(http.MethodGet, "/p/"+p.AccessCode, "", ""))
	var page presentation.Page
	json.Unmarshal(rr.Body.Bytes(), &page)
	if page.LiveInfo == nil || *page.LiveInfo != "## Live\n- point" || page.LastUpdated == nil {
		t.Errorf("page = %+v", page)
	}
	if page.Scheduled {
		t.Error("page still scheduled after processing everything")
	}
}
