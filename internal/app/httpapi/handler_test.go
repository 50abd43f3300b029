package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/habitsnap/core/internal/app"
	"github.com/habitsnap/core/internal/clock"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{Clock: clock.NewFake(t0)}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	srv := httptest.NewServer(NewHandler(application, nil))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func TestSnapActionFlow(t *testing.T) {
	srv := newServer(t)

	// One-sided action holds the streak at zero.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/snaps/actions", map[string]string{
		"sender_id": "alice", "receiver_id": "bob",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var result struct {
		CurrentStreak int  `json:"current_streak"`
		Increased     bool `json:"increased"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.CurrentStreak != 0 || result.Increased {
		t.Fatalf("result = %+v, want held at 0", result)
	}

	// The reply completes the exchange.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/snaps/actions", map[string]string{
		"sender_id": "bob", "receiver_id": "alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.CurrentStreak != 1 || !result.Increased {
		t.Fatalf("result = %+v, want streak 1", result)
	}
}

func TestSnapActionSelfPair(t *testing.T) {
	srv := newServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/snaps/actions", map[string]string{
		"sender_id": "alice", "receiver_id": "alice",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSnapActionRejectsUnknownFields(t *testing.T) {
	srv := newServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/snaps/actions", map[string]string{
		"sender_id": "alice", "receiver_id": "bob", "extra": "nope",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetPairStreak(t *testing.T) {
	srv := newServer(t)

	// Unknown pair is a 404, not an empty record.
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/pairs/alice/bob/streak", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, srv.URL+"/snaps/actions", map[string]string{
		"sender_id": "alice", "receiver_id": "bob",
	})

	// Order of path segments does not matter.
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/pairs/bob/alice/streak", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var rec struct {
		Low  string `json:"low_user_id"`
		High string `json:"high_user_id"`
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Low != "alice" || rec.High != "bob" {
		t.Fatalf("rec = %+v, want canonical order", rec)
	}
}

func TestHabitApprovalAndScore(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/habits", map[string]string{
		"user_id": "alice", "title": "run",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/habits/%s/approvals", srv.URL, created.ID), map[string]string{
		"user_id": "alice", "date": "2024-03-01",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approval status = %d, body %s", resp.StatusCode, body)
	}
	var delta struct {
		Points    int `json:"points"`
		NewScore  int `json:"new_score"`
		NewStreak int `json:"new_streak"`
	}
	if err := json.Unmarshal(body, &delta); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if delta.Points != 1 || delta.NewScore != 1 || delta.NewStreak != 1 {
		t.Fatalf("delta = %+v", delta)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/users/alice/score", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score status = %d", resp.StatusCode)
	}
	var profile struct {
		Score int `json:"score"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.Score != 1 {
		t.Fatalf("score = %d, want 1", profile.Score)
	}
}

func TestHabitApprovalUnknownHabit(t *testing.T) {
	srv := newServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/nope/approvals", map[string]string{
		"user_id": "alice", "date": "2024-03-01",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHabitApprovalBadDate(t *testing.T) {
	srv := newServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/habits/h1/approvals", map[string]string{
		"user_id": "alice", "date": "March 1st",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSweepRunEndpoint(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/habits", map[string]string{
		"user_id": "alice", "title": "run",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/sweep/runs", map[string]string{
		"as_of": "2024-03-01",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep status = %d, body %s", resp.StatusCode, body)
	}
	var report struct {
		Processed int `json:"processed"`
		Penalized int `json:"penalized"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Processed != 1 || report.Penalized != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestSendTallyEndpoints(t *testing.T) {
	srv := newServer(t)

	for want := 1; want <= 2; want++ {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/snaps/sends", map[string]string{
			"sender_id": "alice",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("send status = %d", resp.StatusCode)
		}
		var out map[string]int
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out["sent_count"] != want {
			t.Fatalf("sent_count = %d, want %d", out["sent_count"], want)
		}
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/users/alice/sends", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var out map[string]int
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["sent_count"] != 2 {
		t.Fatalf("sent_count = %d, want 2", out["sent_count"])
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/habits", map[string]string{
		"user_id": "alice", "title": "run",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/habits/%s/approvals", srv.URL, created.ID), map[string]string{
		"user_id": "alice", "date": "2024-03-01",
	})

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/leaderboard?limit=5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard status = %d", resp.StatusCode)
	}
	var entries []struct {
		UserID string `json:"user_id"`
		Score  int    `json:"score"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "alice" || entries[0].Score != 1 {
		t.Fatalf("entries = %+v", entries)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/leaderboard?limit=zero", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Fatalf("status = %q, want ok", out["status"])
	}
}
