package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/orchestrator"
)

// stubGateway answers every chat call with a canned draft. When block is
// non-nil, calls park on it (or the context) first, so tests can hold a run
// in flight.
type stubGateway struct {
	models []string
	block  chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *stubGateway) Call(ctx context.Context, model string, _ []gateway.Message, _ time.Duration) (gateway.Result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return gateway.Result{}, ctx.Err()
		}
	}
	return gateway.Result{Text: "draft from " + model, FinishReason: "stop", MS: 10}, nil
}

func (g *stubGateway) ListModels(context.Context) ([]string, error) {
	return g.models, nil
}

var speedyStack = []string{
	"openai/gpt-4o-mini",
	"x-ai/grok-4-fast",
	"meta-llama/llama-3.3-70b-instruct",
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func newTestServer(t *testing.T, gw gateway.Caller) (*Server, *httptest.Server, *artifact.Store) {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	coord, err := orchestrator.NewCoordinator(orchestrator.Options{
		Gateway: gw,
		Store:   store,
		Catalog: cocktail.Default(),
		Logger:  log.New(testWriter{t}, "[coordinator] ", 0),
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	srv := New(Config{Addr: ":0"}, coord)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts, store
}

func startRun(t *testing.T, ts *httptest.Server, query, cocktailName string) StartRunResponse {
	t.Helper()
	body, _ := json.Marshal(StartRunRequest{Query: query, Cocktail: cocktailName})
	resp, err := http.Post(ts.URL+"/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /runs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /runs: %d %s", resp.StatusCode, raw)
	}
	var out StartRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	return out
}

func getStatus(t *testing.T, ts *httptest.Server, runID string) map[string]any {
	t.Helper()
	resp, err := http.Get(ts.URL + "/runs/" + runID + "/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET status: %d %s", resp.StatusCode, raw)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return status
}

// pollUntilDone polls the status endpoint until completed or the deadline.
func pollUntilDone(t *testing.T, ts *httptest.Server, runID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status := getStatus(t, ts, runID)
		if done, _ := status["completed"].(bool); done {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not complete in time", runID)
	return nil
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body: %v", body)
	}
}

func TestStartRunAndPollToDelivery(t *testing.T) {
	_, ts, store := newTestServer(t, &stubGateway{models: speedyStack})

	started := startRun(t, ts, "what is the airspeed of an unladen swallow?", "SPEEDY")
	if !strings.HasPrefix(started.RunID, "api_speedy_") {
		t.Fatalf("run id: %q", started.RunID)
	}
	if started.Status != "accepted" {
		t.Fatalf("start status: %q", started.Status)
	}

	// The status endpoint must answer immediately after the 202.
	first := getStatus(t, ts, started.RunID)
	if first["run_id"] != started.RunID {
		t.Fatalf("first status: %v", first)
	}
	if _, ok := first["current_phase"].(string); !ok {
		t.Fatalf("first status missing current_phase: %v", first)
	}

	final := pollUntilDone(t, ts, started.RunID)
	if final["current_phase"] != orchestrator.PhaseDelivered {
		t.Fatalf("final status: %v", final)
	}
	if final["progress"].(float64) != 100 {
		t.Fatalf("progress: %v", final["progress"])
	}
	if running, ok := final["running"].(bool); !ok || running {
		t.Fatalf("running flag: %v", final["running"])
	}

	resp, err := http.Get(ts.URL + "/runs/" + started.RunID + "/artifacts")
	if err != nil {
		t.Fatalf("GET artifacts: %v", err)
	}
	defer resp.Body.Close()
	var list ArtifactListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode artifact list: %v", err)
	}
	have := make(map[string]bool, len(list.Files))
	for _, f := range list.Files {
		have[f] = true
	}
	for _, name := range orchestrator.RequiredArtifacts {
		if !have[name] {
			t.Fatalf("artifact list missing %s: %v", name, list.Files)
		}
	}

	resp2, err := http.Get(ts.URL + "/runs/" + started.RunID + "/artifacts/" + orchestrator.ArtifactUltra)
	if err != nil {
		t.Fatalf("GET ultra artifact: %v", err)
	}
	defer resp2.Body.Close()
	if ct := resp2.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type: %q", ct)
	}
	var ultra orchestrator.UltraRecord
	if err := json.NewDecoder(resp2.Body).Decode(&ultra); err != nil {
		t.Fatalf("decode ultra: %v", err)
	}
	if ultra.Round != "ULTRAI" || ultra.Text == "" {
		t.Fatalf("ultra: %+v", ultra)
	}

	if !store.Exists(started.RunID, orchestrator.ArtifactDelivery) {
		t.Fatalf("delivery artifact missing on disk")
	}
}

func TestStartRunValidation(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	cases := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"  ","cocktail":"SPEEDY"}`},
		{"unknown cocktail", `{"query":"q","cocktail":"NOPE"}`},
		{"malformed body", `{"query":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/runs", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST /runs: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status: %d", resp.StatusCode)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if errResp.Error == "" {
				t.Fatalf("empty error message")
			}
		})
	}
}

func TestStatusRejectsTraversalRunID(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	// Escaped slash keeps "../etc" in a single path segment; PathValue
	// decodes it back before the store sees it.
	resp, err := http.Get(ts.URL + "/runs/..%2Fetc/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("traversal run id: %d", resp.StatusCode)
	}
}

func TestStatusUnknownRun(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	resp, err := http.Get(ts.URL + "/runs/api_speedy_20990101_000000/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown run: %d", resp.StatusCode)
	}
}

func TestGetArtifactUnknownName(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	started := startRun(t, ts, "q", "SPEEDY")
	pollUntilDone(t, ts, started.RunID)

	resp, err := http.Get(ts.URL + "/runs/" + started.RunID + "/artifacts/nope.json")
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown artifact: %d", resp.StatusCode)
	}
}

func TestCancelRun(t *testing.T) {
	gw := &stubGateway{models: speedyStack, block: make(chan struct{})}
	_, ts, _ := newTestServer(t, gw)

	started := startRun(t, ts, "q", "SPEEDY")

	resp, err := http.Post(ts.URL+"/runs/"+started.RunID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("cancel: %d", resp.StatusCode)
	}

	final := pollUntilDone(t, ts, started.RunID)
	phase, _ := final["current_phase"].(string)
	if !strings.HasPrefix(phase, "FAILED") {
		t.Fatalf("phase after cancel: %q", phase)
	}
	if final["error"] == nil || final["error"] == "" {
		t.Fatalf("cancelled run should report an error: %v", final)
	}
}

func TestCancelUnknownRun(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	resp, err := http.Post(ts.URL+"/runs/nope/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel unknown: %d", resp.StatusCode)
	}
}

func TestCompletedRunEvictedFromRegistry(t *testing.T) {
	srv, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	started := startRun(t, ts, "q", "SPEEDY")
	pollUntilDone(t, ts, started.RunID)

	// A poll that observes the terminal result evicts the entry; the disk
	// write lands just before the registry result does, so allow a few polls.
	deadline := time.Now().Add(5 * time.Second)
	for srv.registry.Count() != 0 && time.Now().Before(deadline) {
		getStatus(t, ts, started.RunID)
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.registry.Count(); n != 0 {
		t.Fatalf("registry entries after completion: %d", n)
	}

	// Status keeps answering from disk after eviction.
	status := getStatus(t, ts, started.RunID)
	if done, _ := status["completed"].(bool); !done {
		t.Fatalf("status after eviction: %v", status)
	}
	if _, overlaid := status["running"]; overlaid {
		t.Fatalf("evicted run still overlaid with registry state: %v", status)
	}
}

func TestConcurrentRunsGetDistinctIDs(t *testing.T) {
	_, ts, _ := newTestServer(t, &stubGateway{models: speedyStack})

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		started := startRun(t, ts, fmt.Sprintf("query %d", i), "SPEEDY")
		if seen[started.RunID] {
			t.Fatalf("duplicate run id %s", started.RunID)
		}
		seen[started.RunID] = true
	}
	for id := range seen {
		pollUntilDone(t, ts, id)
	}
}
