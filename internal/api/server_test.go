package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/zba/internal/events"
	"github.com/smazurov/zba/internal/process"
	"github.com/smazurov/zba/pkg/task"
)

type fakeController struct {
	mu      sync.Mutex
	snap    process.Snapshot
	scaled  map[string]int
	reloads int
}

func (f *fakeController) Snapshot() process.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) SetProcessCount(name string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.snap.Tasks {
		if t.Name == name {
			f.scaled[name] = count
			return nil
		}
	}
	return fmt.Errorf("%w: %s", task.ErrNotFound, name)
}

func (f *fakeController) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func newTestServer(t *testing.T, auth bool) (*httptest.Server, *fakeController, *events.Bus) {
	t.Helper()
	ctrl := &fakeController{
		scaled: map[string]int{},
		snap: process.Snapshot{
			Status: process.StatusRunning,
			PID:    100,
			Tasks: []process.TaskSnapshot{{
				ID:      "abc",
				Name:    "mailer",
				Desired: 2,
				Workers: []process.Info{
					{TaskName: "mailer", Index: 1, PID: 101},
					{TaskName: "mailer", Index: 2, PID: 102},
				},
			}},
		},
	}
	bus := events.New()
	opts := &Options{Controller: ctrl, EventBus: bus}
	if auth {
		opts.AuthUsername = "admin"
		opts.AuthPassword = "secret"
	}
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts, ctrl, bus
}

func doRequest(t *testing.T, method, url, body string, auth bool) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndVersionNeedNoAuth(t *testing.T) {
	ts, _, _ := newTestServer(t, true)
	for _, path := range []string{"/api/health", "/api/version"} {
		resp := doRequest(t, http.MethodGet, ts.URL+path, "", false)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	ts, _, _ := newTestServer(t, true)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/status", "", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/status", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap process.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Status != process.StatusRunning || snap.Live() != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestQueryAuth(t *testing.T) {
	ts, _, _ := newTestServer(t, true)
	creds := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/status?auth="+creds, "", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	bad := base64.StdEncoding.EncodeToString([]byte("admin:wrong"))
	resp = doRequest(t, http.MethodGet, ts.URL+"/api/status?auth="+bad, "", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGetTask(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/tasks/mailer", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got process.TaskSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Desired != 2 || len(got.Workers) != 2 {
		t.Errorf("unexpected task %+v", got)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks/ghost", "", false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestScaleTask(t *testing.T) {
	ts, ctrl, _ := newTestServer(t, false)

	resp := doRequest(t, http.MethodPut, ts.URL+"/api/tasks/mailer/count", `{"count": 5}`, false)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ctrl.scaled["mailer"] != 5 {
		t.Errorf("scale not forwarded: %v", ctrl.scaled)
	}

	resp = doRequest(t, http.MethodPut, ts.URL+"/api/tasks/ghost/count", `{"count": 1}`, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, ts.URL+"/api/tasks/mailer/count", `{"count": 0}`, false)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for out-of-range count, got %d", resp.StatusCode)
	}
}

func TestReload(t *testing.T) {
	ts, ctrl, _ := newTestServer(t, false)
	resp := doRequest(t, http.MethodPost, ts.URL+"/api/reload", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ctrl.reloads != 1 {
		t.Errorf("reloads = %d", ctrl.reloads)
	}
}

func TestLogsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, false)
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/logs?limit=5", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var data struct {
		Entries []map[string]any `json:"entries"`
		Count   int              `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatal(err)
	}
	if data.Count != len(data.Entries) || data.Count > 5 {
		t.Errorf("unexpected logs payload %+v", data)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := newTestServer(t, true)
	resp := doRequest(t, http.MethodOptions, ts.URL+"/api/status", "", false)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestEventStream(t *testing.T) {
	ts, _, bus := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 10)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()

	select {
	case line := <-lines:
		if !strings.Contains(line, "running") {
			t.Errorf("expected initial status, got %s", line)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial event")
	}

	// Subscription is registered before the initial event is sent.
	bus.Publish(events.PoolScaledEvent{TaskName: "mailer", From: 2, To: 4})
	select {
	case line := <-lines:
		if !strings.Contains(line, `"to":4`) {
			t.Errorf("unexpected event %s", line)
		}
	case <-time.After(time.Second):
		t.Fatal("published event not streamed")
	}
}

func TestMetricsHandlerMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "zba_up 1\n")
	})
	ts := httptest.NewServer(NewServer(&Options{PrometheusHandler: metrics}).Handler())
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/metrics", "", false)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "zba_up 1") {
		t.Errorf("unexpected metrics body %q", body)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/status", "", false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without controller, got %d", resp.StatusCode)
	}
}

func TestStatusPageAtRoot(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := doRequest(t, http.MethodGet, ts.URL+"/", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "/api/status") {
		t.Error("status page not served")
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/nothing", "", false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown api path, got %d", resp.StatusCode)
	}
}
