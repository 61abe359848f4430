package app

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdiez17/sat-o-mat/internal/config"
)

func newTestApp(t *testing.T, approvalMode string) (*App, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Data.TLEDir = t.TempDir()
	cfg.Schedules.ApprovalMode = approvalMode

	a, err := New(Options{
		Logger: log.New(io.Discard, "", 0),
		Cfg:    cfg,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return a, srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const scheduleBody = `variables:
  start: "2026-01-12T10:00:00Z"
  end: "2026-01-12T10:10:00Z"
steps:
  - executor:
      action: run_shell
      cmd: "true"
`

func TestHealthz(t *testing.T) {
	_, srv := newTestApp(t, "manual")
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestSubmitApproveFlow(t *testing.T) {
	_, srv := newTestApp(t, "manual")

	resp, err := http.Post(srv.URL+"/api/schedules", "application/yaml", strings.NewReader(scheduleBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "pending", body["approval_status"])

	id := body["schedule"].(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	// Not active yet.
	resp, err = http.Get(srv.URL + "/api/schedules")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Nil(t, body["schedules"])

	resp, err = http.Post(srv.URL+"/api/schedules/"+id+"/approve", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/schedules")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	schedules := body["schedules"].([]any)
	require.Len(t, schedules, 1)
	assert.Equal(t, id, schedules[0].(map[string]any)["id"])
}

func TestSubmitOverlapConflict(t *testing.T) {
	_, srv := newTestApp(t, "auto")

	resp, err := http.Post(srv.URL+"/api/schedules", "application/yaml", strings.NewReader(scheduleBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	overlapping := strings.Replace(scheduleBody, "10:10:00Z", "10:05:00Z", 1)
	overlapping = strings.Replace(overlapping, "10:00:00Z", "10:02:00Z", 1)
	resp, err = http.Post(srv.URL+"/api/schedules", "application/yaml", strings.NewReader(overlapping))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "schedule_overlap", body["error"])
}

func TestSubmitInvalidSchedule(t *testing.T) {
	_, srv := newTestApp(t, "auto")

	bad := `variables:
  start: "2026-01-12T10:00:00Z"
  end: "2026-01-12T10:00:00Z"
steps: []
`
	resp, err := http.Post(srv.URL+"/api/schedules", "application/yaml", strings.NewReader(bad))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Contains(t, body["message"], "must be after")
}

func TestScheduleNotFound(t *testing.T) {
	_, srv := newTestApp(t, "auto")

	resp, err := http.Post(srv.URL+"/api/schedules/nope/approve", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestTrackerStatusAndStop(t *testing.T) {
	_, srv := newTestApp(t, "auto")

	resp, err := http.Get(srv.URL + "/api/tracker")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "idle", body["mode"])

	// Stopping an idle tracker is a no-op and succeeds.
	resp, err = http.Post(srv.URL+"/api/tracker/stop", "", nil)
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, "idle", body["mode"])
}

func TestTrackerRunRejectsBadTLE(t *testing.T) {
	_, srv := newTestApp(t, "auto")

	resp, err := http.Post(srv.URL+"/api/tracker/run", "application/json",
		strings.NewReader(`{"tle": "not a tle"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid_tle", body["error"])
}

func TestRunScheduleExecutes(t *testing.T) {
	a, srv := newTestApp(t, "auto")

	resp, err := http.Post(srv.URL+"/api/schedules", "application/yaml", strings.NewReader(scheduleBody))
	require.NoError(t, err)
	body := decodeBody(t, resp)
	id := body["schedule"].(map[string]any)["id"].(string)

	resp, err = http.Post(srv.URL+"/api/schedules/"+id+"/run", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// Wait for the background run to release the run lock.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a.runMu.TryLock() {
			a.runMu.Unlock()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("schedule run never finished")
}
