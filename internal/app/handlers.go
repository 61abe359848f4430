package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jdiez17/sat-o-mat/internal/predict"
	"github.com/jdiez17/sat-o-mat/internal/schedule"
	"github.com/jdiez17/sat-o-mat/internal/tracker"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// storeError maps storage errors onto HTTP statuses: the expected
// conditions are client errors, everything else is a 500.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, schedule.ErrOverlap):
		writeError(w, http.StatusConflict, "schedule_overlap", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
	}
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	a.stateMu.Lock()
	runningID := a.runningID
	a.stateMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":   int64(time.Since(a.startedAt).Seconds()),
		"tracker":          a.tracker.Status(),
		"running_schedule": runningID,
		"satellites":       len(a.tleStore.Satellites()),
	})
}

func (a *App) handleTrackerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.tracker.Status())
}

func (a *App) handleTrackerRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TLE   string               `json:"tle"`
		End   *time.Time           `json:"end"`
		Radio *tracker.RadioConfig `json:"radio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	err := a.tracker.Run(req.TLE, req.End, req.Radio)
	switch {
	case errors.Is(err, tracker.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "tracker_already_running", err.Error())
	case errors.Is(err, tracker.ErrInvalidTLEFormat):
		writeError(w, http.StatusBadRequest, "invalid_tle", err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, "tracker_error", err.Error())
	default:
		writeJSON(w, http.StatusOK, a.tracker.Status())
	}
}

func (a *App) handleTrackerStop(w http.ResponseWriter, _ *http.Request) {
	a.tracker.Stop()
	writeJSON(w, http.StatusOK, a.tracker.Status())
}

func scheduleState(r *http.Request) schedule.State {
	if r.URL.Query().Get("state") == "pending" {
		return schedule.StateAwaitingApproval
	}
	return schedule.StateActive
}

func (a *App) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.List(scheduleState(r))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": entries})
}

func (a *App) handleSubmitSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sched, err := schedule.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	mode := schedule.ApprovalMode(a.cfg.Schedules.ApprovalMode)
	entry, result, err := a.store.Submit(sched, body, mode)
	if err != nil {
		storeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"schedule":        entry,
		"approval_status": result,
	})
}

func (a *App) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	entry, raw, err := a.store.Get(scheduleState(r), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule": entry,
		"content":  string(raw),
	})
}

func (a *App) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Delete(scheduleState(r), r.PathValue("id")); err != nil {
		storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleApproveSchedule(w http.ResponseWriter, r *http.Request) {
	entry, err := a.store.Approve(r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedule": entry})
}

func (a *App) handleRejectSchedule(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Reject(r.PathValue("id")); err != nil {
		storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunSchedule starts executing an active schedule in the background.
// Only one schedule may run at a time.
func (a *App) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	_, raw, err := a.store.Get(schedule.StateActive, id)
	if err != nil {
		storeError(w, err)
		return
	}
	sched, err := schedule.Parse(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "parse_error", err.Error())
		return
	}

	if !a.runMu.TryLock() {
		writeError(w, http.StatusConflict, "run_in_progress", "another schedule is executing")
		return
	}

	runner, err := schedule.NewRunner(id, sched, a.tracker, a.radio, a.cfg.Data.Root, a.log)
	if err != nil {
		a.runMu.Unlock()
		writeError(w, http.StatusInternalServerError, "runner_error", err.Error())
		return
	}
	runner.Events = a.hub.Publish

	a.stateMu.Lock()
	a.runningID = id
	a.stateMu.Unlock()

	// The run outlives this request; it is only bounded by its own steps.
	go func() {
		defer a.runMu.Unlock()
		if err := runner.Run(context.Background()); err != nil {
			a.log.Printf("app: schedule %s failed: %v", id, err)
		}
		a.stateMu.Lock()
		a.runningID = ""
		a.stateMu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"schedule_id": id, "status": "running"})
}

func (a *App) handleSatellites(w http.ResponseWriter, _ *http.Request) {
	entries := a.tleStore.Satellites()
	infos := make([]any, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellites": infos})
}

func (a *App) handlePasses(w http.ResponseWriter, r *http.Request) {
	station := a.station()

	hours := a.cfg.Predict.LookaheadHours
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	entries := a.tleStore.Satellites()
	if v := r.URL.Query().Get("norad"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "norad must be an integer")
			return
		}
		entry := a.tleStore.ByNoradID(id)
		if entry == nil {
			writeError(w, http.StatusNotFound, "satellite_not_found", "no TLE for NORAD "+v)
			return
		}
		entries = []*predict.Entry{entry}
	}

	now := time.Now().UTC()
	end := now.Add(time.Duration(hours) * time.Hour)

	var passes []any
	for _, e := range entries {
		found, err := e.Propagator.FindPasses(station, e.Info.Name, now, end, a.cfg.Predict.MinElevation)
		if err != nil {
			a.log.Printf("app: pass prediction failed for %s: %v", e.Info.Name, err)
			continue
		}
		for _, p := range found {
			passes = append(passes, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (a *App) handleTLERefresh(w http.ResponseWriter, _ *http.Request) {
	n, err := a.tleStore.Refresh()
	if err != nil {
		writeError(w, http.StatusBadGateway, "tle_refresh_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellites_updated": n})
}
