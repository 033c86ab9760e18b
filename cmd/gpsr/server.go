package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/gpsr/pkg/control"
	"github.com/odvcencio/gpsr/pkg/mission"
	"github.com/odvcencio/gpsr/pkg/observability"
	"github.com/odvcencio/gpsr/pkg/storage"
)

type snapshotter interface {
	Snapshot() mission.Snapshot
}

type runStore interface {
	ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error)
	GetRun(ctx context.Context, id string) (*mission.Report, error)
}

// server exposes mission status, run history and the run/pause control.
type server struct {
	mission snapshotter
	control *control.Control
	runs    runStore
	events  http.Handler
	log     *observability.Logger
}

type controlStatus struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	Mission mission.Snapshot `json:"mission"`
	Control controlStatus    `json:"control"`
}

type controlRequest struct {
	Reason string `json:"reason"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/status", s.handleStatus)
	if s.events != nil {
		r.Handle("/events", s.events)
	}
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
	})
	r.Route("/control", func(r chi.Router) {
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/stop", s.handleStop)
	})
	return r
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Mission: s.mission.Snapshot(),
		Control: s.controlStatus(),
	})
}

func (s *server) controlStatus() controlStatus {
	return controlStatus{State: s.control.State(), Reason: s.control.Reason()}
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs", "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history disabled")
		return
	}
	id := chi.URLParam(r, "runID")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		s.log.Error("get run", "run", id, "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control.Pause(readReason(r, "paused over http"))
	s.writeJSON(w, http.StatusOK, s.controlStatus())
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control.Resume()
	s.writeJSON(w, http.StatusOK, s.controlStatus())
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.control.Stop(readReason(r, "stopped over http"))
	s.writeJSON(w, http.StatusOK, s.controlStatus())
}

func readReason(r *http.Request, fallback string) string {
	var req controlRequest
	if r.Body != nil {
		_ = json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4096)).Decode(&req)
	}
	if req.Reason == "" {
		return fallback
	}
	return req.Reason
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", "error", err.Error())
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
