package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/engine"
	"github.com/sanonone/irishnsw/pkg/experiment"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/metrics"
)

// routes registers every endpoint.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /probe", s.handleProbe)
	mux.HandleFunc("POST /system/save", s.handleSave)

	mux.HandleFunc("POST /experiments/threshold", s.handleThresholdTask)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)

	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	idx := s.Engine.Index()
	s.writeHTTPResponse(w, http.StatusOK, StatsResponse{
		Templates:  idx.Len(),
		Dim:        s.Engine.Matcher().Dim().String(),
		Config:     idx.Config(),
		Layers:     idx.LayerSizes(),
		Counters:   s.Engine.Stats(),
		SnapshotID: s.Engine.SnapshotID(),
		LastSave:   s.Engine.LastSave(),
	})
}

// handleProbe searches with a noisy, rotated copy of an enrolled template.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.applySearchDefaults(&req.K, &req.Ef, &req.Threshold)
	noise := s.search.NoiseLevel
	if req.Noise != nil {
		noise = *req.Noise
	}
	if noise < 0 || noise > 1 {
		s.writeHTTPError(w, http.StatusBadRequest, fmt.Sprintf("noise must be in [0, 1], got %g", noise))
		return
	}
	maxRot := s.Engine.Matcher().MaxRotation()
	if req.Rotation < -maxRot || req.Rotation > maxRot {
		s.writeHTTPError(w, http.StatusBadRequest, fmt.Sprintf("rotation must be within ±%d", maxRot))
		return
	}

	tpl, err := s.Engine.Template(req.ID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	probe := iris.WithNoise(rand.New(rand.NewSource(seed)), tpl.Rotated(req.Rotation), noise)

	matches, err := s.Engine.TopK(probe, req.K, req.Ef)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	resp := ProbeResponse{Matches: matches}
	if len(matches) > 0 && matches[0].Distance < req.Threshold {
		resp.Identified = true
		resp.Match = &matches[0]
	}
	s.writeHTTPResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Save(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, SaveResponse{
		SnapshotID: s.Engine.SnapshotID(),
		Templates:  s.Engine.Len(),
	})
}

// handleThresholdTask starts an identification run and answers 202 with the task id.
func (s *Server) handleThresholdTask(w http.ResponseWriter, r *http.Request) {
	var req ThresholdTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p := req.ThresholdParams
	s.applySearchDefaults(&p.K, &p.Ef, &p.Threshold)
	if p.Queries <= 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "queries must be positive")
		return
	}
	if p.Impostors < 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "impostors must not be negative")
		return
	}
	if p.NoiseLevel == 0 {
		p.NoiseLevel = s.search.NoiseLevel
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	task := s.taskManager.NewTask()
	s.taskManager.Go(task, func(t *Task) (*experiment.ThresholdResult, error) {
		t.SetProgress(fmt.Sprintf("probing %d genuine and %d impostor templates", p.Queries, p.Impostors))
		res, err := experiment.ThresholdRun(s.Engine.Matcher(), rand.New(rand.NewSource(seed)), p)
		if err != nil {
			s.logger.Error("threshold run failed", "task", t.ID, "error", err)
			return nil, err
		}
		s.logger.Info("threshold run finished", "task", t.ID,
			"identified", res.Identified, "false_matches", res.FalseMatches)
		return &res, nil
	})

	s.writeHTTPResponse(w, http.StatusAccepted, task.View())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.View())
}

func (s *Server) applySearchDefaults(k, ef *int, threshold *float64) {
	if *k == 0 {
		*k = s.search.K
	}
	if *ef == 0 {
		*ef = s.search.Ef
	}
	if *threshold == 0 {
		*threshold = s.search.Threshold
	}
}

// writeEngineError maps engine and index errors to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hnsw.ErrOutOfRange):
		s.writeHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hnsw.ErrInvalidParameter):
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrClosed):
		s.writeHTTPError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeHTTPError(w http.ResponseWriter, status int, msg string) {
	s.writeHTTPResponse(w, status, errorResponse{Error: msg})
}
