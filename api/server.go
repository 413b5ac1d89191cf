// Package api exposes the self-healing core over HTTP: health queries,
// circuit control, configuration inspection and rollback, recovery plan
// management and optimizer control.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/healing"
	"github.com/yunusovt983/selfheal/healing/recovery"
)

var log = logging.Logger("selfheal/api")

// Server serves the management API for a healing manager.
type Server struct {
	manager *healing.Manager
	router  *mux.Router
	http    *http.Server
}

// NewServer builds the router over the given manager.
func NewServer(addr string, manager *healing.Manager) *Server {
	s := &Server{
		manager: manager,
		router:  mux.NewRouter(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/health", s.handleHealthAll).Methods(http.MethodGet)
	v1.HandleFunc("/health/{component}", s.handleHealthOne).Methods(http.MethodGet)

	v1.HandleFunc("/circuits", s.handleCircuits).Methods(http.MethodGet)
	v1.HandleFunc("/circuits/{name}/open", s.handleCircuitOpen).Methods(http.MethodPost)
	v1.HandleFunc("/circuits/{name}/reset", s.handleCircuitReset).Methods(http.MethodPost)

	v1.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	v1.HandleFunc("/config/history", s.handleConfigHistory).Methods(http.MethodGet)
	v1.HandleFunc("/config/rollback/{version}", s.handleConfigRollback).Methods(http.MethodPost)

	v1.HandleFunc("/recovery/plans", s.handlePlansList).Methods(http.MethodGet)
	v1.HandleFunc("/recovery/plans", s.handlePlanAdd).Methods(http.MethodPost)
	v1.HandleFunc("/recovery/plans/{failureType}", s.handlePlanRemove).Methods(http.MethodDelete)
	v1.HandleFunc("/recovery/history/{component}", s.handleRecoveryHistory).Methods(http.MethodGet)
	v1.HandleFunc("/recovery/acknowledge/{component}", s.handleAcknowledge).Methods(http.MethodPost)

	v1.HandleFunc("/optimizer", s.handleOptimizerStatus).Methods(http.MethodGet)
	v1.HandleFunc("/optimizer/evolve", s.handleOptimizerEvolve).Methods(http.MethodPost)

	s.router.Handle("/metrics", promhttp.HandlerFor(
		s.manager.Monitor.Collector().Registry(),
		promhttp.HandlerOpts{}),
	).Methods(http.MethodGet)
	s.router.Handle("/metrics/circuits", promhttp.HandlerFor(
		s.manager.Breakers.PrometheusRegistry(),
		promhttp.HandlerOpts{}),
	).Methods(http.MethodGet)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the API until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.Infof("management API listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"components": s.manager.Monitor.AllStatuses(),
		"stats":      s.manager.Monitor.Stats(),
	})
}

func (s *Server) handleHealthOne(w http.ResponseWriter, r *http.Request) {
	component := mux.Vars(r)["component"]

	status, ok := s.manager.Monitor.Status(component)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown component")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"component": component,
		"status":    status,
		"metrics":   s.manager.Monitor.MetricsHistory(component),
	})
}

func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	states := s.manager.Breakers.States()
	out := make(map[string]string, len(states))
	for name, st := range states {
		out[name] = st.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCircuitOpen(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.manager.Breakers.ForceOpen(name)
	writeJSON(w, http.StatusOK, map[string]string{
		"circuit": name,
		"state":   s.manager.Breakers.State(name).String(),
	})
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !s.manager.Breakers.Reset(name) {
		writeError(w, http.StatusNotFound, "unknown circuit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"circuit": name,
		"state":   s.manager.Breakers.State(name).String(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Config.Current())
}

func (s *Server) handleConfigHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Config.History())
}

func (s *Server) handleConfigRollback(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseUint(mux.Vars(r)["version"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "version must be an unsigned integer")
		return
	}

	if err := s.manager.Config.Rollback(version); err != nil {
		if err == adaptive.ErrUnknownVersion {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Config.Current())
}

func (s *Server) handlePlansList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Recovery.Plans())
}

func (s *Server) handlePlanAdd(w http.ResponseWriter, r *http.Request) {
	var plan recovery.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan payload: "+err.Error())
		return
	}

	if err := s.manager.Recovery.AddPlan(plan); err != nil {
		if err == recovery.ErrDuplicatePlan {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handlePlanRemove(w http.ResponseWriter, r *http.Request) {
	failureType := mux.Vars(r)["failureType"]
	if err := s.manager.Recovery.RemovePlan(failureType); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecoveryHistory(w http.ResponseWriter, r *http.Request) {
	component := mux.Vars(r)["component"]
	writeJSON(w, http.StatusOK, map[string]any{
		"component": component,
		"history":   s.manager.Recovery.History(component),
		"stats":     s.manager.Recovery.GetStats(),
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	component := mux.Vars(r)["component"]
	s.manager.Recovery.Acknowledge(component)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOptimizerStatus(w http.ResponseWriter, r *http.Request) {
	if s.manager.Optimizer == nil {
		writeError(w, http.StatusNotFound, "optimizer disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": s.manager.Optimizer.Generation(),
		"champion":   s.manager.Optimizer.Champion(),
	})
}

func (s *Server) handleOptimizerEvolve(w http.ResponseWriter, r *http.Request) {
	if s.manager.Optimizer == nil {
		writeError(w, http.StatusNotFound, "optimizer disabled")
		return
	}

	champion, improved, err := s.manager.Optimizer.Evolve()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": s.manager.Optimizer.Generation(),
		"improved":   improved,
		"champion":   champion,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("response encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
