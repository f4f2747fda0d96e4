// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talgya/npc-cif/internal/agents"
	"github.com/talgya/npc-cif/internal/belief"
	"github.com/talgya/npc-cif/internal/engine"
	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/persistence"
	"github.com/talgya/npc-cif/internal/predicate"
)

const (
	maxStepsPerRequest = 1000
	defaultLogLimit    = 100
)

// Server serves simulation state over HTTP. All access to Sim goes through
// the server's lock; the engine advances the simulation via Advance.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	RNG      *rand.Rand
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// StepRate and StepBurst bound POST /step per client. Zero uses 1/s, burst 5.
	StepRate  float64
	StepBurst int

	mu sync.RWMutex
}

// Advance steps the simulation n times under the write lock. It stops at
// the first failing tick.
func (s *Server) Advance(n int) ([]*exchange.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*exchange.Exchange
	for range n {
		done, err := s.Sim.Step(s.RNG)
		if err != nil {
			return all, err
		}
		all = append(all, done...)
	}
	return all, nil
}

// View runs fn with the simulation under the read lock.
func (s *Server) View(fn func(sim *engine.Simulation)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.Sim)
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	rps, burst := s.StepRate, s.StepBurst
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 5
	}
	stepLimiter := NewRateLimiter(rps, burst)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (GET, read-only).
		r.Get("/status", s.handleStatus)
		r.Get("/vocabulary", s.handleVocabulary)
		r.Get("/templates", s.handleTemplates)
		r.Get("/exchanges", s.handleExchanges)
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleAgents)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleAgentDetail)
				r.Get("/beliefs", s.handleAgentBeliefs)
			})
		})

		// Admin endpoints (POST, require bearer token).
		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.With(stepLimiter.Middleware).Post("/step", s.handleStep)
			r.Post("/speed", s.handleSpeed)
			r.Post("/snapshot", s.handleSnapshot)
		})
	})
	return r
}

// Start begins serving the HTTP API in a goroutine and returns the server
// so the caller can shut it down.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Shutdown stops srv, waiting up to five seconds for in-flight requests.
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the admin bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CIFSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type agentSummary struct {
	ID      predicate.AgentID `json:"id"`
	Name    string            `json:"name"`
	Beliefs int               `json:"beliefs"`
	Goals   int               `json:"goals"`
}

type exchangeView struct {
	Name      string            `json:"name"`
	Initiator predicate.AgentID `json:"initiator"`
	Responder predicate.AgentID `json:"responder"`
	Tick      uint64            `json:"tick"`
	Outcome   string            `json:"outcome"`
}

func viewExchanges(list []*exchange.Exchange) []exchangeView {
	out := make([]exchangeView, 0, len(list))
	for _, ex := range list {
		out = append(out, exchangeView{
			Name:      ex.Name(),
			Initiator: ex.Initiator,
			Responder: ex.Responder,
			Tick:      ex.Tick,
			Outcome:   ex.Outcome().String(),
		})
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]any{
		"run_id":    s.Sim.RunID,
		"tick":      s.Sim.CurrentTick(),
		"agents":    len(s.Sim.Agents),
		"templates": len(s.Sim.Templates),
		"exchanges": len(s.Sim.Log),
		"last_tick": s.Sim.Stats,
	}
	if s.Eng != nil {
		status["running"] = s.Eng.Running()
		status["speed"] = s.Eng.Speed()
	}
	if s.DB != nil {
		saved, err := s.DB.ExchangeCount(0)
		if err != nil {
			slog.Error("count saved exchanges", "error", err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		status["saved_exchanges"] = saved
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agentSummary, 0, len(s.Sim.Agents))
	for _, a := range s.Sim.Agents {
		out = append(out, agentSummary{ID: a.ID, Name: a.Name, Beliefs: a.Beliefs.Len(), Goals: len(a.Goals)})
	}
	writeJSON(w, out)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agentParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"id":          a.ID,
		"name":        a.Name,
		"traits":      a.Traits(),
		"beliefs":     a.Beliefs.Len(),
		"preferences": a.Preferences,
		"goals":       a.Goals,
	})
}

// handleAgentBeliefs lists an agent's beliefs, optionally restricted to a
// subject (?about=) and a relationship target (?target=).
func (s *Server) handleAgentBeliefs(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agentParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	about, hasAbout, err := agentQuery(q.Get("about"))
	if err != nil {
		http.Error(w, "invalid about", http.StatusBadRequest)
		return
	}
	target, hasTarget, err := agentQuery(q.Get("target"))
	if err != nil {
		http.Error(w, "invalid target", http.StatusBadRequest)
		return
	}

	var list []belief.Belief
	switch {
	case hasAbout && hasTarget:
		list = a.RelationshipsAbout(about, target)
	case hasAbout:
		list = a.Beliefs.About(about).Beliefs()
	case hasTarget:
		http.Error(w, "target requires about", http.StatusBadRequest)
		return
	default:
		list = a.Beliefs.Beliefs()
	}
	if list == nil {
		list = []belief.Belief{}
	}
	writeJSON(w, list)
}

// handleExchanges returns exchanges between ?a= and ?b=, or the most recent
// log entries (?limit=, default 100).
func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := r.URL.Query()
	a, hasA, errA := agentQuery(q.Get("a"))
	b, hasB, errB := agentQuery(q.Get("b"))
	if errA != nil || errB != nil || hasA != hasB {
		http.Error(w, "a and b must both be agent ids", http.StatusBadRequest)
		return
	}
	if hasA {
		writeJSON(w, viewExchanges(s.Sim.ExchangesBetween(a, b)))
		return
	}

	limit := defaultLogLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	log := s.Sim.Log
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	writeJSON(w, viewExchanges(log))
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, s.Sim.Vocabulary)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]exchange.Spec, 0, len(s.Sim.Templates))
	for _, t := range s.Sim.Templates {
		spec, err := exchange.Describe(t)
		if err != nil {
			slog.Error("describe template failed", "template", t.Name, "error", err)
			http.Error(w, "template not describable", http.StatusInternalServerError)
			return
		}
		out = append(out, spec)
	}
	writeJSON(w, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.Sim.Metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	n := 1
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxStepsPerRequest {
			http.Error(w, fmt.Sprintf("n must be 1-%d", maxStepsPerRequest), http.StatusBadRequest)
			return
		}
		n = parsed
	}

	done, err := s.Advance(n)
	if err != nil {
		slog.Error("step failed", "error", err)
		http.Error(w, "step failed", http.StatusInternalServerError)
		return
	}

	s.mu.RLock()
	tick := s.Sim.CurrentTick()
	s.mu.RUnlock()
	slog.Info("stepped via API", "ticks", n, "tick", tick, "exchanges", len(done))

	writeJSON(w, map[string]any{
		"tick":      tick,
		"exchanges": viewExchanges(done),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.DB.SaveSimulation(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// agentParam resolves the {id} URL parameter. Writes the error response
// and returns false when it does not name an agent.
func (s *Server) agentParam(w http.ResponseWriter, r *http.Request) (*agents.Agent, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return nil, false
	}
	a := s.Sim.Agent(predicate.AgentID(id))
	if a == nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return nil, false
	}
	return a, true
}

func agentQuery(v string) (predicate.AgentID, bool, error) {
	if v == "" {
		return predicate.NoAgent, false, nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return predicate.NoAgent, false, err
	}
	return predicate.AgentID(id), true, nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
