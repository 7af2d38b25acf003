package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/game/runner"
	"github.com/wricardo/horse-race-game/game/service"
	"github.com/wricardo/horse-race-game/transport/websocket"
)

// ErrAutorunActive is returned when a session already has an autorun
var ErrAutorunActive = errors.New("autorun already active for session")

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	logger  *log.Logger

	runnerConfig runner.Config

	// Autoruns by canonical session ID
	ctx      context.Context
	cancel   context.CancelFunc
	autoruns map[string]context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger.WithPrefix("api")
	}
}

// WithRunnerConfig sets the defaults used for autorun
func WithRunnerConfig(cfg runner.Config) Option {
	return func(s *Server) {
		s.runnerConfig = cfg
	}
}

// NewServer creates a new API server. hub may be nil, which disables /ws.
func NewServer(gameService service.GameService, hub *websocket.Hub, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		service:  gameService,
		hub:      hub,
		router:   mux.NewRouter(),
		logger:   log.Default().WithPrefix("api"),
		ctx:      ctx,
		cancel:   cancel,
		autoruns: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runnerConfig.Logger == nil {
		s.runnerConfig.Logger = s.logger
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Queries
	api.HandleFunc("/sessions/{id}/state", s.handleGetGameState).Methods("GET")
	api.HandleFunc("/sessions/{id}/results", s.handleGetResults).Methods("GET")

	// Race commands
	api.HandleFunc("/sessions/{id}/horses", s.command(s.service.GenerateHorses)).Methods("POST")
	api.HandleFunc("/sessions/{id}/races", s.command(s.service.GenerateRaces)).Methods("POST")
	api.HandleFunc("/sessions/{id}/start", s.command(s.service.Start)).Methods("POST")
	api.HandleFunc("/sessions/{id}/pause", s.command(s.service.TogglePause)).Methods("POST")
	api.HandleFunc("/sessions/{id}/toggle", s.command(s.service.StartOrToggle)).Methods("POST")
	api.HandleFunc("/sessions/{id}/advance", s.command(s.service.AdvanceRace)).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset-runtime", s.command(s.service.ResetRuntime)).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.command(s.service.ResetAll)).Methods("POST")
	api.HandleFunc("/sessions/{id}/finish", s.handleRecordFinish).Methods("POST")
	api.HandleFunc("/sessions/{id}/commit", s.handleCommitResult).Methods("POST")
	api.HandleFunc("/sessions/{id}/autorun", s.handleAutorun).Methods("POST")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops every autorun and waits for them to exit
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps a service error to its status code
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrConfigNotFound):
		return http.StatusNotFound
	case race.IsRejected(err), errors.Is(err, ErrAutorunActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID   string `json:"config_id,omitempty"`
		ConfigName string `json:"config_name,omitempty"` // Deprecated, use config_id
	}

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	// Support both new and old parameter names, but prefer config_id
	configID := req.ConfigID
	if configID == "" {
		configID = req.ConfigName
	}

	session, err := s.service.CreateSession(r.Context(), configID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy != "created" {
		sortBy = "accessed"
	}
	if order != "asc" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	// Resolve the canonical ID before the session disappears
	info, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.stopAutorun(info.ID)

	if err := s.service.DeleteSession(r.Context(), info.ID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", info.ID),
	})
}

// Query Handlers

func (s *Server) handleGetGameState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetGameState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	results, err := s.service.GetResults(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"count":      len(results),
		"results":    results,
	})
}

// Command Handlers

type commandFunc func(ctx context.Context, sessionID string) (*service.CommandResult, error)

// command adapts a body-less service command to a handler
func (s *Server) command(fn commandFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]
		result, err := fn(r.Context(), sessionID)
		s.respondCommand(w, sessionID, result, err)
	}
}

func (s *Server) handleRecordFinish(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		HorseID *int `json:"horse_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HorseID == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: horse_id is required")
		return
	}

	result, err := s.service.RecordFinish(r.Context(), sessionID, *req.HorseID)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) handleCommitResult(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		RaceID *int `json:"race_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RaceID == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: race_id is required")
		return
	}

	result, err := s.service.CommitResult(r.Context(), sessionID, *req.RaceID)
	s.respondCommand(w, sessionID, result, err)
}

func (s *Server) respondCommand(w http.ResponseWriter, sessionID string, result *service.CommandResult, err error) {
	if err != nil {
		s.logger.Debug("[RACE] rejected", "session", sessionID, "err", err)
		respondServiceError(w, err)
		return
	}

	st := result.GameState
	if st == nil {
		respondJSON(w, http.StatusOK, result)
		return
	}
	s.logger.Info(fmt.Sprintf("[RACE] session=%s cmd=%s status=%s race=%d/%d finished=%d results=%d",
		sessionID, result.Command, st.Status, st.RaceState.RaceIndex+1, len(st.Races),
		len(st.RaceState.FinishedOrder), len(st.Results)))

	respondJSON(w, http.StatusOK, result)
}

// Autorun

func (s *Server) handleAutorun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TickMS int     `json:"tick_ms,omitempty"`
		Speed  float64 `json:"speed,omitempty"`
		Seed   int64   `json:"seed,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	sessionID := info.ID

	cfg := s.runnerConfig
	if req.TickMS > 0 {
		cfg.Tick = time.Duration(req.TickMS) * time.Millisecond
	}
	if req.Speed > 0 {
		cfg.Speed = req.Speed
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}

	if err := s.startAutorun(r.Context(), sessionID, cfg); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message":    fmt.Sprintf("Autorun started for session %s", sessionID),
		"session_id": sessionID,
	})
}

// startAutorun prepares the session synchronously so rejections reach the
// caller, then ticks it in the background
func (s *Server) startAutorun(reqCtx context.Context, sessionID string, cfg runner.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, active := s.autoruns[sessionID]; active {
		return fmt.Errorf("%w %s", ErrAutorunActive, sessionID)
	}

	rn := runner.New(s.service, sessionID, cfg)
	if err := rn.Prepare(reqCtx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.autoruns[sessionID] = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.finishAutorun(sessionID)

		err := rn.Loop(ctx)
		switch {
		case err == nil:
			s.logger.Info("autorun finished", "session", sessionID)
		case errors.Is(err, context.Canceled):
			s.logger.Info("autorun cancelled", "session", sessionID)
		default:
			s.logger.Warn("autorun stopped", "session", sessionID, "err", err)
		}
	}()
	return nil
}

func (s *Server) finishAutorun(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.autoruns[sessionID]; ok {
		cancel()
		delete(s.autoruns, sessionID)
	}
}

func (s *Server) stopAutorun(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.autoruns[sessionID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Server) autorunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.autoruns)
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if configs == nil {
		configs = []*service.ConfigInfo{}
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	rules, err := s.service.LoadConfig(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rules)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket disabled", http.StatusNotFound)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	info, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, info.ID, info.GameState)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"autoruns": s.autorunCount(),
	})
}
