package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/wricardo/horse-race-game/game/race"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	notifier Notifier
	logger   *log.Logger
	mu       sync.Mutex
}

// Option configures a GameService
type Option func(*gameServiceImpl)

// WithLogger sets the logger used for command logging
func WithLogger(logger *log.Logger) Option {
	return func(s *gameServiceImpl) {
		s.logger = logger.WithPrefix("service")
	}
}

// WithNotifier sets the observer told about every state change
func WithNotifier(n Notifier) Option {
	return func(s *gameServiceImpl) {
		s.notifier = n
	}
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   log.Default().WithPrefix("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getConfigID returns the config_id for a ruleset display name, used for consistent API responses
func (s *gameServiceImpl) getConfigID(rulesName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == rulesName {
				return cfg.ConfigID
			}
		}
	}
	if rulesName == "" {
		return "default"
	}
	return rulesName
}

func (s *gameServiceImpl) sessionInfo(sess *Session, configID string) *SessionInfo {
	if configID == "" {
		configID = s.getConfigID(sess.Rules.Name)
	}
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     configID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		GameState:      sess.Engine.State(),
		Rules:          sess.Rules,
	}
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rules *race.Rules
	var err error
	if configName != "" {
		rules, err = s.configs.LoadConfig(configName)
		if err != nil {
			// Provide helpful error message with available options
			if errors.Is(err, ErrConfigNotFound) {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, fmt.Errorf("%w: '%s'. Available configs: %v", ErrConfigNotFound, configName, configIDs)
				}
				return nil, fmt.Errorf("%w: '%s'. Use /api/configs to list available configurations", ErrConfigNotFound, configName)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		rules = s.configs.GetDefault()
	}

	sess, err := s.sessions.Create("", rules)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created", "session", sess.ID, "rules", rules.Name)
	return s.sessionInfo(sess, configName), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	s.touch(sess.ID)
	return s.sessionInfo(sess, ""), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess, ""))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.logger.Info("session deleted", "session", sessionID)
	return nil
}

// GenerateHorses replaces the roster of a session
func (s *gameServiceImpl) GenerateHorses(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdGenerateHorses, func(eng *race.Engine, _ *CommandResult) error {
		_, err := eng.GenerateHorses()
		return err
	})
}

// GenerateRaces replaces the race schedule of a session
func (s *gameServiceImpl) GenerateRaces(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdGenerateRaces, func(eng *race.Engine, _ *CommandResult) error {
		_, err := eng.GenerateRaces()
		return err
	})
}

// Start starts an idle session
func (s *gameServiceImpl) Start(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdStart, func(eng *race.Engine, _ *CommandResult) error {
		return eng.Start()
	})
}

// TogglePause pauses or resumes a running session
func (s *gameServiceImpl) TogglePause(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdTogglePause, func(eng *race.Engine, _ *CommandResult) error {
		_, err := eng.TogglePause()
		return err
	})
}

// StartOrToggle mirrors the single Start / Pause / Resume control: it starts an
// idle session and toggles pause on a running one.
func (s *gameServiceImpl) StartOrToggle(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdStart, func(eng *race.Engine, res *CommandResult) error {
		if eng.Running() {
			res.Command = CmdTogglePause
			_, err := eng.TogglePause()
			return err
		}
		return eng.Start()
	})
}

// AdvanceRace moves a session to its next race
func (s *gameServiceImpl) AdvanceRace(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdAdvanceRace, func(eng *race.Engine, _ *CommandResult) error {
		_, err := eng.AdvanceRace()
		return err
	})
}

// RecordFinish records a horse crossing the line in the current race
func (s *gameServiceImpl) RecordFinish(ctx context.Context, sessionID string, horseID int) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdRecordFinish, func(eng *race.Engine, res *CommandResult) error {
		horse, err := eng.RecordFinish(horseID)
		if err != nil {
			return err
		}
		res.Horse = &horse
		return nil
	})
}

// CommitResult folds the current finish order into the results of a race
func (s *gameServiceImpl) CommitResult(ctx context.Context, sessionID string, raceID int) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdCommitResult, func(eng *race.Engine, res *CommandResult) error {
		result, err := eng.CommitResult(raceID)
		if err != nil {
			return err
		}
		res.Result = &result
		return nil
	})
}

// ResetRuntime clears the runtime state of a session
func (s *gameServiceImpl) ResetRuntime(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdResetRuntime, func(eng *race.Engine, _ *CommandResult) error {
		eng.ResetRuntime()
		return nil
	})
}

// ResetAll restores a session to its initial empty state
func (s *gameServiceImpl) ResetAll(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.exec(ctx, sessionID, CmdResetAll, func(eng *race.Engine, _ *CommandResult) error {
		eng.ResetAll()
		return nil
	})
}

// GetGameState retrieves the current game state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*race.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	s.touch(sess.ID)
	return sess.Engine.State(), nil
}

// GetResults returns the committed results of a session
func (s *gameServiceImpl) GetResults(ctx context.Context, sessionID string) ([]race.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return sess.Engine.Results(), nil
}

// ListConfigs returns available rulesets
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific ruleset
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*race.Rules, error) {
	return s.configs.LoadConfig(configName)
}

// exec runs fn against the engine of a session while holding the service lock.
// Events emitted by the engine during fn are collected into the result, and
// observers are notified once the command has succeeded.
func (s *gameServiceImpl) exec(ctx context.Context, sessionID, command string, fn func(*race.Engine, *CommandResult) error) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.touch(sess.ID)

	result := &CommandResult{
		Command: command,
		Events:  []race.Event{},
	}
	unsubscribe := sess.Engine.Subscribe(func(ev race.Event) {
		result.Events = append(result.Events, ev)
	})
	err = fn(sess.Engine, result)
	unsubscribe()

	if err != nil {
		s.logger.Debug("command rejected", "session", sess.ID, "command", result.Command, "err", err)
		return nil, fmt.Errorf("%s: %w", result.Command, err)
	}

	result.Success = true
	result.GameState = sess.Engine.State()

	s.logger.Debug("command applied", "session", sess.ID, "command", result.Command,
		"status", result.GameState.Status, "race_index", result.GameState.RaceState.RaceIndex)

	if s.notifier != nil {
		s.notifier.BroadcastToSession(sess.ID, result.GameState)
		for _, ev := range result.Events {
			s.notifier.BroadcastEvent(sess.ID, string(ev.Type), ev)
		}
	}

	return result, nil
}

// touch records an access. A failure means the session was deleted
// concurrently; the caller already holds it, so the command still completes.
func (s *gameServiceImpl) touch(sessionID string) {
	if err := s.sessions.UpdateLastAccessed(sessionID); err != nil {
		s.logger.Warn("failed to update last access", "session", sessionID, "err", err)
	}
}
