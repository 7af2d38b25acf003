package service

import (
	"context"
	"time"

	"github.com/wricardo/horse-race-game/game/race"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Generation
	GenerateHorses(ctx context.Context, sessionID string) (*CommandResult, error)
	GenerateRaces(ctx context.Context, sessionID string) (*CommandResult, error)

	// Session transitions
	Start(ctx context.Context, sessionID string) (*CommandResult, error)
	TogglePause(ctx context.Context, sessionID string) (*CommandResult, error)
	StartOrToggle(ctx context.Context, sessionID string) (*CommandResult, error)
	AdvanceRace(ctx context.Context, sessionID string) (*CommandResult, error)
	RecordFinish(ctx context.Context, sessionID string, horseID int) (*CommandResult, error)
	CommitResult(ctx context.Context, sessionID string, raceID int) (*CommandResult, error)
	ResetRuntime(ctx context.Context, sessionID string) (*CommandResult, error)
	ResetAll(ctx context.Context, sessionID string) (*CommandResult, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*race.GameState, error)
	GetResults(ctx context.Context, sessionID string) ([]race.Result, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*race.Rules, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, rules *race.Rules) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id string, rules *race.Rules) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// ConfigManager handles ruleset loading
type ConfigManager interface {
	LoadConfig(name string) (*race.Rules, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *race.Rules
}

// Notifier is told about every state change of a session
type Notifier interface {
	BroadcastToSession(sessionID string, state *race.GameState)
	BroadcastEvent(sessionID string, event string, data interface{})
}

// Session represents an active game session
type Session struct {
	ID             string
	Engine         *race.Engine
	Rules          *race.Rules
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
