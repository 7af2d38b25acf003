package service

import (
	"time"

	"github.com/wricardo/horse-race-game/game/race"
)

// Command names reported in CommandResult and used in logs
const (
	CmdGenerateHorses = "generate_horses"
	CmdGenerateRaces  = "generate_races"
	CmdStart          = "start"
	CmdTogglePause    = "toggle_pause"
	CmdAdvanceRace    = "advance_race"
	CmdRecordFinish   = "record_finish"
	CmdCommitResult   = "commit_result"
	CmdResetRuntime   = "reset_runtime"
	CmdResetAll       = "reset_all"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string          `json:"id"`
	ConfigName     string          `json:"config_name"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	GameState      *race.GameState `json:"game_state"`
	Rules          *race.Rules     `json:"rules"`
}

// CommandResult contains the outcome of a race command
type CommandResult struct {
	Command   string          `json:"command"`
	Success   bool            `json:"success"`
	GameState *race.GameState `json:"game_state"`
	Events    []race.Event    `json:"events"`

	// Set by the commands that produce them
	Horse  *race.Horse  `json:"horse,omitempty"`
	Result *race.Result `json:"result,omitempty"`
}

// ConfigInfo provides information about a ruleset
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"` // The identifier to use for session creation
	Name        string `json:"name"`      // Display name
	Description string `json:"description"`
	RosterSize  int    `json:"roster_size"`
	FieldSize   int    `json:"field_size"`
	Races       int    `json:"races"`
}
