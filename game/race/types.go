package race

import "time"

// Status is the coarse lifecycle state of a session.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// EventType identifies what kind of change an Event reports.
type EventType string

const (
	EventHorsesGenerated EventType = "horses_generated"
	EventRacesGenerated  EventType = "races_generated"
	EventStarted         EventType = "started"
	EventPaused          EventType = "paused"
	EventResumed         EventType = "resumed"
	EventFinishRecorded  EventType = "finish_recorded"
	EventResultCommitted EventType = "result_committed"
	EventRaceAdvanced    EventType = "race_advanced"
	EventSessionFinished EventType = "session_finished"
	EventRuntimeReset    EventType = "runtime_reset"
	EventReset           EventType = "reset"
)

// Horse is a single runner in the roster.
type Horse struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Condition int    `json:"condition"` // speed factor consumed by the animation layer
}

// Race is one entry of the schedule.
type Race struct {
	ID       int     `json:"id"`
	Distance int     `json:"distance"`
	Horses   []Horse `json:"horses"`
}

// HasHorse reports whether the horse with the given id runs in this race.
func (r Race) HasHorse(horseID int) bool {
	for _, h := range r.Horses {
		if h.ID == horseID {
			return true
		}
	}
	return false
}

// Result is the finish order recorded for a race, first finisher first.
type Result struct {
	ID     int     `json:"id"`
	Horses []Horse `json:"horses"`
}

// Winner returns the first finisher of the result, if any.
func (r Result) Winner() (Horse, bool) {
	if len(r.Horses) == 0 {
		return Horse{}, false
	}
	return r.Horses[0], true
}

// RaceState is the mutable runtime of the race currently pointed at by RaceIndex.
type RaceState struct {
	Running       bool    `json:"running"`
	Paused        bool    `json:"paused"`
	FinishedOrder []Horse `json:"finished_order"`
	Winner        *Horse  `json:"winner"`
	RaceIndex     int     `json:"race_index"`

	// committed counts the leading FinishedOrder entries already folded into results.
	committed int
}

// GameState is a snapshot of the whole session.
type GameState struct {
	GameInProgress bool      `json:"game_in_progress"`
	Status         Status    `json:"status"`
	Horses         []Horse   `json:"horses"`
	Races          []Race    `json:"races"`
	Results        []Result  `json:"results"`
	RaceState      RaceState `json:"race_state"`
	CurrentRace    *Race     `json:"current_race,omitempty"`
	RulesName      string    `json:"rules_name"`
}

// Event describes one successful mutation of an Engine.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RaceID    int       `json:"race_id,omitempty"`
	HorseID   int       `json:"horse_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
