package race

import (
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/horse-race-game/internal/randutil"
)

// Engine owns the state of a single game session
type Engine struct {
	rules *Rules
	rng   *rand.Rand

	gameInProgress bool
	horses         []Horse
	races          []Race
	results        []Result
	raceState      RaceState
	finished       bool

	subscribers []subscriber
	nextSubID   int
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewEngine creates a new engine for the given rules. A nil rules value selects
// DefaultRules and a nil rng selects a randomly seeded source.
func NewEngine(rules *Rules, rng *rand.Rand) (*Engine, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = randutil.NewRandom()
	}

	return &Engine{
		rules: rules,
		rng:   rng,
	}, nil
}

// Rules returns the ruleset the engine generates with
func (e *Engine) Rules() *Rules {
	return e.rules
}

// Subscribe registers fn to be called after every successful mutation.
// The returned function removes the subscription.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.nextSubID++
	id := e.nextSubID
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})

	return func() {
		for i, s := range e.subscribers {
			if s.id == id {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) emit(typ EventType, raceID, horseID int, message string) {
	if len(e.subscribers) == 0 {
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		RaceID:    raceID,
		HorseID:   horseID,
		Message:   message,
		Timestamp: time.Now(),
	}
	// Copy so a subscriber may unsubscribe while being notified
	subs := append([]subscriber(nil), e.subscribers...)
	for _, s := range subs {
		s.fn(ev)
	}
}

// GenerateHorses replaces the roster. Races and results are left alone.
func (e *Engine) GenerateHorses() ([]Horse, error) {
	if e.raceState.Running {
		return nil, ErrRaceInProgress
	}

	e.horses = GenerateHorses(e.rules, e.rng)
	e.gameInProgress = true

	e.emit(EventHorsesGenerated, 0, 0, fmt.Sprintf("Generated %d horses", len(e.horses)))
	return e.Horses(), nil
}

// GenerateRaces replaces the race schedule. Results and runtime state from a
// previous schedule refer to races that no longer exist, so both are cleared.
func (e *Engine) GenerateRaces() ([]Race, error) {
	if e.raceState.Running {
		return nil, ErrRaceInProgress
	}

	races, err := GenerateRaces(e.rules, e.horses, e.rng)
	if err != nil {
		return nil, fmt.Errorf("%w: have %d horses, need %d", err, len(e.horses), e.rules.FieldSize)
	}

	e.races = races
	e.results = nil
	e.raceState = RaceState{}
	e.finished = false

	e.emit(EventRacesGenerated, 0, 0, fmt.Sprintf("Generated a program of %d races", len(e.races)))
	return e.Races(), nil
}

// Start moves an idle session into the running state
func (e *Engine) Start() error {
	switch {
	case e.raceState.Running:
		return ErrAlreadyRunning
	case e.finished:
		return ErrSessionFinished
	case len(e.races) == 0:
		return ErrNoSchedule
	}

	e.raceState.Running = true
	e.raceState.Paused = false
	e.gameInProgress = true

	race := e.races[e.raceState.RaceIndex]
	e.emit(EventStarted, race.ID, 0, fmt.Sprintf("Race %d (%dm) started", race.ID, race.Distance))
	return nil
}

// TogglePause flips the paused flag of a running session and returns the new value.
func (e *Engine) TogglePause() (bool, error) {
	if !e.raceState.Running {
		return e.raceState.Paused, ErrNotRunning
	}

	e.raceState.Paused = !e.raceState.Paused

	raceID := e.races[e.raceState.RaceIndex].ID
	if e.raceState.Paused {
		e.emit(EventPaused, raceID, 0, "Race paused")
	} else {
		e.emit(EventResumed, raceID, 0, "Race resumed")
	}
	return e.raceState.Paused, nil
}

// AdvanceRace moves to the next race in the schedule and returns the new index.
// The index never passes the last race.
func (e *Engine) AdvanceRace() (int, error) {
	if e.raceState.RaceIndex >= len(e.races)-1 {
		return e.raceState.RaceIndex, ErrNoMoreRaces
	}

	e.raceState.RaceIndex++
	e.clearFinishOrder()

	race := e.races[e.raceState.RaceIndex]
	e.emit(EventRaceAdvanced, race.ID, 0, fmt.Sprintf("Race %d (%dm) is up next", race.ID, race.Distance))
	return e.raceState.RaceIndex, nil
}

// RecordFinish appends a horse to the finish order of the current race. The
// first horse recorded becomes the winner.
func (e *Engine) RecordFinish(horseID int) (Horse, error) {
	if !e.raceState.Running {
		return Horse{}, ErrNotRunning
	}
	if e.raceState.Paused {
		return Horse{}, ErrPaused
	}

	race := e.races[e.raceState.RaceIndex]
	horse, ok := findHorse(race.Horses, horseID)
	if !ok {
		if _, inRoster := findHorse(e.horses, horseID); !inRoster {
			return Horse{}, fmt.Errorf("%w: %d", ErrUnknownHorse, horseID)
		}
		return Horse{}, fmt.Errorf("%w: horse %d, race %d", ErrHorseNotInRace, horseID, race.ID)
	}
	if _, done := findHorse(e.raceState.FinishedOrder, horseID); done {
		return Horse{}, fmt.Errorf("%w: horse %d, race %d", ErrAlreadyFinished, horseID, race.ID)
	}

	e.raceState.FinishedOrder = append(e.raceState.FinishedOrder, horse)
	position := len(e.raceState.FinishedOrder)
	if position == 1 {
		winner := horse
		e.raceState.Winner = &winner
	}

	e.emit(EventFinishRecorded, race.ID, horse.ID, fmt.Sprintf("%s finished #%d in race %d", horse.Name, position, race.ID))
	return horse, nil
}

// CommitResult folds the not yet committed part of the current finish order into
// the result for raceID, appending to an existing result for that race.
func (e *Engine) CommitResult(raceID int) (Result, error) {
	idx := e.raceIndexByID(raceID)
	if idx < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrUnknownRace, raceID)
	}
	if idx != e.raceState.RaceIndex {
		return Result{}, fmt.Errorf("%w: race %d is not the current race", ErrNothingToCommit, raceID)
	}

	pending := e.raceState.FinishedOrder[e.raceState.committed:]
	if len(pending) == 0 {
		return Result{}, fmt.Errorf("%w: race %d", ErrNothingToCommit, raceID)
	}

	result := e.mergeResult(raceID, pending)
	e.raceState.committed = len(e.raceState.FinishedOrder)

	e.emit(EventResultCommitted, raceID, 0, fmt.Sprintf("Committed %d finishers for race %d", len(pending), raceID))

	lastIdx := len(e.races) - 1
	// Only the current run counts; results keep earlier runs after a runtime reset
	if idx == lastIdx && e.raceState.Running && len(e.raceState.FinishedOrder) >= len(e.races[lastIdx].Horses) {
		e.finished = true
		e.raceState.Running = false
		e.raceState.Paused = false
		e.emit(EventSessionFinished, raceID, 0, "All races finished")
	}

	return copyResult(result), nil
}

// ResetRuntime clears the runtime state only. Horses, races, results and the
// in-progress flag are kept.
func (e *Engine) ResetRuntime() {
	e.raceState = RaceState{}
	e.finished = false
	e.emit(EventRuntimeReset, 0, 0, "Race runtime reset")
}

// ResetAll restores the engine to its initial empty state.
func (e *Engine) ResetAll() {
	e.gameInProgress = false
	e.horses = nil
	e.races = nil
	e.results = nil
	e.raceState = RaceState{}
	e.finished = false
	e.emit(EventReset, 0, 0, "Game reset")
}

// Status returns the lifecycle state of the session
func (e *Engine) Status() Status {
	switch {
	case e.raceState.Running && e.raceState.Paused:
		return StatusPaused
	case e.raceState.Running:
		return StatusRunning
	case e.finished:
		return StatusFinished
	default:
		return StatusIdle
	}
}

// GameInProgress reports whether horses have been generated since the last full reset
func (e *Engine) GameInProgress() bool {
	return e.gameInProgress
}

// Horses returns a copy of the roster
func (e *Engine) Horses() []Horse {
	return copyHorses(e.horses)
}

// Races returns a copy of the race schedule
func (e *Engine) Races() []Race {
	races := make([]Race, len(e.races))
	for i, r := range e.races {
		races[i] = copyRace(r)
	}
	return races
}

// Results returns a copy of the committed results in commit order
func (e *Engine) Results() []Result {
	results := make([]Result, len(e.results))
	for i, r := range e.results {
		results[i] = copyResult(r)
	}
	return results
}

// ResultFor returns the committed result for a race, if any
func (e *Engine) ResultFor(raceID int) (Result, bool) {
	for _, r := range e.results {
		if r.ID == raceID {
			return copyResult(r), true
		}
	}
	return Result{}, false
}

// RaceIndex returns the 0-based index of the current race
func (e *Engine) RaceIndex() int {
	return e.raceState.RaceIndex
}

// Running reports whether a session is in progress
func (e *Engine) Running() bool {
	return e.raceState.Running
}

// Paused reports whether the running session is paused
func (e *Engine) Paused() bool {
	return e.raceState.Paused
}

// FinishedOrder returns the horses that crossed the line in the current race
func (e *Engine) FinishedOrder() []Horse {
	return copyHorses(e.raceState.FinishedOrder)
}

// Winner returns the first finisher of the current race, if any
func (e *Engine) Winner() (Horse, bool) {
	if e.raceState.Winner == nil {
		return Horse{}, false
	}
	return *e.raceState.Winner, true
}

// CurrentRace returns the race at the current index, or nil without a schedule
func (e *Engine) CurrentRace() *Race {
	if len(e.races) == 0 {
		return nil
	}
	r := copyRace(e.races[e.raceState.RaceIndex])
	return &r
}

// State returns a deep copy of the complete session state
func (e *Engine) State() *GameState {
	rs := e.raceState
	rs.FinishedOrder = copyHorses(e.raceState.FinishedOrder)
	if e.raceState.Winner != nil {
		w := *e.raceState.Winner
		rs.Winner = &w
	}

	return &GameState{
		GameInProgress: e.gameInProgress,
		Status:         e.Status(),
		Horses:         e.Horses(),
		Races:          e.Races(),
		Results:        e.Results(),
		RaceState:      rs,
		CurrentRace:    e.CurrentRace(),
		RulesName:      e.rules.Name,
	}
}

func (e *Engine) clearFinishOrder() {
	e.raceState.FinishedOrder = nil
	e.raceState.Winner = nil
	e.raceState.committed = 0
}

func (e *Engine) raceIndexByID(raceID int) int {
	for i, r := range e.races {
		if r.ID == raceID {
			return i
		}
	}
	return -1
}

func (e *Engine) mergeResult(raceID int, horses []Horse) Result {
	for i := range e.results {
		if e.results[i].ID == raceID {
			e.results[i].Horses = append(e.results[i].Horses, horses...)
			return e.results[i]
		}
	}
	e.results = append(e.results, Result{ID: raceID, Horses: copyHorses(horses)})
	return e.results[len(e.results)-1]
}

func findHorse(horses []Horse, id int) (Horse, bool) {
	for _, h := range horses {
		if h.ID == id {
			return h, true
		}
	}
	return Horse{}, false
}

func copyHorses(horses []Horse) []Horse {
	out := make([]Horse, len(horses))
	copy(out, horses)
	return out
}

func copyRace(r Race) Race {
	r.Horses = copyHorses(r.Horses)
	return r
}

func copyResult(r Result) Result {
	r.Horses = copyHorses(r.Horses)
	return r
}
