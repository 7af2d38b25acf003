package runner

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/game/service"
	"github.com/wricardo/horse-race-game/internal/randutil"
)

// DefaultTick is the tick interval used when Config.Tick is zero
const DefaultTick = 50 * time.Millisecond

// ErrStopped is returned when the session stops running underneath the runner
var ErrStopped = errors.New("session is no longer running")

// Controller is the subset of service.GameService the runner drives
type Controller interface {
	GetGameState(ctx context.Context, sessionID string) (*race.GameState, error)
	GenerateHorses(ctx context.Context, sessionID string) (*service.CommandResult, error)
	GenerateRaces(ctx context.Context, sessionID string) (*service.CommandResult, error)
	Start(ctx context.Context, sessionID string) (*service.CommandResult, error)
	RecordFinish(ctx context.Context, sessionID string, horseID int) (*service.CommandResult, error)
	CommitResult(ctx context.Context, sessionID string, raceID int) (*service.CommandResult, error)
	AdvanceRace(ctx context.Context, sessionID string) (*service.CommandResult, error)
}

// Config holds configuration for a runner
type Config struct {
	Tick   time.Duration
	Speed  float64
	Seed   int64
	Clock  quartz.Clock
	Logger *log.Logger
}

// Runner moves the horses of one session
type Runner struct {
	ctrl      Controller
	sessionID string
	config    Config
	rng       *rand.Rand
	logger    *log.Logger

	raceID    int
	positions map[int]float64
}

// New creates a runner for a session
func New(ctrl Controller, sessionID string, config Config) *Runner {
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if config.Speed <= 0 {
		config.Speed = 1
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	rng := randutil.NewRandom()
	if config.Seed != 0 {
		rng = randutil.New(config.Seed)
	}

	return &Runner{
		ctrl:      ctrl,
		sessionID: sessionID,
		config:    config,
		rng:       rng,
		logger:    config.Logger.WithPrefix("runner").With("session", sessionID),
		positions: make(map[int]float64),
	}
}

// Run prepares the session and then ticks until its program is finished
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Prepare(ctx); err != nil {
		return err
	}
	return r.Loop(ctx)
}

// Prepare generates whatever the session is missing and starts it. A session
// that is already running is left as it is.
func (r *Runner) Prepare(ctx context.Context) error {
	state, err := r.ctrl.GetGameState(ctx, r.sessionID)
	if err != nil {
		return err
	}

	if state.Status == race.StatusFinished {
		return race.ErrSessionFinished
	}
	if len(state.Horses) == 0 {
		if _, err := r.ctrl.GenerateHorses(ctx, r.sessionID); err != nil {
			return err
		}
	}
	if len(state.Races) == 0 {
		if _, err := r.ctrl.GenerateRaces(ctx, r.sessionID); err != nil {
			return err
		}
	}
	if !state.RaceState.Running {
		if _, err := r.ctrl.Start(ctx, r.sessionID); err != nil {
			return err
		}
	}

	r.logger.Debug("prepared")
	return nil
}

// Loop calls Step on every clock tick until the program is finished, the
// session stops or ctx is done
func (r *Runner) Loop(ctx context.Context) error {
	ticker := r.config.Clock.NewTicker(r.config.Tick, "runner", "tick")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := r.Step(ctx)
			if err != nil {
				return err
			}
			if done {
				r.logger.Info("program finished")
				return nil
			}
		}
	}
}

// Step advances the current race by one tick. It reports true once the
// program is finished.
func (r *Runner) Step(ctx context.Context) (bool, error) {
	state, err := r.ctrl.GetGameState(ctx, r.sessionID)
	if err != nil {
		return false, err
	}

	switch {
	case state.Status == race.StatusFinished:
		return true, nil
	case !state.RaceState.Running || state.CurrentRace == nil:
		return false, ErrStopped
	case state.RaceState.Paused:
		return false, nil
	}

	current := state.CurrentRace
	if current.ID != r.raceID {
		r.raceID = current.ID
		r.positions = make(map[int]float64, len(current.Horses))
	}

	finished := make(map[int]bool, len(state.RaceState.FinishedOrder))
	for _, h := range state.RaceState.FinishedOrder {
		finished[h.ID] = true
	}

	type crossing struct {
		horseID   int
		overshoot float64
	}
	var crossings []crossing

	for _, h := range current.Horses {
		if finished[h.ID] {
			continue
		}
		r.positions[h.ID] += r.stride(h)
		if over := r.positions[h.ID] - float64(current.Distance); over >= 0 {
			crossings = append(crossings, crossing{horseID: h.ID, overshoot: over})
		}
	}

	sort.SliceStable(crossings, func(i, j int) bool {
		if crossings[i].overshoot != crossings[j].overshoot {
			return crossings[i].overshoot > crossings[j].overshoot
		}
		return crossings[i].horseID < crossings[j].horseID
	})

	for _, c := range crossings {
		if _, err := r.ctrl.RecordFinish(ctx, r.sessionID, c.horseID); err != nil {
			if errors.Is(err, race.ErrAlreadyFinished) {
				continue
			}
			return false, err
		}
		finished[c.horseID] = true
	}

	if len(finished) < len(current.Horses) {
		return false, nil
	}
	return r.settle(ctx, current)
}

// settle commits the result of a fully finished race and moves to the next one
func (r *Runner) settle(ctx context.Context, current *race.Race) (bool, error) {
	res, err := r.ctrl.CommitResult(ctx, r.sessionID, current.ID)
	switch {
	case err == nil:
		if winner, ok := res.Result.Winner(); ok {
			r.logger.Info("race settled", "race", current.ID, "distance", current.Distance, "winner", winner.Name)
		}
		if res.GameState.Status == race.StatusFinished {
			return true, nil
		}
	case errors.Is(err, race.ErrNothingToCommit):
		// Already committed by someone else
	default:
		return false, fmt.Errorf("commit race %d: %w", current.ID, err)
	}

	if _, err := r.ctrl.AdvanceRace(ctx, r.sessionID); err != nil {
		if errors.Is(err, race.ErrNoMoreRaces) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (r *Runner) stride(h race.Horse) float64 {
	return (float64(h.Condition)/10 + float64(r.rng.IntN(4))) * r.config.Speed
}
