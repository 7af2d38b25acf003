package runner

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/horse-race-game/game/config"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/game/service"
	"github.com/wricardo/horse-race-game/game/session"
)

func newTestService(t *testing.T) (service.GameService, string) {
	t.Helper()
	logger := log.New(io.Discard)

	configs, err := config.NewManager(t.TempDir())
	require.NoError(t, err)
	svc := service.NewGameService(
		session.NewManager(session.WithSeed(11), session.WithLogger(logger)),
		configs,
		service.WithLogger(logger),
	)

	info, err := svc.CreateSession(context.Background(), "")
	require.NoError(t, err)
	return svc, info.ID
}

func newTestRunner(svc service.GameService, id string, speed float64) *Runner {
	return New(svc, id, Config{
		Tick:   time.Millisecond,
		Speed:  speed,
		Seed:   3,
		Logger: log.New(io.Discard),
	})
}

func TestRunner_PrepareGeneratesAndStarts(t *testing.T) {
	ctx := context.Background()
	svc, id := newTestService(t)
	r := newTestRunner(svc, id, 1)

	require.NoError(t, r.Prepare(ctx))

	state, err := svc.GetGameState(ctx, id)
	require.NoError(t, err)
	assert.Len(t, state.Horses, race.DefaultRosterSize)
	assert.Len(t, state.Races, len(race.DefaultDistances))
	assert.Equal(t, race.StatusRunning, state.Status)

	// A running session is left alone
	require.NoError(t, r.Prepare(ctx))
	state, err = svc.GetGameState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, state.RaceState.RaceIndex)
}

func TestRunner_StepWholeField(t *testing.T) {
	ctx := context.Background()
	svc, id := newTestService(t)
	// Fast enough for every horse to finish every race on the first tick
	r := newTestRunner(svc, id, 1000)
	require.NoError(t, r.Prepare(ctx))

	for i := 0; i < len(race.DefaultDistances)-1; i++ {
		done, err := r.Step(ctx)
		require.NoError(t, err)
		require.False(t, done)

		state, err := svc.GetGameState(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i+1, state.RaceState.RaceIndex)
		assert.Empty(t, state.RaceState.FinishedOrder)
	}

	done, err := r.Step(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	results, err := svc.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, len(race.DefaultDistances))
	for _, res := range results {
		assert.Len(t, res.Horses, race.DefaultFieldSize)
	}

	state, err := svc.GetGameState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, race.StatusFinished, state.Status)

	done, err = r.Step(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRunner_CrossingsOrderedByOvershoot(t *testing.T) {
	ctx := context.Background()
	svc, id := newTestService(t)
	r := newTestRunner(svc, id, 1)
	require.NoError(t, r.Prepare(ctx))

	state, err := svc.GetGameState(ctx, id)
	require.NoError(t, err)
	current := state.CurrentRace

	// Put everyone on the line so the next stride carries the whole field over
	r.raceID = current.ID
	for i, h := range current.Horses {
		r.positions[h.ID] = float64(current.Distance) + float64(i)*0.001
	}

	_, err = r.Step(ctx)
	require.NoError(t, err)

	state, err = svc.GetGameState(ctx, id)
	require.NoError(t, err)
	results, err := svc.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 1)

	order := results[0].Horses
	require.Len(t, order, len(current.Horses))
	for i := 1; i < len(order); i++ {
		prev := r.lastOvershoot(order[i-1].ID, current)
		next := r.lastOvershoot(order[i].ID, current)
		assert.GreaterOrEqual(t, prev, next, "finish order must follow overshoot")
	}
	assert.Equal(t, 1, state.RaceState.RaceIndex)
}

func TestRunner_PauseFreezesPositions(t *testing.T) {
	ctx := context.Background()
	svc, id := newTestService(t)
	r := newTestRunner(svc, id, 1)
	require.NoError(t, r.Prepare(ctx))

	_, err := r.Step(ctx)
	require.NoError(t, err)

	_, err = svc.TogglePause(ctx, id)
	require.NoError(t, err)

	frozen := make(map[int]float64, len(r.positions))
	for k, v := range r.positions {
		frozen[k] = v
	}

	for i := 0; i < 5; i++ {
		done, err := r.Step(ctx)
		require.NoError(t, err)
		require.False(t, done)
	}
	assert.Equal(t, frozen, r.positions)

	_, err = svc.TogglePause(ctx, id)
	require.NoError(t, err)
	_, err = r.Step(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, frozen, r.positions)
}

func TestRunner_StopsWhenSessionResets(t *testing.T) {
	ctx := context.Background()
	svc, id := newTestService(t)
	r := newTestRunner(svc, id, 1)
	require.NoError(t, r.Prepare(ctx))

	_, err := svc.ResetRuntime(ctx, id)
	require.NoError(t, err)

	_, err = r.Step(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunner_PrepareFinishedSession(t *testing.T) {
	ctx := context.Background()
	svc, id := newTestService(t)
	r := newTestRunner(svc, id, 1000)
	require.NoError(t, r.Run(ctx))

	err := New(svc, id, Config{Logger: log.New(io.Discard)}).Prepare(ctx)
	assert.ErrorIs(t, err, race.ErrSessionFinished)
}

func TestRunner_Run(t *testing.T) {
	svc, id := newTestService(t)
	r := New(svc, id, Config{
		Tick:   time.Millisecond,
		Speed:  100,
		Clock:  quartz.NewReal(),
		Logger: log.New(io.Discard),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	results, err := svc.GetResults(ctx, id)
	require.NoError(t, err)
	assert.Len(t, results, len(race.DefaultDistances))
}

func TestRunner_RunCancelled(t *testing.T) {
	svc, id := newTestService(t)
	r := newTestRunner(svc, id, 0.0001)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// lastOvershoot is how far past the line a horse ended up
func (r *Runner) lastOvershoot(horseID int, current *race.Race) float64 {
	return r.positions[horseID] - float64(current.Distance)
}
