package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/horse-race-game/game/race"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	return NewManager(opts...)
}

func TestManager_Create(t *testing.T) {
	manager := newTestManager(t)

	t.Run("with explicit ID", func(t *testing.T) {
		session, err := manager.Create("test-session", race.DefaultRules())
		require.NoError(t, err)

		assert.Equal(t, "test-session", session.ID)
		assert.NotNil(t, session.Engine)
		assert.Equal(t, "classic", session.Rules.Name)
		assert.Equal(t, race.StatusIdle, session.Engine.Status())
	})

	t.Run("nil rules select defaults", func(t *testing.T) {
		session, err := manager.Create("defaults", nil)
		require.NoError(t, err)
		assert.Equal(t, race.DefaultFieldSize, session.Rules.FieldSize)
	})

	t.Run("duplicate ID is rejected case-insensitively", func(t *testing.T) {
		_, err := manager.Create("TEST-SESSION", race.DefaultRules())
		assert.ErrorIs(t, err, ErrSessionAlreadyExists)
	})

	t.Run("invalid rules", func(t *testing.T) {
		rules := race.DefaultRules()
		rules.FieldSize = 0
		_, err := manager.Create("invalid-test", rules)
		assert.Error(t, err)
	})

	t.Run("invalid ID", func(t *testing.T) {
		_, err := manager.Create(" padded ", race.DefaultRules())
		assert.ErrorIs(t, err, ErrInvalidSessionID)
	})
}

func TestManager_Get(t *testing.T) {
	manager := newTestManager(t)
	created, err := manager.Create("get-test", nil)
	require.NoError(t, err)

	session, err := manager.Get("get-test")
	require.NoError(t, err)
	assert.Same(t, created, session)

	session, err = manager.Get("GET-TEST")
	require.NoError(t, err)
	assert.Same(t, created, session)

	_, err = manager.Get("non-existent")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_GetOrCreate(t *testing.T) {
	manager := newTestManager(t)

	first, err := manager.GetOrCreate("new-session", nil)
	require.NoError(t, err)
	assert.Equal(t, "new-session", first.ID)

	second, err := manager.GetOrCreate("new-session", nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, manager.Count())
}

func TestManager_Delete(t *testing.T) {
	manager := newTestManager(t)
	_, err := manager.Create("delete-test", nil)
	require.NoError(t, err)

	require.NoError(t, manager.Delete("DELETE-TEST"))

	_, err = manager.Get("delete-test")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, manager.Delete("delete-test"), ErrSessionNotFound)
}

func TestManager_List(t *testing.T) {
	manager := newTestManager(t)
	for i := 1; i <= 3; i++ {
		_, err := manager.Create(fmt.Sprintf("list-%d", i), nil)
		require.NoError(t, err)
	}

	ids := map[string]bool{}
	for _, s := range manager.List() {
		ids[s.ID] = true
	}
	assert.Equal(t, map[string]bool{"list-1": true, "list-2": true, "list-3": true}, ids)
}

func TestManager_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	manager := newTestManager(t, WithClock(mClock))

	_, err := manager.Create("active", nil)
	require.NoError(t, err)
	_, err = manager.Create("expired", nil)
	require.NoError(t, err)

	mClock.Advance(90 * time.Minute).MustWait(ctx)
	require.NoError(t, manager.UpdateLastAccessed("active"))
	mClock.Advance(45 * time.Minute).MustWait(ctx)

	removed := manager.CleanupExpiredSessions(time.Hour)
	assert.Equal(t, 1, removed)

	_, err = manager.Get("expired")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = manager.Get("active")
	assert.NoError(t, err)
}

func TestManager_UpdateLastAccessed(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	manager := newTestManager(t, WithClock(mClock))

	session, err := manager.Create("access-test", nil)
	require.NoError(t, err)
	original := session.LastAccessedAt

	mClock.Advance(time.Minute).MustWait(ctx)
	require.NoError(t, manager.UpdateLastAccessed("ACCESS-TEST"))

	assert.Equal(t, original.Add(time.Minute), session.LastAccessedAt)
	assert.Equal(t, original, session.CreatedAt)

	assert.ErrorIs(t, manager.UpdateLastAccessed("missing"), ErrSessionNotFound)
}

func TestManager_RunJanitor(t *testing.T) {
	manager := newTestManager(t)

	stale, err := manager.Create("stale", nil)
	require.NoError(t, err)
	stale.LastAccessedAt = time.Now().Add(-2 * time.Hour)
	_, err = manager.Create("fresh", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.RunJanitor(ctx, 5*time.Millisecond, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return manager.Count() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}

	_, err = manager.Get("fresh")
	assert.NoError(t, err)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	manager := newTestManager(t)

	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Half of the goroutines race on the same IDs
			_, err := manager.Create(fmt.Sprintf("race-%d", n%50), nil)
			if err != nil && err != ErrSessionAlreadyExists {
				errs <- err
			}
			manager.List()
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error during concurrent access: %v", err)
	}
	assert.Equal(t, 50, manager.Count())
}

func TestManager_SessionIsolation(t *testing.T) {
	manager := newTestManager(t)

	session1, err := manager.Create("iso-1", nil)
	require.NoError(t, err)
	session2, err := manager.Create("iso-2", nil)
	require.NoError(t, err)

	_, err = session1.Engine.GenerateHorses()
	require.NoError(t, err)

	assert.True(t, session1.Engine.GameInProgress())
	assert.False(t, session2.Engine.GameInProgress())
	assert.Empty(t, session2.Engine.Horses())
}

func TestManager_Seeded(t *testing.T) {
	rosters := func() [][]race.Horse {
		manager := newTestManager(t, WithSeed(42))
		var out [][]race.Horse
		for i := 0; i < 3; i++ {
			session, err := manager.Create(fmt.Sprintf("seed-%d", i), nil)
			require.NoError(t, err)
			horses, err := session.Engine.GenerateHorses()
			require.NoError(t, err)
			out = append(out, horses)
		}
		return out
	}

	first, second := rosters(), rosters()
	assert.Equal(t, first, second, "same seed must give the same rosters")
	assert.NotEqual(t, first[0], first[1], "sessions of one manager get distinct sources")
}

func TestManager_SessionIDGeneration(t *testing.T) {
	manager := newTestManager(t)
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		session, err := manager.Create("", nil)
		require.NoError(t, err)

		assert.False(t, seen[session.ID], "duplicate session ID %s", session.ID)
		seen[session.ID] = true

		assert.Len(t, session.ID, 4)
		assert.Regexp(t, "^[0-9a-f]{4}$", session.ID)
	}
}
