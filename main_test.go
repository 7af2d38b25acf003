package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/transport/mcp"
)

func TestConstants(t *testing.T) {
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "Horse Race Game Server", AppName)
}

func TestNewApp(t *testing.T) {
	app := newApp()
	assert.Equal(t, "serve", app.DefaultCommand)

	for _, name := range []string{"serve", "http", "mcp", "stdio-mcp", "simulate", "validate"} {
		assert.NotNil(t, app.Command(name), "command %s", name)
	}
}

func TestInitializeServices(t *testing.T) {
	if _, err := os.Stat("configs"); os.IsNotExist(err) {
		t.Skip("Skipping test - configs directory not found")
	}

	logger := log.New(&bytes.Buffer{})
	gameService, sessions, err := initializeServices("configs", 42, logger, nil)
	require.NoError(t, err)
	require.NotNil(t, gameService)

	info, err := gameService.CreateSession(context.Background(), "sprint")
	require.NoError(t, err)
	assert.Equal(t, "sprint", info.ConfigName)
	assert.Equal(t, 1, sessions.Count())
}

func TestInitializeServices_InvalidConfigDir(t *testing.T) {
	_, _, err := initializeServices("/non/existent/path", 0, log.New(&bytes.Buffer{}), nil)
	assert.Error(t, err)
}

func TestMCPHandler(t *testing.T) {
	handler := mcpHandler(mcp.NewClient("http://127.0.0.1:1"))

	t.Run("GET not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("tools/list", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "start_or_toggle")
		assert.Contains(t, w.Body.String(), "record_finish")
	})
}

func TestRootHandler(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := newRootHandler(api, mcp.NewClient("http://127.0.0.1:1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIAvailable(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer healthy.Close()

	assert.True(t, apiAvailable(context.Background(), healthy.URL))

	healthy.Close()
	assert.False(t, apiAvailable(context.Background(), healthy.URL))
}

func TestStartInternalServer(t *testing.T) {
	if _, err := os.Stat("configs"); os.IsNotExist(err) {
		t.Skip("Skipping test - configs directory not found")
	}

	url, shutdown, err := startInternalServer(context.Background(), "configs", 1, log.New(&bytes.Buffer{}))
	require.NoError(t, err)
	defer shutdown()

	assert.Eventually(t, func() bool {
		return apiAvailable(context.Background(), url)
	}, 2*time.Second, 10*time.Millisecond)
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{"horserace"}, args...))
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.json"), []byte(`{"name": "OK"}`), 0o644))

	out, err := runApp(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ All configurations are valid!")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.hcl"), []byte(`name = "Bad"
field_size = 999`), 0o644))

	out, err = runApp(t, "--config-dir", dir, "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "❌ INVALID")
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	sprint := `{"name": "Sprint", "roster_size": 6, "field_size": 3, "distances": [1000, 1100]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sprint.json"), []byte(sprint), 0o644))

	out, err := runApp(t,
		"--config-dir", dir, "--seed", "9",
		"simulate", "--sessions", "3", "--workers", "2", "--config", "sprint",
		"--tick", "1ms", "--speed", "1000",
	)
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(out, "Session "))
	assert.Equal(t, 6, strings.Count(out, "  Race "))
	assert.Contains(t, out, "Race 1 (1000m)")
	assert.Contains(t, out, "Race 2 (1100m)")
	assert.Contains(t, out, "Wins:")
}

func TestSimulateCommand_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t, "--config-dir", dir, "simulate", "--sessions", "0")
	assert.Error(t, err)

	_, err = runApp(t, "--config-dir", dir, "simulate", "--config", "missing")
	assert.Error(t, err)
}

func TestPrintSimulations(t *testing.T) {
	ada := race.Horse{ID: 1, Name: "Ada"}
	bob := race.Horse{ID: 2, Name: "Bob"}
	sims := []simulation{
		{
			SessionID: "a1b2",
			Races:     []race.Race{{ID: 1, Distance: 1200}, {ID: 2, Distance: 1400}},
			Results: []race.Result{
				{ID: 1, Horses: []race.Horse{ada, bob}},
				{ID: 2, Horses: []race.Horse{bob, ada}},
			},
		},
		{
			SessionID: "c3d4",
			Races:     []race.Race{{ID: 1, Distance: 1200}},
			Results:   []race.Result{{ID: 1, Horses: []race.Horse{bob}}},
		},
	}

	var buf bytes.Buffer
	printSimulations(&buf, sims)
	out := buf.String()

	assert.Contains(t, out, "Session a1b2\n  Race 1 (1200m): Ada (#1), 2 finishers\n  Race 2 (1400m): Bob (#2), 2 finishers\n")
	// Bob has more wins so is listed first
	assert.Less(t, strings.Index(out, "  Bob"), strings.Index(out, "  Ada"))
}
