// Command horserace starts the Horse Race Game server.
//
// It supports these commands:
//  1. "serve" (default) - runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" - runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "simulate" - runs whole programmes headlessly and prints the winners
//  4. "validate" - checks the ruleset files in a directory
//
// Flags control host/port, config directory, debug logging, the random seed,
// and optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/horse-race-game/api"
	"github.com/wricardo/horse-race-game/game/config"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/game/runner"
	"github.com/wricardo/horse-race-game/game/service"
	"github.com/wricardo/horse-race-game/game/session"
	"github.com/wricardo/horse-race-game/transport/mcp"
	"github.com/wricardo/horse-race-game/transport/websocket"
	"github.com/wricardo/horse-race-game/validate"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Horse Race Game Server"
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Error loading .env file", "err", err)
		}
	} else {
		log.Info("Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal("horserace failed", "err", err)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:           "horserace",
		Usage:          AppName,
		Version:        Version,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing rulesets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
			&cli.Int64Flag{Name: "seed", Usage: "Seed for horse and race generation (0 = random)", Sources: cli.EnvVars("SEED")},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			simulateCommand(),
			validateCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"server", "http"},
		Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "tick", Value: runner.DefaultTick, Usage: "Default autorun tick interval"},
			&cli.DurationFlag{Name: "session-ttl", Value: 24 * time.Hour, Usage: "Remove sessions idle for longer than this"},
			&cli.DurationFlag{Name: "cleanup-interval", Value: time.Hour, Usage: "How often to look for idle sessions"},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: runServe,
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp", "mcp-stdio"},
		Usage:   "Run MCP stdio server, reusing a running HTTP server when one is found",
		Action:  runStdioMCP,
	}
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run whole programmes headlessly and print the winners",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "sessions", Value: 1, Usage: "Number of sessions to run"},
			&cli.IntFlag{Name: "workers", Value: 4, Usage: "Sessions run concurrently"},
			&cli.StringFlag{Name: "config", Usage: "Ruleset to use (default: classic)"},
			&cli.DurationFlag{Name: "tick", Value: time.Millisecond, Usage: "Tick interval"},
			&cli.FloatFlag{Name: "speed", Value: 50, Usage: "Stride multiplier"},
		},
		Action: runSimulate,
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate the ruleset files in a directory",
		ArgsUsage: "[dir]",
		Action:    runValidate,
	}
}

// newLogger returns the process logger configured from the root flags
func newLogger(cmd *cli.Command) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "horserace",
	})
	if cmd.Bool("debug") {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportCaller(true)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	log.SetDefault(logger)
	return logger
}

// initializeServices wires session/config managers and the game service
func initializeServices(configDir string, seed int64, logger *log.Logger, notifier service.Notifier) (service.GameService, *session.Manager, error) {
	configManager, err := config.NewManager(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	opts := []session.Option{session.WithLogger(logger)}
	if seed != 0 {
		opts = append(opts, session.WithSeed(seed))
	}
	sessionManager := session.NewManager(opts...)

	svcOpts := []service.Option{service.WithLogger(logger)}
	if notifier != nil {
		svcOpts = append(svcOpts, service.WithNotifier(notifier))
	}
	gameService := service.NewGameService(sessionManager, configManager, svcOpts...)

	return gameService, sessionManager, nil
}

// newRootHandler mounts the API at the root and the MCP proxy at /mcp
func newRootHandler(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.Handle("/mcp", mcpHandler(mcpClient))
	return mainRouter
}

// mcpHandler serves single JSON-RPC MCP messages over HTTP POST
func mcpHandler(mcpClient *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// runServe starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd)
	logger.Info("Starting", "app", AppName, "version", Version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	gameService, sessions, err := initializeServices(cmd.String("config-dir"), cmd.Int64("seed"), logger, hub)
	if err != nil {
		return err
	}
	go sessions.RunJanitor(ctx, cmd.Duration("cleanup-interval"), cmd.Duration("session-ttl"))

	apiServer := api.NewServer(gameService, hub,
		api.WithLogger(logger),
		api.WithRunnerConfig(runner.Config{Tick: cmd.Duration("tick"), Logger: logger}),
	)
	defer apiServer.Close()

	addr := net.JoinHostPort(cmd.String("host"), strconv.Itoa(cmd.Int("port")))
	handler := newRootHandler(apiServer, mcp.NewClient("http://"+addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		logger.Info("REST API: http://" + addr + "/api")
		logger.Info("WebSocket: ws://" + addr + "/ws?session=<session_id>")
		logger.Info("MCP endpoint: http://" + addr + "/mcp")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			runNgrok(gctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is done.
// Tunnel failures are logged; they never stop the local server.
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler, logger *log.Logger) {
	if authToken == "" {
		logger.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	logger.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info("Using custom ngrok domain", "domain", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("Failed to start ngrok tunnel", "err", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("Failed to close ngrok tunnel", "err", err)
		}
	}()

	ngrokURL := tun.URL()
	logger.Info("🚀 Ngrok tunnel established", "url", ngrokURL)
	logger.Info("  REST API (ngrok): " + ngrokURL + "/api")
	logger.Info("  WebSocket (ngrok): " + ngrokURL + "/ws?session=<session_id>")
	logger.Info("  MCP endpoint (ngrok): " + ngrokURL + "/mcp")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("Ngrok server error", "err", err)
	}
	logger.Info("Ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server.
// It tries to reuse an external API at host:port; if unavailable, it starts a
// minimal internal HTTP API bound to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd)

	externalURL := "http://" + net.JoinHostPort(cmd.String("host"), strconv.Itoa(cmd.Int("port")))
	logger.Info("Checking for external API server", "url", externalURL)

	baseURL := externalURL
	if !apiAvailable(ctx, externalURL) {
		logger.Info("No external API server found, starting internal HTTP server")

		internalURL, shutdown, err := startInternalServer(ctx, cmd.String("config-dir"), cmd.Int64("seed"), logger)
		if err != nil {
			return err
		}
		defer shutdown()
		baseURL = internalURL
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info("MCP stdio server ready", "api", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiAvailable reports whether a horse race API answers at baseURL
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalServer serves the API on a random loopback port
func startInternalServer(ctx context.Context, configDir string, seed int64, logger *log.Logger) (string, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	gameService, _, err := initializeServices(configDir, seed, logger, hub)
	if err != nil {
		cancel()
		listener.Close()
		return "", nil, err
	}

	apiServer := api.NewServer(gameService, hub, api.WithLogger(logger))
	httpServer := &http.Server{Handler: apiServer}

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Internal HTTP server error", "err", err)
		}
	}()

	shutdown := func() {
		apiServer.Close()
		httpServer.Close()
		cancel()
	}

	internalURL := "http://" + listener.Addr().String()
	logger.Info("Internal HTTP server started", "url", internalURL)
	return internalURL, shutdown, nil
}

// runValidate validates every ruleset file in the given directory
func runValidate(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		dir = cmd.String("config-dir")
	}

	results, err := validate.Dir(dir)
	if err != nil {
		return err
	}
	if !validate.Report(cmd.Root().Writer, results) {
		return errors.New("some configurations have errors")
	}
	return nil
}

// simulation is the outcome of one headless session
type simulation struct {
	SessionID string
	Races     []race.Race
	Results   []race.Result
}

// runSimulate drives --sessions programmes to completion, --workers at a time
func runSimulate(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd)
	if !cmd.Bool("debug") {
		logger.SetLevel(log.WarnLevel)
	}

	count := cmd.Int("sessions")
	if count < 1 {
		return fmt.Errorf("--sessions must be at least 1, got %d", count)
	}

	seed := cmd.Int64("seed")
	gameService, _, err := initializeServices(cmd.String("config-dir"), seed, logger, nil)
	if err != nil {
		return err
	}

	sims := make([]simulation, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cmd.Int("workers"), 1))

	for i := range sims {
		g.Go(func() error {
			info, err := gameService.CreateSession(gctx, cmd.String("config"))
			if err != nil {
				return err
			}

			cfg := runner.Config{
				Tick:   cmd.Duration("tick"),
				Speed:  cmd.Float("speed"),
				Logger: logger,
			}
			if seed != 0 {
				cfg.Seed = seed + int64(i)
			}
			if err := runner.New(gameService, info.ID, cfg).Run(gctx); err != nil {
				return fmt.Errorf("session %s: %w", info.ID, err)
			}

			state, err := gameService.GetGameState(gctx, info.ID)
			if err != nil {
				return err
			}
			sims[i] = simulation{SessionID: info.ID, Races: state.Races, Results: state.Results}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printSimulations(cmd.Root().Writer, sims)
	return nil
}

// printSimulations prints each session's winners and a win table
func printSimulations(w io.Writer, sims []simulation) {
	wins := make(map[string]int)

	for _, sim := range sims {
		fmt.Fprintf(w, "Session %s\n", sim.SessionID)
		distances := make(map[int]int, len(sim.Races))
		for _, r := range sim.Races {
			distances[r.ID] = r.Distance
		}

		for _, res := range sim.Results {
			winner, ok := res.Winner()
			if !ok {
				continue
			}
			wins[winner.Name]++
			fmt.Fprintf(w, "  Race %d (%dm): %s (#%d), %d finishers\n",
				res.ID, distances[res.ID], winner.Name, winner.ID, len(res.Horses))
		}
	}

	names := make([]string, 0, len(wins))
	for name := range wins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if wins[names[i]] != wins[names[j]] {
			return wins[names[i]] > wins[names[j]]
		}
		return names[i] < names[j]
	})

	fmt.Fprintln(w, "Wins:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %d\n", name, wins[name])
	}
}
