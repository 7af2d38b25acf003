package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Horse Race Game",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Horse Race Game - MCP Interface

This is a thin client that proxies all requests to the REST API server.

A session holds a roster of horses and a program of races. Generate horses,
generate the program, start, then either record finishers yourself with
record_finish / commit_result / advance_race or call autorun and watch.

Call game_instructions for the full rules.`),
	)

	c.registerTools()
}

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID"))
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new game session with optional ruleset selection"),
		mcp.WithString("config_id", mcp.Description("Ruleset to use, see list_configs (optional)")),
	), c.handleCreateSession)

	c.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List all active game sessions"),
	), c.handleListSessions)

	c.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get details of a specific session"),
		sessionIDParam(),
	), c.handleGetSession)

	c.mcpServer.AddTool(mcp.NewTool("race_state",
		mcp.WithDescription("Get the roster, the race program, the current race and all results"),
		sessionIDParam(),
	), c.handleRaceState)

	// Generation
	c.mcpServer.AddTool(mcp.NewTool("generate_horses",
		mcp.WithDescription("Generate a fresh roster of horses with random names, colours and conditions"),
		sessionIDParam(),
	), c.commandHandler("horses", nil))

	c.mcpServer.AddTool(mcp.NewTool("generate_races",
		mcp.WithDescription("Generate the race program from the current roster. Clears previous results"),
		sessionIDParam(),
	), c.commandHandler("races", nil))

	// Running
	c.mcpServer.AddTool(mcp.NewTool("start_or_toggle",
		mcp.WithDescription("Start an idle session, or pause / resume a running one"),
		sessionIDParam(),
	), c.commandHandler("toggle", nil))

	c.mcpServer.AddTool(mcp.NewTool("record_finish",
		mcp.WithDescription("Record a horse crossing the line in the current race. The first horse recorded wins"),
		sessionIDParam(),
		mcp.WithNumber("horse_id", mcp.Required(), mcp.Description("ID of a horse running in the current race")),
	), c.commandHandler("finish", func(r mcp.CallToolRequest) interface{} {
		return map[string]int{"horse_id": r.GetInt("horse_id", 0)}
	}))

	c.mcpServer.AddTool(mcp.NewTool("commit_result",
		mcp.WithDescription("Commit the recorded finish order of the current race to its result"),
		sessionIDParam(),
		mcp.WithNumber("race_id", mcp.Required(), mcp.Description("ID of the current race")),
	), c.commandHandler("commit", func(r mcp.CallToolRequest) interface{} {
		return map[string]int{"race_id": r.GetInt("race_id", 0)}
	}))

	c.mcpServer.AddTool(mcp.NewTool("advance_race",
		mcp.WithDescription("Move on to the next race in the program"),
		sessionIDParam(),
	), c.commandHandler("advance", nil))

	c.mcpServer.AddTool(mcp.NewTool("reset_runtime",
		mcp.WithDescription("Stop the session and clear the finish order. Roster, program and results are kept"),
		sessionIDParam(),
	), c.commandHandler("reset-runtime", nil))

	c.mcpServer.AddTool(mcp.NewTool("reset_all",
		mcp.WithDescription("Reset the session to its initial empty state"),
		sessionIDParam(),
	), c.commandHandler("reset", nil))

	c.mcpServer.AddTool(mcp.NewTool("autorun",
		mcp.WithDescription("Let the server run the remaining races of the session in the background"),
		sessionIDParam(),
		mcp.WithNumber("tick_ms", mcp.Description("Milliseconds between simulation ticks (optional)")),
		mcp.WithNumber("speed", mcp.Description("Distance multiplier per tick (optional)")),
	), c.handleAutorun)

	// Reference
	c.mcpServer.AddTool(mcp.NewTool("list_configs",
		mcp.WithDescription("List available rulesets"),
	), c.handleListConfigs)

	c.mcpServer.AddTool(mcp.NewTool("game_instructions",
		mcp.WithDescription("Get the rules of the game and the order tools are meant to be used in"),
	), c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func sessionPath(sessionID, suffix string) string {
	path := "/api/sessions/" + url.PathEscape(sessionID)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{}
	if configID := request.GetString("config_id", ""); configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, http.MethodPost, "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s\n", session.ID, session.ConfigName)
	if session.Rules != nil {
		result += fmt.Sprintf("Roster: %d horses, %d races of %d runners\n",
			session.Rules.RosterSize, len(session.Rules.Distances), session.Rules.FieldSize)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, http.MethodGet, "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		status := race.StatusIdle
		if s.GameState != nil {
			status = s.GameState.Status
		}
		fmt.Fprintf(&result, "- %s (Config: %s, Status: %s, Created: %s)\n",
			s.ID, s.ConfigName, status, s.CreatedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleRaceState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state race.GameState
	if err := c.apiCall(ctx, http.MethodGet, sessionPath(sessionID, "state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatGameState(&state)), nil
}

// commandHandler returns a handler that POSTs to a session command route and
// renders the CommandResult. body builds the request body and may be nil.
func (c *Client) commandHandler(route string, body func(mcp.CallToolRequest) interface{}) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var payload interface{}
		if body != nil {
			payload = body(request)
		}

		var result service.CommandResult
		if err := c.apiCall(ctx, http.MethodPost, sessionPath(sessionID, route), payload, &result); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatCommandResult(&result)), nil
	}
}

func (c *Client) handleAutorun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{}
	if tick := request.GetInt("tick_ms", 0); tick > 0 {
		body["tick_ms"] = tick
	}
	if speed := request.GetFloat("speed", 0); speed > 0 {
		body["speed"] = speed
	}

	var response struct {
		Message string `json:"message"`
	}
	if err := c.apiCall(ctx, http.MethodPost, sessionPath(sessionID, "autorun"), body, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(response.Message + "\nPoll race_state to follow the races."), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, http.MethodGet, "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString("Available Rulesets:\n\n")
	for _, cfg := range configs {
		fmt.Fprintf(&result, "• %s (config_id: %s)\n  %s\n  Roster: %d, Races: %d, Field: %d\n\n",
			cfg.Name, cfg.ConfigID, cfg.Description, cfg.RosterSize, cfg.Races, cfg.FieldSize)
	}
	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Horse Race Game - Instructions

GAME OBJECTIVE:
Run a full race day: build a roster, draw up a program and run every race in
it until each race has a result.

SETUP:
1. create_session - optionally with a config_id from list_configs
2. generate_horses - draws a roster (20 horses in the classic rules) with
   unique names and colours and a condition between 1 and 100
3. generate_races - draws the program: one race per distance, each with its
   own random field taken from the roster. Regenerating the program clears
   all results

RUNNING:
- start_or_toggle starts an idle session. On a running session it pauses
  and resumes instead
- record_finish adds a horse of the current race to the finish order. The
  first horse recorded is the winner. A horse can only finish once per race
- commit_result stores the finish order recorded so far as the result of
  the current race. Committing again later appends the new finishers
- advance_race moves on to the next race and clears the finish order
- When the last race has a complete result the session is finished
- autorun hands the remaining races to the server, which moves the horses
  forward every tick according to their condition

RESETTING:
- reset_runtime stops the session and clears the finish order and race
  cursor. Roster, program and results stay
- reset_all goes back to an empty session

REJECTIONS:
Commands that do not fit the current state are rejected with a reason and
change nothing: starting without a program, recording a finish while paused,
advancing past the last race, committing an empty finish order and so on.`

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nConfig: %s\nCreated: %s\n\n%s",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatGameState(session.GameState))
}

func formatGameState(state *race.GameState) string {
	if state == nil {
		return "No game state available"
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Status: %s | Horses: %d | Races: %d | Results: %d\n",
		state.Status, len(state.Horses), len(state.Races), len(state.Results))

	if len(state.Races) > 0 {
		fmt.Fprintf(&result, "Race %d of %d", state.RaceState.RaceIndex+1, len(state.Races))
		if state.CurrentRace != nil {
			fmt.Fprintf(&result, " (id %d, %dm)", state.CurrentRace.ID, state.CurrentRace.Distance)
		}
		result.WriteString("\n")
	}

	if state.CurrentRace != nil {
		result.WriteString("\nField:\n")
		for _, h := range state.CurrentRace.Horses {
			fmt.Fprintf(&result, "  #%-3d %-16s %-14s condition %d\n", h.ID, h.Name, h.Color, h.Condition)
		}
	}

	if len(state.RaceState.FinishedOrder) > 0 {
		result.WriteString("\nFinish order:\n")
		for i, h := range state.RaceState.FinishedOrder {
			fmt.Fprintf(&result, "  %d. %s (#%d)\n", i+1, h.Name, h.ID)
		}
	}

	if len(state.Results) > 0 {
		result.WriteString("\nResults:\n")
		for _, res := range state.Results {
			result.WriteString(formatResultLine(res, state.Races))
		}
	}

	if state.Status == race.StatusFinished {
		result.WriteString("\n🏁 ALL RACES FINISHED")
	}
	return result.String()
}

func formatResultLine(res race.Result, races []race.Race) string {
	distance := 0
	for _, r := range races {
		if r.ID == res.ID {
			distance = r.Distance
			break
		}
	}
	winner := "-"
	if w, ok := res.Winner(); ok {
		winner = w.Name
	}
	return fmt.Sprintf("  Race %d (%dm): winner %s, %d finishers\n", res.ID, distance, winner, len(res.Horses))
}

func formatCommandResult(result *service.CommandResult) string {
	var out strings.Builder
	if result.Success {
		fmt.Fprintf(&out, "✓ %s\n", result.Command)
	} else {
		fmt.Fprintf(&out, "✗ %s\n", result.Command)
	}

	for _, ev := range result.Events {
		fmt.Fprintf(&out, "  %s\n", ev.Message)
	}
	if result.Result != nil {
		fmt.Fprintf(&out, "  Result for race %d now has %d finishers\n", result.Result.ID, len(result.Result.Horses))
	}

	out.WriteString("\n")
	out.WriteString(formatGameState(result.GameState))
	return out.String()
}
