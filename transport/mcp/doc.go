// Package mcp exposes the horse race game to AI agents over the Model
// Context Protocol.
//
// The Client registers one MCP tool per game operation and proxies every
// call to the REST API, so agents see exactly the state and rejections a
// browser client sees. Results are rendered as plain text meant for reading.
//
// MCP Tools:
//   - create_session, list_sessions, get_session: session management
//   - race_state: roster, program, current race and results
//   - generate_horses, generate_races: build the roster and the program
//   - start_or_toggle: start the session, or pause and resume it
//   - record_finish, commit_result, advance_race: drive a race by hand
//   - reset_runtime, reset_all: clear runtime state or everything
//   - autorun: let the server run the remaining races headlessly
//   - list_configs, game_instructions: rulesets and how to play
//
// Transport Modes:
//   - Stdio: the mcp command serves stdio and targets an external API or
//     an internal one it starts itself
//   - HTTP: the serve command answers JSON-RPC on /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
