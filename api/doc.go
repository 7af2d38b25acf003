// Package api provides the HTTP REST API for the horse race game.
//
// The api package implements:
//   - Session management endpoints
//   - One endpoint per race command
//   - Ruleset listing and lookup
//   - Background autorun of a session's program
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create new session ({"config_id": "sprint"} optional)
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get specific session
//   - DELETE /api/sessions/{id} - Delete session and stop its autorun
//
// Race Commands (all POST, all return a CommandResult):
//   - /api/sessions/{id}/horses - Generate the roster
//   - /api/sessions/{id}/races - Generate the program
//   - /api/sessions/{id}/start - Start an idle session
//   - /api/sessions/{id}/pause - Toggle pause on a running session
//   - /api/sessions/{id}/toggle - Start when idle, toggle pause otherwise
//   - /api/sessions/{id}/advance - Move to the next race
//   - /api/sessions/{id}/finish - Record a finisher ({"horse_id": 7})
//   - /api/sessions/{id}/commit - Commit the finish order ({"race_id": 2})
//   - /api/sessions/{id}/reset-runtime - Clear the runtime state
//   - /api/sessions/{id}/reset - Clear everything
//   - /api/sessions/{id}/autorun - Run the rest of the program headlessly
//
// Queries:
//   - GET /api/sessions/{id}/state - Game state snapshot
//   - GET /api/sessions/{id}/results - Committed results
//   - GET /api/configs, GET /api/configs/{name} - Rulesets
//   - GET /api/health - Liveness
//
// WebSocket:
//   - /ws?session={id} - State and event push for one session
//
// Error Handling:
//
// Errors are returned as JSON with a status code that tells the caller what
// went wrong:
//
//	{"error": "start: precondition violation: no race schedule"}
//
//   - 400: malformed request body
//   - 404: unknown session or ruleset
//   - 409: command rejected in the current state; nothing was changed
//   - 500: anything else
package api
