// Package websocket pushes session updates to browser clients.
//
// The websocket package implements:
//   - Session-aware WebSocket connections
//   - State broadcasting after every successful command
//   - Event broadcasting for every engine event
//   - Connection lifecycle management
//
// Architecture:
//
// A central Hub owns every connection. Registration, removal and delivery
// all go through the hub's event loop, so the client set is only ever
// touched from one goroutine. Each connection has a read pump that keeps
// it alive and a write pump that drains its send queue.
//
// Message Protocol:
//
// Every frame is one JSON-encoded Message:
//   - {"session_id": "ab12", "event": "state_update", "game_state": {...}}
//   - {"session_id": "ab12", "event": "finish_recorded", "data": {...}}
//
// Clients pick their session with ?session=ab12 when connecting and only
// receive messages for that session. When the caller has a snapshot at hand
// it is sent as the first state_update.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	svc := service.NewGameService(sessions, configs, service.WithNotifier(hub))
//
// Slow clients whose queue fills up are dropped rather than stalling the
// broadcast for everyone else.
package websocket
