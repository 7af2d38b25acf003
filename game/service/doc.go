// Package service provides the business logic layer for the Horse Race Game.
//
// The service package implements:
//   - Multi-session game management
//   - Ruleset selection when a session is created
//   - Serialised execution of race commands against a session
//   - Collection of race events per command
//   - Change notification for observers such as the WebSocket hub
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages ruleset loading and validation.
// Notifier receives every state change so user interfaces can refresh.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the race engine. A race.Engine assumes a single writer; the service is that
// writer and holds a lock for the duration of every command, so transports and
// the headless runner can call it from any goroutine.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	gameService := service.NewGameService(sessionMgr, configMgr)
//
//	info, err := gameService.CreateSession(ctx, "classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameService.GenerateHorses(ctx, info.ID)
//	gameService.GenerateRaces(ctx, info.ID)
//	gameService.StartOrToggle(ctx, info.ID)
//
// Rejected Commands:
//
// Commands the race engine rejects are returned as errors wrapping
// race.ErrPrecondition or race.ErrInvariant. The session state is unchanged in
// that case, and transports report a conflict rather than a failure.
package service
