// Package session provides session management for the horse race game.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Per-session random sources, optionally seeded for reproducible runs
//   - Session cleanup and expiration driven by an injectable clock
//
// Core Types:
//
// Manager is the main session manager that handles all session operations.
// Each service.Session carries its own race.Engine together with the rules
// it was created from and its creation and last access times.
//
// Session Identifiers:
//
// Sessions use 4-character hex IDs for easy reference. Lookups are
// case-insensitive, so "AB12" and "ab12" name the same session.
//
// Determinism:
//
// WithSeed makes the manager hand every new session a random source derived
// from the seed and the creation order. Two managers with the same seed that
// see the same sequence of commands generate identical rosters and programs.
//
// Usage:
//
//	manager := session.NewManager(session.WithSeed(42))
//
//	sess, err := manager.Create("", race.DefaultRules())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err = manager.Get(sessionID)
//
// Cleanup:
//
// Sessions live in memory only. RunJanitor periodically drops sessions that
// have not been accessed within a maximum age.
package session
