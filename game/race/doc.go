// Package race provides the core state machine for the Horse Race Game.
//
// The race package implements:
//   - Roster generation with unbiased (Fisher-Yates) name and colour assignment
//   - Race schedule generation over a fixed, ascending set of distances
//   - Session transitions between idle, running, paused and finished
//   - Finish-order bookkeeping and merge-on-commit race results
//   - Ruleset definition and validation
//
// Core Types:
//
// Engine owns the full state of one game: the horse roster, the race
// schedule, the runtime RaceState and the historical Results. GameState is a
// deep-copied snapshot of that state, safe to hand to other goroutines or to
// encode as JSON. Rules describes the sizes, distances and catalogs used by
// generation.
//
// Usage:
//
//	eng, err := race.NewEngine(race.DefaultRules(), randutil.New(seed))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	eng.GenerateHorses()
//	if _, err := eng.GenerateRaces(); err != nil {
//		log.Fatal(err)
//	}
//	eng.Start()
//
//	// The animation layer reports finishers as they cross the line
//	eng.RecordFinish(7)
//	eng.CommitResult(eng.CurrentRace().ID)
//	eng.AdvanceRace()
//
// Errors:
//
// Rejected commands leave the state untouched and return an error wrapping
// either ErrPrecondition or ErrInvariant, so callers can classify them with
// errors.Is and decide whether to surface them or simply ignore them.
//
// Concurrency:
//
// An Engine assumes a single writer and performs no locking. Callers that
// share an Engine across goroutines must serialise access; the service
// package does this for every session it manages.
package race
