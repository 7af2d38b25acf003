// Package runner drives a session through its race program without a UI.
//
// A Runner plays the part the animation layer plays in the browser: on every
// tick it moves the horses of the current race forward, records the ones that
// cross the line, commits the result once the whole field is home and then
// moves on to the next race until the program is finished.
//
// Horses advance by condition/10 plus a small random jitter each tick, scaled
// by Config.Speed. Horses that cross the line on the same tick are recorded in
// order of how far past the line they got.
//
// The runner only talks to the session through the Controller interface, so
// every finish it records goes through the same command path, locking and
// notifications as a finish reported by a client.
//
// Usage:
//
//	r := runner.New(svc, sessionID, runner.Config{Tick: 50 * time.Millisecond})
//	if err := r.Run(ctx); err != nil {
//		log.Error("autorun stopped", "err", err)
//	}
package runner
