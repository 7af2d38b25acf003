package race

import (
	"errors"
	"fmt"
)

// Error kinds. Every rejected command wraps exactly one of these.
var (
	ErrPrecondition = errors.New("precondition violation")
	ErrInvariant    = errors.New("invariant guard")
)

// Precondition violations
var (
	ErrNoSchedule      = fmt.Errorf("%w: no race schedule", ErrPrecondition)
	ErrRosterTooSmall  = fmt.Errorf("%w: roster too small for a race field", ErrPrecondition)
	ErrAlreadyRunning  = fmt.Errorf("%w: session already running", ErrPrecondition)
	ErrSessionFinished = fmt.Errorf("%w: all races finished", ErrPrecondition)
	ErrRaceInProgress  = fmt.Errorf("%w: race in progress", ErrPrecondition)
	ErrNotRunning      = fmt.Errorf("%w: session not running", ErrPrecondition)
	ErrPaused          = fmt.Errorf("%w: session paused", ErrPrecondition)
	ErrUnknownRace     = fmt.Errorf("%w: unknown race", ErrPrecondition)
	ErrUnknownHorse    = fmt.Errorf("%w: unknown horse", ErrPrecondition)
)

// Invariant guards
var (
	ErrNoMoreRaces     = fmt.Errorf("%w: no more races", ErrInvariant)
	ErrAlreadyFinished = fmt.Errorf("%w: horse already finished", ErrInvariant)
	ErrHorseNotInRace  = fmt.Errorf("%w: horse not in current race", ErrInvariant)
	ErrNothingToCommit = fmt.Errorf("%w: nothing to commit", ErrInvariant)
)

// IsRejected reports whether err is a rejected-command signal rather than a
// failure of the surrounding system.
func IsRejected(err error) bool {
	return errors.Is(err, ErrPrecondition) || errors.Is(err, ErrInvariant)
}
