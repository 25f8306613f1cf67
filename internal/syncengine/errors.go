package syncengine

import "errors"

// ErrAlreadyRunning is returned by Start when another run is already in
// {running, paused}, per spec §4.6's global singleton-run invariant.
var ErrAlreadyRunning = errors.New("syncengine: a run is already active")

// ErrNotFound is returned by Pause/Resume/Cancel when the given syncId
// does not match the currently active run.
var ErrNotFound = errors.New("syncengine: no such sync run")

// ErrWrongState is returned by Pause/Resume/Cancel when the run is not in
// a state that accepts the requested transition.
var ErrWrongState = errors.New("syncengine: run is not in a state that accepts this transition")
