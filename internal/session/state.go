package session

import "time"

// State is the capture session lifecycle state.
type State int

const (
	Closed State = iota
	Opening
	Streaming
	Paused
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Streaming:
		return "streaming"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Cause records what triggered a transition.
type Cause string

const (
	CauseResume     Cause = "resume"
	CauseMotion     Cause = "motion"
	CauseIdle       Cause = "idle"
	CauseSuspend    Cause = "suspend"
	CauseConfigured Cause = "configured"
	CauseFailed     Cause = "failed"
	CauseShutdown   Cause = "shutdown"
)

// Transition describes one state change.
type Transition struct {
	RunID string
	From  State
	To    State
	Cause Cause
	Err   error
	At    time.Time
}

// Status texts presented to the user.
const (
	StatusStarting            = "Camera is starting..."
	StatusIdle                = "Camera paused due to inactivity..."
	StatusPaused              = "Camera paused."
	StatusPermissionDenied    = "Camera permission is not granted!"
	StatusConfigurationFailed = "Failed to configure the depth camera!"
	StatusUnavailable         = "Depth camera is unavailable!"
)
