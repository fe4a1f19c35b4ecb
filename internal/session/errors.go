package session

import "errors"

var (
	// ErrSessionConfigurationFailed is returned when the camera accepts the
	// session but rejects the repeating capture request.
	ErrSessionConfigurationFailed = errors.New("capture session configuration failed")
	// ErrPermissionDenied is returned by openers when camera access is refused.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrResourceUnavailable is returned by openers when the camera is busy
	// or absent.
	ErrResourceUnavailable = errors.New("camera resource unavailable")
	// ErrHandlerUnavailable is returned when a session is opened without a
	// live background worker to receive its frames.
	ErrHandlerUnavailable = errors.New("frame handler unavailable")
)

func statusForError(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return StatusPermissionDenied
	case errors.Is(err, ErrSessionConfigurationFailed):
		return StatusConfigurationFailed
	default:
		return StatusUnavailable
	}
}
