package playback

import (
	"errors"
	"time"
)

// Common errors for the playback system.
var (
	// Transport errors
	ErrNoAudio       = errors.New("no audio loaded")
	ErrNotReady      = errors.New("audio is not ready for playback")
	ErrInvalidVolume = errors.New("volume must be between 0.0 and 1.0")
	ErrInvalidSeek   = errors.New("seek position out of range")

	// Renderer errors
	ErrRendererInit = errors.New("waveform renderer failed to initialize")
	ErrMediaLoad    = errors.New("audio failed to load")
	ErrPlayRejected = errors.New("playback was rejected")
	ErrNotLoaded    = errors.New("renderer has no media loaded")

	// Native routing errors
	ErrSinkUnsupported   = errors.New("system audio is not supported")
	ErrNoMatchingDevices = errors.New("no matching devices found")
	ErrRoutingFailed     = errors.New("native routing failed")
	ErrSinkCannotSeek    = errors.New("native sink cannot start mid-stream")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityWarning is for degraded operation the user is not told about.
	SeverityWarning ErrorSeverity = iota
	// SeverityError is for errors that prevent normal operation.
	SeverityError
)

// PlaybackError provides detailed error information.
type PlaybackError struct {
	Err         error         // The underlying error
	Component   string        // renderer, sink, resolver, coordinator
	Action      string        // Action being performed when the error occurred
	Severity    ErrorSeverity // Severity of the error
	UserVisible bool          // Whether the error is surfaced to the user
	Timestamp   time.Time
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	if e.Err == nil {
		return "unknown playback error"
	}
	if e.Action != "" {
		return e.Component + " " + e.Action + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// NewPlaybackError creates a new user-visible playback error.
func NewPlaybackError(err error, component, action string) *PlaybackError {
	return &PlaybackError{
		Err:         err,
		Component:   component,
		Action:      action,
		Severity:    SeverityError,
		UserVisible: true,
		Timestamp:   time.Now(),
	}
}

// Silent marks the error as recovered locally and not shown to the user.
func (e *PlaybackError) Silent() *PlaybackError {
	e.UserVisible = false
	e.Severity = SeverityWarning
	return e
}

// IsUserVisible reports whether err belongs to the mandatory playback path
// and must be surfaced. Failures on the native routing path never are.
func IsUserVisible(err error) bool {
	if err == nil {
		return false
	}
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe.UserVisible
	}
	switch {
	case errors.Is(err, ErrSinkUnsupported),
		errors.Is(err, ErrNoMatchingDevices),
		errors.Is(err, ErrSinkCannotSeek),
		errors.Is(err, ErrRoutingFailed):
		return false
	}
	return true
}
