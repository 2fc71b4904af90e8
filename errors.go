package vkframe

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Swapchain build failures. Fatal unless the caller retries with different
// parameters.
var (
	ErrSurfaceIncompatible = errors.New("surface reports no usable format or present mode")
	ErrDeviceRejected      = errors.New("device rejected swapchain object creation")
)

// Recoverable per-frame conditions. The swapchain is rebuilt and the frame
// is skipped, not failed.
var (
	ErrOutOfDate  = errors.New("swapchain out of date")
	ErrSuboptimal = errors.New("swapchain suboptimal")
)

// ErrRecordingFailed drops a single frame. The loop continues.
var ErrRecordingFailed = errors.New("command recording failed")

// Queue and device corruption. Surfaced to the caller, which is expected to
// tear down the whole graphics context.
var (
	ErrSubmitFailed  = errors.New("queue submit failed")
	ErrPresentFailed = errors.New("queue present failed")
	ErrDeviceLost    = errors.New("device lost")
)

var (
	ErrFrameNotActive = errors.New("frame is not the active frame")
	ErrShutdown       = errors.New("renderer is shut down")
)

// IsRecoverable reports whether err asks for a swapchain rebuild rather than
// a teardown.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}

// IsFatal reports whether err leaves queue or device state untrustworthy.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrSubmitFailed, ErrPresentFailed, ErrDeviceLost,
		ErrSurfaceIncompatible, ErrDeviceRejected, ErrShutdown,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// kindError tags a backend error with one of the sentinels above while
// keeping the backend's message and cause.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// Mark returns cause tagged as kind, so errors.Is(err, kind) holds and the
// original cause stays reachable through Unwrap.
func Mark(cause, kind error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return pkgerrors.WithStack(&kindError{kind: kind, cause: cause})
}
