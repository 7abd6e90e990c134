// Package bwconvert converts color raster images into 1-bit black-and-white
// PNGs using Floyd–Steinberg error diffusion.
package bwconvert

import "errors"

var (
	// ErrLoadFailed is returned when the input image cannot be read or decoded.
	ErrLoadFailed = errors.New("input image could not be loaded")
	// ErrOutOfMemory is returned when a pixel buffer cannot be allocated.
	ErrOutOfMemory = errors.New("pixel buffer allocation failed")
	// ErrWriteFailed is returned when the output image cannot be encoded or written.
	ErrWriteFailed = errors.New("output image could not be written")
)

// Outcome is the terminal result of one conversion. A conversion produces
// exactly one Outcome and is never retried internally.
type Outcome int

const (
	// OutcomeOK indicates the conversion succeeded and the output was written.
	OutcomeOK Outcome = iota
	// OutcomeLoadFailed indicates the input was unreadable or undecodable.
	OutcomeLoadFailed
	// OutcomeOutOfMemory indicates a pixel buffer could not be allocated.
	OutcomeOutOfMemory
	// OutcomeWriteFailed indicates the output could not be encoded or written.
	OutcomeWriteFailed
)

// ExitCode maps the outcome to the stable process exit code scheme:
// 0 = success, 1 = load error, 2 = memory error, 3 = write error.
func (outcome Outcome) ExitCode() int {
	return int(outcome)
}

// Err returns the sentinel error matching the outcome, or nil for OutcomeOK.
func (outcome Outcome) Err() error {
	switch outcome {
	case OutcomeOK:
		return nil
	case OutcomeLoadFailed:
		return ErrLoadFailed
	case OutcomeOutOfMemory:
		return ErrOutOfMemory
	case OutcomeWriteFailed:
		return ErrWriteFailed
	default:
		return errors.New("unknown conversion outcome")
	}
}

func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeOK:
		return "ok"
	case OutcomeLoadFailed:
		return "load failed"
	case OutcomeOutOfMemory:
		return "out of memory"
	case OutcomeWriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}
