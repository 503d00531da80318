package export

import "errors"

// UserMessage is the only failure text shown to users; causes go to logs
const UserMessage = "Failed to generate PDF. Please try again."

var (
	// ErrCaptureFailure wraps errors from mounting or capturing a slide
	ErrCaptureFailure = errors.New("capture failed")
	// ErrAssemblyFailure wraps errors from the document assembler
	ErrAssemblyFailure = errors.New("assembly failed")
	// ErrSaveFailure wraps errors handing the document to its sink
	ErrSaveFailure = errors.New("save failed")
	// ErrCancelled reports that a job stopped because cancel was requested.
	// It is a control signal, not a failure.
	ErrCancelled = errors.New("export cancelled")
	// ErrJobRunning is returned by Run while a job is in progress
	ErrJobRunning = errors.New("export already running")
	// ErrJobNotFound is returned by the manager for unknown job ids
	ErrJobNotFound = errors.New("export job not found")
)
