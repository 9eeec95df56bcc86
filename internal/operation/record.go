package operation

import (
	"errors"
	"time"
)

// Step names the phase an operation is in.
type Step string

// Operation steps in the order the notebook creator visits them.
const (
	StepStarting            Step = "starting"
	StepAuthenticating      Step = "authenticating"
	StepCreatingFiles       Step = "creating_files"
	StepCreatingAudioFolder Step = "creating_audio_folder"
	StepUploadingAudio      Step = "uploading_audio"
	StepComplete            Step = "complete"
	StepError               Step = "error"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepStarting, StepAuthenticating, StepCreatingFiles, StepCreatingAudioFolder,
		StepUploadingAudio, StepComplete, StepError:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further updates follow s.
func (s Step) Terminal() bool {
	return s == StepComplete || s == StepError
}

var (
	// ErrNotFound means the id never existed or its record has expired.
	ErrNotFound = errors.New("progress not found")
	// ErrNotMonotonic rejects an update that does not move progress forward.
	ErrNotMonotonic = errors.New("progress must increase")
	// ErrFinished rejects updates after Complete or Fail.
	ErrFinished = errors.New("operation already finished")
	// ErrInvalidStep rejects unknown or misplaced steps.
	ErrInvalidStep = errors.New("invalid step")
)

// Status is the wire contract returned by the status endpoint and consumed by
// pollers.
type Status struct {
	Step     Step   `json:"step"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Done reports whether a poller should stop with success.
func (s Status) Done() bool {
	return s.Step == StepComplete || s.Progress >= 100
}

// Failed reports whether the operation ended in error.
func (s Status) Failed() bool {
	return s.Step == StepError
}

// Record is the stored snapshot for one operation.
type Record struct {
	ID        string
	Status    Status
	StartedAt time.Time
	UpdatedAt time.Time
	// ExpiresAt is set once the record reaches a terminal step.
	ExpiresAt *time.Time
}

func (r Record) expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}
