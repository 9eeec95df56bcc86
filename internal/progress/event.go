package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageOperationStart Stage = "OPERATION_START"
	StageStep           Stage = "STEP"
	StageOperationDone  Stage = "OPERATION_DONE"
	StageOperationError Stage = "OPERATION_ERROR"
	StageFileUploaded   Stage = "FILE_UPLOADED"
	StageFileFailed     Stage = "FILE_FAILED"
)

// Event captures a single milestone of one notebook operation.
type Event struct {
	// OperationID is the progress identifier handed to pollers.
	OperationID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Step is the operation step name for STEP events.
	Step string
	// Progress is the percentage recorded with the step.
	Progress int
	// File names the audio file for file events.
	File string
	// Bytes carries the uploaded size for FILE_UPLOADED.
	Bytes int64
	// Dur captures elapsed time for completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.OperationID == "" {
		return errors.New("operation id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageOperationStart, StageOperationDone, StageOperationError:
	case StageStep:
		if e.Step == "" {
			return errors.New("step event requires step")
		}
		if e.Progress < 0 || e.Progress > 100 {
			return fmt.Errorf("progress %d out of range", e.Progress)
		}
	case StageFileUploaded, StageFileFailed:
		if e.File == "" {
			return errors.New("file event requires file")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
