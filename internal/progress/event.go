package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageTaskReceived Stage = "TASK_RECEIVED"
	StageTaskSkipped  Stage = "TASK_SKIPPED"
	StageFetchDone    Stage = "FETCH_DONE"
	StageFetchError   Stage = "FETCH_ERROR"
	StageTaskDone     Stage = "TASK_DONE"
	StageTaskError    Stage = "TASK_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures one milestone of a single task invocation.
type Event struct {
	// TaskID identifies the invocation using the 16-byte UUID form.
	TaskID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Domain is the frontier key of the task URL, when known.
	Domain string
	// URL is the normalized page URL, when known.
	URL string
	// StatusClass groups the HTTP response code of a fetch.
	StatusClass StatusClass
	// Links counts internal links persisted for the page.
	Links int64
	// Queued counts new tasks handed to the work distributor.
	Queued int64
	// Dur is the fetch latency for fetch stages and task latency otherwise.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TaskID == [16]byte{} {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTaskReceived, StageTaskError:
	case StageTaskSkipped, StageTaskDone, StageFetchError:
		if e.Domain == "" {
			return fmt.Errorf("%s requires domain", e.Stage)
		}
	case StageFetchDone:
		if e.Domain == "" {
			return errors.New("fetch done requires domain")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Links < 0 || e.Queued < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}

// TaskUUID converts the binary task ID to uuid.UUID.
func (e Event) TaskUUID() uuid.UUID {
	return uuid.UUID(e.TaskID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	return [16]byte(id)
}

// ClassifyStatus groups HTTP status codes for fetch events. Codes outside
// 200-599 fall into StatusOther.
func ClassifyStatus(code int) StatusClass {
	switch code / 100 {
	case 2:
		return Status2xx
	case 3:
		return Status3xx
	case 4:
		return Status4xx
	case 5:
		return Status5xx
	}
	return StatusOther
}
