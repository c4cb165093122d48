// Package progress defines the event structures emitted during a harvest run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageQueryStart    Stage = "QUERY_START"
	StageQueryDone     Stage = "QUERY_DONE"
	StagePageCollected Stage = "PAGE_COLLECTED"
	StageFetchDone     Stage = "FETCH_DONE"
	StageRecordDone    Stage = "RECORD_DONE"
)

// Event captures a single milestone of harvester progress.
type Event struct {
	// RunID uniquely identifies a harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Query names the search this event belongs to.
	Query string
	// URL is the optional link or page URL; it should not contain credentials.
	URL string
	// Host scopes fetch events to a target host label.
	Host string
	// Outcome labels fetch completions (success, duplicate, timeout, ...) and
	// run completions (success, error).
	Outcome string
	// Method labels discovery or extraction methods where relevant.
	Method string
	// Links counts new candidate links on a collected page.
	Links int64
	// Bytes carries the downloaded size for a fetch completion.
	Bytes int64
	// Dur captures execution latency for fetches and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageQueryStart, StageQueryDone:
		if e.Query == "" {
			return errors.New("query stages require a query name")
		}
	case StagePageCollected:
		if e.Query == "" {
			return errors.New("page collected requires a query name")
		}
	case StageFetchDone:
		if e.Outcome == "" {
			return errors.New("fetch done requires an outcome")
		}
	case StageRecordDone:
		if e.Method == "" {
			return errors.New("record done requires an extraction method")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Links < 0 {
		return errors.New("links must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
