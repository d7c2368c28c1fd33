package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageCategoryStart Stage = "CATEGORY_START"
	StageCategoryDone  Stage = "CATEGORY_DONE"
	StageRunDone       Stage = "RUN_DONE"
)

// Event captures one step of a crawl run.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	// Categories is the number of resolved categories (RUN_START only).
	Categories int
	// Category and URL identify the category for CATEGORY_* stages.
	Category string
	URL      string
	// Outcome, Pages, Found and Written describe a finished category.
	Outcome string
	Pages   int
	Found   int
	Written int
	Dur     time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageCategoryStart:
		if e.Category == "" {
			return errors.New("category start requires category")
		}
	case StageCategoryDone:
		if e.Category == "" || e.Outcome == "" {
			return errors.New("category done requires category and outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
