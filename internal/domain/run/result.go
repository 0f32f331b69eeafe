// Package run decides whether a live telemetry payload is worth announcing
// and renders the announcement.
package run

import "github.com/sm64br/runwatch/internal/domain/category"

// Reason is the outcome of an eligibility evaluation.
type Reason string

// Evaluation outcomes.
const (
	ReasonOK                Reason = "ok"
	ReasonParseError        Reason = "parse_error"
	ReasonWrongGame         Reason = "wrong_game"
	ReasonNotLive           Reason = "not_live"
	ReasonUnknownCategory   Reason = "unknown_category"
	ReasonNoThreshold       Reason = "no_threshold"
	ReasonBelowPercentage   Reason = "below_percentage"
	ReasonAboveBestPossible Reason = "above_best_possible"
	ReasonImpossiblePB      Reason = "impossible_pb"
)

// Split is one timed segment, ordered by Index.
type Split struct {
	Index int
	Name  string
	// Time is the elapsed time at this split in milliseconds.
	Time int64
	// Delta is Time minus the personal best split time.
	Delta int64
}

// Run is the state derived from one qualifying payload.
type Run struct {
	Runner     string
	Category   string
	Kind       category.Category
	Percentage float64
	PB         int64
	BPT        int64
	SOB        int64
	Emulator   bool
	Attempts   int64
	URL        string
	Splits     []Split
}

// Result is returned by Evaluate. Run is set only when Reason is ReasonOK.
type Result struct {
	Reason Reason
	// Runner is the payload's user when it could be read, even on rejection.
	Runner string
	Run    *Run
	// Err carries the decoding failure for ReasonParseError.
	Err error
}

// OK reports whether the run qualified.
func (r Result) OK() bool { return r.Reason == ReasonOK }
