package runner

import (
	"time"
)

// Outcome captures one process check. Errors are stored in Err/ErrKind
// rather than returned, so the batch always has a row per input id.
// Exactly one of three states holds: matched, mismatched with both values
// set, or errored with both values empty.
type Outcome struct {
	ProcessID string
	Primary   string
	Secondary string
	Matched   bool
	Diff      int64 // absolute slot difference, only meaningful on mismatch
	ErrKind   string
	Err       error
	CheckedAt time.Time
	Duration  time.Duration
}

// Errored reports whether the check failed outright.
func (o Outcome) Errored() bool { return o.Err != nil }

// Summary aggregates a batch. Total == Matches + Mismatches + Errors.
type Summary struct {
	Total      int
	Matches    int
	Mismatches int
	Errors     int
}

// ExitCode maps a summary to the process exit status: hard errors always
// fail; mismatches fail only under the strict policy.
func (s Summary) ExitCode(failOnMismatch bool) int {
	if s.Errors > 0 {
		return 1
	}
	if failOnMismatch && s.Mismatches > 0 {
		return 1
	}
	return 0
}
