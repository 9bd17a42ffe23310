package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/noncewatch/noncewatch/internal/drift"
	"github.com/noncewatch/noncewatch/internal/source"
)

// Fetcher retrieves the counter pair for one process.
type Fetcher interface {
	Fetch(ctx context.Context, processID string) (source.Pair, error)
}

// Runner drives the fetch → compare pipeline across a batch of processes.
type Runner struct {
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Runner with the given fetcher and logger.
func New(fetcher Fetcher, logger *slog.Logger) *Runner {
	return &Runner{fetcher: fetcher, logger: logger, now: time.Now}
}

// RunAll checks every process sequentially, in input order. Duplicates in
// the input run twice. A failure in one item never aborts the batch: it is
// recorded on that item's Outcome and the loop continues. Sequential
// execution keeps upstream load bounded at two in-flight requests
// regardless of batch size.
func (r *Runner) RunAll(ctx context.Context, processIDs []string) ([]Outcome, Summary) {
	outcomes := make([]Outcome, 0, len(processIDs))
	for _, id := range processIDs {
		out := r.checkOne(ctx, id)
		r.logOutcome(out)
		outcomes = append(outcomes, out)
	}

	sum := summarize(outcomes)
	r.logger.Info("batch complete",
		"total", sum.Total,
		"matches", sum.Matches,
		"mismatches", sum.Mismatches,
		"errors", sum.Errors)
	return outcomes, sum
}

func (r *Runner) checkOne(ctx context.Context, processID string) (out Outcome) {
	start := r.now()
	out = Outcome{ProcessID: processID, CheckedAt: start}
	defer func() {
		if p := recover(); p != nil {
			out = Outcome{
				ProcessID: processID,
				CheckedAt: start,
				ErrKind:   "internal",
				Err:       fmt.Errorf("check panicked: %v", p),
			}
		}
		out.Duration = r.now().Sub(start)
	}()

	pair, err := r.fetcher.Fetch(ctx, processID)
	if err != nil {
		out.Err = err
		out.ErrKind = errKind(err)
		return out
	}

	out.Primary = pair.Primary
	out.Secondary = pair.Secondary
	// Exact string comparison: differently formatted representations of the
	// same integer count as a mismatch.
	out.Matched = pair.Primary == pair.Secondary
	if !out.Matched {
		diff, derr := drift.Diff(pair.Primary, pair.Secondary)
		if derr != nil {
			r.logger.Warn("non-numeric counter values, drift set to 0",
				"process", processID, "error", derr)
		}
		out.Diff = diff
	}
	return out
}

func (r *Runner) logOutcome(out Outcome) {
	log := r.logger.With("process", out.ProcessID)
	switch {
	case out.Errored():
		log.Error("check failed", "status", "ERROR", "kind", out.ErrKind, "error", out.Err)
	case out.Matched:
		log.Info("nonce in sync", "status", "OK", "nonce", out.Primary)
	default:
		log.Warn("nonce drift detected", "status", "MISMATCH",
			"primary", out.Primary, "secondary", out.Secondary, "diff", out.Diff)
	}
}

func summarize(outcomes []Outcome) Summary {
	sum := Summary{Total: len(outcomes)}
	for _, out := range outcomes {
		switch {
		case out.Errored():
			sum.Errors++
		case out.Matched:
			sum.Matches++
		default:
			sum.Mismatches++
		}
	}
	return sum
}

func errKind(err error) string {
	var se *source.Error
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	return "internal"
}
