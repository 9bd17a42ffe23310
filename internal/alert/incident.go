package alert

import (
	"fmt"
	"time"

	"github.com/noncewatch/noncewatch/internal/dedup"
	"github.com/noncewatch/noncewatch/internal/drift"
	"github.com/noncewatch/noncewatch/internal/runner"
)

// Kind distinguishes drift incidents from failed checks.
type Kind string

const (
	KindMismatch Kind = "mismatch"
	KindError    Kind = "error"
)

// Incident is a candidate or active alert for one process.
type Incident struct {
	ProcessID string
	Kind      Kind
	Severity  drift.Severity
	DedupKey  string
	Primary   string
	Secondary string
	Diff      int64
	ErrText   string
	Timestamp time.Time
}

// Summary renders the one-line human-readable description used by the
// incident sink payload.
func (i Incident) Summary() string {
	if i.Kind == KindError {
		return fmt.Sprintf("Nonce check failed for %s: %s", i.ProcessID, i.ErrText)
	}
	return fmt.Sprintf("Nonce drift for %s: primary %s vs secondary %s (%d slots apart)",
		i.ProcessID, i.Primary, i.Secondary, i.Diff)
}

// BuildIncidents filters a batch down to alert-worthy incidents: every
// errored check, plus mismatches at or above the drift threshold. Matched
// outcomes never produce an incident.
func BuildIncidents(outcomes []runner.Outcome, threshold int64, now time.Time) []Incident {
	var incidents []Incident
	for _, out := range outcomes {
		switch {
		case out.Errored():
			incidents = append(incidents, Incident{
				ProcessID: out.ProcessID,
				Kind:      KindError,
				Severity:  drift.SeverityError,
				DedupKey:  dedup.Key(out.ProcessID, string(KindError), now),
				ErrText:   out.Err.Error(),
				Timestamp: now,
			})
		case !out.Matched && out.Diff >= threshold:
			incidents = append(incidents, Incident{
				ProcessID: out.ProcessID,
				Kind:      KindMismatch,
				Severity:  drift.Classify(out.Diff),
				DedupKey:  dedup.Key(out.ProcessID, string(KindMismatch), now),
				Primary:   out.Primary,
				Secondary: out.Secondary,
				Diff:      out.Diff,
				Timestamp: now,
			})
		}
	}
	return incidents
}
