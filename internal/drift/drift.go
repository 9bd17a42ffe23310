package drift

import (
	"fmt"
	"strconv"
)

// Severity classifies how far apart the two sources have drifted.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Tier boundaries in slots.
const (
	errorAt    = 50
	criticalAt = 100
)

// Diff returns the absolute numeric difference between two nonce values.
// Values are compared for equality as strings elsewhere; Diff is only used
// once they are known to differ.
func Diff(primary, secondary string) (int64, error) {
	p, err := strconv.ParseInt(primary, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing primary value %q: %w", primary, err)
	}
	s, err := strconv.ParseInt(secondary, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing secondary value %q: %w", secondary, err)
	}
	d := p - s
	if d < 0 {
		d = -d
	}
	return d, nil
}

// Classify maps a drift magnitude to a severity tier.
func Classify(diff int64) Severity {
	switch {
	case diff >= criticalAt:
		return SeverityCritical
	case diff >= errorAt:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// rank orders severities for threshold comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above the given threshold severity.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.rank() >= threshold.rank()
}

// ParseSeverity returns the severity named by s, or an error for unknown names.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityWarning, SeverityError, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}
