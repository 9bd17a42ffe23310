package dedup

import (
	"fmt"
	"time"
)

// Key derives the deterministic deduplication key for an incident. The key
// rotates with the UTC calendar day, so an unresolved condition produces a
// logically new incident each day.
func Key(processID, kind string, day time.Time) string {
	return fmt.Sprintf("nonce-drift:%s:%s:%s", processID, kind, day.UTC().Format("2006-01-02"))
}
