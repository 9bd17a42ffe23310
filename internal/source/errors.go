package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies why a source fetch failed.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindHTTPStatus  Kind = "http_status"
	KindBadDocument Kind = "bad_document"
	KindEmptyValue  Kind = "empty_value"
)

// Error is a classified failure from one of the two sources. Attempts is
// only set when the retry loop gave up.
type Error struct {
	Source   string // "primary" or "secondary"
	Kind     Kind
	Status   int // HTTP status, when Kind is KindHTTPStatus
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s source: %s", e.Source, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the error is worth retrying: timeouts, network
// and DNS failures, HTTP 5xx, and HTTP 429. Document-shape and other 4xx
// failures fail immediately.
func Retryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPStatus:
		return se.Status >= 500 || se.Status == 429
	}
	return false
}

// classifyTransport maps a transport-level error from http.Client.Do to a
// timeout or network kind.
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
