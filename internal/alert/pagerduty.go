package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEventsURL is the PagerDuty Events API v2 endpoint.
const DefaultEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutySink posts trigger/resolve events to the incident sink.
// The API deduplicates on dedup_key, so sends are idempotent.
type PagerDutySink struct {
	EventsURL  string
	RoutingKey string
	http       *http.Client
	logger     *slog.Logger
}

// NewPagerDutySink builds the sink. An empty eventsURL selects the public
// endpoint; tests point it at a local server.
func NewPagerDutySink(routingKey, eventsURL string, logger *slog.Logger) *PagerDutySink {
	if eventsURL == "" {
		eventsURL = DefaultEventsURL
	}
	return &PagerDutySink{
		EventsURL:  eventsURL,
		RoutingKey: routingKey,
		http:       &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether a routing key is configured.
func (s *PagerDutySink) Enabled() bool {
	return s != nil && s.RoutingKey != ""
}

type pdEvent struct {
	RoutingKey  string     `json:"routing_key"`
	EventAction string     `json:"event_action"`
	DedupKey    string     `json:"dedup_key"`
	Payload     *pdPayload `json:"payload,omitempty"`
}

type pdPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

// Trigger opens (or refreshes) an incident for the given candidate.
func (s *PagerDutySink) Trigger(ctx context.Context, inc Incident) error {
	details := map[string]any{"process_id": inc.ProcessID}
	if inc.Kind == KindError {
		details["error"] = inc.ErrText
	} else {
		details["primary_value"] = inc.Primary
		details["secondary_value"] = inc.Secondary
		details["slot_diff"] = inc.Diff
	}

	return s.send(ctx, pdEvent{
		RoutingKey:  s.RoutingKey,
		EventAction: "trigger",
		DedupKey:    inc.DedupKey,
		Payload: &pdPayload{
			Summary:       inc.Summary(),
			Severity:      string(inc.Severity),
			Source:        "noncewatch",
			Timestamp:     inc.Timestamp.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	})
}

// Resolve closes the incident identified by dedupKey.
func (s *PagerDutySink) Resolve(ctx context.Context, dedupKey string) error {
	return s.send(ctx, pdEvent{
		RoutingKey:  s.RoutingKey,
		EventAction: "resolve",
		DedupKey:    dedupKey,
	})
}

// send posts one event. Success is HTTP 202 Accepted.
func (s *PagerDutySink) send(ctx context.Context, ev pdEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.EventAction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.EventsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", ev.EventAction, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s event: %w", ev.EventAction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("incident sink returned %s for %s event", resp.Status, ev.EventAction)
	}
	return nil
}
