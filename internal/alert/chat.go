package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/noncewatch/noncewatch/internal/drift"
)

// compactLimit is the incident count above which the chat message switches
// from per-incident attachments to a compact list, to respect the sink's
// message-size limits.
const compactLimit = 10

// DefaultChatTemplate renders the message header line. Overridable from
// config; the data is {Count, Kind}.
const DefaultChatTemplate = `{{ if eq .Kind "error" }}:rotating_light: {{ .Count }} nonce {{ .Count | plural "check" "checks" }} failed{{ else }}:warning: nonce drift on {{ .Count }} {{ .Count | plural "process" "processes" }}{{ end }}`

// Message is the chat sink wire format (Slack-style webhook).
type Message struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Color  string  `json:"color"`
	Fields []Field `json:"fields"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// ChatSink posts batched summaries to a chat webhook. Delivery is
// best-effort: the caller logs failures and moves on.
type ChatSink struct {
	WebhookURL string
	Template   string
	http       *http.Client
	logger     *slog.Logger
}

// NewChatSink builds a chat sink. An empty template selects the default.
func NewChatSink(webhookURL, headerTemplate string, logger *slog.Logger) *ChatSink {
	if headerTemplate == "" {
		headerTemplate = DefaultChatTemplate
	}
	return &ChatSink{
		WebhookURL: webhookURL,
		Template:   headerTemplate,
		http:       &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether the sink has a destination configured.
func (s *ChatSink) Enabled() bool {
	return s != nil && s.WebhookURL != ""
}

// Post sends one message. Success is HTTP 200.
func (s *ChatSink) Post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting to chat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat webhook returned %s", resp.Status)
	}
	return nil
}

// BuildMessage formats a batch of same-kind incidents: one attachment per
// incident up to compactLimit, a truncated text list beyond that.
func (s *ChatSink) BuildMessage(incidents []Incident, kind Kind) (Message, error) {
	header, err := renderHeader(s.Template, len(incidents), kind)
	if err != nil {
		return Message{}, err
	}

	if len(incidents) > compactLimit {
		return Message{Text: header + "\n" + compactList(incidents)}, nil
	}

	msg := Message{Text: header}
	for _, inc := range incidents {
		msg.Attachments = append(msg.Attachments, attachment(inc))
	}
	return msg, nil
}

func renderHeader(tmplStr string, count int, kind Kind) (string, error) {
	t, err := template.New("chat").Funcs(sprig.TxtFuncMap()).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing chat template: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		Count int
		Kind  string
	}{Count: count, Kind: string(kind)}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering chat template: %w", err)
	}
	return buf.String(), nil
}

func attachment(inc Incident) Attachment {
	fields := []Field{
		{Title: "Process", Value: truncateID(inc.ProcessID), Short: true},
	}
	if inc.Kind == KindError {
		fields = append(fields, Field{Title: "Error", Value: inc.ErrText})
	} else {
		fields = append(fields,
			Field{Title: "Primary", Value: inc.Primary, Short: true},
			Field{Title: "Secondary", Value: inc.Secondary, Short: true},
			Field{Title: "Slot diff", Value: fmt.Sprintf("%d", inc.Diff), Short: true},
		)
	}
	return Attachment{
		Color:  severityColor(inc.Severity),
		Fields: fields,
		Footer: "noncewatch",
		Ts:     inc.Timestamp.Unix(),
	}
}

// compactList renders the first compactLimit incidents one per line with a
// "+N more" suffix.
func compactList(incidents []Incident) string {
	var lines []string
	for _, inc := range incidents[:compactLimit] {
		if inc.Kind == KindError {
			lines = append(lines, fmt.Sprintf("• %s: %s", truncateID(inc.ProcessID), inc.ErrText))
		} else {
			lines = append(lines, fmt.Sprintf("• %s: %s vs %s (diff %d)",
				truncateID(inc.ProcessID), inc.Primary, inc.Secondary, inc.Diff))
		}
	}
	lines = append(lines, fmt.Sprintf("+%d more", len(incidents)-compactLimit))
	return strings.Join(lines, "\n")
}

func severityColor(s drift.Severity) string {
	switch s {
	case drift.SeverityCritical:
		return "#a30200"
	case drift.SeverityError:
		return "danger"
	default:
		return "warning"
	}
}

// truncateID keeps chat fields readable for long opaque identifiers.
func truncateID(id string) string {
	const max = 16
	if len(id) <= max {
		return id
	}
	return id[:max] + "…"
}
