package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/noncewatch/noncewatch/internal/dedup"
	"github.com/noncewatch/noncewatch/internal/drift"
	"github.com/noncewatch/noncewatch/internal/runner"
)

// Options gates what the dispatcher sends.
type Options struct {
	Threshold         int64          // slot diff at which a mismatch is alert-worthy
	SeverityThreshold drift.Severity // minimum severity the incident sink pages on
	AutoResolve       bool
	ShoutrrrURL       string // optional generic ops channel
}

// Dispatcher turns a batch's outcomes into outbound notifications across
// the configured sinks. Sink failures are logged and never fail the run;
// alerting is best-effort and must not mask the monitoring result.
type Dispatcher struct {
	opts   Options
	chat   *ChatSink
	pager  *PagerDutySink
	store  dedup.Store
	logger *slog.Logger
	now    func() time.Time

	// notify is swapped in tests; defaults to shoutrrr.Send.
	notify func(url, message string) error
}

// NewDispatcher wires the sinks. Either sink may be nil or unconfigured,
// in which case it is skipped silently.
func NewDispatcher(opts Options, chat *ChatSink, pager *PagerDutySink, store dedup.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		opts:   opts,
		chat:   chat,
		pager:  pager,
		store:  store,
		logger: logger,
		now:    time.Now,
		notify: shoutrrr.Send,
	}
}

// Dispatch runs once per batch, after the summary is final. The dedup
// store is read once at the start of the incident-sink phase and written
// once at the end.
func (d *Dispatcher) Dispatch(ctx context.Context, outcomes []runner.Outcome, sum runner.Summary) {
	incidents := BuildIncidents(outcomes, d.opts.Threshold, d.now())

	d.sendChat(ctx, incidents)
	d.sendIncidents(ctx, incidents, outcomes)
	d.sendOps(incidents, sum)
}

// sendChat posts one batched message per incident kind.
func (d *Dispatcher) sendChat(ctx context.Context, incidents []Incident) {
	if !d.chat.Enabled() {
		return
	}

	for _, kind := range []Kind{KindMismatch, KindError} {
		batch := filterKind(incidents, kind)
		if len(batch) == 0 {
			continue
		}
		msg, err := d.chat.BuildMessage(batch, kind)
		if err != nil {
			d.logger.Error("building chat message", "kind", kind, "error", err)
			continue
		}
		if err := d.chat.Post(ctx, msg); err != nil {
			d.logger.Error("chat delivery failed", "kind", kind, "error", err)
		}
	}
}

// sendIncidents drives the stateful trigger/resolve flow against the
// incident sink.
func (d *Dispatcher) sendIncidents(ctx context.Context, incidents []Incident, outcomes []runner.Outcome) {
	if !d.pager.Enabled() {
		return
	}

	entries, err := d.store.Load()
	if err != nil {
		d.logger.Error("loading alert state", "error", err)
		entries = map[string]dedup.Entry{}
	}

	open := make(map[string]bool, len(incidents))
	for _, inc := range incidents {
		open[inc.ProcessID] = true

		if !inc.Severity.AtLeast(d.opts.SeverityThreshold) {
			d.logger.Debug("incident below paging threshold",
				"process", inc.ProcessID, "severity", inc.Severity)
			continue
		}
		if entry, ok := entries[inc.ProcessID]; ok && entry.DedupKey == inc.DedupKey {
			// Already triggered today; the sink's own dedup_key handling is
			// the safety net if this state is stale.
			d.logger.Debug("incident already alerted", "process", inc.ProcessID, "dedup_key", inc.DedupKey)
			continue
		}

		if err := d.pager.Trigger(ctx, inc); err != nil {
			d.logger.Error("incident trigger failed", "process", inc.ProcessID, "error", err)
			continue
		}
		d.logger.Info("incident triggered",
			"process", inc.ProcessID, "severity", inc.Severity, "dedup_key", inc.DedupKey)
		entries[inc.ProcessID] = dedup.Entry{
			DedupKey:  inc.DedupKey,
			AlertedAt: inc.Timestamp.UTC().Format(time.RFC3339),
			Severity:  string(inc.Severity),
		}
	}

	// Resolve entries for processes that came back healthy this run.
	for _, out := range outcomes {
		entry, ok := entries[out.ProcessID]
		if !ok || open[out.ProcessID] || out.Errored() {
			continue
		}
		if !d.opts.AutoResolve {
			d.logger.Debug("recovered but auto-resolve disabled", "process", out.ProcessID)
			continue
		}
		if err := d.pager.Resolve(ctx, entry.DedupKey); err != nil {
			d.logger.Error("incident resolve failed", "process", out.ProcessID, "error", err)
			continue
		}
		d.logger.Info("incident resolved", "process", out.ProcessID, "dedup_key", entry.DedupKey)
		delete(entries, out.ProcessID)
	}

	if err := d.store.Save(entries); err != nil {
		d.logger.Error("saving alert state", "error", err)
	}
}

// sendOps pushes a plain-text run summary through the generic shoutrrr
// channel when one is configured and something went wrong.
func (d *Dispatcher) sendOps(incidents []Incident, sum runner.Summary) {
	if d.opts.ShoutrrrURL == "" || len(incidents) == 0 {
		return
	}

	msg := fmt.Sprintf("noncewatch: %d checked, %d in sync, %d drifted, %d failed",
		sum.Total, sum.Matches, sum.Mismatches, sum.Errors)
	if err := d.notify(d.opts.ShoutrrrURL, msg); err != nil {
		d.logger.Error("ops notification failed", "error", err)
	}
}

func filterKind(incidents []Incident, kind Kind) []Incident {
	var out []Incident
	for _, inc := range incidents {
		if inc.Kind == kind {
			out = append(out, inc)
		}
	}
	return out
}
