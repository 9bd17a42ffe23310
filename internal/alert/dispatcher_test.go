package alert

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noncewatch/noncewatch/internal/dedup"
	"github.com/noncewatch/noncewatch/internal/drift"
	"github.com/noncewatch/noncewatch/internal/runner"
)

func newTestDispatcher(t *testing.T, opts Options, store dedup.Store) (*Dispatcher, *pdRecorder) {
	t.Helper()
	rec := &pdRecorder{status: http.StatusAccepted}
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	pager := NewPagerDutySink("rk-test", srv.URL, testLogger())
	d := NewDispatcher(opts, nil, pager, store, testLogger())
	d.now = func() time.Time { return testNow }
	return d, rec
}

func defaultOpts() Options {
	return Options{
		Threshold:         50,
		SeverityThreshold: drift.SeverityWarning,
		AutoResolve:       true,
	}
}

func TestDispatch_TriggersAndRecordsEntry(t *testing.T) {
	store := dedup.NewMemStore()
	d, rec := newTestDispatcher(t, defaultOpts(), store)

	outcomes := []runner.Outcome{
		{ProcessID: "p1", Primary: "100", Secondary: "100", Matched: true},
		{ProcessID: "p2", Primary: "100", Secondary: "150", Diff: 50},
	}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 2, Matches: 1, Mismatches: 1})

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1 trigger", len(rec.events))
	}
	if rec.events[0]["event_action"] != "trigger" {
		t.Errorf("event = %v", rec.events[0])
	}
	if rec.events[0]["payload"].(map[string]any)["severity"] != "error" {
		t.Errorf("severity = %v, want error for diff 50", rec.events[0]["payload"])
	}

	entry, ok := store.Entries["p2"]
	if !ok {
		t.Fatal("expected store entry for p2")
	}
	if entry.DedupKey != "nonce-drift:p2:mismatch:2026-08-27" || entry.Severity != "error" {
		t.Errorf("entry = %+v", entry)
	}
	if store.Saves != 1 {
		t.Errorf("saves = %d, want 1 (store written once per run)", store.Saves)
	}
}

func TestDispatch_NoRetriggersSameDay(t *testing.T) {
	store := dedup.NewMemStore()
	store.Entries["p2"] = dedup.Entry{
		DedupKey: dedup.Key("p2", "mismatch", testNow),
		Severity: "error",
	}
	d, rec := newTestDispatcher(t, defaultOpts(), store)

	outcomes := []runner.Outcome{{ProcessID: "p2", Primary: "100", Secondary: "150", Diff: 50}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Mismatches: 1})

	if len(rec.events) != 0 {
		t.Errorf("events = %v, want none (same-day dedup)", rec.events)
	}
	if _, ok := store.Entries["p2"]; !ok {
		t.Error("entry should persist while condition persists")
	}
}

func TestDispatch_NewDayRetriggers(t *testing.T) {
	store := dedup.NewMemStore()
	store.Entries["p2"] = dedup.Entry{
		DedupKey: dedup.Key("p2", "mismatch", testNow.AddDate(0, 0, -1)),
		Severity: "error",
	}
	d, rec := newTestDispatcher(t, defaultOpts(), store)

	outcomes := []runner.Outcome{{ProcessID: "p2", Primary: "100", Secondary: "150", Diff: 50}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Mismatches: 1})

	if len(rec.events) != 1 || rec.events[0]["event_action"] != "trigger" {
		t.Fatalf("events = %v, want one trigger (day rotation)", rec.events)
	}
	if store.Entries["p2"].DedupKey != dedup.Key("p2", "mismatch", testNow) {
		t.Errorf("entry = %+v, want today's dedup key", store.Entries["p2"])
	}
}

func TestDispatch_AutoResolve(t *testing.T) {
	key := dedup.Key("p1", "mismatch", testNow.AddDate(0, 0, -1))
	store := dedup.NewMemStore()
	store.Entries["p1"] = dedup.Entry{DedupKey: key, Severity: "error"}
	d, rec := newTestDispatcher(t, defaultOpts(), store)

	outcomes := []runner.Outcome{{ProcessID: "p1", Primary: "100", Secondary: "100", Matched: true}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Matches: 1})

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1 resolve", len(rec.events))
	}
	if rec.events[0]["event_action"] != "resolve" || rec.events[0]["dedup_key"] != key {
		t.Errorf("event = %v", rec.events[0])
	}
	if _, ok := store.Entries["p1"]; ok {
		t.Error("entry should be removed after resolve")
	}
}

func TestDispatch_AutoResolveDisabled(t *testing.T) {
	opts := defaultOpts()
	opts.AutoResolve = false

	store := dedup.NewMemStore()
	store.Entries["p1"] = dedup.Entry{DedupKey: "old-key", Severity: "error"}
	d, rec := newTestDispatcher(t, opts, store)

	outcomes := []runner.Outcome{{ProcessID: "p1", Primary: "100", Secondary: "100", Matched: true}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Matches: 1})

	if len(rec.events) != 0 {
		t.Errorf("events = %v, want none", rec.events)
	}
	if _, ok := store.Entries["p1"]; !ok {
		t.Error("entry should persist when auto-resolve is disabled")
	}
}

func TestDispatch_ErroredProcessNotResolved(t *testing.T) {
	// A process with an open entry that now errors is not healthy; its
	// entry must survive (and the error itself triggers).
	store := dedup.NewMemStore()
	store.Entries["p1"] = dedup.Entry{
		DedupKey: dedup.Key("p1", "mismatch", testNow.AddDate(0, 0, -1)),
		Severity: "error",
	}
	d, rec := newTestDispatcher(t, defaultOpts(), store)

	outcomes := []runner.Outcome{
		{ProcessID: "p1", ErrKind: "timeout", Err: errors.New("deadline exceeded")},
	}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Errors: 1})

	for _, ev := range rec.events {
		if ev["event_action"] == "resolve" {
			t.Errorf("unexpected resolve: %v", ev)
		}
	}
	if _, ok := store.Entries["p1"]; !ok {
		t.Error("entry should persist for errored process")
	}
}

func TestDispatch_SeverityThresholdGatesPaging(t *testing.T) {
	opts := defaultOpts()
	opts.SeverityThreshold = drift.SeverityCritical

	store := dedup.NewMemStore()
	d, rec := newTestDispatcher(t, opts, store)

	outcomes := []runner.Outcome{
		{ProcessID: "warn", Primary: "0", Secondary: "60", Diff: 60},    // error severity
		{ProcessID: "crit", Primary: "0", Secondary: "500", Diff: 500}, // critical
	}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 2, Mismatches: 2})

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1 (only critical pages)", len(rec.events))
	}
	details := rec.events[0]["payload"].(map[string]any)["custom_details"].(map[string]any)
	if details["process_id"] != "crit" {
		t.Errorf("paged process = %v, want crit", details["process_id"])
	}
}

func TestDispatch_DisabledSinksSkipSilently(t *testing.T) {
	store := dedup.NewMemStore()
	d := NewDispatcher(defaultOpts(), NewChatSink("", "", testLogger()), NewPagerDutySink("", "", testLogger()), store, testLogger())
	d.now = func() time.Time { return testNow }

	outcomes := []runner.Outcome{{ProcessID: "p", Primary: "0", Secondary: "500", Diff: 500}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Mismatches: 1})

	if store.Saves != 0 {
		t.Error("disabled incident sink should not touch the store")
	}
}

func TestDispatch_ChatFailureDoesNotStopIncidents(t *testing.T) {
	chatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer chatSrv.Close()

	store := dedup.NewMemStore()
	d, rec := newTestDispatcher(t, defaultOpts(), store)
	d.chat = NewChatSink(chatSrv.URL, "", testLogger())

	outcomes := []runner.Outcome{{ProcessID: "p", Primary: "0", Secondary: "500", Diff: 500}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Mismatches: 1})

	if len(rec.events) != 1 {
		t.Errorf("incident events = %d, want 1 despite chat failure", len(rec.events))
	}
}

func TestDispatch_FailedTriggerNotRecorded(t *testing.T) {
	store := dedup.NewMemStore()
	rec := &pdRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	d := NewDispatcher(defaultOpts(), nil, NewPagerDutySink("rk", srv.URL, testLogger()), store, testLogger())
	d.now = func() time.Time { return testNow }

	outcomes := []runner.Outcome{{ProcessID: "p", Primary: "0", Secondary: "500", Diff: 500}}
	d.Dispatch(context.Background(), outcomes, runner.Summary{Total: 1, Mismatches: 1})

	if _, ok := store.Entries["p"]; ok {
		t.Error("failed trigger must not be recorded as alerted")
	}
}

func TestDispatch_OpsChannel(t *testing.T) {
	opts := defaultOpts()
	opts.ShoutrrrURL = "logger://"

	store := dedup.NewMemStore()
	d, _ := newTestDispatcher(t, opts, store)

	var sent []string
	d.notify = func(url, message string) error {
		sent = append(sent, message)
		return nil
	}

	// Healthy run: nothing sent.
	d.Dispatch(context.Background(), []runner.Outcome{
		{ProcessID: "p", Primary: "1", Secondary: "1", Matched: true},
	}, runner.Summary{Total: 1, Matches: 1})
	if len(sent) != 0 {
		t.Errorf("ops messages = %v, want none for healthy run", sent)
	}

	// Drifted run: one summary message.
	d.Dispatch(context.Background(), []runner.Outcome{
		{ProcessID: "p", Primary: "0", Secondary: "500", Diff: 500},
	}, runner.Summary{Total: 1, Mismatches: 1})
	if len(sent) != 1 {
		t.Fatalf("ops messages = %v, want 1", sent)
	}
	if sent[0] != "noncewatch: 1 checked, 0 in sync, 1 drifted, 0 failed" {
		t.Errorf("ops message = %q", sent[0])
	}
}
