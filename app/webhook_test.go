package app_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/lexgate/adapters/clock"
	"github.com/artpar/lexgate/adapters/idgen"
	"github.com/artpar/lexgate/adapters/memory"
	"github.com/artpar/lexgate/app"
	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/domain/webhook"
	"github.com/rs/zerolog"
)

type received struct {
	payload   webhook.Payload
	body      []byte
	signature string
	eventType string
}

// callbackServer records deliveries and answers with the scripted statuses,
// then 200 once the script runs out.
func callbackServer(t *testing.T, statuses ...int) (*httptest.Server, func() []received, *atomic.Int32) {
	t.Helper()
	var (
		mu    sync.Mutex
		got   []received
		calls atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		body, _ := io.ReadAll(r.Body)
		var p webhook.Payload
		json.Unmarshal(body, &p)

		mu.Lock()
		got = append(got, received{
			payload:   p,
			body:      body,
			signature: r.Header.Get(webhook.HeaderSignature),
			eventType: r.Header.Get(webhook.HeaderEventType),
		})
		mu.Unlock()

		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}, &calls
}

func newNotifier(url string, retries int) *app.AlertNotifier {
	return app.NewAlertNotifier(app.AlertNotifierDeps{
		Target: webhook.Target{
			URL:        url,
			Secret:     "whsec_test",
			MaxRetries: retries,
			Timeout:    time.Second,
		},
		RetryDelay: func(int) time.Duration { return time.Millisecond },
		Logger:     zerolog.Nop(),
	})
}

func raisedEvent(id string) webhook.Event {
	return webhook.Event{
		ID:        id,
		Type:      webhook.EventAlertRaised,
		Alert:     usage.AlertHighErrorRate,
		Timestamp: baseTime,
		Data:      webhook.Snapshot{CostCents: "12.50", BudgetCents: 1000, ErrorRate: 0.5, WindowRequests: 4},
	}
}

func TestAlertNotifier_DeliversSignedPayload(t *testing.T) {
	srv, got, _ := callbackServer(t)
	n := newNotifier(srv.URL, 0)

	n.Notify(raisedEvent("evt_1"))
	n.Close()

	deliveries := got()
	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}
	d := deliveries[0]
	if d.payload.ID != "evt_1" || d.payload.Alert != usage.AlertHighErrorRate || d.payload.Data.CostCents != "12.50" {
		t.Errorf("payload = %+v", d.payload)
	}
	if d.payload.Timestamp != "2024-01-15T12:00:00Z" {
		t.Errorf("timestamp = %s", d.payload.Timestamp)
	}
	if d.eventType != string(webhook.EventAlertRaised) {
		t.Errorf("event type header = %q", d.eventType)
	}
	if !webhook.VerifySignature(d.body, d.signature, "whsec_test") {
		t.Error("signature does not verify")
	}
}

func TestAlertNotifier_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantCalls int32
	}{
		{"server error then success", []int{503, 502}, 3, 3},
		{"retries exhausted", []int{500, 500, 500, 500}, 2, 3},
		{"client error not retried", []int{400}, 3, 1},
		{"rate limited retried", []int{429}, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, calls := callbackServer(t, tt.statuses...)
			n := newNotifier(srv.URL, tt.retries)

			n.Notify(raisedEvent("evt_retry"))
			n.Close()

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestAlertNotifier_InOrderAndClosed(t *testing.T) {
	srv, got, _ := callbackServer(t)
	n := newNotifier(srv.URL, 0)

	for _, id := range []string{"evt_a", "evt_b", "evt_c"} {
		n.Notify(raisedEvent(id))
	}
	n.Close()
	n.Close()
	n.Notify(raisedEvent("evt_late"))

	deliveries := got()
	if len(deliveries) != 3 {
		t.Fatalf("deliveries = %d, want 3", len(deliveries))
	}
	for i, id := range []string{"evt_a", "evt_b", "evt_c"} {
		if deliveries[i].payload.ID != id {
			t.Errorf("delivery %d = %s, want %s", i, deliveries[i].payload.ID, id)
		}
	}
}

// recordingNotifier captures events raised by the tracker.
type recordingNotifier struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (r *recordingNotifier) Notify(e webhook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) all() []webhook.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webhook.Event(nil), r.events...)
}

func TestUsageTracker_NotifiesTransitions(t *testing.T) {
	clk := clock.NewFake(baseTime)
	ledger := memory.NewUsageLedger(clk, time.Hour)
	ref := app.NewPolicyRef(app.DefaultPolicy())
	notifier := &recordingNotifier{}
	tracker := app.NewUsageTracker(app.UsageTrackerDeps{
		Ledger:   ledger,
		Budget:   app.NewBudgetGuard(ledger, ref),
		Policy:   ref,
		Notifier: notifier,
		Clock:    clk,
		IDGen:    idgen.NewSequential("evt_"),
		Logger:   zerolog.Nop(),
	})

	tracker.LogRequest(app.RequestEvent{Endpoint: gateway.EndpointChat, Latency: 9 * time.Second, Success: false})
	tracker.CheckAlertThresholds()

	events := notifier.all()
	if len(events) != 2 {
		t.Fatalf("events = %+v, want two raised", events)
	}
	if events[0].Alert != usage.AlertHighErrorRate || events[1].Alert != usage.AlertHighLatency {
		t.Errorf("alerts = %s, %s", events[0].Alert, events[1].Alert)
	}
	if events[0].Type != webhook.EventAlertRaised || events[0].Data.WindowRequests != 1 || events[0].Data.ErrorRate != 1 {
		t.Errorf("event = %+v", events[0])
	}

	clk.Advance(61 * time.Minute)
	tracker.CheckAlertThresholds()

	events = notifier.all()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4 after clearing", len(events))
	}
	for _, e := range events[2:] {
		if e.Type != webhook.EventAlertCleared {
			t.Errorf("event %s type = %s, want cleared", e.Alert, e.Type)
		}
	}
}

func TestUsageTracker_ConcurrentEvaluationKeepsLatestState(t *testing.T) {
	clk := clock.NewFake(baseTime)
	ledger := memory.NewUsageLedger(clk, time.Hour)
	ref := app.NewPolicyRef(app.DefaultPolicy())
	notifier := &recordingNotifier{}
	tracker := app.NewUsageTracker(app.UsageTrackerDeps{
		Ledger:   ledger,
		Budget:   app.NewBudgetGuard(ledger, ref),
		Policy:   ref,
		Notifier: notifier,
		Clock:    clk,
		IDGen:    idgen.NewSequential("evt_"),
		Logger:   zerolog.Nop(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.LogRequest(app.RequestEvent{Endpoint: gateway.EndpointChat, Latency: time.Second, Success: i%2 == 0})
			tracker.CheckAlertThresholds()
		}(i)
	}
	wg.Wait()

	// Transitions per alert alternate, starting with a raise.
	raised := map[string]bool{}
	for _, e := range notifier.all() {
		up := e.Type == webhook.EventAlertRaised
		if up == raised[e.Alert] {
			t.Fatalf("alert %s: %s while already in that state", e.Alert, e.Type)
		}
		raised[e.Alert] = up
	}

	// The stored flags already match a fresh evaluation.
	before := len(notifier.all())
	if !tracker.CheckAlertThresholds().HighErrorRate {
		t.Error("HighErrorRate should be raised at 50% errors")
	}
	if after := len(notifier.all()); after != before {
		t.Errorf("fresh evaluation produced %d more transitions", after-before)
	}
}
