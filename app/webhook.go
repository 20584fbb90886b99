package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/artpar/lexgate/domain/webhook"
	"github.com/rs/zerolog"
)

// AlertNotifier posts alert transitions to the configured callback URL.
// Events are delivered in order by a single worker; failed deliveries are
// retried with backoff.
type AlertNotifier struct {
	target     webhook.Target
	client     *http.Client
	retryDelay func(retry int) time.Duration
	grace      time.Duration
	logger     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan webhook.Event

	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

// AlertNotifierDeps contains dependencies for AlertNotifier.
type AlertNotifierDeps struct {
	Target     webhook.Target
	Client     *http.Client                  // Optional
	RetryDelay func(retry int) time.Duration // Optional; defaults to webhook.RetryDelay
	QueueSize  int                           // Optional; defaults to 64
	Grace      time.Duration                 // Optional; time Close waits for queued events, defaults to 10s
	Logger     zerolog.Logger
}

// NewAlertNotifier creates a notifier and starts its delivery worker.
func NewAlertNotifier(deps AlertNotifierDeps) *AlertNotifier {
	client := deps.Client
	if client == nil {
		client = &http.Client{}
	}
	delay := deps.RetryDelay
	if delay == nil {
		delay = webhook.RetryDelay
	}
	size := deps.QueueSize
	if size <= 0 {
		size = 64
	}
	grace := deps.Grace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	n := &AlertNotifier{
		target:      deps.Target,
		client:      client,
		retryDelay:  delay,
		grace:       grace,
		logger:      deps.Logger.With().Str("component", "alert_webhook").Logger(),
		queue:       make(chan webhook.Event, size),
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
		done:        make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify queues an event. When the queue is full or the notifier is closed
// the event is dropped and logged.
func (n *AlertNotifier) Notify(event webhook.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}
	select {
	case n.queue <- event:
	default:
		n.logger.Warn().
			Str("event_id", event.ID).
			Str("alert", event.Alert).
			Msg("alert webhook queue full, event dropped")
	}
}

// Close stops accepting events and waits up to the grace period for queued
// events to be delivered. Pending retries are then abandoned.
func (n *AlertNotifier) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()

		select {
		case <-n.done:
		case <-time.After(n.grace):
			n.logger.Warn().Msg("alert webhook grace period elapsed, abandoning deliveries")
			n.shutdownFn()
			<-n.done
		}
		n.shutdownFn()
	})
}

func (n *AlertNotifier) run() {
	defer close(n.done)
	for event := range n.queue {
		n.deliver(event)
	}
}

// deliver sends one event, retrying retryable failures up to MaxRetries times.
func (n *AlertNotifier) deliver(event webhook.Event) {
	payload, err := webhook.SerializePayload(webhook.BuildPayload(event))
	if err != nil {
		n.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to serialize alert payload")
		return
	}

	for attempt := 1; ; attempt++ {
		status, err := n.send(event, payload)
		if err == nil && status >= 200 && status < 300 {
			n.logger.Debug().
				Str("event_id", event.ID).
				Str("alert", event.Alert).
				Int("status_code", status).
				Int("attempt", attempt).
				Msg("alert webhook delivered")
			return
		}

		retry := attempt <= n.target.MaxRetries && webhook.ShouldRetry(status)
		logEvent := n.logger.Warn()
		if !retry {
			logEvent = n.logger.Error()
		}
		logEvent.Err(err).
			Str("event_id", event.ID).
			Str("alert", event.Alert).
			Int("status_code", status).
			Int("attempt", attempt).
			Bool("retrying", retry).
			Msg("alert webhook delivery failed")
		if !retry {
			return
		}

		timer := time.NewTimer(n.retryDelay(attempt))
		select {
		case <-timer.C:
		case <-n.shutdownCtx.Done():
			timer.Stop()
			return
		}
	}
}

// send performs one attempt. A zero status means no response was received.
func (n *AlertNotifier) send(event webhook.Event, payload []byte) (int, error) {
	ctx := n.shutdownCtx
	if n.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.target.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.target.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "lexgate-webhook/1.0")
	req.Header.Set(webhook.HeaderEventID, event.ID)
	req.Header.Set(webhook.HeaderEventType, string(event.Type))
	if n.target.Secret != "" {
		req.Header.Set(webhook.HeaderSignature, webhook.SignPayload(payload, n.target.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
