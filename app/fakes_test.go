package app_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/artpar/lexgate/adapters/clock"
	"github.com/artpar/lexgate/adapters/idgen"
	"github.com/artpar/lexgate/adapters/memory"
	"github.com/artpar/lexgate/app"
	"github.com/artpar/lexgate/domain/usage"
	"github.com/artpar/lexgate/ports"
	"github.com/rs/zerolog"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// recordingSink captures stream frames written by the gateway.
type recordingSink struct {
	mu         sync.Mutex
	opened     int
	headers    map[string]string
	texts      []string
	errorCodes []string
	done       int
	failWrites bool
	failOpen   bool
}

var errClientGone = errors.New("client gone")

func (s *recordingSink) Open(headers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen {
		return errClientGone
	}
	s.opened++
	s.headers = headers
	return nil
}

func (s *recordingSink) Text(delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errClientGone
	}
	s.texts = append(s.texts, delta)
	return nil
}

func (s *recordingSink) Error(code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errClientGone
	}
	s.errorCodes = append(s.errorCodes, code)
	return nil
}

func (s *recordingSink) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	if s.failWrites {
		return errClientGone
	}
	return nil
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.texts, "")
}

// fakeProvider is a scripted provider.
type fakeProvider struct {
	mu sync.Mutex

	configured bool

	// gate, when set, holds every Stream call until it is closed.
	gate chan struct{}

	streamBody   string
	streamStatus int
	streamErr    error

	completion  ports.Completion
	completeErr error

	streamCalls   int
	completeCalls int
	lastRequest   ports.ProviderRequest
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) Stream(ctx context.Context, req ports.ProviderRequest) (ports.ProviderStream, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamCalls++
	p.lastRequest = req
	if p.streamErr != nil {
		return ports.ProviderStream{}, p.streamErr
	}
	status := p.streamStatus
	if status == 0 {
		status = 200
	}
	s := ports.ProviderStream{Status: status, Close: func() error { return nil }}
	if status >= 200 && status <= 299 {
		s.Body = strings.NewReader(p.streamBody)
	}
	return s, nil
}

func (p *fakeProvider) Complete(ctx context.Context, req ports.ProviderRequest) (ports.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completeCalls++
	p.lastRequest = req
	return p.completion, p.completeErr
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCalls + p.completeCalls
}

// memoryTelemetry collects telemetry records.
type memoryTelemetry struct {
	mu      sync.Mutex
	records []usage.Record
}

func (m *memoryTelemetry) Record(r usage.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *memoryTelemetry) Flush(ctx context.Context) error { return nil }
func (m *memoryTelemetry) Close() error                    { return nil }

func (m *memoryTelemetry) all() []usage.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]usage.Record(nil), m.records...)
}

// chunkReader returns its chunks one Read at a time, then err (or io.EOF).
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type testStores struct {
	clock     *clock.Fake
	ledger    *memory.UsageLedger
	sessions  *memory.SessionStore
	provider  *fakeProvider
	telemetry *memoryTelemetry
}

func newTestGateway(policy app.Policy) (*app.Gateway, *testStores) {
	clk := clock.NewFake(baseTime)
	st := &testStores{
		clock:     clk,
		ledger:    memory.NewUsageLedger(clk, time.Hour),
		sessions:  memory.NewSessionStore(clk, memory.SessionStoreConfig{}),
		provider:  &fakeProvider{configured: true},
		telemetry: &memoryTelemetry{},
	}

	gw := app.NewGateway(app.GatewayDeps{
		RateLimits: memory.NewRateLimitStore(clk, memory.RateLimitStoreConfig{}),
		Sessions:   st.sessions,
		Ledger:     st.ledger,
		Provider:   st.provider,
		Telemetry:  st.telemetry,
		Clock:      clk,
		IDGen:      idgen.NewSequential("req_"),
		Logger:     zerolog.Nop(),
	}, policy)
	return gw, st
}

// upstreamStream builds a provider SSE body in the Anthropic event format.
func upstreamStream(inputTokens int, texts []string, outputTokens int) string {
	var b strings.Builder
	b.WriteString("event: message_start\n")
	b.WriteString(`data: {"type":"message_start","message":{"usage":{"input_tokens":` + itoa(inputTokens) + `,"output_tokens":1}}}` + "\n\n")
	for _, t := range texts {
		b.WriteString("event: content_block_delta\n")
		b.WriteString(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"` + t + `"}}` + "\n\n")
	}
	b.WriteString("event: message_delta\n")
	b.WriteString(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":` + itoa(outputTokens) + `}}` + "\n\n")
	b.WriteString("event: message_stop\n")
	b.WriteString(`data: {"type":"message_stop"}` + "\n\n")
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
