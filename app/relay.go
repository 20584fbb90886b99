package app

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/artpar/lexgate/domain/gateway"
	"github.com/artpar/lexgate/domain/streaming"
	"github.com/artpar/lexgate/ports"
	"github.com/rs/zerolog"
)

// relayReadSize is the upstream read chunk size. Frames may span chunks.
const relayReadSize = 4096

// RelayOutcome is the result of relaying one upstream stream.
type RelayOutcome struct {
	InputTokens  int64
	OutputTokens int64
	TextFrames   int
	ErrorCode    string // Empty on success
}

// Success reports whether the stream completed without error.
func (o RelayOutcome) Success() bool {
	return o.ErrorCode == ""
}

// StreamRelay copies one upstream SSE stream to a client sink.
//
// Text deltas are forwarded as they arrive, token usage is captured from the
// usage events, and Finalize runs accounting and writes the terminal sentinel
// exactly once regardless of how the stream ended.
type StreamRelay struct {
	sink   ports.StreamSink
	logger zerolog.Logger

	lines   streaming.LineBuffer
	outcome RelayOutcome

	finalizeOnce sync.Once
}

// NewStreamRelay creates a relay writing to sink.
func NewStreamRelay(sink ports.StreamSink, logger zerolog.Logger) *StreamRelay {
	return &StreamRelay{sink: sink, logger: logger}
}

// Fail writes one error frame and marks the stream failed.
func (r *StreamRelay) Fail(e *gateway.ErrorResponse) {
	r.outcome.ErrorCode = e.Code
	if err := r.sink.Error(e.Code, e.Message); err != nil {
		r.logger.Debug().Err(err).Msg("write error frame")
	}
}

// Run reads body until end of stream, an upstream error event, a read failure
// or a client write failure. An upstream termination token is skipped like a
// malformed frame.
// ctx is the client's context; its cancellation is reported as a client disconnect.
func (r *StreamRelay) Run(ctx context.Context, body io.Reader) RelayOutcome {
	buf := make([]byte, relayReadSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if stop := r.process(buf[:n]); stop {
				return r.outcome
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			if pending := len(r.lines.Pending()); pending > 0 {
				r.logger.Debug().Int("bytes", pending).Msg("discarding partial trailing line")
			}
			return r.outcome
		}
		if ctx.Err() != nil {
			r.outcome.ErrorCode = gateway.CodeClientClosed
			return r.outcome
		}

		r.logger.Warn().Err(err).Msg("upstream stream read failed")
		r.Fail(&gateway.ErrStream)
		return r.outcome
	}
}

// process handles one chunk and reports whether relaying must stop.
func (r *StreamRelay) process(chunk []byte) bool {
	for _, line := range r.lines.Push(chunk) {
		f := streaming.DecodeLine(line)
		switch f.Kind {
		case streaming.FrameDone:
			r.logger.Debug().Msg("skipping upstream done token")
		case streaming.FrameUsageStart:
			r.outcome.InputTokens = f.InputTokens
		case streaming.FrameUsageEnd:
			r.outcome.OutputTokens = f.OutputTokens
		case streaming.FrameText:
			if err := r.sink.Text(f.Text); err != nil {
				r.outcome.ErrorCode = gateway.CodeClientClosed
				return true
			}
			r.outcome.TextFrames++
		case streaming.FrameError:
			r.logger.Warn().Str("error_type", f.ErrorType).Msg("provider error event in stream")
			r.Fail(&gateway.ErrProvider)
			return true
		case streaming.FrameMalformed:
			r.logger.Debug().Msg("skipping malformed stream frame")
		}
	}
	return false
}

// Abandon marks the stream as closed by the client.
func (r *StreamRelay) Abandon() {
	r.outcome.ErrorCode = gateway.CodeClientClosed
}

// Outcome returns the outcome so far.
func (r *StreamRelay) Outcome() RelayOutcome {
	return r.outcome
}

// Finalize runs account once, then writes the terminal sentinel.
// Later calls do nothing. A failed sentinel write is ignored.
func (r *StreamRelay) Finalize(account func(RelayOutcome)) {
	r.finalizeOnce.Do(func() {
		account(r.outcome)
		if err := r.sink.Done(); err != nil {
			r.logger.Debug().Err(err).Msg("write done frame")
		}
	})
}
