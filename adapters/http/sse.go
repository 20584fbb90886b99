package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/artpar/lexgate/domain/streaming"
)

// sseSink writes client-facing SSE frames to a response, flushing after each.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// Open commits the 200 response with the stream headers.
func (s *sseSink) Open(headers map[string]string) error {
	setHeaders(s.w, headers)
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	// Streams outlive the server write timeout; the provider timeout bounds them instead.
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}

	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

func (s *sseSink) Text(delta string) error {
	return s.write(streaming.EncodeText(delta))
}

func (s *sseSink) Error(code, message string) error {
	return s.write(streaming.EncodeError(code, message))
}

func (s *sseSink) Done() error {
	return s.write([]byte(streaming.DoneFrame))
}

func (s *sseSink) write(frame []byte) error {
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	return s.rc.Flush()
}
