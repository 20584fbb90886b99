package streaming_test

import (
	"reflect"
	"testing"

	"github.com/artpar/lexgate/domain/streaming"
)

func TestLineBuffer_HoldsIncompleteLine(t *testing.T) {
	var b streaming.LineBuffer

	if got := b.Push([]byte("data: {\"a\"")); got != nil {
		t.Fatalf("partial push returned lines: %q", got)
	}
	if string(b.Pending()) != "data: {\"a\"" {
		t.Errorf("pending = %q", b.Pending())
	}

	got := b.Push([]byte(":1}\n\ndata: x"))
	want := []string{"data: {\"a\":1}", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if string(b.Pending()) != "data: x" {
		t.Errorf("pending = %q, want %q", b.Pending(), "data: x")
	}

	b.Reset()
	if len(b.Pending()) != 0 {
		t.Error("Reset should clear pending bytes")
	}
}

func TestLineBuffer_CRLFAcrossChunks(t *testing.T) {
	var b streaming.LineBuffer
	b.Push([]byte("data: one\r"))
	got := b.Push([]byte("\ndata: two\r\n"))
	want := []string{"data: one", "data: two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestLineBuffer_SplitInvariance(t *testing.T) {
	stream := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":12}}}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hé\"}}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"llo\"}}\n\n"

	var whole streaming.LineBuffer
	want := whole.Push([]byte(stream))

	for split := 1; split < len(stream); split++ {
		var b streaming.LineBuffer
		got := append(b.Push([]byte(stream[:split])), b.Push([]byte(stream[split:]))...)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d: lines = %q, want %q", split, got, want)
		}
	}
}

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want streaming.Frame
	}{
		{"blank line", "", streaming.Frame{Kind: streaming.FrameIgnored}},
		{"event line", "event: message_start", streaming.Frame{Kind: streaming.FrameIgnored}},
		{"comment", ": ping", streaming.Frame{Kind: streaming.FrameIgnored}},
		{"done token", "data: [DONE]", streaming.Frame{Kind: streaming.FrameDone}},
		{"done token without space", "data:[DONE]", streaming.Frame{Kind: streaming.FrameDone}},
		{"malformed json", "data: {not json", streaming.Frame{Kind: streaming.FrameMalformed}},
		{
			"message start",
			`data: {"type":"message_start","message":{"id":"m1","usage":{"input_tokens":42,"output_tokens":1}}}`,
			streaming.Frame{Kind: streaming.FrameUsageStart, InputTokens: 42},
		},
		{
			"text delta",
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Objection"}}`,
			streaming.Frame{Kind: streaming.FrameText, Text: "Objection"},
		},
		{
			"empty text delta",
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`,
			streaming.Frame{Kind: streaming.FrameIgnored},
		},
		{
			"message delta",
			`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":87}}`,
			streaming.Frame{Kind: streaming.FrameUsageEnd, OutputTokens: 87},
		},
		{
			"error event",
			`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			streaming.Frame{Kind: streaming.FrameError, ErrorType: "overloaded_error", ErrorMessage: "Overloaded"},
		},
		{"unknown type", `data: {"type":"ping"}`, streaming.Frame{Kind: streaming.FrameIgnored}},
		{"future type", `data: {"type":"thinking_delta","thinking":"..."}`, streaming.Frame{Kind: streaming.FrameIgnored}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := streaming.DecodeLine(tt.line); got != tt.want {
				t.Errorf("DecodeLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestEncodeFrames(t *testing.T) {
	if got := string(streaming.EncodeText(`say "hi"`)); got != "data: {\"text\":\"say \\\"hi\\\"\"}\n\n" {
		t.Errorf("EncodeText = %q", got)
	}
	if got := string(streaming.EncodeError("PROVIDER_ERROR", "AI service error")); got != "data: {\"code\":\"PROVIDER_ERROR\",\"error\":\"AI service error\"}\n\n" {
		t.Errorf("EncodeError = %q", got)
	}
	if streaming.DoneFrame != "data: [DONE]\n\n" {
		t.Errorf("DoneFrame = %q", streaming.DoneFrame)
	}
}
