package streaming

import (
	"encoding/json"
	"strings"
)

// DoneToken is the literal stream termination token.
const DoneToken = "[DONE]"

// DoneFrame is the terminal sentinel written to the client.
const DoneFrame = "data: " + DoneToken + "\n\n"

// Upstream event types carried in the "type" field of each data frame.
const (
	EventMessageStart      = "message_start"
	EventContentBlockDelta = "content_block_delta"
	EventMessageDelta      = "message_delta"
	EventError             = "error"
)

// FrameKind classifies one upstream line.
type FrameKind int

const (
	FrameIgnored    FrameKind = iota // Not a data line, or an unrecognized event type
	FrameDone                        // The termination token
	FrameMalformed                   // A data line whose payload is not valid JSON
	FrameUsageStart                  // Stream start carrying input-token usage
	FrameText                        // Incremental text delta
	FrameUsageEnd                    // Stream end carrying output-token usage
	FrameError                       // Provider-side error event
)

// Frame is one decoded upstream line (value type).
type Frame struct {
	Kind         FrameKind
	Text         string
	InputTokens  int64
	OutputTokens int64
	ErrorType    string
	ErrorMessage string
}

type upstreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage *upstreamUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *upstreamUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type upstreamUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// DecodeLine classifies a single complete line of the upstream stream.
func DecodeLine(line string) Frame {
	payload, ok := dataPayload(line)
	if !ok {
		return Frame{Kind: FrameIgnored}
	}
	if payload == DoneToken {
		return Frame{Kind: FrameDone}
	}

	var ev upstreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Frame{Kind: FrameMalformed}
	}

	switch ev.Type {
	case EventMessageStart:
		if ev.Message == nil || ev.Message.Usage == nil {
			return Frame{Kind: FrameIgnored}
		}
		return Frame{Kind: FrameUsageStart, InputTokens: ev.Message.Usage.InputTokens}
	case EventContentBlockDelta:
		if ev.Delta == nil || ev.Delta.Text == "" {
			return Frame{Kind: FrameIgnored}
		}
		return Frame{Kind: FrameText, Text: ev.Delta.Text}
	case EventMessageDelta:
		if ev.Usage == nil {
			return Frame{Kind: FrameIgnored}
		}
		return Frame{Kind: FrameUsageEnd, OutputTokens: ev.Usage.OutputTokens}
	case EventError:
		f := Frame{Kind: FrameError}
		if ev.Error != nil {
			f.ErrorType = ev.Error.Type
			f.ErrorMessage = ev.Error.Message
		}
		return f
	default:
		return Frame{Kind: FrameIgnored}
	}
}

// dataPayload returns the value of a "data:" line with one optional leading space removed.
func dataPayload(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(rest, " "), true
}

// EncodeText renders a client-facing text frame.
func EncodeText(text string) []byte {
	return encode(map[string]string{"text": text})
}

// EncodeError renders a client-facing error frame.
func EncodeError(code, message string) []byte {
	return encode(map[string]string{"error": message, "code": code})
}

func encode(v map[string]string) []byte {
	data, _ := json.Marshal(v)
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out
}
