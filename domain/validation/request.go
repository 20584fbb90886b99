package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Message roles accepted in a transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	modePattern   = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,128}$`)
)

// ErrMalformedJSON is returned when the body is not a JSON object.
var ErrMalformedJSON = errors.New("malformed JSON body")

// SchemaError describes the first schema violation found in a request.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Limits bounds request sizes. Character limits count Unicode code points.
type Limits struct {
	MaxBodyBytes         int
	MaxMessages          int
	MaxContentChars      int
	MaxCaseContextChars  int
	MaxSystemPromptChars int
	MaxSessionSeconds    int
}

// DefaultLimits returns the default request limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes:         256 * 1024,
		MaxMessages:          100,
		MaxContentChars:      4000,
		MaxCaseContextChars:  10000,
		MaxSystemPromptChars: 20000,
		MaxSessionSeconds:    4 * 60 * 60,
	}
}

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserContext identifies the end user for session quotas.
type UserContext struct {
	UserID string `json:"userId"`
	Tier   string `json:"tier"`
}

// ChatRequest is the body of the streaming chat endpoint.
type ChatRequest struct {
	Mode         string       `json:"mode"`
	Messages     []Message    `json:"messages"`
	CaseContext  string       `json:"caseContext"`
	SystemPrompt string       `json:"systemPrompt,omitempty"`
	Temperament  string       `json:"temperament,omitempty"`
	UserContext  *UserContext `json:"userContext,omitempty"`
}

// StartsSession reports whether this request opens a new session.
func (r ChatRequest) StartsSession() bool {
	return len(r.Messages) == 1
}

// FeedbackRequest is the body of the scoring endpoint.
type FeedbackRequest struct {
	Mode            string       `json:"mode"`
	Messages        []Message    `json:"messages"`
	CaseContext     string       `json:"caseContext"`
	SessionDuration *int         `json:"sessionDuration"`
	SystemPrompt    string       `json:"systemPrompt,omitempty"`
	UserContext     *UserContext `json:"userContext,omitempty"`
}

// ValidUserID reports whether id is an acceptable user identifier.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// ValidTier reports whether tier is an acceptable tier name. Empty is allowed.
func ValidTier(tier string) bool {
	return tier == "" || modePattern.MatchString(tier)
}

// ValidateSize reports whether the raw body fits within maxBytes.
func ValidateSize(raw []byte, maxBytes int) bool {
	return len(raw) <= maxBytes
}

// ParseChat decodes, validates and sanitizes a chat request body.
func ParseChat(raw []byte, l Limits) (ChatRequest, error) {
	var req ChatRequest
	if err := decode(raw, &req); err != nil {
		return ChatRequest{}, err
	}

	if err := validateCommon(req.Mode, req.Messages, req.CaseContext, req.SystemPrompt, req.UserContext, l); err != nil {
		return ChatRequest{}, err
	}
	if req.Messages[0].Role != RoleUser {
		return ChatRequest{}, &SchemaError{Field: "messages[0].role", Reason: "first message must be from user"}
	}
	if req.Temperament != "" && !modePattern.MatchString(req.Temperament) {
		return ChatRequest{}, &SchemaError{Field: "temperament", Reason: "must be a lowercase identifier"}
	}

	req.Messages = sanitizeMessages(req.Messages, l.MaxContentChars)
	req.CaseContext = Sanitize(req.CaseContext, l.MaxCaseContextChars)
	req.SystemPrompt = Sanitize(req.SystemPrompt, l.MaxSystemPromptChars)
	return req, nil
}

// ParseFeedback decodes, validates and sanitizes a feedback request body.
func ParseFeedback(raw []byte, l Limits) (FeedbackRequest, error) {
	var req FeedbackRequest
	if err := decode(raw, &req); err != nil {
		return FeedbackRequest{}, err
	}

	if err := validateCommon(req.Mode, req.Messages, req.CaseContext, req.SystemPrompt, req.UserContext, l); err != nil {
		return FeedbackRequest{}, err
	}
	if req.SessionDuration == nil {
		return FeedbackRequest{}, &SchemaError{Field: "sessionDuration", Reason: "is required"}
	}
	if d := *req.SessionDuration; d < 0 || d > l.MaxSessionSeconds {
		return FeedbackRequest{}, &SchemaError{Field: "sessionDuration", Reason: fmt.Sprintf("must be between 0 and %d seconds", l.MaxSessionSeconds)}
	}

	req.Messages = sanitizeMessages(req.Messages, l.MaxContentChars)
	req.CaseContext = Sanitize(req.CaseContext, l.MaxCaseContextChars)
	req.SystemPrompt = Sanitize(req.SystemPrompt, l.MaxSystemPromptChars)
	return req, nil
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return &SchemaError{Field: field, Reason: "must be " + typeErr.Type.String()}
		}
		return ErrMalformedJSON
	}
	return nil
}

func validateCommon(mode string, messages []Message, caseContext, systemPrompt string, uc *UserContext, l Limits) error {
	if mode == "" {
		return &SchemaError{Field: "mode", Reason: "is required"}
	}
	if !modePattern.MatchString(mode) {
		return &SchemaError{Field: "mode", Reason: "must be a lowercase identifier"}
	}

	if len(messages) == 0 {
		return &SchemaError{Field: "messages", Reason: "must not be empty"}
	}
	if len(messages) > l.MaxMessages {
		return &SchemaError{Field: "messages", Reason: fmt.Sprintf("must have at most %d entries", l.MaxMessages)}
	}
	for i, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return &SchemaError{Field: fmt.Sprintf("messages[%d].role", i), Reason: "must be user or assistant"}
		}
		if Sanitize(m.Content, l.MaxContentChars) == "" {
			return &SchemaError{Field: fmt.Sprintf("messages[%d].content", i), Reason: "is required"}
		}
		if utf8.RuneCountInString(m.Content) > l.MaxContentChars {
			return &SchemaError{Field: fmt.Sprintf("messages[%d].content", i), Reason: fmt.Sprintf("must be at most %d characters", l.MaxContentChars)}
		}
	}

	if utf8.RuneCountInString(caseContext) > l.MaxCaseContextChars {
		return &SchemaError{Field: "caseContext", Reason: fmt.Sprintf("must be at most %d characters", l.MaxCaseContextChars)}
	}
	if utf8.RuneCountInString(systemPrompt) > l.MaxSystemPromptChars {
		return &SchemaError{Field: "systemPrompt", Reason: fmt.Sprintf("must be at most %d characters", l.MaxSystemPromptChars)}
	}

	if uc != nil {
		if !ValidUserID(uc.UserID) {
			return &SchemaError{Field: "userContext.userId", Reason: "must be 1-128 identifier characters"}
		}
		if !ValidTier(uc.Tier) {
			return &SchemaError{Field: "userContext.tier", Reason: "must be a lowercase identifier"}
		}
	}
	return nil
}

func sanitizeMessages(messages []Message, maxLen int) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = Message{Role: m.Role, Content: Sanitize(m.Content, maxLen)}
	}
	return out
}
