package app

import (
	"fmt"
	"strings"

	"github.com/artpar/lexgate/domain/feedback"
	"github.com/artpar/lexgate/domain/validation"
	"github.com/artpar/lexgate/ports"
)

// chatSystemPrompt builds the provider system prompt for a chat turn.
// A client-supplied persona replaces the default bench persona.
func chatSystemPrompt(req validation.ChatRequest) string {
	persona := req.SystemPrompt
	if persona == "" {
		persona = defaultPersona(req.Mode, req.Temperament)
	}
	return joinSections(persona, caseSection(req.CaseContext))
}

// feedbackSystemPrompt builds the provider system prompt for scoring.
func feedbackSystemPrompt(req validation.FeedbackRequest, r feedback.Range) string {
	return joinSections(req.SystemPrompt, caseSection(req.CaseContext), feedback.Instructions(feedback.Dimensions, r))
}

func defaultPersona(mode, temperament string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the bench in a %s practice session for a law student. ", strings.ReplaceAll(mode, "_", " "))
	b.WriteString("Stay in role, ask one pointed question at a time and keep each response under 150 words.")
	if temperament != "" {
		fmt.Fprintf(&b, " Your temperament is %s.", strings.ReplaceAll(temperament, "_", " "))
	}
	return b.String()
}

func caseSection(caseContext string) string {
	if caseContext == "" {
		return ""
	}
	return "Case context:\n" + caseContext
}

func joinSections(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func providerMessages(messages []validation.Message) []ports.ProviderMessage {
	out := make([]ports.ProviderMessage, len(messages))
	for i, m := range messages {
		out[i] = ports.ProviderMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func feedbackTurns(messages []validation.Message) []feedback.Turn {
	out := make([]feedback.Turn, len(messages))
	for i, m := range messages {
		out[i] = feedback.Turn{Role: m.Role, Content: m.Content}
	}
	return out
}
