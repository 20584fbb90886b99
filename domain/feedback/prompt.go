package feedback

import (
	"fmt"
	"strings"
)

// Turn is one transcript entry given to the scorer.
type Turn struct {
	Role    string
	Content string
}

// Instructions returns the system instruction that asks the model for scores.
func Instructions(dimensions []string, r Range) string {
	var b strings.Builder
	b.WriteString("You are an experienced appellate judge evaluating a law student's oral argument practice session.\n")
	fmt.Fprintf(&b, "Score each dimension from %.1f to %.1f (decimals allowed):\n", r.Min, r.Max)
	for _, d := range dimensions {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	b.WriteString("\nRespond with a single JSON object and nothing else, in exactly this shape:\n")
	b.WriteString(`{"scores": {`)
	for i, d := range dimensions {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: <number>", d)
	}
	b.WriteString(`}, "judgment": "<two or three sentences>", "keyStrength": "<one sentence>", "keyImprovement": "<one sentence>"}`)
	return b.String()
}

// Transcript renders the session for the user turn of the scoring call.
// Contents must already be sanitized.
func Transcript(turns []Turn, sessionSeconds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session duration: %d minutes %d seconds.\n\nTranscript:\n", sessionSeconds/60, sessionSeconds%60)
	for _, t := range turns {
		speaker := "STUDENT"
		if t.Role == "assistant" {
			speaker = "BENCH"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Content)
	}
	return b.String()
}
