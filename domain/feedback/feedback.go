// Package feedback parses and validates session scores produced by the model.
// All functions are pure.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scoring dimensions, in presentation order.
const (
	ArgumentStructure = "argumentStructure"
	LegalReasoning    = "legalReasoning"
	UseOfAuthority    = "useOfAuthority"
	Responsiveness    = "responsiveness"
	Clarity           = "clarity"
	Composure         = "composure"
	Persuasiveness    = "persuasiveness"
)

// Dimensions lists the seven scored dimensions.
var Dimensions = []string{
	ArgumentStructure,
	LegalReasoning,
	UseOfAuthority,
	Responsiveness,
	Clarity,
	Composure,
	Persuasiveness,
}

// Fallback texts returned when no assessed result is available.
const (
	FallbackJudgment       = "Detailed feedback is unavailable for this session. The scores shown are neutral defaults, not an assessment of your performance."
	FallbackKeyStrength    = "You completed a full practice session."
	FallbackKeyImprovement = "Run another session to receive a detailed assessment."
)

// maxTextLen bounds each free-text field taken from model output.
const maxTextLen = 600

// Range is the inclusive score range.
type Range struct {
	Min     float64
	Max     float64
	Default float64 // Score used for every dimension in the fallback payload
}

// DefaultRange returns 1.0..5.0 with a 3.0 fallback.
func DefaultRange() Range {
	return Range{Min: 1.0, Max: 5.0, Default: 3.0}
}

// Result is the scoring payload returned to the caller.
type Result struct {
	Scores         map[string]float64 `json:"scores"`
	Overall        float64            `json:"overall"`
	Judgment       string             `json:"judgment"`
	KeyStrength    string             `json:"keyStrength"`
	KeyImprovement string             `json:"keyImprovement"`
	Fallback       bool               `json:"fallback,omitempty"`
}

// Validation errors.
var (
	ErrEmptyOutput   = errors.New("empty model output")
	ErrMissingScore  = errors.New("missing score")
	ErrUnknownScore  = errors.New("unknown score")
	ErrOutOfRange    = errors.New("score out of range")
	ErrMissingText   = errors.New("missing text field")
	ErrInvalidFormat = errors.New("invalid feedback format")
)

// DefaultFeedback returns the deterministic fallback payload for dimensions.
func DefaultFeedback(dimensions []string, r Range) Result {
	scores := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		scores[d] = r.Default
	}
	return Result{
		Scores:         scores,
		Overall:        Overall(scores),
		Judgment:       FallbackJudgment,
		KeyStrength:    FallbackKeyStrength,
		KeyImprovement: FallbackKeyImprovement,
		Fallback:       true,
	}
}

// Overall returns the mean of scores rounded to one decimal place.
func Overall(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, s := range scores {
		sum = sum.Add(decimal.NewFromFloat(s))
	}
	return sum.Div(decimal.NewFromInt(int64(len(scores)))).Round(1).InexactFloat64()
}

// StripCodeFence removes a surrounding Markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json") on the opening line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type modelOutput struct {
	Scores         map[string]json.RawMessage `json:"scores"`
	Judgment       string                     `json:"judgment"`
	KeyStrength    string                     `json:"keyStrength"`
	KeyImprovement string                     `json:"keyImprovement"`
}

// Parse validates raw model output and builds an assessed Result.
// Exactly the given dimensions must be present, each a number inside r.
func Parse(raw string, dimensions []string, r Range) (Result, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return Result{}, ErrEmptyOutput
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if out.Scores == nil {
		return Result{}, fmt.Errorf("%w: no scores object", ErrInvalidFormat)
	}

	want := make(map[string]bool, len(dimensions))
	for _, d := range dimensions {
		want[d] = true
	}
	for name := range out.Scores {
		if !want[name] {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownScore, name)
		}
	}

	scores := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		rawScore, ok := out.Scores[d]
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrMissingScore, d)
		}
		// null would otherwise decode as zero.
		var n *float64
		if err := json.Unmarshal(rawScore, &n); err != nil || n == nil {
			return Result{}, fmt.Errorf("%w: %s is not a number", ErrInvalidFormat, d)
		}
		v := *n
		if v < r.Min || v > r.Max {
			return Result{}, fmt.Errorf("%w: %s=%v", ErrOutOfRange, d, v)
		}
		scores[d] = v
	}

	judgment, err := requireText("judgment", out.Judgment)
	if err != nil {
		return Result{}, err
	}
	strength, err := requireText("keyStrength", out.KeyStrength)
	if err != nil {
		return Result{}, err
	}
	improvement, err := requireText("keyImprovement", out.KeyImprovement)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Scores:         scores,
		Overall:        Overall(scores),
		Judgment:       judgment,
		KeyStrength:    strength,
		KeyImprovement: improvement,
	}, nil
}

func requireText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingText, field)
	}
	if r := []rune(v); len(r) > maxTextLen {
		v = string(r[:maxTextLen])
	}
	return v, nil
}
