package pips

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/rand/pips/internal/llm"
)

// decisionMaxTokens bounds the mode selection response; the reflection
// is short compared to solution attempts.
const decisionMaxTokens = 1024

var scoreListRE = regexp.MustCompile(`\[([0-9eE+.\s,-]+)\]`)

// parseProbabilityScores extracts a list of exactly ten probabilities
// from raw model output. The whole response is tried first, then every
// bracketed run; the first candidate with ten in-range floats wins.
func parseProbabilityScores(raw string) []float64 {
	if raw == "" {
		return nil
	}

	candidates := [][]float64{}
	if s := parseFloatList(strings.TrimSpace(raw)); s != nil {
		candidates = append(candidates, s)
	}
	for _, m := range scoreListRE.FindAllStringSubmatch(raw, -1) {
		if s := parseFloatList("[" + m[1] + "]"); s != nil {
			candidates = append(candidates, s)
		}
	}

	for _, c := range candidates {
		if len(c) != 10 {
			continue
		}
		ok := true
		for _, v := range c {
			if v < 0 || v > 1 {
				ok = false
				break
			}
		}
		if ok {
			return c
		}
	}
	return nil
}

// parseFloatList parses a bracketed, comma-separated float list.
func parseFloatList(s string) []float64 {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// modeSelector decides between code synthesis and chain-of-thought with
// one self-reflection model call.
type modeSelector struct {
	client llm.Client
	logger *slog.Logger
}

// Select runs the reflection prompt and parses the ten probability
// scores. Any failure, transport or parse, fails closed to
// chain-of-thought with the cause recorded in the rationale. No retries.
func (m *modeSelector) Select(ctx context.Context, input RawInput) ModeDecision {
	req := llm.Request{
		Messages:    buildModeSelectionPrompt(input),
		Temperature: 0,
		TopP:        1,
		MaxTokens:   decisionMaxTokens,
	}

	raw, err := m.client.Complete(ctx, req)
	if err != nil {
		m.logger.Warn("mode selection call failed, defaulting to chain-of-thought", "error", err)
		return ModeDecision{
			UseCode:   false,
			Rationale: fmt.Sprintf("mode selection call failed: %v; defaulting to chain-of-thought", err),
		}
	}

	scores := parseProbabilityScores(raw)
	if scores == nil {
		m.logger.Warn("mode selection response had no valid probability list, defaulting to chain-of-thought")
		return ModeDecision{
			UseCode:   false,
			Rationale: "could not parse confidence scores; defaulting to chain-of-thought reasoning",
			Raw:       raw,
		}
	}

	var sum float64
	for _, v := range scores {
		sum += v
	}
	avg := sum / float64(len(scores))
	useCode := avg > 0.5

	mode := "chain-of-thought reasoning"
	if useCode {
		mode = "iterative code generation"
	}
	return ModeDecision{
		UseCode:   useCode,
		Scores:    scores,
		Average:   avg,
		Rationale: fmt.Sprintf("average code suitability score %.2f; proceeding with %s", avg, mode),
		Raw:       raw,
	}
}
