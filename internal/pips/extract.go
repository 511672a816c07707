package pips

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	jsonBlockRE   = regexp.MustCompile("(?s)```json(.*?)```")
	pythonBlockRE = regexp.MustCompile("(?s)```python(.*?)```")
)

// extractComponents pulls the symbols JSON, the Python code and the
// free-text reasoning between them out of a model response. Missing
// pieces come back empty; the caller decides whether that is an error.
func extractComponents(output string) (symbols, code, reasoning string) {
	if ms := jsonBlockRE.FindAllStringSubmatch(output, -1); len(ms) > 0 {
		candidate := strings.TrimSpace(ms[len(ms)-1][1])
		if json.Valid([]byte(candidate)) {
			symbols = candidate
		}
	}
	if ms := pythonBlockRE.FindAllStringSubmatch(output, -1); len(ms) > 0 {
		code = strings.TrimSpace(ms[len(ms)-1][1])
	}

	// Reasoning is whatever sits between the first JSON block and the
	// Python block that follows it.
	if jLoc := jsonBlockRE.FindStringIndex(output); jLoc != nil {
		rest := output[jLoc[1]:]
		if pLoc := pythonBlockRE.FindStringIndex(rest); pLoc != nil {
			reasoning = strings.TrimSpace(rest[:pLoc[0]])
		}
	}
	return symbols, code, reasoning
}

// extractFinalAnswer returns the text after the last final-answer marker.
// found is false when the marker never appears.
func extractFinalAnswer(output string) (answer string, found bool) {
	idx := strings.LastIndex(output, finalAnswerMarker)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(output[idx+len(finalAnswerMarker):]), true
}

// criticVerdict is the structured tail of a critique response.
type criticVerdict struct {
	Accept  bool
	Summary string
}

// parseCriticVerdict reads the verdict block from a critique. Parsing is
// tolerant: the last fenced JSON block wins, then any trailing bare JSON
// object, then a literal FINISHED escape. An unreadable verdict rejects.
func parseCriticVerdict(critique string) criticVerdict {
	if ms := jsonBlockRE.FindAllStringSubmatch(critique, -1); len(ms) > 0 {
		candidate := strings.TrimSpace(ms[len(ms)-1][1])
		if v := gjson.Get(candidate, "accept"); v.Exists() {
			return criticVerdict{
				Accept:  v.Bool(),
				Summary: gjson.Get(candidate, "summary").String(),
			}
		}
	}

	// Some models drop the fence and end with the raw object.
	if start := strings.LastIndex(critique, "{"); start >= 0 {
		candidate := strings.TrimSpace(critique[start:])
		if v := gjson.Get(candidate, "accept"); v.Exists() {
			return criticVerdict{
				Accept:  v.Bool(),
				Summary: gjson.Get(candidate, "summary").String(),
			}
		}
	}

	if strings.Contains(critique, "FINISHED") {
		return criticVerdict{Accept: true}
	}
	return criticVerdict{}
}

// containsFinished reports whether a refinement response declared the
// current solution correct instead of producing new code.
func containsFinished(output string) bool {
	return strings.Contains(output, "FINISHED")
}
