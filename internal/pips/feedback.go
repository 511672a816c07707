package pips

import "strings"

// Excerpt is one piece of human feedback tied to a quoted span of the
// current code or symbols. An excerpt with no quoted text is a general
// comment.
type Excerpt struct {
	QuotedText string `json:"quoted_text,omitempty"`
	Comment    string `json:"comment"`
}

// FeedbackRequest is emitted when the solver suspends at a checkpoint.
// It carries everything a reviewer needs to judge the current state.
type FeedbackRequest struct {
	SessionID  string `json:"session_id"`
	Iteration  int    `json:"iteration"`
	Code       string `json:"code"`
	Symbols    string `json:"symbols"`
	CriticText string `json:"critic_text"`
}

// FeedbackResponse resumes a suspended solver. Terminate ends the
// session immediately with the current output as final.
type FeedbackResponse struct {
	AcceptCritic bool      `json:"accept_critic"`
	Excerpts     []Excerpt `json:"annotated_excerpts,omitempty"`
	Terminate    bool      `json:"terminate"`
}

// hasUserInput reports whether the reviewer added anything beyond the
// accept/reject toggle.
func (r FeedbackResponse) hasUserInput() bool {
	for _, e := range r.Excerpts {
		if strings.TrimSpace(e.Comment) != "" {
			return true
		}
	}
	return false
}

// mergeFeedback folds the critic text and the human response into the
// feedback passed to the next refinement prompt. Excerpt order is
// preserved.
func mergeFeedback(criticText string, resp FeedbackResponse) string {
	var parts []string

	if resp.AcceptCritic && criticText != "" {
		parts = append(parts, "AI Critic's feedback:", criticText)
	}

	var general []string
	var specific []Excerpt
	for _, e := range resp.Excerpts {
		if strings.TrimSpace(e.Comment) == "" {
			continue
		}
		if strings.TrimSpace(e.QuotedText) == "" {
			general = append(general, e.Comment)
		} else {
			specific = append(specific, e)
		}
	}

	if len(general) > 0 {
		parts = append(parts, "User feedback:")
		parts = append(parts, general...)
	}
	if len(specific) > 0 {
		parts = append(parts, "Specific code feedback:")
		for _, e := range specific {
			parts = append(parts, "Regarding: "+e.QuotedText, "Comment: "+e.Comment)
		}
	}

	if len(parts) == 0 {
		return "No specific issues identified."
	}
	return strings.Join(parts, "\n\n")
}
