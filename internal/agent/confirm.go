package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pennywise/pennywise/internal/domain"
)

// ConfirmDirective is an explicit answer to a pending proposal, addressed
// by the proposal's callId.
type ConfirmDirective struct {
	CallID  string `json:"callId"`
	Approve bool   `json:"approve"`
}

// resolution pairs a pending proposal with the user's verdict on it.
type resolution struct {
	proposal domain.ToolInvocation
	approve  bool
}

var (
	affirmativeRe = regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|sure|ok(ay)?|confirm(ed)?|do it|go ahead|please do|proceed)\b`)
	negativeRe    = regexp.MustCompile(`(?i)^\s*(no|nope|don'?t|do not|cancel|stop|never ?mind|abort)\b`)
)

// pendingProposals returns the unresolved confirmation proposals of the
// most recent assistant message. Older proposals are stale: any turn that
// ran since either resolved them or abandoned them.
func pendingProposals(conv *domain.Conversation) []domain.ToolInvocation {
	var last *domain.Message
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == domain.RoleAssistant {
			last = &conv.Messages[i]
			break
		}
	}
	if last == nil {
		return nil
	}

	var pending []domain.ToolInvocation
	for _, inv := range last.ToolInvocations() {
		if inv.State != domain.ToolStateOutputAvailable {
			continue
		}
		out, err := domain.DecodeToolOutput(inv.Output)
		if err != nil {
			continue
		}
		if _, ok := out.(domain.PendingConfirmation); ok {
			pending = append(pending, inv)
		}
	}
	return pending
}

// resolveConfirmations decides what happens to each pending proposal given
// the incoming turn. An explicit directive wins; otherwise a bare
// affirmative reply approves all pending proposals and a bare negative
// declines them. Any other reply abandons silently: nothing executes and
// the new turn proceeds as a fresh request.
func resolveConfirmations(conv *domain.Conversation, directive *ConfirmDirective, userText string) []resolution {
	pending := pendingProposals(conv)
	if len(pending) == 0 {
		return nil
	}

	if directive != nil {
		for _, inv := range pending {
			if inv.CallID == directive.CallID {
				return []resolution{{proposal: inv, approve: directive.Approve}}
			}
		}
		// Directive names a stale or unknown callId; abandon everything.
		return nil
	}

	text := strings.TrimSpace(userText)
	switch {
	case affirmativeRe.MatchString(text):
		out := make([]resolution, len(pending))
		for i, inv := range pending {
			out[i] = resolution{proposal: inv, approve: true}
		}
		return out
	case negativeRe.MatchString(text):
		out := make([]resolution, len(pending))
		for i, inv := range pending {
			out[i] = resolution{proposal: inv, approve: false}
		}
		return out
	default:
		return nil
	}
}

// withConfirmed returns the proposal's input with "confirmed": true set,
// which routes the executor past its propose branch.
func withConfirmed(input json.RawMessage) json.RawMessage {
	var m map[string]any
	if len(input) == 0 || json.Unmarshal(input, &m) != nil || m == nil {
		m = make(map[string]any)
	}
	m["confirmed"] = true
	out, err := json.Marshal(m)
	if err != nil {
		return input
	}
	return out
}
