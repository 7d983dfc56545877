package agent

import "github.com/pennywise/pennywise/internal/domain"

// truncateHistory bounds the history sent to the model. When the
// conversation exceeds ceiling messages, the first message is kept for
// anchoring and the remainder comes from the most recent ceiling-1
// messages. Relative order is preserved; the stored conversation is
// never modified.
func truncateHistory(msgs []domain.Message, ceiling int) []domain.Message {
	if ceiling <= 0 || len(msgs) <= ceiling {
		return msgs
	}
	out := make([]domain.Message, 0, ceiling)
	out = append(out, msgs[0])
	out = append(out, msgs[len(msgs)-(ceiling-1):]...)
	return out
}
