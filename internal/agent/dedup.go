package agent

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/pennywise/pennywise/internal/domain"
)

// outputDeduper collapses repeated identical tool outputs within a single
// turn. The first occurrence passes through unchanged; repeats are replaced
// with a short reference to the call that already carries the payload.
type outputDeduper struct {
	seen map[[32]byte]string // output hash -> callId of first occurrence
}

func newOutputDeduper() *outputDeduper {
	return &outputDeduper{seen: make(map[[32]byte]string)}
}

// collapse returns the output to record for callID. Identical payloads
// after the first are rewritten to a success envelope pointing at the
// original call.
func (d *outputDeduper) collapse(callID string, output json.RawMessage) json.RawMessage {
	h := sha256.Sum256(output)
	if first, ok := d.seen[h]; ok {
		return domain.MustEncodeToolOutput(domain.SuccessOutput{
			Message: "duplicate of " + first + ", output elided",
		})
	}
	d.seen[h] = callID
	return output
}
