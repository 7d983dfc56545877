package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pennywise/pennywise/internal/domain"
)

// proposal is what a mutating tool computes on its first, uncommitted call:
// enough detail for the user to approve without re-specifying the request.
type proposal struct {
	summary  string
	details  any
	warnings []string
}

// runGated is the confirmation gate. A mutating call with confirmed=false
// computes the effect but does not apply it, returning a
// pending_confirmation output. Only a re-invocation with confirmed=true
// commits. The commit path refuses to apply once the context is cancelled,
// so an abandoned stream can never produce a late mutation.
func runGated(
	ctx context.Context,
	action string,
	confirmed bool,
	propose func(context.Context) (proposal, error),
	apply func(context.Context) (string, error),
) (domain.ToolOutput, error) {
	if !confirmed {
		p, err := propose(ctx)
		if err != nil {
			return nil, err
		}
		out := domain.PendingConfirmation{
			Action:   action,
			Summary:  p.summary,
			Warnings: p.warnings,
		}
		if p.details != nil {
			raw, err := json.Marshal(p.details)
			if err != nil {
				return nil, fmt.Errorf("encoding proposal details: %w", err)
			}
			out.Details = raw
		}
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s not applied: %w", action, err)
	}

	msg, err := apply(ctx)
	if err != nil {
		return nil, err
	}
	return domain.SuccessOutput{Message: msg}, nil
}
