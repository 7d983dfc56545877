package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pennywise/pennywise/internal/domain"
	"github.com/pennywise/pennywise/internal/finance"
)

type insightsInput struct {
	Months int `json:"months,omitempty"`
}

// spendingInsightsTool is premium: Build only registers it for entitled
// identities, so a non-entitled turn never sees it as a callable option.
func spendingInsightsTool(backend finance.Backend, userID string) Spec {
	return Spec{
		Name:        "spending_insights",
		Description: "Analyze spending trends over the trailing months: monthly average, top categories, direction of travel.",
		InputSchema: `{"type":"object","properties":{"months":{"type":"integer","description":"trailing window, defaults to 3"}}}`,
		Capability:  CapabilityPremium,
		Execute: func(ctx context.Context, input json.RawMessage) (domain.ToolOutput, error) {
			var in insightsInput
			if len(input) > 0 {
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, fmt.Errorf("invalid input: %w", err)
				}
			}

			insights, err := backend.SpendingInsights(ctx, userID, in.Months)
			if err != nil {
				return nil, fmt.Errorf("spending insights: %w", err)
			}
			data, err := json.Marshal(insights)
			if err != nil {
				return nil, err
			}
			return domain.SuccessOutput{Data: data}, nil
		},
	}
}
