package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/pennywise/pennywise/internal/domain"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Identity  domain.Identity
	ToolNames []string
}

// BuildSystemPrompt constructs the system prompt for the model.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	b.WriteString("You are a personal finance assistant. You help the user track expenses, manage budgets, and understand their spending.\n\n")

	b.WriteString(fmt.Sprintf("Current date: %s\n", time.Now().Format("2006-01-02")))
	if cfg.Identity.DisplayName != "" {
		b.WriteString(fmt.Sprintf("User: %s\n", cfg.Identity.DisplayName))
	}

	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Amounts are stored in cents; present them as dollars when replying.\n")
	b.WriteString("- Actions that change data require the user's confirmation. When a tool returns a pending confirmation, relay its summary and warnings and ask the user to confirm. Do not call the tool again yourself.\n")
	b.WriteString("- When listing results, mention when more pages are available.\n")
	b.WriteString("- If you don't know something, say so rather than guessing.\n")

	if len(cfg.ToolNames) > 0 {
		b.WriteString("\nAvailable tools: " + strings.Join(cfg.ToolNames, ", ") + "\n")
	}

	return b.String()
}
