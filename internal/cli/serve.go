package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pennywise/pennywise/internal/agent"
	"github.com/pennywise/pennywise/internal/auth"
	"github.com/pennywise/pennywise/internal/config"
	"github.com/pennywise/pennywise/internal/finance"
	"github.com/pennywise/pennywise/internal/gateway"
	"github.com/pennywise/pennywise/internal/llm"
	"github.com/pennywise/pennywise/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if cfg.Model.APIKey == "" {
				cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Conversation store (SQLite or in-memory)
			var convs store.ConversationStore
			if cfg.Store.Driver == "memory" {
				convs = store.NewMemoryConversationStore()
				log.Info().Msg("using in-memory conversation store")
			} else {
				dbPath := cfg.Store.Path
				if dbPath == "" {
					dbPath = paths.DefaultDBPath()
				}
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				convs = store.NewConversationDB(db)
				log.Info().Str("path", dbPath).Msg("using SQLite conversation store")
			}

			client, err := buildModelClient(cfg.Model)
			if err != nil {
				return err
			}
			log.Info().Str("provider", client.Name()).Str("model", cfg.Model.Model).Msg("model client ready")

			verifier := auth.NewVerifier(auth.Config{
				ProjectID:       cfg.Auth.ProjectID,
				CredentialsFile: cfg.Auth.CredentialsFile,
			}, log)

			runner := agent.NewRunner(agent.Config{
				Model:          cfg.Model.Model,
				MaxTokens:      cfg.Model.MaxTokens,
				Temperature:    cfg.Model.Temperature,
				MaxRounds:      cfg.Agent.MaxRounds,
				HistoryCeiling: cfg.Agent.HistoryCeiling,
			}, client, log)

			backend := finance.NewMemoryBackend()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := gateway.New(cfg, runner, verifier, convs, backend, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// buildModelClient picks the model provider from config. The mock provider
// exists for local development without an API key.
func buildModelClient(cfg config.ModelConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "mock":
		return &llm.MockClient{}, nil
	case "", "claude":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no API key: set model.apiKey or ANTHROPIC_API_KEY")
		}
		return llm.NewClaudeClient(apiKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
