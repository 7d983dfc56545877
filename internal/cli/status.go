package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pennywise/pennywise/internal/config"
	"github.com/pennywise/pennywise/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Pennywise status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Pennywise %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:  not found (using defaults)")
				} else {
					fmt.Printf("Config:  error loading: %v\n", err)
				}
				return nil
			}

			fmt.Printf("Server:   %s port %d\n", cfg.Server.Bind, cfg.Server.Port)

			provider := cfg.Model.Provider
			if provider == "" {
				provider = "claude"
			}
			keySource := "config"
			if cfg.Model.APIKey == "" {
				if os.Getenv("ANTHROPIC_API_KEY") != "" {
					keySource = "environment"
				} else {
					keySource = "missing"
				}
			}
			fmt.Printf("Model:    %s / %s (api key: %s)\n", provider, cfg.Model.Model, keySource)

			driver := cfg.Store.Driver
			if driver == "" {
				driver = "sqlite"
			}
			fmt.Printf("Store:    %s\n", driver)

			if cfg.Auth.ProjectID != "" {
				fmt.Printf("Auth:     token verification for project %s\n", cfg.Auth.ProjectID)
			} else {
				fmt.Println("Auth:     header identity only (no token verification)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\n%d config issue(s):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  %s\n", issue.String())
				}
			}
			return nil
		},
	}
	return cmd
}
