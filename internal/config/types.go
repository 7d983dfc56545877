package config

// Config is the root configuration for Pennywise.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Model   ModelConfig   `yaml:"model,omitempty"`
	Agent   AgentConfig   `yaml:"agent,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ModelConfig selects the model provider.
type ModelConfig struct {
	Provider    string   `yaml:"provider,omitempty"` // "claude" | "mock"
	APIKey      string   `yaml:"apiKey,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// AgentConfig bounds the step loop.
type AgentConfig struct {
	MaxRounds      int `yaml:"maxRounds,omitempty"`
	HistoryCeiling int `yaml:"historyCeiling,omitempty"`
}

// AuthConfig configures identity verification.
type AuthConfig struct {
	ProjectID       string `yaml:"projectId,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
}

// StoreConfig selects conversation persistence.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // sqlite file, ":memory:" for ephemeral
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleLevel string `yaml:"consoleLevel,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
