// Package config defines the configuration schema for seneschal.
//
// A single JSON document at ~/.seneschal/config.json with camelCase keys;
// fields missing from the file keep their DefaultConfig values.
package config

// AgentConfig holds the completion-loop defaults.
type AgentConfig struct {
	Persona               string  `json:"persona"`
	Model                 string  `json:"model"`
	MaxTokens             int     `json:"maxTokens"`
	Temperature           float64 `json:"temperature"`
	MaxIterations         int     `json:"maxIterations"`
	MaxHistory            int     `json:"maxHistory"`
	RequestTimeoutSeconds int     `json:"requestTimeoutSeconds"`
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		Persona:               "You are seneschal, a helpful personal assistant. Be accurate and concise.",
		Model:                 "gpt-4o-mini",
		MaxTokens:             4096,
		Temperature:           0.7,
		MaxIterations:         10,
		MaxHistory:            40,
		RequestTimeoutSeconds: 120,
	}
}

// MemoryConfig tunes history compaction and the composed memory block.
type MemoryConfig struct {
	CompactMinQueue        int `json:"compactMinQueue"`
	CompactIntervalSeconds int `json:"compactIntervalSeconds"`
	CompactChunkTurns      int `json:"compactChunkTurns"`
	SummaryMaxChars        int `json:"summaryMaxChars"`
	GlobalFactLimit        int `json:"globalFactLimit"`
	ScopedFactLimit        int `json:"scopedFactLimit"`
}

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		CompactMinQueue:        6,
		CompactIntervalSeconds: 300,
		CompactChunkTurns:      60,
		SummaryMaxChars:        1500,
		GlobalFactLimit:        5,
		ScopedFactLimit:        10,
	}
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Name    string `json:"name"` // "openai" or "anthropic"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

func defaultProviderConfig() ProviderConfig {
	return ProviderConfig{Name: "openai"}
}

// CapabilitiesConfig holds registry-level settings.
type CapabilitiesConfig struct {
	// ManifestPath points at the optional agents.yaml manifest; empty means
	// only the built-in table is registered.
	ManifestPath    string `json:"manifestPath,omitempty"`
	WebReadMaxChars int    `json:"webReadMaxChars"`
}

func defaultCapabilitiesConfig() CapabilitiesConfig {
	return CapabilitiesConfig{WebReadMaxChars: 8000}
}

// ---- Channel configs --------------------------------------------------------

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

// SlackConfig configures the Slack Socket Mode channel.
type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"`
}

// GatewayConfig configures the WebSocket gateway channel.
type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// ChannelsConfig groups all channel configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Gateway  GatewayConfig  `json:"gateway"`
}

func defaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		Telegram: TelegramConfig{AllowFrom: []string{}},
		Gateway:  GatewayConfig{Host: "127.0.0.1", Port: 18790},
	}
}

// SchedulerConfig controls the job service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
}

// HeartbeatConfig controls the background prompt ticker.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"intervalSeconds"`
	Prompt          string `json:"prompt"`
}

func defaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		IntervalSeconds: 1800,
		Prompt:          "Heartbeat check-in: review pending work and report anything that needs attention.",
	}
}

// ---- Root config -------------------------------------------------------------

// Config is the root configuration object, loaded from ~/.seneschal/config.json.
type Config struct {
	Agent        AgentConfig        `json:"agent"`
	Memory       MemoryConfig       `json:"memory"`
	Provider     ProviderConfig     `json:"provider"`
	Capabilities CapabilitiesConfig `json:"capabilities"`
	Channels     ChannelsConfig     `json:"channels"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Heartbeat    HeartbeatConfig    `json:"heartbeat"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agent:        defaultAgentConfig(),
		Memory:       defaultMemoryConfig(),
		Provider:     defaultProviderConfig(),
		Capabilities: defaultCapabilitiesConfig(),
		Channels:     defaultChannelsConfig(),
		Scheduler:    SchedulerConfig{Enabled: true},
		Heartbeat:    defaultHeartbeatConfig(),
	}
}
