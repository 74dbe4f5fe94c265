package extension

import "time"

// Config holds the Ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.ledger" or "ledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// App is the discriminator billing events must carry in their
	// metadata to be applied (default: "rechtskompass").
	App string `json:"app" mapstructure:"app" yaml:"app"`

	// WebhookSecret is the payment provider's signing secret. The webhook
	// answers 500 while it is empty.
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret" yaml:"webhook_secret"`

	// WebhookPath is where hosts are expected to mount WebhookHandler
	// (default: "/webhooks/stripe").
	WebhookPath string `json:"webhook_path" mapstructure:"webhook_path" yaml:"webhook_path"`

	// MaxBodyBytes bounds webhook request bodies (default: 64 KiB).
	MaxBodyBytes int64 `json:"max_body_bytes" mapstructure:"max_body_bytes" yaml:"max_body_bytes"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		App:           "rechtskompass",
		WebhookPath:   "/webhooks/stripe",
		MaxBodyBytes:  64 << 10,
		PluginTimeout: 5 * time.Second,
	}
}
