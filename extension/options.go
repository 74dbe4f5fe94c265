package extension

import (
	"time"

	ledger "github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/plugin"
	"github.com/rechtskompass/ledger/store"
)

// Option configures the Ledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a ledger.Option through to the underlying engine.
func WithLedgerOption(opt ledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, ledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithApp sets the billing event discriminator.
func WithApp(app string) Option {
	return func(e *Extension) { e.config.App = app }
}

// WithWebhookSecret sets the provider signing secret.
func WithWebhookSecret(secret string) Option {
	return func(e *Extension) { e.config.WebhookSecret = secret }
}

// WithWebhookPath sets the path reported by WebhookPath.
func WithWebhookPath(path string) Option {
	return func(e *Extension) { e.config.WebhookPath = path }
}

// WithMaxBodyBytes bounds webhook request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Extension) { e.config.MaxBodyBytes = n }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
