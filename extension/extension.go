// Package extension provides the Forge extension adapter for Ledger.
//
// It implements the forge.Extension interface to integrate Ledger
// into a Forge application with DI registration and lifecycle management.
// The engine, the billing processor and the webhook handler are provided
// to the container; hosts mount WebhookHandler at WebhookPath.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.ledger" or "ledger" keys.
package extension

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	ledger "github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/billing"
	"github.com/rechtskompass/ledger/store"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/webhook"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "ledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Plan entitlements, usage counters and credit ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *ledger.Ledger
	processor  *billing.Processor
	handler    *webhook.Handler
	store      store.Store
	ledgerOpts []ledger.Option
}

// New creates a new Ledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *ledger.Ledger { return e.engine }

// Processor returns the billing event processor.
func (e *Extension) Processor() *billing.Processor { return e.processor }

// WebhookHandler returns the provider webhook endpoint.
func (e *Extension) WebhookHandler() http.Handler { return e.handler }

// WebhookPath is the configured mount path for WebhookHandler.
func (e *Extension) WebhookPath() string { return e.config.WebhookPath }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = ledger.New(e.store, e.buildLedgerOpts()...)
	e.processor = billing.NewProcessor(e.engine, e.config.App)
	e.handler = webhook.NewHandler(e.processor, e.config.WebhookSecret,
		webhook.WithLogger(e.engine.Logger()),
		webhook.WithMaxBodyBytes(e.config.MaxBodyBytes),
	)

	if e.config.WebhookSecret == "" {
		e.Logger().Warn("ledger: webhook secret not configured; webhook will answer 500")
	}

	if err := vessel.Provide(fapp.Container(), func() (*ledger.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	if err := vessel.Provide(fapp.Container(), func() (*billing.Processor, error) {
		return e.processor, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*webhook.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("ledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("ledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs ledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []ledger.Option {
	opts := make([]ledger.Option, 0, len(e.ledgerOpts)+1)
	if e.config.PluginTimeout > 0 {
		opts = append(opts, ledger.WithPluginTimeout(e.config.PluginTimeout))
	}
	return append(opts, e.ledgerOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("ledger: configuration is required but not found in config files; " +
				"ensure 'extensions.ledger' or 'ledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("ledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("app", e.config.App),
		forge.F("webhook_path", e.config.WebhookPath),
		forge.F("webhook_secret_set", e.config.WebhookSecret != ""),
		forge.F("max_body_bytes", e.config.MaxBodyBytes),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.ledger", "ledger"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("ledger: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("ledger: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.App == "" {
		cfg.App = defaults.App
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = defaults.WebhookPath
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.App == "" {
		yamlConfig.App = programmaticConfig.App
	}
	if yamlConfig.WebhookSecret == "" {
		yamlConfig.WebhookSecret = programmaticConfig.WebhookSecret
	}
	if yamlConfig.WebhookPath == "" {
		yamlConfig.WebhookPath = programmaticConfig.WebhookPath
	}
	if yamlConfig.MaxBodyBytes == 0 {
		yamlConfig.MaxBodyBytes = programmaticConfig.MaxBodyBytes
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	return mergeWithDefaults(yamlConfig)
}
