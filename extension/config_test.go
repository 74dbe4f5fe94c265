package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{WebhookSecret: "whsec_x"})
	if cfg.App != "rechtskompass" || cfg.WebhookPath != "/webhooks/stripe" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.MaxBodyBytes != 64<<10 || cfg.PluginTimeout != 5*time.Second {
		t.Errorf("limits %+v", cfg)
	}
	if cfg.WebhookSecret != "whsec_x" {
		t.Errorf("secret lost")
	}
}

func TestMergeConfigurationsPrefersFile(t *testing.T) {
	file := Config{App: "from-file", MaxBodyBytes: 1024}
	prog := Config{App: "from-code", WebhookSecret: "whsec_code", DisableMigrate: true, PluginTimeout: time.Second}

	cfg := mergeConfigurations(file, prog)
	if cfg.App != "from-file" || cfg.MaxBodyBytes != 1024 {
		t.Errorf("file values overridden: %+v", cfg)
	}
	if cfg.WebhookSecret != "whsec_code" || !cfg.DisableMigrate || cfg.PluginTimeout != time.Second {
		t.Errorf("programmatic gaps not filled: %+v", cfg)
	}
	if cfg.WebhookPath != "/webhooks/stripe" {
		t.Errorf("default path missing: %q", cfg.WebhookPath)
	}
}

func TestOptionsApply(t *testing.T) {
	e := New(
		WithApp("other"),
		WithWebhookSecret("s"),
		WithWebhookPath("/hooks"),
		WithMaxBodyBytes(10),
		WithPluginTimeout(time.Minute),
		WithDisableMigrate(),
	)
	c := e.config
	if c.App != "other" || c.WebhookSecret != "s" || c.WebhookPath != "/hooks" ||
		c.MaxBodyBytes != 10 || c.PluginTimeout != time.Minute || !c.DisableMigrate {
		t.Errorf("config %+v", c)
	}
	if e.Engine() != nil {
		t.Error("engine built before Register")
	}
}
