package main

import (
	"context"
	"testing"

	ledger "github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/store/sqlite"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("MemoryByDefault", func(t *testing.T) {
		cfg, err := loadConfig()
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		s, err := openStore(ctx, cfg)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		if _, ok := s.(*memory.Store); !ok {
			t.Errorf("got %T, want *memory.Store", s)
		}
	})

	t.Run("SQLiteFromEnv", func(t *testing.T) {
		t.Setenv("LEDGER_DATABASE_DRIVER", "sqlite")
		t.Setenv("LEDGER_DATABASE_URL", ":memory:")
		cfg, err := loadConfig()
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		s, err := openStore(ctx, cfg)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		if _, ok := s.(*sqlite.Store); !ok {
			t.Fatalf("got %T, want *sqlite.Store", s)
		}

		l := ledger.New(s)
		if err := l.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer l.Stop()
		if _, err := l.RegisterAccount(ctx, "erika@example.de", ""); err != nil {
			t.Fatalf("RegisterAccount: %v", err)
		}
	})

	t.Run("URLRequired", func(t *testing.T) {
		if _, err := openStore(ctx, config{DatabaseDriver: "postgres"}); err == nil {
			t.Error("postgres without a URL must fail")
		}
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		if _, err := openStore(ctx, config{DatabaseDriver: "oracle", DatabaseURL: "x"}); err == nil {
			t.Error("unknown driver must fail")
		}
	})
}
