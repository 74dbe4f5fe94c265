package id_test

import (
	"strings"
	"testing"

	"github.com/rechtskompass/ledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"AccountID", id.NewAccountID, "acct_"},
		{"TransactionID", id.NewTransactionID, "crtx_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	acct := id.NewAccountID()
	parsed, err := id.ParseAccountID(acct.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != acct.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), acct.String())
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseAccountID(id.NewTransactionID().String()); err == nil {
		t.Error("expected ParseAccountID to reject a crtx_ id")
	}
	if _, err := id.ParseTransactionID(id.NewAccountID().String()); err == nil {
		t.Error("expected ParseTransactionID to reject an acct_ id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("expected empty string and prefix, got %q / %q", i.String(), i.Prefix())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewAccountID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil || val != nil {
		t.Fatalf("Value(nil) = %v, %v; want nil, nil", val, err)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
	if err := scanned2.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewAccountID()
	b := id.NewAccountID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewAccountID() calls returned the same ID: %q", a.String())
	}
}
