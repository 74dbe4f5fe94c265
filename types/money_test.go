package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyString(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		display string
	}{
		{"cents", EUR(99), "0,99 €"},
		{"basis", EUR(499), "4,99 €"},
		{"profi", EUR(1999), "19,99 €"},
		{"thousands", EUR(125000), "1.250,00 €"},
		{"negative", EUR(-299), "-2,99 €"},
		{"zero", Zero("EUR"), "0,00 €"},
		{"other currency", Money{Amount: 500, Currency: "chf"}, "5,00 CHF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.display {
				t.Errorf("String: got %q, want %q", got, tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	if got := EUR(199).Add(EUR(100)); !got.Equal(EUR(299)) {
		t.Errorf("Add: got %v", got)
	}
	if got := EUR(299).Multiply(3); !got.Equal(EUR(897)) {
		t.Errorf("Multiply: got %v", got)
	}
	if !EUR(99).LessThan(EUR(100)) {
		t.Error("LessThan: expected 0,99 € < 1,00 €")
	}
	if !EUR(0).IsZero() || EUR(0).IsPositive() || !EUR(1).IsPositive() {
		t.Error("IsZero/IsPositive mismatch")
	}
	if !(Money{}).Equal(EUR(0)) {
		t.Error("zero Money without currency should equal EUR(0)")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = EUR(100).Add(Money{Amount: 100, Currency: "usd"})
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(EUR(999))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"amount":999,"currency":"eur","display":"9,99 €"}`
	if string(data) != want {
		t.Fatalf("marshal: got %s, want %s", data, want)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(EUR(999)) {
		t.Errorf("unmarshal: got %+v", back)
	}
}
