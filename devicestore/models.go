// Package devicestore keeps the preferences a client stores on the device:
// theme, cookie consent and calculator history, plus the export file that
// moves them between devices.
//
// Every key lives under Namespace. Values are stored as compact JSON.
package devicestore

import (
	"encoding/json"
	"slices"
	"time"
)

// Namespace prefixes every key this package writes.
const Namespace = "rechtskompass:"

const (
	KeyTheme             = Namespace + "theme"
	KeyCookieConsent     = Namespace + "cookie-consent"
	KeyCalculatorHistory = Namespace + "calculator-history"
	KeyLanguage          = Namespace + "language"
)

// allowedKeys are the keys Import will write. Anything else in an export
// file is ignored.
var allowedKeys = []string{
	KeyTheme,
	KeyCookieConsent,
	KeyCalculatorHistory,
	KeyLanguage,
}

// AllowedKeys returns the import allow-list.
func AllowedKeys() []string { return slices.Clone(allowedKeys) }

// IsAllowed reports whether Import accepts key.
func IsAllowed(key string) bool { return slices.Contains(allowedKeys, key) }

// MaxHistory caps the calculator history.
const MaxHistory = 50

// Theme is the color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// CookieConsent is the user's answer to the consent banner. Necessary
// cookies cannot be declined.
type CookieConsent struct {
	Necessary bool      `json:"necessary"`
	Analytics bool      `json:"analytics"`
	Marketing bool      `json:"marketing"`
	DecidedAt time.Time `json:"decidedAt"`
	Version   int       `json:"version"`
}

// CalculatorEntry is one saved benefit calculation.
type CalculatorEntry struct {
	ID         string          `json:"id"`
	Calculator string          `json:"calculator"`
	Input      json.RawMessage `json:"input,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// FormatVersion is written to every export file.
const FormatVersion = 1

// File is the export format.
type File struct {
	Version    int                        `json:"version"`
	ExportDate time.Time                  `json:"exportDate"`
	Data       map[string]json.RawMessage `json:"data"`
}

// ImportResult lists what Import did with each key of the file.
type ImportResult struct {
	Imported []string `json:"imported"`
	// Ignored keys are outside the allow-list.
	Ignored []string `json:"ignored,omitempty"`
	// Rejected keys are allow-listed but carried an invalid value.
	Rejected []string `json:"rejected,omitempty"`
}
