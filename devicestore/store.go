package devicestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MaxImportBytes bounds the size of an import file.
const MaxImportBytes = 1 << 20

var (
	// ErrInvalidFile is returned by Import for files that are not exports.
	ErrInvalidFile = errors.New("devicestore: invalid export file")
	// ErrInvalidValue is returned when a typed setter receives a value it
	// cannot store.
	ErrInvalidValue = errors.New("devicestore: invalid value")
)

// Store is the typed view over a Backend.
type Store struct {
	backend Backend
}

// New returns a store over b.
func New(b Backend) *Store {
	return &Store{backend: b}
}

// Get returns the raw value of key.
func (s *Store) Get(key string) (json.RawMessage, bool, error) {
	return s.backend.Get(key)
}

// Set stores any JSON value under key. The key must carry Namespace.
func (s *Store) Set(key string, value json.RawMessage) error {
	if !strings.HasPrefix(key, Namespace) {
		return fmt.Errorf("%w: key %q outside namespace", ErrInvalidValue, key)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
	}
	return s.backend.Set(key, buf.Bytes())
}

func (s *Store) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("devicestore: encode %s: %w", key, err)
	}
	return s.backend.Set(key, data)
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	raw, ok, err := s.backend.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("devicestore: decode %s: %w", key, err)
	}
	return true, nil
}

// Theme returns the stored theme, ThemeSystem when unset or unreadable.
func (s *Store) Theme() (Theme, error) {
	var t Theme
	ok, err := s.getJSON(KeyTheme, &t)
	if err != nil || !ok || !t.Valid() {
		return ThemeSystem, err
	}
	return t, nil
}

func (s *Store) SetTheme(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: theme %q", ErrInvalidValue, t)
	}
	return s.setJSON(KeyTheme, t)
}

// CookieConsent returns the stored consent, if the user has decided.
func (s *Store) CookieConsent() (CookieConsent, bool, error) {
	var c CookieConsent
	ok, err := s.getJSON(KeyCookieConsent, &c)
	return c, ok, err
}

// SetCookieConsent records a decision. Necessary is forced on.
func (s *Store) SetCookieConsent(c CookieConsent) error {
	c.Necessary = true
	if c.DecidedAt.IsZero() {
		c.DecidedAt = time.Now().UTC()
	}
	return s.setJSON(KeyCookieConsent, c)
}

// History returns saved calculations, newest first.
func (s *Store) History() ([]CalculatorEntry, error) {
	var entries []CalculatorEntry
	if _, err := s.getJSON(KeyCalculatorHistory, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddHistory prepends e and drops entries beyond MaxHistory.
func (s *Store) AddHistory(e CalculatorEntry) error {
	entries, err := s.History()
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	entries = slices.Insert(entries, 0, e)
	if len(entries) > MaxHistory {
		entries = entries[:MaxHistory]
	}
	return s.setJSON(KeyCalculatorHistory, entries)
}

// ClearHistory removes all saved calculations.
func (s *Store) ClearHistory() error {
	return s.backend.Delete(KeyCalculatorHistory)
}

// Export collects every namespaced key.
func (s *Store) Export(now time.Time) (File, error) {
	keys, err := s.backend.Keys()
	if err != nil {
		return File{}, err
	}
	f := File{
		Version:    FormatVersion,
		ExportDate: now.UTC(),
		Data:       make(map[string]json.RawMessage, len(keys)),
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, Namespace) {
			continue
		}
		v, ok, err := s.backend.Get(k)
		if err != nil {
			return File{}, err
		}
		if ok {
			f.Data[k] = v
		}
	}
	return f, nil
}

// WriteExport encodes Export(now) to w.
func (s *Store) WriteExport(w io.Writer, now time.Time) error {
	f, err := s.Export(now)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Import writes the allow-listed keys of an export file. Every key is
// checked before the first write, and a failed write restores the keys
// already written, so a failed import leaves the store as it was.
func (s *Store) Import(r io.Reader) (ImportResult, error) {
	var res ImportResult

	body, err := io.ReadAll(io.LimitReader(r, MaxImportBytes+1))
	if err != nil {
		return res, fmt.Errorf("devicestore: read import: %w", err)
	}
	if len(body) > MaxImportBytes {
		return res, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidFile, MaxImportBytes)
	}
	if !gjson.ValidBytes(body) {
		return res, fmt.Errorf("%w: not JSON", ErrInvalidFile)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return res, fmt.Errorf("%w: not a JSON object", ErrInvalidFile)
	}
	if v := doc.Get("version"); !v.Exists() || v.Type == gjson.Null {
		return res, fmt.Errorf("%w: missing version field", ErrInvalidFile)
	}
	data := doc.Get("data")
	if !data.IsObject() {
		return res, fmt.Errorf("%w: missing data object", ErrInvalidFile)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data.Raw), &values); err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	accepted := make([]string, 0, len(keys))
	compacted := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		v := values[k]
		if !IsAllowed(k) {
			res.Ignored = append(res.Ignored, k)
			continue
		}
		var buf bytes.Buffer
		if !validValue(k, v) || json.Compact(&buf, v) != nil {
			res.Rejected = append(res.Rejected, k)
			continue
		}
		accepted = append(accepted, k)
		compacted[k] = buf.Bytes()
	}

	previous := make(map[string]json.RawMessage, len(accepted))
	for _, k := range accepted {
		old, ok, err := s.backend.Get(k)
		if err != nil {
			return ImportResult{}, fmt.Errorf("devicestore: read %s: %w", k, err)
		}
		if ok {
			previous[k] = old
		}
	}

	for i, k := range accepted {
		if err := s.backend.Set(k, compacted[k]); err != nil {
			err = fmt.Errorf("devicestore: import %s: %w", k, err)
			return ImportResult{}, errors.Join(err, s.restore(accepted[:i], previous))
		}
	}
	res.Imported = accepted
	return res, nil
}

// restore puts keys back to their previous values, deleting those that had none.
func (s *Store) restore(keys []string, previous map[string]json.RawMessage) error {
	var errs []error
	for _, k := range slices.Backward(keys) {
		var err error
		if old, ok := previous[k]; ok {
			err = s.backend.Set(k, old)
		} else {
			err = s.backend.Delete(k)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("devicestore: restore %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

func validValue(key string, v json.RawMessage) bool {
	switch key {
	case KeyTheme:
		var t Theme
		return json.Unmarshal(v, &t) == nil && t.Valid()
	case KeyCookieConsent:
		return gjson.ParseBytes(v).IsObject()
	case KeyCalculatorHistory:
		var entries []CalculatorEntry
		return json.Unmarshal(v, &entries) == nil && len(entries) <= MaxHistory
	case KeyLanguage:
		return gjson.ParseBytes(v).Type == gjson.String
	}
	return false
}
