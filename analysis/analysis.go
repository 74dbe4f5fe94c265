// Package analysis reads the results the AI proxy returns for chat messages
// and document scans. Model output is not trusted to be well-formed: JSON
// may be wrapped in prose or code fences, fields may be missing or have the
// wrong shape. Parsing never fails; unreadable output degrades to a
// fallback object.
package analysis

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Severity grades a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func parseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical, "high", "hoch", "kritisch":
		return SeverityCritical
	case SeverityWarning, "medium", "mittel", "warnung":
		return SeverityWarning
	}
	return SeverityInfo
}

// Finding is one issue the model found in a document.
type Finding struct {
	Title    string   `json:"title"`
	Detail   string   `json:"detail,omitempty"`
	Severity Severity `json:"severity"`
}

// Deadline is a date the document sets. Due is nil when Date could not be
// read as a calendar date.
type Deadline struct {
	Description string     `json:"description"`
	Date        string     `json:"date,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
}

// Scan is a structured document analysis.
type Scan struct {
	DocumentType   string     `json:"document_type,omitempty"`
	Summary        string     `json:"summary"`
	Findings       []Finding  `json:"findings"`
	Deadlines      []Deadline `json:"deadlines"`
	Recommendation string     `json:"recommendation"`

	// Structured is false for fallback results.
	Structured bool `json:"structured"`
}

const (
	fallbackSummary        = "Das Dokument konnte nicht automatisch ausgewertet werden."
	fallbackRecommendation = "Bitte prüfe das Dokument selbst und lass dich im Zweifel beraten."
	maxFallbackSummary     = 600
)

// Fallback wraps unstructured model output. The raw text becomes the
// summary; findings and deadlines are empty.
func Fallback(raw string) Scan {
	summary := strings.TrimSpace(stripFences(raw))
	if summary == "" {
		summary = fallbackSummary
	}
	if r := []rune(summary); len(r) > maxFallbackSummary {
		summary = string(r[:maxFallbackSummary]) + "…"
	}
	return Scan{
		Summary:        summary,
		Findings:       []Finding{},
		Deadlines:      []Deadline{},
		Recommendation: fallbackRecommendation,
	}
}

// ParseScan extracts a Scan from model output.
func ParseScan(raw string) Scan {
	doc, ok := extractObject(raw)
	if !ok {
		return Fallback(raw)
	}

	s := Scan{
		DocumentType:   first(doc, "document_type", "documentType", "dokumenttyp").String(),
		Summary:        strings.TrimSpace(first(doc, "summary", "zusammenfassung").String()),
		Recommendation: strings.TrimSpace(first(doc, "recommendation", "empfehlung").String()),
		Findings:       []Finding{},
		Deadlines:      []Deadline{},
		Structured:     true,
	}

	first(doc, "findings", "issues", "befunde").ForEach(func(_, v gjson.Result) bool {
		if f, ok := finding(v); ok {
			s.Findings = append(s.Findings, f)
		}
		return true
	})
	first(doc, "deadlines", "fristen").ForEach(func(_, v gjson.Result) bool {
		if d, ok := deadline(v); ok {
			s.Deadlines = append(s.Deadlines, d)
		}
		return true
	})

	if s.Summary == "" && len(s.Findings) == 0 && len(s.Deadlines) == 0 {
		return Fallback(raw)
	}
	if s.Summary == "" {
		s.Summary = fallbackSummary
	}
	if s.Recommendation == "" {
		s.Recommendation = fallbackRecommendation
	}
	return s
}

func finding(v gjson.Result) (Finding, bool) {
	switch {
	case v.Type == gjson.String:
		t := strings.TrimSpace(v.String())
		return Finding{Title: t, Severity: SeverityInfo}, t != ""
	case v.IsObject():
		f := Finding{
			Title:    strings.TrimSpace(first(v, "title", "titel", "issue").String()),
			Detail:   strings.TrimSpace(first(v, "detail", "description", "beschreibung").String()),
			Severity: parseSeverity(first(v, "severity", "schwere").String()),
		}
		if f.Title == "" {
			f.Title, f.Detail = f.Detail, ""
		}
		return f, f.Title != ""
	}
	return Finding{}, false
}

var dateLayouts = []string{time.DateOnly, "02.01.2006", "2.1.2006", time.RFC3339}

func deadline(v gjson.Result) (Deadline, bool) {
	var d Deadline
	switch {
	case v.Type == gjson.String:
		d.Description = strings.TrimSpace(v.String())
	case v.IsObject():
		d.Description = strings.TrimSpace(first(v, "description", "beschreibung", "title").String())
		d.Date = strings.TrimSpace(first(v, "date", "datum", "due").String())
	default:
		return d, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, d.Date); err == nil {
			t = t.UTC()
			d.Due = &t
			break
		}
	}
	return d, d.Description != "" || d.Date != ""
}

// ParseChat returns the reply text of a chat completion. Replies wrapped in
// {"reply": "..."} are unwrapped; anything else is returned trimmed.
func ParseChat(raw string) string {
	text := strings.TrimSpace(raw)
	if doc, ok := extractObject(text); ok {
		if r := first(doc, "reply", "message", "content", "antwort"); r.Type == gjson.String {
			return strings.TrimSpace(r.String())
		}
	}
	return text
}

// extractObject finds the outermost JSON object in s.
func extractObject(s string) (gjson.Result, bool) {
	s = strings.TrimSpace(stripFences(s))
	if gjson.Valid(s) {
		r := gjson.Parse(s)
		return r, r.IsObject()
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return gjson.Result{}, false
	}
	s = s[start : end+1]
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	return gjson.Parse(s), true
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = ""
	}
	t = strings.TrimSpace(t)
	return strings.TrimSuffix(t, "```")
}

// first returns the first path of v that exists.
func first(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
