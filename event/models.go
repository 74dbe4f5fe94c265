// Package event records which payment-provider events have been processed,
// so a redelivered event is recognised instead of being applied twice.
package event

import "time"

// Record is one claimed provider event.
type Record struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Provider    string    `json:"provider"`
	ProcessedAt time.Time `json:"processed_at"`
}
