package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	json "github.com/goccy/go-json"
)

// Fingerprint returns a stable identity for the normalized options, suitable
// as a cache key. Two option values that describe the same query produce the
// same fingerprint regardless of how the caller built them.
func (o LoadOptions) Fingerprint() string {
	norm := o.Normalize()
	payload, err := json.Marshal(norm)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", norm))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// FilterFingerprint identifies only the filter conjunction and search term.
// The orchestrator compares it across calls to decide when pagination must
// reset to the first page.
func (o LoadOptions) FilterFingerprint() string {
	norm := o.Normalize()
	subset := struct {
		Filter []FilterCondition `json:"filter,omitempty"`
		Search string            `json:"search,omitempty"`
	}{Filter: norm.Filter, Search: norm.Search}
	payload, err := json.Marshal(subset)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", subset))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
