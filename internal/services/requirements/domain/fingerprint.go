package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Fingerprint derives the cache key for the descriptor: canonical JSON with
// stable key ordering, hashed. Unset filters are omitted so semantically
// identical descriptors serialize byte-for-byte the same.
func (d QueryDescriptor) Fingerprint() string {
	d = d.Normalize()

	m := map[string]string{
		"tenant": d.TenantID,
		"page":   strconv.Itoa(d.Page),
		"size":   strconv.Itoa(d.PageSize),
		"sort":   d.Sort.String(),
		"dir":    d.Dir.String(),
	}
	if d.Cursor != nil {
		m["cursor"] = d.Cursor.Key + "/" + d.Cursor.ID
	}
	if d.Search != "" {
		m["q"] = d.Search
	}
	if d.Status != "" {
		m["status"] = d.Status
	}
	if d.Remote != "" {
		m["remote"] = d.Remote
	}
	if d.RateMin != nil {
		m["rate_min"] = strconv.FormatFloat(*d.RateMin, 'f', -1, 64)
	}
	if d.RateMax != nil {
		m["rate_max"] = strconv.FormatFloat(*d.RateMax, 'f', -1, 64)
	}
	if d.CreatedFrom != nil {
		m["from"] = d.CreatedFrom.UTC().Format(time.RFC3339Nano)
	}
	if d.CreatedTo != nil {
		m["to"] = d.CreatedTo.UTC().Format(time.RFC3339Nano)
	}

	// encoding/json sorts map keys, which is the canonical ordering we rely on
	b, _ := json.Marshal(m)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
