// Package cache builds the request fingerprint used for daily run
// deduplication.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/nmery/needscan/internal/types"
)

// BuildKey hashes the normalized request together with the UTC date. The
// owner is deliberately excluded so unrelated users with an identical
// configuration share one canonical run; the date is deliberately included
// so the cache resets at UTC midnight with no invalidation step.
func BuildKey(req types.ScanRequest, now time.Time) string {
	payload := map[string]interface{}{
		"date":          now.UTC().Format("2006-01-02"),
		"input_pattern": req.InputPattern,
		"max_insights":  req.MaxInsights,
		"mode":          req.Mode,
		"run_mode":      string(req.RunMode),
	}
	// json.Marshal emits map keys in sorted order, so the digest is stable.
	data, err := json.Marshal(payload)
	if err != nil {
		// The payload is plain strings and ints; this cannot happen.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
