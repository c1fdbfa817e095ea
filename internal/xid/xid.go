// Package xid generates prefixed identifiers for stored records: prd-
// for products, var- for variants, sal- for sales and usr- for users.
// The prefix keeps IDs self-describing in logs and API payloads.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a fresh identifier of the form <prefix>-<unixnano>-<random>.
// The timestamp keeps IDs roughly sortable by creation; the random
// suffix guards against collisions within the same nanosecond.
func New(prefix string) string {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
