// Package xid generates the prefixed identifiers used for ledger rows
// ("shift-…", "order-…", "sweep-…"). The prefix keeps ids readable in
// logs and in API payloads.
package xid

import (
	"crypto/rand"
	"fmt"
	"time"
)

// New returns "<prefix>-<unix nanos>-<random hex tail>". Ids sort by
// creation time within a prefix; the tail breaks same-nanosecond ties.
func New(prefix string) string {
	now := time.Now().UnixNano()
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Without entropy the timestamp alone is still usable.
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%x", prefix, now, buf)
}
