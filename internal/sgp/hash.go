// Package sgp prices same-game parlays across sportsbooks. Books whose legs
// resolve to the same token set share one upstream quote fetch, and quotes
// are cached in Redis for a short window so repeated pricing of the same
// parlay never re-hits the upstream.
package sgp

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// LegsHash produces a deterministic identifier for a token set. Tokens are
// sorted first, so any ordering of the same legs yields the same hash and
// books sharing a token set collapse into one upstream call.
func LegsHash(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("%x", hash[:8])
}
