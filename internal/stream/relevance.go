package stream

import "strings"

// Signal keys are colon-delimited tuples shaped "sport:event:market:...".
// Position 0 is the sport component, position 2 the market component.
const (
	keySportIndex  = 0
	keyMarketIndex = 2
)

// relevantKey reports whether one signal key matters to the given filter set.
// A sport selection must intersect the key's sport; if market filters are
// active the key's market must match one of them.
func relevantKey(key string, sports, markets []string) bool {
	parts := strings.Split(key, ":")
	if len(parts) <= keySportIndex || parts[keySportIndex] == "" {
		return false
	}
	if len(sports) > 0 && !containsFold(sports, parts[keySportIndex]) {
		return false
	}
	if len(markets) > 0 {
		if len(parts) <= keyMarketIndex {
			return false
		}
		if !containsFold(markets, parts[keyMarketIndex]) {
			return false
		}
	}
	return true
}

// anyRelevant reports whether any key in a signal passes the filter. Signals
// with no relevant key are dropped before any debounce timer is armed.
func anyRelevant(keys []string, sports, markets []string) bool {
	for _, key := range keys {
		if relevantKey(key, sports, markets) {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, candidate := range haystack {
		if strings.EqualFold(candidate, needle) {
			return true
		}
	}
	return false
}
