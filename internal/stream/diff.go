package stream

import (
	"math"
	"sort"

	"github.com/tmash55/unjuiced/pkg/models"
)

// edgeEpsilon is the smallest edge movement treated as a real change. Price
// is compared as an integer, so it needs no epsilon.
const edgeEpsilon = 0.01

// DiffResult classifies every entity of an incoming snapshot against the
// previous cache. ID slices are sorted, so two diffs over the same data
// compare equal regardless of input order.
type DiffResult struct {
	Added   []string
	Updated []string
	Removed []string
	Changes map[string]models.ChangeRecord
}

// Diff compares an incoming snapshot against the previous cache keyed by
// composite ID. An entity counts as updated only when its price or edge
// actually moved; identifiers present before but absent now are reported as
// removed.
func Diff(previous map[string]*models.Opportunity, incoming []*models.Opportunity) DiffResult {
	result := DiffResult{Changes: make(map[string]models.ChangeRecord)}

	seen := make(map[string]bool, len(incoming))
	for _, opp := range incoming {
		id := opp.ID()
		seen[id] = true

		old, exists := previous[id]
		if !exists {
			result.Added = append(result.Added, id)
			continue
		}

		record := models.ChangeRecord{}
		if opp.BestBook.Price != old.BestBook.Price {
			record.Price = direction(float64(opp.BestBook.Price), float64(old.BestBook.Price))
		}
		if math.Abs(opp.Edge-old.Edge) > edgeEpsilon {
			record.Edge = direction(opp.Edge, old.Edge)
		}
		if record.Price != "" || record.Edge != "" {
			result.Updated = append(result.Updated, id)
			result.Changes[id] = record
		}
	}

	for id := range previous {
		if !seen[id] {
			result.Removed = append(result.Removed, id)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Updated)
	sort.Strings(result.Removed)
	return result
}

func direction(current, old float64) models.ChangeDirection {
	if current > old {
		return models.ChangeUp
	}
	return models.ChangeDown
}

// indexByID builds the cache map for a snapshot. Later duplicates of the same
// composite ID win, which matches the upstream contract that IDs are unique.
func indexByID(opportunities []*models.Opportunity) map[string]*models.Opportunity {
	index := make(map[string]*models.Opportunity, len(opportunities))
	for _, opp := range opportunities {
		index[opp.ID()] = opp
	}
	return index
}
