package camarray

import (
	"github.com/pkg/errors"

	"github.com/erh/camarray/observation"
)

// SelectBase picks the camera every other camera is registered against. Only cameras that see
// all world anchors qualify; among those the one seeing the most markers wins, ties going to
// the lowest camera id.
func SelectBase(obs observation.Set) (string, error) {
	best := ""
	bestCount := -1

	// IDs is sorted, so a strict comparison keeps the lowest id on ties
	for _, id := range obs.IDs() {
		c := obs[id]
		if !c.Has(WorldAnchors...) {
			continue
		}
		if len(c.MarkerIDs) > bestCount {
			best = id
			bestCount = len(c.MarkerIDs)
		}
	}

	if best == "" {
		return "", errors.Wrapf(ErrUnsatisfiable, "none of %d cameras sees all anchor markers %v", len(obs), WorldAnchors)
	}
	return best, nil
}
