package detection

import "sort"

// Resolve reduces an unordered candidate set to a non-overlapping entity
// list ordered by start offset.
//
// Candidates are considered in canonical order: start ascending, then length
// descending, then score descending. Each candidate is checked against the
// entities kept so far; on the first overlap:
//
//   - identical span: the higher score survives
//   - different lengths: the longer span survives
//   - equal lengths: the higher score survives (ties keep the incumbent)
//
// A candidate that overlaps nothing is kept. Resolve never fails and is
// idempotent on its own output.
func Resolve(candidates []Entity) []Entity {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Entity, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		if sorted[i].Length() != sorted[j].Length() {
			return sorted[i].Length() > sorted[j].Length()
		}
		return sorted[i].Score > sorted[j].Score
	})

	kept := make([]Entity, 0, len(sorted))
	for _, c := range sorted {
		overlapped := false
		for i := range kept {
			k := kept[i]
			if !c.Overlaps(k) {
				continue
			}
			overlapped = true
			switch {
			case c.SameSpan(k):
				if c.Score > k.Score {
					kept[i] = c
				}
			case c.Length() > k.Length():
				kept[i] = c
			case k.Length() > c.Length() || k.Score >= c.Score:
				// incumbent wins, candidate dropped
			default:
				// equal length, strictly higher score
				kept[i] = c
			}
			// a candidate conflicts with at most one survivor
			break
		}
		if !overlapped {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})
	return kept
}
