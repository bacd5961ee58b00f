package soundscape

import (
	"math/rand/v2"
	"sort"
	"time"
)

// suitable is implemented by the trackers used to order candidate
// groups and sources for spawn selection (spec §4.H step 5c).
type suitable interface {
	needsMore() int
	everUsed() bool
	durationUntilNeeded(now time.Duration) float64
}

// pickSuitable sorts entries by suitability -- most needed first, then
// never-used before used, then smallest duration_until_sound_needed --
// and picks uniformly at random among the entries tied for best (spec
// §4.H step 5c/5d). It reports false if entries is empty.
func pickSuitable[T suitable](entries []T, now time.Duration, rng *rand.Rand) (T, bool) {
	var zero T
	if len(entries) == 0 {
		return zero, false
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.needsMore() != b.needsMore() {
			return a.needsMore() > b.needsMore()
		}
		if a.everUsed() != b.everUsed() {
			return !a.everUsed()
		}
		return a.durationUntilNeeded(now) < b.durationUntilNeeded(now)
	})

	best := entries[0]
	tierEnd := 1
	for tierEnd < len(entries) {
		e := entries[tierEnd]
		if e.needsMore() == best.needsMore() &&
			e.everUsed() == best.everUsed() &&
			e.durationUntilNeeded(now) == best.durationUntilNeeded(now) {
			tierEnd++
			continue
		}
		break
	}

	idx := 0
	if tierEnd > 1 {
		idx = rng.IntN(tierEnd)
	}
	return entries[idx], true
}
