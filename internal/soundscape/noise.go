package soundscape

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// noisePeriod is the approximate period of the 1D noise walk driving
// each installation's target sound count (spec §4.H: "period ≈ 1 hour").
const noisePeriod = time.Hour

// splitmix64 is the standard public-domain SplitMix64 mixing function,
// used here purely as a deterministic hash: same inputs always produce
// the same bits, on any machine, any run (spec §4.H RNG: "Identical
// inputs yield identical results across runs").
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// latticeValue returns a deterministic pseudo-random value in [0,1)
// for a given seed, installation, and integer lattice step, used as
// the control points of the 1D value-noise walk.
func latticeValue(seedHi, seedLo uint64, installationID string, lattice int64) float64 {
	h := splitmix64(seedHi)
	h = splitmix64(h ^ seedLo)
	for i := 0; i < len(installationID); i++ {
		h = splitmix64(h ^ uint64(installationID[i]) ^ (uint64(i) << 8))
	}
	h = splitmix64(h ^ uint64(lattice))
	return float64(h>>11) / float64(uint64(1)<<53)
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

// noiseWalk samples the slow 1D noise walk at playbackDuration for
// installationID, decorrelated from other installations by mixing the
// installation ID into the hash (spec §4.H: "per-installation
// noise-walk phase is offset by a seed-installation mix").
func noiseWalk(seedHi, seedLo uint64, installationID string, playbackDuration time.Duration) float64 {
	t := playbackDuration.Seconds() / noisePeriod.Seconds()
	lattice := math.Floor(t)
	frac := t - lattice
	a := latticeValue(seedHi, seedLo, installationID, int64(lattice))
	b := latticeValue(seedHi, seedLo, installationID, int64(lattice)+1)
	return a + (b-a)*smoothstep(frac)
}

// Seed is the controller's 16-byte deterministic RNG seed (spec §4.H
// RNG: "a single seed (16 bytes) established at startup").
type Seed [16]byte

func (s Seed) halves() (hi, lo uint64) {
	return binary.BigEndian.Uint64(s[0:8]), binary.BigEndian.Uint64(s[8:16])
}

// TargetSoundCount computes the deterministic target number of
// concurrent sounds for an installation at a point in playback time
// (spec §4.H: "Computed deterministically from (seed, playback_duration,
// installation_id) via a slow 1D noise walk ... mapped into
// [simultaneous_sounds.min, simultaneous_sounds.max]").
func TargetSoundCount(seed Seed, playbackDuration time.Duration, installationID string, bounds model.IntRange) int {
	hi, lo := seed.halves()
	n := noiseWalk(hi, lo, installationID, playbackDuration)

	span := bounds.Max - bounds.Min
	if span < 0 {
		span = 0
	}
	return bounds.Min + int(math.Round(n*float64(span)))
}
