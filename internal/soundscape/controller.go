package soundscape

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/metrics"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// TickInterval is the soundscape scheduler's fixed cadence (spec §4.H:
// "A single scheduler thread driven by a 16 ms tick").
const TickInterval = 16 * time.Millisecond

// RenderPort is the controller's only way to affect the rest of the
// system: it never reaches into renderer-owned state directly (spec §9
// Design Notes).
type RenderPort interface {
	// PositionUpdate pushes a moved sound's new pose to the renderer.
	PositionUpdate(soundID string, pos model.Point, radians float64)
	// SpawnWAV hands a freshly scheduled WAV sound to the WAV service
	// and renderer.
	SpawnWAV(sound model.Sound, sourceID, wavPath string, looped bool)
	// SpawnRealtime hands a freshly scheduled realtime sound to the
	// renderer.
	SpawnRealtime(sound model.Sound, sourceID string)
}

// Snapshot is the replica of control-layer project state the
// controller consumes each tick (spec §5: "Project state ...
// replicated into each worker via typed update messages").
type Snapshot struct {
	Installations []model.Installation
	Speakers      []model.Speaker
	Groups        []model.Group
	Sources       []model.Source
}

type groupTracking struct {
	group       model.Group
	activeCount int
	lastSpawn   time.Duration
	used        bool
}

func (g *groupTracking) needsMore() int {
	n := g.group.SimultaneousSounds.Min - g.activeCount
	if n < 0 {
		return 0
	}
	return n
}
func (g *groupTracking) everUsed() bool { return g.used }
func (g *groupTracking) durationUntilNeeded(now time.Duration) float64 {
	if !g.used {
		return 0
	}
	elapsedMS := now.Seconds()*1000 - g.lastSpawn.Seconds()*1000
	return g.group.OccurrenceRateMS.Max - elapsedMS
}

func (g *groupTracking) admissible(now time.Duration) bool {
	if g.activeCount >= g.group.SimultaneousSounds.Max {
		return false
	}
	if !g.used {
		return true
	}
	elapsedMS := now.Seconds()*1000 - g.lastSpawn.Seconds()*1000
	return elapsedMS > g.group.OccurrenceRateMS.Min
}

type sourceTracking struct {
	source      model.Source
	activeCount int
	lastSpawn   time.Duration
	used        bool
}

func (s *sourceTracking) needsMore() int {
	n := s.source.Soundscape.SimultaneousSounds.Min - s.activeCount
	if n < 0 {
		return 0
	}
	return n
}
func (s *sourceTracking) everUsed() bool { return s.used }
func (s *sourceTracking) durationUntilNeeded(now time.Duration) float64 {
	if !s.used {
		return 0
	}
	elapsedMS := now.Seconds()*1000 - s.lastSpawn.Seconds()*1000
	return s.source.Soundscape.OccurrenceRateMS.Max - elapsedMS
}

func (s *sourceTracking) admissible(now time.Duration) bool {
	if s.activeCount >= s.source.Soundscape.SimultaneousSounds.Max {
		return false
	}
	if !s.used {
		return true
	}
	elapsedMS := now.Seconds()*1000 - s.lastSpawn.Seconds()*1000
	return elapsedMS > s.source.Soundscape.OccurrenceRateMS.Min
}

func (s *sourceTracking) belongsToGroup(name string) bool {
	for _, g := range s.source.Soundscape.Groups {
		if g == name {
			return true
		}
	}
	return false
}

type installationState struct {
	installation model.Installation
	rect         model.Rect
	targetCount  int
	activeCount  int
}

type activeSound struct {
	sound          model.Sound
	sourceID       string
	groupName      string
	installationID string
	movement       Movement
}

// environment implements TargetEnvironment for one source's assigned
// installations, backed by the controller's current installation
// states (spec §4.I Agent target selection).
type environment struct {
	c       *Controller
	sourceID string
}

// agentCandidate captures the three suitability criteria spec.md
// names for Agent target-installation selection (spec.md:154),
// computed per (source, installation) pair exactly as the Rust
// ground truth's generate_installation_data does:
//  1. numAvailable: remaining room under the installation's configured
//     simultaneous_sounds.max, counting only this source's active
//     sounds there.
//  2. numNeeded: shortfall under simultaneous_sounds.min.
//  3. numNeededToReachTarget: shortfall under the noise-walk target
//     count for this tick (may be negative).
type agentCandidate struct {
	st                     *installationState
	numAvailable           int
	numNeeded              int
	numNeededToReachTarget int
}

func (e environment) candidates() []agentCandidate {
	src := e.c.sourceByID(e.sourceID)
	var out []agentCandidate
	for _, st := range e.c.installations {
		if src != nil && !src.source.AssignedToInstallation(st.installation.ID) {
			continue
		}

		current := 0
		for _, as := range e.c.active {
			if as.sourceID == e.sourceID && as.installationID == st.installation.ID {
				current++
			}
		}

		bounds := st.installation.SimultaneousSounds
		available := bounds.Max - current
		if available < 0 {
			available = 0
		}
		needed := bounds.Min - current
		if needed < 0 {
			needed = 0
		}

		out = append(out, agentCandidate{
			st:                     st,
			numAvailable:           available,
			numNeeded:              needed,
			numNeededToReachTarget: st.targetCount - current,
		})
	}
	return out
}

// agentCandidateLess orders candidates by installation_suitability_order
// (_examples/original_source/src/lib/soundscape/movement/agent.rs):
// an installation with zero available sounds always sorts after one
// with room, then the most num_sounds_needed wins, then the most
// num_sounds_needed_to_reach_target wins.
func agentCandidateLess(a, b agentCandidate) bool {
	if b.numAvailable == 0 {
		return true
	}
	if a.numAvailable == 0 {
		return false
	}
	if a.numNeeded != b.numNeeded {
		return a.numNeeded > b.numNeeded
	}
	return a.numNeededToReachTarget > b.numNeededToReachTarget
}

// PickTargetRect sorts this source's assigned installations by
// suitability and picks with a skew toward the most-suitable end of
// the list -- every installation has some chance, not just those tied
// for best -- mirroring generate_target's
// `(rng.gen::<f32>().powi(4) * vec.len()) as usize` index (spec.md:154).
func (e environment) PickTargetRect(rng *rand.Rand) model.Rect {
	cands := e.candidates()
	if len(cands) == 0 {
		return model.Rect{}
	}

	sort.SliceStable(cands, func(i, j int) bool { return agentCandidateLess(cands[i], cands[j]) })

	idx := int(math.Pow(rng.Float64(), 4) * float64(len(cands)))
	if idx >= len(cands) {
		idx = len(cands) - 1
	}
	return cands[idx].st.rect
}

func (e environment) TargetStatus(point model.Point) (hasCapacity, inside bool) {
	cands := e.candidates()
	if len(cands) == 0 {
		return false, false
	}

	best := cands[0]
	bestDist := point.DistanceSquared(best.st.rect.Centroid())
	for _, c := range cands[1:] {
		d := point.DistanceSquared(c.st.rect.Centroid())
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best.numAvailable > 0, best.st.rect.Contains(point)
}

// Controller implements the soundscape scheduler (spec §4.H).
type Controller struct {
	mu sync.Mutex

	seed Seed
	rng  *rand.Rand

	playbackDuration time.Duration
	paused           bool

	installations []*installationState
	groups        []*groupTracking
	sources       []*sourceTracking
	active        map[string]*activeSound

	render RenderPort
	logger *slog.Logger
}

// NewController creates a Controller seeded with seed and wired to
// render.
func NewController(seed Seed, render RenderPort) *Controller {
	hi, lo := seed.halves()
	return &Controller{
		seed:   seed,
		rng:    rand.New(rand.NewPCG(hi, lo)),
		active: make(map[string]*activeSound),
		render: render,
		logger: logging.ForService("soundscape"),
	}
}

// SetPaused controls whether playback_duration accumulates (spec §4.H).
func (c *Controller) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// UpdateSnapshot replaces the controller's replica of project state,
// preserving per-group/per-source usage tracking by name/ID across the
// update (spec §5: project state replicated via typed messages).
func (c *Controller) UpdateSnapshot(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevGroups := make(map[string]*groupTracking, len(c.groups))
	for _, g := range c.groups {
		prevGroups[g.group.Name] = g
	}
	groups := make([]*groupTracking, len(snap.Groups))
	for i, g := range snap.Groups {
		if prev, ok := prevGroups[g.Name]; ok {
			prev.group = g
			groups[i] = prev
		} else {
			groups[i] = &groupTracking{group: g}
		}
	}
	c.groups = groups

	prevSources := make(map[string]*sourceTracking, len(c.sources))
	for _, s := range c.sources {
		prevSources[s.source.ID] = s
	}
	sources := make([]*sourceTracking, len(snap.Sources))
	for i, s := range snap.Sources {
		if prev, ok := prevSources[s.ID]; ok {
			prev.source = s
			sources[i] = prev
		} else {
			sources[i] = &sourceTracking{source: s}
		}
	}
	c.sources = sources

	prevInstallations := make(map[string]*installationState, len(c.installations))
	for _, st := range c.installations {
		prevInstallations[st.installation.ID] = st
	}
	installations := make([]*installationState, len(snap.Installations))
	for i, inst := range snap.Installations {
		points := make([]model.Point, 0, len(snap.Speakers))
		for _, sp := range snap.Speakers {
			if sp.ServesInstallation(inst.ID) {
				points = append(points, sp.Point)
			}
		}
		rect := model.BoundingRect(points)
		if prev, ok := prevInstallations[inst.ID]; ok {
			prev.installation = inst
			prev.rect = rect
			installations[i] = prev
		} else {
			installations[i] = &installationState{installation: inst, rect: rect}
		}
	}
	c.installations = installations
}

func (c *Controller) sourceByID(id string) *sourceTracking {
	for _, s := range c.sources {
		if s.source.ID == id {
			return s
		}
	}
	return nil
}

func (c *Controller) closestInstallation(point model.Point, among []*installationState) *installationState {
	var best *installationState
	bestDist := 0.0
	for _, st := range among {
		centre := st.rect.Centroid()
		d := point.DistanceSquared(centre)
		if best == nil || d < bestDist {
			best = st
			bestDist = d
		}
	}
	return best
}

// Tick advances the controller by dt real seconds (spec §4.H "Per
// tick"). dt is the wall-clock time elapsed since the last tick; it is
// always applied to movement, but playback_duration (the deterministic
// scheduling clock) only accumulates while unpaused.
func (c *Controller) Tick(dt time.Duration) {
	start := time.Now()
	defer func() { metrics.RecordSoundscapeTick(time.Since(start)) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		c.playbackDuration += dt
	}

	for _, st := range c.installations {
		st.targetCount = TargetSoundCount(c.seed, c.playbackDuration, st.installation.ID, st.installation.SimultaneousSounds)
		st.activeCount = 0
	}

	dtSeconds := dt.Seconds()
	for soundID, as := range c.active {
		as.movement.Update(dtSeconds)
		pos := as.movement.Position()
		as.sound.Position = pos
		as.sound.Radians = as.movement.Radians()
		c.render.PositionUpdate(soundID, pos, as.sound.Radians)

		closest := c.closestInstallation(pos, c.installations)
		if closest != nil {
			as.installationID = closest.installation.ID
			closest.activeCount++
		}
	}

	for _, st := range c.installations {
		toAdd := st.targetCount - st.activeCount
		for i := 0; i < toAdd; i++ {
			if !c.spawnOne(st) {
				break
			}
		}
	}
}

// OnSoundEnded must be called when the renderer reports a sound has
// been removed, so group/source concurrency counters stay accurate.
func (c *Controller) OnSoundEnded(soundID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	as, ok := c.active[soundID]
	if !ok {
		return
	}
	delete(c.active, soundID)

	for _, g := range c.groups {
		if g.group.Name == as.groupName {
			g.activeCount--
		}
	}
	for _, s := range c.sources {
		if s.source.ID == as.sourceID {
			s.activeCount--
		}
	}
}

// spawnOne performs steps 5a-5f for one unit of capacity at
// installation st. It returns false if no admissible group/source pair
// could be found, so the caller should stop trying to fill this tick.
func (c *Controller) spawnOne(st *installationState) bool {
	var admissibleGroups []*groupTracking
	for _, g := range c.groups {
		if g.admissible(c.playbackDuration) {
			admissibleGroups = append(admissibleGroups, g)
		}
	}

	admissibleGroupNames := make(map[string]bool, len(admissibleGroups))
	for _, g := range admissibleGroups {
		admissibleGroupNames[g.group.Name] = true
	}

	var admissibleSources []*sourceTracking
	for _, s := range c.sources {
		if s.source.Role != model.RoleSoundscape {
			continue
		}
		if !s.source.AssignedToInstallation(st.installation.ID) {
			continue
		}
		ownerAdmissible := len(s.source.Soundscape.Groups) == 0
		for name := range admissibleGroupNames {
			if s.belongsToGroup(name) {
				ownerAdmissible = true
				break
			}
		}
		if !ownerAdmissible {
			continue
		}
		if !s.admissible(c.playbackDuration) {
			continue
		}
		admissibleSources = append(admissibleSources, s)
	}

	picked, ok := pickSuitable(admissibleSources, c.playbackDuration, c.rng)
	if !ok {
		return false
	}

	groupName := ""
	if len(picked.source.Soundscape.Groups) > 0 {
		groupName = picked.source.Soundscape.Groups[0]
	}

	sound := c.instantiateSound(picked)
	rect := st.rect
	env := environment{c: c, sourceID: picked.source.ID}
	movement := New(picked.source.Soundscape.Movement, rect, env, c.rng)
	pos := movement.Position()
	sound.Position = pos
	sound.Radians = movement.Radians()

	as := &activeSound{sound: sound, sourceID: picked.source.ID, groupName: groupName, installationID: st.installation.ID, movement: movement}
	c.active[sound.ID] = as

	picked.activeCount++
	picked.used = true
	picked.lastSpawn = c.playbackDuration
	for _, g := range c.groups {
		if g.group.Name == groupName {
			g.activeCount++
			g.used = true
			g.lastSpawn = c.playbackDuration
		}
	}
	st.activeCount++

	switch picked.source.Kind {
	case model.SourceWAV:
		c.render.SpawnWAV(sound, picked.source.ID, picked.source.WAV.Path, picked.source.WAV.ShouldLoop)
		metrics.RecordSoundscapeSpawn(st.installation.ID, picked.source.Kind.String())
	case model.SourceRealtime:
		c.render.SpawnRealtime(sound, picked.source.ID)
		metrics.RecordSoundscapeSpawn(st.installation.ID, picked.source.Kind.String())
	}

	return true
}

func (c *Controller) instantiateSound(picked *sourceTracking) model.Sound {
	cons := picked.source.Soundscape
	return model.Sound{
		ID:                  model.NewID(),
		SourceID:            picked.source.ID,
		Channels:            picked.source.Channels(),
		Spread:              picked.source.Spread,
		ChannelRadiansOffset: picked.source.ChannelRadians,
		Volume:              picked.source.Volume,
		Muted:               picked.source.Muted,
		TotalDurationFrames: int64(lerpRange(cons.PlaybackDurationFrames, c.rng)),
		AttackFrames:        int64(lerpRange(cons.AttackFrames, c.rng)),
		ReleaseFrames:       int64(lerpRange(cons.ReleaseFrames, c.rng)),
	}
}
