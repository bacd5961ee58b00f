// Package soundscape implements the deterministic soundscape controller
// (spec §4.H) and its three movement strategies (spec §4.I).
package soundscape

import (
	"math"
	"math/rand/v2"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// Movement is a live movement instance for one active sound. Update
// advances its internal state by dt seconds; Position/Radians report
// the sound's current pose for the renderer.
type Movement interface {
	Update(dt float64)
	Position() model.Point
	Radians() float64
}

// TargetEnvironment is how an Agent discovers where it may roam and
// whether its current target installation still has capacity, without
// reaching into controller-owned state directly (spec §4.H "Design
// Notes": workers never hold back-pointers into shared state).
type TargetEnvironment interface {
	// PickTargetRect selects one of the owning source's assigned
	// installations by suitability (spec §4.I target selection:
	// installations with no available capacity last, then most sounds
	// needed; the pick is skewed toward the front of the whole sorted
	// list, so every installation has some chance) and returns its
	// bounding rect.
	PickTargetRect(rng *rand.Rand) model.Rect
	// TargetStatus reports whether the installation closest to point
	// currently has available sound capacity, and whether point
	// already lies inside that installation.
	TargetStatus(point model.Point) (hasCapacity, inside bool)
}

func lerpRange(r model.Range, rng *rand.Rand) float64 {
	return r.Lerp(rng.Float64())
}

func randomPointInRect(rect model.Rect, rng *rand.Rand) model.Point {
	return rect.Lerp(rng.Float64(), rng.Float64())
}

func limitMagnitude(v model.Point, max float64) model.Point {
	l := v.Length()
	if max <= 0 {
		return model.Point{}
	}
	if l <= max || l == 0 {
		return v
	}
	return v.Scale(max / l)
}

func angleDiff(a, b float64) float64 {
	d := a - b
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// rotateVector rotates v by theta radians.
func rotateVector(v model.Point, theta float64) model.Point {
	c, s := math.Cos(theta), math.Sin(theta)
	return model.Point{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c}
}

// limitRotation clamps the angle between old and candidate to at most
// maxAngle (radians), preserving candidate's magnitude (spec §4.I
// Agent: "rotation is additionally magnitude-limited so the turning
// rate cannot exceed max_rotation * dt").
func limitRotation(old, candidate model.Point, maxAngle float64) model.Point {
	if old.Length() == 0 || candidate.Length() == 0 || maxAngle <= 0 {
		return candidate
	}
	oldAngle := math.Atan2(old.Y, old.X)
	newAngle := math.Atan2(candidate.Y, candidate.X)
	diff := angleDiff(newAngle, oldAngle)
	if math.Abs(diff) <= maxAngle {
		return candidate
	}
	clamped := oldAngle + math.Copysign(maxAngle, diff)
	mag := candidate.Length()
	return model.Point{X: math.Cos(clamped) * mag, Y: math.Sin(clamped) * mag}
}

// Fixed places a sound once at a normalised point within its
// installation's bounding rect and never moves it (spec §4.I Fixed).
type Fixed struct {
	point model.Point
}

// NewFixed resolves desc's normalised point against rect.
func NewFixed(desc model.FixedDescriptor, rect model.Rect) *Fixed {
	return &Fixed{point: rect.Lerp(desc.NormalizedPoint.X, desc.NormalizedPoint.Y)}
}

func (f *Fixed) Update(dt float64) {}

func (f *Fixed) Position() model.Point { return f.point }

func (f *Fixed) Radians() float64 { return 0 }

// Agent is an autonomous steering agent that roams between randomly
// selected targets within its assigned installations (spec §4.I Agent).
type Agent struct {
	desc model.AgentDescriptor
	env  TargetEnvironment
	rng  *rand.Rand

	location model.Point
	target   model.Point
	velocity model.Point

	maxSpeed    float64
	maxForce    float64
	maxRotation float64
}

// NewAgent draws max_speed/max_force/max_rotation from desc's ranges,
// places the agent at a random point in an initial target
// installation, and sets an initial heading near the desired direction
// with small random jitter (spec §4.I Agent: "Initial target ... ;
// initial speed ... ; initial heading ... with small random jitter").
func NewAgent(desc model.AgentDescriptor, env TargetEnvironment, rng *rand.Rand) *Agent {
	a := &Agent{
		desc:        desc,
		env:         env,
		rng:         rng,
		maxSpeed:    lerpRange(desc.MaxSpeed, rng),
		maxForce:    lerpRange(desc.MaxForce, rng),
		maxRotation: lerpRange(desc.MaxRotation, rng),
	}

	startRect := env.PickTargetRect(rng)
	a.location = randomPointInRect(startRect, rng)
	a.target = randomPointInRect(env.PickTargetRect(rng), rng)

	speed := a.maxSpeed * rng.Float64()
	dir := a.target.Sub(a.location)
	if dir.Length() > 0 {
		dir = dir.Normalized()
	} else {
		dir = model.Point{X: 1}
	}
	jitter := (rng.Float64()*2 - 1) * 0.3
	dir = rotateVector(dir, jitter)
	a.velocity = dir.Scale(speed)

	return a
}

// Update advances the agent by dt seconds (spec §4.I Agent "Per
// update").
func (a *Agent) Update(dt float64) {
	if hasCapacity, inside := a.env.TargetStatus(a.target); !hasCapacity && !inside {
		a.target = randomPointInRect(a.env.PickTargetRect(a.rng), a.rng)
	}

	toTarget := a.target.Sub(a.location)
	var desired model.Point
	if toTarget.Length() > 0 {
		desired = toTarget.Normalized().Scale(a.maxSpeed)
	}

	steering := limitMagnitude(desired.Sub(a.velocity), a.maxForce)
	newVelocity := a.velocity.Add(steering)
	newVelocity = limitRotation(a.velocity, newVelocity, a.maxRotation*dt)

	a.velocity = newVelocity
	a.location = a.location.Add(a.velocity.Scale(dt))

	if a.location.Distance(a.target) < 1.0 {
		a.target = randomPointInRect(a.env.PickTargetRect(a.rng), a.rng)
	}
}

func (a *Agent) Position() model.Point { return a.location }

// Radians returns atan2(vy, vx) when the descriptor is directional,
// else 0 (spec §4.I Agent).
func (a *Agent) Radians() float64 {
	if !a.desc.Directional {
		return 0
	}
	return math.Atan2(a.velocity.Y, a.velocity.X)
}

// Ngon traces a path visiting every nth vertex of a regular polygon
// inscribed in (a scaled version of) its installation's bounding rect
// (spec §4.I N-gon path tracer).
type Ngon struct {
	desc  model.NgonDescriptor
	rect  model.Rect
	speed float64

	startIdx, endIdx int
	lerp             float64
}

// NewNgon places the tracer on a random edge of the polygon.
func NewNgon(desc model.NgonDescriptor, rect model.Rect, rng *rand.Rand) *Ngon {
	vertices := desc.Vertices
	if vertices < 3 {
		vertices = 3
	}
	nth := desc.Nth
	if nth < 1 {
		nth = 1
	}
	start := rng.IntN(vertices)
	return &Ngon{
		desc:     model.NgonDescriptor{Vertices: vertices, Nth: nth, NormalizedDimensions: desc.NormalizedDimensions, RadiansOffset: desc.RadiansOffset, Speed: desc.Speed},
		rect:     rect,
		speed:    lerpRange(desc.Speed, rng),
		startIdx: start,
		endIdx:   (start + nth) % vertices,
	}
}

// vertex returns the absolute position of polygon vertex i (spec
// §4.I: "Vertex i is (cx + hw*cos(theta), cy + hh*sin(theta))").
func (n *Ngon) vertex(i int) model.Point {
	cx, cy := n.rect.Centroid().X, n.rect.Centroid().Y
	hw := n.rect.Width() / 2 * n.desc.NormalizedDimensions.X
	hh := n.rect.Height() / 2 * n.desc.NormalizedDimensions.Y
	theta := 2*math.Pi*float64(i)/float64(n.desc.Vertices) + n.desc.RadiansOffset
	return model.Point{X: cx + hw*math.Cos(theta), Y: cy + hh*math.Sin(theta)}
}

// Update advances the tracer speed*dt metres along its path, crossing
// into subsequent edges as distance remains (spec §4.I N-gon "Per
// update").
func (n *Ngon) Update(dt float64) {
	remaining := n.speed * dt

	for remaining > 0 {
		a, b := n.vertex(n.startIdx), n.vertex(n.endIdx)
		segLen := a.Distance(b)
		if segLen <= 1e-9 {
			n.startIdx = n.endIdx
			n.endIdx = (n.endIdx + n.desc.Nth) % n.desc.Vertices
			n.lerp = 0
			continue
		}

		remainingOnSegment := (1 - n.lerp) * segLen
		if remaining >= remainingOnSegment {
			remaining -= remainingOnSegment
			n.lerp = 0
			n.startIdx = n.endIdx
			n.endIdx = (n.endIdx + n.desc.Nth) % n.desc.Vertices
		} else {
			n.lerp += remaining / segLen
			remaining = 0
		}
	}
}

func (n *Ngon) Position() model.Point {
	a, b := n.vertex(n.startIdx), n.vertex(n.endIdx)
	return model.Point{X: a.X + (b.X-a.X)*n.lerp, Y: a.Y + (b.Y-a.Y)*n.lerp}
}

func (n *Ngon) Radians() float64 { return 0 }

// New constructs the movement instance described by desc (spec §9's
// closed tagged union over movement strategies).
func New(desc model.MovementDescriptor, rect model.Rect, env TargetEnvironment, rng *rand.Rand) Movement {
	switch desc.Kind {
	case model.MovementAgent:
		return NewAgent(desc.Agent, env, rng)
	case model.MovementNgon:
		return NewNgon(desc.Ngon, rect, rng)
	default:
		return NewFixed(desc.Fixed, rect)
	}
}
