package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoundValidateRejectsZeroChannels(t *testing.T) {
	t.Parallel()

	s := Sound{ID: "s1", Channels: 0}
	err := s.Validate()
	require.Error(t, err)
}

func TestSoundValidateRejectsAttackReleaseExceedingDuration(t *testing.T) {
	t.Parallel()

	s := Sound{ID: "s1", Channels: 1, TotalDurationFrames: 100, AttackFrames: 60, ReleaseFrames: 60}
	err := s.Validate()
	require.Error(t, err)
}

func TestSoundValidateAcceptsExactBoundary(t *testing.T) {
	t.Parallel()

	s := Sound{ID: "s1", Channels: 1, TotalDurationFrames: 100, AttackFrames: 50, ReleaseFrames: 50}
	assert.NoError(t, s.Validate())
}

func TestWAVSourceValidateRejectsSampleRateMismatch(t *testing.T) {
	t.Parallel()

	c := WAVSourceConfig{Path: "x.wav", SampleRate: 48000, Channels: 1}
	require.Error(t, c.Validate())

	c.SampleRate = SampleRate
	assert.NoError(t, c.Validate())
}

func TestChannelPointSpreadsAroundCircle(t *testing.T) {
	t.Parallel()

	s := Sound{Position: Point{X: 0, Y: 0}, Spread: 1, Channels: 4}

	p0 := s.ChannelPoint(0, 4)
	assert.InDelta(t, 1.0, p0.X, 1e-9)
	assert.InDelta(t, 0.0, p0.Y, 1e-9)

	p2 := s.ChannelPoint(2, 4)
	assert.InDelta(t, -1.0, p2.X, 1e-9)
	assert.InDelta(t, 0.0, p2.Y, 1e-9)
}

func TestSourceAssignedToInstallationEmptyMeansAll(t *testing.T) {
	t.Parallel()

	s := Source{ID: "src1"}
	assert.True(t, s.AssignedToInstallation("any-installation"))

	s.Soundscape.Installations = []string{"i1", "i2"}
	assert.True(t, s.AssignedToInstallation("i1"))
	assert.False(t, s.AssignedToInstallation("i3"))
}

func TestBoundingRectAndCentroid(t *testing.T) {
	t.Parallel()

	points := []Point{{X: -1, Y: -2}, {X: 3, Y: 4}, {X: 0, Y: 0}}
	r := BoundingRect(points)

	assert.Equal(t, Rect{Left: -1, Right: 3, Bottom: -2, Top: 4}, r)

	c := r.Centroid()
	assert.InDelta(t, 1.0, c.X, 1e-9)
	assert.InDelta(t, 1.0, c.Y, 1e-9)
}

func TestPointOnCircle(t *testing.T) {
	t.Parallel()

	p := PointOnCircle(Point{}, 2, math.Pi/2)
	assert.InDelta(t, 0.0, p.X, 1e-9)
	assert.InDelta(t, 2.0, p.Y, 1e-9)
}
