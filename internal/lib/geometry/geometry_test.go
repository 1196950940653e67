package geometry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/montagehq/montage/internal/lib/geometry"
)

func TestTimeToPercent(t *testing.T) {
	testCases := []struct {
		desc   string
		t      time.Duration
		total  time.Duration
		expect float64
	}{
		{
			desc:   "half",
			t:      5 * time.Second,
			total:  10 * time.Second,
			expect: 50,
		},
		{
			desc:   "zero position",
			t:      0,
			total:  10 * time.Second,
			expect: 0,
		},
		{
			desc:   "zero total",
			t:      5 * time.Second,
			total:  0,
			expect: 0,
		},
		{
			desc:   "full",
			t:      10 * time.Second,
			total:  10 * time.Second,
			expect: 100,
		},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.InDelta(t, tC.expect, geometry.TimeToPercent(tC.t, tC.total), 1e-9)
		})
	}
}

func TestPixelRoundTrip(t *testing.T) {
	total := 20 * time.Second

	px := geometry.TimeToPixel(7*time.Second, total, 1000)
	back := geometry.PixelToTime(px, 1000, total)

	assert.InDelta(t, float64(7*time.Second), float64(back), float64(time.Millisecond))
}

func TestSnapToGrid(t *testing.T) {
	testCases := []struct {
		desc   string
		t      time.Duration
		grid   time.Duration
		expect time.Duration
	}{
		{
			desc:   "round down",
			t:      1400 * time.Millisecond,
			grid:   time.Second,
			expect: time.Second,
		},
		{
			desc:   "round up",
			t:      1600 * time.Millisecond,
			grid:   time.Second,
			expect: 2 * time.Second,
		},
		{
			desc:   "exact",
			t:      3 * time.Second,
			grid:   time.Second,
			expect: 3 * time.Second,
		},
		{
			desc:   "zero grid is identity",
			t:      1234 * time.Millisecond,
			grid:   0,
			expect: 1234 * time.Millisecond,
		},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Equal(t, tC.expect, geometry.SnapToGrid(tC.t, tC.grid))
		})
	}
}

func TestMagneticSnap(t *testing.T) {
	// Sibling clip {0, 3s}: edges at 0 and 3s.
	edges := []geometry.Edge{{At: 0}, {At: 3 * time.Second}}

	testCases := []struct {
		desc      string
		candidate time.Duration
		duration  time.Duration
		dist      time.Duration
		expect    time.Duration
	}{
		{
			desc:      "snaps to sibling end within distance",
			candidate: 3300 * time.Millisecond,
			duration:  3 * time.Second,
			dist:      500 * time.Millisecond,
			expect:    3 * time.Second,
		},
		{
			desc:      "outside distance stays raw",
			candidate: 3600 * time.Millisecond,
			duration:  3 * time.Second,
			dist:      500 * time.Millisecond,
			expect:    3600 * time.Millisecond,
		},
		{
			desc:      "trailing edge snaps to sibling start",
			candidate: -2700 * time.Millisecond,
			duration:  3 * time.Second,
			dist:      500 * time.Millisecond,
			expect:    -3 * time.Second,
		},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			got := geometry.MagneticSnap(tC.candidate, tC.duration, edges, tC.dist)
			assert.Equal(t, tC.expect, got)
		})
	}
}

func TestMagneticSnapFirstEdgeWins(t *testing.T) {
	// Two edges both within distance; iteration order decides.
	edges := []geometry.Edge{
		{At: 1000 * time.Millisecond},
		{At: 1200 * time.Millisecond},
	}

	got := geometry.MagneticSnap(1100*time.Millisecond, time.Second, edges, 500*time.Millisecond)
	assert.Equal(t, 1000*time.Millisecond, got)
}

func TestClampTimestamp(t *testing.T) {
	total := 10 * time.Second

	assert.Equal(t, time.Duration(0), geometry.ClampTimestamp(-time.Second, 2*time.Second, total))
	assert.Equal(t, 8*time.Second, geometry.ClampTimestamp(9*time.Second, 2*time.Second, total))
	assert.Equal(t, 4*time.Second, geometry.ClampTimestamp(4*time.Second, 2*time.Second, total))
}

func TestClampDuration(t *testing.T) {
	assert.Equal(t, geometry.MinClipDuration, geometry.ClampDuration(10*time.Millisecond, 0))
	assert.Equal(t, 30*time.Second, geometry.ClampDuration(time.Minute, 30*time.Second))
	assert.Equal(t, 5*time.Second, geometry.ClampDuration(5*time.Second, 30*time.Second))
}
