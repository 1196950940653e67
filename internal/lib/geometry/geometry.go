package geometry

import (
	"math"
	"time"
)

// Package geometry holds the pure numeric transforms between the
// time axis and screen coordinates, plus the snapping rules used
// while dragging and resizing clips. All snapping is done in the
// time domain so results do not depend on zoom level; conversion
// to pixels happens only at the rendering boundary.

const (
	// DefaultGrid is the grid step for grid snapping.
	DefaultGrid = time.Second

	// DefaultSnapDistance is the magnetic snap radius.
	DefaultSnapDistance = 500 * time.Millisecond

	// MinClipDuration is the uniform floor for clip length,
	// applied to resize results and both halves of a razor split.
	MinClipDuration = 100 * time.Millisecond
)

// Edge is a clip boundary another clip can magnetically snap to.
type Edge struct {
	At time.Duration
}

// TimeToPercent converts a position on the time axis to a
// percentage of the full timeline width.
func TimeToPercent(t, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(t) / float64(total) * 100
}

// TimeToPixel converts a position on the time axis to pixels
// for a timeline rendered at widthPx.
func TimeToPixel(t, total time.Duration, widthPx float64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(t) / float64(total) * widthPx
}

// PixelToTime converts an x offset in pixels back to a position
// on the time axis.
func PixelToTime(px, widthPx float64, total time.Duration) time.Duration {
	if widthPx <= 0 {
		return 0
	}
	return time.Duration(px / widthPx * float64(total))
}

// SnapToGrid rounds t to the nearest grid step.
func SnapToGrid(t, grid time.Duration) time.Duration {
	if grid <= 0 {
		return t
	}
	return time.Duration(math.Round(float64(t)/float64(grid))) * grid
}

// MagneticSnap aligns a candidate clip start against sibling edges.
// The clip's leading edge is checked first, then its trailing edge;
// the first edge within dist wins and the adjusted start is returned.
// If no edge is close enough, the candidate is returned unchanged.
func MagneticSnap(candidate, clipDuration time.Duration, edges []Edge, dist time.Duration) time.Duration {
	for _, e := range edges {
		if absDuration(candidate-e.At) < dist {
			return e.At
		}
		if absDuration(candidate+clipDuration-e.At) < dist {
			return e.At - clipDuration
		}
	}
	return candidate
}

// ClampTimestamp bounds a clip start to [0, total-duration].
func ClampTimestamp(t, clipDuration, total time.Duration) time.Duration {
	if t > total-clipDuration {
		t = total - clipDuration
	}
	if t < 0 {
		t = 0
	}
	return t
}

// ClampDuration bounds a clip length to [MinClipDuration, max].
// A non-positive max means unbounded above.
func ClampDuration(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		d = max
	}
	if d < MinClipDuration {
		d = MinClipDuration
	}
	return d
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
