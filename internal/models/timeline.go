package models

import (
	"slices"
	"time"
)

type Tool string

const (
	ToolSelect Tool = "select"
	ToolRazor  Tool = "razor"
	ToolHand   Tool = "hand"
	ToolSlide  Tool = "slide"
)

func ValidTool(t Tool) bool {
	switch t {
	case ToolSelect, ToolRazor, ToolHand, ToolSlide:
		return true
	}
	return false
}

// SelectionBox is the rubber-band rectangle in screen coordinates.
// Intersecting it with clip bounds is the caller's concern.
type SelectionBox struct {
	StartX   float64 `json:"startX"`
	StartY   float64 `json:"startY"`
	CurrentX float64 `json:"currentX"`
	CurrentY float64 `json:"currentY"`
}

type DragKind string

const (
	DragMove        DragKind = "move"
	DragResizeLeft  DragKind = "resize-left"
	DragResizeRight DragKind = "resize-right"
)

type DragState struct {
	ClipID         string
	Kind           DragKind
	StartX         float64
	StartTimestamp time.Duration
	StartDuration  time.Duration
}

type CutPreview struct {
	TrackID  string
	Position time.Duration
}

type PasteMode string

const (
	PasteOverwrite PasteMode = "overwrite"
	PasteInsert    PasteMode = "insert"
)

// Clipboard holds snapshots of copied clips, never live references.
type Clipboard struct {
	Copied          []KeyFrame
	PasteMode       PasteMode
	DuplicateOffset time.Duration
}

type MarkerType string

const (
	MarkerStandard MarkerType = "standard"
	MarkerChapter  MarkerType = "chapter"
	MarkerTodo     MarkerType = "todo"
)

type Marker struct {
	ID        string        `json:"id"`
	Timestamp time.Duration `json:"timestamp"`
	Label     string        `json:"label"`
	Color     string        `json:"color"`
	Type      MarkerType    `json:"type"`
}

const (
	DefaultSnapDistance    = 500 * time.Millisecond
	DefaultDuplicateOffset = time.Second
)

// TimelineState is the transient editing state of one session.
// It is a value object: mutators work on clones, never in place.
// It never owns a keyframe's authoritative data.
type TimelineState struct {
	ActiveTool Tool

	Selected     map[string]struct{}
	SelectionBox *SelectionBox

	Drag *DragState

	SnapEnabled  bool
	MagneticSnap bool
	SnapDistance time.Duration

	CutPreview *CutPreview

	Clipboard Clipboard

	Ripple bool

	Markers []Marker
}

func DefaultTimelineState() TimelineState {
	return TimelineState{
		ActiveTool:   ToolSelect,
		Selected:     map[string]struct{}{},
		SnapEnabled:  true,
		MagneticSnap: true,
		SnapDistance: DefaultSnapDistance,
		Clipboard: Clipboard{
			PasteMode:       PasteInsert,
			DuplicateOffset: DefaultDuplicateOffset,
		},
	}
}

// Clone deep-copies the state so transitions stay pure.
func (s TimelineState) Clone() TimelineState {
	out := s

	out.Selected = make(map[string]struct{}, len(s.Selected))
	for id := range s.Selected {
		out.Selected[id] = struct{}{}
	}

	if s.SelectionBox != nil {
		box := *s.SelectionBox
		out.SelectionBox = &box
	}
	if s.Drag != nil {
		drag := *s.Drag
		out.Drag = &drag
	}
	if s.CutPreview != nil {
		cut := *s.CutPreview
		out.CutPreview = &cut
	}

	out.Clipboard.Copied = slices.Clone(s.Clipboard.Copied)
	out.Markers = slices.Clone(s.Markers)

	return out
}

func (s TimelineState) IsSelected(id string) bool {
	_, ok := s.Selected[id]
	return ok
}

// SelectedIDs returns the selection in deterministic order.
func (s TimelineState) SelectedIDs() []string {
	ids := make([]string, 0, len(s.Selected))
	for id := range s.Selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SnapOptions is the snapping input the manipulation protocol
// derives from the session state.
type SnapOptions struct {
	Grid         bool
	GridStep     time.Duration
	Magnetic     bool
	SnapDistance time.Duration
}

func (s TimelineState) SnapOptions() SnapOptions {
	return SnapOptions{
		Grid:         s.SnapEnabled,
		GridStep:     time.Second,
		Magnetic:     s.MagneticSnap,
		SnapDistance: s.SnapDistance,
	}
}
