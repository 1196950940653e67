package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	clipservice "github.com/montagehq/montage/internal/service/clips"
	"github.com/montagehq/montage/internal/service/history"
)

// Session is the editing state machine for one open timeline. It
// owns the transient state (active tool, selection, drag, snapping,
// clipboard, markers) and the undo history for the project. State
// transitions are pure: mutators clone, snapshot, then replace.
//
// Drag, rubber-band and cut-preview updates are ephemeral and are
// never recorded: at sixty events a second they would bury every
// meaningful undo step.
type Session struct {
	ID        string
	ProjectID string

	log   *slog.Logger
	clips *clipservice.Clips
	hist  *history.History

	mu    sync.Mutex
	state models.TimelineState
}

// Clips exposes the manipulation protocol bound to this session's
// history, so committed gestures land on the right undo stack.
func (s *Session) Clips() *clipservice.Clips {
	return s.clips
}

// State returns a snapshot of the transient state.
func (s *Session) State() models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Clone()
}

// record pushes the pre-mutation snapshot. Callers hold s.mu.
func (s *Session) record() {
	s.hist.RecordState(s.state.Clone())
}

// SetActiveTool switches the active tool. Switching during a drag
// is rejected so the gesture cannot change semantics mid-flight.
func (s *Session) SetActiveTool(tool models.Tool) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !models.ValidTool(tool) {
		return models.TimelineState{}, service.ErrInvalidTool
	}
	if s.state.Drag != nil {
		return models.TimelineState{}, service.ErrDragInProgress
	}
	if tool == s.state.ActiveTool {
		return s.state.Clone(), nil
	}

	s.record()
	next := s.state.Clone()
	next.ActiveTool = tool
	next.CutPreview = nil
	s.state = next

	return s.state.Clone(), nil
}

// SelectClip replaces the selection with one clip; with multi set
// it toggles the clip's membership instead.
func (s *Session) SelectClip(id string, multi bool) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()

	if multi {
		if _, ok := next.Selected[id]; ok {
			delete(next.Selected, id)
		} else {
			next.Selected[id] = struct{}{}
		}
	} else {
		next.Selected = map[string]struct{}{id: {}}
	}

	s.state = next

	return s.state.Clone()
}

// SelectClips replaces the selection wholesale, the commit of a
// rubber-band gesture.
func (s *Session) SelectClips(ids []string) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()
	next.Selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next.Selected[id] = struct{}{}
	}
	s.state = next

	return s.state.Clone()
}

func (s *Session) ClearSelection() models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Selected) == 0 && s.state.SelectionBox == nil {
		return s.state.Clone()
	}

	s.record()
	next := s.state.Clone()
	next.Selected = map[string]struct{}{}
	next.SelectionBox = nil
	s.state = next

	return s.state.Clone()
}

// BeginSelectionBox starts the rubber-band rectangle. Ephemeral.
func (s *Session) BeginSelectionBox(x, y float64) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.ActiveTool != models.ToolSelect {
		return models.TimelineState{}, service.ErrToolPrecondition
	}

	next := s.state.Clone()
	next.SelectionBox = &models.SelectionBox{StartX: x, StartY: y, CurrentX: x, CurrentY: y}
	s.state = next

	return s.state.Clone(), nil
}

func (s *Session) UpdateSelectionBox(x, y float64) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.SelectionBox == nil {
		return models.TimelineState{}, service.ErrToolPrecondition
	}

	next := s.state.Clone()
	next.SelectionBox.CurrentX = x
	next.SelectionBox.CurrentY = y
	s.state = next

	return s.state.Clone(), nil
}

// EndSelectionBox drops the rectangle and commits the ids the
// caller resolved against it.
func (s *Session) EndSelectionBox(ids []string) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()
	next.SelectionBox = nil
	next.Selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next.Selected[id] = struct{}{}
	}
	s.state = next

	return s.state.Clone()
}

// StartDrag opens a move or trim gesture. Only the select tool may
// drag. Ephemeral until the gesture commits through Clips.
func (s *Session) StartDrag(drag models.DragState) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.ActiveTool != models.ToolSelect {
		return models.TimelineState{}, service.ErrToolPrecondition
	}
	if s.state.Drag != nil {
		return models.TimelineState{}, service.ErrDragInProgress
	}

	next := s.state.Clone()
	next.Drag = &drag
	s.state = next

	return s.state.Clone(), nil
}

// EndDrag closes the gesture. The committed clip mutation, if any,
// goes through Clips and records its own undo action.
func (s *Session) EndDrag() models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	next.Drag = nil
	s.state = next

	return s.state.Clone()
}

// SetCutPreview tracks the razor hover position. Ephemeral.
func (s *Session) SetCutPreview(trackID string, position time.Duration) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.ActiveTool != models.ToolRazor {
		return models.TimelineState{}, service.ErrToolPrecondition
	}

	next := s.state.Clone()
	next.CutPreview = &models.CutPreview{TrackID: trackID, Position: position}
	s.state = next

	return s.state.Clone(), nil
}

func (s *Session) ClearCutPreview() models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	next.CutPreview = nil
	s.state = next

	return s.state.Clone()
}

func (s *Session) SetSnap(enabled bool) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()
	next.SnapEnabled = enabled
	s.state = next

	return s.state.Clone()
}

func (s *Session) SetMagneticSnap(enabled bool) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()
	next.MagneticSnap = enabled
	s.state = next

	return s.state.Clone()
}

func (s *Session) SetRipple(enabled bool) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()
	next.Ripple = enabled
	s.state = next

	return s.state.Clone()
}

func (s *Session) SetPasteMode(mode models.PasteMode) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record()
	next := s.state.Clone()
	next.Clipboard.PasteMode = mode
	s.state = next

	return s.state.Clone()
}

func (s *Session) AddMarker(marker models.Marker) models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if marker.ID == "" {
		marker.ID = uuid.NewString()
	}
	if marker.Type == "" {
		marker.Type = models.MarkerStandard
	}

	s.record()
	next := s.state.Clone()
	next.Markers = append(next.Markers, marker)
	s.state = next

	return s.state.Clone()
}

func (s *Session) RemoveMarker(id string) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, m := range s.state.Markers {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.TimelineState{}, service.ErrMarkerNotFound
	}

	s.record()
	next := s.state.Clone()
	next.Markers = append(next.Markers[:idx], next.Markers[idx+1:]...)
	s.state = next

	return s.state.Clone(), nil
}

// CopySelection snapshots the selected clips into the clipboard.
func (s *Session) CopySelection(ctx context.Context) (models.TimelineState, error) {
	const op = "Session.CopySelection"

	s.mu.Lock()
	defer s.mu.Unlock()

	copied, err := s.clips.CopySnapshot(ctx, s.state.SelectedIDs())
	if err != nil {
		s.log.Error("failed to snapshot selection", slog.String("op", op), sl.Err(err))
		return models.TimelineState{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record()
	next := s.state.Clone()
	next.Clipboard.Copied = copied
	s.state = next

	return s.state.Clone(), nil
}

// PasteClipboard recreates the clipboard at the target position
// and selects the new clips.
func (s *Session) PasteClipboard(ctx context.Context, at time.Duration) ([]models.KeyFrame, error) {
	const op = "Session.PasteClipboard"

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.clips.Paste(ctx, s.state.Clipboard.Copied, at, s.state.Clipboard.PasteMode, s.state.Ripple)
	if err != nil {
		return nil, err
	}

	s.record()
	next := s.state.Clone()
	next.Selected = make(map[string]struct{}, len(created))
	for _, f := range created {
		next.Selected[f.ID] = struct{}{}
	}
	s.state = next

	s.log.Info(
		"pasted clipboard",
		slog.String("op", op),
		slog.String("sessionID", s.ID),
		slog.Int("count", len(created)),
	)

	return created, nil
}

// DuplicateSelection clones the selected clips and selects the
// clones.
func (s *Session) DuplicateSelection(ctx context.Context) ([]models.KeyFrame, error) {
	const op = "Session.DuplicateSelection"

	s.mu.Lock()
	defer s.mu.Unlock()

	clones, err := s.clips.DuplicateSelection(ctx, s.state.SelectedIDs())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.record()
	next := s.state.Clone()
	next.Selected = make(map[string]struct{}, len(clones))
	for _, f := range clones {
		next.Selected[f.ID] = struct{}{}
	}
	s.state = next

	return clones, nil
}

// DeleteSelection removes the selected clips, rippling when the
// session has ripple enabled, then clears the selection.
func (s *Session) DeleteSelection(ctx context.Context) (models.TimelineState, error) {
	const op = "Session.DeleteSelection"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.clips.DeleteSelection(ctx, s.state.SelectedIDs(), s.state.Ripple); err != nil {
		return models.TimelineState{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record()
	next := s.state.Clone()
	next.Selected = map[string]struct{}{}
	s.state = next

	return s.state.Clone(), nil
}

// Undo reverses the most recent recorded step. State snapshots
// swap the transient state back; persisted actions replay against
// storage.
func (s *Session) Undo(ctx context.Context) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored, replaced, err := s.hist.Undo(ctx, s.state.Clone())
	if err != nil {
		return models.TimelineState{}, err
	}
	if replaced {
		s.state = restored
	}

	return s.state.Clone(), nil
}

func (s *Session) Redo(ctx context.Context) (models.TimelineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored, replaced, err := s.hist.Redo(ctx, s.state.Clone())
	if err != nil {
		return models.TimelineState{}, err
	}
	if replaced {
		s.state = restored
	}

	return s.state.Clone(), nil
}

func (s *Session) CanUndo() bool { return s.hist.CanUndo() }
func (s *Session) CanRedo() bool { return s.hist.CanRedo() }

// Manager tracks the open editing sessions. One session per open
// timeline tab; sessions are addressed by their own id, not the
// project's, so two tabs on one project stay independent.
type Manager struct {
	log *slog.Logger

	frames clipservice.KeyFrameStorage
	tracks clipservice.TrackStorage
	media  clipservice.MediaStorage

	refreshChan chan<- string

	defaultClipDuration time.Duration
	maxClipDuration     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(
	log *slog.Logger,
	frames clipservice.KeyFrameStorage,
	tracks clipservice.TrackStorage,
	media clipservice.MediaStorage,
	refreshChan chan<- string,
	defaultClipDuration time.Duration,
	maxClipDuration time.Duration,
) *Manager {
	return &Manager{
		log:                 log,
		frames:              frames,
		tracks:              tracks,
		media:               media,
		refreshChan:         refreshChan,
		defaultClipDuration: defaultClipDuration,
		maxClipDuration:     maxClipDuration,
		sessions:            make(map[string]*Session),
	}
}

// Open creates a session for a project with default state and a
// fresh history, and its own manipulation service bound to that
// history.
func (m *Manager) Open(projectID string) *Session {
	const op = "SessionManager.Open"

	hist := history.New(m.log)
	s := &Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		log:       m.log,
		hist:      hist,
		state:     models.DefaultTimelineState(),
	}
	s.clips = clipservice.New(
		m.log,
		m.frames,
		m.tracks,
		m.media,
		hist,
		m.refreshChan,
		m.defaultClipDuration,
		m.maxClipDuration,
	)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info(
		"opened session",
		slog.String("op", op),
		slog.String("sessionID", s.ID),
		slog.String("projectID", projectID),
	)

	return s
}

// Session resolves an open session by id.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, service.ErrSessionNotFound
	}
	return s, nil
}

// Close drops a session and its history.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
