package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
)

type EntryKind int

const (
	// KindState entries snapshot the transient timeline state
	// (selection, tool, snap flags) and replay synchronously.
	KindState EntryKind = iota
	// KindKeyFrame entries hold paired closures that reverse or
	// re-apply a persisted key frame mutation.
	KindKeyFrame
)

// Effect reverses or re-applies one committed mutation. It may
// perform several storage calls; they succeed or the whole entry
// is considered failed.
type Effect func(ctx context.Context) error

type Entry struct {
	Kind     EntryKind
	Snapshot models.TimelineState
	Undo     Effect
	Redo     Effect
}

// History is a linear undo/redo stack over both cosmetic state
// changes and persisted key frame changes. A mutex serializes
// operations so a redo issued before a prior undo settles cannot
// reorder history.
type History struct {
	log *slog.Logger

	mu   sync.Mutex
	undo []Entry
	redo []Entry
}

func New(log *slog.Logger) *History {
	return &History{
		log: log,
	}
}

// RecordState pushes a state snapshot taken before a transient
// mutation. Any new record invalidates the redo stack.
func (h *History) RecordState(snapshot models.TimelineState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, Entry{
		Kind:     KindState,
		Snapshot: snapshot,
	})
	h.redo = nil
}

// RecordAction pushes a reversible persisted mutation that already
// committed. Any new record invalidates the redo stack.
func (h *History) RecordAction(undo, redo func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, Entry{
		Kind: KindKeyFrame,
		Undo: undo,
		Redo: redo,
	})
	h.redo = nil
}

// Undo pops the most recent entry. For state entries the returned
// snapshot replaces the caller's current state (reported by the
// bool). For key frame entries the undo closure runs against
// storage; if it fails the entry is pushed back so history stays
// consistent with the store and the caller may retry.
func (h *History) Undo(ctx context.Context, current models.TimelineState) (models.TimelineState, bool, error) {
	const op = "History.Undo"

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return current, false, service.ErrNothingToUndo
	}

	entry := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]

	if entry.Kind == KindState {
		h.redo = append(h.redo, Entry{
			Kind:     KindState,
			Snapshot: current,
		})

		return entry.Snapshot, true, nil
	}

	if err := entry.Undo(ctx); err != nil {
		h.log.Error("undo effect failed, entry kept", sl.Err(err))
		h.undo = append(h.undo, entry)

		return current, false, fmt.Errorf("%s: %w", op, err)
	}

	h.redo = append(h.redo, entry)

	return current, false, nil
}

// Redo is symmetric to Undo.
func (h *History) Redo(ctx context.Context, current models.TimelineState) (models.TimelineState, bool, error) {
	const op = "History.Redo"

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return current, false, service.ErrNothingToRedo
	}

	entry := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]

	if entry.Kind == KindState {
		h.undo = append(h.undo, Entry{
			Kind:     KindState,
			Snapshot: current,
		})

		return entry.Snapshot, true, nil
	}

	if err := entry.Redo(ctx); err != nil {
		h.log.Error("redo effect failed, entry kept", sl.Err(err))
		h.redo = append(h.redo, entry)

		return current, false, fmt.Errorf("%s: %w", op, err)
	}

	h.undo = append(h.undo, entry)

	return current, false, nil
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.redo) > 0
}

// Clear drops both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = nil
	h.redo = nil
}
