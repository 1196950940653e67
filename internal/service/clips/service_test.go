package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

// memStore is an in-memory stand-in for the sqlite layer.
type memStore struct {
	tracks map[string]models.Track
	frames map[string]models.KeyFrame
	media  map[string]models.MediaItem
}

func newMemStore() *memStore {
	return &memStore{
		tracks: make(map[string]models.Track),
		frames: make(map[string]models.KeyFrame),
		media:  make(map[string]models.MediaItem),
	}
}

func (m *memStore) SaveKeyFrame(_ context.Context, frame models.KeyFrame) error {
	if _, ok := m.frames[frame.ID]; ok {
		return storage.ErrKeyFrameExists
	}
	m.frames[frame.ID] = frame
	return nil
}

func (m *memStore) KeyFrame(_ context.Context, id string) (models.KeyFrame, error) {
	frame, ok := m.frames[id]
	if !ok {
		return models.KeyFrame{}, storage.ErrKeyFrameNotFound
	}
	return frame, nil
}

func (m *memStore) KeyFramesByTrack(_ context.Context, trackID string) ([]models.KeyFrame, error) {
	var res []models.KeyFrame
	for _, f := range m.frames {
		if f.TrackID == trackID {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Timestamp < res[j].Timestamp })
	return res, nil
}

func (m *memStore) KeyFramesByProject(_ context.Context, projectID string) ([]models.KeyFrame, error) {
	var res []models.KeyFrame
	for _, f := range m.frames {
		track, ok := m.tracks[f.TrackID]
		if ok && track.ProjectID == projectID {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Timestamp < res[j].Timestamp })
	return res, nil
}

func (m *memStore) UpdateKeyFrameTiming(_ context.Context, id string, timestamp, duration time.Duration) error {
	frame, ok := m.frames[id]
	if !ok {
		return storage.ErrKeyFrameNotFound
	}
	frame.Timestamp = timestamp
	frame.Duration = duration
	m.frames[id] = frame
	return nil
}

func (m *memStore) DeleteKeyFrame(_ context.Context, id string) error {
	if _, ok := m.frames[id]; !ok {
		return storage.ErrKeyFrameNotFound
	}
	delete(m.frames, id)
	return nil
}

func (m *memStore) ShiftKeyFrames(_ context.Context, trackID string, from, delta time.Duration) error {
	for id, f := range m.frames {
		if f.TrackID == trackID && f.Timestamp >= from {
			f.Timestamp += delta
			m.frames[id] = f
		}
	}
	return nil
}

func (m *memStore) SaveTrack(_ context.Context, track models.Track) error {
	if _, ok := m.tracks[track.ID]; ok {
		return storage.ErrTrackExists
	}
	m.tracks[track.ID] = track
	return nil
}

func (m *memStore) Track(_ context.Context, id string) (models.Track, error) {
	track, ok := m.tracks[id]
	if !ok {
		return models.Track{}, storage.ErrTrackNotFound
	}
	return track, nil
}

func (m *memStore) TracksByProject(_ context.Context, projectID string) ([]models.Track, error) {
	var res []models.Track
	for _, t := range m.tracks {
		if t.ProjectID == projectID {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return models.TrackTypeOrder[res[i].Type] < models.TrackTypeOrder[res[j].Type]
	})
	return res, nil
}

func (m *memStore) Media(_ context.Context, id string) (models.MediaItem, error) {
	item, ok := m.media[id]
	if !ok {
		return models.MediaItem{}, storage.ErrMediaNotFound
	}
	return item, nil
}

// fakeRecorder captures recorded actions so tests can replay them.
type fakeRecorder struct {
	actions []recordedAction
}

type recordedAction struct {
	undo func(ctx context.Context) error
	redo func(ctx context.Context) error
}

func (r *fakeRecorder) RecordAction(undo, redo func(ctx context.Context) error) {
	r.actions = append(r.actions, recordedAction{undo: undo, redo: redo})
}

func (r *fakeRecorder) last(t *testing.T) recordedAction {
	t.Helper()
	require.NotEmpty(t, r.actions)
	return r.actions[len(r.actions)-1]
}

func newTestClips(t *testing.T) (*Clips, *memStore, *fakeRecorder) {
	t.Helper()

	store := newMemStore()
	recorder := &fakeRecorder{}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	refresh := make(chan string, 64)

	return New(log, store, store, store, recorder, refresh, 5*time.Second, 30*time.Second), store, recorder
}

func seedTrack(store *memStore, projectID string, trackType models.TrackType) models.Track {
	track := models.Track{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      trackType,
		Label:     "Video Track",
		Volume:    100,
	}
	store.tracks[track.ID] = track
	return track
}

func seedFrame(store *memStore, trackID string, ts, dur time.Duration) models.KeyFrame {
	frame := models.KeyFrame{
		ID:        uuid.NewString(),
		TrackID:   trackID,
		Timestamp: ts,
		Duration:  dur,
		Data: models.KeyFrameData{
			Type: models.KeyFrameVideo,
		},
	}
	store.frames[frame.ID] = frame
	return frame
}

func TestSplit(t *testing.T) {
	ctx := context.Background()
	clips, store, recorder := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	frame := seedFrame(store, track.ID, 0, 5*time.Second)

	second, err := clips.Split(ctx, frame.ID, 2*time.Second)
	require.NoError(t, err)

	first := store.frames[frame.ID]
	assert.Equal(t, time.Duration(0), first.Timestamp)
	assert.Equal(t, 2*time.Second, first.Duration)
	assert.Equal(t, 2*time.Second, second.Timestamp)
	assert.Equal(t, 3*time.Second, second.Duration)
	assert.Equal(t, first.Data, second.Data)
	assert.NotEqual(t, first.ID, second.ID)

	// Undo merges the pieces back.
	require.NoError(t, recorder.last(t).undo(ctx))
	assert.Len(t, store.frames, 1)
	restored := store.frames[frame.ID]
	assert.Equal(t, 5*time.Second, restored.Duration)

	// Redo splits again with the same ids.
	require.NoError(t, recorder.last(t).redo(ctx))
	assert.Len(t, store.frames, 2)
	assert.Equal(t, 2*time.Second, store.frames[frame.ID].Duration)
	assert.Equal(t, 3*time.Second, store.frames[second.ID].Duration)
}

func TestSplitGuards(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	frame := seedFrame(store, track.ID, 0, 5*time.Second)

	for _, tc := range []struct {
		desc   string
		offset time.Duration
	}{
		{desc: "too close to start", offset: 50 * time.Millisecond},
		{desc: "exactly min", offset: 100 * time.Millisecond},
		{desc: "too close to end", offset: 4950 * time.Millisecond},
		{desc: "negative", offset: -time.Second},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := clips.Split(ctx, frame.ID, tc.offset)
			assert.ErrorIs(t, err, service.ErrSplitOutOfBounds)
		})
	}

	_, err := clips.Split(ctx, "missing", time.Second)
	assert.ErrorIs(t, err, service.ErrClipNotFound)
}

func TestSplitLockedTrack(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	track.Locked = true
	store.tracks[track.ID] = track
	frame := seedFrame(store, track.ID, 0, 5*time.Second)

	_, err := clips.Split(ctx, frame.ID, 2*time.Second)
	assert.ErrorIs(t, err, service.ErrTrackLocked)
}

func TestRippleDelete(t *testing.T) {
	ctx := context.Background()
	clips, store, recorder := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	a := seedFrame(store, track.ID, 0, time.Second)
	b := seedFrame(store, track.ID, time.Second, time.Second)
	c := seedFrame(store, track.ID, 2*time.Second, time.Second)

	require.NoError(t, clips.Delete(ctx, b.ID, true))

	assert.Len(t, store.frames, 2)
	assert.Equal(t, time.Duration(0), store.frames[a.ID].Timestamp)
	assert.Equal(t, time.Second, store.frames[c.ID].Timestamp)

	// Undo restores the clip and reverses the shift atomically.
	require.NoError(t, recorder.last(t).undo(ctx))
	assert.Len(t, store.frames, 3)
	assert.Equal(t, time.Second, store.frames[b.ID].Timestamp)
	assert.Equal(t, 2*time.Second, store.frames[c.ID].Timestamp)

	require.NoError(t, recorder.last(t).redo(ctx))
	assert.Len(t, store.frames, 2)
	assert.Equal(t, time.Second, store.frames[c.ID].Timestamp)
}

func TestDeleteWithoutRipple(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	b := seedFrame(store, track.ID, time.Second, time.Second)
	c := seedFrame(store, track.ID, 2*time.Second, time.Second)

	require.NoError(t, clips.Delete(ctx, b.ID, false))

	assert.Len(t, store.frames, 1)
	assert.Equal(t, 2*time.Second, store.frames[c.ID].Timestamp)
}

func TestDeleteSelectionSkipsMissing(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	a := seedFrame(store, track.ID, 0, time.Second)

	require.NoError(t, clips.DeleteSelection(ctx, []string{"ghost", a.ID}, false))
	assert.Empty(t, store.frames)
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	clips, store, recorder := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	frame := seedFrame(store, track.ID, time.Second, 2*time.Second)

	clone, err := clips.Duplicate(ctx, frame.ID)
	require.NoError(t, err)

	assert.NotEqual(t, frame.ID, clone.ID)
	assert.Equal(t, 3*time.Second, clone.Timestamp)
	assert.Equal(t, frame.Duration, clone.Duration)
	assert.Equal(t, frame.Data, clone.Data)
	assert.Len(t, store.frames, 2)

	require.NoError(t, recorder.last(t).undo(ctx))
	assert.Len(t, store.frames, 1)
}

func TestMoveSnapsToSiblingEdge(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	seedFrame(store, track.ID, 0, 3*time.Second)
	moving := seedFrame(store, track.ID, 5*time.Second, time.Second)

	moved, err := clips.Move(ctx, moving.ID, 3300*time.Millisecond, models.SnapOptions{
		Magnetic:     true,
		SnapDistance: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	// 3300ms is within 500ms of the sibling's trailing edge at 3000ms.
	assert.Equal(t, 3*time.Second, moved.Timestamp)
	assert.Equal(t, 3*time.Second, store.frames[moving.ID].Timestamp)
}

func TestMoveGridSnapAndClamp(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	seedFrame(store, track.ID, 0, 4*time.Second)
	moving := seedFrame(store, track.ID, 4*time.Second, 2*time.Second)

	moved, err := clips.Move(ctx, moving.ID, 2400*time.Millisecond, models.SnapOptions{
		Grid:     true,
		GridStep: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, moved.Timestamp)

	// Past the end of the timeline the clip clamps to the last slot.
	moved, err = clips.Move(ctx, moving.ID, time.Minute, models.SnapOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, moved.End(), 6*time.Second)
	assert.GreaterOrEqual(t, moved.Timestamp, time.Duration(0))
}

func TestResize(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)

	t.Run("left edge preserves out point", func(t *testing.T) {
		frame := seedFrame(store, track.ID, 2*time.Second, 3*time.Second)

		resized, err := clips.Resize(ctx, frame.ID, models.DragResizeLeft, 3*time.Second, models.SnapOptions{})
		require.NoError(t, err)

		assert.Equal(t, 3*time.Second, resized.Timestamp)
		assert.Equal(t, 2*time.Second, resized.Duration)
		assert.Equal(t, 5*time.Second, resized.End())
	})

	t.Run("left edge keeps minimum length", func(t *testing.T) {
		frame := seedFrame(store, track.ID, 2*time.Second, 3*time.Second)

		resized, err := clips.Resize(ctx, frame.ID, models.DragResizeLeft, 10*time.Second, models.SnapOptions{})
		require.NoError(t, err)

		assert.Equal(t, 100*time.Millisecond, resized.Duration)
		assert.Equal(t, 5*time.Second, resized.End())
	})

	t.Run("right edge bounded by media length", func(t *testing.T) {
		media := models.MediaItem{
			ID:        uuid.NewString(),
			MediaType: models.MediaVideo,
			Metadata: models.MediaMetadata{
				Duration: 4 * time.Second,
			},
		}
		store.media[media.ID] = media

		frame := models.KeyFrame{
			ID:        uuid.NewString(),
			TrackID:   track.ID,
			Timestamp: 0,
			Duration:  2 * time.Second,
			Data: models.KeyFrameData{
				Type:    models.KeyFrameVideo,
				MediaID: media.ID,
			},
		}
		store.frames[frame.ID] = frame

		resized, err := clips.Resize(ctx, frame.ID, models.DragResizeRight, 10*time.Second, models.SnapOptions{})
		require.NoError(t, err)
		assert.Equal(t, 4*time.Second, resized.Duration)
	})

	t.Run("right edge falls back to configured cap", func(t *testing.T) {
		frame := seedFrame(store, track.ID, 0, 2*time.Second)

		resized, err := clips.Resize(ctx, frame.ID, models.DragResizeRight, 2*time.Minute, models.SnapOptions{})
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, resized.Duration)
	})
}

func TestCopyPaste(t *testing.T) {
	ctx := context.Background()
	clips, store, recorder := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	a := seedFrame(store, track.ID, time.Second, time.Second)
	b := seedFrame(store, track.ID, 3*time.Second, 2*time.Second)

	copied, err := clips.CopySnapshot(ctx, []string{a.ID, b.ID, "ghost"})
	require.NoError(t, err)
	require.Len(t, copied, 2)

	created, err := clips.Paste(ctx, copied, 10*time.Second, models.PasteOverwrite, false)
	require.NoError(t, err)
	require.Len(t, created, 2)

	// Earliest copied clip lands at the target; relative offsets hold.
	sort.Slice(created, func(i, j int) bool { return created[i].Timestamp < created[j].Timestamp })
	assert.Equal(t, 10*time.Second, created[0].Timestamp)
	assert.Equal(t, 12*time.Second, created[1].Timestamp)

	// Fresh ids, originals untouched.
	for _, f := range created {
		assert.NotEqual(t, a.ID, f.ID)
		assert.NotEqual(t, b.ID, f.ID)
	}
	assert.Len(t, store.frames, 4)

	require.NoError(t, recorder.last(t).undo(ctx))
	assert.Len(t, store.frames, 2)
}

func TestPasteInsertRipple(t *testing.T) {
	ctx := context.Background()
	clips, store, recorder := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	a := seedFrame(store, track.ID, 0, time.Second)
	downstream := seedFrame(store, track.ID, 5*time.Second, time.Second)

	copied, err := clips.CopySnapshot(ctx, []string{a.ID})
	require.NoError(t, err)

	_, err = clips.Paste(ctx, copied, 5*time.Second, models.PasteInsert, true)
	require.NoError(t, err)

	// Existing downstream clip shifted forward by the pasted span.
	assert.Equal(t, 6*time.Second, store.frames[downstream.ID].Timestamp)

	require.NoError(t, recorder.last(t).undo(ctx))
	assert.Equal(t, 5*time.Second, store.frames[downstream.ID].Timestamp)
	assert.Len(t, store.frames, 2)
}

func TestPasteEmptyClipboard(t *testing.T) {
	ctx := context.Background()
	clips, _, _ := newTestClips(t)

	_, err := clips.Paste(ctx, nil, 0, models.PasteInsert, false)
	assert.ErrorIs(t, err, service.ErrClipboardEmpty)
}

func TestDropCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("record payload creates track on demand", func(t *testing.T) {
		clips, store, _ := newTestClips(t)

		media := models.MediaItem{
			ID:        uuid.NewString(),
			MediaType: models.MediaMusic,
			URL:       "https://cdn.example.com/track.mp3",
			Metadata: models.MediaMetadata{
				Duration: 12 * time.Second,
			},
		}

		frame, err := clips.DropCreate(ctx, "prj", models.DropPayload{
			Kind:  models.DropRecord,
			Media: &media,
		}, 2*time.Second)
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, frame.Timestamp)
		assert.Equal(t, 12*time.Second, frame.Duration)
		assert.Equal(t, models.KeyFrameMusic, frame.Data.Type)
		assert.Equal(t, media.URL, frame.Data.URL)

		require.Len(t, store.tracks, 1)
		for _, track := range store.tracks {
			assert.Equal(t, models.TrackMusic, track.Type)
			assert.Equal(t, track.ID, frame.TrackID)
		}
	})

	t.Run("id payload resolves stored media", func(t *testing.T) {
		clips, store, _ := newTestClips(t)

		track := seedTrack(store, "prj", models.TrackVideo)
		media := models.MediaItem{
			ID:        uuid.NewString(),
			MediaType: models.MediaImage,
		}
		store.media[media.ID] = media

		frame, err := clips.DropCreate(ctx, "prj", models.DropPayload{
			Kind:    models.DropIDRef,
			MediaID: media.ID,
		}, 0)
		require.NoError(t, err)

		// Images go on the video track with the default length.
		assert.Equal(t, track.ID, frame.TrackID)
		assert.Equal(t, 5*time.Second, frame.Duration)
		assert.Equal(t, models.KeyFrameImage, frame.Data.Type)
	})

	t.Run("unknown media id", func(t *testing.T) {
		clips, _, _ := newTestClips(t)

		_, err := clips.DropCreate(ctx, "prj", models.DropPayload{
			Kind:    models.DropIDRef,
			MediaID: "ghost",
		}, 0)
		assert.ErrorIs(t, err, service.ErrMediaNotFound)
	})

	t.Run("long media capped", func(t *testing.T) {
		clips, store, _ := newTestClips(t)
		seedTrack(store, "prj", models.TrackVideo)

		media := models.MediaItem{
			ID:        uuid.NewString(),
			MediaType: models.MediaVideo,
			Metadata: models.MediaMetadata{
				Duration: 5 * time.Minute,
			},
		}

		frame, err := clips.DropCreate(ctx, "prj", models.DropPayload{
			Kind:  models.DropRecord,
			Media: &media,
		}, 0)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, frame.Duration)
	})
}

func TestSplitAt(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)
	other := seedTrack(store, "prj", models.TrackMusic)

	intersecting := seedFrame(store, track.ID, 0, 4*time.Second)
	seedFrame(store, other.ID, 3*time.Second, 2*time.Second)
	before := seedFrame(store, track.ID, 5*time.Second, time.Second)

	created, err := clips.SplitAt(ctx, "prj", 2*time.Second)
	require.NoError(t, err)

	// Only the clip spanning the cut splits; the later one is untouched.
	require.Len(t, created, 1)
	assert.Equal(t, 2*time.Second, store.frames[intersecting.ID].Duration)
	assert.Equal(t, 5*time.Second, store.frames[before.ID].Timestamp)
}

func TestTotalDuration(t *testing.T) {
	ctx := context.Background()
	clips, store, _ := newTestClips(t)

	track := seedTrack(store, "prj", models.TrackVideo)

	total, err := clips.TotalDuration(ctx, "prj")
	require.NoError(t, err)
	assert.Equal(t, models.MinTotalDuration, total)

	seedFrame(store, track.ID, 8*time.Second, 2*time.Second)

	total, err = clips.TotalDuration(ctx, "prj")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, total)
}
