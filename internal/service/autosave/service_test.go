package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

type fakeStore struct {
	project models.Project
	tracks  []models.Track
	frames  map[string][]models.KeyFrame
}

func (f *fakeStore) Project(_ context.Context, id string) (models.Project, error) {
	if f.project.ID != id {
		return models.Project{}, storage.ErrProjectNotFound
	}
	return f.project, nil
}

func (f *fakeStore) TracksByProject(_ context.Context, _ string) ([]models.Track, error) {
	return f.tracks, nil
}

func (f *fakeStore) KeyFramesByTrack(_ context.Context, trackID string) ([]models.KeyFrame, error) {
	return f.frames[trackID], nil
}

func newTestAutoSave(t *testing.T, store *fakeStore) (*AutoSave, string, chan string) {
	t.Helper()

	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	refresh := make(chan string, 16)

	return New(log, store, store, store, dir, 30*time.Second, refresh), dir, refresh
}

func TestSave(t *testing.T) {
	ctx := context.Background()

	store := &fakeStore{
		project: models.Project{ID: "prj", Title: "demo"},
		tracks:  []models.Track{{ID: "video", ProjectID: "prj", Type: models.TrackVideo, Volume: 100}},
		frames: map[string][]models.KeyFrame{
			"video": {
				{
					ID: "clip", TrackID: "video", Timestamp: time.Second, Duration: 2 * time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameVideo, URL: "https://cdn/a.mp4"},
				},
			},
		},
	}

	a, dir, _ := newTestAutoSave(t, store)
	require.NoError(t, os.MkdirAll(dir, 0755))

	require.NoError(t, a.Save(ctx, "prj"))

	data, err := os.ReadFile(filepath.Join(dir, "prj.json"))
	require.NoError(t, err)

	var snap snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "demo", snap.Project.Title)
	require.Len(t, snap.Tracks, 1)
	require.Len(t, snap.Tracks[0].Clips, 1)
	// Clip timings are stored as millisecond integers.
	assert.Equal(t, time.Second, snap.Tracks[0].Clips[0].Timestamp)

	// No stale tmp file left behind.
	_, err = os.Stat(filepath.Join(dir, "prj.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveUnknownProject(t *testing.T) {
	a, _, _ := newTestAutoSave(t, &fakeStore{project: models.Project{ID: "prj"}})

	err := a.Save(context.Background(), "ghost")
	assert.ErrorIs(t, err, service.ErrProjectNotFound)
}

func TestDirtyFlush(t *testing.T) {
	store := &fakeStore{
		project: models.Project{ID: "prj"},
		frames:  map[string][]models.KeyFrame{},
	}

	a, dir, _ := newTestAutoSave(t, store)

	a.markDirty("prj")
	a.flush(context.Background(), true)

	// flush saves asynchronously; wait for the snapshot to land.
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "prj.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Empty(t, a.dirty)
}

func TestRunStops(t *testing.T) {
	store := &fakeStore{project: models.Project{ID: "prj"}, frames: map[string][]models.KeyFrame{}}
	a, dir, refresh := newTestAutoSave(t, store)

	done := make(chan struct{})
	go func() {
		_ = a.Run(context.Background())
		close(done)
	}()

	refresh <- "prj"
	time.Sleep(50 * time.Millisecond)
	a.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}

	// The shutdown flush wrote the pending snapshot.
	_, err := os.Stat(filepath.Join(dir, "prj.json"))
	assert.NoError(t, err)
}

func TestStatus(t *testing.T) {
	store := &fakeStore{
		project: models.Project{ID: "prj"},
		frames:  map[string][]models.KeyFrame{},
	}

	a, _, _ := newTestAutoSave(t, store)

	assert.Empty(t, a.Status())

	a.markDirty("prj")

	status := a.Status()
	require.Len(t, status, 1)
	assert.True(t, status[0].Dirty)
	assert.True(t, status[0].LastSaved.IsZero())

	a.flush(context.Background(), true)

	status = a.Status()
	require.Len(t, status, 1)
	assert.False(t, status[0].Dirty)
	assert.False(t, status[0].LastSaved.IsZero())
	assert.Empty(t, status[0].LastError)
}
