package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
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
	media   map[string]models.MediaItem
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

func (f *fakeStore) Media(_ context.Context, id string) (models.MediaItem, error) {
	media, ok := f.media[id]
	if !ok {
		return models.MediaItem{}, storage.ErrMediaNotFound
	}
	return media, nil
}

type fakeRenderer struct {
	job    models.ExportJob
	result models.ExportResult
	err    error
}

func (f *fakeRenderer) Render(_ context.Context, job models.ExportJob) (models.ExportResult, error) {
	f.job = job
	return f.result, f.err
}

func newTestExport(store *fakeStore, renderer *fakeRenderer) *Export {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, store, store, store, store, renderer)
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()

	store := &fakeStore{
		project: models.Project{ID: "prj", AspectRatio: models.AspectWide},
		tracks: []models.Track{
			{ID: "video", Type: models.TrackVideo, Volume: 100},
			{ID: "music", Type: models.TrackMusic, Volume: 80, Muted: true},
		},
		frames: map[string][]models.KeyFrame{
			"video": {
				{
					ID: "direct", TrackID: "video", Timestamp: 0, Duration: 2 * time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameVideo, URL: "https://cdn/a.mp4"},
				},
				{
					ID: "pending", TrackID: "video", Timestamp: 2 * time.Second, Duration: 2 * time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameVideo, MediaID: "m-pending"},
				},
				{
					ID: "done", TrackID: "video", Timestamp: 4 * time.Second, Duration: 2 * time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameVideo, MediaID: "m-done"},
				},
			},
			"music": {
				{
					ID: "song", TrackID: "music", Timestamp: 0, Duration: 6 * time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameMusic, URL: "https://cdn/song.mp3"},
				},
			},
		},
		media: map[string]models.MediaItem{
			"m-pending": {ID: "m-pending", Status: models.MediaPending},
			"m-done":    {ID: "m-done", Status: models.MediaCompleted, URL: "https://cdn/b.mp4"},
		},
	}

	export := newTestExport(store, &fakeRenderer{})

	job, err := export.Assemble(ctx, "prj")
	require.NoError(t, err)

	assert.Equal(t, models.AspectWide, job.AspectRatio)
	require.Len(t, job.Tracks, 2)

	// The pending clip is dropped, the delivered ones stay.
	video := job.Tracks[0]
	require.Len(t, video.Clips, 2)
	assert.Equal(t, "https://cdn/a.mp4", video.Clips[0].URL)
	assert.Equal(t, "https://cdn/b.mp4", video.Clips[1].URL)

	music := job.Tracks[1]
	assert.True(t, music.Muted)
	assert.Equal(t, 80.0, music.Volume)
	require.Len(t, music.Clips, 1)
}

func TestAssembleNothingRenderable(t *testing.T) {
	ctx := context.Background()

	store := &fakeStore{
		project: models.Project{ID: "prj"},
		tracks:  []models.Track{{ID: "video", Type: models.TrackVideo}},
		frames: map[string][]models.KeyFrame{
			"video": {
				{
					ID: "pending", TrackID: "video", Duration: time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameVideo, MediaID: "m"},
				},
			},
		},
		media: map[string]models.MediaItem{
			"m": {ID: "m", Status: models.MediaRunning},
		},
	}

	export := newTestExport(store, &fakeRenderer{})

	_, err := export.Assemble(ctx, "prj")
	assert.ErrorIs(t, err, service.ErrMediaNotReady)
}

func TestAssembleUnknownProject(t *testing.T) {
	ctx := context.Background()

	export := newTestExport(&fakeStore{project: models.Project{ID: "prj"}}, &fakeRenderer{})

	_, err := export.Assemble(ctx, "ghost")
	assert.ErrorIs(t, err, service.ErrProjectNotFound)
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	store := &fakeStore{
		project: models.Project{ID: "prj", AspectRatio: models.AspectPortrait},
		tracks:  []models.Track{{ID: "video", Type: models.TrackVideo, Volume: 100}},
		frames: map[string][]models.KeyFrame{
			"video": {
				{
					ID: "clip", TrackID: "video", Duration: 3 * time.Second,
					Data: models.KeyFrameData{Type: models.KeyFrameVideo, URL: "https://cdn/a.mp4"},
				},
			},
		},
	}

	t.Run("happy path", func(t *testing.T) {
		renderer := &fakeRenderer{
			result: models.ExportResult{VideoURL: "https://cdn/final.mp4", ThumbnailURL: "https://cdn/thumb.jpg"},
		}
		export := newTestExport(store, renderer)

		result, err := export.Export(ctx, "prj")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/final.mp4", result.VideoURL)
		assert.Equal(t, "prj", renderer.job.ProjectID)
	})

	t.Run("renderer failure", func(t *testing.T) {
		renderer := &fakeRenderer{err: errors.New("backend exploded")}
		export := newTestExport(store, renderer)

		_, err := export.Export(ctx, "prj")
		assert.ErrorIs(t, err, service.ErrRenderFailed)
	})
}
