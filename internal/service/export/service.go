package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

// Export assembles the project's current timeline into a render
// job and hands it to the rendering backend. Only clips whose
// media finished the pipeline are included; a timeline with
// nothing renderable is rejected.
type Export struct {
	log      *slog.Logger
	projects ProjectStorage
	tracks   TrackStorage
	frames   KeyFrameStorage
	media    MediaStorage
	renderer Renderer
}

type ProjectStorage interface {
	Project(ctx context.Context, id string) (models.Project, error)
}

type TrackStorage interface {
	TracksByProject(ctx context.Context, projectID string) ([]models.Track, error)
}

type KeyFrameStorage interface {
	KeyFramesByTrack(ctx context.Context, trackID string) ([]models.KeyFrame, error)
}

type MediaStorage interface {
	Media(ctx context.Context, id string) (models.MediaItem, error)
}

// Renderer flattens an assembled job into delivered urls.
type Renderer interface {
	Render(ctx context.Context, job models.ExportJob) (models.ExportResult, error)
}

func New(
	log *slog.Logger,
	projects ProjectStorage,
	tracks TrackStorage,
	frames KeyFrameStorage,
	media MediaStorage,
	renderer Renderer,
) *Export {
	return &Export{
		log:      log,
		projects: projects,
		tracks:   tracks,
		frames:   frames,
		media:    media,
		renderer: renderer,
	}
}

// Assemble resolves the timeline into a render job without
// submitting it.
func (e *Export) Assemble(ctx context.Context, projectID string) (models.ExportJob, error) {
	const op = "Export.Assemble"

	log := e.log.With(slog.String("op", op), slog.String("projectID", projectID))

	project, err := e.projects.Project(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			log.Warn("project not found")
			return models.ExportJob{}, service.ErrProjectNotFound
		}
		log.Error("failed to get project", sl.Err(err))
		return models.ExportJob{}, fmt.Errorf("%s: %w", op, err)
	}

	tracks, err := e.tracks.TracksByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list tracks", sl.Err(err))
		return models.ExportJob{}, fmt.Errorf("%s: %w", op, err)
	}

	job := models.ExportJob{
		ProjectID:   projectID,
		AspectRatio: project.AspectRatio,
	}

	clipCount := 0
	for _, track := range tracks {
		frames, err := e.frames.KeyFramesByTrack(ctx, track.ID)
		if err != nil {
			log.Error("failed to list clips", sl.Err(err), slog.String("trackID", track.ID))
			return models.ExportJob{}, fmt.Errorf("%s: %w", op, err)
		}

		exportTrack := models.ExportTrack{
			Type:   track.Type,
			Muted:  track.Muted,
			Volume: track.Volume,
			Clips:  make([]models.ExportClip, 0, len(frames)),
		}

		for _, frame := range frames {
			url, ok, err := e.resolveURL(ctx, frame)
			if err != nil {
				return models.ExportJob{}, fmt.Errorf("%s: %w", op, err)
			}
			if !ok {
				log.Warn("skipping clip without delivered media", slog.String("clipID", frame.ID))
				continue
			}

			exportTrack.Clips = append(exportTrack.Clips, models.ExportClip{
				Timestamp: frame.Timestamp,
				Duration:  frame.Duration,
				URL:       url,
				Prompt:    frame.Data.Prompt,
			})
			clipCount++
		}

		job.Tracks = append(job.Tracks, exportTrack)
	}

	if clipCount == 0 {
		log.Warn("nothing to render")
		return models.ExportJob{}, service.ErrMediaNotReady
	}

	return job, nil
}

// resolveURL picks the delivery url for a clip. Clips carrying an
// url directly win; otherwise the referenced media must have
// completed the pipeline.
func (e *Export) resolveURL(ctx context.Context, frame models.KeyFrame) (string, bool, error) {
	if frame.Data.URL != "" {
		return frame.Data.URL, true, nil
	}
	if frame.Data.MediaID == "" {
		return "", false, nil
	}

	media, err := e.media.Media(ctx, frame.Data.MediaID)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	if media.Status != models.MediaCompleted || media.URL == "" {
		return "", false, nil
	}

	return media.URL, true, nil
}

// Export assembles the timeline and submits it for rendering.
func (e *Export) Export(ctx context.Context, projectID string) (models.ExportResult, error) {
	const op = "Export.Export"

	log := e.log.With(slog.String("op", op), slog.String("projectID", projectID))

	job, err := e.Assemble(ctx, projectID)
	if err != nil {
		return models.ExportResult{}, err
	}

	log.Info("submitting render job", slog.Int("tracks", len(job.Tracks)))

	result, err := e.renderer.Render(ctx, job)
	if err != nil {
		log.Error("render failed", sl.Err(err))
		return models.ExportResult{}, fmt.Errorf("%s: %w", op, service.ErrRenderFailed)
	}

	log.Info("render finished", slog.String("videoUrl", result.VideoURL))

	return result, nil
}
