package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

// Library manages the asset panel: records produced by the
// generation pipeline and direct uploads. Assets are read-only
// from the timeline's perspective; only their pipeline status and
// probed metadata change after creation.
type Library struct {
	log          *slog.Logger
	mediaStorage MediaStorage
}

type MediaStorage interface {
	SaveMedia(ctx context.Context, media models.MediaItem) error
	Media(ctx context.Context, id string) (models.MediaItem, error)
	MediaByProject(ctx context.Context, projectID string) ([]models.MediaItem, error)
	UpdateMedia(ctx context.Context, media models.MediaItem) error
	DeleteMedia(ctx context.Context, id string) error
}

func New(
	log *slog.Logger,
	mediaStorage MediaStorage,
) *Library {
	return &Library{
		log:          log,
		mediaStorage: mediaStorage,
	}
}

// NewMedia registers a generated asset in pending state. The
// pipeline reports completion through CompleteMedia.
func (l *Library) NewMedia(ctx context.Context, projectID string, mediaType models.MediaType, prompt string) (models.MediaItem, error) {
	const op = "Library.NewMedia"

	log := l.log.With(slog.String("op", op), slog.String("projectID", projectID))

	media := models.MediaItem{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Kind:      models.MediaGenerated,
		MediaType: mediaType,
		Status:    models.MediaPending,
		Prompt:    prompt,
		CreatedAt: time.Now(),
	}

	if err := l.mediaStorage.SaveMedia(ctx, media); err != nil {
		log.Error("failed to save media", sl.Err(err))
		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info(
		"registered media",
		slog.String("id", media.ID),
		slog.String("type", string(mediaType)),
	)

	return media, nil
}

// NewUpload registers an uploaded asset. The media category comes
// from content sniffing, not from the client-reported filename.
func (l *Library) NewUpload(ctx context.Context, projectID, url string, head []byte, metadata models.MediaMetadata) (models.MediaItem, error) {
	const op = "Library.NewUpload"

	log := l.log.With(slog.String("op", op), slog.String("projectID", projectID))

	mediaType, err := sniffMediaType(head)
	if err != nil {
		log.Warn("unsupported upload content", sl.Err(err))
		return models.MediaItem{}, err
	}

	media := models.MediaItem{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Kind:      models.MediaUploaded,
		MediaType: mediaType,
		Status:    models.MediaCompleted,
		URL:       url,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}

	if err := l.mediaStorage.SaveMedia(ctx, media); err != nil {
		log.Error("failed to save media", sl.Err(err))
		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info(
		"registered upload",
		slog.String("id", media.ID),
		slog.String("type", string(mediaType)),
	)

	return media, nil
}

// sniffMediaType maps the detected MIME type onto a media
// category.
func sniffMediaType(head []byte) (models.MediaType, error) {
	mtype := mimetype.Detect(head)

	switch {
	case mtype.Is("image/jpeg"), mtype.Is("image/png"), mtype.Is("image/webp"), mtype.Is("image/gif"):
		return models.MediaImage, nil
	case mtype.Is("video/mp4"), mtype.Is("video/webm"), mtype.Is("video/quicktime"):
		return models.MediaVideo, nil
	case mtype.Is("audio/mpeg"), mtype.Is("audio/wav"), mtype.Is("audio/ogg"), mtype.Is("audio/aac"), mtype.Is("audio/mp4"):
		return models.MediaMusic, nil
	}

	return "", fmt.Errorf("%w: %s", service.ErrUnsupportedMediaType, mtype.String())
}

// Media returns an asset record by id.
func (l *Library) Media(ctx context.Context, id string) (models.MediaItem, error) {
	const op = "Library.Media"

	log := l.log.With(slog.String("op", op), slog.String("id", id))

	media, err := l.mediaStorage.Media(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			log.Warn("media not found")
			return models.MediaItem{}, service.ErrMediaNotFound
		}
		log.Error("failed to get media", sl.Err(err))
		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	return media, nil
}

// MediaByProject returns the project's assets, newest first.
func (l *Library) MediaByProject(ctx context.Context, projectID string) ([]models.MediaItem, error) {
	const op = "Library.MediaByProject"

	items, err := l.mediaStorage.MediaByProject(ctx, projectID)
	if err != nil {
		l.log.Error("failed to list media", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}

// SearchMedia filters the project's assets by category and ranks
// them against the query by prompt similarity.
func (l *Library) SearchMedia(ctx context.Context, projectID string, filter models.MediaFilter) ([]models.MediaItem, error) {
	const op = "Library.SearchMedia"

	items, err := l.MediaByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ranked := filterRank(items, filter)

	if filter.MaxRespLen > 0 && len(ranked) > filter.MaxRespLen {
		ranked = ranked[:filter.MaxRespLen]
	}

	res := make([]models.MediaItem, 0, len(ranked))
	for _, r := range ranked {
		res = append(res, r.media)
	}

	return res, nil
}

// CompleteMedia records the pipeline result: delivery url plus
// probed metadata, and flips the status to completed.
func (l *Library) CompleteMedia(ctx context.Context, id, url string, metadata models.MediaMetadata) (models.MediaItem, error) {
	const op = "Library.CompleteMedia"

	log := l.log.With(slog.String("op", op), slog.String("id", id))

	media, err := l.Media(ctx, id)
	if err != nil {
		return models.MediaItem{}, err
	}

	media.Status = models.MediaCompleted
	media.URL = url
	media.Metadata = metadata

	if err := l.mediaStorage.UpdateMedia(ctx, media); err != nil {
		log.Error("failed to update media", sl.Err(err))
		return models.MediaItem{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("completed media")

	return media, nil
}

// FailMedia flips the asset to failed so the panel can offer a
// retry.
func (l *Library) FailMedia(ctx context.Context, id string) error {
	const op = "Library.FailMedia"

	log := l.log.With(slog.String("op", op), slog.String("id", id))

	media, err := l.Media(ctx, id)
	if err != nil {
		return err
	}

	media.Status = models.MediaFailed

	if err := l.mediaStorage.UpdateMedia(ctx, media); err != nil {
		log.Error("failed to update media", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("marked media failed")

	return nil
}

// DeleteMedia removes an asset record.
func (l *Library) DeleteMedia(ctx context.Context, id string) error {
	const op = "Library.DeleteMedia"

	log := l.log.With(slog.String("op", op), slog.String("id", id))

	if err := l.mediaStorage.DeleteMedia(ctx, id); err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			log.Warn("media not found")
			return service.ErrMediaNotFound
		}
		log.Error("failed to delete media", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("deleted media")

	return nil
}
