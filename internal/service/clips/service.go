package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/montagehq/montage/internal/lib/geometry"
	"github.com/montagehq/montage/internal/lib/logger/sl"
	chans "github.com/montagehq/montage/internal/lib/utils/channels"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

// Clips implements the interactive manipulation protocol: razor
// split, move, resize, ripple delete, duplicate, copy/paste and
// drop-to-create. Every persisted mutation is committed through
// storage first, then recorded as a reversible history action, then
// announced on the refresh channel so dependent views re-read.
type Clips struct {
	log      *slog.Logger
	frames   KeyFrameStorage
	tracks   TrackStorage
	media    MediaStorage
	recorder Recorder

	refreshChan chan<- string

	defaultClipDuration time.Duration
	maxClipDuration     time.Duration
}

type KeyFrameStorage interface {
	SaveKeyFrame(ctx context.Context, frame models.KeyFrame) error
	KeyFrame(ctx context.Context, id string) (models.KeyFrame, error)
	KeyFramesByTrack(ctx context.Context, trackID string) ([]models.KeyFrame, error)
	KeyFramesByProject(ctx context.Context, projectID string) ([]models.KeyFrame, error)
	UpdateKeyFrameTiming(ctx context.Context, id string, timestamp, duration time.Duration) error
	DeleteKeyFrame(ctx context.Context, id string) error
	ShiftKeyFrames(ctx context.Context, trackID string, from, delta time.Duration) error
}

type TrackStorage interface {
	SaveTrack(ctx context.Context, track models.Track) error
	Track(ctx context.Context, id string) (models.Track, error)
	TracksByProject(ctx context.Context, projectID string) ([]models.Track, error)
}

type MediaStorage interface {
	Media(ctx context.Context, id string) (models.MediaItem, error)
}

// Recorder collects reversible actions after a mutation committed.
type Recorder interface {
	RecordAction(undo, redo func(ctx context.Context) error)
}

func New(
	log *slog.Logger,
	frames KeyFrameStorage,
	tracks TrackStorage,
	media MediaStorage,
	recorder Recorder,
	refreshChan chan<- string,
	defaultClipDuration time.Duration,
	maxClipDuration time.Duration,
) *Clips {
	return &Clips{
		log:                 log,
		frames:              frames,
		tracks:              tracks,
		media:               media,
		recorder:            recorder,
		refreshChan:         refreshChan,
		defaultClipDuration: defaultClipDuration,
		maxClipDuration:     maxClipDuration,
	}
}

// clip resolves a key frame with its owning track. Missing clips
// map to the service sentinel so callers can treat them as no-ops.
func (c *Clips) clip(ctx context.Context, id string) (models.KeyFrame, models.Track, error) {
	frame, err := c.frames.KeyFrame(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrKeyFrameNotFound) {
			return models.KeyFrame{}, models.Track{}, service.ErrClipNotFound
		}
		return models.KeyFrame{}, models.Track{}, err
	}

	track, err := c.tracks.Track(ctx, frame.TrackID)
	if err != nil {
		if errors.Is(err, storage.ErrTrackNotFound) {
			return models.KeyFrame{}, models.Track{}, service.ErrTrackNotFound
		}
		return models.KeyFrame{}, models.Track{}, err
	}

	if track.Locked {
		return models.KeyFrame{}, models.Track{}, service.ErrTrackLocked
	}

	return frame, track, nil
}

func (c *Clips) notify(projectID string) {
	chans.Send(c.refreshChan, projectID)
}

// Split cuts a clip in two at the given local offset. Both pieces
// must keep the minimum clip length, otherwise the razor click is
// rejected. Recorded as one reversible action: its inverse deletes
// the new piece and restores the first piece's duration.
func (c *Clips) Split(ctx context.Context, clipID string, offset time.Duration) (models.KeyFrame, error) {
	const op = "Clips.Split"

	log := c.log.With(slog.String("op", op), slog.String("clipID", clipID))

	frame, track, err := c.clip(ctx, clipID)
	if err != nil {
		log.Warn("clip not available", sl.Err(err))
		return models.KeyFrame{}, err
	}

	if offset <= geometry.MinClipDuration || offset >= frame.Duration-geometry.MinClipDuration {
		log.Warn(
			"split point out of bounds",
			slog.Int64("offset", offset.Milliseconds()),
			slog.Int64("duration", frame.Duration.Milliseconds()),
		)
		return models.KeyFrame{}, service.ErrSplitOutOfBounds
	}

	before := frame
	second := models.KeyFrame{
		ID:        uuid.NewString(),
		TrackID:   frame.TrackID,
		Timestamp: frame.Timestamp + offset,
		Duration:  frame.Duration - offset,
		Data:      frame.Data,
	}

	if err := c.frames.SaveKeyFrame(ctx, second); err != nil {
		log.Error("failed to save second piece", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := c.frames.UpdateKeyFrameTiming(ctx, frame.ID, frame.Timestamp, offset); err != nil {
		log.Error("failed to truncate first piece", sl.Err(err))
		// Best effort: remove the piece so the clip is not doubled.
		if delErr := c.frames.DeleteKeyFrame(ctx, second.ID); delErr != nil {
			log.Error("failed to remove orphan piece", sl.Err(delErr))
		}
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	projectID := track.ProjectID
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			if err := c.frames.DeleteKeyFrame(ctx, second.ID); err != nil {
				return err
			}
			if err := c.frames.UpdateKeyFrameTiming(ctx, before.ID, before.Timestamp, before.Duration); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if err := c.frames.UpdateKeyFrameTiming(ctx, before.ID, before.Timestamp, offset); err != nil {
				return err
			}
			if err := c.frames.SaveKeyFrame(ctx, second); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info(
		"split clip",
		slog.String("newID", second.ID),
		slog.Int64("offset", offset.Milliseconds()),
	)

	c.notify(projectID)

	frame.Duration = offset

	return second, nil
}

// SplitAt razors every clip on the project that spans the given
// position (cut at playhead). Returns the clips created.
func (c *Clips) SplitAt(ctx context.Context, projectID string, at time.Duration) ([]models.KeyFrame, error) {
	const op = "Clips.SplitAt"

	log := c.log.With(slog.String("op", op), slog.String("projectID", projectID))

	frames, err := c.frames.KeyFramesByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list clips", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created := make([]models.KeyFrame, 0)
	for _, frame := range frames {
		if at <= frame.Timestamp || at >= frame.End() {
			continue
		}
		second, err := c.Split(ctx, frame.ID, at-frame.Timestamp)
		if err != nil {
			if errors.Is(err, service.ErrSplitOutOfBounds) || errors.Is(err, service.ErrTrackLocked) {
				continue
			}
			return created, fmt.Errorf("%s: %w", op, err)
		}
		created = append(created, second)
	}

	return created, nil
}

// Move commits a drag gesture: the target timestamp is grid- and
// magnet-snapped against sibling clip edges, clamped to the
// timeline bounds, and persisted with a single update.
func (c *Clips) Move(ctx context.Context, clipID string, target time.Duration, opts models.SnapOptions) (models.KeyFrame, error) {
	const op = "Clips.Move"

	log := c.log.With(slog.String("op", op), slog.String("clipID", clipID))

	frame, track, err := c.clip(ctx, clipID)
	if err != nil {
		log.Warn("clip not available", sl.Err(err))
		return models.KeyFrame{}, err
	}

	all, err := c.frames.KeyFramesByProject(ctx, track.ProjectID)
	if err != nil {
		log.Error("failed to list clips", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	if opts.Grid {
		target = geometry.SnapToGrid(target, opts.GridStep)
	}
	if opts.Magnetic {
		target = geometry.MagneticSnap(target, frame.Duration, siblingEdges(all, frame), opts.SnapDistance)
	}
	target = geometry.ClampTimestamp(target, frame.Duration, models.TotalDuration(all))

	if target == frame.Timestamp {
		return frame, nil
	}

	before := frame
	if err := c.frames.UpdateKeyFrameTiming(ctx, frame.ID, target, frame.Duration); err != nil {
		log.Error("failed to move clip", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	projectID := track.ProjectID
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			if err := c.frames.UpdateKeyFrameTiming(ctx, before.ID, before.Timestamp, before.Duration); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if err := c.frames.UpdateKeyFrameTiming(ctx, before.ID, target, before.Duration); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info(
		"moved clip",
		slog.Int64("from", before.Timestamp.Milliseconds()),
		slog.Int64("to", target.Milliseconds()),
	)

	c.notify(projectID)

	frame.Timestamp = target

	return frame, nil
}

// Resize commits a trim gesture. Trimming the in-point preserves
// the out-point; trimming the out-point is bounded by the media's
// natural duration when known, else the configured cap.
func (c *Clips) Resize(ctx context.Context, clipID string, kind models.DragKind, target time.Duration, opts models.SnapOptions) (models.KeyFrame, error) {
	const op = "Clips.Resize"

	log := c.log.With(slog.String("op", op), slog.String("clipID", clipID))

	frame, track, err := c.clip(ctx, clipID)
	if err != nil {
		log.Warn("clip not available", sl.Err(err))
		return models.KeyFrame{}, err
	}

	var newTimestamp, newDuration time.Duration

	switch kind {
	case models.DragResizeLeft:
		end := frame.End()
		if opts.Grid {
			target = geometry.SnapToGrid(target, opts.GridStep)
		}
		if target < 0 {
			target = 0
		}
		if target > end-geometry.MinClipDuration {
			target = end - geometry.MinClipDuration
		}
		newTimestamp = target
		newDuration = end - target

	case models.DragResizeRight:
		if opts.Grid {
			target = geometry.SnapToGrid(target, opts.GridStep)
		}
		newTimestamp = frame.Timestamp
		newDuration = geometry.ClampDuration(target-frame.Timestamp, c.resizeCap(ctx, frame))

	default:
		return models.KeyFrame{}, fmt.Errorf("%s: unknown resize kind %q", op, kind)
	}

	if newTimestamp == frame.Timestamp && newDuration == frame.Duration {
		return frame, nil
	}

	before := frame
	if err := c.frames.UpdateKeyFrameTiming(ctx, frame.ID, newTimestamp, newDuration); err != nil {
		log.Error("failed to resize clip", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	projectID := track.ProjectID
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			if err := c.frames.UpdateKeyFrameTiming(ctx, before.ID, before.Timestamp, before.Duration); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if err := c.frames.UpdateKeyFrameTiming(ctx, before.ID, newTimestamp, newDuration); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info(
		"resized clip",
		slog.String("kind", string(kind)),
		slog.Int64("timestamp", newTimestamp.Milliseconds()),
		slog.Int64("duration", newDuration.Milliseconds()),
	)

	c.notify(projectID)

	frame.Timestamp = newTimestamp
	frame.Duration = newDuration

	return frame, nil
}

// resizeCap returns the upper bound for a clip's duration: the
// referenced media's own length when known, else the configured cap.
func (c *Clips) resizeCap(ctx context.Context, frame models.KeyFrame) time.Duration {
	if frame.Data.MediaID == "" {
		return c.maxClipDuration
	}

	media, err := c.media.Media(ctx, frame.Data.MediaID)
	if err != nil || media.NaturalDuration() <= 0 {
		return c.maxClipDuration
	}

	return media.NaturalDuration()
}

// Delete removes a clip. With ripple enabled every later clip on
// the track shifts backward by the deleted duration so the gap
// closes; undo restores both the clip and the shifted positions as
// one atomic action.
func (c *Clips) Delete(ctx context.Context, clipID string, ripple bool) error {
	const op = "Clips.Delete"

	log := c.log.With(slog.String("op", op), slog.String("clipID", clipID))

	frame, track, err := c.clip(ctx, clipID)
	if err != nil {
		log.Warn("clip not available", sl.Err(err))
		return err
	}

	// Capture the clips the ripple will move, so undo can restore
	// their exact positions even when clips overlap.
	var shifted []models.KeyFrame
	if ripple {
		siblings, err := c.frames.KeyFramesByTrack(ctx, frame.TrackID)
		if err != nil {
			log.Error("failed to list siblings", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, s := range siblings {
			if s.ID != frame.ID && s.Timestamp >= frame.End() {
				shifted = append(shifted, s)
			}
		}
	}

	if err := c.frames.DeleteKeyFrame(ctx, frame.ID); err != nil {
		log.Error("failed to delete clip", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if ripple {
		if err := c.frames.ShiftKeyFrames(ctx, frame.TrackID, frame.End(), -frame.Duration); err != nil {
			log.Error("failed to ripple clips", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	before := frame
	projectID := track.ProjectID
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			for _, s := range shifted {
				if err := c.frames.UpdateKeyFrameTiming(ctx, s.ID, s.Timestamp, s.Duration); err != nil {
					return err
				}
			}
			if err := c.frames.SaveKeyFrame(ctx, before); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if err := c.frames.DeleteKeyFrame(ctx, before.ID); err != nil {
				return err
			}
			if ripple {
				if err := c.frames.ShiftKeyFrames(ctx, before.TrackID, before.End(), -before.Duration); err != nil {
					return err
				}
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info("deleted clip", slog.Bool("ripple", ripple))

	c.notify(projectID)

	return nil
}

// DeleteSelection deletes each selected clip. Missing ids are
// skipped defensively.
func (c *Clips) DeleteSelection(ctx context.Context, ids []string, ripple bool) error {
	const op = "Clips.DeleteSelection"

	for _, id := range ids {
		if err := c.Delete(ctx, id, ripple); err != nil {
			if errors.Is(err, service.ErrClipNotFound) {
				continue
			}
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// Duplicate clones a clip immediately after its source, so the
// copy never overlaps the original.
func (c *Clips) Duplicate(ctx context.Context, clipID string) (models.KeyFrame, error) {
	const op = "Clips.Duplicate"

	log := c.log.With(slog.String("op", op), slog.String("clipID", clipID))

	frame, track, err := c.clip(ctx, clipID)
	if err != nil {
		log.Warn("clip not available", sl.Err(err))
		return models.KeyFrame{}, err
	}

	clone := models.KeyFrame{
		ID:        uuid.NewString(),
		TrackID:   frame.TrackID,
		Timestamp: frame.End(),
		Duration:  frame.Duration,
		Data:      frame.Data,
	}

	if err := c.frames.SaveKeyFrame(ctx, clone); err != nil {
		log.Error("failed to save clone", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	projectID := track.ProjectID
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			if err := c.frames.DeleteKeyFrame(ctx, clone.ID); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if err := c.frames.SaveKeyFrame(ctx, clone); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info("duplicated clip", slog.String("cloneID", clone.ID))

	c.notify(projectID)

	return clone, nil
}

// DuplicateSelection clones each selected clip.
func (c *Clips) DuplicateSelection(ctx context.Context, ids []string) ([]models.KeyFrame, error) {
	const op = "Clips.DuplicateSelection"

	clones := make([]models.KeyFrame, 0, len(ids))
	for _, id := range ids {
		clone, err := c.Duplicate(ctx, id)
		if err != nil {
			if errors.Is(err, service.ErrClipNotFound) {
				continue
			}
			return clones, fmt.Errorf("%s: %w", op, err)
		}
		clones = append(clones, clone)
	}

	return clones, nil
}

// CopySnapshot reads the current persisted records of the given
// clips. The result is a snapshot for the clipboard, never live
// references. Missing ids are skipped.
func (c *Clips) CopySnapshot(ctx context.Context, ids []string) ([]models.KeyFrame, error) {
	const op = "Clips.CopySnapshot"

	copied := make([]models.KeyFrame, 0, len(ids))
	for _, id := range ids {
		frame, err := c.frames.KeyFrame(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrKeyFrameNotFound) {
				continue
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		copied = append(copied, frame)
	}

	return copied, nil
}

// Paste recreates clipboard clips with fresh ids. The earliest
// copied clip lands at the target timestamp; relative offsets are
// preserved. In insert mode with ripple enabled, existing clips
// downstream of the paste point shift forward by the pasted span
// on each affected track.
func (c *Clips) Paste(ctx context.Context, clipboard []models.KeyFrame, at time.Duration, mode models.PasteMode, ripple bool) ([]models.KeyFrame, error) {
	const op = "Clips.Paste"

	log := c.log.With(slog.String("op", op))

	if len(clipboard) == 0 {
		return nil, service.ErrClipboardEmpty
	}

	anchor := clipboard[0].Timestamp
	for _, f := range clipboard {
		if f.Timestamp < anchor {
			anchor = f.Timestamp
		}
	}

	created := make([]models.KeyFrame, 0, len(clipboard))
	spanByTrack := make(map[string]time.Duration)
	for _, f := range clipboard {
		frame := models.KeyFrame{
			ID:        uuid.NewString(),
			TrackID:   f.TrackID,
			Timestamp: at + (f.Timestamp - anchor),
			Duration:  f.Duration,
			Data:      f.Data,
		}
		created = append(created, frame)

		if end := frame.End() - at; end > spanByTrack[f.TrackID] {
			spanByTrack[f.TrackID] = end
		}
	}

	track, err := c.tracks.Track(ctx, created[0].TrackID)
	if err != nil {
		log.Error("failed to resolve track", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	projectID := track.ProjectID

	// Capture the positions the insert ripple will move.
	var shifted []models.KeyFrame
	if ripple && mode == models.PasteInsert {
		for trackID := range spanByTrack {
			siblings, err := c.frames.KeyFramesByTrack(ctx, trackID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			for _, s := range siblings {
				if s.Timestamp >= at {
					shifted = append(shifted, s)
				}
			}
		}
		for trackID, span := range spanByTrack {
			if err := c.frames.ShiftKeyFrames(ctx, trackID, at, span); err != nil {
				log.Error("failed to ripple clips", sl.Err(err))
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	for _, frame := range created {
		if err := c.frames.SaveKeyFrame(ctx, frame); err != nil {
			log.Error("failed to save pasted clip", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	rippled := ripple && mode == models.PasteInsert
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			for _, frame := range created {
				if err := c.frames.DeleteKeyFrame(ctx, frame.ID); err != nil {
					return err
				}
			}
			for _, s := range shifted {
				if err := c.frames.UpdateKeyFrameTiming(ctx, s.ID, s.Timestamp, s.Duration); err != nil {
					return err
				}
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if rippled {
				for trackID, span := range spanByTrack {
					if err := c.frames.ShiftKeyFrames(ctx, trackID, at, span); err != nil {
						return err
					}
				}
			}
			for _, frame := range created {
				if err := c.frames.SaveKeyFrame(ctx, frame); err != nil {
					return err
				}
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info(
		"pasted clips",
		slog.Int("count", len(created)),
		slog.Int64("at", at.Milliseconds()),
		slog.Bool("ripple", rippled),
	)

	c.notify(projectID)

	return created, nil
}

// DropCreate places external media on the timeline. The media
// arrives as a full record or a bare id; the matching track is
// found by type or created on demand. Clip duration comes from the
// media's natural length (capped), else the configured default.
func (c *Clips) DropCreate(ctx context.Context, projectID string, payload models.DropPayload, at time.Duration) (models.KeyFrame, error) {
	const op = "Clips.DropCreate"

	log := c.log.With(slog.String("op", op), slog.String("projectID", projectID))

	media, err := c.resolveDrop(ctx, payload)
	if err != nil {
		log.Warn("failed to resolve drop payload", sl.Err(err))
		return models.KeyFrame{}, err
	}

	track, createdTrack, err := c.trackForMedia(ctx, projectID, media)
	if err != nil {
		log.Error("failed to resolve track", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	duration := media.NaturalDuration()
	if duration <= 0 {
		duration = c.defaultClipDuration
	}
	if duration > c.maxClipDuration {
		duration = c.maxClipDuration
	}

	if at < 0 {
		at = 0
	}

	frame := models.KeyFrame{
		ID:        uuid.NewString(),
		TrackID:   track.ID,
		Timestamp: at,
		Duration:  duration,
		Data: models.KeyFrameData{
			Type:    keyFrameTypeFor(media.MediaType),
			MediaID: media.ID,
			Prompt:  media.Prompt,
			URL:     media.URL,
		},
	}

	if err := c.frames.SaveKeyFrame(ctx, frame); err != nil {
		log.Error("failed to save clip", sl.Err(err))
		return models.KeyFrame{}, fmt.Errorf("%s: %w", op, err)
	}

	newTrack := track
	c.recorder.RecordAction(
		func(ctx context.Context) error {
			if err := c.frames.DeleteKeyFrame(ctx, frame.ID); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
		func(ctx context.Context) error {
			if createdTrack {
				// The track may have been garbage collected by an
				// explicit delete; recreating it is idempotent enough
				// for replay.
				if _, err := c.tracks.Track(ctx, newTrack.ID); err != nil {
					if !errors.Is(err, storage.ErrTrackNotFound) {
						return err
					}
					if err := c.tracks.SaveTrack(ctx, newTrack); err != nil {
						return err
					}
				}
			}
			if err := c.frames.SaveKeyFrame(ctx, frame); err != nil {
				return err
			}
			c.notify(projectID)
			return nil
		},
	)

	log.Info(
		"created clip from drop",
		slog.String("clipID", frame.ID),
		slog.String("trackID", track.ID),
		slog.Bool("newTrack", createdTrack),
	)

	c.notify(projectID)

	return frame, nil
}

func (c *Clips) resolveDrop(ctx context.Context, payload models.DropPayload) (models.MediaItem, error) {
	if payload.Kind == models.DropRecord && payload.Media != nil {
		return *payload.Media, nil
	}

	if payload.MediaID == "" {
		return models.MediaItem{}, service.ErrMediaNotFound
	}

	media, err := c.media.Media(ctx, payload.MediaID)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			return models.MediaItem{}, service.ErrMediaNotFound
		}
		return models.MediaItem{}, err
	}

	return media, nil
}

// trackForMedia finds the lane matching the media category,
// creating it when the timeline has no such track yet.
func (c *Clips) trackForMedia(ctx context.Context, projectID string, media models.MediaItem) (models.Track, bool, error) {
	trackType := models.TrackTypeFor(media.MediaType)

	tracks, err := c.tracks.TracksByProject(ctx, projectID)
	if err != nil {
		return models.Track{}, false, err
	}

	for _, t := range tracks {
		if t.Type == trackType && !t.Locked {
			return t, false, nil
		}
	}

	track := models.Track{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      trackType,
		Label:     trackLabel(trackType),
		Volume:    100,
	}

	if err := c.tracks.SaveTrack(ctx, track); err != nil {
		return models.Track{}, false, err
	}

	return track, true, nil
}

func trackLabel(t models.TrackType) string {
	switch t {
	case models.TrackVideo:
		return "Video Track"
	case models.TrackMusic:
		return "Music Track"
	case models.TrackVoiceover:
		return "Voiceover Track"
	}
	return "Track"
}

func keyFrameTypeFor(mt models.MediaType) models.KeyFrameType {
	switch mt {
	case models.MediaImage:
		return models.KeyFrameImage
	case models.MediaVideo:
		return models.KeyFrameVideo
	case models.MediaMusic:
		return models.KeyFrameMusic
	case models.MediaVoiceover:
		return models.KeyFrameVoiceover
	}
	return models.KeyFramePrompt
}

// siblingEdges collects the start and end of every other clip on
// the same track, the magnet targets for a drag.
func siblingEdges(all []models.KeyFrame, self models.KeyFrame) []geometry.Edge {
	edges := make([]geometry.Edge, 0, 2*len(all))
	for _, f := range all {
		if f.ID == self.ID || f.TrackID != self.TrackID {
			continue
		}
		edges = append(edges, geometry.Edge{At: f.Timestamp}, geometry.Edge{At: f.End()})
	}
	return edges
}

// TotalDuration derives the current timeline length for a project.
func (c *Clips) TotalDuration(ctx context.Context, projectID string) (time.Duration, error) {
	const op = "Clips.TotalDuration"

	frames, err := c.frames.KeyFramesByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return models.TotalDuration(frames), nil
}
