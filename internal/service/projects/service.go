package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	chans "github.com/montagehq/montage/internal/lib/utils/channels"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

type Projects struct {
	log         *slog.Logger
	prjStorage  ProjectStorage
	trkStorage  TrackStorage
	frmStorage  KeyFrameStorage
	refreshChan chan<- string
}

type ProjectStorage interface {
	SaveProject(ctx context.Context, project models.Project) error
	Project(ctx context.Context, id string) (models.Project, error)
	AllProjects(ctx context.Context) ([]models.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

type TrackStorage interface {
	SaveTrack(ctx context.Context, track models.Track) error
	Track(ctx context.Context, id string) (models.Track, error)
	TracksByProject(ctx context.Context, projectID string) ([]models.Track, error)
	UpdateTrack(ctx context.Context, track models.Track) error
	DeleteTrack(ctx context.Context, id string) error
}

type KeyFrameStorage interface {
	KeyFramesByProject(ctx context.Context, projectID string) ([]models.KeyFrame, error)
}

func New(
	log *slog.Logger,
	prjStorage ProjectStorage,
	trkStorage TrackStorage,
	frmStorage KeyFrameStorage,
	refreshChan chan<- string,
) *Projects {
	return &Projects{
		log:         log,
		prjStorage:  prjStorage,
		trkStorage:  trkStorage,
		frmStorage:  frmStorage,
		refreshChan: refreshChan,
	}
}

// NewProject creates a project with the standard three lanes so a
// fresh timeline is immediately editable.
func (p *Projects) NewProject(ctx context.Context, title, description string, ratio models.AspectRatio) (models.Project, error) {
	const op = "Projects.NewProject"

	log := p.log.With(slog.String("op", op))

	project := models.Project{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		AspectRatio: ratio,
	}

	if err := p.prjStorage.SaveProject(ctx, project); err != nil {
		log.Error("failed to save project", sl.Err(err))
		return models.Project{}, fmt.Errorf("%s: %w", op, err)
	}

	for _, trackType := range []models.TrackType{
		models.TrackVideo,
		models.TrackMusic,
		models.TrackVoiceover,
	} {
		track := models.Track{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Type:      trackType,
			Label:     defaultLabel(trackType),
			Volume:    100,
		}
		if err := p.trkStorage.SaveTrack(ctx, track); err != nil {
			log.Error("failed to save track", sl.Err(err), slog.String("type", string(trackType)))
			return models.Project{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("created project", slog.String("projectID", project.ID), slog.String("title", title))

	return project, nil
}

func (p *Projects) Project(ctx context.Context, id string) (models.Project, error) {
	const op = "Projects.Project"

	log := p.log.With(slog.String("op", op), slog.String("projectID", id))

	project, err := p.prjStorage.Project(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			log.Warn("project not found")
			return models.Project{}, service.ErrProjectNotFound
		}
		log.Error("failed to get project", sl.Err(err))
		return models.Project{}, fmt.Errorf("%s: %w", op, err)
	}

	return project, nil
}

func (p *Projects) AllProjects(ctx context.Context) ([]models.Project, error) {
	const op = "Projects.AllProjects"

	projects, err := p.prjStorage.AllProjects(ctx)
	if err != nil {
		p.log.Error("failed to list projects", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return projects, nil
}

// DeleteProject drops the project; tracks and clips go with it
// through the storage cascade.
func (p *Projects) DeleteProject(ctx context.Context, id string) error {
	const op = "Projects.DeleteProject"

	log := p.log.With(slog.String("op", op), slog.String("projectID", id))

	if err := p.prjStorage.DeleteProject(ctx, id); err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			log.Warn("project not found")
			return service.ErrProjectNotFound
		}
		log.Error("failed to delete project", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("deleted project")

	return nil
}

// NewTrack appends a lane to the project.
func (p *Projects) NewTrack(ctx context.Context, projectID string, trackType models.TrackType, label string) (models.Track, error) {
	const op = "Projects.NewTrack"

	log := p.log.With(slog.String("op", op), slog.String("projectID", projectID))

	if _, err := p.prjStorage.Project(ctx, projectID); err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			log.Warn("project not found")
			return models.Track{}, service.ErrProjectNotFound
		}
		log.Error("failed to get project", sl.Err(err))
		return models.Track{}, fmt.Errorf("%s: %w", op, err)
	}

	if label == "" {
		label = defaultLabel(trackType)
	}

	track := models.Track{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      trackType,
		Label:     label,
		Volume:    100,
	}

	if err := p.trkStorage.SaveTrack(ctx, track); err != nil {
		log.Error("failed to save track", sl.Err(err))
		return models.Track{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("created track", slog.String("trackID", track.ID), slog.String("type", string(trackType)))

	p.notify(projectID)

	return track, nil
}

func (p *Projects) TracksByProject(ctx context.Context, projectID string) ([]models.Track, error) {
	const op = "Projects.TracksByProject"

	tracks, err := p.trkStorage.TracksByProject(ctx, projectID)
	if err != nil {
		p.log.Error("failed to list tracks", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tracks, nil
}

// UpdateTrack persists lane controls: label, lock, mute, solo and
// volume. Type and project binding never change.
func (p *Projects) UpdateTrack(ctx context.Context, track models.Track) (models.Track, error) {
	const op = "Projects.UpdateTrack"

	log := p.log.With(slog.String("op", op), slog.String("trackID", track.ID))

	current, err := p.trkStorage.Track(ctx, track.ID)
	if err != nil {
		if errors.Is(err, storage.ErrTrackNotFound) {
			log.Warn("track not found")
			return models.Track{}, service.ErrTrackNotFound
		}
		log.Error("failed to get track", sl.Err(err))
		return models.Track{}, fmt.Errorf("%s: %w", op, err)
	}

	current.Label = track.Label
	current.Locked = track.Locked
	current.Muted = track.Muted
	current.Solo = track.Solo
	current.Volume = track.Volume

	if err := p.trkStorage.UpdateTrack(ctx, current); err != nil {
		log.Error("failed to update track", sl.Err(err))
		return models.Track{}, fmt.Errorf("%s: %w", op, err)
	}

	p.notify(current.ProjectID)

	return current, nil
}

func (p *Projects) DeleteTrack(ctx context.Context, id string) error {
	const op = "Projects.DeleteTrack"

	log := p.log.With(slog.String("op", op), slog.String("trackID", id))

	track, err := p.trkStorage.Track(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrTrackNotFound) {
			log.Warn("track not found")
			return service.ErrTrackNotFound
		}
		log.Error("failed to get track", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.trkStorage.DeleteTrack(ctx, id); err != nil {
		log.Error("failed to delete track", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("deleted track")

	p.notify(track.ProjectID)

	return nil
}

// Timeline returns every lane of the project with its clips
// attached, ordered for display.
func (p *Projects) Timeline(ctx context.Context, projectID string) ([]models.TrackTimeline, error) {
	const op = "Projects.Timeline"

	log := p.log.With(slog.String("op", op), slog.String("projectID", projectID))

	if _, err := p.prjStorage.Project(ctx, projectID); err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			log.Warn("project not found")
			return nil, service.ErrProjectNotFound
		}
		log.Error("failed to get project", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tracks, err := p.trkStorage.TracksByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list tracks", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	frames, err := p.frmStorage.KeyFramesByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list clips", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	byTrack := make(map[string][]models.KeyFrame, len(tracks))
	for _, f := range frames {
		byTrack[f.TrackID] = append(byTrack[f.TrackID], f)
	}

	res := make([]models.TrackTimeline, 0, len(tracks))
	for _, t := range tracks {
		res = append(res, models.TrackTimeline{
			Track: t,
			Clips: byTrack[t.ID],
		})
	}

	return res, nil
}

func (p *Projects) notify(projectID string) {
	chans.Send(p.refreshChan, projectID)
}

func defaultLabel(t models.TrackType) string {
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
