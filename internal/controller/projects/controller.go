package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	jwtController "github.com/montagehq/montage/internal/controller/jwt"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
)

// New returns a fiber.App serving project and track management.
func New(
	prj ProjectManager,
	jwtC *jwtController.JWT,
) *fiber.App {
	ctr := projectController{srv: prj}

	app := fiber.New()

	app.Use(jwtC.AuthRequired())

	app.Get("/", ctr.allProjects)
	app.Post("/", ctr.newProject)
	app.Get("/:id", ctr.project)
	app.Delete("/:id", ctr.deleteProject)
	app.Get("/:id/timeline", ctr.timeline)
	app.Get("/:id/tracks", ctr.tracks)
	app.Post("/:id/tracks", ctr.newTrack)
	app.Put("/tracks/:trackId", ctr.updateTrack)
	app.Delete("/tracks/:trackId", ctr.deleteTrack)

	return app
}

type ProjectManager interface {
	NewProject(ctx context.Context, title, description string, ratio models.AspectRatio) (models.Project, error)
	Project(ctx context.Context, id string) (models.Project, error)
	AllProjects(ctx context.Context) ([]models.Project, error)
	DeleteProject(ctx context.Context, id string) error
	Timeline(ctx context.Context, projectID string) ([]models.TrackTimeline, error)
	NewTrack(ctx context.Context, projectID string, trackType models.TrackType, label string) (models.Track, error)
	TracksByProject(ctx context.Context, projectID string) ([]models.Track, error)
	UpdateTrack(ctx context.Context, track models.Track) (models.Track, error)
	DeleteTrack(ctx context.Context, id string) error
}

type projectController struct {
	srv ProjectManager
}

func (ctr *projectController) allProjects(c *fiber.Ctx) error {
	projects, err := ctr.srv.AllProjects(context.TODO())
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"projects": projects,
	})
}

func (ctr *projectController) newProject(c *fiber.Ctx) error {
	form := new(struct {
		Title       string             `json:"title"`
		Description string             `json:"description"`
		AspectRatio models.AspectRatio `json:"aspectRatio"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	if form.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title required",
		})
	}

	switch form.AspectRatio {
	case "":
		form.AspectRatio = models.AspectWide
	case models.AspectWide, models.AspectPortrait, models.AspectSquare:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown aspect ratio",
		})
	}

	project, err := ctr.srv.NewProject(context.TODO(), form.Title, form.Description, form.AspectRatio)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"project": project,
	})
}

func (ctr *projectController) project(c *fiber.Ctx) error {
	project, err := ctr.srv.Project(context.TODO(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"project": project,
	})
}

func (ctr *projectController) deleteProject(c *fiber.Ctx) error {
	if err := ctr.srv.DeleteProject(context.TODO(), c.Params("id")); err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctr *projectController) timeline(c *fiber.Ctx) error {
	lanes, err := ctr.srv.Timeline(context.TODO(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	view := make([]fiber.Map, 0, len(lanes))
	for _, lane := range lanes {
		clips := make([]fiber.Map, 0, len(lane.Clips))
		for _, f := range lane.Clips {
			clips = append(clips, fiber.Map{
				"id":        f.ID,
				"trackId":   f.TrackID,
				"timestamp": f.Timestamp.Milliseconds(),
				"duration":  f.Duration.Milliseconds(),
				"data":      f.Data,
			})
		}
		view = append(view, fiber.Map{
			"track": lane.Track,
			"clips": clips,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"timeline": view,
	})
}

func (ctr *projectController) tracks(c *fiber.Ctx) error {
	tracks, err := ctr.srv.TracksByProject(context.TODO(), c.Params("id"))
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"tracks": tracks,
	})
}

func (ctr *projectController) newTrack(c *fiber.Ctx) error {
	form := new(struct {
		Type  models.TrackType `json:"type"`
		Label string           `json:"label"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	switch form.Type {
	case models.TrackVideo, models.TrackMusic, models.TrackVoiceover:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown track type",
		})
	}

	track, err := ctr.srv.NewTrack(context.TODO(), c.Params("id"), form.Type, form.Label)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"track": track,
	})
}

func (ctr *projectController) updateTrack(c *fiber.Ctx) error {
	form := new(struct {
		Label  string  `json:"label"`
		Locked bool    `json:"locked"`
		Muted  bool    `json:"muted"`
		Solo   bool    `json:"solo"`
		Volume float64 `json:"volume"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	if form.Volume < 0 || form.Volume > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "volume out of range",
		})
	}

	track, err := ctr.srv.UpdateTrack(context.TODO(), models.Track{
		ID:     c.Params("trackId"),
		Label:  form.Label,
		Locked: form.Locked,
		Muted:  form.Muted,
		Solo:   form.Solo,
		Volume: form.Volume,
	})
	if err != nil {
		if errors.Is(err, service.ErrTrackNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "track not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"track": track,
	})
}

func (ctr *projectController) deleteTrack(c *fiber.Ctx) error {
	if err := ctr.srv.DeleteTrack(context.TODO(), c.Params("trackId")); err != nil {
		if errors.Is(err, service.ErrTrackNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "track not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
