package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	jwtController "github.com/montagehq/montage/internal/controller/jwt"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
)

// New returns a fiber.App that hands assembled timelines to the
// rendering backend.
func New(
	export ExportService,
	jwtC *jwtController.JWT,
) *fiber.App {
	ctr := exportController{srv: export}

	app := fiber.New()

	app.Use(jwtC.AuthRequired())

	app.Post("/:projectId", ctr.export)
	app.Get("/:projectId/job", ctr.job)

	return app
}

type ExportService interface {
	Assemble(ctx context.Context, projectID string) (models.ExportJob, error)
	Export(ctx context.Context, projectID string) (models.ExportResult, error)
}

type exportController struct {
	srv ExportService
}

func (ctr *exportController) export(c *fiber.Ctx) error {
	result, err := ctr.srv.Export(context.TODO(), c.Params("projectId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		case errors.Is(err, service.ErrMediaNotReady):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "nothing renderable on the timeline",
			})
		case errors.Is(err, service.ErrRenderFailed):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "render failed",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"result": result,
	})
}

// job returns the assembled export payload without submitting it,
// so a client can inspect what would be rendered.
func (ctr *exportController) job(c *fiber.Ctx) error {
	job, err := ctr.srv.Assemble(context.TODO(), c.Params("projectId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		case errors.Is(err, service.ErrMediaNotReady):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "nothing renderable on the timeline",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"job": job,
	})
}
