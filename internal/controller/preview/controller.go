package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	jwtController "github.com/montagehq/montage/internal/controller/jwt"
	"github.com/montagehq/montage/internal/service"
)

// New returns a fiber.App serving DASH manifests for timeline
// playback.
func New(
	preview PreviewService,
	jwtC *jwtController.JWT,
) *fiber.App {
	ctr := previewController{srv: preview}

	app := fiber.New()

	app.Use(jwtC.AuthRequired())

	app.Get("/:projectId/manifest.mpd", ctr.manifest)

	return app
}

type PreviewService interface {
	Manifest(ctx context.Context, projectID string) (string, error)
}

type previewController struct {
	srv PreviewService
}

func (ctr *previewController) manifest(c *fiber.Ctx) error {
	manifest, err := ctr.srv.Manifest(context.TODO(), c.Params("projectId"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "project not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	c.Set(fiber.HeaderContentType, "application/dash+xml")

	return c.Status(fiber.StatusOK).SendString(manifest)
}
