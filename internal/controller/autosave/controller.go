package controller

import (
	"github.com/gofiber/fiber/v2"

	jwtController "github.com/montagehq/montage/internal/controller/jwt"
	autosaveSrv "github.com/montagehq/montage/internal/service/autosave"
)

// New returns a fiber.App exposing the background saver's state.
func New(
	saver Saver,
	jwtC *jwtController.JWT,
) *fiber.App {
	ctr := autosaveController{srv: saver}

	app := fiber.New()

	app.Use(jwtC.AuthRequired())

	app.Get("/status", ctr.status)

	return app
}

type Saver interface {
	Status() []autosaveSrv.ProjectStatus
}

type autosaveController struct {
	srv Saver
}

func (ctr *autosaveController) status(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"projects": ctr.srv.Status(),
	})
}
