package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	jwtController "github.com/montagehq/montage/internal/controller/jwt"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
)

// sniffLen is how much of an upload is read for MIME detection.
const sniffLen = 3072

func New(libSrv Library, jwtC *jwtController.JWT) *fiber.App {
	libCtr := libraryController{srv: libSrv}

	app := fiber.New(fiber.Config{
		EnableSplittingOnParsers: true,
	})

	app.Use(jwtC.AuthRequired())

	app.Get("/:projectId/media", libCtr.searchMedia)
	app.Post("/:projectId/media", libCtr.newMedia)
	app.Post("/:projectId/upload", libCtr.upload)
	app.Get("/media/:id", libCtr.media)
	app.Post("/media/:id/complete", libCtr.completeMedia)
	app.Post("/media/:id/fail", libCtr.failMedia)
	app.Delete("/media/:id", libCtr.deleteMedia)

	return app
}

type libraryController struct {
	srv Library
}

type Library interface {
	NewMedia(ctx context.Context, projectID string, mediaType models.MediaType, prompt string) (models.MediaItem, error)
	NewUpload(ctx context.Context, projectID, url string, head []byte, metadata models.MediaMetadata) (models.MediaItem, error)
	Media(ctx context.Context, id string) (models.MediaItem, error)
	SearchMedia(ctx context.Context, projectID string, filter models.MediaFilter) ([]models.MediaItem, error)
	CompleteMedia(ctx context.Context, id, url string, metadata models.MediaMetadata) (models.MediaItem, error)
	FailMedia(ctx context.Context, id string) error
	DeleteMedia(ctx context.Context, id string) error
}

// searchMedia returns the project library filtered and ranked
// by query criteria.
func (libCtr *libraryController) searchMedia(c *fiber.Ctx) error {
	var types []models.MediaType
	if s := c.Query("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			types = append(types, models.MediaType(t))
		}
	}

	filter := models.MediaFilter{
		Query:      c.Query("q"),
		Types:      types,
		MaxRespLen: c.QueryInt("res_len"),
	}

	lib, err := libCtr.srv.SearchMedia(context.TODO(), c.Params("projectId"), filter)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"library": lib,
	})
}

// newMedia registers a generation request; the item starts pending
// and is completed through the callback endpoints.
func (libCtr *libraryController) newMedia(c *fiber.Ctx) error {
	form := new(struct {
		Type   models.MediaType `json:"type"`
		Prompt string           `json:"prompt"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	switch form.Type {
	case models.MediaImage, models.MediaVideo, models.MediaMusic, models.MediaVoiceover:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown media type",
		})
	}

	if form.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "prompt required",
		})
	}

	media, err := libCtr.srv.NewMedia(context.TODO(), c.Params("projectId"), form.Type, form.Prompt)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"media": media,
	})
}

// upload registers an uploaded asset: the media category is sniffed
// from the file head, never trusted from the client.
func (libCtr *libraryController) upload(c *fiber.Ctx) error {
	url := c.FormValue("url")
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url required",
		})
	}

	var metadata models.MediaMetadata
	if payload := c.FormValue("metadata"); payload != "" {
		var form struct {
			Duration int64     `json:"duration"`
			Waveform []float64 `json:"waveform"`
			Width    int       `json:"width"`
			Height   int       `json:"height"`
		}
		if err := json.Unmarshal([]byte(payload), &form); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid metadata",
			})
		}
		metadata = models.MediaMetadata{
			Duration: time.Duration(form.Duration) * time.Millisecond,
			Waveform: form.Waveform,
			Width:    form.Width,
			Height:   form.Height,
		}
	}

	file, err := c.FormFile("source")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid file",
		})
	}

	reader, err := file.Open()
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	defer reader.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	head = head[:n]

	media, err := libCtr.srv.NewUpload(context.TODO(), c.Params("projectId"), url, head, metadata)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedMediaType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unsupported mime-type",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"media": media,
	})
}

// media returns json with media by id.
func (libCtr *libraryController) media(c *fiber.Ctx) error {
	media, err := libCtr.srv.Media(context.TODO(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "media not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"media": media,
	})
}

// completeMedia is the generation callback: attaches the produced
// asset url and marks the item ready for the timeline.
func (libCtr *libraryController) completeMedia(c *fiber.Ctx) error {
	form := new(struct {
		URL      string `json:"url"`
		Duration int64  `json:"duration"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	if form.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url required",
		})
	}

	media, err := libCtr.srv.CompleteMedia(context.TODO(), c.Params("id"), form.URL, models.MediaMetadata{
		Duration: time.Duration(form.Duration) * time.Millisecond,
		Width:    form.Width,
		Height:   form.Height,
	})
	if err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "media not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"media": media,
	})
}

func (libCtr *libraryController) failMedia(c *fiber.Ctx) error {
	if err := libCtr.srv.FailMedia(context.TODO(), c.Params("id")); err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "media not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (libCtr *libraryController) deleteMedia(c *fiber.Ctx) error {
	if err := libCtr.srv.DeleteMedia(context.TODO(), c.Params("id")); err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "media not found",
			})
		}
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
