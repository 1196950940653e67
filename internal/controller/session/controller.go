package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	jwtController "github.com/montagehq/montage/internal/controller/jwt"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	sessionSrv "github.com/montagehq/montage/internal/service/session"
)

// New returns a fiber.App serving the editing sessions: the
// transient state machine plus every clip gesture scoped to a
// session's undo history.
func New(
	manager *sessionSrv.Manager,
	jwtC *jwtController.JWT,
) *fiber.App {
	ctr := sessionController{manager: manager}

	app := fiber.New()

	app.Use(jwtC.AuthRequired())

	app.Post("/", ctr.open)
	app.Get("/:id/state", ctr.state)
	app.Delete("/:id", ctr.close)

	app.Post("/:id/tool", ctr.setTool)

	app.Post("/:id/selection", ctr.selectClip)
	app.Put("/:id/selection", ctr.selectClips)
	app.Delete("/:id/selection", ctr.clearSelection)
	app.Post("/:id/selection-box/begin", ctr.beginSelectionBox)
	app.Put("/:id/selection-box", ctr.updateSelectionBox)
	app.Post("/:id/selection-box/end", ctr.endSelectionBox)

	app.Post("/:id/drag/start", ctr.startDrag)
	app.Post("/:id/drag/end", ctr.endDrag)

	app.Post("/:id/cut-preview", ctr.setCutPreview)
	app.Delete("/:id/cut-preview", ctr.clearCutPreview)

	app.Post("/:id/snap", ctr.setSnap)
	app.Post("/:id/magnetic", ctr.setMagnetic)
	app.Post("/:id/ripple", ctr.setRipple)
	app.Post("/:id/paste-mode", ctr.setPasteMode)

	app.Post("/:id/markers", ctr.addMarker)
	app.Delete("/:id/markers/:markerId", ctr.removeMarker)

	app.Post("/:id/copy", ctr.copySelection)
	app.Post("/:id/paste", ctr.paste)
	app.Post("/:id/duplicate", ctr.duplicateSelection)
	app.Delete("/:id/selection/clips", ctr.deleteSelection)

	app.Post("/:id/undo", ctr.undo)
	app.Post("/:id/redo", ctr.redo)

	app.Post("/:id/clips/:clipId/split", ctr.split)
	app.Post("/:id/clips/:clipId/move", ctr.move)
	app.Post("/:id/clips/:clipId/resize", ctr.resize)
	app.Post("/:id/clips/:clipId/duplicate", ctr.duplicateClip)
	app.Delete("/:id/clips/:clipId", ctr.deleteClip)
	app.Post("/:id/split-at", ctr.splitAt)
	app.Post("/:id/drop", ctr.drop)

	return app
}

type sessionController struct {
	manager *sessionSrv.Manager
}

func (ctr *sessionController) session(c *fiber.Ctx) (*sessionSrv.Session, error) {
	s, err := ctr.manager.Session(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}
	return s, nil
}

// stateView flattens the transient state for the wire: durations
// become millisecond integers.
func stateView(state models.TimelineState) fiber.Map {
	view := fiber.Map{
		"activeTool":   state.ActiveTool,
		"selected":     state.SelectedIDs(),
		"snapEnabled":  state.SnapEnabled,
		"magneticSnap": state.MagneticSnap,
		"snapDistance": state.SnapDistance.Milliseconds(),
		"ripple":       state.Ripple,
		"pasteMode":    state.Clipboard.PasteMode,
		"clipboardLen": len(state.Clipboard.Copied),
	}

	markers := make([]fiber.Map, 0, len(state.Markers))
	for _, m := range state.Markers {
		markers = append(markers, fiber.Map{
			"id":        m.ID,
			"timestamp": m.Timestamp.Milliseconds(),
			"label":     m.Label,
			"color":     m.Color,
			"type":      m.Type,
		})
	}
	view["markers"] = markers

	if state.SelectionBox != nil {
		view["selectionBox"] = state.SelectionBox
	}
	if state.Drag != nil {
		view["drag"] = fiber.Map{
			"clipId":         state.Drag.ClipID,
			"kind":           state.Drag.Kind,
			"startX":         state.Drag.StartX,
			"startTimestamp": state.Drag.StartTimestamp.Milliseconds(),
			"startDuration":  state.Drag.StartDuration.Milliseconds(),
		}
	}
	if state.CutPreview != nil {
		view["cutPreview"] = fiber.Map{
			"trackId":  state.CutPreview.TrackID,
			"position": state.CutPreview.Position.Milliseconds(),
		}
	}

	return view
}

func stateResponse(c *fiber.Ctx, state models.TimelineState) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"state": stateView(state),
	})
}

// errorResponse maps service sentinels onto http statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrClipNotFound),
		errors.Is(err, service.ErrTrackNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrMediaNotFound),
		errors.Is(err, service.ErrMarkerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrSplitOutOfBounds),
		errors.Is(err, service.ErrClipTooShort),
		errors.Is(err, service.ErrClipboardEmpty),
		errors.Is(err, service.ErrInvalidTool),
		errors.Is(err, service.ErrNothingToUndo),
		errors.Is(err, service.ErrNothingToRedo):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrTrackLocked),
		errors.Is(err, service.ErrDragInProgress),
		errors.Is(err, service.ErrToolPrecondition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusInternalServerError)
}

func clipView(f models.KeyFrame) fiber.Map {
	return fiber.Map{
		"id":        f.ID,
		"trackId":   f.TrackID,
		"timestamp": f.Timestamp.Milliseconds(),
		"duration":  f.Duration.Milliseconds(),
		"data":      f.Data,
	}
}

func clipsView(frames []models.KeyFrame) []fiber.Map {
	res := make([]fiber.Map, 0, len(frames))
	for _, f := range frames {
		res = append(res, clipView(f))
	}
	return res
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (ctr *sessionController) open(c *fiber.Ctx) error {
	form := new(struct {
		ProjectID string `json:"projectId"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}
	if form.ProjectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "projectId required",
		})
	}

	s := ctr.manager.Open(form.ProjectID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sessionId": s.ID,
		"state":     stateView(s.State()),
	})
}

func (ctr *sessionController) state(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"state":   stateView(s.State()),
		"canUndo": s.CanUndo(),
		"canRedo": s.CanRedo(),
	})
}

func (ctr *sessionController) close(c *fiber.Ctx) error {
	ctr.manager.Close(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (ctr *sessionController) setTool(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Tool models.Tool `json:"tool"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	state, err := s.SetActiveTool(form.Tool)
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) selectClip(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		ClipID string `json:"clipId"`
		Multi  bool   `json:"multi"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}
	if form.ClipID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "clipId required",
		})
	}

	return stateResponse(c, s.SelectClip(form.ClipID, form.Multi))
}

func (ctr *sessionController) selectClips(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		ClipIDs []string `json:"clipIds"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	return stateResponse(c, s.SelectClips(form.ClipIDs))
}

func (ctr *sessionController) clearSelection(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	return stateResponse(c, s.ClearSelection())
}

func (ctr *sessionController) beginSelectionBox(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	state, err := s.BeginSelectionBox(form.X, form.Y)
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) updateSelectionBox(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	state, err := s.UpdateSelectionBox(form.X, form.Y)
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) endSelectionBox(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		ClipIDs []string `json:"clipIds"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	return stateResponse(c, s.EndSelectionBox(form.ClipIDs))
}

func (ctr *sessionController) startDrag(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		ClipID         string          `json:"clipId"`
		Kind           models.DragKind `json:"kind"`
		StartX         float64         `json:"startX"`
		StartTimestamp int64           `json:"startTimestamp"`
		StartDuration  int64           `json:"startDuration"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}
	if form.ClipID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "clipId required",
		})
	}

	state, err := s.StartDrag(models.DragState{
		ClipID:         form.ClipID,
		Kind:           form.Kind,
		StartX:         form.StartX,
		StartTimestamp: ms(form.StartTimestamp),
		StartDuration:  ms(form.StartDuration),
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) endDrag(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	return stateResponse(c, s.EndDrag())
}

func (ctr *sessionController) setCutPreview(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		TrackID  string `json:"trackId"`
		Position int64  `json:"position"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	state, err := s.SetCutPreview(form.TrackID, ms(form.Position))
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) clearCutPreview(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	return stateResponse(c, s.ClearCutPreview())
}

func (ctr *sessionController) setSnap(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Enabled bool `json:"enabled"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	return stateResponse(c, s.SetSnap(form.Enabled))
}

func (ctr *sessionController) setMagnetic(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Enabled bool `json:"enabled"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	return stateResponse(c, s.SetMagneticSnap(form.Enabled))
}

func (ctr *sessionController) setRipple(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Enabled bool `json:"enabled"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	return stateResponse(c, s.SetRipple(form.Enabled))
}

func (ctr *sessionController) setPasteMode(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Mode models.PasteMode `json:"mode"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}
	if form.Mode != models.PasteOverwrite && form.Mode != models.PasteInsert {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown paste mode",
		})
	}

	return stateResponse(c, s.SetPasteMode(form.Mode))
}

func (ctr *sessionController) addMarker(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Timestamp int64             `json:"timestamp"`
		Label     string            `json:"label"`
		Color     string            `json:"color"`
		Type      models.MarkerType `json:"type"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	return stateResponse(c, s.AddMarker(models.Marker{
		Timestamp: ms(form.Timestamp),
		Label:     form.Label,
		Color:     form.Color,
		Type:      form.Type,
	}))
}

func (ctr *sessionController) removeMarker(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	state, err := s.RemoveMarker(c.Params("markerId"))
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) copySelection(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	state, err := s.CopySelection(context.TODO())
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) paste(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		At int64 `json:"at"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	created, err := s.PasteClipboard(context.TODO(), ms(form.At))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"clips": clipsView(created),
		"state": stateView(s.State()),
	})
}

func (ctr *sessionController) duplicateSelection(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	clones, err := s.DuplicateSelection(context.TODO())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"clips": clipsView(clones),
		"state": stateView(s.State()),
	})
}

func (ctr *sessionController) deleteSelection(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	state, err := s.DeleteSelection(context.TODO())
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) undo(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	state, err := s.Undo(context.TODO())
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) redo(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	state, err := s.Redo(context.TODO())
	if err != nil {
		return errorResponse(c, err)
	}

	return stateResponse(c, state)
}

func (ctr *sessionController) split(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Offset int64 `json:"offset"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	second, err := s.Clips().Split(context.TODO(), c.Params("clipId"), ms(form.Offset))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"clip": clipView(second),
	})
}

func (ctr *sessionController) move(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Timestamp int64 `json:"timestamp"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	moved, err := s.Clips().Move(context.TODO(), c.Params("clipId"), ms(form.Timestamp), s.State().SnapOptions())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"clip": clipView(moved),
	})
}

func (ctr *sessionController) resize(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Kind   models.DragKind `json:"kind"`
		Target int64           `json:"target"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}
	if form.Kind != models.DragResizeLeft && form.Kind != models.DragResizeRight {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown resize kind",
		})
	}

	resized, err := s.Clips().Resize(context.TODO(), c.Params("clipId"), form.Kind, ms(form.Target), s.State().SnapOptions())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"clip": clipView(resized),
	})
}

func (ctr *sessionController) duplicateClip(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	clone, err := s.Clips().Duplicate(context.TODO(), c.Params("clipId"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"clip": clipView(clone),
	})
}

func (ctr *sessionController) deleteClip(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	ripple := c.QueryBool("ripple", s.State().Ripple)

	if err := s.Clips().Delete(context.TODO(), c.Params("clipId"), ripple); err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (ctr *sessionController) splitAt(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		Position int64 `json:"position"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	created, err := s.Clips().SplitAt(context.TODO(), s.ProjectID, ms(form.Position))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"clips": clipsView(created),
	})
}

func (ctr *sessionController) drop(c *fiber.Ctx) error {
	s, err := ctr.session(c)
	if err != nil {
		return err
	}

	form := new(struct {
		At      int64             `json:"at"`
		Media   *models.MediaItem `json:"media"`
		MediaID string            `json:"mediaId"`
	})
	if err := c.BodyParser(form); err != nil {
		return fiber.ErrBadRequest
	}

	payload := models.DropPayload{MediaID: form.MediaID}
	if form.Media != nil {
		payload.Kind = models.DropRecord
		payload.Media = form.Media
	} else if form.MediaID != "" {
		payload.Kind = models.DropIDRef
	} else {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "media or mediaId required",
		})
	}

	frame, err := s.Clips().DropCreate(context.TODO(), s.ProjectID, payload, ms(form.At))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"clip": clipView(frame),
	})
}
