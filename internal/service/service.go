package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")

	ErrProjectNotFound = errors.New("project not found")
	ErrTrackNotFound   = errors.New("track not found")
	ErrTrackLocked     = errors.New("track is locked")
	ErrClipNotFound    = errors.New("clip not found")
	ErrMediaNotFound   = errors.New("media not found")
	ErrMediaNotReady   = errors.New("media is not ready")

	ErrUnsupportedMediaType = errors.New("unsupported media type")

	ErrSplitOutOfBounds = errors.New("split point out of bounds")
	ErrClipTooShort     = errors.New("clip below minimum duration")
	ErrClipboardEmpty   = errors.New("clipboard is empty")

	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	ErrDragInProgress   = errors.New("drag gesture in progress")
	ErrToolPrecondition = errors.New("active tool does not allow this operation")
	ErrInvalidTool      = errors.New("unknown tool")
	ErrMarkerNotFound   = errors.New("marker not found")
	ErrSessionNotFound  = errors.New("session not found")

	ErrRenderFailed = errors.New("render failed")
)
