package storage

import "errors"

var (
	ErrProjectExists    = errors.New("project exists")
	ErrProjectNotFound  = errors.New("project not found")
	ErrTrackExists      = errors.New("track exists")
	ErrTrackNotFound    = errors.New("track not found")
	ErrKeyFrameExists   = errors.New("key frame exists")
	ErrKeyFrameNotFound = errors.New("key frame not found")
	ErrMediaExists      = errors.New("media exists")
	ErrMediaNotFound    = errors.New("media not found")
)
