package models

import (
	"encoding/json"
	"time"
)

// All timeline positions and durations are kept as time.Duration
// and serialized as integer milliseconds, which is the precision
// the editing protocol works at.

type Editor struct {
	ID       int64  `json:"id"`
	Login    string `json:"login"`
	PassHash []byte `json:"pass"`
}

// EditorIn is the login form.
type EditorIn struct {
	Login string `json:"login"`
	Pass  string `json:"pass"`
}

const (
	ErrEditorID int64 = 0

	RootID    int64 = -1
	RootLogin       = "root"
)

type AspectRatio string

const (
	AspectWide     AspectRatio = "16:9"
	AspectPortrait AspectRatio = "9:16"
	AspectSquare   AspectRatio = "1:1"
)

type Project struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	AspectRatio AspectRatio `json:"aspectRatio"`
}

type TrackType string

const (
	TrackVideo     TrackType = "video"
	TrackMusic     TrackType = "music"
	TrackVoiceover TrackType = "voiceover"
)

// TrackTypeOrder fixes the display order of track lanes.
var TrackTypeOrder = map[TrackType]int{
	TrackVideo:     1,
	TrackMusic:     2,
	TrackVoiceover: 3,
}

type Track struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Type      TrackType `json:"type"`
	Label     string    `json:"label"`
	Locked    bool      `json:"locked"`
	Muted     bool      `json:"muted"`
	Solo      bool      `json:"solo"`
	Volume    float64   `json:"volume"`
}

// TrackTimeline is a lane with its clips attached, the shape the
// editor surface renders.
type TrackTimeline struct {
	Track Track      `json:"track"`
	Clips []KeyFrame `json:"clips"`
}

type KeyFrameType string

const (
	KeyFramePrompt    KeyFrameType = "prompt"
	KeyFrameImage     KeyFrameType = "image"
	KeyFrameVideo     KeyFrameType = "video"
	KeyFrameVoiceover KeyFrameType = "voiceover"
	KeyFrameMusic     KeyFrameType = "music"
)

// KeyFrameData references the media placed by a clip. MediaID is a
// weak reference: lookup only, no ownership.
type KeyFrameData struct {
	Type    KeyFrameType `json:"type"`
	MediaID string       `json:"mediaId"`
	Prompt  string       `json:"prompt,omitempty"`
	URL     string       `json:"url,omitempty"`
}

// KeyFrame is a time-bounded placement of one media reference on
// one track. Clips on the same track may overlap; the manipulation
// tools avoid it via snapping but nothing enforces it.
type KeyFrame struct {
	ID        string        `json:"id"`
	TrackID   string        `json:"trackId"`
	Timestamp time.Duration `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Data      KeyFrameData  `json:"data"`
}

// End returns the clip's out-point.
func (f KeyFrame) End() time.Duration {
	return f.Timestamp + f.Duration
}

func (f KeyFrame) MarshalJSON() ([]byte, error) {
	type keyFrameJSON KeyFrame

	tmp := struct {
		keyFrameJSON
		Timestamp int64 `json:"timestamp"`
		Duration  int64 `json:"duration"`
	}{
		keyFrameJSON: keyFrameJSON(f),
		Timestamp:    f.Timestamp.Milliseconds(),
		Duration:     f.Duration.Milliseconds(),
	}

	return json.Marshal(tmp)
}

func (f *KeyFrame) UnmarshalJSON(data []byte) error {
	type keyFrameJSON KeyFrame

	tmp := struct {
		*keyFrameJSON
		Timestamp int64 `json:"timestamp"`
		Duration  int64 `json:"duration"`
	}{
		keyFrameJSON: (*keyFrameJSON)(f),
	}

	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	f.Timestamp = time.Duration(tmp.Timestamp) * time.Millisecond
	f.Duration = time.Duration(tmp.Duration) * time.Millisecond

	return nil
}

type MediaKind string

const (
	MediaGenerated MediaKind = "generated"
	MediaUploaded  MediaKind = "uploaded"
)

type MediaType string

const (
	MediaImage     MediaType = "image"
	MediaVideo     MediaType = "video"
	MediaMusic     MediaType = "music"
	MediaVoiceover MediaType = "voiceover"
)

// TrackTypeFor maps a media category to the track lane it lands on.
// Images are placed on the video track.
func TrackTypeFor(mt MediaType) TrackType {
	switch mt {
	case MediaImage, MediaVideo:
		return TrackVideo
	case MediaMusic:
		return TrackMusic
	case MediaVoiceover:
		return TrackVoiceover
	}
	return TrackVideo
}

type MediaStatus string

const (
	MediaPending   MediaStatus = "pending"
	MediaRunning   MediaStatus = "running"
	MediaCompleted MediaStatus = "completed"
	MediaFailed    MediaStatus = "failed"
)

type MediaMetadata struct {
	Duration      time.Duration `json:"duration"`
	Waveform      []float64     `json:"waveform,omitempty"`
	Width         int           `json:"width,omitempty"`
	Height        int           `json:"height,omitempty"`
	StartFrameURL string        `json:"startFrameUrl,omitempty"`
	EndFrameURL   string        `json:"endFrameUrl,omitempty"`
}

func (m MediaMetadata) MarshalJSON() ([]byte, error) {
	type metadataJSON MediaMetadata

	tmp := struct {
		metadataJSON
		Duration int64 `json:"duration"`
	}{
		metadataJSON: metadataJSON(m),
		Duration:     m.Duration.Milliseconds(),
	}

	return json.Marshal(tmp)
}

func (m *MediaMetadata) UnmarshalJSON(data []byte) error {
	type metadataJSON MediaMetadata

	tmp := struct {
		*metadataJSON
		Duration int64 `json:"duration"`
	}{
		metadataJSON: (*metadataJSON)(m),
	}

	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	m.Duration = time.Duration(tmp.Duration) * time.Millisecond

	return nil
}

// MediaItem is an external asset record produced by the generation
// or upload pipeline. Read-only from the timeline's perspective.
type MediaItem struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"projectId"`
	Kind      MediaKind     `json:"kind"`
	MediaType MediaType     `json:"mediaType"`
	Status    MediaStatus   `json:"status"`
	URL       string        `json:"url,omitempty"`
	Prompt    string        `json:"prompt,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Metadata  MediaMetadata `json:"metadata"`
}

// NaturalDuration reports the media's own length, zero if unknown.
func (m MediaItem) NaturalDuration() time.Duration {
	return m.Metadata.Duration
}

type MediaFilter struct {
	Query      string
	Types      []MediaType
	MaxRespLen int
}

// MinTotalDuration is the floor for the derived timeline length.
const MinTotalDuration = 5 * time.Second

// TotalDuration derives the timeline length from the clip set:
// max(5s, latest out-point). Computed, never stored.
func TotalDuration(frames []KeyFrame) time.Duration {
	total := MinTotalDuration
	for _, f := range frames {
		if end := f.End(); end > total {
			total = end
		}
	}
	return total
}

type DropPayloadKind string

const (
	DropRecord DropPayloadKind = "record"
	DropIDRef  DropPayloadKind = "id-ref"
)

// DropPayload is the drag-and-drop input contract: external media
// arrives either as a full record or as a bare id to look up.
type DropPayload struct {
	Kind    DropPayloadKind
	Media   *MediaItem
	MediaID string
}

// ExportClip is one resolved clip handed to the rendering backend.
type ExportClip struct {
	Timestamp time.Duration `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	URL       string        `json:"url"`
	Prompt    string        `json:"prompt,omitempty"`
}

func (c ExportClip) MarshalJSON() ([]byte, error) {
	type exportClipJSON ExportClip

	tmp := struct {
		exportClipJSON
		Timestamp int64 `json:"timestamp"`
		Duration  int64 `json:"duration"`
	}{
		exportClipJSON: exportClipJSON(c),
		Timestamp:      c.Timestamp.Milliseconds(),
		Duration:       c.Duration.Milliseconds(),
	}

	return json.Marshal(tmp)
}

type ExportTrack struct {
	Type   TrackType    `json:"type"`
	Muted  bool         `json:"muted"`
	Volume float64      `json:"volume"`
	Clips  []ExportClip `json:"clips"`
}

type ExportJob struct {
	ProjectID   string        `json:"projectId"`
	AspectRatio AspectRatio   `json:"aspectRatio"`
	Tracks      []ExportTrack `json:"tracks"`
}

type ExportResult struct {
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}
