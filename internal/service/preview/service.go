package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/zencoder/go-dash/v3/mpd"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	ptr "github.com/montagehq/montage/internal/lib/utils/pointers"
	"github.com/montagehq/montage/internal/models"
)

// Preview builds a static DASH manifest for a project so the
// player can scrub the timeline without waiting for a full render.
// Each completed clip becomes one period pointing at its media by
// base url; gaps simply have no period.
type Preview struct {
	log           *slog.Logger
	frames        KeyFrameStorage
	tracks        TrackStorage
	minBufferTime time.Duration
}

type KeyFrameStorage interface {
	KeyFramesByTrack(ctx context.Context, trackID string) ([]models.KeyFrame, error)
	KeyFramesByProject(ctx context.Context, projectID string) ([]models.KeyFrame, error)
}

type TrackStorage interface {
	TracksByProject(ctx context.Context, projectID string) ([]models.Track, error)
}

func New(
	log *slog.Logger,
	frames KeyFrameStorage,
	tracks TrackStorage,
	minBufferTime time.Duration,
) *Preview {
	return &Preview{
		log:           log,
		frames:        frames,
		tracks:        tracks,
		minBufferTime: minBufferTime,
	}
}

// Manifest renders the project's current timeline as a static MPD.
func (p *Preview) Manifest(ctx context.Context, projectID string) (string, error) {
	const op = "Preview.Manifest"

	log := p.log.With(slog.String("op", op), slog.String("projectID", projectID))

	tracks, err := p.tracks.TracksByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list tracks", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	all, err := p.frames.KeyFramesByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list clips", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	total := mpd.Duration(models.TotalDuration(all))
	bufferTime := mpd.Duration(p.minBufferTime)

	man := mpd.NewMPD(
		mpd.DASH_PROFILE_ONDEMAND,
		total.String(),
		bufferTime.String(),
	)
	man.Periods = nil

	trackByID := make(map[string]models.Track, len(tracks))
	for _, t := range tracks {
		trackByID[t.ID] = t
	}

	playable := make([]models.KeyFrame, 0, len(all))
	for _, f := range all {
		// Clips without delivered media cannot be previewed yet.
		if f.Data.URL == "" {
			continue
		}
		if t, ok := trackByID[f.TrackID]; ok && t.Muted {
			continue
		}
		playable = append(playable, f)
	}

	sort.Slice(playable, func(i, j int) bool {
		return playable[i].Timestamp < playable[j].Timestamp
	})

	for i, f := range playable {
		track := trackByID[f.TrackID]

		man.Periods = append(man.Periods, &mpd.Period{
			ID:       strconv.Itoa(i + 1),
			Start:    ptr.Ptr(mpd.Duration(f.Timestamp)),
			Duration: mpd.Duration(f.Duration),
			BaseURL:  []string{f.Data.URL},
			AdaptationSets: []*mpd.AdaptationSet{
				adaptationSet(track.Type),
			},
		})
	}

	out, err := man.WriteToString()
	if err != nil {
		log.Error("failed to render manifest", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("rendered manifest", slog.Int("periods", len(playable)))

	return out, nil
}

func adaptationSet(trackType models.TrackType) *mpd.AdaptationSet {
	if trackType == models.TrackVideo {
		return &mpd.AdaptationSet{
			ID:               ptr.Ptr("0"),
			ContentType:      ptr.Ptr("video"),
			SegmentAlignment: ptr.Ptr(true),
			Representations: []*mpd.Representation{{
				ID:        ptr.Ptr("0"),
				Bandwidth: ptr.Ptr[int64](4_000_000),
				Codecs:    ptr.Ptr("avc1.640028"),
				CommonAttributesAndElements: mpd.CommonAttributesAndElements{
					MimeType: ptr.Ptr(mpd.DASH_MIME_TYPE_VIDEO_MP4),
				},
			}},
		}
	}

	return &mpd.AdaptationSet{
		ID:               ptr.Ptr("0"),
		ContentType:      ptr.Ptr("audio"),
		SegmentAlignment: ptr.Ptr(true),
		Representations: []*mpd.Representation{{
			ID:                ptr.Ptr("0"),
			AudioSamplingRate: ptr.Ptr[int64](44100),
			Bandwidth:         ptr.Ptr[int64](96000),
			Codecs:            ptr.Ptr("mp4a.40.2"),
			CommonAttributesAndElements: mpd.CommonAttributesAndElements{
				MimeType: ptr.Ptr(mpd.DASH_MIME_TYPE_AUDIO_MP4),
			},
			AudioChannelConfiguration: &mpd.AudioChannelConfiguration{
				SchemeIDURI: ptr.Ptr("urn:mpeg:dash:23003:3:audio_channel_configuration:2011"),
				Value:       ptr.Ptr("2"),
			},
		}},
	}
}
