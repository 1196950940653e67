package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montagehq/montage/internal/models"
)

func TestTypeMatches(t *testing.T) {
	testCases := []struct {
		desc   string
		media  models.MediaItem
		types  []models.MediaType
		expect bool
	}{
		{
			desc:   "empty filter matches all",
			media:  models.MediaItem{MediaType: models.MediaVideo},
			types:  nil,
			expect: true,
		},
		{
			desc:   "matching type",
			media:  models.MediaItem{MediaType: models.MediaMusic},
			types:  []models.MediaType{models.MediaMusic},
			expect: true,
		},
		{
			desc:   "one of several",
			media:  models.MediaItem{MediaType: models.MediaImage},
			types:  []models.MediaType{models.MediaVideo, models.MediaImage},
			expect: true,
		},
		{
			desc:   "non-matching type",
			media:  models.MediaItem{MediaType: models.MediaVoiceover},
			types:  []models.MediaType{models.MediaVideo},
			expect: false,
		},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Equal(t, tC.expect, typeMatches(tC.media, tC.types))
		})
	}
}

func TestFilterRank(t *testing.T) {
	lib := []models.MediaItem{
		{ID: "1", MediaType: models.MediaVideo, Prompt: "sunset over the ocean"},
		{ID: "2", MediaType: models.MediaVideo, Prompt: "Sunset Over The Ocean"},
		{ID: "3", MediaType: models.MediaVideo, Prompt: "city traffic at night"},
		{ID: "4", MediaType: models.MediaMusic, Prompt: "sunset over the ocean"},
	}

	t.Run("ranks by prompt distance, case folded", func(t *testing.T) {
		ranked := filterRank(lib, models.MediaFilter{Query: "sunset over the ocean"})
		require.Len(t, ranked, 4)

		// Exact and case-only matches rank zero, ahead of the rest.
		assert.Equal(t, 0, ranked[0].rank)
		assert.Equal(t, 0, ranked[1].rank)
		assert.Equal(t, "3", ranked[3].media.ID)
	})

	t.Run("filters by category", func(t *testing.T) {
		ranked := filterRank(lib, models.MediaFilter{
			Query: "sunset",
			Types: []models.MediaType{models.MediaMusic},
		})
		require.Len(t, ranked, 1)
		assert.Equal(t, "4", ranked[0].media.ID)
	})

	t.Run("uploads without prompt fall back to url", func(t *testing.T) {
		ranked := filterRank([]models.MediaItem{
			{ID: "u", MediaType: models.MediaVideo, URL: "clip.mp4"},
		}, models.MediaFilter{Query: "clip.mp4"})
		require.Len(t, ranked, 1)
		assert.Equal(t, 0, ranked[0].rank)
	})
}

func TestStringTransform(t *testing.T) {
	assert.Equal(t, "sunset", stringTransform("SUNSET"))
	assert.Equal(t, "cafe", stringTransform("café"))
}

func TestSniffMediaType(t *testing.T) {
	// PNG and RIFF/WAVE magic numbers.
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	wav := append([]byte("RIFF"), append([]byte{0, 0, 0, 0}, []byte("WAVE")...)...)

	mt, err := sniffMediaType(png)
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, mt)

	mt, err = sniffMediaType(wav)
	require.NoError(t, err)
	assert.Equal(t, models.MediaMusic, mt)

	_, err = sniffMediaType([]byte("plain text, not media"))
	assert.Error(t, err)
}
