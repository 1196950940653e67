package tests

import (
	"net/url"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"

	"github.com/montagehq/montage/tests/suite"
)

func TestGenerateMedia(t *testing.T) {
	token, err := suite.RootLogin()
	require.NoError(t, err)

	projectID, err := suite.NewProject(token)
	require.NoError(t, err)

	u := url.URL{
		Scheme: "http",
		Host:   cfg.HTTPServer.Address,
	}
	e := httpexpect.Default(t, u.String())

	prompt := gofakeit.Sentence(8)

	json := e.POST("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithJSON(map[string]string{
			"type":   "video",
			"prompt": prompt,
		}).Expect().
		Status(201).
		JSON()

	json.Object().Keys().ContainsOnly("media")
	json.Path("$.media.kind").String().IsEqual("generated")
	json.Path("$.media.status").String().IsEqual("pending")
	json.Path("$.media.prompt").String().IsEqual(prompt)

	id := json.Path("$.media.id").String().Raw()

	// completion callback attaches the produced asset
	json = e.POST("/library/media/{id}/complete", id).
		WithHeader("Authorization", "Bearer "+token).
		WithJSON(map[string]any{
			"url":      gofakeit.URL(),
			"duration": 8000,
		}).Expect().
		Status(200).
		JSON()

	json.Path("$.media.status").String().IsEqual("completed")
	json.Path("$.media.url").String().NotEmpty()
}

func TestGenerateMediaValidation(t *testing.T) {
	token, err := suite.RootLogin()
	require.NoError(t, err)

	projectID, err := suite.NewProject(token)
	require.NoError(t, err)

	u := url.URL{
		Scheme: "http",
		Host:   cfg.HTTPServer.Address,
	}
	e := httpexpect.Default(t, u.String())

	e.POST("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithJSON(map[string]string{
			"type":   "hologram",
			"prompt": gofakeit.Sentence(4),
		}).Expect().
		Status(400)

	e.POST("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithJSON(map[string]string{
			"type": "video",
		}).Expect().
		Status(400).
		JSON().
		Path("$.error").
		String().
		IsEqualFold("prompt required")
}

func TestSearchMedia(t *testing.T) {
	token, err := suite.RootLogin()
	require.NoError(t, err)

	projectID, err := suite.NewProject(token)
	require.NoError(t, err)

	u := url.URL{
		Scheme: "http",
		Host:   cfg.HTTPServer.Address,
	}
	e := httpexpect.Default(t, u.String())

	prompts := []string{
		"sunset over the ocean",
		"city at night",
		"forest in the morning",
	}
	for _, p := range prompts {
		e.POST("/library/{id}/media", projectID).
			WithHeader("Authorization", "Bearer "+token).
			WithJSON(map[string]string{
				"type":   "image",
				"prompt": p,
			}).Expect().
			Status(201)
	}

	// closest prompt ranks first
	lib := e.GET("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithQuery("q", "sunset ocean").
		Expect().
		Status(200).
		JSON().
		Path("$.library").
		Array()

	lib.Length().IsEqual(3)
	lib.Value(0).Object().Path("$.prompt").String().IsEqual("sunset over the ocean")

	// type filter drops everything else
	e.GET("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithQuery("types", "music").
		Expect().
		Status(200).
		JSON().
		Path("$.library").
		Array().
		IsEmpty()

	// response length cap
	e.GET("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithQuery("res_len", 2).
		Expect().
		Status(200).
		JSON().
		Path("$.library").
		Array().
		Length().
		IsEqual(2)
}

func TestDeleteMedia(t *testing.T) {
	token, err := suite.RootLogin()
	require.NoError(t, err)

	projectID, err := suite.NewProject(token)
	require.NoError(t, err)

	u := url.URL{
		Scheme: "http",
		Host:   cfg.HTTPServer.Address,
	}
	e := httpexpect.Default(t, u.String())

	id := e.POST("/library/{id}/media", projectID).
		WithHeader("Authorization", "Bearer "+token).
		WithJSON(map[string]string{
			"type":   "music",
			"prompt": gofakeit.Sentence(4),
		}).Expect().
		Status(201).
		JSON().
		Path("$.media.id").
		String().
		Raw()

	e.DELETE("/library/media/{id}", id).
		WithHeader("Authorization", "Bearer "+token).
		Expect().
		Status(204)

	e.GET("/library/media/{id}", id).
		WithHeader("Authorization", "Bearer "+token).
		Expect().
		Status(404)
}
