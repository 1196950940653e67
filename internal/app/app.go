package app

import (
	"log/slog"
	"os"

	routerApp "github.com/montagehq/montage/internal/app/router"
	"github.com/montagehq/montage/internal/config"
	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/storage/sqlite"
)

type App struct {
	Router routerApp.App
}

func New(
	log *slog.Logger,
	cfg *config.Config,
	secret []byte,
	rootPass []byte,
) *App {
	storage, err := sqlite.New(cfg.StoragePath)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	routerApp := routerApp.New(
		log,
		storage,
		routerApp.Params{
			Address:             cfg.HTTPServer.Address,
			Timeout:             cfg.HTTPServer.Timeout,
			TokenTTL:            cfg.TokenTTL,
			Secret:              secret,
			RootPass:            rootPass,
			DefaultClipDuration: cfg.Editor.DefaultClipDuration,
			MaxClipDuration:     cfg.Editor.MaxClipDuration,
			AutoSaveDir:         cfg.AutoSave.Dir,
			AutoSaveInterval:    cfg.AutoSave.Interval,
			MinBufferTime:       cfg.Preview.MinBufferTime,
			RenderAddr:          cfg.Render.Address,
			RenderTimeout:       cfg.Render.Timeout,
			RenderRetries:       cfg.Render.RetriesCount,
		},
	)

	return &App{
		Router: *routerApp,
	}
}
