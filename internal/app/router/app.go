package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	renderClient "github.com/montagehq/montage/internal/client/render"
	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/storage/sqlite"

	authSrv "github.com/montagehq/montage/internal/service/auth"
	autosaveSrv "github.com/montagehq/montage/internal/service/autosave"
	exportSrv "github.com/montagehq/montage/internal/service/export"
	jwtSrv "github.com/montagehq/montage/internal/service/jwt"
	librarySrv "github.com/montagehq/montage/internal/service/library"
	previewSrv "github.com/montagehq/montage/internal/service/preview"
	projectsSrv "github.com/montagehq/montage/internal/service/projects"
	sessionSrv "github.com/montagehq/montage/internal/service/session"

	authCtr "github.com/montagehq/montage/internal/controller/auth"
	autosaveCtr "github.com/montagehq/montage/internal/controller/autosave"
	exportCtr "github.com/montagehq/montage/internal/controller/export"
	jwtCtr "github.com/montagehq/montage/internal/controller/jwt"
	libraryCtr "github.com/montagehq/montage/internal/controller/library"
	previewCtr "github.com/montagehq/montage/internal/controller/preview"
	projectsCtr "github.com/montagehq/montage/internal/controller/projects"
	sessionCtr "github.com/montagehq/montage/internal/controller/session"
)

// refreshChanCap bounds the autosave notification queue: senders
// never block, extra notifications for a dirty project coalesce.
const refreshChanCap = 64

type App struct {
	log      *slog.Logger
	address  string
	app      *fiber.App
	autoSave *autosaveSrv.AutoSave
}

// Params collects the knobs the router needs beyond the storage
// handle.
type Params struct {
	Address             string
	Timeout             time.Duration
	TokenTTL            time.Duration
	Secret              []byte
	RootPass            []byte
	DefaultClipDuration time.Duration
	MaxClipDuration     time.Duration
	AutoSaveDir         string
	AutoSaveInterval    time.Duration
	MinBufferTime       time.Duration
	RenderAddr          string
	RenderTimeout       time.Duration
	RenderRetries       int
}

// New returns configured router.App
func New(
	log *slog.Logger,
	storage *sqlite.Storage,
	p Params,
) *App {
	refreshChan := make(chan string, refreshChanCap)

	// Create services
	jwt := jwtSrv.New(p.Secret)

	rootPassHash, err := bcrypt.GenerateFromPassword(p.RootPass, bcrypt.DefaultCost)
	if err != nil {
		panic("invalid root password")
	}
	auth := authSrv.New(
		log,
		jwt,
		rootPassHash,
		p.TokenTTL,
	)

	projects := projectsSrv.New(
		log,
		storage,
		storage,
		storage,
		refreshChan,
	)

	library := librarySrv.New(
		log,
		storage,
	)

	sessions := sessionSrv.NewManager(
		log,
		storage,
		storage,
		storage,
		refreshChan,
		p.DefaultClipDuration,
		p.MaxClipDuration,
	)

	preview := previewSrv.New(
		log,
		storage,
		storage,
		p.MinBufferTime,
	)

	renderer := renderClient.New(
		log,
		p.RenderAddr,
		p.RenderTimeout,
		p.RenderRetries,
	)

	export := exportSrv.New(
		log,
		storage,
		storage,
		storage,
		storage,
		renderer,
	)

	autoSave := autosaveSrv.New(
		log,
		storage,
		storage,
		storage,
		p.AutoSaveDir,
		p.AutoSaveInterval,
		refreshChan,
	)

	// Create controller helper
	jwtCtr := jwtCtr.New(p.Secret)

	app := fiber.New()

	// Mount controllers to an app
	app.Mount("/login", authCtr.New(p.Timeout, auth))
	app.Mount("/projects", projectsCtr.New(projects, jwtCtr))
	app.Mount("/library", libraryCtr.New(library, jwtCtr))
	app.Mount("/session", sessionCtr.New(sessions, jwtCtr))
	app.Mount("/preview", previewCtr.New(preview, jwtCtr))
	app.Mount("/export", exportCtr.New(export, jwtCtr))
	app.Mount("/autosave", autosaveCtr.New(autoSave, jwtCtr))

	return &App{
		log:      log,
		address:  p.Address,
		app:      app,
		autoSave: autoSave,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	go func() {
		if err := a.autoSave.Run(context.Background()); err != nil {
			a.log.Error("autosave stopped", sl.Err(err))
		}
	}()

	return a.app.Listen(a.address)
}

func (a *App) Stop() {
	a.autoSave.Stop()
	a.app.Shutdown()
}
