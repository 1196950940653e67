package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	chans "github.com/montagehq/montage/internal/lib/utils/channels"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"
	"github.com/montagehq/montage/internal/storage"
)

// AutoSave periodically snapshots dirty projects to disk. A
// project becomes dirty when any timeline mutation announces it on
// the refresh channel; one in-flight save per project at a time,
// ticks that land mid-save are skipped rather than queued.
type AutoSave struct {
	log      *slog.Logger
	projects ProjectStorage
	tracks   TrackStorage
	frames   KeyFrameStorage
	dir      string
	interval time.Duration

	refreshChan <-chan string
	stopChan    chan struct{}

	mu        sync.Mutex
	dirty     map[string]struct{}
	inFlight  map[string]struct{}
	lastSaved map[string]time.Time
	lastErr   map[string]string
	runMutex  sync.Mutex
}

// ProjectStatus reports the save state of one project.
type ProjectStatus struct {
	ProjectID string    `json:"projectId"`
	Dirty     bool      `json:"dirty"`
	LastSaved time.Time `json:"lastSaved,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type ProjectStorage interface {
	Project(ctx context.Context, id string) (models.Project, error)
}

type TrackStorage interface {
	TracksByProject(ctx context.Context, projectID string) ([]models.Track, error)
}

type KeyFrameStorage interface {
	KeyFramesByTrack(ctx context.Context, trackID string) ([]models.KeyFrame, error)
}

func New(
	log *slog.Logger,
	projects ProjectStorage,
	tracks TrackStorage,
	frames KeyFrameStorage,
	dir string,
	interval time.Duration,
	refreshChan <-chan string,
) *AutoSave {
	return &AutoSave{
		log:         log,
		projects:    projects,
		tracks:      tracks,
		frames:      frames,
		dir:         dir,
		interval:    interval,
		refreshChan: refreshChan,
		stopChan:    make(chan struct{}),
		dirty:       make(map[string]struct{}),
		inFlight:    make(map[string]struct{}),
		lastSaved:   make(map[string]time.Time),
		lastErr:     make(map[string]string),
	}
}

// snapshot is the on-disk project backup format.
type snapshot struct {
	Project models.Project  `json:"project"`
	Tracks  []trackSnapshot `json:"tracks"`
	SavedAt time.Time       `json:"savedAt"`
}

type trackSnapshot struct {
	models.Track
	Clips []models.KeyFrame `json:"clips"`
}

// Run consumes dirty marks and flushes them on every tick until
// the context or Stop ends it.
func (a *AutoSave) Run(ctx context.Context) error {
	const op = "AutoSave.Run"

	a.runMutex.Lock()
	defer a.runMutex.Unlock()

	log := a.log.With(slog.String("op", op))

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		log.Error("failed to create snapshot dir", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	log.Info("start autosave", slog.String("dir", a.dir))

main_loop:
	for {
		select {
		case projectID := <-a.refreshChan:
			a.markDirty(projectID)
		case <-ticker.C:
			a.flush(ctx, false)
		case <-a.stopChan:
			log.Debug("got stop chan")
			break main_loop
		case <-ctx.Done():
			log.Debug("context cancelled")
			break main_loop
		}
	}

	// Final flush so a clean shutdown loses nothing.
	a.flush(context.WithoutCancel(ctx), true)

	log.Info("finish autosave")

	return nil
}

// Stop ends the run loop.
func (a *AutoSave) Stop() {
	chans.Notify(a.stopChan)
}

func (a *AutoSave) markDirty(projectID string) {
	a.mu.Lock()
	a.dirty[projectID] = struct{}{}
	a.mu.Unlock()
}

// Status reports every project the saver has touched or still owes
// a save.
func (a *AutoSave) Status() []ProjectStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make(map[string]struct{}, len(a.lastSaved)+len(a.dirty))
	for id := range a.lastSaved {
		ids[id] = struct{}{}
	}
	for id := range a.lastErr {
		ids[id] = struct{}{}
	}
	for id := range a.dirty {
		ids[id] = struct{}{}
	}

	res := make([]ProjectStatus, 0, len(ids))
	for id := range ids {
		_, dirty := a.dirty[id]
		res = append(res, ProjectStatus{
			ProjectID: id,
			Dirty:     dirty,
			LastSaved: a.lastSaved[id],
			LastError: a.lastErr[id],
		})
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].ProjectID < res[j].ProjectID
	})

	return res
}

// flush saves every dirty project not already being saved. With
// wait set it blocks until all saves finish, used on shutdown.
func (a *AutoSave) flush(ctx context.Context, wait bool) {
	a.mu.Lock()
	pending := make([]string, 0, len(a.dirty))
	for id := range a.dirty {
		if _, busy := a.inFlight[id]; busy {
			continue
		}
		a.inFlight[id] = struct{}{}
		delete(a.dirty, id)
		pending = append(pending, id)
	}
	a.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range pending {
		wg.Add(1)
		go func(projectID string) {
			defer wg.Done()
			defer func() {
				a.mu.Lock()
				delete(a.inFlight, projectID)
				a.mu.Unlock()
			}()

			if err := a.Save(ctx, projectID); err != nil {
				// Deleted projects just fall out of the dirty set.
				if errors.Is(err, service.ErrProjectNotFound) {
					return
				}
				a.log.Error("autosave failed", slog.String("projectID", projectID), sl.Err(err))
				a.mu.Lock()
				a.lastErr[projectID] = err.Error()
				a.mu.Unlock()
				a.markDirty(projectID)
			}
		}(id)
	}

	if wait {
		wg.Wait()
	}
}

// Save snapshots one project immediately.
func (a *AutoSave) Save(ctx context.Context, projectID string) error {
	const op = "AutoSave.Save"

	log := a.log.With(slog.String("op", op), slog.String("projectID", projectID))

	project, err := a.projects.Project(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			return service.ErrProjectNotFound
		}
		log.Error("failed to get project", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	tracks, err := a.tracks.TracksByProject(ctx, projectID)
	if err != nil {
		log.Error("failed to list tracks", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	snap := snapshot{
		Project: project,
		Tracks:  make([]trackSnapshot, 0, len(tracks)),
		SavedAt: time.Now(),
	}

	for _, track := range tracks {
		clips, err := a.frames.KeyFramesByTrack(ctx, track.ID)
		if err != nil {
			log.Error("failed to list clips", sl.Err(err), slog.String("trackID", track.ID))
			return fmt.Errorf("%s: %w", op, err)
		}
		snap.Tracks = append(snap.Tracks, trackSnapshot{Track: track, Clips: clips})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Write-then-rename keeps the previous snapshot intact if the
	// process dies mid-write.
	path := filepath.Join(a.dir, projectID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error("failed to write snapshot", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Error("failed to commit snapshot", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	a.mu.Lock()
	a.lastSaved[projectID] = snap.SavedAt
	delete(a.lastErr, projectID)
	a.mu.Unlock()

	log.Debug("saved snapshot", slog.String("path", path))

	return nil
}
