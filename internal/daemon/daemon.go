package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tottales/internal/api"
	"tottales/internal/assets"
	"tottales/internal/config"
	"tottales/internal/logging"
	"tottales/internal/orchestrator"
	"tottales/internal/preview"
	"tottales/internal/services"
	"tottales/internal/store"
)

// Daemon owns the story pipeline's long-running state and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	orch     *orchestrator.Orchestrator
	objects  assets.ObjectStore
	previews *preview.Generator

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	api     *apiServer
	jobs    sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, orch *orchestrator.Orchestrator, objects assets.ObjectStore, previews *preview.Generator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || orch == nil || objects == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and object store")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "tottalesd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		orch:     orch,
		objects:  objects,
		previews: previews,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tottales daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("tottales daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the API, waits for in-flight generations, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.jobs.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tottales daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// GenerateStory creates the story record and launches the pipeline in the
// background. The returned story is still generating.
func (d *Daemon) GenerateStory(ctx context.Context, req api.CreateStoryRequest) (*store.Story, error) {
	story, err := d.orch.CreateStory(ctx, orchestrator.CreateRequest{
		ChildID:    req.ChildID,
		ThemeID:    req.ThemeID,
		ArtStyleID: req.ArtStyleID,
		PageCount:  req.PageCount,
		Title:      req.Title,
	})
	if err != nil {
		return nil, err
	}

	runCtx := d.ctx
	if runCtx == nil {
		runCtx = context.Background()
	}
	d.jobs.Add(1)
	go func() {
		defer d.jobs.Done()
		if _, err := d.orch.Run(runCtx, story.ID, nil); err != nil {
			d.logger.Error("background story run failed",
				logging.String(logging.FieldStoryID, story.ID),
				logging.Error(err))
		}
	}()
	return story, nil
}

// RegeneratePage dispatches a regeneration request by mode. The regeneration
// cap lives here rather than in the orchestrator: the daemon refuses requests
// for pages that already spent their attempts.
func (d *Daemon) RegeneratePage(ctx context.Context, storyID string, pageNumber int, mode string) (*store.StoryPage, error) {
	page, err := d.store.GetPage(ctx, storyID, pageNumber)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "regenerate",
			fmt.Sprintf("story %s has no page %d", storyID, pageNumber), nil)
	}
	if limit := d.cfg.Generation.MaxRegenerations; page.RegenerationCount >= limit {
		return nil, services.Wrap(services.ErrValidation, "daemon", "regenerate",
			fmt.Sprintf("page %d reached the regeneration limit of %d", pageNumber, limit), nil)
	}

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "illustration":
		return d.orch.RegeneratePageIllustration(ctx, storyID, pageNumber)
	case "content":
		return d.orch.RegeneratePageContent(ctx, storyID, pageNumber)
	default:
		return nil, services.Wrap(services.ErrValidation, "daemon", "regenerate",
			fmt.Sprintf("unknown regeneration mode %q", mode), nil)
	}
}

// DeleteStory removes the story, its pages, and any stored images. Image
// removal is best effort; the database rows go regardless.
func (d *Daemon) DeleteStory(ctx context.Context, storyID string) (bool, error) {
	story, err := d.store.GetStory(ctx, storyID)
	if err != nil {
		return false, err
	}
	if story == nil {
		return false, nil
	}
	pages, err := d.store.ListPages(ctx, storyID)
	if err != nil {
		return false, err
	}

	bucket := d.cfg.Storage.StoryBucket
	urls := make([]string, 0, len(pages)+1)
	if story.CoverImageURL != "" {
		urls = append(urls, story.CoverImageURL)
	}
	for _, page := range pages {
		if page.ImageURL != "" {
			urls = append(urls, page.ImageURL)
		}
	}
	for _, url := range urls {
		key, ok := assets.KeyFromURL(url, bucket)
		if !ok {
			continue
		}
		if err := d.objects.Remove(ctx, bucket, key); err != nil {
			d.logger.Warn("failed to remove stored image",
				logging.String("key", key),
				logging.Error(err))
		}
	}

	return d.store.DeleteStory(ctx, storyID)
}

// AddChildPhoto stores a reference photo and appends its URL to the child's
// profile.
func (d *Daemon) AddChildPhoto(ctx context.Context, childID string, data []byte, contentType string) (*store.Child, error) {
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add-photo",
			"photo data is empty", nil)
	}
	child, err := d.store.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "add-photo",
			fmt.Sprintf("child %s does not exist", childID), nil)
	}

	bucket := d.cfg.Storage.PhotoBucket
	key := assets.ChildPhotoKey(child.UserID, child.ID, len(child.PhotoURLs), time.Now())
	url, err := d.objects.Upload(ctx, bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	child.PhotoURLs = append(child.PhotoURLs, url)
	if err := d.store.UpdateChildPhotos(ctx, child.ID, child.PhotoURLs); err != nil {
		return nil, err
	}
	return child, nil
}

// GeneratePreviews runs a preview generation pass for themes and art styles.
func (d *Daemon) GeneratePreviews(ctx context.Context) (*preview.Summary, error) {
	if d.previews == nil {
		return nil, errors.New("preview generator unavailable")
	}
	return d.previews.GenerateAll(ctx)
}

// Status reports daemon health.
func (d *Daemon) Status(ctx context.Context) (api.StatusResponse, error) {
	stats, err := d.store.StoryStats(ctx)
	if err != nil {
		return api.StatusResponse{}, err
	}
	stories := make(map[string]int, len(stats))
	for status, count := range stats {
		stories[string(status)] = count
	}
	return api.StatusResponse{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DatabasePath:   d.cfg.DatabasePath(),
		StorageBackend: d.cfg.Storage.Backend,
		TextModel:      d.cfg.Gemini.TextModel,
		ImageModel:     d.cfg.Gemini.ImageModel,
		Stories:        stories,
	}, nil
}
