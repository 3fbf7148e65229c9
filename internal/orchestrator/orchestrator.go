// Package orchestrator drives the complete story pipeline: photo analysis,
// narrative generation, sequential page illustration, and finalization.
// Progress is persisted after every step so API clients can poll a story
// while it generates. A story admits one active run at a time.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tottales/internal/config"
	"tottales/internal/logging"
	"tottales/internal/narrative"
	"tottales/internal/notifications"
	"tottales/internal/services"
	"tottales/internal/store"
)

// CharacterDescriber resolves a child's cached or freshly analyzed
// appearance description.
type CharacterDescriber interface {
	Describe(ctx context.Context, child *store.Child) (string, error)
}

// StoryWriter produces the manuscript.
type StoryWriter interface {
	Generate(ctx context.Context, req narrative.Request) (*narrative.Story, error)
	RegeneratePage(ctx context.Context, req narrative.Request, pages []*store.StoryPage, pageNumber int) (*narrative.Page, error)
}

// PageRenderer produces and stores one page illustration.
type PageRenderer interface {
	RenderPage(ctx context.Context, page *store.StoryPage, characterDescription string, style *store.ArtStyle) (string, error)
}

// Progress is the advisory snapshot handed to OnProgress callbacks.
type Progress struct {
	StoryID    string
	Stage      string
	PagesDone  int
	PagesTotal int
	Message    string
}

// CreateRequest describes a new story to generate.
type CreateRequest struct {
	ChildID    string
	ThemeID    string
	ArtStyleID string
	PageCount  int
	Title      string
	OnProgress func(Progress)
}

// Settings holds the pipeline knobs. The regeneration cap is not here on
// purpose: callers enforce it before invoking the regeneration operations.
type Settings struct {
	DefaultPageCount int
	MaxPageCount     int
	PageInterval     time.Duration
}

// SettingsFromApp derives pipeline settings from application configuration.
func SettingsFromApp(cfg *config.Config) Settings {
	return Settings{
		DefaultPageCount: cfg.Generation.DefaultPageCount,
		MaxPageCount:     cfg.Generation.MaxPageCount,
		PageInterval:     time.Duration(cfg.Generation.PageIntervalSeconds) * time.Second,
	}
}

func (s *Settings) applyDefaults() {
	if s.DefaultPageCount < 1 {
		s.DefaultPageCount = 6
	}
	if s.MaxPageCount < s.DefaultPageCount {
		s.MaxPageCount = s.DefaultPageCount
	}
}

// Orchestrator coordinates the story pipeline against the store.
type Orchestrator struct {
	store      *store.Store
	refs       *store.ReferenceCache
	characters CharacterDescriber
	writer     StoryWriter
	renderer   PageRenderer
	notifier   notifications.Service
	settings   Settings
	logger     *slog.Logger

	mu     sync.Mutex
	active map[string]bool
}

// New wires the orchestrator to its collaborators.
func New(st *store.Store, refs *store.ReferenceCache, characters CharacterDescriber, writer StoryWriter, renderer PageRenderer, notifier notifications.Service, settings Settings, logger *slog.Logger) *Orchestrator {
	settings.applyDefaults()
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Orchestrator{
		store:      st,
		refs:       refs,
		characters: characters,
		writer:     writer,
		renderer:   renderer,
		notifier:   notifier,
		settings:   settings,
		logger:     logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// CreateCompleteStory runs the full pipeline synchronously. When generation
// fails mid-run the story record is returned alongside the error, already
// marked failed with the cause persisted.
func (o *Orchestrator) CreateCompleteStory(ctx context.Context, req CreateRequest) (*store.Story, error) {
	story, err := o.CreateStory(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, story.ID, req.OnProgress)
}

// CreateStory validates the request and creates the story record with its
// pending pages, without running the pipeline. Callers that want background
// generation create first, answer the client, then call Run.
func (o *Orchestrator) CreateStory(ctx context.Context, req CreateRequest) (*store.Story, error) {
	if req.PageCount == 0 {
		req.PageCount = o.settings.DefaultPageCount
	}
	if req.PageCount < 1 || req.PageCount > o.settings.MaxPageCount {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create",
			fmt.Sprintf("page count must be between 1 and %d", o.settings.MaxPageCount), nil)
	}

	child, theme, style, err := o.loadReferences(ctx, req.ChildID, req.ThemeID, req.ArtStyleID)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = narrative.FallbackTitle(child.Name)
	}
	return o.store.CreateStory(ctx, &store.Story{
		UserID:     child.UserID,
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Title:      title,
		Status:     store.StoryStatusGenerating,
		PageCount:  req.PageCount,
	})
}

// Run executes the pipeline for an already created story. A mid-run failure
// marks the story failed, persists the cause, and returns the story record
// together with the error.
func (o *Orchestrator) Run(ctx context.Context, storyID string, onProgress func(Progress)) (*store.Story, error) {
	story, err := o.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "run",
			fmt.Sprintf("story %s does not exist", storyID), nil)
	}
	if story.Finished() {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "run",
			fmt.Sprintf("story %s already finished with status %s", storyID, story.Status), nil)
	}

	child, theme, style, err := o.loadReferences(ctx, story.ChildID, story.ThemeID, story.ArtStyleID)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire(story.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = services.WithStoryID(ctx, story.ID)
	log := logging.WithContext(ctx, o.logger)
	log.Info("story pipeline started",
		logging.String(logging.FieldChildID, child.ID),
		logging.Int("pages", story.PageCount))

	if err := o.runPipeline(ctx, log, story, child, theme, style, onProgress); err != nil {
		o.failStory(ctx, log, story, err)
		o.publish(ctx, notifications.EventStoryFailed, notifications.Payload{
			"title":  story.Title,
			"child":  child.Name,
			"reason": err.Error(),
		})
		return story, err
	}

	o.publish(ctx, notifications.EventStoryCompleted, notifications.Payload{
		"title": story.Title,
		"child": child.Name,
	})
	return story, nil
}

func (o *Orchestrator) loadReferences(ctx context.Context, childID, themeID, styleID string) (*store.Child, *store.Theme, *store.ArtStyle, error) {
	var (
		child *store.Child
		theme *store.Theme
		style *store.ArtStyle
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		child, err = o.store.GetChild(groupCtx, childID)
		if err != nil {
			return err
		}
		if child == nil {
			return services.Wrap(services.ErrNotFound, "orchestrator", "create",
				fmt.Sprintf("child %s does not exist", childID), nil)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		theme, err = o.refs.Theme(groupCtx, themeID)
		if err != nil {
			return err
		}
		if theme == nil {
			return services.Wrap(services.ErrNotFound, "orchestrator", "create",
				fmt.Sprintf("theme %s does not exist", themeID), nil)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		style, err = o.refs.ArtStyle(groupCtx, styleID)
		if err != nil {
			return err
		}
		if style == nil {
			return services.Wrap(services.ErrNotFound, "orchestrator", "create",
				fmt.Sprintf("art style %s does not exist", styleID), nil)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return child, theme, style, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, log *slog.Logger, story *store.Story, child *store.Child, theme *store.Theme, style *store.ArtStyle, onProgress func(Progress)) error {
	total := story.PageCount

	if err := o.progress(ctx, story, store.StageAnalyzing, 0, total, "analyzing reference photos", onProgress); err != nil {
		return err
	}
	description, err := o.characters.Describe(ctx, child)
	if err != nil {
		return err
	}

	if err := o.progress(ctx, story, store.StageWriting, 0, total, "writing the story", onProgress); err != nil {
		return err
	}
	manuscript, err := o.writer.Generate(ctx, narrative.Request{
		Child:                child,
		Theme:                theme,
		Style:                style,
		CharacterDescription: description,
		PageCount:            total,
	})
	if err != nil {
		return err
	}

	story.Title = manuscript.Title
	if err := o.store.UpdateStory(ctx, story); err != nil {
		return err
	}
	for _, generated := range manuscript.Pages {
		page, err := o.store.GetPage(ctx, story.ID, generated.PageNumber)
		if err != nil {
			return err
		}
		if page == nil {
			return services.Wrap(services.ErrNotFound, "orchestrator", "write",
				fmt.Sprintf("page %d missing for story %s", generated.PageNumber, story.ID), nil)
		}
		page.Text = generated.Text
		page.SceneDescription = generated.SceneDescription
		page.ImagePrompt = generated.ImagePrompt
		if err := o.store.UpdatePage(ctx, page); err != nil {
			return err
		}
	}

	if err := o.progress(ctx, story, store.StageIllustrating, 0, total, "illustrating pages", onProgress); err != nil {
		return err
	}
	if err := o.illustrate(ctx, log, story, description, style, onProgress); err != nil {
		return err
	}

	if err := o.progress(ctx, story, store.StageFinalizing, total, total, "finalizing", onProgress); err != nil {
		return err
	}

	now := time.Now().UTC()
	story.Status = store.StoryStatusCompleted
	story.CompletedAt = &now
	story.SetProgress(store.StageFinalizing, total, total, "story completed")
	if err := o.store.UpdateStory(ctx, story); err != nil {
		return err
	}
	log.Info("story completed", logging.String("title", story.Title))
	return nil
}

// illustrate renders pages in order. The first render failure marks that
// page failed and aborts the run; pages not yet reached stay pending.
func (o *Orchestrator) illustrate(ctx context.Context, log *slog.Logger, story *store.Story, description string, style *store.ArtStyle, onProgress func(Progress)) error {
	pages, err := o.store.ListPages(ctx, story.ID)
	if err != nil {
		return err
	}

	limiter := o.pageLimiter()
	for done, page := range pages {
		if err := limiter.Wait(ctx); err != nil {
			return services.Wrap(services.ErrTransient, "orchestrator", "illustrate", "pipeline interrupted", err)
		}

		page.Status = store.PageStatusGenerating
		if err := o.store.UpdatePage(ctx, page); err != nil {
			return err
		}

		pageCtx := services.WithPageNumber(ctx, page.PageNumber)
		url, renderErr := o.renderer.RenderPage(pageCtx, page, description, style)
		if renderErr != nil {
			page.Status = store.PageStatusFailed
			if err := o.store.UpdatePage(ctx, page); err != nil {
				return err
			}
			logging.ErrorWithContext(log, "page illustration failed", "page_failed",
				logging.Int(logging.FieldPage, page.PageNumber),
				logging.Error(renderErr))
			return renderErr
		}

		page.Status = store.PageStatusCompleted
		page.ImageURL = url
		if err := o.store.UpdatePage(ctx, page); err != nil {
			return err
		}
		if page.PageNumber == 1 {
			story.CoverImageURL = url
		}

		message := fmt.Sprintf("illustrated page %d of %d", done+1, len(pages))
		if err := o.progress(ctx, story, store.StageIllustrating, done+1, len(pages), message, onProgress); err != nil {
			return err
		}
	}
	return nil
}

// RegeneratePageIllustration re-renders one page using its existing image
// prompt. The regeneration cap is caller policy; the operation itself always
// runs, and RegenerationCount only moves on success.
func (o *Orchestrator) RegeneratePageIllustration(ctx context.Context, storyID string, pageNumber int) (*store.StoryPage, error) {
	release, err := o.acquire(storyID)
	if err != nil {
		return nil, err
	}
	defer release()

	story, page, child, style, err := o.loadForRegeneration(ctx, storyID, pageNumber)
	if err != nil {
		return nil, err
	}
	if page.ImagePrompt == "" {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "regenerate",
			fmt.Sprintf("page %d has no image prompt yet", pageNumber), nil)
	}

	ctx = services.WithStoryID(ctx, storyID)
	ctx = services.WithPageNumber(ctx, pageNumber)
	log := logging.WithContext(ctx, o.logger)

	page.Status = store.PageStatusGenerating
	if err := o.store.UpdatePage(ctx, page); err != nil {
		return nil, err
	}

	description := child.CharacterDescription
	url, renderErr := o.renderer.RenderPage(ctx, page, description, style)
	if renderErr != nil {
		page.Status = store.PageStatusFailed
		if err := o.store.UpdatePage(ctx, page); err != nil {
			return nil, err
		}
		logging.ErrorWithContext(log, "page regeneration failed", "regeneration_failed", logging.Error(renderErr))
		o.publish(ctx, notifications.EventRegenerationFailed, notifications.Payload{
			"title":  story.Title,
			"page":   strconv.Itoa(pageNumber),
			"reason": renderErr.Error(),
		})
		return nil, renderErr
	}

	page.Status = store.PageStatusCompleted
	page.ImageURL = url
	page.RegenerationCount++
	if err := o.store.UpdatePage(ctx, page); err != nil {
		return nil, err
	}
	if pageNumber == 1 {
		story.CoverImageURL = url
		if err := o.store.UpdateStory(ctx, story); err != nil {
			return nil, err
		}
	}
	log.Info("page regenerated", logging.Int("regeneration_count", page.RegenerationCount))
	return page, nil
}

// RegeneratePageContent rewrites a page's text through the narrative model
// and renders a fresh illustration for the new scene. As with
// illustration-only regeneration, the cap is caller policy.
func (o *Orchestrator) RegeneratePageContent(ctx context.Context, storyID string, pageNumber int) (*store.StoryPage, error) {
	release, err := o.acquire(storyID)
	if err != nil {
		return nil, err
	}
	defer release()

	story, page, child, style, err := o.loadForRegeneration(ctx, storyID, pageNumber)
	if err != nil {
		return nil, err
	}
	theme, err := o.refs.Theme(ctx, story.ThemeID)
	if err != nil {
		return nil, err
	}
	if theme == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "regenerate",
			fmt.Sprintf("theme %s does not exist", story.ThemeID), nil)
	}
	pages, err := o.store.ListPages(ctx, storyID)
	if err != nil {
		return nil, err
	}

	ctx = services.WithStoryID(ctx, storyID)
	ctx = services.WithPageNumber(ctx, pageNumber)
	log := logging.WithContext(ctx, o.logger)

	rewritten, err := o.writer.RegeneratePage(ctx, narrative.Request{
		Child:                child,
		Theme:                theme,
		Style:                style,
		CharacterDescription: child.CharacterDescription,
		PageCount:            story.PageCount,
	}, pages, pageNumber)
	if err != nil {
		return nil, err
	}

	page.Text = rewritten.Text
	page.SceneDescription = rewritten.SceneDescription
	page.ImagePrompt = rewritten.ImagePrompt
	page.Status = store.PageStatusGenerating
	if err := o.store.UpdatePage(ctx, page); err != nil {
		return nil, err
	}

	url, renderErr := o.renderer.RenderPage(ctx, page, child.CharacterDescription, style)
	if renderErr != nil {
		page.Status = store.PageStatusFailed
		if err := o.store.UpdatePage(ctx, page); err != nil {
			return nil, err
		}
		logging.ErrorWithContext(log, "page content regeneration failed", "regeneration_failed", logging.Error(renderErr))
		o.publish(ctx, notifications.EventRegenerationFailed, notifications.Payload{
			"title":  story.Title,
			"page":   strconv.Itoa(pageNumber),
			"reason": renderErr.Error(),
		})
		return nil, renderErr
	}

	page.Status = store.PageStatusCompleted
	page.ImageURL = url
	page.RegenerationCount++
	if err := o.store.UpdatePage(ctx, page); err != nil {
		return nil, err
	}
	if pageNumber == 1 {
		story.CoverImageURL = url
		if err := o.store.UpdateStory(ctx, story); err != nil {
			return nil, err
		}
	}
	log.Info("page content regenerated", logging.Int("regeneration_count", page.RegenerationCount))
	return page, nil
}

func (o *Orchestrator) loadForRegeneration(ctx context.Context, storyID string, pageNumber int) (*store.Story, *store.StoryPage, *store.Child, *store.ArtStyle, error) {
	story, err := o.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if story == nil {
		return nil, nil, nil, nil, services.Wrap(services.ErrNotFound, "orchestrator", "regenerate",
			fmt.Sprintf("story %s does not exist", storyID), nil)
	}
	page, err := o.store.GetPage(ctx, storyID, pageNumber)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if page == nil {
		return nil, nil, nil, nil, services.Wrap(services.ErrNotFound, "orchestrator", "regenerate",
			fmt.Sprintf("story %s has no page %d", storyID, pageNumber), nil)
	}
	child, err := o.store.GetChild(ctx, story.ChildID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if child == nil {
		return nil, nil, nil, nil, services.Wrap(services.ErrNotFound, "orchestrator", "regenerate",
			fmt.Sprintf("child %s does not exist", story.ChildID), nil)
	}
	style, err := o.refs.ArtStyle(ctx, story.ArtStyleID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if style == nil {
		return nil, nil, nil, nil, services.Wrap(services.ErrNotFound, "orchestrator", "regenerate",
			fmt.Sprintf("art style %s does not exist", story.ArtStyleID), nil)
	}
	return story, page, child, style, nil
}

// progress persists the story's progress fields and invokes the advisory
// callback.
func (o *Orchestrator) progress(ctx context.Context, story *store.Story, stage string, done, total int, message string, onProgress func(Progress)) error {
	story.SetProgress(stage, done, total, message)
	if err := o.store.UpdateStory(ctx, story); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(Progress{
			StoryID:    story.ID,
			Stage:      stage,
			PagesDone:  done,
			PagesTotal: total,
			Message:    message,
		})
	}
	return nil
}

func (o *Orchestrator) failStory(ctx context.Context, log *slog.Logger, story *store.Story, cause error) {
	story.SetFailed(cause.Error())
	if err := o.store.UpdateStory(ctx, story); err != nil {
		log.Error("failed to persist story failure", logging.Error(err))
	}
	logging.ErrorWithContext(log, "story pipeline failed", "story_failed", logging.Error(cause))
}

func (o *Orchestrator) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		o.logger.Warn("notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}

func (o *Orchestrator) pageLimiter() *rate.Limiter {
	if o.settings.PageInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(o.settings.PageInterval), 1)
}

// acquire registers an active run for the story ID. A second concurrent run
// on the same story is rejected.
func (o *Orchestrator) acquire(storyID string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		o.active = make(map[string]bool)
	}
	if o.active[storyID] {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "acquire",
			fmt.Sprintf("story %s already has an active run", storyID), nil)
	}
	o.active[storyID] = true
	return func() {
		o.mu.Lock()
		delete(o.active, storyID)
		o.mu.Unlock()
	}, nil
}
