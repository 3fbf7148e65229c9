package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tottales/internal/logging"
	"tottales/internal/narrative"
	"tottales/internal/notifications"
	"tottales/internal/services"
	"tottales/internal/store"
	"tottales/internal/testsupport"
)

type stubDescriber struct {
	description string
	err         error
	calls       int
}

func (s *stubDescriber) Describe(_ context.Context, _ *store.Child) (string, error) {
	s.calls++
	return s.description, s.err
}

type stubWriter struct {
	err   error
	calls int
}

func (s *stubWriter) Generate(_ context.Context, req narrative.Request) (*narrative.Story, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	story := &narrative.Story{Title: req.Child.Name + " and the Lighthouse"}
	for i := 1; i <= req.PageCount; i++ {
		story.Pages = append(story.Pages, narrative.Page{
			PageNumber:       i,
			Text:             fmt.Sprintf("Page %d text.", i),
			SceneDescription: fmt.Sprintf("Scene %d", i),
			ImagePrompt:      fmt.Sprintf("Illustration of scene number %d by the lighthouse", i),
		})
	}
	return story, nil
}

func (s *stubWriter) RegeneratePage(_ context.Context, req narrative.Request, _ []*store.StoryPage, pageNumber int) (*narrative.Page, error) {
	return &narrative.Page{
		PageNumber:  pageNumber,
		Text:        "Rewritten page.",
		ImagePrompt: "Illustration of the rewritten page scene",
	}, nil
}

type stubRenderer struct {
	failPages map[int]error
	hook      func(page *store.StoryPage)
	calls     int
	lastStyle *store.ArtStyle
}

func (s *stubRenderer) RenderPage(_ context.Context, page *store.StoryPage, _ string, style *store.ArtStyle) (string, error) {
	s.calls++
	s.lastStyle = style
	if s.hook != nil {
		s.hook(page)
	}
	if err, ok := s.failPages[page.PageNumber]; ok {
		return "", err
	}
	return fmt.Sprintf("file:///images/%s/page-%d.jpg", page.StoryID, page.PageNumber), nil
}

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	store     *store.Store
	orch      *Orchestrator
	child     *store.Child
	theme     *store.Theme
	style     *store.ArtStyle
	describer *stubDescriber
	writer    *stubWriter
	renderer  *stubRenderer
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	f := &fixture{
		store:     st,
		child:     testsupport.SeedChild(t, st, "Ivy", 5, "file:///photos/ivy.jpg"),
		theme:     testsupport.SeedTheme(t, st, "ocean", "waves and whales"),
		style:     testsupport.SeedArtStyle(t, st, "watercolor", "soft washes"),
		describer: &stubDescriber{description: "A girl with red curls"},
		writer:    &stubWriter{},
		renderer:  &stubRenderer{},
		notifier:  &recordingNotifier{},
	}
	f.orch = New(st, store.NewReferenceCache(st), f.describer, f.writer, f.renderer, f.notifier, Settings{
		DefaultPageCount: 3,
		MaxPageCount:     6,
	}, logging.NewNop())
	return f
}

func (f *fixture) request() CreateRequest {
	return CreateRequest{ChildID: f.child.ID, ThemeID: f.theme.ID, ArtStyleID: f.style.ID}
}

func TestCreateCompleteStoryHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var stages []string
	req := f.request()
	req.OnProgress = func(p Progress) { stages = append(stages, p.Stage) }

	story, err := f.orch.CreateCompleteStory(ctx, req)
	if err != nil {
		t.Fatalf("CreateCompleteStory returned error: %v", err)
	}
	if story.Status != store.StoryStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", story.Status, story.ErrorMessage)
	}
	if story.Title != "Ivy and the Lighthouse" {
		t.Fatalf("title = %q", story.Title)
	}
	if story.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if !strings.Contains(story.CoverImageURL, "page-1") {
		t.Fatalf("cover should come from page 1, got %q", story.CoverImageURL)
	}
	if story.UserID != f.child.UserID {
		t.Fatalf("story owner = %q, want %q", story.UserID, f.child.UserID)
	}
	if f.renderer.lastStyle == nil || f.renderer.lastStyle.Description != "soft washes" {
		t.Fatalf("art style not handed to the renderer: %+v", f.renderer.lastStyle)
	}

	pages, err := f.store.ListPages(ctx, story.ID)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for _, page := range pages {
		if page.Status != store.PageStatusCompleted {
			t.Fatalf("page %d status = %s", page.PageNumber, page.Status)
		}
		if page.ImageURL == "" || page.Text == "" {
			t.Fatalf("page %d missing content: %+v", page.PageNumber, page)
		}
	}

	wantStages := []string{store.StageAnalyzing, store.StageWriting, store.StageIllustrating}
	for i, stage := range wantStages {
		if stages[i] != stage {
			t.Fatalf("stage order %v, want prefix %v", stages, wantStages)
		}
	}
	if stages[len(stages)-1] != store.StageFinalizing {
		t.Fatalf("last stage = %s, want finalizing", stages[len(stages)-1])
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0] != notifications.EventStoryCompleted {
		t.Fatalf("unexpected notifications %v", f.notifier.events)
	}
}

func TestCreateCompleteStoryNarrativeFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.writer.err = services.Wrap(services.ErrExternalModel, "narrative", "generate", "model down", nil)

	story, err := f.orch.CreateCompleteStory(context.Background(), f.request())
	if !errors.Is(err, services.ErrExternalModel) {
		t.Fatalf("expected the narrative error to propagate, got %v", err)
	}
	if story.Status != store.StoryStatusFailed {
		t.Fatalf("status = %s, want failed", story.Status)
	}
	if story.ErrorMessage == "" {
		t.Fatal("error message should be persisted")
	}
	if f.renderer.calls != 0 {
		t.Fatalf("renderer should not run after narrative failure, got %d calls", f.renderer.calls)
	}

	pages, err := f.store.ListPages(context.Background(), story.ID)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	for _, page := range pages {
		if page.Status != store.PageStatusPending {
			t.Fatalf("page %d status = %s, want pending", page.PageNumber, page.Status)
		}
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != notifications.EventStoryFailed {
		t.Fatalf("unexpected notifications %v", f.notifier.events)
	}
}

func TestCreateCompleteStoryIllustrationFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.renderer.failPages = map[int]error{
		2: services.Wrap(services.ErrExternalModel, "illustration", "render", "failed after 3 attempts", nil),
	}

	var stages []string
	req := f.request()
	req.OnProgress = func(p Progress) { stages = append(stages, p.Stage) }

	story, err := f.orch.CreateCompleteStory(context.Background(), req)
	if !errors.Is(err, services.ErrExternalModel) {
		t.Fatalf("expected the render error to propagate, got %v", err)
	}
	if story.Status != store.StoryStatusFailed {
		t.Fatalf("status = %s, want failed", story.Status)
	}
	if story.ErrorMessage == "" {
		t.Fatal("error message should be persisted")
	}
	if f.renderer.calls != 2 {
		t.Fatalf("the loop must stop at the first failure, got %d calls", f.renderer.calls)
	}
	for _, stage := range stages {
		if stage == store.StageFinalizing {
			t.Fatal("an aborted run must not reach finalizing")
		}
	}
	if !strings.Contains(story.CoverImageURL, "page-1") {
		t.Fatal("cover should still come from the completed page 1")
	}

	pages, err := f.store.ListPages(context.Background(), story.ID)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	want := map[int]store.PageStatus{
		1: store.PageStatusCompleted,
		2: store.PageStatusFailed,
		3: store.PageStatusPending,
	}
	for _, page := range pages {
		if page.Status != want[page.PageNumber] {
			t.Fatalf("page %d status = %s, want %s", page.PageNumber, page.Status, want[page.PageNumber])
		}
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != notifications.EventStoryFailed {
		t.Fatalf("unexpected notifications %v", f.notifier.events)
	}
}

func TestCreateCompleteStoryDefaultsPageCount(t *testing.T) {
	f := newFixture(t)
	story, err := f.orch.CreateCompleteStory(context.Background(), f.request())
	if err != nil {
		t.Fatalf("CreateCompleteStory returned error: %v", err)
	}
	if story.PageCount != 3 {
		t.Fatalf("page count = %d, want default 3", story.PageCount)
	}
}

func TestCreateCompleteStoryRejectsExcessivePageCount(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.PageCount = 20
	if _, err := f.orch.CreateCompleteStory(context.Background(), req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateCompleteStoryUnknownChild(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.ChildID = "no-such-child"
	if _, err := f.orch.CreateCompleteStory(context.Background(), req); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateCompleteStoryRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)

	var concurrentErr error
	f.renderer.hook = func(page *store.StoryPage) {
		if page.PageNumber == 1 {
			_, concurrentErr = f.orch.RegeneratePageIllustration(context.Background(), page.StoryID, 1)
		}
	}

	if _, err := f.orch.CreateCompleteStory(context.Background(), f.request()); err != nil {
		t.Fatalf("CreateCompleteStory returned error: %v", err)
	}
	if !errors.Is(concurrentErr, services.ErrValidation) {
		t.Fatalf("concurrent run should be rejected with ErrValidation, got %v", concurrentErr)
	}
}

func completedStory(t *testing.T, f *fixture) *store.Story {
	t.Helper()
	story, err := f.orch.CreateCompleteStory(context.Background(), f.request())
	if err != nil {
		t.Fatalf("CreateCompleteStory: %v", err)
	}
	if story.Status != store.StoryStatusCompleted {
		t.Fatalf("fixture story not completed: %s", story.Status)
	}
	return story
}

func TestRegeneratePageIllustration(t *testing.T) {
	f := newFixture(t)
	story := completedStory(t, f)

	page, err := f.orch.RegeneratePageIllustration(context.Background(), story.ID, 2)
	if err != nil {
		t.Fatalf("RegeneratePageIllustration returned error: %v", err)
	}
	if page.RegenerationCount != 1 {
		t.Fatalf("regeneration count = %d, want 1", page.RegenerationCount)
	}
	if page.Status != store.PageStatusCompleted {
		t.Fatalf("page status = %s", page.Status)
	}
}

func TestRegeneratePageIllustrationRefreshesCover(t *testing.T) {
	f := newFixture(t)
	story := completedStory(t, f)

	if _, err := f.orch.RegeneratePageIllustration(context.Background(), story.ID, 1); err != nil {
		t.Fatalf("RegeneratePageIllustration returned error: %v", err)
	}
	refreshed, err := f.store.GetStory(context.Background(), story.ID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	if !strings.Contains(refreshed.CoverImageURL, "page-1") {
		t.Fatalf("cover not refreshed: %q", refreshed.CoverImageURL)
	}
}

func TestRegeneratePageIllustrationIgnoresCallerCap(t *testing.T) {
	f := newFixture(t)
	story := completedStory(t, f)

	// The cap is caller policy. Invoked directly, the operation keeps
	// running and counting past it.
	for i := 0; i < 4; i++ {
		if _, err := f.orch.RegeneratePageIllustration(context.Background(), story.ID, 2); err != nil {
			t.Fatalf("regeneration %d failed: %v", i+1, err)
		}
	}
	page, err := f.store.GetPage(context.Background(), story.ID, 2)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page.RegenerationCount != 4 {
		t.Fatalf("regeneration count = %d, want 4", page.RegenerationCount)
	}
}

func TestRegeneratePageIllustrationFailureMarksPageFailed(t *testing.T) {
	f := newFixture(t)
	story := completedStory(t, f)

	f.renderer.failPages = map[int]error{
		3: services.Wrap(services.ErrSafetyBlocked, "gemini", "generate", "blocked", nil),
	}
	_, err := f.orch.RegeneratePageIllustration(context.Background(), story.ID, 3)
	if !errors.Is(err, services.ErrSafetyBlocked) {
		t.Fatalf("expected render error to surface, got %v", err)
	}

	page, err := f.store.GetPage(context.Background(), story.ID, 3)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page.Status != store.PageStatusFailed {
		t.Fatalf("page status = %s, want failed", page.Status)
	}
	if page.RegenerationCount != 0 {
		t.Fatalf("failed attempt must not count, got %d", page.RegenerationCount)
	}

	last := f.notifier.events[len(f.notifier.events)-1]
	if last != notifications.EventRegenerationFailed {
		t.Fatalf("expected regeneration-failed notification, got %v", f.notifier.events)
	}
}

func TestRegeneratePageContentRewritesText(t *testing.T) {
	f := newFixture(t)
	story := completedStory(t, f)

	page, err := f.orch.RegeneratePageContent(context.Background(), story.ID, 2)
	if err != nil {
		t.Fatalf("RegeneratePageContent returned error: %v", err)
	}
	if page.Text != "Rewritten page." {
		t.Fatalf("page text not rewritten: %q", page.Text)
	}
	if page.Status != store.PageStatusCompleted {
		t.Fatalf("page status = %s", page.Status)
	}
	if page.RegenerationCount != 1 {
		t.Fatalf("regeneration count = %d, want 1", page.RegenerationCount)
	}

	stored, err := f.store.GetPage(context.Background(), story.ID, 2)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if stored.Text != "Rewritten page." {
		t.Fatalf("rewritten text not persisted: %q", stored.Text)
	}
}

func TestRegeneratePageIllustrationUnknownPage(t *testing.T) {
	f := newFixture(t)
	story := completedStory(t, f)

	if _, err := f.orch.RegeneratePageIllustration(context.Background(), story.ID, 9); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
