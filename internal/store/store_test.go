package store_test

import (
	"context"
	"testing"
	"time"

	"tottales/internal/store"
	"tottales/internal/testsupport"
)

func TestCreateStoryInsertsPendingPages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Mira", 5, "https://photos.example/mira-1.jpg")
	theme := testsupport.SeedTheme(t, st, "Space Adventure", "Rockets and friendly aliens")
	style := testsupport.SeedArtStyle(t, st, "Watercolor", "Soft washes and gentle lines")

	story, err := st.CreateStory(ctx, &store.Story{
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Title:      "Mira's Adventure",
		Status:     store.StoryStatusGenerating,
		PageCount:  4,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	if story.ID == "" {
		t.Fatal("expected generated story id")
	}
	if story.Status != store.StoryStatusGenerating {
		t.Fatalf("unexpected status: %s", story.Status)
	}

	pages, err := st.ListPages(ctx, story.ID)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(pages))
	}
	for i, page := range pages {
		if page.PageNumber != i+1 {
			t.Fatalf("expected contiguous page numbers, got %d at index %d", page.PageNumber, i)
		}
		if page.Status != store.PageStatusPending {
			t.Fatalf("expected pending page, got %s", page.Status)
		}
	}
}

func TestStoryOwnerAndChildGenderPersisted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child, err := st.CreateChild(ctx, &store.Child{
		UserID: "family-7",
		Name:   "Juno",
		Age:    4,
		Gender: "girl",
	})
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	if child.Gender != "girl" {
		t.Fatalf("gender not round-tripped, got %q", child.Gender)
	}

	theme := testsupport.SeedTheme(t, st, "Garden", "Flowers and bugs")
	style := testsupport.SeedArtStyle(t, st, "Ink", "Bold lines")

	story, err := st.CreateStory(ctx, &store.Story{
		UserID:     child.UserID,
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Status:     store.StoryStatusGenerating,
		PageCount:  2,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	fetched, err := st.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	if fetched.UserID != "family-7" {
		t.Fatalf("story owner not persisted, got %q", fetched.UserID)
	}
}

func TestUpdateStoryPersistsProgressAndCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Theo", 4)
	theme := testsupport.SeedTheme(t, st, "Under the Sea", "")
	style := testsupport.SeedArtStyle(t, st, "Crayon", "")

	story, err := st.CreateStory(ctx, &store.Story{
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Status:     store.StoryStatusGenerating,
		PageCount:  2,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}

	story.SetProgress(store.StageIllustrating, 1, 2, "illustrating page 2")
	story.CoverImageURL = "https://img.example/cover.jpg"
	if err := st.UpdateStory(ctx, story); err != nil {
		t.Fatalf("UpdateStory: %v", err)
	}

	loaded, err := st.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	if loaded.ProgressStage != store.StageIllustrating {
		t.Fatalf("unexpected progress stage: %q", loaded.ProgressStage)
	}
	if loaded.ProgressPagesDone != 1 || loaded.ProgressPagesTotal != 2 {
		t.Fatalf("unexpected progress counts: %d/%d", loaded.ProgressPagesDone, loaded.ProgressPagesTotal)
	}
	if loaded.CoverImageURL != "https://img.example/cover.jpg" {
		t.Fatalf("unexpected cover url: %q", loaded.CoverImageURL)
	}

	completedAt := time.Now().UTC()
	loaded.Status = store.StoryStatusCompleted
	loaded.CompletedAt = &completedAt
	if err := st.UpdateStory(ctx, loaded); err != nil {
		t.Fatalf("UpdateStory completed: %v", err)
	}

	final, err := st.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("GetStory final: %v", err)
	}
	if final.Status != store.StoryStatusCompleted {
		t.Fatalf("unexpected final status: %s", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at to persist")
	}
	if !final.Finished() {
		t.Fatal("expected completed story to report finished")
	}
}

func TestUpdateStoryRejectsUnknownStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Ana", 6)
	theme := testsupport.SeedTheme(t, st, "Forest Friends", "")
	style := testsupport.SeedArtStyle(t, st, "Cartoon", "")

	story, err := st.CreateStory(ctx, &store.Story{
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Status:     store.StoryStatusDraft,
		PageCount:  1,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}

	story.Status = store.StoryStatus("archived")
	if err := st.UpdateStory(ctx, story); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestUpdatePageTracksRegenerationCount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Ivy", 3)
	theme := testsupport.SeedTheme(t, st, "Dinosaur Day", "")
	style := testsupport.SeedArtStyle(t, st, "Pastel", "")

	story, err := st.CreateStory(ctx, &store.Story{
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Status:     store.StoryStatusGenerating,
		PageCount:  2,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}

	page, err := st.GetPage(ctx, story.ID, 2)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	page.Text = "Ivy found a gentle triceratops."
	page.SceneDescription = "A sunny meadow with a smiling dinosaur"
	page.ImagePrompt = "A small child waving at a friendly triceratops in a meadow"
	page.ImageURL = "https://img.example/page-2.jpg"
	page.Status = store.PageStatusCompleted
	page.RegenerationCount = 1
	if err := st.UpdatePage(ctx, page); err != nil {
		t.Fatalf("UpdatePage: %v", err)
	}

	loaded, err := st.GetPage(ctx, story.ID, 2)
	if err != nil {
		t.Fatalf("GetPage reload: %v", err)
	}
	if loaded.RegenerationCount != 1 {
		t.Fatalf("unexpected regeneration count: %d", loaded.RegenerationCount)
	}
	if loaded.Status != store.PageStatusCompleted {
		t.Fatalf("unexpected page status: %s", loaded.Status)
	}
	if loaded.ImageURL != "https://img.example/page-2.jpg" {
		t.Fatalf("unexpected image url: %q", loaded.ImageURL)
	}

	stats, err := st.PageStats(ctx, story.ID)
	if err != nil {
		t.Fatalf("PageStats: %v", err)
	}
	if stats[store.PageStatusCompleted] != 1 || stats[store.PageStatusPending] != 1 {
		t.Fatalf("unexpected page stats: %+v", stats)
	}
}

func TestDeleteStoryCascadesPages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Leo", 7)
	theme := testsupport.SeedTheme(t, st, "Pirate Cove", "")
	style := testsupport.SeedArtStyle(t, st, "Ink", "")

	story, err := st.CreateStory(ctx, &store.Story{
		ChildID:    child.ID,
		ThemeID:    theme.ID,
		ArtStyleID: style.ID,
		Status:     store.StoryStatusGenerating,
		PageCount:  3,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}

	removed, err := st.DeleteStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("DeleteStory: %v", err)
	}
	if !removed {
		t.Fatal("expected story to be removed")
	}

	pages, err := st.ListPages(ctx, story.ID)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected cascaded page delete, found %d pages", len(pages))
	}

	if got, err := st.GetStory(ctx, story.ID); err != nil || got != nil {
		t.Fatalf("expected missing story to return nil, got %v (%v)", got, err)
	}
}

func TestChildCharacterDescriptionCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Noa", 5, "https://photos.example/noa.jpg")
	if child.CharacterDescription != "" {
		t.Fatalf("expected empty description on new child, got %q", child.CharacterDescription)
	}

	if err := st.UpdateChildCharacterDescription(ctx, child.ID, "Curly brown hair, hazel eyes, freckles"); err != nil {
		t.Fatalf("UpdateChildCharacterDescription: %v", err)
	}

	loaded, err := st.GetChild(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetChild: %v", err)
	}
	if loaded.CharacterDescription != "Curly brown hair, hazel eyes, freckles" {
		t.Fatalf("unexpected description: %q", loaded.CharacterDescription)
	}
	if len(loaded.PhotoURLs) != 1 || loaded.PhotoURLs[0] != "https://photos.example/noa.jpg" {
		t.Fatalf("unexpected photo urls: %v", loaded.PhotoURLs)
	}
}

func TestReferenceCacheServesRepeatLookups(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	theme := testsupport.SeedTheme(t, st, "Circus", "Big tents and juggling bears")
	refs := store.NewReferenceCache(st)

	first, err := refs.Theme(ctx, theme.ID)
	if err != nil {
		t.Fatalf("Theme: %v", err)
	}
	if first == nil || first.Name != "Circus" {
		t.Fatalf("unexpected theme: %+v", first)
	}

	// Preview updates bypass the cache until invalidated.
	if err := st.UpdateThemePreview(ctx, theme.ID, "https://img.example/circus.jpg"); err != nil {
		t.Fatalf("UpdateThemePreview: %v", err)
	}
	cached, err := refs.Theme(ctx, theme.ID)
	if err != nil {
		t.Fatalf("Theme cached: %v", err)
	}
	if cached.PreviewImageURL != "" {
		t.Fatalf("expected stale cached theme, got preview %q", cached.PreviewImageURL)
	}

	refs.InvalidateTheme(theme.ID)
	fresh, err := refs.Theme(ctx, theme.ID)
	if err != nil {
		t.Fatalf("Theme fresh: %v", err)
	}
	if fresh.PreviewImageURL != "https://img.example/circus.jpg" {
		t.Fatalf("expected fresh preview url, got %q", fresh.PreviewImageURL)
	}

	if missing, err := refs.Theme(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for missing theme, got %v (%v)", missing, err)
	}
}

func TestStoryStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	child := testsupport.SeedChild(t, st, "Pia", 6)
	theme := testsupport.SeedTheme(t, st, "Garden", "")
	style := testsupport.SeedArtStyle(t, st, "Collage", "")

	for _, status := range []store.StoryStatus{store.StoryStatusGenerating, store.StoryStatusCompleted, store.StoryStatusCompleted} {
		if _, err := st.CreateStory(ctx, &store.Story{
			ChildID:    child.ID,
			ThemeID:    theme.ID,
			ArtStyleID: style.ID,
			Status:     status,
			PageCount:  1,
		}); err != nil {
			t.Fatalf("CreateStory: %v", err)
		}
	}

	stats, err := st.StoryStats(ctx)
	if err != nil {
		t.Fatalf("StoryStats: %v", err)
	}
	if stats[store.StoryStatusGenerating] != 1 || stats[store.StoryStatusCompleted] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	listed, err := st.ListStoriesByChild(ctx, child.ID)
	if err != nil {
		t.Fatalf("ListStoriesByChild: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(listed))
	}
}
