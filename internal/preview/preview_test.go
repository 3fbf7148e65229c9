package preview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tottales/internal/assets"
	"tottales/internal/logging"
	"tottales/internal/services/gemini"
	"tottales/internal/store"
	"tottales/internal/testsupport"
)

type stubImageModel struct {
	failFor map[string]bool
	calls   int
}

func (s *stubImageModel) GenerateImage(_ context.Context, prompt string) (*gemini.ImageResult, error) {
	s.calls++
	for marker := range s.failFor {
		if strings.Contains(prompt, marker) {
			return nil, errors.New("model unavailable")
		}
	}
	return &gemini.ImageResult{Data: []byte("img"), MIMEType: "image/jpeg"}, nil
}

func newGenerator(t *testing.T, model ImageModel) (*Generator, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	objects, err := assets.NewLocalStore(cfg.Storage.LocalDir, logging.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return NewGenerator(st, store.NewReferenceCache(st), model, objects, cfg.Storage.PreviewBucket, logging.NewNop()), st
}

func TestGenerateAllFillsMissingPreviews(t *testing.T) {
	model := &stubImageModel{}
	gen, st := newGenerator(t, model)
	ctx := context.Background()

	theme := testsupport.SeedTheme(t, st, "ocean", "waves and whales")
	style := testsupport.SeedArtStyle(t, st, "watercolor", "soft washes")

	summary, err := gen.GenerateAll(ctx)
	if err != nil {
		t.Fatalf("GenerateAll returned error: %v", err)
	}
	if summary.ThemesGenerated != 1 || summary.StylesGenerated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	storedTheme, err := st.GetTheme(ctx, theme.ID)
	if err != nil {
		t.Fatalf("GetTheme: %v", err)
	}
	if storedTheme.PreviewImageURL == "" {
		t.Fatal("theme preview URL not persisted")
	}
	storedStyle, err := st.GetArtStyle(ctx, style.ID)
	if err != nil {
		t.Fatalf("GetArtStyle: %v", err)
	}
	if storedStyle.PreviewImageURL == "" {
		t.Fatal("style preview URL not persisted")
	}
}

func TestGenerateAllSkipsExistingPreviews(t *testing.T) {
	model := &stubImageModel{}
	gen, st := newGenerator(t, model)
	ctx := context.Background()

	theme := testsupport.SeedTheme(t, st, "space", "rockets")
	if err := st.UpdateThemePreview(ctx, theme.ID, "file:///existing.jpg"); err != nil {
		t.Fatalf("UpdateThemePreview: %v", err)
	}

	summary, err := gen.GenerateAll(ctx)
	if err != nil {
		t.Fatalf("GenerateAll returned error: %v", err)
	}
	if summary.Skipped != 1 || model.calls != 0 {
		t.Fatalf("existing preview should be skipped, summary %+v, calls %d", summary, model.calls)
	}
}

func TestGenerateAllContinuesPastFailures(t *testing.T) {
	model := &stubImageModel{failFor: map[string]bool{"forest": true}}
	gen, st := newGenerator(t, model)
	ctx := context.Background()

	testsupport.SeedTheme(t, st, "forest", "tall trees")
	good := testsupport.SeedTheme(t, st, "ocean", "waves")

	summary, err := gen.GenerateAll(ctx)
	if err != nil {
		t.Fatalf("GenerateAll returned error: %v", err)
	}
	if summary.Failed != 1 || summary.ThemesGenerated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	stored, err := st.GetTheme(ctx, good.ID)
	if err != nil {
		t.Fatalf("GetTheme: %v", err)
	}
	if stored.PreviewImageURL == "" {
		t.Fatal("surviving theme should have a preview")
	}
}
