// Package preview generates the catalog preview images shown when picking a
// theme or art style. It is an administrative operation: previews that
// already exist are skipped, and failures on one entry do not stop the rest.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tottales/internal/assets"
	"tottales/internal/logging"
	"tottales/internal/services/gemini"
	"tottales/internal/store"
)

// ImageModel is the model surface the generator needs.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string) (*gemini.ImageResult, error)
}

// Summary reports what a generation pass did.
type Summary struct {
	ThemesGenerated int `json:"themes_generated"`
	StylesGenerated int `json:"styles_generated"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// Generator renders and stores preview images for reference records.
type Generator struct {
	store   *store.Store
	refs    *store.ReferenceCache
	model   ImageModel
	objects assets.ObjectStore
	bucket  string
	logger  *slog.Logger
	now     func() time.Time
}

// NewGenerator wires the generator to its collaborators.
func NewGenerator(st *store.Store, refs *store.ReferenceCache, model ImageModel, objects assets.ObjectStore, bucket string, logger *slog.Logger) *Generator {
	return &Generator{
		store:   st,
		refs:    refs,
		model:   model,
		objects: objects,
		bucket:  bucket,
		logger:  logging.NewComponentLogger(logger, "preview"),
		now:     time.Now,
	}
}

// GenerateAll fills in missing previews for every theme and art style.
func (g *Generator) GenerateAll(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	themes, err := g.store.ListThemes(ctx)
	if err != nil {
		return nil, err
	}
	for _, theme := range themes {
		if theme.PreviewImageURL != "" {
			summary.Skipped++
			continue
		}
		url, err := g.render(ctx, "themes", theme.ID, themePrompt(theme))
		if err != nil {
			summary.Failed++
			g.logger.Warn("theme preview failed", logging.String("theme", theme.ID), logging.Error(err))
			continue
		}
		if err := g.store.UpdateThemePreview(ctx, theme.ID, url); err != nil {
			return summary, err
		}
		g.refs.InvalidateTheme(theme.ID)
		summary.ThemesGenerated++
	}

	styles, err := g.store.ListArtStyles(ctx)
	if err != nil {
		return summary, err
	}
	for _, style := range styles {
		if style.PreviewImageURL != "" {
			summary.Skipped++
			continue
		}
		url, err := g.render(ctx, "styles", style.ID, stylePrompt(style))
		if err != nil {
			summary.Failed++
			g.logger.Warn("art style preview failed", logging.String("style", style.ID), logging.Error(err))
			continue
		}
		if err := g.store.UpdateArtStylePreview(ctx, style.ID, url); err != nil {
			return summary, err
		}
		g.refs.InvalidateArtStyle(style.ID)
		summary.StylesGenerated++
	}

	g.logger.Info("preview pass finished",
		logging.Int("themes", summary.ThemesGenerated),
		logging.Int("styles", summary.StylesGenerated),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed))
	return summary, nil
}

func (g *Generator) render(ctx context.Context, kind, id, prompt string) (string, error) {
	result, err := g.model.GenerateImage(ctx, prompt)
	if err != nil {
		return "", err
	}
	key := assets.PreviewKey(kind, id, g.now())
	return g.objects.Upload(ctx, g.bucket, key, result.Data, result.MIMEType)
}

func themePrompt(theme *store.Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A bright, friendly children's book cover illustration representing the theme %q.", theme.Name)
	if theme.Description != "" {
		fmt.Fprintf(&b, " %s.", strings.TrimSuffix(theme.Description, "."))
	}
	b.WriteString(" No text in the image. Warm, inviting, suitable for young children.")
	return b.String()
}

func stylePrompt(style *store.ArtStyle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A sample children's book illustration of a cheerful meadow scene in the %q art style.", style.Name)
	if style.Description != "" {
		fmt.Fprintf(&b, " %s.", strings.TrimSuffix(style.Description, "."))
	}
	b.WriteString(" No text in the image.")
	return b.String()
}
