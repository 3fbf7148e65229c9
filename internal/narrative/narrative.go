// Package narrative turns a story request into a titled, paginated
// manuscript. A single text model call produces the full story as JSON; the
// generator validates the structure, screens the text, and fills in the
// fallbacks the rest of the pipeline relies on.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tottales/internal/logging"
	"tottales/internal/safety"
	"tottales/internal/services"
	"tottales/internal/services/gemini"
	"tottales/internal/store"
)

// TextModel is the model surface the generator needs.
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Request carries everything the generator needs to write a story.
type Request struct {
	Child                *store.Child
	Theme                *store.Theme
	Style                *store.ArtStyle
	CharacterDescription string
	PageCount            int
}

// Page is one generated page of the manuscript.
type Page struct {
	PageNumber       int    `json:"page_number"`
	Text             string `json:"text"`
	SceneDescription string `json:"scene_description"`
	ImagePrompt      string `json:"image_prompt"`
}

// Story is the full generated manuscript.
type Story struct {
	Title string `json:"title"`
	Pages []Page `json:"pages"`
}

// Generator produces manuscripts from the text model.
type Generator struct {
	model   TextModel
	checker *safety.Checker
	logger  *slog.Logger
	titler  cases.Caser
}

// NewGenerator wires the generator to its collaborators.
func NewGenerator(model TextModel, checker *safety.Checker, logger *slog.Logger) *Generator {
	return &Generator{
		model:   model,
		checker: checker,
		logger:  logging.NewComponentLogger(logger, "narrative"),
		titler:  cases.Title(language.English),
	}
}

// Generate writes the complete story in one model call. Any failure here is
// fatal to story generation; there is no per-page recovery for narrative.
func (g *Generator) Generate(ctx context.Context, req Request) (*Story, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	raw, err := g.model.GenerateText(ctx, g.storyPrompt(req))
	if err != nil {
		return nil, err
	}

	var story Story
	if err := gemini.DecodeModelJSON(raw, &story); err != nil {
		return nil, services.Wrap(services.ErrExternalModel, "narrative", "generate", "decode story payload", err)
	}

	if err := g.normalize(&story, req); err != nil {
		return nil, err
	}

	g.logger.Info("story generated",
		logging.String("title", story.Title),
		logging.Int("pages", len(story.Pages)))
	return &story, nil
}

// RegeneratePage rewrites the text and scene for a single page, keeping it
// coherent with the surrounding pages. An unparseable or empty model
// response falls back to the page's existing text and scene instead of
// failing, so a flaky rewrite never loses the page.
func (g *Generator) RegeneratePage(ctx context.Context, req Request, pages []*store.StoryPage, pageNumber int) (*Page, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var current *store.StoryPage
	for _, p := range pages {
		if p.PageNumber == pageNumber {
			current = p
			break
		}
	}
	if current == nil {
		return nil, services.Wrap(services.ErrValidation, "narrative", "regenerate",
			fmt.Sprintf("page %d out of range 1..%d", pageNumber, len(pages)), nil)
	}

	raw, err := g.model.GenerateText(ctx, g.regeneratePrompt(req, pages, pageNumber))
	if err != nil {
		return nil, err
	}

	var page Page
	if err := gemini.DecodeModelJSON(raw, &page); err != nil {
		g.logger.Warn("page rewrite unparseable, keeping existing text",
			logging.Int("page", pageNumber),
			logging.Error(err))
		page = Page{}
	}
	page.PageNumber = pageNumber
	if strings.TrimSpace(page.Text) == "" {
		page.Text = current.Text
	}
	if strings.TrimSpace(page.SceneDescription) == "" {
		page.SceneDescription = current.SceneDescription
	}
	if page.ImagePrompt == "" {
		page.ImagePrompt = page.SceneDescription
	}
	if page.ImagePrompt == "" {
		page.ImagePrompt = current.ImagePrompt
	}
	if err := g.checker.CheckStoryText(page.Text); err != nil {
		return nil, err
	}
	return &page, nil
}

func validateRequest(req Request) error {
	switch {
	case req.Child == nil:
		return services.Wrap(services.ErrValidation, "narrative", "generate", "child is required", nil)
	case req.Theme == nil:
		return services.Wrap(services.ErrValidation, "narrative", "generate", "theme is required", nil)
	case req.Style == nil:
		return services.Wrap(services.ErrValidation, "narrative", "generate", "art style is required", nil)
	case req.PageCount < 1:
		return services.Wrap(services.ErrValidation, "narrative", "generate", "page count must be positive", nil)
	}
	return nil
}

// normalize validates structure, applies fallbacks, and screens the text.
func (g *Generator) normalize(story *Story, req Request) error {
	if len(story.Pages) != req.PageCount {
		return services.Wrap(services.ErrExternalModel, "narrative", "generate",
			fmt.Sprintf("expected %d pages, model returned %d", req.PageCount, len(story.Pages)), nil)
	}

	sort.Slice(story.Pages, func(i, j int) bool {
		return story.Pages[i].PageNumber < story.Pages[j].PageNumber
	})
	for i := range story.Pages {
		page := &story.Pages[i]
		if page.PageNumber != i+1 {
			return services.Wrap(services.ErrExternalModel, "narrative", "generate",
				fmt.Sprintf("page numbering gap at position %d (got page %d)", i+1, page.PageNumber), nil)
		}
		if strings.TrimSpace(page.Text) == "" {
			return services.Wrap(services.ErrEmptyGeneration, "narrative", "generate",
				fmt.Sprintf("page %d has no text", page.PageNumber), nil)
		}
		if page.ImagePrompt == "" {
			page.ImagePrompt = page.SceneDescription
		}
	}

	story.Title = strings.TrimSpace(story.Title)
	if story.Title == "" {
		story.Title = FallbackTitle(req.Child.Name)
	}

	if err := g.checker.CheckStoryText(story.Title); err != nil {
		return err
	}
	for _, page := range story.Pages {
		if err := g.checker.CheckStoryText(page.Text); err != nil {
			return services.Wrap(services.ErrSafetyBlocked, "narrative", "generate",
				fmt.Sprintf("page %d failed content screening", page.PageNumber), err)
		}
	}
	return nil
}

// FallbackTitle is used when the model omits a usable title.
func FallbackTitle(childName string) string {
	return fmt.Sprintf("%s's Adventure", childName)
}

func (g *Generator) storyPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a children's storybook for %s", req.Child.Name)
	if req.Child.Age > 0 {
		fmt.Fprintf(&b, ", who is %d years old", req.Child.Age)
	}
	if req.Child.Gender != "" {
		fmt.Fprintf(&b, " and is a %s", req.Child.Gender)
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Theme: %s", g.titler.String(req.Theme.Name))
	if req.Theme.Description != "" {
		fmt.Fprintf(&b, " (%s)", req.Theme.Description)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Illustration style: %s", g.titler.String(req.Style.Name))
	if req.Style.Description != "" {
		fmt.Fprintf(&b, " (%s)", req.Style.Description)
	}
	b.WriteString("\n")
	if req.CharacterDescription != "" {
		fmt.Fprintf(&b, "The main character looks like this: %s\n", req.CharacterDescription)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "The story must have exactly %d pages. Each page is two to four short sentences of gentle, ", req.PageCount)
	b.WriteString("age-appropriate text with the child as the hero. Keep the tone warm and positive.\n\n")
	b.WriteString("Respond with JSON only, no commentary, in this shape:\n")
	b.WriteString(`{"title": "...", "pages": [{"page_number": 1, "text": "...", "scene_description": "...", "image_prompt": "..."}]}`)
	b.WriteString("\n\nscene_description summarizes what the page shows. image_prompt is a detailed ")
	b.WriteString("illustration instruction for that scene, at least a full sentence.")
	return b.String()
}

func (g *Generator) regeneratePrompt(req Request, pages []*store.StoryPage, pageNumber int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are revising page %d of a children's storybook about %s.\n\n", pageNumber, req.Child.Name)
	b.WriteString("Here is the current story:\n")
	for _, page := range pages {
		fmt.Fprintf(&b, "Page %d: %s\n", page.PageNumber, page.Text)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Rewrite page %d with fresh wording and a fresh scene while staying consistent ", pageNumber)
	b.WriteString("with the pages before and after it. Keep the tone warm, gentle, and age-appropriate.\n\n")
	b.WriteString("Respond with JSON only, in this shape:\n")
	b.WriteString(`{"text": "...", "scene_description": "...", "image_prompt": "..."}`)
	return b.String()
}
