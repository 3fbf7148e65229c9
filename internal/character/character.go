// Package character derives a reusable appearance description for a child
// from their uploaded reference photos. The description is computed once,
// cached on the child record, and spliced into every illustration prompt so
// the protagonist looks the same across pages and stories.
package character

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tottales/internal/logging"
	"tottales/internal/services"
	"tottales/internal/services/gemini"
	"tottales/internal/store"
)

// maxReferencePhotos bounds how many photos are sent to the vision model per
// analysis.
const maxReferencePhotos = 3

// VisionModel describes the subset of the model client the analyzer needs.
type VisionModel interface {
	GenerateVision(ctx context.Context, prompt string, images []gemini.Image) (string, error)
}

// PhotoFetcher loads photo bytes from a stored URL.
type PhotoFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Analyzer produces and caches character descriptions.
type Analyzer struct {
	store   *store.Store
	model   VisionModel
	fetcher PhotoFetcher
	logger  *slog.Logger
}

// NewAnalyzer wires the analyzer to its collaborators.
func NewAnalyzer(st *store.Store, model VisionModel, fetcher PhotoFetcher, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		store:   st,
		model:   model,
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "character"),
	}
}

// Describe returns the child's character description, running photo analysis
// on first use. Analysis failures fall back to a name-only description so
// story generation never stalls on the vision model; the fallback is not
// cached, letting a later run retry the analysis.
func (a *Analyzer) Describe(ctx context.Context, child *store.Child) (string, error) {
	if child == nil {
		return "", services.Wrap(services.ErrValidation, "character", "describe", "child is required", nil)
	}
	if cached := strings.TrimSpace(child.CharacterDescription); cached != "" {
		return cached, nil
	}

	log := a.logger.With(logging.String(logging.FieldChildID, child.ID))

	images := a.loadPhotos(ctx, log, child)
	if len(images) == 0 {
		log.Warn("no usable reference photos, using fallback description")
		return FallbackDescription(child.Name), nil
	}

	description, err := a.model.GenerateVision(ctx, analysisPrompt(child), images)
	if err != nil {
		logging.WarnWithContext(log, "photo analysis failed, using fallback description",
			"character_analysis_failed", logging.Error(err))
		return FallbackDescription(child.Name), nil
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return FallbackDescription(child.Name), nil
	}

	if err := a.store.UpdateChildCharacterDescription(ctx, child.ID, description); err != nil {
		return "", err
	}
	child.CharacterDescription = description
	log.Info("character description cached", logging.Int("photos", len(images)))
	return description, nil
}

func (a *Analyzer) loadPhotos(ctx context.Context, log *slog.Logger, child *store.Child) []gemini.Image {
	images := make([]gemini.Image, 0, maxReferencePhotos)
	for _, url := range child.PhotoURLs {
		if len(images) == maxReferencePhotos {
			break
		}
		data, err := a.fetcher.Fetch(ctx, url)
		if err != nil {
			log.Warn("skipping unreadable photo", logging.String("url", url), logging.Error(err))
			continue
		}
		images = append(images, gemini.Image{Data: data})
	}
	return images
}

// FallbackDescription is used when photo analysis is unavailable.
func FallbackDescription(name string) string {
	return fmt.Sprintf("A young child named %s", name)
}

func analysisPrompt(child *store.Child) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Look at these photos of a child named %s", child.Name)
	if child.Age > 0 {
		fmt.Fprintf(&builder, ", age %d", child.Age)
	}
	if child.Gender != "" {
		fmt.Fprintf(&builder, ", a %s", child.Gender)
	}
	builder.WriteString(".\n\n")
	builder.WriteString("Write a short physical description suitable for guiding a children's book illustrator: ")
	builder.WriteString("hair color and style, eye color, skin tone, and any distinctive friendly features. ")
	builder.WriteString("Two or three sentences. Describe appearance only, no judgements, no background details.")
	return builder.String()
}
