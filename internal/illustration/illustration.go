// Package illustration renders page images from the image model and uploads
// them to object storage. Each render screens the prompt, retries transient
// model failures with doubling backoff, and bounds every attempt with its
// own timeout. Safety blocks are final and never retried.
package illustration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tottales/internal/assets"
	"tottales/internal/config"
	"tottales/internal/logging"
	"tottales/internal/safety"
	"tottales/internal/services"
	"tottales/internal/services/gemini"
	"tottales/internal/store"
)

// ImageModel is the model surface the renderer needs.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string) (*gemini.ImageResult, error)
}

// Settings holds the retry knobs for a renderer.
type Settings struct {
	Attempts       int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
	StoryBucket    string
}

// SettingsFromApp derives renderer settings from application configuration.
func SettingsFromApp(cfg *config.Config) Settings {
	return Settings{
		Attempts:       cfg.Generation.IllustrationAttempts,
		InitialBackoff: time.Duration(cfg.Generation.IllustrationBackoffSeconds) * time.Second,
		AttemptTimeout: time.Duration(cfg.Generation.IllustrationTimeoutSeconds) * time.Second,
		StoryBucket:    cfg.Storage.StoryBucket,
	}
}

func (s *Settings) applyDefaults() {
	if s.Attempts < 1 {
		s.Attempts = 3
	}
	if s.InitialBackoff <= 0 {
		s.InitialBackoff = 2 * time.Second
	}
	if s.AttemptTimeout <= 0 {
		s.AttemptTimeout = 60 * time.Second
	}
}

// Renderer generates and stores page illustrations.
type Renderer struct {
	model    ImageModel
	objects  assets.ObjectStore
	checker  *safety.Checker
	settings Settings
	logger   *slog.Logger
	sleep    func(time.Duration)
	now      func() time.Time
}

// NewRenderer wires the renderer to its collaborators.
func NewRenderer(model ImageModel, objects assets.ObjectStore, checker *safety.Checker, settings Settings, logger *slog.Logger) *Renderer {
	settings.applyDefaults()
	return &Renderer{
		model:    model,
		objects:  objects,
		checker:  checker,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "illustration"),
		sleep:    nil,
		now:      time.Now,
	}
}

// RenderPage generates the illustration for one page and uploads it,
// returning the stored image URL. The art style contributes both its name
// and its prompt-modifier text to the final prompt.
func (r *Renderer) RenderPage(ctx context.Context, page *store.StoryPage, characterDescription string, style *store.ArtStyle) (string, error) {
	var styleName, styleModifier string
	if style != nil {
		styleName = style.Name
		styleModifier = style.Description
	}
	prompt := BuildPrompt(page.ImagePrompt, characterDescription, styleName, styleModifier)
	if err := r.checker.CheckImagePrompt(prompt); err != nil {
		return "", err
	}

	result, err := r.renderWithRetry(ctx, page.StoryID, page.PageNumber, prompt)
	if err != nil {
		return "", err
	}

	key := assets.StoryPageKey(page.StoryID, page.PageNumber, r.now())
	url, err := r.objects.Upload(ctx, r.settings.StoryBucket, key, result.Data, result.MIMEType)
	if err != nil {
		return "", err
	}

	r.logger.Info("page illustrated",
		logging.String(logging.FieldStoryID, page.StoryID),
		logging.Int(logging.FieldPage, page.PageNumber),
		logging.Int("bytes", len(result.Data)))
	return url, nil
}

func (r *Renderer) renderWithRetry(ctx context.Context, storyID string, pageNumber int, prompt string) (*gemini.ImageResult, error) {
	var lastErr error
	delay := r.settings.InitialBackoff

	for attempt := 1; attempt <= r.settings.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.settings.AttemptTimeout)
		result, err := r.model.GenerateImage(attemptCtx, prompt)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !services.Retryable(err) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		if attempt == r.settings.Attempts {
			break
		}

		r.logger.Warn("illustration attempt failed, retrying",
			logging.String(logging.FieldStoryID, storyID),
			logging.Int(logging.FieldPage, pageNumber),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err))
		if err := r.wait(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}

	return nil, services.Wrap(services.ErrExternalModel, "illustration", "render",
		fmt.Sprintf("failed after %d attempts", r.settings.Attempts), lastErr)
}

func (r *Renderer) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if r.sleep != nil {
		r.sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BuildPrompt combines the scene prompt with the character description and
// art style so the protagonist stays visually consistent across pages. The
// style modifier is injected verbatim into every image prompt.
func BuildPrompt(imagePrompt, characterDescription, styleName, styleModifier string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(imagePrompt))
	if characterDescription != "" {
		b.WriteString("\n\nThe main character: ")
		b.WriteString(strings.TrimSpace(characterDescription))
		b.WriteString(". Keep the character's appearance identical to this description.")
	}
	modifier := strings.TrimSpace(styleModifier)
	if styleName != "" || modifier != "" {
		b.WriteString("\n\nIllustration style: ")
		if styleName != "" {
			b.WriteString(styleName)
			b.WriteString(". ")
		}
		if modifier != "" {
			b.WriteString(modifier)
			if !strings.HasSuffix(modifier, ".") {
				b.WriteString(".")
			}
			b.WriteString(" ")
		}
		b.WriteString("Bright, friendly children's book illustration.")
	}
	return b.String()
}
