// Package safety screens generated story text and image prompts before they
// are persisted or sent to the image model. Screening is a denylist pass over
// lowercased content; the config flag decides whether a hit blocks the
// pipeline or only logs a warning.
package safety

import (
	"fmt"
	"log/slog"
	"strings"

	"tottales/internal/logging"
	"tottales/internal/services"
)

// MinImagePromptLength is the shortest prompt accepted by the image model
// screen. Anything shorter is almost certainly a truncated generation.
const MinImagePromptLength = 10

var storyDenylist = []string{
	"kill", "die", "death", "blood", "scary", "monster",
	"hate", "stupid", "ugly", "weapon", "gun", "knife",
}

var imagePromptDenylist = []string{
	"naked", "nude", "violent", "blood", "gore", "weapon",
	"gun", "knife", "scary", "horror", "adult", "sexy",
}

// Checker validates generated content against the age-appropriate denylists.
type Checker struct {
	blocking bool
	logger   *slog.Logger
}

// NewChecker builds a Checker. When blocking is false, denylist hits are
// logged and the content passes.
func NewChecker(blocking bool, logger *slog.Logger) *Checker {
	return &Checker{
		blocking: blocking,
		logger:   logging.NewComponentLogger(logger, "safety"),
	}
}

// Blocking reports whether denylist hits fail validation.
func (c *Checker) Blocking() bool {
	return c.blocking
}

// CheckStoryText screens narrative text destined for a child reader.
func (c *Checker) CheckStoryText(text string) error {
	return c.check("story text", text, storyDenylist)
}

// CheckImagePrompt screens a prompt before it is sent to the image model.
// Prompts below the minimum length are rejected regardless of mode.
func (c *Checker) CheckImagePrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < MinImagePromptLength {
		return services.Wrap(services.ErrValidation, "safety", "check",
			fmt.Sprintf("image prompt too short (%d chars, minimum %d)", len(trimmed), MinImagePromptLength), nil)
	}
	return c.check("image prompt", trimmed, imagePromptDenylist)
}

func (c *Checker) check(kind, content string, denylist []string) error {
	term := firstDenylistHit(content, denylist)
	if term == "" {
		return nil
	}
	if !c.blocking {
		c.logger.Warn("content flagged in advisory mode",
			logging.String("kind", kind),
			logging.String("term", term))
		return nil
	}
	return services.Wrap(services.ErrSafetyBlocked, "safety", "check",
		fmt.Sprintf("%s contains disallowed term %q", kind, term), nil)
}

func firstDenylistHit(content string, denylist []string) string {
	lowered := strings.ToLower(content)
	for _, term := range denylist {
		if strings.Contains(lowered, term) {
			return term
		}
	}
	return ""
}
