package safety

import (
	"errors"
	"testing"

	"tottales/internal/logging"
	"tottales/internal/services"
)

func TestCheckStoryTextAcceptsCleanContent(t *testing.T) {
	checker := NewChecker(true, logging.NewNop())
	if err := checker.CheckStoryText("Maya planted sunflower seeds in the garden."); err != nil {
		t.Fatalf("clean text rejected: %v", err)
	}
}

func TestCheckStoryTextBlocksDenylistedTerm(t *testing.T) {
	checker := NewChecker(true, logging.NewNop())
	err := checker.CheckStoryText("The Monster waited under the bridge.")
	if !errors.Is(err, services.ErrSafetyBlocked) {
		t.Fatalf("expected ErrSafetyBlocked, got %v", err)
	}
}

func TestCheckStoryTextCaseInsensitive(t *testing.T) {
	checker := NewChecker(true, logging.NewNop())
	if err := checker.CheckStoryText("It looked SCARY at night."); !errors.Is(err, services.ErrSafetyBlocked) {
		t.Fatalf("expected ErrSafetyBlocked for mixed case term, got %v", err)
	}
}

func TestCheckStoryTextAdvisoryModePasses(t *testing.T) {
	checker := NewChecker(false, logging.NewNop())
	if err := checker.CheckStoryText("The monster smiled."); err != nil {
		t.Fatalf("advisory mode should not reject, got %v", err)
	}
}

func TestCheckImagePromptBlocksDenylistedTerm(t *testing.T) {
	checker := NewChecker(true, logging.NewNop())
	err := checker.CheckImagePrompt("A dark and scary forest scene with fog")
	if !errors.Is(err, services.ErrSafetyBlocked) {
		t.Fatalf("expected ErrSafetyBlocked, got %v", err)
	}
}

func TestCheckImagePromptTooShort(t *testing.T) {
	checker := NewChecker(true, logging.NewNop())
	err := checker.CheckImagePrompt("a cat")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for short prompt, got %v", err)
	}
}

func TestCheckImagePromptShortRejectedEvenInAdvisoryMode(t *testing.T) {
	checker := NewChecker(false, logging.NewNop())
	if err := checker.CheckImagePrompt("  hi  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCheckImagePromptAcceptsCleanPrompt(t *testing.T) {
	checker := NewChecker(true, logging.NewNop())
	prompt := "Watercolor illustration of a girl reading under an oak tree"
	if err := checker.CheckImagePrompt(prompt); err != nil {
		t.Fatalf("clean prompt rejected: %v", err)
	}
}
