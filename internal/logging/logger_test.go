package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tottales/internal/logging"
	"tottales/internal/services"
)

func TestNewWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "tottales.log")
	logger, err := logging.New(logging.Options{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("story completed", logging.String(logging.FieldStoryID, "abc"), logging.Int(logging.FieldPage, 3))

	contents, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(contents)
	if !strings.Contains(text, "story completed") {
		t.Fatalf("expected message in log output, got %q", text)
	}
	if !strings.Contains(text, "story_id=abc") {
		t.Fatalf("expected story_id attribute in log output, got %q", text)
	}
	if !strings.Contains(text, "page=3") {
		t.Fatalf("expected page attribute in log output, got %q", text)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tottales.log")
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStoryID(context.Background(), "story-7")
	ctx = services.WithStage(ctx, "writing")
	logging.WithContext(ctx, logger).Info("generating narrative")

	contents, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(contents)
	if !strings.Contains(text, "story_id=story-7") {
		t.Fatalf("expected story id from context, got %q", text)
	}
	if !strings.Contains(text, "stage=writing") {
		t.Fatalf("expected stage from context, got %q", text)
	}
}

func TestNoopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	// Must not panic and must report disabled at every level.
	logger.Info("ignored")
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("expected noop logger to be disabled")
	}
}
