package store

import (
	"strings"
	"time"
)

// StoryStatus represents the lifecycle of a story.
type StoryStatus string

const (
	StoryStatusDraft      StoryStatus = "draft"
	StoryStatusGenerating StoryStatus = "generating"
	StoryStatusCompleted  StoryStatus = "completed"
	StoryStatusFailed     StoryStatus = "failed"
)

var storyStatuses = map[StoryStatus]struct{}{
	StoryStatusDraft:      {},
	StoryStatusGenerating: {},
	StoryStatusCompleted:  {},
	StoryStatusFailed:     {},
}

// ValidStoryStatus reports whether value names a known story status.
func ValidStoryStatus(value StoryStatus) bool {
	_, ok := storyStatuses[value]
	return ok
}

// PageStatus represents the lifecycle of a single story page.
type PageStatus string

const (
	PageStatusPending    PageStatus = "pending"
	PageStatusGenerating PageStatus = "generating"
	PageStatusCompleted  PageStatus = "completed"
	PageStatusFailed     PageStatus = "failed"
)

var pageStatuses = map[PageStatus]struct{}{
	PageStatusPending:    {},
	PageStatusGenerating: {},
	PageStatusCompleted:  {},
	PageStatusFailed:     {},
}

// ValidPageStatus reports whether value names a known page status.
func ValidPageStatus(value PageStatus) bool {
	_, ok := pageStatuses[value]
	return ok
}

// Pipeline stage labels persisted in story progress.
const (
	StageAnalyzing    = "analyzing"
	StageWriting      = "writing"
	StageIllustrating = "illustrating"
	StageFinalizing   = "finalizing"
)

// Child holds a child profile with reference photos and the cached visual
// description derived from them.
type Child struct {
	ID                   string
	UserID               string
	Name                 string
	Age                  int
	Gender               string
	PhotoURLs            []string
	CharacterDescription string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Theme is a story theme selectable when creating a story.
type Theme struct {
	ID              string
	Name            string
	Description     string
	PreviewImageURL string
}

// ArtStyle is an illustration style selectable when creating a story.
type ArtStyle struct {
	ID              string
	Name            string
	Description     string
	PreviewImageURL string
}

// Story represents a generated storybook persisted in SQLite.
type Story struct {
	ID                 string
	UserID             string
	ChildID            string
	ThemeID            string
	ArtStyleID         string
	Title              string
	Status             StoryStatus
	PageCount          int
	CoverImageURL      string
	ProgressStage      string
	ProgressPagesTotal int
	ProgressPagesDone  int
	ProgressMessage    string
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// StoryPage is a single page of a story with its narrative and illustration.
type StoryPage struct {
	ID                int64
	StoryID           string
	PageNumber        int
	Text              string
	SceneDescription  string
	ImagePrompt       string
	ImageURL          string
	Status            PageStatus
	RegenerationCount int
	UpdatedAt         time.Time
}

// SetProgress mutates the story's progress fields in one step.
func (s *Story) SetProgress(stage string, pagesDone, pagesTotal int, message string) {
	s.ProgressStage = stage
	s.ProgressPagesDone = pagesDone
	s.ProgressPagesTotal = pagesTotal
	s.ProgressMessage = message
}

// SetFailed marks the story failed and records the triggering error.
func (s *Story) SetFailed(message string) {
	s.Status = StoryStatusFailed
	s.ErrorMessage = strings.TrimSpace(message)
}

// Finished reports whether the story reached a terminal status.
func (s *Story) Finished() bool {
	return s.Status == StoryStatusCompleted || s.Status == StoryStatusFailed
}
