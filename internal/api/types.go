package api

import "time"

// CreateStoryRequest is the POST /api/stories body.
type CreateStoryRequest struct {
	ChildID    string `json:"child_id"`
	ThemeID    string `json:"theme_id"`
	ArtStyleID string `json:"art_style_id"`
	PageCount  int    `json:"page_count,omitempty"`
	Title      string `json:"title,omitempty"`
}

// CreateStoryResponse acknowledges an accepted generation request.
type CreateStoryResponse struct {
	StoryID string `json:"story_id"`
	Status  string `json:"status"`
}

// RegeneratePageRequest is the POST .../pages/{n}/regenerate body. Mode is
// "illustration" (default) or "content".
type RegeneratePageRequest struct {
	Mode string `json:"mode,omitempty"`
}

// PageView is the wire form of one story page.
type PageView struct {
	PageNumber        int    `json:"page_number"`
	Text              string `json:"text,omitempty"`
	SceneDescription  string `json:"scene_description,omitempty"`
	ImageURL          string `json:"image_url,omitempty"`
	Status            string `json:"status"`
	RegenerationCount int    `json:"regeneration_count"`
}

// ProgressView reports pipeline progress for a generating story.
type ProgressView struct {
	Stage      string `json:"stage,omitempty"`
	PagesDone  int    `json:"pages_done"`
	PagesTotal int    `json:"pages_total"`
	Message    string `json:"message,omitempty"`
}

// StoryView is the wire form of a story with its pages.
type StoryView struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id,omitempty"`
	ChildID       string       `json:"child_id"`
	ThemeID       string       `json:"theme_id"`
	ArtStyleID    string       `json:"art_style_id"`
	Title         string       `json:"title"`
	Status        string       `json:"status"`
	PageCount     int          `json:"page_count"`
	CoverImageURL string       `json:"cover_image_url,omitempty"`
	Progress      ProgressView `json:"progress"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	Pages         []PageView   `json:"pages,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// StoryListResponse wraps a story listing.
type StoryListResponse struct {
	Stories []StoryView `json:"stories"`
}

// ChildView is the wire form of a child profile.
type ChildView struct {
	ID                   string   `json:"id"`
	UserID               string   `json:"user_id"`
	Name                 string   `json:"name"`
	Age                  int      `json:"age"`
	Gender               string   `json:"gender,omitempty"`
	PhotoURLs            []string `json:"photo_urls,omitempty"`
	CharacterDescription string   `json:"character_description,omitempty"`
}

// AddChildRequest is the POST /api/children body.
type AddChildRequest struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender,omitempty"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
}

// AddChildPhotoRequest is the POST /api/children/{id}/photos body. Data is
// base64 on the wire.
type AddChildPhotoRequest struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type,omitempty"`
}

// ChildListResponse wraps a child listing.
type ChildListResponse struct {
	Children []ChildView `json:"children"`
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	DatabasePath   string         `json:"database_path"`
	StorageBackend string         `json:"storage_backend"`
	TextModel      string         `json:"text_model"`
	ImageModel     string         `json:"image_model"`
	Stories        map[string]int `json:"stories"`
}

// PreviewResponse reports the outcome of a preview generation pass.
type PreviewResponse struct {
	ThemesGenerated int `json:"themes_generated"`
	StylesGenerated int `json:"styles_generated"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
