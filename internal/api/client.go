package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon at baseURL. An empty token
// disables the Authorization header.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateStory submits a generation request and returns the accepted story ID.
func (c *Client) CreateStory(ctx context.Context, req CreateStoryRequest) (*CreateStoryResponse, error) {
	var resp CreateStoryResponse
	if err := c.do(ctx, http.MethodPost, "/api/stories", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStory fetches one story with its pages and progress.
func (c *Client) GetStory(ctx context.Context, id string) (*StoryView, error) {
	var view StoryView
	if err := c.do(ctx, http.MethodGet, "/api/stories/"+id, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListStories lists stories, optionally filtered by child.
func (c *Client) ListStories(ctx context.Context, childID string) ([]StoryView, error) {
	path := "/api/stories"
	if childID != "" {
		path += "?child_id=" + childID
	}
	var resp StoryListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stories, nil
}

// RegeneratePage requests a new illustration (or rewritten content) for one
// page.
func (c *Client) RegeneratePage(ctx context.Context, storyID string, pageNumber int, mode string) error {
	path := fmt.Sprintf("/api/stories/%s/pages/%d/regenerate", storyID, pageNumber)
	return c.do(ctx, http.MethodPost, path, RegeneratePageRequest{Mode: mode}, nil)
}

// DeleteStory removes a story, its pages, and its stored images.
func (c *Client) DeleteStory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/stories/"+id, nil, nil)
}

// ListChildren lists child profiles for a user.
func (c *Client) ListChildren(ctx context.Context, userID string) ([]ChildView, error) {
	path := "/api/children"
	if userID != "" {
		path += "?user_id=" + userID
	}
	var resp ChildListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Children, nil
}

// AddChild creates a child profile.
func (c *Client) AddChild(ctx context.Context, req AddChildRequest) (*ChildView, error) {
	var view ChildView
	if err := c.do(ctx, http.MethodPost, "/api/children", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// AddChildPhoto uploads a reference photo for a child profile.
func (c *Client) AddChildPhoto(ctx context.Context, childID string, data []byte, contentType string) (*ChildView, error) {
	var view ChildView
	req := AddChildPhotoRequest{Data: data, ContentType: contentType}
	if err := c.do(ctx, http.MethodPost, "/api/children/"+childID+"/photos", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Status fetches daemon health.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GeneratePreviews triggers a preview generation pass.
func (c *Client) GeneratePreviews(ctx context.Context) (*PreviewResponse, error) {
	var resp PreviewResponse
	if err := c.do(ctx, http.MethodPost, "/api/previews", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed (is tottalesd running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
