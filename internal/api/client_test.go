package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(StatusResponse{Running: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running status")
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestClientCreateStory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/stories" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req CreateStoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChildID != "child-1" {
			t.Errorf("child_id = %q", req.ChildID)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(CreateStoryResponse{StoryID: "story-1", Status: "generating"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "").CreateStory(context.Background(), CreateStoryRequest{
		ChildID: "child-1", ThemeID: "ocean", ArtStyleID: "watercolor",
	})
	if err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}
	if resp.StoryID != "story-1" {
		t.Fatalf("story_id = %q", resp.StoryID)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "story does not exist"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").GetStory(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "story does not exist") {
		t.Fatalf("expected API error message, got %v", err)
	}
}

func TestClientListStoriesFiltersByChild(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("child_id"); got != "child-7" {
			t.Errorf("child_id query = %q", got)
		}
		json.NewEncoder(w).Encode(StoryListResponse{Stories: []StoryView{{ID: "s1"}}})
	}))
	defer server.Close()

	stories, err := NewClient(server.URL, "").ListStories(context.Background(), "child-7")
	if err != nil {
		t.Fatalf("ListStories returned error: %v", err)
	}
	if len(stories) != 1 || stories[0].ID != "s1" {
		t.Fatalf("unexpected stories %+v", stories)
	}
}
