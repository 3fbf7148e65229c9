package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"tottales/internal/api"
	"tottales/internal/config"
	"tottales/internal/logging"
	"tottales/internal/services"
	"tottales/internal/store"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/stories", authMiddleware(token, srv.handleStories))
	mux.HandleFunc("/api/stories/", authMiddleware(token, srv.handleStoryItem))
	mux.HandleFunc("/api/children", authMiddleware(token, srv.handleChildren))
	mux.HandleFunc("/api/children/", authMiddleware(token, srv.handleChildItem))
	mux.HandleFunc("/api/previews", authMiddleware(token, srv.handlePreviews))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleStories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listStories(w, r)
	case http.MethodPost:
		s.createStory(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listStories(w http.ResponseWriter, r *http.Request) {
	childID := strings.TrimSpace(r.URL.Query().Get("child_id"))

	var (
		stories []*store.Story
		err     error
	)
	if childID != "" {
		stories, err = s.daemon.store.ListStoriesByChild(r.Context(), childID)
	} else {
		stories, err = s.daemon.store.ListStories(r.Context())
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := api.StoryListResponse{Stories: make([]api.StoryView, 0, len(stories))}
	for _, story := range stories {
		resp.Stories = append(resp.Stories, api.FromStory(story, nil))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) createStory(w http.ResponseWriter, r *http.Request) {
	var req api.CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChildID == "" || req.ThemeID == "" || req.ArtStyleID == "" {
		s.writeError(w, http.StatusBadRequest, "child_id, theme_id, and art_style_id are required")
		return
	}

	story, err := s.daemon.GenerateStory(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CreateStoryResponse{
		StoryID: story.ID,
		Status:  string(story.Status),
	})
}

// handleStoryItem routes /api/stories/{id} and
// /api/stories/{id}/pages/{n}/regenerate.
func (s *apiServer) handleStoryItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/stories/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.storyByID(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "pages" && parts[3] == "regenerate":
		s.regeneratePage(w, r, parts[0], parts[2])
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) storyByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		story, err := s.daemon.store.GetStory(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if story == nil {
			s.writeError(w, http.StatusNotFound, "story does not exist")
			return
		}
		pages, err := s.daemon.store.ListPages(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromStory(story, pages))
	case http.MethodDelete:
		removed, err := s.daemon.DeleteStory(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !removed {
			s.writeError(w, http.StatusNotFound, "story does not exist")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) regeneratePage(w http.ResponseWriter, r *http.Request, storyID, pageStr string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	pageNumber, err := strconv.Atoi(pageStr)
	if err != nil || pageNumber < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}

	var req api.RegeneratePageRequest
	if r.Body != nil {
		// An empty body defaults to illustration-only regeneration.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	page, err := s.daemon.RegeneratePage(r.Context(), storyID, pageNumber, req.Mode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPage(page))
}

func (s *apiServer) handleChildren(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		children, err := s.daemon.store.ListChildren(r.Context(), userID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := api.ChildListResponse{Children: make([]api.ChildView, 0, len(children))}
		for _, child := range children {
			resp.Children = append(resp.Children, api.FromChild(child))
		}
		s.writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req api.AddChildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" || req.UserID == "" {
			s.writeError(w, http.StatusBadRequest, "user_id and name are required")
			return
		}
		child, err := s.daemon.store.CreateChild(r.Context(), &store.Child{
			UserID:    req.UserID,
			Name:      req.Name,
			Age:       req.Age,
			Gender:    req.Gender,
			PhotoURLs: req.PhotoURLs,
		})
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, api.FromChild(child))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleChildItem routes /api/children/{id}/photos.
func (s *apiServer) handleChildItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/children/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "photos" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.AddChildPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	child, err := s.daemon.AddChildPhoto(r.Context(), parts[0], req.Data, req.ContentType)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromChild(child))
}

func (s *apiServer) handlePreviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.daemon.GeneratePreviews(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PreviewResponse{
		ThemesGenerated: summary.ThemesGenerated,
		StylesGenerated: summary.StylesGenerated,
		Skipped:         summary.Skipped,
		Failed:          summary.Failed,
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrSafetyBlocked):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
