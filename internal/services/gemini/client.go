package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"tottales/internal/config"
	"tottales/internal/logging"
	"tottales/internal/services"
)

const stageLabel = "gemini"

// Config captures the connection settings for the Google model API.
type Config struct {
	APIKey      string
	TextModel   string
	VisionModel string
	ImageModel  string
	Timeout     time.Duration
}

// ConfigFromApp derives client settings from application configuration.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		APIKey:      cfg.Gemini.APIKey,
		TextModel:   cfg.Gemini.TextModel,
		VisionModel: cfg.Gemini.VisionModel,
		ImageModel:  cfg.Gemini.ImageModel,
		Timeout:     time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	}
}

// Image is an inline image handed to the vision model.
type Image struct {
	Data     []byte
	MIMEType string
}

// ImageResult is a generated illustration returned by the image model.
type ImageResult struct {
	Data     []byte
	MIMEType string
}

// Client wraps the genai SDK with the repository's error taxonomy and
// per-request timeouts.
type Client struct {
	cfg    Config
	api    *genai.Client
	logger *slog.Logger
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the transport used by the underlying SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// New constructs a Client. The API key is required.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageLabel, "new", "api key is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	var settings options
	for _, opt := range opts {
		opt(&settings)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if settings.httpClient != nil {
		clientCfg.HTTPClient = settings.httpClient
	}

	api, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageLabel, "new", "create client", err)
	}

	return &Client{
		cfg:    cfg,
		api:    api,
		logger: logging.NewComponentLogger(logger, "gemini"),
	}, nil
}

// GenerateText runs a single text completion against the text model.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generateText(ctx, c.cfg.TextModel, []*genai.Part{{Text: prompt}})
}

// GenerateVision runs a text completion with inline reference images against
// the vision model.
func (c *Client) GenerateVision(ctx context.Context, prompt string, images []Image) (string, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, &genai.Part{Text: prompt})
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = http.DetectContentType(img.Data)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: img.Data}})
	}
	return c.generateText(ctx, c.cfg.VisionModel, parts)
}

// GenerateImage produces a single illustration from the image model.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*ImageResult, error) {
	started := time.Now()
	resp, err := c.generate(ctx, c.cfg.ImageModel, []*genai.Part{{Text: prompt}})
	if err != nil {
		return nil, err
	}

	result, err := ExtractImage(resp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("image generated",
		logging.String("model", c.cfg.ImageModel),
		logging.Int("bytes", len(result.Data)),
		logging.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (c *Client) generateText(ctx context.Context, model string, parts []*genai.Part) (string, error) {
	resp, err := c.generate(ctx, model, parts)
	if err != nil {
		return "", err
	}
	text, err := ExtractText(resp)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, model string, parts []*genai.Part) (*genai.GenerateContentResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	resp, err := c.api.Models.GenerateContent(reqCtx, model, contents, nil)
	if err != nil {
		return nil, classifyCallError(err)
	}
	if blocked, reason := BlockedBySafety(resp); blocked {
		return nil, services.Wrap(services.ErrSafetyBlocked, stageLabel, "generate", reason, nil)
	}
	return resp, nil
}

func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isContextError(err):
		return services.Wrap(services.ErrTimeout, stageLabel, "generate", "request deadline exceeded", err)
	case mentionsSafety(err.Error()):
		return services.Wrap(services.ErrSafetyBlocked, stageLabel, "generate", "request blocked", err)
	default:
		return services.Wrap(services.ErrExternalModel, stageLabel, "generate", "model request failed", err)
	}
}

func isContextError(err error) bool {
	return strings.Contains(err.Error(), context.DeadlineExceeded.Error()) ||
		strings.Contains(err.Error(), context.Canceled.Error())
}

// BlockedBySafety reports whether the response was withheld by content safety
// and, when it was, describes why.
func BlockedBySafety(resp *genai.GenerateContentResponse) (bool, string) {
	if resp == nil {
		return false, ""
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return true, fmt.Sprintf("prompt blocked: %s", fb.BlockReason)
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if candidate.FinishReason == genai.FinishReasonSafety {
			return true, "candidate blocked: safety"
		}
	}
	return false, ""
}

// ExtractText pulls the first non-empty text part out of a response.
func ExtractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", services.Wrap(services.ErrEmptyGeneration, stageLabel, "extract", "nil response", nil)
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var builder strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			builder.WriteString(part.Text)
		}
		if text := strings.TrimSpace(builder.String()); text != "" {
			return text, nil
		}
	}
	return "", services.Wrap(services.ErrEmptyGeneration, stageLabel, "extract", "no text in response", nil)
}

// ExtractImage pulls the first inline image out of a response.
func ExtractImage(resp *genai.GenerateContentResponse) (*ImageResult, error) {
	if resp == nil {
		return nil, services.Wrap(services.ErrEmptyGeneration, stageLabel, "extract", "nil response", nil)
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return &ImageResult{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
		}
	}
	return nil, services.Wrap(services.ErrEmptyGeneration, stageLabel, "extract", "no image in response", nil)
}

func mentionsSafety(message string) bool {
	lowered := strings.ToLower(message)
	return strings.Contains(lowered, "safety") || strings.Contains(lowered, "blocked")
}
