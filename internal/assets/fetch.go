package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tottales/internal/services"
)

// maxFetchBytes caps how much of a photo is read into memory.
const maxFetchBytes = 20 << 20

// Fetcher retrieves stored assets by URL so the vision model can be handed
// reference photos regardless of which backend produced the link.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a Fetcher with a bounded request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch reads the bytes behind a file:// or http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(rawURL, "file://"):
		data, err := os.ReadFile(strings.TrimPrefix(rawURL, "file://"))
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "assets", "fetch", "read local object", err)
		}
		return data, nil
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return f.fetchHTTP(ctx, rawURL)
	default:
		return nil, services.Wrap(services.ErrValidation, "assets", "fetch",
			fmt.Sprintf("unsupported asset URL scheme in %q", rawURL), nil)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "fetch", "build request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "assets", "fetch", "request object", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, services.Wrap(services.ErrNotFound, "assets", "fetch",
			fmt.Sprintf("object returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "assets", "fetch",
			fmt.Sprintf("object returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "assets", "fetch", "read response", err)
	}
	return data, nil
}
