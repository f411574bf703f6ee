// Package library triggers Audiobookshelf library scans after a book is organized.
package library

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"librarian/internal/config"
	"librarian/internal/services"
)

// HTTPDoer describes the HTTP client used by the scanner.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Scanner refreshes the media server after new content lands.
type Scanner interface {
	Scan(ctx context.Context) error
}

// NewConfiguredScanner returns an Audiobookshelf scanner when the library
// section is enabled, and a no-op scanner otherwise.
func NewConfiguredScanner(cfg *config.Config) Scanner {
	if cfg == nil || !cfg.Library.Enabled {
		return noopScanner{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Library.URL), "/")
	apiKey := strings.TrimSpace(cfg.Library.APIKey)
	if baseURL == "" || apiKey == "" {
		return noopScanner{}
	}
	timeout := config.Seconds(cfg.Library.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewAudiobookshelf(baseURL, apiKey, cfg.Library.LibraryID, &http.Client{Timeout: timeout})
}

// Audiobookshelf talks to the Audiobookshelf REST API.
type Audiobookshelf struct {
	baseURL   string
	apiKey    string
	libraryID string
	client    HTTPDoer
}

// NewAudiobookshelf constructs an Audiobookshelf scanner.
func NewAudiobookshelf(baseURL, apiKey, libraryID string, client HTTPDoer) *Audiobookshelf {
	if client == nil {
		client = http.DefaultClient
	}
	return &Audiobookshelf{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		libraryID: strings.TrimSpace(libraryID),
		client:    client,
	}
}

// Scan asks Audiobookshelf to rescan the configured library.
func (a *Audiobookshelf) Scan(ctx context.Context) error {
	if a.libraryID == "" {
		return services.Wrap(services.ErrConfiguration, "library", "scan", "library.library_id is not set", nil)
	}
	endpoint := fmt.Sprintf("%s/api/libraries/%s/scan", a.baseURL, url.PathEscape(a.libraryID))
	return a.do(ctx, http.MethodPost, endpoint, "scan")
}

// Check verifies the API key by fetching the authenticated user.
func (a *Audiobookshelf) Check(ctx context.Context) error {
	return a.do(ctx, http.MethodGet, a.baseURL+"/api/me", "check")
}

func (a *Audiobookshelf) do(ctx context.Context, method, endpoint, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build audiobookshelf %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "library", operation, "audiobookshelf unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "library", operation,
			fmt.Sprintf("audiobookshelf rejected the api key (%d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, "library", operation,
			fmt.Sprintf("audiobookshelf library %q not found", a.libraryID), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return services.Wrap(services.ErrExternalTool, "library", operation,
			fmt.Sprintf("audiobookshelf returned %d", resp.StatusCode), nil)
	}
	return nil
}

type noopScanner struct{}

func (noopScanner) Scan(context.Context) error { return nil }
