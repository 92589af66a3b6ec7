// Package api talks to the distribution service's REST endpoints: upload
// listings, build lookups and upgrade paths.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-hangar/internal/models"
	"go-hangar/internal/updates"
	"go-hangar/internal/wharf"

	log "github.com/sirupsen/logrus"
)

// Error classes for remote failures.
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

const DefaultBaseURL = "https://itch.io/api/1"

const maxRetries = 3

// Client is the REST client. It implements updates.Client.
type Client struct {
	BaseURL    string
	ApiKey     string
	HttpClient *http.Client
}

var _ updates.Client = (*Client)(nil)

// NewClient creates a new API client. A nil httpClient gets a sane
// default with the configured timeout.
func NewClient(apiKey string, httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.ApiClientTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		BaseURL:    DefaultBaseURL,
		ApiKey:     apiKey,
		HttpClient: httpClient,
	}
}

// ListUploads fetches a game's current uploads.
func (c *Client) ListUploads(ctx context.Context, gameID int64) ([]*models.Upload, error) {
	var out struct {
		Uploads []*models.Upload `json:"uploads"`
	}
	path := fmt.Sprintf("/games/%d/uploads", gameID)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Uploads, nil
}

// GetUpload fetches the current state of one upload.
func (c *Client) GetUpload(ctx context.Context, uploadID int64) (*models.Upload, error) {
	var out struct {
		Upload *models.Upload `json:"upload"`
	}
	path := fmt.Sprintf("/uploads/%d", uploadID)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Upload, nil
}

// FindUpgradePath computes the patch chain between two builds of an
// upload.
func (c *Client) FindUpgradePath(ctx context.Context, uploadID, fromBuild, toBuild int64) (*updates.UpgradePath, error) {
	var out struct {
		UpgradePath struct {
			Builds []*models.Build `json:"builds"`
		} `json:"upgradePath"`
		TotalSize int64 `json:"totalSize"`
	}
	path := fmt.Sprintf("/uploads/%d/upgrade/%d?target=%d", uploadID, fromBuild, toBuild)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &updates.UpgradePath{
		Builds:    out.UpgradePath.Builds,
		TotalSize: out.TotalSize,
	}, nil
}

// getJSON performs a GET with auth, retrying rate limits and server
// errors with backoff. Transport failures are classified as network
// errors so background callers can degrade to a silent skip.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	reqURL := c.BaseURL + path

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 2 * time.Second
			log.WithError(lastErr).Warnf("Retrying %s (%d/%d) after %s", path, attempt+1, maxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("creating request for %s: %w", reqURL, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.ApiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.ApiKey)
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Connectivity, DNS, timeouts: the silent-skip class.
			lastErr = fmt.Errorf("%w: %v", wharf.ErrNetwork, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response body: %w", err)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("unmarshalling response from %s: %w", path, err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
		default:
			resp.Body.Close()
			return fmt.Errorf("API request failed with status %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
	return lastErr
}
