package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reels-agent/pkg/logger"
	"github.com/reels-agent/pkg/ratelimit"
)

const defaultBaseURL = "https://graph.instagram.com"

// Client handles Instagram Graph API requests
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	baseURL     string
	apiVersion  string
	log         *logger.Logger
}

// Config holds Graph API client settings
type Config struct {
	BaseURL    string
	APIVersion string
}

// NewClient creates a new Graph API client
func NewClient(cfg Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v19.0"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: limiter,
		baseURL:     baseURL,
		apiVersion:  apiVersion,
		log:         log.WithComponent("meta"),
	}
}

// MediaSummary is one entry of a source account's media feed
type MediaSummary struct {
	MetaID       string    `json:"id"`
	MediaType    string    `json:"media_type"`
	MediaURL     string    `json:"media_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Caption      string    `json:"caption"`
	Likes        int       `json:"like_count"`
	Comments     int       `json:"comments_count"`
	PostedAt     time.Time `json:"-"`
}

// MediaDetail carries the per-media fields not present in the feed listing
type MediaDetail struct {
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Views        int    `json:"video_view_count"`
	Shares       int    `json:"share_count"`
	Caption      string `json:"caption"`
}

// IsVideo reports whether the media can be republished as a reel
func (m MediaSummary) IsVideo() bool {
	return m.MediaType == "VIDEO" || m.MediaType == "CAROUSEL_ALBUM"
}

// do performs an HTTP request with rate limiting and transient-error retry
func (c *Client) do(ctx context.Context, limiterName, method, path string, query url.Values, body interface{}, accessToken string) ([]byte, error) {
	// Wait for the client-side limiter before touching the API
	if err := c.rateLimiter.Wait(ctx, limiterName); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	var reqBody []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = data
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var respBody []byte
	operation := func() error {
		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Msg("Making Graph API request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		c.log.Debug().
			Int("status", resp.StatusCode).
			Msg("Graph API response")

		if resp.StatusCode >= 500 {
			return fmt.Errorf("graph API error: %s - %s", resp.Status, string(data))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("graph API error: %s - %s", resp.Status, string(data)))
		}

		respBody = data
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return respBody, nil
}

// FetchCandidateMedia lists recent media published by a source account
func (c *Client) FetchCandidateMedia(ctx context.Context, sourceID, accessToken string) ([]MediaSummary, error) {
	data, err := c.do(ctx, ratelimit.LimiterGraphRead, http.MethodGet,
		sourceID+"/media", nil, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media for source %s: %w", sourceID, err)
	}

	var payload struct {
		Data []struct {
			MediaSummary
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode media list: %w", err)
	}

	summaries := make([]MediaSummary, 0, len(payload.Data))
	for _, entry := range payload.Data {
		summary := entry.MediaSummary
		if ts, err := time.Parse(time.RFC3339, entry.Timestamp); err == nil {
			summary.PostedAt = ts
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// FetchMediaDetail retrieves view/share counters for one media item
func (c *Client) FetchMediaDetail(ctx context.Context, mediaID, accessToken string) (*MediaDetail, error) {
	query := url.Values{}
	query.Set("fields", "media_url,thumbnail_url,video_view_count,share_count,caption,timestamp")

	data, err := c.do(ctx, ratelimit.LimiterGraphRead, http.MethodGet,
		mediaID, query, nil, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media detail %s: %w", mediaID, err)
	}

	var detail MediaDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode media detail: %w", err)
	}
	return &detail, nil
}

// CheckAvailability reports whether the source media still resolves
func (c *Client) CheckAvailability(ctx context.Context, mediaID, accessToken string) (bool, error) {
	data, err := c.do(ctx, ratelimit.LimiterGraphRead, http.MethodGet,
		mediaID, nil, nil, accessToken)
	if err != nil {
		return false, nil
	}

	var payload struct {
		ID    string `json:"id"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("failed to decode availability response: %w", err)
	}
	return payload.Error == nil && payload.ID != "", nil
}

// CreateContainer starts a two-phase reel publish and returns the container id
func (c *Client) CreateContainer(ctx context.Context, accountID, mediaURL, caption, accessToken string) (string, error) {
	body := map[string]string{
		"video_url":    mediaURL,
		"caption":      caption,
		"media_type":   "REELS",
		"access_token": accessToken,
	}

	data, err := c.do(ctx, ratelimit.LimiterGraphPublish, http.MethodPost,
		accountID+"/media", nil, body, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to decode container response: %w", err)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("container response missing id")
	}
	return payload.ID, nil
}

// FinalizePublish completes a two-phase publish and returns the media id
func (c *Client) FinalizePublish(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	body := map[string]string{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	data, err := c.do(ctx, ratelimit.LimiterGraphPublish, http.MethodPost,
		accountID+"/media_publish", nil, body, "")
	if err != nil {
		return "", fmt.Errorf("failed to publish container: %w", err)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to decode publish response: %w", err)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("publish response missing id")
	}
	return payload.ID, nil
}
