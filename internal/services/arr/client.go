package arr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
	"github.com/amaumene/guardarr/internal/retry"
)

const apiPrefix = "/api/v3"

// Client talks to a Sonarr or Radarr v3 API. Both services share the same
// history/queue surface; the episode and series lookups are only meaningful
// on Sonarr.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Policy
	logger     *logrus.Logger
}

// NewSonarr creates the Sonarr client from loaded configuration.
func NewSonarr(cfg *config.Config, logger *logrus.Logger) *Client {
	return newClient("Sonarr", cfg.SonarrURL, cfg.SonarrAPIKey, cfg.SonarrTimeout, retry.Policy{
		MaxAttempts:     cfg.SonarrRetries,
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
		Retryable:       retryableStatus,
	}, logger)
}

// NewRadarr creates the Radarr client from loaded configuration.
func NewRadarr(cfg *config.Config, logger *logrus.Logger) *Client {
	return newClient("Radarr", cfg.RadarrURL, cfg.RadarrAPIKey, cfg.RadarrTimeout, retry.Policy{
		MaxAttempts:     cfg.RadarrRetries,
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
		Retryable:       retryableStatus,
	}, logger)
}

func newClient(name, baseURL, apiKey string, timeout time.Duration, policy retry.Policy, logger *logrus.Logger) *Client {
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      policy,
		logger:     logger,
	}
}

// Name returns the service name used in log lines.
func (c *Client) Name() string {
	return c.name
}

// Enabled reports whether the service has both an endpoint and an API key.
func (c *Client) Enabled() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// statusError is a non-2xx API response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.code, e.body)
}

// retryableStatus retries network errors and server-side failures; client
// errors are permanent.
func retryableStatus(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	fullURL := c.baseURL + apiPrefix + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// postEmpty issues an empty-body POST with the injected retry policy. Used
// for the idempotent history-failed operation.
func (c *Client) postEmpty(ctx context.Context, path string) error {
	return c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &statusError{code: resp.StatusCode, body: string(body)}
		}
		return nil
	})
}

func (c *Client) delete(ctx context.Context, path string, query url.Values) error {
	fullURL := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	return nil
}

// decodeHistory decodes responses that are either a paging envelope
// {"records": [...]} or a bare array, depending on service version.
func decodeHistory(raw json.RawMessage) []models.HistoryRecord {
	var envelope struct {
		Records []models.HistoryRecord `json:"records"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Records != nil {
		return envelope.Records
	}
	var bare []models.HistoryRecord
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}
	return nil
}

func decodeQueue(raw json.RawMessage) []models.QueueRecord {
	var envelope struct {
		Records []models.QueueRecord `json:"records"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Records != nil {
		return envelope.Records
	}
	var bare []models.QueueRecord
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}
	return nil
}

// HistoryForDownload returns history rows for a download id. When the
// server-side downloadId filter yields nothing it falls back to scanning the
// most recent history page and filtering client-side, case-insensitively.
// Transport failures degrade to an empty result.
func (c *Client) HistoryForDownload(ctx context.Context, downloadID string) []models.HistoryRecord {
	var raw json.RawMessage
	if err := c.get(ctx, "/history", url.Values{"downloadId": {downloadID}}, &raw); err == nil {
		if records := decodeHistory(raw); len(records) > 0 {
			return records
		}
	}

	raw = nil
	params := url.Values{
		"page":          {"1"},
		"pageSize":      {"200"},
		"sortKey":       {"date"},
		"sortDirection": {"descending"},
	}
	if err := c.get(ctx, "/history", params, &raw); err != nil {
		c.logger.WithError(err).WithField("service", c.name).Warn("History page scan failed")
		return nil
	}

	var matched []models.HistoryRecord
	for _, r := range decodeHistory(raw) {
		if strings.EqualFold(r.DownloadID, downloadID) {
			matched = append(matched, r)
		}
	}
	return matched
}

// QueueForDownload returns queue rows matching a download id.
func (c *Client) QueueForDownload(ctx context.Context, downloadID string) []models.QueueRecord {
	var raw json.RawMessage
	params := url.Values{
		"page":          {"1"},
		"pageSize":      {"500"},
		"sortKey":       {"timeleft"},
		"sortDirection": {"ascending"},
	}
	if err := c.get(ctx, "/queue", params, &raw); err != nil {
		c.logger.WithError(err).WithField("service", c.name).Warn("Queue fetch failed")
		return nil
	}

	var matched []models.QueueRecord
	for _, r := range decodeQueue(raw) {
		if r.ID != 0 && strings.EqualFold(r.DownloadID, downloadID) {
			matched = append(matched, r)
		}
	}
	return matched
}

// MarkHistoryFailed blocklists a release by failing one history row.
func (c *Client) MarkHistoryFailed(ctx context.Context, id int64) error {
	return c.postEmpty(ctx, fmt.Sprintf("/history/failed/%d", id))
}

// RemoveFromQueue removes a queue row, optionally blocklisting the release.
// The torrent itself is never removed here; deletion stays with the caller.
func (c *Client) RemoveFromQueue(ctx context.Context, id int64, blocklist bool) error {
	query := url.Values{
		"blocklist":        {fmt.Sprintf("%t", blocklist)},
		"removeFromClient": {"false"},
	}
	return c.delete(ctx, fmt.Sprintf("/queue/%d", id), query)
}

// EpisodeByID fetches one episode; nil when the lookup fails.
func (c *Client) EpisodeByID(ctx context.Context, id int64) *models.Episode {
	var episode models.Episode
	if err := c.get(ctx, fmt.Sprintf("/episode/%d", id), nil, &episode); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"service": c.name,
			"episode": id,
		}).Warn("Episode fetch failed")
		return nil
	}
	return &episode
}

// SeriesByID fetches one series; nil when the lookup fails.
func (c *Client) SeriesByID(ctx context.Context, id int64) *models.Series {
	var series models.Series
	if err := c.get(ctx, fmt.Sprintf("/series/%d", id), nil, &series); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"service": c.name,
			"series":  id,
		}).Warn("Series fetch failed")
		return nil
	}
	return &series
}
