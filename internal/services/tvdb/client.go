package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

const maxEpisodePages = 10

// Client looks up episode air dates on TheTVDB v4. Like the TVmaze client
// it never surfaces errors to the caller: lookup failures degrade to
// "unknown".
type Client struct {
	baseURL    string
	apiKey     string
	pin        string
	language   string
	order      string
	httpClient *http.Client
	logger     *logrus.Logger

	mu     sync.Mutex
	bearer string
}

// NewClient creates a new TVDB client. A pre-supplied bearer token skips
// the login round trip entirely.
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    cfg.TVDBBase,
		apiKey:     cfg.TVDBAPIKey,
		pin:        cfg.TVDBPin,
		language:   cfg.TVDBLanguage,
		order:      cfg.TVDBOrder,
		httpClient: &http.Client{Timeout: cfg.TVDBTimeout},
		logger:     logger,
		bearer:     cfg.TVDBBearer,
	}
}

// Name identifies the provider in verdict logs.
func (c *Client) Name() string {
	return "tvdb"
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// token returns the cached bearer token, logging in with apikey/pin when
// none is held yet.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearer != "" {
		return c.bearer, nil
	}
	if c.apiKey == "" {
		return "", fmt.Errorf("no TVDB credentials configured")
	}

	payload := map[string]string{"apikey": c.apiKey}
	if c.pin != "" {
		payload["pin"] = c.pin
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if login.Data.Token == "" {
		return "", fmt.Errorf("login returned an empty token")
	}

	c.bearer = login.Data.Token
	return c.bearer, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

type episodePage struct {
	Data struct {
		Episodes []struct {
			SeasonNumber int    `json:"seasonNumber"`
			Number       int    `json:"number"`
			Aired        string `json:"aired"`
		} `json:"episodes"`
	} `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// EpisodeAirDate scans the series episode list, page by page, for the
// requested season/episode. The second return is false only when the
// series has no TVDB id; lookup failures and a found episode without an
// aired date both return (nil, true), keeping the fold conservative.
// Date-only values are normalized to midnight UTC.
func (c *Client) EpisodeAirDate(ctx context.Context, series *models.Series, season, number int) (*time.Time, bool) {
	if series == nil || series.TVDBID == 0 {
		return nil, false
	}

	for page := 0; page < maxEpisodePages; page++ {
		var resp episodePage
		path := fmt.Sprintf("/series/%d/episodes/%s/%s?page=%d", series.TVDBID, c.order, c.language, page)
		if err := c.get(ctx, path, &resp); err != nil {
			c.logger.WithError(err).WithField("tvdbId", series.TVDBID).Debug("TVDB episode page fetch failed")
			return nil, true
		}

		for _, ep := range resp.Data.Episodes {
			if ep.SeasonNumber != season || ep.Number != number {
				continue
			}
			if ep.Aired == "" {
				return nil, true
			}
			if parsed, err := time.Parse(time.RFC3339, ep.Aired); err == nil {
				return &parsed, true
			}
			if parsed, err := time.ParseInLocation("2006-01-02", ep.Aired, time.UTC); err == nil {
				return &parsed, true
			}
			return nil, true
		}

		if len(resp.Data.Episodes) == 0 || resp.Links.Next == "" {
			break
		}
	}

	return nil, true
}
