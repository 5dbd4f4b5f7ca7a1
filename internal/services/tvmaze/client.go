package tvmaze

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

// Client looks up episode air timestamps on TVmaze. Lookups are best-effort:
// every failure degrades to "unknown" rather than an error, per the
// cross-check contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	showIDs    *cache.Cache
	logger     *logrus.Logger
}

// NewClient creates a new TVmaze client. Resolved show ids are memoised
// since the series-to-show mapping is stable identity data.
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    cfg.TVMazeBase,
		httpClient: &http.Client{Timeout: cfg.TVMazeTimeout},
		showIDs:    cache.New(6*time.Hour, time.Hour),
		logger:     logger,
	}
}

// Name identifies the provider in verdict logs.
func (c *Client) Name() string {
	return "tvmaze"
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

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

type showResponse struct {
	ID int64 `json:"id"`
}

// resolveShowID maps a Sonarr series onto a TVmaze show, trying the TVDB
// cross-reference first, then IMDb, then a title search. Returns (0, false)
// when the show cannot be resolved.
func (c *Client) resolveShowID(ctx context.Context, series *models.Series) (int64, bool) {
	if series == nil {
		return 0, false
	}

	cacheKey := fmt.Sprintf("series-%d", series.ID)
	if series.ID != 0 {
		if cached, ok := c.showIDs.Get(cacheKey); ok {
			return cached.(int64), true
		}
	}

	var show showResponse
	if series.TVDBID != 0 {
		if err := c.get(ctx, fmt.Sprintf("/lookup/shows?thetvdb=%d", series.TVDBID), &show); err == nil && show.ID != 0 {
			c.storeShowID(series.ID, cacheKey, show.ID)
			return show.ID, true
		}
	}

	if imdb := series.IMDBID; imdb != "" {
		if !strings.HasPrefix(imdb, "tt") {
			imdb = "tt" + imdb
		}
		if err := c.get(ctx, "/lookup/shows?imdb="+url.QueryEscape(imdb), &show); err == nil && show.ID != 0 {
			c.storeShowID(series.ID, cacheKey, show.ID)
			return show.ID, true
		}
	}

	if series.Title != "" {
		if err := c.get(ctx, "/singlesearch/shows?q="+url.QueryEscape(series.Title), &show); err == nil && show.ID != 0 {
			c.storeShowID(series.ID, cacheKey, show.ID)
			return show.ID, true
		}
	}

	return 0, false
}

func (c *Client) storeShowID(seriesID int64, key string, showID int64) {
	if seriesID != 0 {
		c.showIDs.Set(key, showID, cache.DefaultExpiration)
	}
}

type episodeResponse struct {
	Airstamp string `json:"airstamp"`
}

// EpisodeAirDate returns the TVmaze airstamp for one episode of a series.
// The second return is false when the show itself could not be resolved;
// a resolved show with an unknown airstamp returns (nil, true).
func (c *Client) EpisodeAirDate(ctx context.Context, series *models.Series, season, number int) (*time.Time, bool) {
	showID, ok := c.resolveShowID(ctx, series)
	if !ok {
		return nil, false
	}

	var ep episodeResponse
	path := fmt.Sprintf("/shows/%d/episodebynumber?season=%d&number=%d", showID, season, number)
	if err := c.get(ctx, path, &ep); err != nil {
		c.logger.WithError(err).WithField("show", showID).Debug("TVmaze episode lookup failed")
		return nil, true
	}

	if ep.Airstamp == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, ep.Airstamp)
	if err != nil {
		return nil, true
	}
	return &parsed, true
}
