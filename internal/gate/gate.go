package gate

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

// farFutureHours stands in for an unknown air date: never seen as aired.
const farFutureHours = 99999.0

const (
	settleDelay       = 800 * time.Millisecond
	historyAttempts   = 5
	historyRetryDelay = 800 * time.Millisecond
)

// Tracker is the release-tracking surface the gate consumes.
type Tracker interface {
	HistoryForDownload(ctx context.Context, downloadID string) []models.HistoryRecord
	EpisodeByID(ctx context.Context, id int64) *models.Episode
	SeriesByID(ctx context.Context, id int64) *models.Series
}

// AirDateSource is a calendar provider used to cross-check air dates.
// The second return is false when the provider could not resolve the show
// at all; a resolved show with an unknown date returns (nil, true).
type AirDateSource interface {
	Name() string
	EpisodeAirDate(ctx context.Context, series *models.Series, season, number int) (*time.Time, bool)
}

// Gate decides whether a grabbed release is premature. One decision per
// run; nothing is carried across runs.
type Gate struct {
	cfg       *config.Config
	tracker   Tracker
	providers []AirDateSource
	logger    *logrus.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewGate creates a pre-air gate over the given tracker and cross-check
// providers.
func NewGate(cfg *config.Config, tracker Tracker, providers []AirDateSource, logger *logrus.Logger) *Gate {
	return &Gate{
		cfg:       cfg,
		tracker:   tracker,
		providers: providers,
		logger:    logger,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Decide evaluates the pre-air rules for one download id. The returned
// verdict carries the history rows examined so a block can be turned into
// a blocklist entry without re-fetching.
func (g *Gate) Decide(ctx context.Context, downloadID string, trackerHosts []string) models.PreAirVerdict {
	// Give the tracker a moment to write its grabbed history.
	g.sleep(settleDelay)

	var history []models.HistoryRecord
	for attempt := 0; attempt < historyAttempts; attempt++ {
		history = g.tracker.HistoryForDownload(ctx, downloadID)
		if len(history) > 0 {
			break
		}
		g.sleep(historyRetryDelay)
	}

	episodeIDs := make(map[int64]bool)
	groups := make(map[string]bool)
	indexers := make(map[string]bool)
	for _, rec := range history {
		if rec.EpisodeID != 0 {
			episodeIDs[rec.EpisodeID] = true
		}
		if grp := rec.Data.ReleaseGroup; grp != "" {
			groups[strings.ToLower(grp)] = true
		}
		if idx := rec.Data.Indexer; idx != "" {
			indexers[strings.ToLower(idx)] = true
		}
	}

	if len(episodeIDs) == 0 {
		if g.cfg.ResumeIfNoHistory {
			g.logger.Info("pre-air: no tracker history, proceeding to content check")
			return models.PreAirVerdict{Allow: true, Reason: models.ReasonNoHistory, History: history}
		}
		g.logger.Info("pre-air: no tracker history, keeping stopped")
		return models.PreAirVerdict{Allow: false, Reason: models.ReasonNoHistory, History: history}
	}

	now := g.now()
	episodes := make([]*models.Episode, 0, len(episodeIDs))
	for id := range episodeIDs {
		episodes = append(episodes, g.tracker.EpisodeByID(ctx, id))
	}

	var futureHours []float64
	for _, ep := range episodes {
		switch {
		case ep == nil || ep.AirDateUTC == nil:
			futureHours = append(futureHours, farFutureHours)
		case ep.AirDateUTC.After(now):
			futureHours = append(futureHours, ep.AirDateUTC.Sub(now).Hours())
		}
	}

	allAired := len(futureHours) == 0
	var maxFuture float64
	for _, h := range futureHours {
		maxFuture = math.Max(maxFuture, h)
	}

	// Cross-check providers can only narrow the window, never widen it: a
	// corroborating earlier timestamp tightens maxFuture via a min fold,
	// and an unresolved date contributes the far-future sentinel so a
	// provider with partial knowledge cannot narrow on its own.
	seriesCache := make(map[int64]*models.Series)
	for _, provider := range g.providers {
		if allAired {
			break
		}
		var crossHours []float64
		for _, ep := range episodes {
			if ep == nil || ep.SeriesID == 0 {
				crossHours = append(crossHours, farFutureHours)
				continue
			}
			series, cached := seriesCache[ep.SeriesID]
			if !cached {
				series = g.tracker.SeriesByID(ctx, ep.SeriesID)
				seriesCache[ep.SeriesID] = series
			}
			air, resolved := provider.EpisodeAirDate(ctx, series, ep.SeasonNumber, ep.EpisodeNumber)
			if !resolved {
				continue
			}
			switch {
			case air == nil:
				crossHours = append(crossHours, farFutureHours)
			case air.After(now):
				crossHours = append(crossHours, air.Sub(now).Hours())
			}
		}
		if len(crossHours) == 0 {
			continue
		}
		var m float64
		for _, h := range crossHours {
			m = math.Max(m, h)
		}
		if maxFuture > 0 {
			maxFuture = math.Min(maxFuture, m)
		} else {
			maxFuture = m
		}
		allAired = false
		g.logger.WithFields(logrus.Fields{
			"provider":       provider.Name(),
			"maxFutureHours": maxFuture,
		}).Debug("pre-air: cross-check folded")
	}

	allowGrace := !allAired && maxFuture <= g.cfg.EarlyGraceHours
	allowGroup := intersects(groups, g.cfg.WhitelistGroups)
	allowIndexer := intersects(indexers, g.cfg.WhitelistIndexers)
	allowTracker := trackerMatch(trackerHosts, g.cfg.WhitelistTrackers)
	whitelisted := allowGroup || allowIndexer || allowTracker

	// The hard cap outranks grace and whitelists unless the operator
	// explicitly opted whitelists in.
	if !allAired && maxFuture > g.cfg.EarlyHardLimitHours && !(g.cfg.WhitelistOverridesHardLimit && whitelisted) {
		g.logger.WithField("maxFutureHours", maxFuture).Info("pre-air: blocked by hard limit")
		return models.PreAirVerdict{Allow: false, Reason: models.ReasonCap, History: history}
	}

	if allAired || allowGrace || whitelisted {
		var parts []string
		if allAired {
			parts = append(parts, models.ReasonAired)
		}
		if allowGrace {
			parts = append(parts, models.ReasonGrace)
		}
		if whitelisted {
			parts = append(parts, models.ReasonWhitelist)
		}
		reason := strings.Join(parts, "+")
		if reason == "" {
			reason = "allow"
		}
		g.logger.WithField("reason", reason).Info("pre-air: allowed")
		return models.PreAirVerdict{Allow: true, Reason: reason, History: history}
	}

	g.logger.WithField("maxFutureHours", maxFuture).Info("pre-air: blocked")
	return models.PreAirVerdict{Allow: false, Reason: models.ReasonBlock, History: history}
}

func intersects(have, want map[string]bool) bool {
	if len(want) == 0 {
		return false
	}
	for k := range have {
		if want[k] {
			return true
		}
	}
	return false
}

func trackerMatch(hosts []string, tokens map[string]bool) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, host := range hosts {
		for token := range tokens {
			if strings.Contains(host, token) {
				return true
			}
		}
	}
	return false
}
