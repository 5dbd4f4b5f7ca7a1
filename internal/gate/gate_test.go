package gate

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeTracker struct {
	history  []models.HistoryRecord
	episodes map[int64]*models.Episode
	series   map[int64]*models.Series

	historyCalls int
}

func (f *fakeTracker) HistoryForDownload(ctx context.Context, downloadID string) []models.HistoryRecord {
	f.historyCalls++
	return f.history
}

func (f *fakeTracker) EpisodeByID(ctx context.Context, id int64) *models.Episode {
	return f.episodes[id]
}

func (f *fakeTracker) SeriesByID(ctx context.Context, id int64) *models.Series {
	return f.series[id]
}

type fakeProvider struct {
	name     string
	air      *time.Time
	resolved bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) EpisodeAirDate(ctx context.Context, series *models.Series, season, number int) (*time.Time, bool) {
	return f.air, f.resolved
}

func newTestGate(cfg *config.Config, tracker Tracker, providers ...AirDateSource) *Gate {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := NewGate(cfg, tracker, providers, logger)
	g.now = func() time.Time { return testNow }
	g.sleep = func(time.Duration) {}
	return g
}

func baseConfig() *config.Config {
	return &config.Config{
		EarlyGraceHours:     6,
		EarlyHardLimitHours: 72,
		ResumeIfNoHistory:   true,
		WhitelistGroups:     map[string]bool{},
		WhitelistIndexers:   map[string]bool{},
		WhitelistTrackers:   map[string]bool{},
	}
}

func grabbedRecord(id, episodeID int64, group, indexer string) models.HistoryRecord {
	return models.HistoryRecord{
		ID:        id,
		EventType: "grabbed",
		EpisodeID: episodeID,
		Data:      models.HistoryData{SourceTitle: "Some.Show.S01E01", ReleaseGroup: group, Indexer: indexer},
	}
}

func airedAt(t time.Time) *time.Time { return &t }

func TestDecideNoHistoryFollowsPolicy(t *testing.T) {
	cfg := baseConfig()
	tracker := &fakeTracker{}

	verdict := newTestGate(cfg, tracker).Decide(context.Background(), "dl-1", nil)
	if !verdict.Allow || verdict.Reason != models.ReasonNoHistory {
		t.Errorf("expected allow/no-history with resume flag, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
	if tracker.historyCalls != 5 {
		t.Errorf("expected 5 history polls on empty history, got %d", tracker.historyCalls)
	}

	cfg.ResumeIfNoHistory = false
	verdict = newTestGate(cfg, &fakeTracker{}).Decide(context.Background(), "dl-1", nil)
	if verdict.Allow || verdict.Reason != models.ReasonNoHistory {
		t.Errorf("expected block/no-history without resume flag, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideHistoryPollStopsOnFirstHit(t *testing.T) {
	tracker := &fakeTracker{
		history:  []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{10: {ID: 10, AirDateUTC: airedAt(testNow.Add(-24 * time.Hour))}},
	}

	newTestGate(baseConfig(), tracker).Decide(context.Background(), "dl-1", nil)
	if tracker.historyCalls != 1 {
		t.Errorf("expected a single history poll when rows exist, got %d", tracker.historyCalls)
	}
}

func TestDecideAllAired(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, AirDateUTC: airedAt(testNow.Add(-2 * time.Hour))},
		},
	}

	verdict := newTestGate(baseConfig(), tracker).Decide(context.Background(), "dl-1", nil)
	if !verdict.Allow || verdict.Reason != models.ReasonAired {
		t.Errorf("expected allow/aired, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
	if len(verdict.History) != 1 {
		t.Errorf("expected history rows carried on the verdict")
	}
}

func TestDecideHardCapBlocks(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, AirDateUTC: airedAt(testNow.Add(100 * time.Hour))},
		},
	}

	verdict := newTestGate(baseConfig(), tracker).Decide(context.Background(), "dl-1", nil)
	if verdict.Allow || verdict.Reason != models.ReasonCap {
		t.Errorf("expected block/cap at 100h with 72h limit, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideHardCapMonotonic(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "grp", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, AirDateUTC: airedAt(testNow.Add(100 * time.Hour))},
		},
	}
	cfg := baseConfig()
	cfg.WhitelistGroups = map[string]bool{"grp": true}

	verdict := newTestGate(cfg, tracker).Decide(context.Background(), "dl-1", nil)
	if verdict.Allow || verdict.Reason != models.ReasonCap {
		t.Fatalf("expected cap block below the limit, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}

	// Raising the limit past the remaining hours can only turn the cap
	// block into an allow.
	cfg.EarlyHardLimitHours = 200
	verdict = newTestGate(cfg, tracker).Decide(context.Background(), "dl-1", nil)
	if !verdict.Allow || verdict.Reason != models.ReasonWhitelist {
		t.Errorf("expected allow/whitelist above the limit, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideUnknownAirDateIsFarFuture(t *testing.T) {
	tracker := &fakeTracker{
		history:  []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{10: {ID: 10}},
	}

	verdict := newTestGate(baseConfig(), tracker).Decide(context.Background(), "dl-1", nil)
	if verdict.Allow || verdict.Reason != models.ReasonCap {
		t.Errorf("expected cap block on unknown air date, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideWhitelistOverridesHardLimit(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "scene", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, AirDateUTC: airedAt(testNow.Add(100 * time.Hour))},
		},
	}
	cfg := baseConfig()
	cfg.WhitelistGroups = map[string]bool{"scene": true}
	cfg.WhitelistOverridesHardLimit = true

	verdict := newTestGate(cfg, tracker).Decide(context.Background(), "dl-1", nil)
	if !verdict.Allow || verdict.Reason != models.ReasonWhitelist {
		t.Errorf("expected whitelist to override the cap, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideTrackerWhitelistSubstringMatch(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, AirDateUTC: airedAt(testNow.Add(30 * time.Hour))},
		},
	}
	cfg := baseConfig()
	cfg.WhitelistTrackers = map[string]bool{"friendly": true}

	verdict := newTestGate(cfg, tracker).Decide(context.Background(), "dl-1", []string{"tracker.friendly-site.org"})
	if !verdict.Allow || verdict.Reason != models.ReasonWhitelist {
		t.Errorf("expected allow via tracker substring, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}

	verdict = newTestGate(cfg, tracker).Decide(context.Background(), "dl-1", []string{"other.example.net"})
	if verdict.Allow || verdict.Reason != models.ReasonBlock {
		t.Errorf("expected plain block without a match, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideCrossCheckNarrowsWindow(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, SeriesID: 5, SeasonNumber: 1, EpisodeNumber: 1, AirDateUTC: airedAt(testNow.Add(100 * time.Hour))},
		},
		series: map[int64]*models.Series{5: {ID: 5, TVDBID: 999}},
	}
	provider := &fakeProvider{name: "test", air: airedAt(testNow.Add(2 * time.Hour)), resolved: true}

	verdict := newTestGate(baseConfig(), tracker, provider).Decide(context.Background(), "dl-1", nil)
	if !verdict.Allow || verdict.Reason != models.ReasonGrace {
		t.Errorf("expected grace allow after the cross-check narrowed to 2h, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideCrossCheckNeverWidens(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, SeriesID: 5, SeasonNumber: 1, EpisodeNumber: 1, AirDateUTC: airedAt(testNow.Add(4 * time.Hour))},
		},
		series: map[int64]*models.Series{5: {ID: 5, TVDBID: 999}},
	}
	provider := &fakeProvider{name: "test", air: airedAt(testNow.Add(500 * time.Hour)), resolved: true}

	verdict := newTestGate(baseConfig(), tracker, provider).Decide(context.Background(), "dl-1", nil)
	if !verdict.Allow || verdict.Reason != models.ReasonGrace {
		t.Errorf("expected the 4h grace allow to survive a later cross-check date, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}

func TestDecideCrossCheckUnresolvedShowIsSkipped(t *testing.T) {
	tracker := &fakeTracker{
		history: []models.HistoryRecord{grabbedRecord(1, 10, "", "")},
		episodes: map[int64]*models.Episode{
			10: {ID: 10, SeriesID: 5, SeasonNumber: 1, EpisodeNumber: 1, AirDateUTC: airedAt(testNow.Add(100 * time.Hour))},
		},
		series: map[int64]*models.Series{5: {ID: 5}},
	}
	provider := &fakeProvider{name: "test", resolved: false}

	verdict := newTestGate(baseConfig(), tracker, provider).Decide(context.Background(), "dl-1", nil)
	if verdict.Allow || verdict.Reason != models.ReasonCap {
		t.Errorf("expected the Sonarr-only cap block to stand, got allow=%v reason=%q", verdict.Allow, verdict.Reason)
	}
}
