package controllers

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

type fakeQueue struct {
	item  *models.Item
	hosts []string

	ops  []string
	tags []string
}

func (q *fakeQueue) Info(ctx context.Context, hash string) (*models.Item, error) {
	return q.item, nil
}

func (q *fakeQueue) TrackerHosts(ctx context.Context, hash string) ([]string, error) {
	return q.hosts, nil
}

func (q *fakeQueue) Start(ctx context.Context, hash string) error {
	q.ops = append(q.ops, "start")
	return nil
}

func (q *fakeQueue) Stop(ctx context.Context, hash string) error {
	q.ops = append(q.ops, "stop")
	return nil
}

func (q *fakeQueue) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	q.ops = append(q.ops, "delete")
	return nil
}

func (q *fakeQueue) AddTags(ctx context.Context, hash string, tags string) {
	q.tags = append(q.tags, tags)
}

type fakeTracker struct {
	enabled        bool
	blocklistCalls int
}

func (t *fakeTracker) Enabled() bool { return t.enabled }

func (t *fakeTracker) BlocklistDownload(ctx context.Context, downloadID string) error {
	t.blocklistCalls++
	return nil
}

type fakeGate struct {
	verdict models.PreAirVerdict
	calls   int
}

func (g *fakeGate) Decide(ctx context.Context, downloadID string, trackerHosts []string) models.PreAirVerdict {
	g.calls++
	return g.verdict
}

type fakeFetcher struct {
	files []models.FileEntry
}

func (f *fakeFetcher) Fetch(ctx context.Context, hash string) []models.FileEntry {
	return f.files
}

func guardConfig() *config.Config {
	return &config.Config{
		AllowedCategories:     map[string]bool{"tv-sonarr": true, "radarr": true},
		SonarrCategories:      map[string]bool{"tv-sonarr": true},
		RadarrCategories:      map[string]bool{"radarr": true},
		EnablePreAir:          true,
		EnableContentCheck:    true,
		DeleteFiles:           true,
		ExtStrategy:           "block",
		AllowedExts:           config.DefaultAllowedExts,
		BlockedExts:           config.DefaultBlockedExts,
		DiscExts:              config.DiscImageExts,
		ExtDeleteIfAllBlocked: true,
		ExtViolationTag:       "trash:ext",
		MinKeepableVideoMB:    50,
	}
}

func newGuard(cfg *config.Config, queue *fakeQueue, sonarr, radarr *fakeTracker, gate *fakeGate, fetcher *fakeFetcher) *GuardController {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewGuardController(cfg, queue, sonarr, radarr, gate, fetcher, NewMetrics(nil), logger)
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func TestRunSkipsUnknownCategory(t *testing.T) {
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "music"}}
	gate := &fakeGate{}

	err := newGuard(guardConfig(), queue, &fakeTracker{enabled: true}, &fakeTracker{}, gate, &fakeFetcher{}).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.ops) != 0 || len(queue.tags) != 0 {
		t.Errorf("expected zero queue mutations for a skipped category, got ops=%v tags=%v", queue.ops, queue.tags)
	}
	if gate.calls != 0 {
		t.Errorf("gate should not run for a skipped category")
	}
}

func TestRunMissingTorrentIsNoOp(t *testing.T) {
	queue := &fakeQueue{}

	err := newGuard(guardConfig(), queue, &fakeTracker{}, &fakeTracker{}, &fakeGate{}, &fakeFetcher{}).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.ops) != 0 {
		t.Errorf("expected no mutations for a missing torrent, got %v", queue.ops)
	}
}

func TestRunAllowedTorrentIsStarted(t *testing.T) {
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "tv-sonarr"}}
	gate := &fakeGate{verdict: models.PreAirVerdict{Allow: true, Reason: models.ReasonAired}}
	fetcher := &fakeFetcher{files: []models.FileEntry{{Path: "show.mkv", Size: 700 << 20}}}

	err := newGuard(guardConfig(), queue, &fakeTracker{enabled: true}, &fakeTracker{}, gate, fetcher).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate.calls != 1 {
		t.Errorf("expected one gate decision, got %d", gate.calls)
	}
	// Stop must precede start.
	if len(queue.ops) != 2 || queue.ops[0] != "stop" || queue.ops[1] != "start" {
		t.Errorf("expected [stop start], got %v", queue.ops)
	}
	if !hasTag(queue.tags, tagStopped) || !hasTag(queue.tags, tagAllowed) {
		t.Errorf("expected stopped and allowed tags, got %v", queue.tags)
	}
}

func TestRunPreAirBlockDeletesAndBlocklists(t *testing.T) {
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "tv-sonarr"}}
	sonarr := &fakeTracker{enabled: true}
	gate := &fakeGate{verdict: models.PreAirVerdict{Allow: false, Reason: models.ReasonCap}}

	err := newGuard(guardConfig(), queue, sonarr, &fakeTracker{}, gate, &fakeFetcher{}).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sonarr.blocklistCalls != 1 {
		t.Errorf("expected one blocklist call, got %d", sonarr.blocklistCalls)
	}
	if len(queue.ops) != 2 || queue.ops[1] != "delete" {
		t.Errorf("expected [stop delete], got %v", queue.ops)
	}
	if !hasTag(queue.tags, tagPreAir) {
		t.Errorf("expected pre-air tag, got %v", queue.tags)
	}
}

func TestRunPreAirBlockDryRun(t *testing.T) {
	cfg := guardConfig()
	cfg.DryRun = true
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "tv-sonarr"}}
	sonarr := &fakeTracker{enabled: true}
	gate := &fakeGate{verdict: models.PreAirVerdict{Allow: false, Reason: models.ReasonBlock}}

	err := newGuard(cfg, queue, sonarr, &fakeTracker{}, gate, &fakeFetcher{}).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sonarr.blocklistCalls != 0 {
		t.Errorf("dry run must not blocklist, got %d calls", sonarr.blocklistCalls)
	}
	for _, op := range queue.ops {
		if op == "delete" {
			t.Errorf("dry run must not delete, got %v", queue.ops)
		}
	}
}

func TestRunEmptyManifestLeavesTorrentStopped(t *testing.T) {
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "tv-sonarr"}}
	gate := &fakeGate{verdict: models.PreAirVerdict{Allow: true, Reason: models.ReasonNoHistory}}

	err := newGuard(guardConfig(), queue, &fakeTracker{enabled: true}, &fakeTracker{}, gate, &fakeFetcher{}).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, op := range queue.ops {
		if op == "start" || op == "delete" {
			t.Errorf("expected the torrent left stopped, got %v", queue.ops)
		}
	}
	if hasTag(queue.tags, tagAllowed) {
		t.Errorf("expected no allowed tag without a manifest, got %v", queue.tags)
	}
}

func TestRunExtensionPolicyDeletesAndNotifiesRadarr(t *testing.T) {
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "radarr"}}
	radarr := &fakeTracker{enabled: true}
	fetcher := &fakeFetcher{files: []models.FileEntry{
		{Path: "movie.exe", Size: 10 << 20},
	}}

	err := newGuard(guardConfig(), queue, &fakeTracker{}, radarr, &fakeGate{}, fetcher).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if radarr.blocklistCalls != 1 {
		t.Errorf("expected a Radarr blocklist call, got %d", radarr.blocklistCalls)
	}
	if !hasTag(queue.tags, "trash:ext") {
		t.Errorf("expected the extension-violation tag, got %v", queue.tags)
	}
	if len(queue.ops) != 2 || queue.ops[1] != "delete" {
		t.Errorf("expected [stop delete], got %v", queue.ops)
	}
}

func TestRunDiscImageOnlyDeletes(t *testing.T) {
	queue := &fakeQueue{item: &models.Item{Hash: "h", Category: "radarr"}}
	fetcher := &fakeFetcher{files: []models.FileEntry{
		{Path: "movie/disc.iso", Size: 8 << 30},
	}}
	cfg := guardConfig()
	// Avoid the extension path so the disc heuristic is what triggers.
	cfg.BlockedExts = map[string]bool{}
	cfg.ExtStrategy = "allow"
	cfg.AllowedExts = map[string]bool{"iso": true}

	err := newGuard(cfg, queue, &fakeTracker{}, &fakeTracker{enabled: true}, &fakeGate{}, fetcher).
		Run(context.Background(), "h", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasTag(queue.tags, tagDiscOnly) {
		t.Errorf("expected the disc-image tag, got %v", queue.tags)
	}
	if len(queue.ops) != 2 || queue.ops[1] != "delete" {
		t.Errorf("expected [stop delete], got %v", queue.ops)
	}
}
