package metadata

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

// reannounceEvery is the coarse cadence for the best-effort tracker nudge,
// independent of the poll interval.
const reannounceEvery = 15 * time.Second

// Queue is the job-queue surface the fetcher consumes.
type Queue interface {
	Info(ctx context.Context, hash string) (*models.Item, error)
	Files(ctx context.Context, hash string) ([]models.FileEntry, error)
	Start(ctx context.Context, hash string) error
	Stop(ctx context.Context, hash string) error
	Reannounce(ctx context.Context, hash string)
}

// Fetcher starts a torrent just long enough for its file manifest to
// resolve, then stops it again. An empty result means "unavailable", not
// an error.
type Fetcher struct {
	cfg    *config.Config
	queue  Queue
	logger *logrus.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewFetcher creates a metadata fetcher.
func NewFetcher(cfg *config.Config, queue Queue, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		queue:  queue,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Fetch waits until the torrent's file manifest is non-empty, respecting
// the configured byte budget and wall-clock ceiling. The torrent is always
// stopped before Fetch returns, whatever the exit path.
func (f *Fetcher) Fetch(ctx context.Context, hash string) []models.FileEntry {
	files, err := f.queue.Files(ctx, hash)
	if err == nil && len(files) > 0 {
		return files
	}

	if err := f.queue.Start(ctx, hash); err != nil {
		f.logger.WithError(err).WithField("hash", hash).Warn("Failed to start torrent for metadata wait")
	}
	defer func() {
		if err := f.queue.Stop(ctx, hash); err != nil {
			f.logger.WithError(err).WithField("hash", hash).Warn("Failed to stop torrent after metadata wait")
		}
	}()

	pollInterval := f.cfg.MetadataPollInterval
	if pollInterval < 500*time.Millisecond {
		pollInterval = 500 * time.Millisecond
	}
	nudgeTicks := int(reannounceEvery / pollInterval)
	if nudgeTicks < 1 {
		nudgeTicks = 1
	}

	startTS := f.now()
	ticks := 0
	var baseDownloaded int64 = -1

	for {
		if ticks%nudgeTicks == 0 {
			f.queue.Reannounce(ctx, hash)
		}

		files, err = f.queue.Files(ctx, hash)
		if err == nil && len(files) > 0 {
			return files
		}

		info, err := f.queue.Info(ctx, hash)
		if err == nil && info != nil {
			switch info.State {
			case "pauseddl", "pausedup", "stalleddl", "stoppeddl", "stoppedup":
				if err := f.queue.Start(ctx, hash); err != nil {
					f.logger.WithError(err).WithField("hash", hash).Debug("Restart during metadata wait failed")
				}
			}
			downloaded := info.SessionDownloaded()
			if baseDownloaded < 0 {
				baseDownloaded = downloaded
			}
			if delta := downloaded - baseDownloaded; f.cfg.MetadataBudgetBytes > 0 && delta > f.cfg.MetadataBudgetBytes {
				f.logger.WithFields(logrus.Fields{
					"hash":   hash,
					"bytes":  delta,
					"budget": f.cfg.MetadataBudgetBytes,
				}).Warn("Metadata wait exceeded download budget, aborting")
				return nil
			}
		}

		if f.cfg.MetadataMaxWait > 0 && f.now().Sub(startTS) >= f.cfg.MetadataMaxWait {
			f.logger.WithField("hash", hash).Warn("Metadata wait hit the time ceiling")
			return files
		}

		f.sleep(pollInterval)
		ticks++
	}
}
