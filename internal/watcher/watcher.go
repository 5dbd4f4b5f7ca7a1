package watcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
	"github.com/amaumene/guardarr/internal/retry"
	"github.com/amaumene/guardarr/internal/services/qbit"
)

const (
	maxConsecutiveFailures = 5
	reloginAttempts        = 5
)

// Runner processes one torrent end to end.
type Runner interface {
	Run(ctx context.Context, hash, category string) error
}

// Source is the polling transport the watcher reads deltas from.
type Source interface {
	Sync(ctx context.Context, rid int64) (*qbit.Delta, error)
	Relogin(ctx context.Context) error
}

// Stats is a snapshot of the watcher's progress for the status endpoint.
type Stats struct {
	Seen      int       `json:"seen"`
	Processed int64     `json:"processed"`
	LastPoll  time.Time `json:"lastPoll"`
}

// Watcher polls the sync endpoint and hands each newly observed torrent to
// the guard exactly once per session. No state survives a restart.
type Watcher struct {
	cfg    *config.Config
	source Source
	runner Runner
	logger *logrus.Logger

	seen          *SeenSet
	sleep         func(time.Duration)
	reloginPolicy retry.Policy

	mu        sync.Mutex
	processed int64
	lastPoll  time.Time
}

// NewWatcher creates a watcher over the given source and runner.
func NewWatcher(cfg *config.Config, source Source, runner Runner, logger *logrus.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		source: source,
		runner: runner,
		logger: logger,
		seen:   NewSeenSet(),
		sleep:  time.Sleep,
		reloginPolicy: retry.Policy{
			MaxAttempts:     reloginAttempts,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
	}
}

// Stats returns a snapshot for the status endpoint. Safe to call from
// another goroutine.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Seen:      w.seen.Len(),
		Processed: w.processed,
		LastPoll:  w.lastPoll,
	}
}

// Run polls until ctx is cancelled. The only error it returns is an
// exhausted reconnect, which is fatal to the process.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.WithFields(logrus.Fields{
		"pollInterval":    w.cfg.WatchPollInterval,
		"processExisting": w.cfg.ProcessExistingAtStart,
		"rescanKeyword":   w.cfg.RescanKeyword,
	}).Info("Watcher started")

	var rid int64
	firstSnapshot := true
	failures := 0

	for ctx.Err() == nil {
		delta, err := w.source.Sync(ctx, rid)
		w.recordPoll()
		if err != nil {
			failures++
			w.logger.WithError(err).WithField("failures", failures).Error("Sync poll failed")
			if failures >= maxConsecutiveFailures {
				if err := w.reconnect(ctx); err != nil {
					return err
				}
				rid = 0
				firstSnapshot = true
				failures = 0
			}
			w.sleep(w.cfg.WatchPollInterval)
			continue
		}
		failures = 0
		if delta == nil {
			w.sleep(w.cfg.WatchPollInterval)
			continue
		}
		rid = delta.RID

		if firstSnapshot {
			firstSnapshot = false
			if !w.cfg.ProcessExistingAtStart {
				for hash := range delta.Items {
					w.seen.MarkSeen(hash)
				}
				w.logger.WithField("count", len(delta.Items)).Info("Initial snapshot indexed, not processing")
				w.sleep(w.cfg.WatchPollInterval)
				continue
			}
			w.logger.WithField("count", len(delta.Items)).Info("Initial snapshot: processing existing torrents")
		}

		// Forget removed hashes so a re-add triggers again.
		for _, hash := range delta.Removed {
			w.seen.Forget(hash)
		}

		for hash, item := range delta.Items {
			// Shutdown is only honored between items, never inside a run.
			if ctx.Err() != nil {
				return nil
			}
			process, reason := w.shouldProcess(hash, item)
			if !process {
				w.logger.WithFields(logrus.Fields{"hash": hash, "reason": reason}).Debug("Skipping torrent")
				continue
			}
			w.logger.WithFields(logrus.Fields{
				"hash":     hash,
				"reason":   reason,
				"category": item.Category,
				"name":     item.Name,
			}).Info("Processing torrent")
			if err := w.runner.Run(ctx, hash, item.Category); err != nil {
				w.logger.WithError(err).WithField("hash", hash).Error("Guard run failed")
			}
			w.seen.MarkSeen(hash)
			w.recordProcessed()
		}

		w.sleep(w.cfg.WatchPollInterval)
	}

	w.logger.Info("Watcher stopping")
	return nil
}

// shouldProcess decides whether a delta entry goes to the guard and why.
func (w *Watcher) shouldProcess(hash string, item models.Item) (bool, string) {
	if kw := w.cfg.RescanKeyword; kw != "" {
		if strings.Contains(strings.ToLower(item.Category), kw) {
			return true, "manual-rescan"
		}
		for _, tag := range item.Tags {
			if strings.Contains(strings.ToLower(tag), kw) {
				return true, "manual-rescan"
			}
		}
	}
	if w.seen.State(hash) != StateSeen {
		return true, "new"
	}
	return false, "already-seen"
}

// reconnect re-authenticates with bounded exponential backoff after a run
// of failed polls. Exhaustion is fatal.
func (w *Watcher) reconnect(ctx context.Context) error {
	w.logger.Warn("Too many consecutive poll failures, re-authenticating")
	if err := w.reloginPolicy.Do(ctx, func() error { return w.source.Relogin(ctx) }); err != nil {
		return fmt.Errorf("re-authentication failed after %d attempts: %w", w.reloginPolicy.MaxAttempts, err)
	}
	w.logger.Info("Re-authenticated, resetting sync cursor")
	return nil
}

func (w *Watcher) recordPoll() {
	w.mu.Lock()
	w.lastPoll = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) recordProcessed() {
	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
}
