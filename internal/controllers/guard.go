package controllers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
	"github.com/amaumene/guardarr/internal/policy"
)

const (
	tagStopped  = "guard:stopped"
	tagAllowed  = "guard:allowed"
	tagPreAir   = "trash:preair"
	tagDiscOnly = "trash:iso"
)

// Queue is the job-queue surface the guard mutates.
type Queue interface {
	Info(ctx context.Context, hash string) (*models.Item, error)
	TrackerHosts(ctx context.Context, hash string) ([]string, error)
	Start(ctx context.Context, hash string) error
	Stop(ctx context.Context, hash string) error
	Delete(ctx context.Context, hash string, deleteFiles bool) error
	AddTags(ctx context.Context, hash string, tags string)
}

// Tracker is the release-tracking surface used for blocklisting.
type Tracker interface {
	Enabled() bool
	BlocklistDownload(ctx context.Context, downloadID string) error
}

// PreAirGate decides whether a grabbed release is premature.
type PreAirGate interface {
	Decide(ctx context.Context, downloadID string, trackerHosts []string) models.PreAirVerdict
}

// ManifestFetcher waits for a torrent's file manifest.
type ManifestFetcher interface {
	Fetch(ctx context.Context, hash string) []models.FileEntry
}

// GuardController sequences the admission pipeline for one torrent:
// stop, pre-air gate, metadata wait, content policy, then start or delete.
type GuardController struct {
	cfg     *config.Config
	queue   Queue
	sonarr  Tracker
	radarr  Tracker
	gate    PreAirGate
	fetcher ManifestFetcher
	metrics *Metrics
	logger  *logrus.Logger
}

// NewGuardController creates a new guard controller.
func NewGuardController(cfg *config.Config, queue Queue, sonarr, radarr Tracker, gate PreAirGate, fetcher ManifestFetcher, metrics *Metrics, logger *logrus.Logger) *GuardController {
	return &GuardController{
		cfg:     cfg,
		queue:   queue,
		sonarr:  sonarr,
		radarr:  radarr,
		gate:    gate,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
	}
}

// Run processes a single torrent to completion. A missing torrent is a
// silent no-op. Only delete failures on the terminal path are returned as
// errors; everything else is logged and absorbed.
func (g *GuardController) Run(ctx context.Context, hash, passedCategory string) error {
	info, err := g.queue.Info(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to fetch torrent info: %w", err)
	}
	if info == nil {
		g.logger.WithField("hash", hash).Info("No torrent found for hash, nothing to do")
		return nil
	}

	category := strings.TrimSpace(passedCategory)
	if category == "" {
		category = info.Category
	}
	categoryNorm := strings.ToLower(category)

	g.logger.WithFields(logrus.Fields{
		"hash":     hash,
		"category": category,
		"name":     info.Name,
	}).Info("Processing torrent")

	if !g.cfg.AllowedCategories[categoryNorm] {
		g.logger.WithField("category", category).Info("Category not in allowed list, skipping")
		g.metrics.Decisions.WithLabelValues("skip", "category").Inc()
		return nil
	}

	// Stop immediately so nothing is served before it clears policy.
	if err := g.queue.Stop(ctx, hash); err != nil {
		g.logger.WithError(err).Warn("Failed to stop torrent before evaluation")
	}
	g.queue.AddTags(ctx, hash, tagStopped)

	trackerHosts, err := g.queue.TrackerHosts(ctx, hash)
	if err != nil {
		g.logger.WithError(err).Warn("Failed to fetch tracker hosts")
	}

	if g.gateApplies(categoryNorm) {
		verdict := g.gate.Decide(ctx, hash, trackerHosts)
		if !verdict.Allow {
			g.metrics.Decisions.WithLabelValues("block", verdict.Reason).Inc()
			if g.cfg.DryRun {
				g.logger.WithField("reason", verdict.Reason).Info("DRY-RUN: would delete torrent blocked pre-air")
				return nil
			}
			if err := g.sonarr.BlocklistDownload(ctx, hash); err != nil {
				g.logger.WithError(err).Error("Sonarr blocklist failed")
			}
			g.queue.AddTags(ctx, hash, tagPreAir)
			if err := g.deleteTorrent(ctx, hash, models.DeleteReasonPreAir); err != nil {
				return err
			}
			g.logger.WithField("reason", verdict.Reason).Info("Deleted torrent blocked pre-air")
			return nil
		}
		g.logger.WithField("reason", verdict.Reason).Info("Pre-air gate passed")
	}

	if g.cfg.EnableContentCheck {
		files := g.fetcher.Fetch(ctx, hash)
		if len(files) == 0 {
			g.logger.WithField("hash", hash).Warn("Metadata not available, leaving torrent stopped")
			g.metrics.Decisions.WithLabelValues("skip", "no-metadata").Inc()
			return nil
		}

		result := policy.Evaluate(files, policy.SettingsFromConfig(g.cfg))
		if result.Delete() {
			return g.deleteForPolicy(ctx, hash, categoryNorm, result)
		}
		g.logger.WithFields(logrus.Fields{
			"files":      result.Relevant,
			"disallowed": result.Disallowed,
			"keepable":   result.KeepableVideo,
		}).Info("Content check passed")
	}

	g.queue.AddTags(ctx, hash, tagAllowed)
	g.metrics.Decisions.WithLabelValues("allow", "cleared").Inc()
	if g.cfg.DryRun {
		g.logger.WithField("hash", hash).Info("DRY-RUN: would start torrent")
		return nil
	}
	if err := g.queue.Start(ctx, hash); err != nil {
		g.logger.WithError(err).Warn("Failed to start torrent after checks")
		return nil
	}
	g.logger.WithField("hash", hash).Info("Started torrent after checks")
	return nil
}

func (g *GuardController) gateApplies(categoryNorm string) bool {
	return g.cfg.EnablePreAir && g.sonarr.Enabled() && g.cfg.SonarrCategories[categoryNorm]
}

// deleteForPolicy handles a content-policy delete verdict: tag, notify the
// matching tracking services, then remove the torrent.
func (g *GuardController) deleteForPolicy(ctx context.Context, hash, categoryNorm string, result policy.Result) error {
	tag := tagDiscOnly
	if result.DeleteReason == models.DeleteReasonExtensionPolicy {
		tag = g.cfg.ExtViolationTag
		g.logger.WithFields(logrus.Fields{
			"disallowed": result.Disallowed,
			"files":      result.Relevant,
		}).Info("Extension policy violation")
	} else {
		g.logger.Info("Disc-image content detected with no keepable video")
	}

	g.queue.AddTags(ctx, hash, tag)
	g.blocklistIfApplicable(ctx, categoryNorm, hash)
	g.metrics.Decisions.WithLabelValues("delete", string(result.DeleteReason)).Inc()

	if g.cfg.DryRun {
		g.logger.WithField("reason", result.DeleteReason).Info("DRY-RUN: would delete torrent")
		return nil
	}
	if err := g.deleteTorrent(ctx, hash, result.DeleteReason); err != nil {
		return err
	}
	g.logger.WithField("reason", result.DeleteReason).Info("Deleted torrent for content policy")
	return nil
}

func (g *GuardController) blocklistIfApplicable(ctx context.Context, categoryNorm, hash string) {
	if g.cfg.SonarrCategories[categoryNorm] && g.sonarr.Enabled() {
		if err := g.sonarr.BlocklistDownload(ctx, hash); err != nil {
			g.logger.WithError(err).Error("Sonarr blocklist failed")
		}
	}
	if g.cfg.RadarrCategories[categoryNorm] && g.radarr.Enabled() {
		if err := g.radarr.BlocklistDownload(ctx, hash); err != nil {
			g.logger.WithError(err).Error("Radarr blocklist failed")
		}
	}
}

func (g *GuardController) deleteTorrent(ctx context.Context, hash string, reason models.DeleteReason) error {
	if err := g.queue.Delete(ctx, hash, g.cfg.DeleteFiles); err != nil {
		return fmt.Errorf("failed to delete torrent: %w", err)
	}
	g.metrics.Deletions.WithLabelValues(string(reason)).Inc()
	return nil
}
