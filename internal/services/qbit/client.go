package qbit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
	"github.com/amaumene/guardarr/internal/utils"
)

// ErrAuth marks a failed qBittorrent login. The CLI maps it to a distinct
// exit code.
var ErrAuth = errors.New("qBittorrent authentication failed")

const loginTimeout = 30 * time.Second

// Client wraps the qBittorrent Web API for the handful of operations the
// guard needs. Authentication happens at construction.
type Client struct {
	qbt    *qbt.Client
	logger *logrus.Logger
}

// NewClient connects and authenticates to qBittorrent.
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	qbtClient := qbt.NewClient(qbt.Config{
		Host:          cfg.QbitHost,
		Username:      cfg.QbitUser,
		Password:      cfg.QbitPass,
		TLSSkipVerify: cfg.IgnoreTLS,
		Timeout:       30,
	})

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	if err := qbtClient.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuth, err)
	}

	logger.WithField("host", cfg.QbitHost).Info("qBittorrent login OK")

	return &Client{qbt: qbtClient, logger: logger}, nil
}

// Relogin re-authenticates an existing session, used by the watcher's
// reconnect path.
func (c *Client) Relogin(ctx context.Context) error {
	if err := c.qbt.LoginCtx(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrAuth, err)
	}
	return nil
}

// Info fetches a snapshot of one torrent. A missing torrent returns
// (nil, nil), not an error.
func (c *Client) Info(ctx context.Context, hash string) (*models.Item, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{hash}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent info: %w", err)
	}
	if len(torrents) == 0 {
		return nil, nil
	}
	return itemFromTorrent(torrents[0]), nil
}

// Files returns the torrent's file manifest; empty when metadata is not yet
// available.
func (c *Client) Files(ctx context.Context, hash string) ([]models.FileEntry, error) {
	files, err := c.qbt.GetFilesInformationCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent files: %w", err)
	}
	if files == nil {
		return nil, nil
	}

	entries := make([]models.FileEntry, 0, len(*files))
	for _, f := range *files {
		entries = append(entries, models.FileEntry{Path: f.Name, Size: f.Size})
	}
	return entries, nil
}

// TrackerHosts returns the distinct lowercased hostnames of the torrent's
// trackers. Pseudo-entries like "** [DHT] **" are skipped.
func (c *Client) TrackerHosts(ctx context.Context, hash string) ([]string, error) {
	trackers, err := c.qbt.GetTorrentTrackersCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent trackers: %w", err)
	}

	seen := make(map[string]bool)
	var hosts []string
	for _, t := range trackers {
		if !strings.Contains(t.Url, "://") {
			continue
		}
		host := utils.HostFromURL(t.Url)
		if host != "" && !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	return hosts, nil
}

// Start resumes the torrent.
func (c *Client) Start(ctx context.Context, hash string) error {
	if err := c.qbt.ResumeCtx(ctx, []string{hash}); err != nil {
		return fmt.Errorf("failed to start torrent: %w", err)
	}
	return nil
}

// Stop pauses the torrent.
func (c *Client) Stop(ctx context.Context, hash string) error {
	if err := c.qbt.PauseCtx(ctx, []string{hash}); err != nil {
		return fmt.Errorf("failed to stop torrent: %w", err)
	}
	return nil
}

// Delete removes the torrent, optionally deleting its files on disk.
func (c *Client) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	if err := c.qbt.DeleteTorrentsCtx(ctx, []string{hash}, deleteFiles); err != nil {
		return fmt.Errorf("failed to delete torrent: %w", err)
	}
	return nil
}

// AddTags tags the torrent. Best-effort: failures are logged and swallowed.
func (c *Client) AddTags(ctx context.Context, hash string, tags string) {
	if err := c.qbt.AddTagsCtx(ctx, []string{hash}, tags); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"hash": hash,
			"tags": tags,
		}).Warn("Failed to tag torrent")
	}
}

// Reannounce asks trackers for fresh peers. Best-effort: failures are logged
// and swallowed.
func (c *Client) Reannounce(ctx context.Context, hash string) {
	if err := c.qbt.ReAnnounceTorrentsCtx(ctx, []string{hash}); err != nil {
		c.logger.WithError(err).WithField("hash", hash).Debug("Reannounce failed")
	}
}

// Delta is one incremental update from qBittorrent's sync endpoint.
type Delta struct {
	RID     int64
	Items   map[string]models.Item
	Removed []string
}

// Sync fetches the next incremental update after rid. rid 0 requests a full
// snapshot.
func (c *Client) Sync(ctx context.Context, rid int64) (*Delta, error) {
	data, err := c.qbt.SyncMainDataCtx(ctx, rid)
	if err != nil {
		return nil, fmt.Errorf("failed to sync maindata: %w", err)
	}

	delta := &Delta{
		RID:     int64(data.Rid),
		Items:   make(map[string]models.Item, len(data.Torrents)),
		Removed: data.TorrentsRemoved,
	}
	for hash, t := range data.Torrents {
		item := itemFromTorrent(t)
		if item.Hash == "" {
			item.Hash = hash
		}
		delta.Items[hash] = *item
	}
	return delta, nil
}

func itemFromTorrent(t qbt.Torrent) *models.Item {
	var tags []string
	for _, tag := range strings.Split(t.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return &models.Item{
		Hash:              t.Hash,
		Name:              t.Name,
		Category:          t.Category,
		Tags:              tags,
		State:             strings.ToLower(string(t.State)),
		Downloaded:        t.Downloaded,
		DownloadedSession: t.DownloadedSession,
	}
}
