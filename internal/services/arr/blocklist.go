package arr

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/models"
)

// DedupGrabbedIDs reduces history rows to at most one id per distinct release
// title, preferring the highest (most recent) id per title. Rows without any
// title collapse to a synthetic per-download key so at most one survives.
func DedupGrabbedIDs(rows []models.HistoryRecord) []int64 {
	var grabbed []models.HistoryRecord
	for _, r := range rows {
		if r.Grabbed() {
			grabbed = append(grabbed, r)
		}
	}

	sort.Slice(grabbed, func(i, j int) bool {
		return grabbed[i].ID > grabbed[j].ID
	})

	seen := make(map[string]bool)
	var ids []int64
	for _, r := range grabbed {
		key := r.ReleaseKey()
		if key == "" {
			key = "grab-" + r.DownloadID
		}
		if r.ID == 0 || seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, r.ID)
	}
	return ids
}

// BlocklistDownload marks a grabbed release as failed so the service will not
// re-grab it. It fails one canonical history row, falling back to removing a
// queue row with the blocklist flag when the history path yields nothing.
// Idempotent: no matching records is a silent no-op.
func (c *Client) BlocklistDownload(ctx context.Context, downloadID string) error {
	if !c.Enabled() {
		return nil
	}

	rows := c.HistoryForDownload(ctx, downloadID)
	ids := DedupGrabbedIDs(rows)
	if len(ids) > 0 {
		err := c.MarkHistoryFailed(ctx, ids[0])
		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"service": c.name,
				"history": ids[0],
			}).Info("Blocklisted via history")
			return nil
		}
		c.logger.WithError(err).WithField("service", c.name).Warn("history/failed error, trying queue failover")
	}

	queue := c.QueueForDownload(ctx, downloadID)
	if len(queue) == 0 {
		c.logger.WithFields(logrus.Fields{
			"service":    c.name,
			"downloadId": downloadID,
		}).Info("Nothing to fail or in queue")
		return nil
	}

	if err := c.RemoveFromQueue(ctx, queue[0].ID, true); err != nil {
		c.logger.WithError(err).WithField("service", c.name).Error("Queue failover error")
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"service": c.name,
		"queue":   queue[0].ID,
	}).Info("Blocklisted via queue")
	return nil
}
