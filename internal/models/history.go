package models

import (
	"strings"
	"time"
)

// HistoryRecord is one row of Sonarr/Radarr v3 history. Records are immutable
// once fetched; several rows may describe the same logical release (retries,
// repacks).
type HistoryRecord struct {
	ID         int64       `json:"id"`
	EventType  string      `json:"eventType"`
	DownloadID string      `json:"downloadId"`
	EpisodeID  int64       `json:"episodeId"`
	Data       HistoryData `json:"data"`
}

// HistoryData carries the optional nested release fields of a history row.
type HistoryData struct {
	SourceTitle  string `json:"sourceTitle"`
	ReleaseTitle string `json:"releaseTitle"`
	ReleaseGroup string `json:"releaseGroup"`
	Indexer      string `json:"indexer"`
}

// Grabbed reports whether the row records a grab. Some service versions omit
// eventType, so a row carrying a release title counts as well.
func (r HistoryRecord) Grabbed() bool {
	if strings.EqualFold(r.EventType, "grabbed") {
		return true
	}
	return r.Data.SourceTitle != "" || r.Data.ReleaseTitle != ""
}

// ReleaseKey returns the case-folded release title used to deduplicate rows,
// or "" when the row has no title at all.
func (r HistoryRecord) ReleaseKey() string {
	title := r.Data.SourceTitle
	if title == "" {
		title = r.Data.ReleaseTitle
	}
	return strings.ToLower(strings.TrimSpace(title))
}

// QueueRecord is one row of the service's download queue, used only as a
// failover path when no history row exists.
type QueueRecord struct {
	ID         int64  `json:"id"`
	DownloadID string `json:"downloadId"`
}

// Episode is a Sonarr episode. AirDateUTC is nil when the air date is
// unknown; callers treat that as far-future rather than aired.
type Episode struct {
	ID            int64      `json:"id"`
	SeriesID      int64      `json:"seriesId"`
	SeasonNumber  int        `json:"seasonNumber"`
	EpisodeNumber int        `json:"episodeNumber"`
	AirDateUTC    *time.Time `json:"airDateUtc"`
}

// Series is a Sonarr series with its external cross-reference ids.
type Series struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	TVDBID int64  `json:"tvdbId"`
	IMDBID string `json:"imdbId"`
}
