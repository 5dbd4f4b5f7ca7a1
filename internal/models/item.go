package models

import (
	"path"
	"strings"
)

// Item is a read-only snapshot of a torrent as reported by qBittorrent.
// The handle (infohash) is the stable identifier; everything else may change
// between fetches.
type Item struct {
	Hash     string
	Name     string
	Category string
	Tags     []string
	State    string // raw qBittorrent state string, lowercased

	// Byte counters used by the metadata wait budget. DownloadedSession is
	// preferred when non-zero since it resets with the client.
	Downloaded        int64
	DownloadedSession int64
}

// SessionDownloaded returns the best available downloaded-bytes counter.
func (i *Item) SessionDownloaded() int64 {
	if i.DownloadedSession > 0 {
		return i.DownloadedSession
	}
	return i.Downloaded
}

// FileEntry is one file in a torrent manifest.
type FileEntry struct {
	Path string
	Size int64
}

// Ext returns the lowercased extension without the leading dot, or "" when
// the file has none.
func (f FileEntry) Ext() string {
	base := path.Base(strings.ReplaceAll(f.Path, "\\", "/"))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}
