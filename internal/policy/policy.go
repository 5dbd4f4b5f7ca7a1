package policy

import (
	"strings"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

// videoExts is the fixed set of extensions that can qualify a file as
// keepable video.
var videoExts = config.SplitExts("mkv, mp4, m4v, avi, ts, m2ts, mov, webm")

// Settings is the immutable extension/disc policy evaluated against a file
// manifest.
type Settings struct {
	Strategy           string // block|allow
	Allowed            map[string]bool
	Blocked            map[string]bool
	Disc               map[string]bool
	DeleteIfAllBlocked bool
	DeleteIfAnyBlocked bool
	MinKeepableBytes   int64
}

// SettingsFromConfig builds policy settings from loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Strategy:           cfg.ExtStrategy,
		Allowed:            cfg.AllowedExts,
		Blocked:            cfg.BlockedExts,
		Disc:               cfg.DiscExts,
		DeleteIfAllBlocked: cfg.ExtDeleteIfAllBlocked,
		DeleteIfAnyBlocked: cfg.ExtDeleteIfAnyBlocked,
		MinKeepableBytes:   cfg.MinKeepableBytes(),
	}
}

// ExtAllowed reports whether a bare lowercase extension passes the policy.
// The blocked set always wins over the allowed set. An empty extension is
// allowed under "block" strategy and blocked under "allow" strategy.
func (s Settings) ExtAllowed(ext string) bool {
	if ext == "" {
		return s.Strategy == "block"
	}
	if s.Blocked[ext] {
		return false
	}
	if s.Strategy == "allow" {
		return s.Allowed[ext]
	}
	return true
}

// FileVerdict is the per-file outcome of an evaluation.
type FileVerdict struct {
	Path    string
	Allowed bool
}

// Result is the outcome of evaluating a manifest against the policy.
// DeleteReason is empty when nothing calls for deletion.
type Result struct {
	PerFile       []FileVerdict
	Disallowed    int
	Relevant      int
	DiscImageOnly bool
	KeepableVideo bool
	DeleteReason  models.DeleteReason
}

// Delete reports whether the aggregate verdict calls for removal.
func (r Result) Delete() bool {
	return r.DeleteReason != models.DeleteReasonNone
}

// Evaluate classifies a file manifest against the extension policy and the
// disc-image heuristic. Zero-size entries (padding/placeholder files) are
// excluded. Pure function, no I/O; tagging, blocklisting and deletion are the
// caller's job.
func Evaluate(files []models.FileEntry, s Settings) Result {
	var result Result

	relevant := make([]models.FileEntry, 0, len(files))
	for _, f := range files {
		if f.Size > 0 {
			relevant = append(relevant, f)
		}
	}
	result.Relevant = len(relevant)

	for _, f := range relevant {
		allowed := s.ExtAllowed(f.Ext())
		if !allowed {
			result.Disallowed++
		}
		result.PerFile = append(result.PerFile, FileVerdict{Path: f.Path, Allowed: allowed})
	}

	result.DiscImageOnly = len(relevant) > 0 && allDiscImage(relevant, s.Disc)
	result.KeepableVideo = hasKeepableVideo(relevant, s)

	// Extension policy is checked before disc detection; first match wins.
	if result.Disallowed > 0 {
		if s.DeleteIfAnyBlocked || (s.DeleteIfAllBlocked && result.Disallowed == result.Relevant) {
			result.DeleteReason = models.DeleteReasonExtensionPolicy
			return result
		}
	}

	if result.DiscImageOnly && !result.KeepableVideo {
		result.DeleteReason = models.DeleteReasonDiscImage
		return result
	}

	return result
}

// IsDiscPath reports whether a path looks like disc-image content: either a
// disc-image extension or a BDMV/VIDEO_TS directory segment.
func IsDiscPath(path string, discExts map[string]bool) bool {
	normalized := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	if discExts[models.FileEntry{Path: normalized}.Ext()] {
		return true
	}
	return strings.Contains(normalized, "/bdmv/") || strings.Contains(normalized, "/video_ts/")
}

func allDiscImage(files []models.FileEntry, discExts map[string]bool) bool {
	for _, f := range files {
		if !IsDiscPath(f.Path, discExts) {
			return false
		}
	}
	return true
}

// hasKeepableVideo reports whether at least one file is a policy-allowed
// video of at least the configured minimum size. Such a file overrides
// disc-image deletion.
func hasKeepableVideo(files []models.FileEntry, s Settings) bool {
	for _, f := range files {
		if videoExts[f.Ext()] && f.Size >= s.MinKeepableBytes && s.ExtAllowed(f.Ext()) {
			return true
		}
	}
	return false
}
