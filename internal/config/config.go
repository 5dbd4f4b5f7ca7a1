package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Canonical extension sets. The default blocked set is the union of disc
// images, risky executables and archives.
var (
	DiscImageExts = SplitExts("iso, img, mdf, nrg, cue, bin")
	riskyExecExts = SplitExts("exe, bat, cmd, sh, ps1, msi, dmg, apk, jar, com, scr, vbs, vb, lnk, reg")
	archiveExts   = SplitExts("zip, rar, 7z, tar, gz, bz2, xz, zst")

	DefaultAllowedExts = SplitExts(`
		mkv, mp4, m4v, mov, webm, avi, m2ts, ts,
		srt, ass, ssa, sub, idx, sup,
		flac, mka, mp3, aac, ac3, eac3, dts, opus,
		nfo, txt, jpg, jpeg, png, webp`)

	DefaultBlockedExts = union(DiscImageExts, riskyExecExts, archiveExts)
)

// Config holds all application configuration. It is built once at startup and
// passed by reference into every component constructor; nothing reads ambient
// state afterwards.
type Config struct {
	// qBittorrent
	QbitHost          string
	QbitUser          string
	QbitPass          string
	AllowedCategories map[string]bool
	IgnoreTLS         bool
	DryRun            bool
	DeleteFiles       bool

	// Pre-air gate (Sonarr)
	EnablePreAir                bool
	SonarrURL                   string
	SonarrAPIKey                string
	SonarrCategories            map[string]bool
	EarlyGraceHours             float64
	EarlyHardLimitHours         float64
	WhitelistOverridesHardLimit bool
	WhitelistGroups             map[string]bool
	WhitelistIndexers           map[string]bool
	WhitelistTrackers           map[string]bool
	ResumeIfNoHistory           bool
	SonarrTimeout               time.Duration
	SonarrRetries               int

	// Air-date cross-check providers
	CrossCheckProvider string // off|tvmaze|tvdb|both
	TVMazeBase         string
	TVMazeTimeout      time.Duration
	TVDBBase           string
	TVDBAPIKey         string
	TVDBPin            string
	TVDBLanguage       string
	TVDBOrder          string // default|official
	TVDBTimeout        time.Duration
	TVDBBearer         string

	// Metadata wait / content policy
	EnableContentCheck   bool
	MinKeepableVideoMB   float64
	MetadataPollInterval time.Duration
	MetadataMaxWait      time.Duration // 0 = wait indefinitely
	MetadataBudgetBytes  int64         // 0 = no cap

	// Radarr (content-policy deletes)
	RadarrURL        string
	RadarrAPIKey     string
	RadarrCategories map[string]bool
	RadarrTimeout    time.Duration
	RadarrRetries    int

	// Extension policy
	ExtStrategy           string // block|allow
	AllowedExts           map[string]bool
	BlockedExts           map[string]bool
	DiscExts              map[string]bool
	ExtsFile              string
	ExtDeleteIfAllBlocked bool
	ExtDeleteIfAnyBlocked bool
	ExtViolationTag       string

	// Watcher
	WatchPollInterval      time.Duration
	ProcessExistingAtStart bool
	RescanKeyword          string

	// Server (watch mode)
	ServerPort string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("QBIT_HOST", "http://127.0.0.1:8080")
	viper.SetDefault("QBIT_USER", "admin")
	viper.SetDefault("QBIT_PASS", "adminadmin")
	viper.SetDefault("QBIT_ALLOWED_CATEGORIES", "tv-sonarr,radarr")
	viper.SetDefault("QBIT_DELETE_FILES", true)
	viper.SetDefault("ENABLE_PREAIR_CHECK", true)
	viper.SetDefault("SONARR_URL", "http://127.0.0.1:8989")
	viper.SetDefault("SONARR_CATEGORIES", "tv-sonarr")
	viper.SetDefault("EARLY_GRACE_HOURS", 6.0)
	viper.SetDefault("EARLY_HARD_LIMIT_HOURS", 72.0)
	viper.SetDefault("RESUME_IF_NO_HISTORY", true)
	viper.SetDefault("SONARR_TIMEOUT_SEC", 45)
	viper.SetDefault("SONARR_RETRIES", 3)
	viper.SetDefault("INTERNET_CHECK_PROVIDER", "tvmaze")
	viper.SetDefault("TVMAZE_BASE", "https://api.tvmaze.com")
	viper.SetDefault("TVMAZE_TIMEOUT_SEC", 8)
	viper.SetDefault("TVDB_BASE", "https://api4.thetvdb.com/v4")
	viper.SetDefault("TVDB_LANGUAGE", "eng")
	viper.SetDefault("TVDB_ORDER", "default")
	viper.SetDefault("TVDB_TIMEOUT_SEC", 8)
	viper.SetDefault("ENABLE_ISO_CHECK", true)
	viper.SetDefault("MIN_KEEPABLE_VIDEO_MB", 50.0)
	viper.SetDefault("METADATA_POLL_INTERVAL", 1.5)
	viper.SetDefault("METADATA_MAX_WAIT_SEC", 0)
	viper.SetDefault("METADATA_DOWNLOAD_BUDGET_BYTES", 0)
	viper.SetDefault("RADARR_URL", "http://127.0.0.1:7878")
	viper.SetDefault("RADARR_CATEGORIES", "radarr")
	viper.SetDefault("RADARR_TIMEOUT_SEC", 45)
	viper.SetDefault("RADARR_RETRIES", 3)
	viper.SetDefault("GUARD_EXT_STRATEGY", "block")
	viper.SetDefault("GUARD_EXTS_FILE", "/config/extensions.json")
	viper.SetDefault("GUARD_EXT_DELETE_IF_ALL_BLOCKED", true)
	viper.SetDefault("GUARD_EXT_DELETE_IF_ANY_BLOCKED", false)
	viper.SetDefault("GUARD_EXT_VIOLATION_TAG", "trash:ext")
	viper.SetDefault("WATCH_POLL_SECONDS", 3.0)
	viper.SetDefault("WATCH_PROCESS_EXISTING_AT_START", false)
	viper.SetDefault("WATCH_RESCAN_KEYWORD", "rescan")
	viper.SetDefault("SERVER_PORT", "8484")
	viper.SetDefault("LOG_LEVEL", "info")

	config := &Config{
		QbitHost:          strings.TrimRight(viper.GetString("QBIT_HOST"), "/"),
		QbitUser:          viper.GetString("QBIT_USER"),
		QbitPass:          viper.GetString("QBIT_PASS"),
		AllowedCategories: splitSet(viper.GetString("QBIT_ALLOWED_CATEGORIES")),
		IgnoreTLS:         viper.GetBool("QBIT_IGNORE_TLS"),
		DryRun:            viper.GetBool("QBIT_DRY_RUN"),
		DeleteFiles:       viper.GetBool("QBIT_DELETE_FILES"),

		EnablePreAir:                viper.GetBool("ENABLE_PREAIR_CHECK"),
		SonarrURL:                   strings.TrimRight(viper.GetString("SONARR_URL"), "/"),
		SonarrAPIKey:                viper.GetString("SONARR_APIKEY"),
		SonarrCategories:            splitSet(viper.GetString("SONARR_CATEGORIES")),
		EarlyGraceHours:             viper.GetFloat64("EARLY_GRACE_HOURS"),
		EarlyHardLimitHours:         viper.GetFloat64("EARLY_HARD_LIMIT_HOURS"),
		WhitelistOverridesHardLimit: viper.GetBool("WHITELIST_OVERRIDES_HARD_LIMIT"),
		WhitelistGroups:             splitSet(viper.GetString("EARLY_WHITELIST_GROUPS")),
		WhitelistIndexers:           splitSet(viper.GetString("EARLY_WHITELIST_INDEXERS")),
		WhitelistTrackers:           splitSet(viper.GetString("EARLY_WHITELIST_TRACKERS")),
		ResumeIfNoHistory:           viper.GetBool("RESUME_IF_NO_HISTORY"),
		SonarrTimeout:               time.Duration(viper.GetInt("SONARR_TIMEOUT_SEC")) * time.Second,
		SonarrRetries:               viper.GetInt("SONARR_RETRIES"),

		CrossCheckProvider: strings.ToLower(strings.TrimSpace(viper.GetString("INTERNET_CHECK_PROVIDER"))),
		TVMazeBase:         strings.TrimRight(viper.GetString("TVMAZE_BASE"), "/"),
		TVMazeTimeout:      time.Duration(viper.GetInt("TVMAZE_TIMEOUT_SEC")) * time.Second,
		TVDBBase:           strings.TrimRight(viper.GetString("TVDB_BASE"), "/"),
		TVDBAPIKey:         viper.GetString("TVDB_APIKEY"),
		TVDBPin:            viper.GetString("TVDB_PIN"),
		TVDBLanguage:       viper.GetString("TVDB_LANGUAGE"),
		TVDBOrder:          strings.ToLower(strings.TrimSpace(viper.GetString("TVDB_ORDER"))),
		TVDBTimeout:        time.Duration(viper.GetInt("TVDB_TIMEOUT_SEC")) * time.Second,
		TVDBBearer:         strings.TrimSpace(viper.GetString("TVDB_BEARER")),

		EnableContentCheck:   viper.GetBool("ENABLE_ISO_CHECK"),
		MinKeepableVideoMB:   viper.GetFloat64("MIN_KEEPABLE_VIDEO_MB"),
		MetadataPollInterval: time.Duration(viper.GetFloat64("METADATA_POLL_INTERVAL") * float64(time.Second)),
		MetadataMaxWait:      time.Duration(viper.GetInt("METADATA_MAX_WAIT_SEC")) * time.Second,
		MetadataBudgetBytes:  viper.GetInt64("METADATA_DOWNLOAD_BUDGET_BYTES"),

		RadarrURL:        strings.TrimRight(viper.GetString("RADARR_URL"), "/"),
		RadarrAPIKey:     viper.GetString("RADARR_APIKEY"),
		RadarrCategories: splitSet(viper.GetString("RADARR_CATEGORIES")),
		RadarrTimeout:    time.Duration(viper.GetInt("RADARR_TIMEOUT_SEC")) * time.Second,
		RadarrRetries:    viper.GetInt("RADARR_RETRIES"),

		ExtStrategy:           strings.ToLower(strings.TrimSpace(viper.GetString("GUARD_EXT_STRATEGY"))),
		AllowedExts:           copySet(DefaultAllowedExts),
		BlockedExts:           copySet(DefaultBlockedExts),
		DiscExts:              copySet(DiscImageExts),
		ExtsFile:              viper.GetString("GUARD_EXTS_FILE"),
		ExtDeleteIfAllBlocked: viper.GetBool("GUARD_EXT_DELETE_IF_ALL_BLOCKED"),
		ExtDeleteIfAnyBlocked: viper.GetBool("GUARD_EXT_DELETE_IF_ANY_BLOCKED"),
		ExtViolationTag:       viper.GetString("GUARD_EXT_VIOLATION_TAG"),

		WatchPollInterval:      time.Duration(viper.GetFloat64("WATCH_POLL_SECONDS") * float64(time.Second)),
		ProcessExistingAtStart: viper.GetBool("WATCH_PROCESS_EXISTING_AT_START"),
		RescanKeyword:          strings.ToLower(strings.TrimSpace(viper.GetString("WATCH_RESCAN_KEYWORD"))),

		ServerPort: viper.GetString("SERVER_PORT"),
		LogLevel:   viper.GetString("LOG_LEVEL"),
	}

	// Env overrides for the built-in extension sets
	if env := SplitExts(viper.GetString("GUARD_ALLOWED_EXTS")); len(env) > 0 {
		config.AllowedExts = env
	}
	if env := SplitExts(viper.GetString("GUARD_BLOCKED_EXTS")); len(env) > 0 {
		config.BlockedExts = env
	}
	if env := SplitExts(viper.GetString("GUARD_DISC_EXTS")); len(env) > 0 {
		config.DiscExts = env
	}

	if config.ExtStrategy != "block" && config.ExtStrategy != "allow" {
		return nil, fmt.Errorf("GUARD_EXT_STRATEGY must be 'block' or 'allow', got %q", config.ExtStrategy)
	}
	switch config.CrossCheckProvider {
	case "off", "tvmaze", "tvdb", "both":
	default:
		return nil, fmt.Errorf("INTERNET_CHECK_PROVIDER must be one of off|tvmaze|tvdb|both, got %q", config.CrossCheckProvider)
	}
	if config.TVDBOrder != "default" && config.TVDBOrder != "official" {
		config.TVDBOrder = "default"
	}

	return config, nil
}

// SonarrEnabled reports whether a Sonarr endpoint is configured.
func (c *Config) SonarrEnabled() bool {
	return c.SonarrURL != "" && c.SonarrAPIKey != ""
}

// RadarrEnabled reports whether a Radarr endpoint is configured.
func (c *Config) RadarrEnabled() bool {
	return c.RadarrURL != "" && c.RadarrAPIKey != ""
}

// MinKeepableBytes converts the configured keepable-video threshold to bytes.
func (c *Config) MinKeepableBytes() int64 {
	return int64(c.MinKeepableVideoMB * 1024 * 1024)
}

var extSplitRe = regexp.MustCompile(`[,\s;]+`)

// SplitExts parses comma/space/semicolon-separated extensions into a set of
// naked lowercase extensions (no dots).
func SplitExts(s string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range extSplitRe.Split(strings.TrimSpace(s), -1) {
		p = strings.ToLower(strings.TrimLeft(p, "."))
		if p != "" {
			out[p] = true
		}
	}
	return out
}

// splitSet parses a comma-separated list into a lowercase membership set.
func splitSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out[p] = true
		}
	}
	return out
}

func copySet(src map[string]bool) map[string]bool {
	out := make(map[string]bool, len(src))
	for k := range src {
		out[k] = true
	}
	return out
}

func union(sets ...map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}
