package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// extensionsFile is the shape of the optional policy override file:
// {"strategy": "block"|"allow", "allowed": [...], "blocked": [...]}.
// Allowed/blocked also accept a single comma-separated string.
type extensionsFile struct {
	Strategy string          `json:"strategy"`
	Allowed  json.RawMessage `json:"allowed"`
	Blocked  json.RawMessage `json:"blocked"`
}

// ApplyExtensionsFile overrides the extension policy from the configured JSON
// file. The file is read once and never hot-reloaded. A missing file is fine;
// a malformed one logs a warning and leaves the built-in sets in place.
func (c *Config) ApplyExtensionsFile(logger *logrus.Logger) {
	if c.ExtsFile == "" {
		return
	}
	data, err := os.ReadFile(c.ExtsFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).WithField("file", c.ExtsFile).Warn("Failed to read extension policy file, using defaults")
		}
		return
	}

	var file extensionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		logger.WithError(err).WithField("file", c.ExtsFile).Warn("Failed to parse extension policy file, using defaults")
		return
	}

	if strategy := strings.ToLower(strings.TrimSpace(file.Strategy)); strategy == "block" || strategy == "allow" {
		c.ExtStrategy = strategy
	}
	if set := parseExtList(file.Allowed); len(set) > 0 {
		c.AllowedExts = set
	}
	if set := parseExtList(file.Blocked); len(set) > 0 {
		c.BlockedExts = set
	}

	logger.WithFields(logrus.Fields{
		"file":     c.ExtsFile,
		"strategy": c.ExtStrategy,
		"allowed":  len(c.AllowedExts),
		"blocked":  len(c.BlockedExts),
	}).Info("Loaded extension policy overrides")
}

// parseExtList accepts either a JSON array of extensions or a single
// comma-separated string.
func parseExtList(raw json.RawMessage) map[string]bool {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return SplitExts(strings.Join(list, ","))
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return SplitExts(single)
	}
	return nil
}
