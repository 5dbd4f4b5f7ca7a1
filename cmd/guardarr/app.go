package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/controllers"
	"github.com/amaumene/guardarr/internal/gate"
	"github.com/amaumene/guardarr/internal/metadata"
	"github.com/amaumene/guardarr/internal/services/arr"
	"github.com/amaumene/guardarr/internal/services/qbit"
	"github.com/amaumene/guardarr/internal/services/tvdb"
	"github.com/amaumene/guardarr/internal/services/tvmaze"
	"github.com/amaumene/guardarr/internal/utils"
)

// app holds the wired components shared by the run and watch commands.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	qbit     *qbit.Client
	guard    *controllers.GuardController
	registry *prometheus.Registry
}

// newApp loads configuration and wires every collaborator. Authentication
// to qBittorrent happens here; its failure carries qbit.ErrAuth so main can
// map it to a distinct exit code.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	cfg.ApplyExtensionsFile(logger)

	qb, err := qbit.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	sonarr := arr.NewSonarr(cfg, logger)
	radarr := arr.NewRadarr(cfg, logger)

	var providers []gate.AirDateSource
	switch cfg.CrossCheckProvider {
	case "tvmaze":
		providers = append(providers, tvmaze.NewClient(cfg, logger))
	case "tvdb":
		providers = append(providers, tvdb.NewClient(cfg, logger))
	case "both":
		providers = append(providers, tvmaze.NewClient(cfg, logger), tvdb.NewClient(cfg, logger))
	}

	preair := gate.NewGate(cfg, sonarr, providers, logger)
	fetcher := metadata.NewFetcher(cfg, qb, logger)

	registry := prometheus.NewRegistry()
	metrics := controllers.NewMetrics(registry)

	guard := controllers.NewGuardController(cfg, qb, sonarr, radarr, preair, fetcher, metrics, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		qbit:     qb,
		guard:    guard,
		registry: registry,
	}, nil
}
