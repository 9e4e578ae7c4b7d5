// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/broadcast"
	"github.com/relabs-tech/gridwatch/internal/config"
	"github.com/relabs-tech/gridwatch/internal/device"
	"github.com/relabs-tech/gridwatch/internal/health"
	"github.com/relabs-tech/gridwatch/internal/ingest"
	"github.com/relabs-tech/gridwatch/internal/observability"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// RunServer runs ingestion, the HTTP surface and the optional MQTT bridge
// until SIGINT or SIGTERM.
func RunServer(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- 1) Registry ----
	registry, closeRegistry, err := openRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRegistry()

	// ---- 2) Cache, hub, health ----
	cache := telemetry.NewCache()
	hub := broadcast.NewHub(cache, cfg.SubscriberQueueSize, log)
	defer hub.Close()

	healthSrv := health.New(hub.Len)

	// ---- 3) MQTT bridge ----
	if cfg.MQTTBroker != "" {
		client, err := startBridge(cfg, hub, log)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
	} else {
		log.Info().Msg("MQTT_BROKER not set, bridge disabled")
	}

	// ---- 4) Metrics and gRPC health ----
	if cfg.MetricsPort > 0 {
		go func() {
			if err := observability.StartMetricsServer(strconv.Itoa(cfg.MetricsPort)); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Info().Int("port", cfg.MetricsPort).Msg("metrics on /metrics")
	}
	if cfg.GRPCHealthPort > 0 {
		go func() {
			if err := healthSrv.ServeGRPC(strconv.Itoa(cfg.GRPCHealthPort)); err != nil {
				log.Error().Err(err).Msg("grpc health server stopped")
			}
		}()
	}
	defer healthSrv.Shutdown()

	// ---- 5) Ingestion ----
	pipeline := ingest.NewPipeline(cache, registry, hub, ingest.Options{
		ThresholdMeters: cfg.MatchThresholdM,
		StorageTimeout:  cfg.StorageTimeout(),
	}, log)
	sup := &Supervisor{
		Open: func() (io.ReadCloser, error) {
			return device.Open(cfg.DevicePort, cfg.DeviceBaudRate)
		},
		Pipeline:          pipeline,
		MaxLineBytes:      cfg.DeviceMaxLineBytes,
		ReconnectInterval: cfg.ReconnectInterval(),
		ReopenOnEOF:       !device.IsStdin(cfg.DevicePort),
		Status:            healthSrv,
		Log:               log,
	}
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := sup.Run(ctx); err != nil {
			log.Error().Err(err).Msg("ingestion stopped")
		} else if ctx.Err() == nil {
			log.Info().Msg("ingestion finished, still serving cached telemetry")
		}
	}()

	// ---- 6) HTTP ----
	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.WebServerPort),
		Handler: NewWebMux(WebDeps{
			Cache:          cache,
			Hub:            hub,
			Health:         healthSrv,
			AllowedOrigins: cfg.AllowedOriginList(),
			WriteTimeout:   cfg.SubscriberWriteTimeout(),
			Log:            log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("web server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	healthSrv.SetRunning(true)
	log.Info().Str("device", cfg.DevicePort).Float64("threshold_m", cfg.MatchThresholdM).Msg("gridwatch started")

	select {
	case <-ctx.Done():
		log.Warn().Msg("shutdown signal received")
	case err := <-srvErr:
		stop()
		return fmt.Errorf("web server: %w", err)
	}

	// ---- Shutdown ----
	healthSrv.SetRunning(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("web server shutdown")
	}
	select {
	case <-ingestDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("ingestion did not stop in time")
	}

	log.Info().Msg("gridwatch stopped cleanly")
	return nil
}

// openRegistry builds the configured registry backend, seeded from
// ASSETS_FILE when set.
func openRegistry(ctx context.Context, cfg *config.Config, log zerolog.Logger) (asset.Registry, func(), error) {
	switch cfg.RegistryBackend {
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout())
		defer cancel()
		reg, err := asset.NewRedisRegistry(pingCtx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisAssetsKey, log)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AssetsFile != "" {
			assets, err := asset.ReadFile(cfg.AssetsFile)
			if err != nil {
				reg.Close()
				return nil, nil, err
			}
			added := 0
			for _, a := range assets {
				ok, err := reg.PutIfAbsent(pingCtx, a)
				if err != nil {
					reg.Close()
					return nil, nil, err
				}
				if ok {
					added++
				}
			}
			log.Info().Int("assets", len(assets)).Int("added", added).Msg("seeded redis registry")
		}
		return reg, func() { reg.Close() }, nil

	default:
		var (
			reg *asset.MemoryRegistry
			err error
		)
		if cfg.AssetsFile != "" {
			reg, err = asset.LoadMemoryRegistry(cfg.AssetsFile)
		} else {
			reg, err = asset.NewMemoryRegistry()
		}
		if err != nil {
			return nil, nil, err
		}
		assets, _ := reg.List(ctx)
		log.Info().Int("assets", len(assets)).Msg("memory registry ready")
		return reg, func() {}, nil
	}
}

// startBridge subscribes an MQTT sink to the hub.
func startBridge(cfg *config.Config, hub *broadcast.Hub, log zerolog.Logger) (mqtt.Client, error) {
	client, err := broadcast.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		return nil, fmt.Errorf("connect MQTT %s: %w", cfg.MQTTBroker, err)
	}
	sink := broadcast.NewMQTTSink(client, cfg.TopicRawTelemetry, cfg.TopicAssetUpdated, cfg.SubscriberWriteTimeout())
	if _, err := hub.Subscribe(sink); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	log.Info().Str("broker", cfg.MQTTBroker).
		Str("raw_topic", cfg.TopicRawTelemetry).
		Str("asset_topic", cfg.TopicAssetUpdated).
		Msg("MQTT bridge subscribed")
	return client, nil
}
