// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/broadcast"
	"github.com/relabs-tech/gridwatch/internal/config"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

// RunConsoleMQTT prints the telemetry and pole updates bridged onto MQTT
// until Ctrl+C.
func RunConsoleMQTT(cfg *config.Config, log zerolog.Logger) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required for the console")
	}
	log = log.With().Str("component", "console").Logger()

	client, err := broadcast.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info().Str("broker", cfg.MQTTBroker).Msg("connected to MQTT broker")

	rawToken := client.Subscribe(cfg.TopicRawTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var rec telemetry.Record
		if err := json.Unmarshal(msg.Payload(), &rec); err != nil {
			log.Warn().Err(err).Msg("telemetry unmarshal error")
			return
		}
		fmt.Println(formatRaw(rec))
	})
	rawToken.Wait()
	if rawToken.Error() != nil {
		return rawToken.Error()
	}
	log.Info().Str("topic", cfg.TopicRawTelemetry).Msg("subscribed")

	poleToken := client.Subscribe(cfg.TopicAssetUpdated, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var a asset.Asset
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			log.Warn().Err(err).Msg("pole unmarshal error")
			return
		}
		fmt.Println(formatPole(a))
	})
	poleToken.Wait()
	if poleToken.Error() != nil {
		return poleToken.Error()
	}
	log.Info().Str("topic", cfg.TopicAssetUpdated).Msg("subscribed")

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("console shutting down")
	return nil
}

func formatRaw(rec telemetry.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[RAW ]  V=%s  I=%s  tilt=%s",
		num(rec.Voltage, "%.1f"), num(rec.Current, "%.2f"), num(rec.Tilt(), "%.1f"))
	if rec.HasFix() {
		fmt.Fprintf(&b, "  lat=%.6f lng=%.6f", *rec.Lat, *rec.Lng)
	} else {
		b.WriteString("  gps=no-fix")
	}
	return b.String()
}

func formatPole(a asset.Asset) string {
	status := string(a.Status)
	if status == "" {
		status = "-"
	}
	s := fmt.Sprintf("[POLE]  id=%s status=%s  V=%s  I=%s  tilt=%s",
		a.ID, status, num(a.Voltage, "%.1f"), num(a.Current, "%.2f"), num(a.Tilt, "%.1f"))
	if a.Telemetry != nil {
		s += fmt.Sprintf("  dist=%.1fm", a.Telemetry.MatchedDistanceMeters)
	}
	return s
}

func num(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
