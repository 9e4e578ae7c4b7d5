// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectMQTT connects to the broker with auto-reconnect enabled.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// MQTTSink republishes hub events on per-type topics. Raw telemetry is
// retained so a new MQTT subscriber gets the latest frame straight away.
// Publish failures only lose the event; paho reconnects on its own.
type MQTTSink struct {
	client  mqtt.Client
	topics  map[string]string
	timeout time.Duration
}

func NewMQTTSink(client mqtt.Client, topicRaw, topicAsset string, timeout time.Duration) *MQTTSink {
	return &MQTTSink{
		client: client,
		topics: map[string]string{
			EventRawTelemetry: topicRaw,
			EventAssetUpdated: topicAsset,
		},
		timeout: timeout,
	}
}

func (s *MQTTSink) Send(ev Event) error {
	topic, ok := s.topics[ev.Type]
	if !ok || topic == "" {
		return nil
	}

	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrDropped, ev.Type, err)
	}

	token := s.client.Publish(topic, 0, ev.Type == EventRawTelemetry, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: publish to %s timed out", ErrDropped, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ErrDropped, topic, err)
	}
	return nil
}
