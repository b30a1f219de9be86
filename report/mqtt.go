// PDRADAR - A software-defined pulse-Doppler radar processor.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package report

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos"`
	Retain   bool   `mapstructure:"retain"`

	// Timeout bounds each publish. Zero waits five seconds.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MQTT publishes each frame as a JSON document to a topic.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
	log    logrus.FieldLogger
}

// DialMQTT connects to the configured broker. The client reconnects on
// its own after the initial connection succeeds.
func DialMQTT(cfg MQTTConfig, log logrus.FieldLogger) (*MQTT, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("sink", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("pdradar_" + uuid.New().String()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.WithField("broker", cfg.Broker).Info("connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Debug("reconnecting")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt: connect to %s", cfg.Broker)
	}

	return NewMQTT(client, cfg, log), nil
}

// NewMQTT publishes through an existing client.
func NewMQTT(client mqtt.Client, cfg MQTTConfig, log logrus.FieldLogger) *MQTT {
	if cfg.Topic == "" {
		cfg.Topic = "pdradar/detections"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTT{client: client, cfg: cfg, log: log}
}

func (m *MQTT) Write(f *Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "mqtt: marshal frame")
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retain, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return errors.Errorf("mqtt: publish to %s timed out", m.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "mqtt: publish to %s", m.cfg.Topic)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
