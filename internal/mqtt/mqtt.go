// Package mqtt implements the MQTT actor (C3): the device's only
// connection to the broker. It turns inbound command messages into
// mailbox envelopes for the BACnet/writer actors, and forwards outbound
// envelopes addressed to it (point batches, config responses, heartbeat
// status) on to the broker. Grounded on
// other_examples/40f7fc3d_nugget-thane-ai-agent__internal-mqtt-publisher.go.go
// for the autopaho/paho wiring and on
// original_source/apps/bms-iot-app/src/main.py for the command topic's
// role in the overall actor wiring.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// Config describes how to reach the broker and identify this device.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	DeviceID  string
	ClientID  string
}

func (c Config) commandTopic() string  { return fmt.Sprintf("bms/%s/commands", c.DeviceID) }
func (c Config) responseTopic() string { return fmt.Sprintf("bms/%s/responses", c.DeviceID) }
func (c Config) pointsTopic() string   { return fmt.Sprintf("bms/%s/points", c.DeviceID) }

// inboundEnvelope is the wire shape of a command delivered by the broker:
// a message.Type tag plus a raw JSON payload decoded according to that
// tag, and the actor that should receive it locally.
type inboundEnvelope struct {
	Type    message.Type    `json:"type"`
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// Actor is the MQTT connection owner. It is the only component that talks
// to the broker — every other actor reaches it through the mailbox.
type Actor struct {
	Config   Config
	Registry *mailbox.Registry
	DB       *database.SQLiteDB
	Metrics  *telemetry.Metrics

	cm *autopaho.ConnectionManager
}

func (a *Actor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorMQTT, Run: a.run}
}

func (a *Actor) run(ctx context.Context, handle *actor.Handle) error {
	mb, err := a.Registry.Register(message.ActorMQTT)
	if err != nil {
		logger.Warn("mqtt: %v", err)
	}
	if mb == nil {
		return fmt.Errorf("mqtt: mailbox unavailable")
	}

	brokerURL, err := url.Parse(a.Config.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqtt: invalid broker url: %w", err)
	}

	reconnectLimiter := rate.NewLimiter(rate.Every(10*time.Second), 1)

	clientID := a.Config.ClientID
	if clientID == "" {
		// A fresh suffix on every connect keeps a restarted agent from
		// being kicked off the broker by its own previous session under
		// the same static client id.
		clientID = "bms-edge-" + a.Config.DeviceID + "-" + uuid.NewString()[:8]
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: a.Config.Username,
		ConnectPassword: []byte(a.Config.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("mqtt: connected to %s", a.Config.BrokerURL)
			a.updateConnection(ctx, "connected")
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: a.Config.commandTopic(), QoS: 1}},
			}); err != nil {
				logger.Error("mqtt: subscribe to %s failed: %v", a.Config.commandTopic(), err)
			}
		},
		OnConnectError: func(err error) {
			if reconnectLimiter.Allow() {
				logger.Warn("mqtt: connection error: %v", err)
			}
			a.updateConnection(ctx, "error")
			if a.Metrics != nil {
				a.Metrics.RecordMQTTReconnect()
			}
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	a.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		a.handleInbound(ctx, pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cm.Disconnect(disconnectCtx)
	}()

	awaitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(awaitCtx); err != nil {
		logger.Warn("mqtt: initial connection timed out, retrying in background: %v", err)
	}

	for {
		env, err := mb.Recv(ctx)
		if err != nil {
			return nil
		}
		a.handleOutbound(ctx, env)
		handle.Heartbeat()
	}
}

func (a *Actor) updateConnection(ctx context.Context, status string) {
	if err := a.DB.UpsertDeviceStatus(ctx, &database.DeviceStatus{DeviceID: a.Config.DeviceID, MQTTConnection: status}); err != nil {
		logger.Error("mqtt: failed to update connection status: %v", err)
	}
}

// handleInbound decodes a broker command and relays it to the local actor
// named in Target, preserving the request/response routing contract: the
// sender recorded on the envelope is this actor's own name, so replies
// come back through the mailbox for outbound publishing.
func (a *Actor) handleInbound(ctx context.Context, topic string, payload []byte) {
	if topic != a.Config.commandTopic() {
		return
	}

	var env inboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Warn("mqtt: malformed command payload on %s: %v", topic, err)
		return
	}

	decoded, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		logger.Warn("mqtt: failed to decode payload for %s: %v", env.Type, err)
		return
	}

	if err := a.Registry.Send(ctx, message.ActorMQTT, env.Target, env.Type, decoded); err != nil {
		logger.Error("mqtt: failed to deliver %s to %s: %v", env.Type, env.Target, err)
	}
}

func decodePayload(typ message.Type, raw json.RawMessage) (any, error) {
	var v any
	switch typ {
	case message.TypeConfigUploadRequest:
		v = &message.ConfigUploadRequest{}
	case message.TypeStartMonitoringRequest:
		v = &message.StartMonitoringRequest{}
	case message.TypeStopMonitoringRequest:
		v = &message.StopMonitoringRequest{}
	case message.TypeSetValueToPointRequest:
		v = &message.SetValueToPointRequest{}
	case message.TypeDeviceReboot:
		v = &message.DeviceReboot{}
	default:
		return nil, fmt.Errorf("unsupported inbound command type %s", typ)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return derefPayload(v), nil
}

func derefPayload(v any) any {
	switch p := v.(type) {
	case *message.ConfigUploadRequest:
		return *p
	case *message.StartMonitoringRequest:
		return *p
	case *message.StopMonitoringRequest:
		return *p
	case *message.SetValueToPointRequest:
		return *p
	case *message.DeviceReboot:
		return *p
	default:
		return v
	}
}

// handleOutbound publishes an envelope addressed to the MQTT actor onto
// the broker: point batches go to the points topic, everything else
// (command responses, heartbeat status) goes to the response topic.
func (a *Actor) handleOutbound(ctx context.Context, env message.Envelope) {
	if a.cm == nil {
		logger.Warn("mqtt: dropping outbound %s, not connected", env.Type)
		return
	}

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		logger.Error("mqtt: failed to marshal outbound %s: %v", env.Type, err)
		return
	}

	topic := a.Config.responseTopic()
	qos := byte(1)
	if env.Type == message.TypePointPublishRequest {
		topic = a.Config.pointsTopic()
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := a.cm.Publish(pubCtx, &paho.Publish{Topic: topic, Payload: payload, QoS: qos}); err != nil {
		logger.Error("mqtt: publish %s to %s failed: %v", env.Type, topic, err)
		return
	}

	if env.Type == message.TypePointPublishRequest {
		if req, ok := env.Payload.(message.PointPublishRequest); ok {
			ids := make([]int64, 0, len(req.Rows))
			for _, row := range req.Rows {
				ids = append(ids, row.ID)
			}
			if err := a.Registry.Send(ctx, message.ActorMQTT, env.Sender, message.TypePointPublishResponse, message.PointPublishResponse{RowIDs: ids}); err != nil {
				logger.Error("mqtt: failed to ack point publish to %s: %v", env.Sender, err)
			}
		}
	}
}
