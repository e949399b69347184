// Package uploader implements the Uploader actor (C6): it drains staged
// BACnet readings to the MQTT actor at-least-once, and forwards
// deployment config uploads to the control-plane REST endpoint over
// HTTP. Grounded on
// original_source/apps/bms-iot-app/src/actors/uploader_actor.py and
// .../controllers/uploader/upload.py.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/common/retry"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// batchSize caps how many unacked rows are sent to the broker in one
// publish cycle, oldest first.
const batchSize = 100

// drainInterval is how often the actor attempts to drain the staging
// store, mirroring the Python loop's asyncio.sleep(2).
const drainInterval = 2 * time.Second

// Actor implements §4.7's at-least-once upload: rows are only marked
// uploaded after POINT_PUBLISH_RESPONSE confirms the broker accepted
// them.
type Actor struct {
	Registry   *mailbox.Registry
	DB         *database.SQLiteDB
	Metrics    *telemetry.Metrics
	HTTPClient *http.Client
}

func (a *Actor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorUploader, Run: a.run}
}

func (a *Actor) run(ctx context.Context, handle *actor.Handle) error {
	mb, err := a.Registry.Register(message.ActorUploader)
	if err != nil {
		logger.Warn("uploader: %v", err)
	}
	if mb == nil {
		return fmt.Errorf("uploader: mailbox unavailable")
	}

	if a.HTTPClient == nil {
		a.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.publishPoints(ctx)
			handle.Heartbeat()
		default:
		}

		env, ok := mb.TryRecv()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		a.handleMessage(ctx, env)
		handle.Heartbeat()
	}
}

func (a *Actor) handleMessage(ctx context.Context, env message.Envelope) {
	switch env.Type {
	case message.TypeConfigUploadResponse:
		resp, ok := env.Payload.(message.ConfigUploadResponse)
		if !ok {
			logger.Warn("uploader: CONFIG_UPLOAD_RESPONSE with unexpected payload type %T", env.Payload)
			return
		}
		a.forwardConfigUpload(ctx, resp)
	case message.TypePointPublishResponse:
		resp, ok := env.Payload.(message.PointPublishResponse)
		if !ok {
			logger.Warn("uploader: POINT_PUBLISH_RESPONSE with unexpected payload type %T", env.Payload)
			return
		}
		a.onPointPublishResponse(ctx, resp)
	case message.TypeImmediateUploadTrigger:
		trigger, ok := env.Payload.(message.ImmediateUploadTrigger)
		if !ok {
			return
		}
		logger.Info("uploader: immediate upload triggered: %s", trigger.Reason)
		a.publishPoints(ctx)
	default:
		logger.Warn("uploader: unhandled message type %s", env.Type)
	}
}

// publishPoints drains up to batchSize unacked rows, oldest first, and
// forwards them to the MQTT actor for the physical publish.
func (a *Actor) publishPoints(ctx context.Context) {
	rows, err := a.DB.GetPointsToUpload(ctx, batchSize)
	if err != nil {
		logger.Error("uploader: failed to fetch points to upload: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	msgRows := make([]message.StagingRow, 0, len(rows))
	for _, r := range rows {
		msgRows = append(msgRows, message.StagingRow{
			ID:                 r.ID,
			ControllerIP:       r.ControllerIP,
			UDPPort:            r.UDPPort,
			ControllerDeviceID: r.ControllerDeviceID,
			ControllerID:       r.ControllerID,
			PointID:            r.PointID,
			IoTDevicePointID:   r.IoTDevicePointID,
			ObjectType:         r.ObjectType,
			Units:              r.Units,
			PresentValue:       r.PresentValue,
			CreatedAtMillis:    r.CreatedAtMillis,
			StatusFlags:        r.StatusFlags,
			EventState:         r.EventState,
			OutOfService:       r.OutOfService,
			Reliability:        r.Reliability,
		})
	}

	if err := a.Registry.Send(ctx, message.ActorUploader, message.ActorMQTT, message.TypePointPublishRequest, message.PointPublishRequest{Rows: msgRows}); err != nil {
		logger.Error("uploader: failed to forward points to mqtt: %v", err)
	}
}

func (a *Actor) onPointPublishResponse(ctx context.Context, resp message.PointPublishResponse) {
	if len(resp.RowIDs) == 0 {
		return
	}
	if err := a.DB.MarkUploaded(ctx, resp.RowIDs); err != nil {
		logger.Error("uploader: failed to mark %d rows uploaded: %v", len(resp.RowIDs), err)
		return
	}
	if a.Metrics != nil {
		a.Metrics.RecordPointsUploaded(len(resp.RowIDs))
	}
	logger.Info("uploader: marked %d rows uploaded", len(resp.RowIDs))
}

// forwardConfigUpload POSTs the outcome of a configuration upload (command
// id, success flag and message) to the control plane, refusing to even
// attempt the call once the JWT has expired. The controller inventory
// itself is not part of the request body.
func (a *Actor) forwardConfigUpload(ctx context.Context, resp message.ConfigUploadResponse) {
	if resp.UploadURL == "" {
		return
	}

	if expired, err := jwtExpired(resp.JWT); err != nil {
		logger.Warn("uploader: could not parse upload JWT, skipping config upload: %v", err)
		return
	} else if expired {
		logger.Warn("uploader: upload JWT expired, skipping config upload to %s", resp.UploadURL)
		return
	}

	body, err := json.Marshal(map[string]any{
		"commandId": resp.CommandID,
		"success":   resp.Success,
		"message":   resp.Message,
	})
	if err != nil {
		logger.Error("uploader: failed to marshal config upload body: %v", err)
		return
	}

	cfg := retry.DefaultConfig()
	cfg.RetryIf = isConnectionError

	result := retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, resp.UploadURL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+resp.JWT)

		httpResp, err := a.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 500 {
			return retry.Permanent{Err: fmt.Errorf("config upload: server error %d", httpResp.StatusCode)}
		}
		if httpResp.StatusCode >= 300 {
			// No non-2xx response is retried — the server answered, so
			// the next CONFIG_UPLOAD cycle is the retry unit.
			return retry.Permanent{Err: fmt.Errorf("config upload: status %d", httpResp.StatusCode)}
		}
		return nil
	}, cfg)

	if !result.Success {
		logger.Error("uploader: config upload to %s failed after %d attempts: %v", resp.UploadURL, result.Attempts, result.LastError)
	}
}

// isConnectionError limits retries to transport-level failures — a
// non-2xx response is never retried (upload.py never retries the REST
// call either; it only logs and moves on).
func isConnectionError(err error) bool {
	if retry.IsPermanent(err) {
		return false
	}
	return retry.IsRetryable(err)
}

func jwtExpired(token string) (bool, error) {
	if token == "" {
		return true, nil
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return false, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, err
	}
	if exp == nil {
		return false, nil
	}
	return time.Now().After(exp.Time), nil
}
