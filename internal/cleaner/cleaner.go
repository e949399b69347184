// Package cleaner implements the Cleaner actor (C7): it deletes
// already-uploaded staging rows on a fixed interval so the local store
// doesn't grow unbounded. Grounded on
// original_source/apps/bms-iot-app/src/actors/cleaner_actor.py.
package cleaner

import (
	"context"
	"fmt"
	"time"

	"github.com/openbms-io/bms-edge-agent/internal/actor"
	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
	"github.com/openbms-io/bms-edge-agent/internal/database"
	"github.com/openbms-io/bms-edge-agent/internal/mailbox"
	"github.com/openbms-io/bms-edge-agent/internal/message"
	"github.com/openbms-io/bms-edge-agent/internal/telemetry"
)

// cleanInterval matches the Python actor's asyncio.sleep(10).
const cleanInterval = 10 * time.Second

// Actor deletes rows with is_uploaded = 1 (I1: it never touches a row
// that has not been acknowledged uploaded).
type Actor struct {
	Registry *mailbox.Registry
	DB       *database.SQLiteDB
	Metrics  *telemetry.Metrics
}

func (a *Actor) Actor() actor.Actor {
	return actor.Actor{Name: message.ActorCleaner, Run: a.run}
}

func (a *Actor) run(ctx context.Context, handle *actor.Handle) error {
	if _, err := a.Registry.Register(message.ActorCleaner); err != nil {
		logger.Warn("cleaner: %v", err)
	}

	ticker := time.NewTicker(cleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.deleteUploadedPoints(ctx); err != nil {
				return fmt.Errorf("cleaner: %w", err)
			}
			handle.Heartbeat()
		}
	}
}

func (a *Actor) deleteUploadedPoints(ctx context.Context) error {
	deleted, err := a.DB.DeleteUploadedPoints(ctx, time.Now())
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info("cleaner: deleted %d uploaded points from database", deleted)
		if a.Metrics != nil {
			a.Metrics.RecordPointsPurged(int(deleted))
		}
	} else {
		logger.Debug("cleaner: no uploaded points to delete")
	}
	return nil
}
