package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/config"
	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

const pingInterval = 30 * time.Second

// EventsFeedHandler upgrades GET /ws/events and streams processed-event
// notifications to the client. The feed is push-only; the read side is
// used solely to observe the client closing. A client that cannot keep up
// misses notifications rather than backpressuring the engine, which is
// acceptable for a dashboard feed.
func EventsFeedHandler(broadcaster *application.EventBroadcaster, cfgProvider config.Provider, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Dashboard origins vary by deployment; auth happens via the API
			// key middleware before the upgrade.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn(r.Context(), "WebSocket upgrade failed for events feed", "error", err.Error())
			return
		}

		writeTimeout := time.Duration(cfgProvider.Get().App.WebsocketWriteTimeoutSecs) * time.Second
		if writeTimeout <= 0 {
			writeTimeout = 10 * time.Second
		}

		// CloseRead discards inbound frames and cancels the context when the
		// client goes away.
		ctx := conn.CloseRead(r.Context())

		notifications, cancel := broadcaster.Subscribe()
		defer cancel()

		logger.Info(ctx, "Events feed client connected", "remote_addr", r.RemoteAddr)
		defer logger.Info(context.Background(), "Events feed client disconnected", "remote_addr", r.RemoteAddr)

		pings := time.NewTicker(pingInterval)
		defer pings.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "client disconnected")
				return
			case <-pings.C:
				pingCtx, cancelPing := context.WithTimeout(ctx, writeTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					conn.Close(websocket.StatusGoingAway, "ping failed")
					return
				}
			case notification, ok := <-notifications:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "feed closed")
					return
				}
				if err := writeNotification(ctx, conn, writeTimeout, notification); err != nil {
					if !errors.Is(err, context.Canceled) {
						logger.Warn(ctx, "Failed to write events feed notification", "error", err.Error())
					}
					conn.Close(websocket.StatusGoingAway, "write failed")
					return
				}
			}
		}
	}
}

func writeNotification(ctx context.Context, conn *websocket.Conn, timeout time.Duration, notification application.EventNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
