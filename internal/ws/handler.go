package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/cache"
	"github.com/Alcatamy/Mercato/internal/types"
)

// Handler streams cache snapshots to the client: the current one right
// away, then one per change. Clients that fall behind are disconnected.
func Handler(c *cache.Cache, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan cache.Snapshot, 8)
		clientID := uuid.NewString()

		select {
		case c.Inbox() <- cache.Join{ClientID: clientID, Outbox: out}:
		case <-r.Context().Done():
			return
		}
		defer func() {
			select {
			case c.Inbox() <- cache.Leave{ClientID: clientID}:
			case <-time.After(time.Second):
			}
		}()
		logger.Debug("ws client joined", zap.String("client_id", clientID))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			for snap := range out {
				msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, Changed: snap.Changed, State: &snap.State}
				if err := write(writeCtx, conn, msg); err != nil {
					return
				}
			}
			if code, reason, ok := closeFor(writeCtx, c.Done()); ok {
				conn.Close(code, reason)
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			switch cm.Type {
			case "Ping":
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Pong"})
			default:
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
			}
		}
	}
}

// closeFor picks the close frame once the outbox is closed. Nothing is sent
// when the handler itself is leaving.
func closeFor(writeCtx context.Context, cacheDone <-chan struct{}) (websocket.StatusCode, string, bool) {
	if writeCtx.Err() != nil {
		return 0, "", false
	}
	select {
	case <-cacheDone:
		return websocket.StatusGoingAway, "server shutting down", true
	default:
		return websocket.StatusTryAgainLater, "fell behind", true
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
