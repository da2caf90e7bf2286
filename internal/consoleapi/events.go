package consoleapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/linnemanlabs/boardroom/internal/orchestrator"
)

const (
	eventBuffer  = 16
	writeTimeout = 10 * time.Second
)

// Event is the envelope for messages on the WebSocket stream.
type Event struct {
	Type    string                `json:"type"`
	Payload orchestrator.Snapshot `json:"payload"`
}

// handleEvents streams a snapshot on connect and after every change until
// the client goes away.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // console is served from the same origin or a dev proxy
	})
	if err != nil {
		a.logger.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	// Reads are discarded; CloseRead cancels ctx when the peer disconnects.
	ctx := ws.CloseRead(r.Context())

	updates, cancel := a.orch.Subscribe(eventBuffer)
	defer cancel()

	if err := a.send(ctx, ws, a.orch.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := a.send(ctx, ws, snap); err != nil {
				a.logger.Info(ctx, "websocket write failed", "error", err)
				return
			}
		}
	}
}

func (a *API) send(ctx context.Context, ws *websocket.Conn, snap orchestrator.Snapshot) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, ws, Event{Type: "snapshot", Payload: snap})
}
