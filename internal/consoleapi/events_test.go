package consoleapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/linnemanlabs/boardroom/internal/orchestrator"
)

func TestEvents_StreamsSnapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	var ev Event
	if err := wsjson.Read(ctx, ws, &ev); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if ev.Type != "snapshot" || ev.Payload.State != orchestrator.StateIdle {
		t.Fatalf("initial event = %+v", ev)
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, srv.URL+"/api/v1/view", strings.NewReader(`{"view":"history"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT view: %v", err)
	}
	_ = resp.Body.Close()

	if err := wsjson.Read(ctx, ws, &ev); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if ev.Payload.View != orchestrator.ViewHistory {
		t.Errorf("view = %s, want history", ev.Payload.View)
	}
}
