package companion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/signbeam/signbeam_player/internal/events"
)

// fakeCompanion answers the schedule subscription with a status push and
// then holds the connection open.
func fakeCompanion(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(ws.StatusNormalClosure, "done")

		ctx := r.Context()

		var subscribe map[string]string
		if err := wsjson.Read(ctx, conn, &subscribe); err != nil {
			return
		}
		if subscribe["event"] != "start_schedule_check" {
			t.Errorf("unexpected subscription %v", subscribe)
			return
		}

		operating := true
		_ = wsjson.Write(ctx, conn, map[string]any{
			"event":            "schedule_status",
			"operation_status": operating,
		})
		_ = wsjson.Write(ctx, conn, map[string]any{
			"event": "playlist_updated",
		})

		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestListener_RepublishesPushes(t *testing.T) {
	t.Parallel()

	bus := events.NewBus()
	statusCh := bus.Subscribe(events.EventScheduleStatus)
	defer bus.Unsubscribe(events.EventScheduleStatus, statusCh)
	updateCh := bus.Subscribe(events.EventPlaylistUpdated)
	defer bus.Unsubscribe(events.EventPlaylistUpdated, updateCh)

	listener := NewListener(fakeCompanion(t), bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	select {
	case payload := <-statusCh:
		operating, ok := payload["operating"].(bool)
		if !ok || !operating {
			t.Fatalf("status payload %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for schedule status event")
	}

	select {
	case <-updateCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playlist update event")
	}
}
