package notify

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// eventServer accepts one WebSocket client and pushes each payload to it.
func eventServer(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		for _, p := range payloads {
			if err := conn.Write(ctx, websocket.MessageText, []byte(p)); err != nil {
				return
			}
		}
		// Hold the connection open so the notifier doesn't reconnect
		// mid-test.
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNotifier_DeliversEvents(t *testing.T) {
	srv := eventServer(t,
		`{"type":"update","collection":"routines"}`,
		`{"type":"delete","collection":"routines"}`,
	)

	var got atomic.Int32
	n := New(&Config{
		URL:      wsURL(srv),
		OnChange: func() { got.Add(1) },
		Logger:   log.New(io.Discard, "", 0),
	})

	n.Start(context.Background())
	defer n.Stop()

	waitFor(t, func() bool { return got.Load() == 2 }, "OnChange was not called for every event")
}

func TestNotifier_SkipsMalformedPayloads(t *testing.T) {
	srv := eventServer(t,
		`not json`,
		`{"type":"update"}`,
	)

	var got atomic.Int32
	n := New(&Config{
		URL:      wsURL(srv),
		OnChange: func() { got.Add(1) },
		Logger:   log.New(io.Discard, "", 0),
	})

	n.Start(context.Background())
	defer n.Stop()

	waitFor(t, func() bool { return got.Load() == 1 }, "well-formed event after garbage was not delivered")
	if got.Load() != 1 {
		t.Errorf("OnChange called %d times, want 1", got.Load())
	}
}

func TestNotifier_StartIdempotent(t *testing.T) {
	srv := eventServer(t)

	n := New(&Config{
		URL:      wsURL(srv),
		OnChange: func() {},
		Logger:   log.New(io.Discard, "", 0),
	})

	ctx := context.Background()
	n.Start(ctx)
	n.Start(ctx)
	if !n.Running() {
		t.Fatal("Running() = false after Start")
	}

	n.Stop()
	if n.Running() {
		t.Fatal("Running() = true after Stop")
	}
	n.Stop()
}

func TestNotifier_ReconnectsAfterDrop(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Drop immediately to force a reconnect.
		conn.Close(websocket.StatusNormalClosure, "drop")
	}))
	defer srv.Close()

	n := New(&Config{
		URL:           wsURL(srv),
		OnChange:      func() {},
		ReconnectBase: 5 * time.Millisecond,
		ReconnectMax:  20 * time.Millisecond,
		Logger:        log.New(io.Discard, "", 0),
	})

	n.Start(context.Background())
	defer n.Stop()

	waitFor(t, func() bool { return connects.Load() >= 2 }, "notifier did not reconnect after the drop")
}
