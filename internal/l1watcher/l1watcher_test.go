package l1watcher

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wkennedy/trollup/internal/types"
)

var upgrader = websocket.Upgrader{}

// newFakeL1Server returns a WS server that, on receiving any message,
// immediately sends one accountNotification carrying root's bytes as the
// account data.
func newFakeL1Server(t *testing.T, root types.Digest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		_, _, err = conn.ReadMessage()
		if err != nil {
			return
		}

		note := map[string]interface{}{
			"params": map[string]interface{}{
				"result": map[string]interface{}{
					"value": map[string]interface{}{
						"data": []string{base64.StdEncoding.EncodeToString(root[:])},
					},
				},
			},
		}
		_ = conn.WriteJSON(note)

		// Keep the connection open briefly so the client has time to read.
		time.Sleep(200 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + srv.URL[len("http"):]
}

func TestWatcherForwardsAnchoredStateRoot(t *testing.T) {
	want := types.Digest{1, 2, 3}
	srv := newFakeL1Server(t, want)
	defer srv.Close()

	w := New(wsURL(srv), types.Digest{9}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case got := <-w.Roots():
		if got != want {
			t.Errorf("got %x, want %x", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for anchored root")
	}
}

func TestWatcherStopIsIdempotentAndReturnsPromptly(t *testing.T) {
	srv := newFakeL1Server(t, types.Digest{1})
	defer srv.Close()

	w := New(wsURL(srv), types.Digest{9}, nil)
	ctx := context.Background()
	w.Start(ctx)
	w.Stop()
	w.Stop() // must not block or panic
}

func TestWatcherStartIsIdempotent(t *testing.T) {
	srv := newFakeL1Server(t, types.Digest{1})
	defer srv.Close()

	w := New(wsURL(srv), types.Digest{9}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	w.Start(ctx) // second call is a no-op, not a second goroutine
	w.Stop()
}
