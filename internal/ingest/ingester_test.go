package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer answers every subscribe request with an incrementing
// subscription id, simulating a real JSON-RPC node closely enough to
// exercise the ingester's connect/subscribe path.
func fakeServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	nextSubID := uint64(100)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID int `json:"id"`
			}
			json.Unmarshal(data, &req)
			nextSubID++
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": nextSubID}
			body, _ := json.Marshal(resp)
			if conn.WriteMessage(websocket.TextMessage, body) != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + s.URL[len("http"):]
}

func TestIngesterConnectsAndSubscribes(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	ing := New(Config{
		PrimaryURL:     wsURL(srv),
		ConnectTimeout: 2 * time.Second,
		ReconnectDelay: 50 * time.Millisecond,
	}, []Subscription{{Method: "slotSubscribe"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Run(ctx)

	require.Eventually(t, func() bool { return ing.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
}

func TestIngesterFailsOverToBackup(t *testing.T) {
	backup := fakeServer(t)
	defer backup.Close()

	ing := New(Config{
		PrimaryURL:     "ws://127.0.0.1:1/unreachable",
		BackupURLs:     []string{wsURL(backup)},
		ConnectTimeout: 200 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, []Subscription{{Method: "slotSubscribe"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Run(ctx)

	require.Eventually(t, func() bool { return ing.State() == StateConnected }, 3*time.Second, 10*time.Millisecond)
}

func TestSubscriptionIDsNotReusedAcrossConnections(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	ing := New(Config{
		PrimaryURL:     wsURL(srv),
		ConnectTimeout: 500 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, []Subscription{{Method: "slotSubscribe"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Run(ctx)

	require.Eventually(t, func() bool { return ing.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)

	ing.mu.RLock()
	first := ing.subIDs[0]
	ing.mu.RUnlock()

	// Force a reconnect by killing the live connection.
	ing.mu.RLock()
	cur := ing.cur
	ing.mu.RUnlock()
	cur.close()

	require.Eventually(t, func() bool {
		ing.mu.RLock()
		defer ing.mu.RUnlock()
		return ing.state == StateConnected && ing.subIDs[0] != first
	}, 2*time.Second, 10*time.Millisecond)
}
