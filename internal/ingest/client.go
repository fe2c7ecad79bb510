// Package ingest implements the resilient multi-endpoint streaming
// ingester: one active JSON-RPC/WebSocket connection to a primary or
// backup endpoint, a fixed subscription set re-issued on every reconnect,
// and a heartbeat that forces reconnection on missed pongs.
package ingest

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Frame is a raw JSON-RPC response or notification paired with the
// subscription that delivered it (zero for responses to requests rather
// than notifications).
type Frame struct {
	SubscriptionID uint64
	Raw            json.RawMessage
}

// rpcRequest is a JSON-RPC 2.0 request with a monotonically increasing ID.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// client wraps a single live WebSocket connection: request-ID bookkeeping,
// subscription demultiplexing, and frame delivery. A new client is created
// on every (re)connect so that subscription IDs never leak across
// connections, per the ingester's failure semantics.
type client struct {
	conn *websocket.Conn

	mu         sync.Mutex
	nextReqID  int
	pending    map[int]chan uint64 // request id -> channel receiving the subscription id
	frames     chan Frame
	closed     chan struct{}
	closeOnce  sync.Once
}

func dial(url string, connectTimeout time.Duration) (*client, error) {
	d := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := d.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &client{
		conn:    conn,
		pending: make(map[int]chan uint64),
		frames:  make(chan Frame, 4096),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *client) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(data)
	}
}

func (c *client) handleMessage(data []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Warn().Err(err).Msg("ingest: unparseable frame skipped")
		return
	}

	// A response to a subscribe request: result is the new subscription id.
	if resp.ID != 0 && resp.Result != nil {
		var subID uint64
		if err := json.Unmarshal(resp.Result, &subID); err == nil {
			c.mu.Lock()
			if ch, ok := c.pending[resp.ID]; ok {
				delete(c.pending, resp.ID)
				ch <- subID
				close(ch)
			}
			c.mu.Unlock()
			return
		}
	}

	// A notification carrying a subscription id and payload.
	if resp.Params.Subscription != 0 || resp.Method != "" {
		select {
		case c.frames <- Frame{SubscriptionID: resp.Params.Subscription, Raw: resp.Params.Result}:
		default:
			log.Warn().Msg("ingest: frame channel full, dropping oldest")
			select {
			case <-c.frames:
			default:
			}
			c.frames <- Frame{SubscriptionID: resp.Params.Subscription, Raw: resp.Params.Result}
		}
	}
}

// subscribe issues a JSON-RPC subscribe request and blocks until the
// subscription id response arrives or the timeout elapses.
func (c *client) subscribe(method string, params []interface{}, timeout time.Duration) (uint64, error) {
	c.mu.Lock()
	id := c.nextID()
	ch := make(chan uint64, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal subscribe request: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return 0, fmt.Errorf("write subscribe request: %w", err)
	}

	select {
	case subID := <-ch:
		return subID, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return 0, fmt.Errorf("subscribe %s: timed out waiting for subscription id", method)
	case <-c.closed:
		return 0, fmt.Errorf("subscribe %s: connection closed", method)
	}
}

func (c *client) nextID() int {
	c.nextReqID++
	return c.nextReqID
}

func (c *client) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
