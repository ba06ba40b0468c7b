package host

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// wireRequest is the JSON envelope sent to the external model/tool
// server: a correlation id plus one of "exec" or "tool_call" and its
// payload, so responses can be matched back to the waiting caller
// regardless of arrival order.
type wireRequest struct {
	ID   string          `json:"id"`
	Kind string          `json:"kind"`
	Exec *ExecRequest    `json:"exec,omitempty"`
	Tool *ToolCallRequest `json:"tool_call,omitempty"`
}

type wireResponse struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

type remoteError string

func (e remoteError) Error() string { return string(e) }

// WebSocketHost proxies Exec/ToolCall to an external model/tool server
// over a single persistent websocket connection, matching requests to
// responses by a uuid correlation id (spec §6: a host implementation
// is free to reach an external collaborator; this is the donor
// dependency set's natural one given its gorilla/websocket and
// google/uuid imports).
//
// A background read-pump goroutine, managed by an errgroup so Close
// can wait for clean shutdown, demultiplexes incoming responses to
// the channel each in-flight call is waiting on.
type WebSocketHost struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan wireResponse

	group  *errgroup.Group
	cancel context.CancelFunc
}

// DialWebSocketHost opens a websocket connection to url and starts its
// read pump.
func DialWebSocketHost(url string) (*WebSocketHost, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	h := &WebSocketHost{
		conn:    conn,
		pending: make(map[string]chan wireResponse),
		group:   g,
		cancel:  cancel,
	}
	g.Go(func() error { return h.readPump(ctx) })
	return h, nil
}

func (h *WebSocketHost) readPump(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			return err
		}
		var resp wireResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		h.mu.Lock()
		ch, ok := h.pending[resp.ID]
		if ok {
			delete(h.pending, resp.ID)
		}
		h.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (h *WebSocketHost) roundTrip(ctx context.Context, req wireRequest) (string, error) {
	req.ID = uuid.NewString()
	ch := make(chan wireResponse, 1)
	h.mu.Lock()
	h.pending[req.ID] = ch
	h.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return "", remoteError(resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(30 * time.Second):
		return "", remoteError("timed out waiting for websocket host response")
	}
}

func (h *WebSocketHost) Exec(ctx context.Context, req ExecRequest) (string, error) {
	return h.roundTrip(ctx, wireRequest{Kind: "exec", Exec: &req})
}

func (h *WebSocketHost) ToolCall(ctx context.Context, req ToolCallRequest) (string, error) {
	return h.roundTrip(ctx, wireRequest{Kind: "tool_call", Tool: &req})
}

// Close stops the read pump and waits for it to return, then closes
// the underlying connection.
func (h *WebSocketHost) Close() error {
	h.cancel()
	_ = h.conn.Close()
	return h.group.Wait()
}
