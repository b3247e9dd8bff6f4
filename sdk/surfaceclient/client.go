// Package surfaceclient implements the embedded-content side of the
// surface protocol: it attaches to a host, negotiates render data and
// sends correlated actions.
package surfaceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mcpui/uibridge/sdk/wire"
)

// ErrClosed indicates the connection ended while a request was pending.
var ErrClosed = errors.New("surface connection closed")

// Options configures a Client.
type Options struct {
	// OnRenderData consumes the first render-data delivery. Duplicate
	// deliveries after the first are ignored.
	OnRenderData func(renderData any)
	// OnAck observes advisory acknowledgments for in-flight message IDs.
	OnAck func(messageID string)
	// OnMessage observes every other inbound message (host pushes outside
	// the correlation flow).
	OnMessage func(m wire.Message)
}

// Client is one surface's connection to its host.
type Client struct {
	conn *websocket.Conn
	opts Options

	mu         sync.Mutex
	pending    map[string]chan json.RawMessage
	gotRender  bool
	closed     bool
	writeMu    sync.Mutex
	cancelRead context.CancelFunc
}

// Dial attaches to the host's surface endpoint and starts the dispatch
// loop.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:       conn,
		opts:       opts,
		pending:    map[string]chan json.RawMessage{},
		cancelRead: cancel,
	}
	go c.readLoop(readCtx)
	return c, nil
}

// Close tears the connection down. Pending requests fail with ErrClosed.
func (c *Client) Close() {
	c.cancelRead()
	_ = c.conn.Close(websocket.StatusNormalClosure, "closing")
}

// Ready emits the passive-lifecycle ready signal. The host may answer with
// render data at any later time.
func (c *Client) Ready(ctx context.Context) error {
	return c.send(ctx, wire.NewReady())
}

// Notify sends an action without a message ID: fire and forget, no
// acknowledgment and no response.
func (c *Client) Notify(ctx context.Context, action wire.Action) error {
	m, err := wire.NewActionMessage(action, "")
	if err != nil {
		return err
	}
	return c.send(ctx, m)
}

// SendAction sends a correlated action and waits for the host's response.
// The protocol has no deadline of its own; bound the wait with ctx.
func (c *Client) SendAction(ctx context.Context, action wire.Action) (*wire.ResponsePayload, error) {
	id := uuid.NewString()
	m, err := wire.NewActionMessage(action, id)
	if err != nil {
		return nil, err
	}
	raw, err := c.roundTrip(ctx, id, m)
	if err != nil {
		return nil, err
	}
	var resp wire.ResponsePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return &resp, nil
}

// RequestRenderData actively asks the host for render data.
func (c *Client) RequestRenderData(ctx context.Context) (any, error) {
	id := uuid.NewString()
	raw, err := c.roundTrip(ctx, id, wire.NewRequestRenderData(id))
	if err != nil {
		return nil, err
	}
	var resp struct {
		RenderData any `json:"renderData"`
		Error      any `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode render data: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("host rejected render data request: %v", resp.Error)
	}
	return resp.RenderData, nil
}

// NotifySizeChange reports preferred dimensions. Advisory; never answered.
func (c *Client) NotifySizeChange(ctx context.Context, width, height *float64) error {
	m, err := wire.NewSizeChange(width, height)
	if err != nil {
		return err
	}
	return c.send(ctx, m)
}

// roundTrip registers the message ID, sends, and waits for the correlated
// response payload. An abandoned wait just forgets its bookkeeping entry;
// the host is not told.
func (c *Client) roundTrip(ctx context.Context, id string, m wire.Message) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	if err := c.send(ctx, m); err != nil {
		c.unregister(id)
		return nil, err
	}
	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return raw, nil
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	}
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, m wire.Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		m, err := wire.Parse(data)
		if err != nil {
			continue
		}
		switch m.Type {
		case wire.TypeRenderData:
			c.applyRenderData(m)
		case wire.TypeMessageReceived:
			if c.opts.OnAck != nil && m.MessageID != "" {
				c.opts.OnAck(m.MessageID)
			}
		case wire.TypeMessageResponse:
			c.mu.Lock()
			ch := c.pending[m.MessageID]
			delete(c.pending, m.MessageID)
			c.mu.Unlock()
			if ch != nil {
				ch <- m.Payload
			}
		default:
			if c.opts.OnMessage != nil {
				c.opts.OnMessage(m)
			}
		}
	}
}

// applyRenderData consumes render data idempotently: the first delivery
// wins and later duplicates are dropped.
func (c *Client) applyRenderData(m wire.Message) {
	c.mu.Lock()
	if c.gotRender {
		c.mu.Unlock()
		return
	}
	c.gotRender = true
	c.mu.Unlock()
	if c.opts.OnRenderData == nil {
		return
	}
	var p wire.RenderDataPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return
	}
	c.opts.OnRenderData(p.RenderData)
}
