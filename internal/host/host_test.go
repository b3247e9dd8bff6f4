package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/mcpui/uibridge/internal/renderstore"
	"github.com/mcpui/uibridge/sdk/uires"
	"github.com/mcpui/uibridge/sdk/wire"
)

func newTestServer(t *testing.T, opts Options) (*Registry, *httptest.Server) {
	t.Helper()
	reg := NewRegistry(opts)
	r := chi.NewRouter()
	r.HandleFunc("/ui/surfaces/{surface_id}/ws", reg.WSHandler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(reg.CloseAll)
	return reg, srv
}

func dialSurface(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ui/surfaces/" + id + "/ws"
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, m wire.Message) {
	t.Helper()
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := wire.Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

func toolMsg(t *testing.T, messageID string) wire.Message {
	t.Helper()
	m, err := wire.NewActionMessage(wire.ToolCallPayload{ToolName: "refresh", Params: map[string]any{}}, messageID)
	if err != nil {
		t.Fatalf("new action: %v", err)
	}
	return m
}

func TestCorrelationAckThenResponse(t *testing.T) {
	handler := func(ctx context.Context, s *Surface, action wire.Action) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return map[string]any{"ok": true}, nil
	}
	reg, srv := newTestServer(t, Options{Actions: handler})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, toolMsg(t, "123"))

	ack := readMsg(t, conn)
	if ack.Type != wire.TypeMessageReceived || ack.MessageID != "123" {
		t.Fatalf("expected received for 123, got %+v", ack)
	}
	resp := readMsg(t, conn)
	if resp.Type != wire.TypeMessageResponse || resp.MessageID != "123" {
		t.Fatalf("expected response for 123, got %+v", resp)
	}
	var p wire.ResponsePayload
	if err := json.Unmarshal(resp.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Response == nil || p.Error != nil {
		t.Fatalf("expected response without error, got %+v", p)
	}
}

func TestHandlerErrorBecomesErrorResponse(t *testing.T) {
	handler := func(ctx context.Context, s *Surface, action wire.Action) (any, error) {
		return nil, errors.New("boom")
	}
	reg, srv := newTestServer(t, Options{Actions: handler})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, toolMsg(t, "e1"))

	ack := readMsg(t, conn)
	if ack.Type != wire.TypeMessageReceived {
		t.Fatalf("expected received, got %+v", ack)
	}
	resp := readMsg(t, conn)
	if resp.Type != wire.TypeMessageResponse || resp.MessageID != "e1" {
		t.Fatalf("expected response for e1, got %+v", resp)
	}
	var p wire.ResponsePayload
	if err := json.Unmarshal(resp.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Error == nil || p.Response != nil {
		t.Fatalf("expected error without response, got %+v", p)
	}
}

func TestHandlerPanicKeepsDispatcherAlive(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, s *Surface, action wire.Action) (any, error) {
		calls++
		if calls == 1 {
			panic("first call dies")
		}
		return "fine", nil
	}
	reg, srv := newTestServer(t, Options{Actions: handler})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, toolMsg(t, "p1"))
	readMsg(t, conn) // received
	resp := readMsg(t, conn)
	var p wire.ResponsePayload
	_ = json.Unmarshal(resp.Payload, &p)
	if p.Error == nil {
		t.Fatalf("expected error from panicking handler, got %+v", p)
	}

	sendMsg(t, conn, toolMsg(t, "p2"))
	readMsg(t, conn) // received
	resp = readMsg(t, conn)
	if resp.MessageID != "p2" {
		t.Fatalf("dispatcher did not survive panic: %+v", resp)
	}
}

func TestNoHandlerMeansNoAckNoResponse(t *testing.T) {
	store := renderstore.NewMemory()
	reg, srv := newTestServer(t, Options{RenderData: store})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Put(context.Background(), s.ID, "later"); err != nil {
		t.Fatalf("put: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	// With no handler the action must produce neither ack nor response, so
	// after the ready exchange the render-data frame is the first inbound
	// message on an ordered connection.
	sendMsg(t, conn, toolMsg(t, "ignored"))
	sendMsg(t, conn, wire.NewReady())

	first := readMsg(t, conn)
	if first.Type != wire.TypeRenderData {
		t.Fatalf("expected render-data first, got %+v", first)
	}
}

func TestDuplicateMessageIDGetsOneResponse(t *testing.T) {
	handler := func(ctx context.Context, s *Surface, action wire.Action) (any, error) {
		return "done", nil
	}
	reg, srv := newTestServer(t, Options{Actions: handler})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, toolMsg(t, "dup"))
	sendMsg(t, conn, toolMsg(t, "dup"))
	sendMsg(t, conn, toolMsg(t, "next"))

	var got []string
	for i := 0; i < 4; i++ {
		m := readMsg(t, conn)
		got = append(got, fmt.Sprintf("%s:%s", m.Type, m.MessageID))
	}
	want := []string{
		"ui-message-received:dup",
		"ui-message-response:dup",
		"ui-message-received:next",
		"ui-message-response:next",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: got %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestSurfaceIsolation(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	handler := func(ctx context.Context, s *Surface, action wire.Action) (any, error) {
		mu.Lock()
		seen[s.ID]++
		mu.Unlock()
		return "ok", nil
	}
	reg, srv := newTestServer(t, Options{Actions: handler})
	sa, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>a</p>"}})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	sb, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>b</p>"}})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	connA := dialSurface(t, srv, sa.ID)
	connB := dialSurface(t, srv, sb.ID)

	// Same correlation ID on both surfaces; responses must stay per-surface.
	sendMsg(t, connB, toolMsg(t, "123"))
	readMsg(t, connB) // received
	respB := readMsg(t, connB)
	if respB.Type != wire.TypeMessageResponse || respB.MessageID != "123" {
		t.Fatalf("surface B response: %+v", respB)
	}

	// Surface A saw nothing.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, _, err := connA.Read(ctx); err == nil {
		t.Fatal("surface A received a message meant for surface B")
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[sa.ID] != 0 || seen[sb.ID] != 1 {
		t.Fatalf("handler calls per surface: %v", seen)
	}
}

func TestUnknownSurfaceRefused(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ui/surfaces/nope/ws"
	_, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to unknown surface to fail")
	}
}

func TestOriginScoping(t *testing.T) {
	reg, srv := newTestServer(t, Options{})
	s, err := reg.Create(SurfaceSpec{Content: uires.ExternalURL{IframeURL: "https://widgets.example/panel"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Origin() != "https://widgets.example" {
		t.Fatalf("origin: %q", s.Origin())
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ui/surfaces/" + s.ID + "/ws"

	bad := http.Header{}
	bad.Set("Origin", "https://evil.example")
	if _, _, err := websocket.Dial(context.Background(), wsURL, &websocket.DialOptions{HTTPHeader: bad}); err == nil {
		t.Fatal("expected origin mismatch to be refused")
	}

	good := http.Header{}
	good.Set("Origin", "https://widgets.example")
	conn, _, err := websocket.Dial(context.Background(), wsURL, &websocket.DialOptions{HTTPHeader: good})
	if err != nil {
		t.Fatalf("matching origin refused: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func TestInlineSurfaceHasNoOriginRestriction(t *testing.T) {
	reg, srv := newTestServer(t, Options{})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ui/surfaces/" + s.ID + "/ws"
	h := http.Header{}
	h.Set("Origin", "https://anything.example")
	conn, _, err := websocket.Dial(context.Background(), wsURL, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		t.Fatalf("inline surface refused origin: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func TestPassiveLifecycleReady(t *testing.T) {
	store := renderstore.NewMemory()
	reg, srv := newTestServer(t, Options{RenderData: store})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}, WaitForRenderData: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !wire.WantsRenderData(s.Address) {
		t.Fatalf("address missing opt-in flag: %q", s.Address)
	}
	if err := store.Put(context.Background(), s.ID, map[string]any{"user": "ada"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, wire.NewReady())
	m := readMsg(t, conn)
	if m.Type != wire.TypeRenderData {
		t.Fatalf("expected render-data, got %+v", m)
	}
	var p wire.RenderDataPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	data, ok := p.RenderData.(map[string]any)
	if !ok || data["user"] != "ada" {
		t.Fatalf("render data: %+v", p.RenderData)
	}
}

func TestActiveLifecycleRequest(t *testing.T) {
	store := renderstore.NewMemory()
	reg, srv := newTestServer(t, Options{RenderData: store})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Put(context.Background(), s.ID, "ready to go"); err != nil {
		t.Fatalf("put: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, wire.NewRequestRenderData("rd1"))
	m := readMsg(t, conn)
	if m.Type != wire.TypeMessageResponse || m.MessageID != "rd1" {
		t.Fatalf("expected correlated response, got %+v", m)
	}
	var p wire.RenderDataPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.RenderData != "ready to go" {
		t.Fatalf("render data: %+v", p.RenderData)
	}
}

func TestActiveLifecycleRequestWithoutData(t *testing.T) {
	reg, srv := newTestServer(t, Options{})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	sendMsg(t, conn, wire.NewRequestRenderData("rd2"))
	m := readMsg(t, conn)
	if m.Type != wire.TypeMessageResponse || m.MessageID != "rd2" {
		t.Fatalf("expected correlated response, got %+v", m)
	}
	var p wire.ResponsePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Error == nil {
		t.Fatalf("expected error payload, got %+v", p)
	}
}

func TestDuplicateRenderDataRequestGetsOneResponse(t *testing.T) {
	store := renderstore.NewMemory()
	reg, srv := newTestServer(t, Options{RenderData: store})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Put(context.Background(), s.ID, "once"); err != nil {
		t.Fatalf("put: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	// A retried request reuses its ID; only the first gets a response, so the
	// next frame after it belongs to the fresh ID.
	sendMsg(t, conn, wire.NewRequestRenderData("same"))
	sendMsg(t, conn, wire.NewRequestRenderData("same"))
	sendMsg(t, conn, wire.NewRequestRenderData("fresh"))

	first := readMsg(t, conn)
	if first.Type != wire.TypeMessageResponse || first.MessageID != "same" {
		t.Fatalf("expected response for same, got %+v", first)
	}
	second := readMsg(t, conn)
	if second.Type != wire.TypeMessageResponse || second.MessageID != "fresh" {
		t.Fatalf("expected response for fresh, got %+v", second)
	}
}

func TestInlineAddressIsDialable(t *testing.T) {
	reg, srv := newTestServer(t, Options{})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}, WaitForRenderData: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// The advertised address is the websocket endpoint itself; a client can
	// dial it verbatim, flag included.
	if want := "/ui/surfaces/" + s.ID + "/ws?" + wire.WaitForRenderDataParam + "=true"; s.Address != want {
		t.Fatalf("address: %q != %q", s.Address, want)
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + s.Address
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial advertised address: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

type recordingPresenter struct {
	mu      sync.Mutex
	resizes []string
}

func (p *recordingPresenter) Resize(surfaceID string, width, height *float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmtAxis := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.0f", *v)
	}
	p.resizes = append(p.resizes, fmtAxis(width)+"x"+fmtAxis(height))
}

func TestSizeChangeResizePolicy(t *testing.T) {
	pres := &recordingPresenter{}
	reg, srv := newTestServer(t, Options{Presenter: pres, Resize: ResizeWidth})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	w, h := 640.0, 480.0
	m, err := wire.NewSizeChange(&w, &h)
	if err != nil {
		t.Fatalf("size change: %v", err)
	}
	sendMsg(t, conn, m)

	deadline := time.Now().Add(2 * time.Second)
	for {
		pres.mu.Lock()
		n := len(pres.resizes)
		pres.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	pres.mu.Lock()
	defer pres.mu.Unlock()
	if len(pres.resizes) != 1 || pres.resizes[0] != "640x-" {
		t.Fatalf("resizes: %v", pres.resizes)
	}
}

func TestUnknownTypeDropped(t *testing.T) {
	handler := func(ctx context.Context, s *Surface, action wire.Action) (any, error) {
		return "ok", nil
	}
	reg, srv := newTestServer(t, Options{Actions: handler})
	s, err := reg.Create(SurfaceSpec{Content: uires.RawHTML{HTMLString: "<p>hi</p>"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn := dialSurface(t, srv, s.ID)

	// Unknown type and a forged host-direction frame are both dropped; a
	// valid action afterwards is answered first.
	_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"made-up","messageId":"x"}`))
	_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"ui-message-response","messageId":"x"}`))
	sendMsg(t, conn, toolMsg(t, "after"))

	m := readMsg(t, conn)
	if m.Type != wire.TypeMessageReceived || m.MessageID != "after" {
		t.Fatalf("expected ack for the valid action, got %+v", m)
	}
}

func TestSandboxAttributes(t *testing.T) {
	inline := SandboxAttributes(uires.RawHTML{HTMLString: "<p></p>"})
	if len(inline) != 1 || inline[0] != "allow-scripts" {
		t.Fatalf("inline sandbox: %v", inline)
	}
	remote := SandboxAttributes(uires.RemoteDOM{Script: "x", Framework: uires.FrameworkReact})
	if len(remote) != 1 || remote[0] != "allow-scripts" {
		t.Fatalf("remote-dom sandbox: %v", remote)
	}
	ext := SandboxAttributes(uires.ExternalURL{IframeURL: "https://a.example"})
	if len(ext) != 2 || ext[1] != "allow-same-origin" {
		t.Fatalf("external sandbox: %v", ext)
	}
}

func TestParseResizePolicy(t *testing.T) {
	if _, err := ParseResizePolicy("sideways"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
	p, err := ParseResizePolicy("")
	if err != nil || p != ResizeBoth {
		t.Fatalf("default policy: %v %v", p, err)
	}
	w, h := 1.0, 2.0
	if gw, gh := ResizeHeight.Apply(&w, &h); gw != nil || gh == nil {
		t.Fatal("height policy should drop width")
	}
	if gw, gh := ResizeNone.Apply(&w, &h); gw != nil || gh != nil {
		t.Fatal("none policy should drop both")
	}
}
