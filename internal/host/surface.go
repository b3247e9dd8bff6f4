// Package host tracks the surfaces attached to this process and runs the
// message protocol against each of them: identity-scoped delivery,
// request/response correlation, lifecycle negotiation and advisory resizing.
package host

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mcpui/uibridge/internal/logx"
	"github.com/mcpui/uibridge/internal/metrics"
	"github.com/mcpui/uibridge/internal/renderstore"
	"github.com/mcpui/uibridge/sdk/uires"
	"github.com/mcpui/uibridge/sdk/wire"
)

// ActionHandler processes one action emitted by a surface. The returned
// value resolves the correlated request; a non-nil error rejects it. When no
// handler is registered the host neither acknowledges nor responds.
type ActionHandler func(ctx context.Context, s *Surface, action wire.Action) (any, error)

// SurfaceSpec describes a surface before it is presented.
type SurfaceSpec struct {
	// Content decides sandboxing and origin scoping. ExternalURL surfaces
	// are pinned to the URL's origin; inline variants have no origin of
	// their own, so their scope is deliberately unrestricted.
	Content uires.Content
	// WaitForRenderData defers the surface's first render until render data
	// arrives (passive lifecycle opt-in, appended to the address).
	WaitForRenderData bool
}

// Surface is one isolated execution context rendering a resource.
type Surface struct {
	ID      string
	Address string
	// Sandbox lists the capability attributes the presenting frame gets.
	Sandbox []string

	origin string // expected peer origin; empty means unrestricted

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	responded map[string]struct{}
	closed    bool
}

// Origin returns the origin this surface is scoped to, or "" when the
// delivery mode has none.
func (s *Surface) Origin() string { return s.origin }

// Registry owns all live surfaces for this host. Surfaces are independent:
// correlation state never crosses between entries.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]*Surface

	handler    ActionHandler
	presenter  Presenter
	renderData renderstore.Store
	resize     ResizePolicy
	timeout    time.Duration
}

// Options configures a Registry.
type Options struct {
	// Actions handles surface actions; nil disables acks and responses.
	Actions ActionHandler
	// Presenter receives advisory resize callbacks; nil ignores them.
	Presenter Presenter
	// RenderData supplies per-surface initialization data.
	RenderData renderstore.Store
	// Resize selects which axes follow size-change messages.
	Resize ResizePolicy
	// HandlerTimeout bounds a single action handler invocation. Zero means
	// no deadline; the protocol itself never imposes one.
	HandlerTimeout time.Duration
}

// NewRegistry constructs an empty surface registry.
func NewRegistry(opts Options) *Registry {
	if opts.RenderData == nil {
		opts.RenderData = renderstore.NewMemory()
	}
	return &Registry{
		surfaces:   map[string]*Surface{},
		handler:    opts.Actions,
		presenter:  opts.Presenter,
		renderData: opts.RenderData,
		resize:     opts.Resize,
		timeout:    opts.HandlerTimeout,
	}
}

// Create registers a new surface for the given spec and returns it. The
// surface has no connection yet; the client attaches through WSHandler.
func (r *Registry) Create(spec SurfaceSpec) (*Surface, error) {
	s := &Surface{
		ID:        uuid.NewString(),
		Sandbox:   SandboxAttributes(spec.Content),
		responded: map[string]struct{}{},
	}
	switch c := spec.Content.(type) {
	case uires.ExternalURL:
		u, err := url.Parse(c.IframeURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("surface address %q has no origin", c.IframeURL)
		}
		s.origin = u.Scheme + "://" + u.Host
		s.Address = c.IframeURL
	default:
		// Inline content is served by the host itself and carries no
		// independent origin; the origin check is relaxed for this mode.
		s.Address = "/ui/surfaces/" + s.ID + "/ws"
	}
	if spec.WaitForRenderData {
		s.Address = wire.AppendWaitForRenderData(s.Address)
	}
	r.mu.Lock()
	r.surfaces[s.ID] = s
	r.mu.Unlock()
	metrics.SurfaceOpened()
	return s, nil
}

// Get returns a tracked surface.
func (r *Registry) Get(id string) (*Surface, bool) {
	r.mu.RLock()
	s, ok := r.surfaces[id]
	r.mu.RUnlock()
	return s, ok
}

// Remove tears a surface down and discards its correlation state. Pending
// message IDs are simply forgotten; no wire notification is sent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s := r.surfaces[id]
	delete(r.surfaces, id)
	r.mu.Unlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "surface removed")
	}
	metrics.SurfaceClosed()
}

// WSHandler accepts a surface's connection at /ui/surfaces/{surface_id}/ws.
// A connection is refused when the surface is unknown, already attached, or
// presents an origin outside the surface's scope.
func (r *Registry) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "surface_id")
		s, ok := r.Get(id)
		if !ok {
			metrics.RecordViolation()
			logx.Log.Warn().Str("surface_id", id).Msg("connection for unknown surface refused")
			http.Error(w, "unknown surface", http.StatusNotFound)
			return
		}
		if s.origin != "" {
			if origin := req.Header.Get("Origin"); origin != "" && origin != s.origin {
				metrics.RecordViolation()
				logx.Log.Warn().Str("surface_id", id).Str("origin", origin).Str("want", s.origin).Msg("origin mismatch refused")
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
		}
		// Origin scoping is enforced per surface above; the library's
		// host-equality check would reject legitimate cross-origin frames.
		c, err := websocket.Accept(w, req, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed || s.conn != nil {
			s.mu.Unlock()
			metrics.RecordViolation()
			logx.Log.Warn().Str("surface_id", id).Msg("duplicate connection refused")
			_ = c.Close(websocket.StatusPolicyViolation, "already attached")
			return
		}
		s.conn = c
		s.mu.Unlock()
		// Long-lived loop; the request context ends when this handler
		// returns.
		go r.readLoop(context.Background(), s)
	}
}

// send delivers one message to the surface, best effort. Writes after
// teardown are dropped.
func (s *Surface) send(ctx context.Context, m wire.Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if closed || conn == nil {
		return fmt.Errorf("surface %s not attached", s.ID)
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.writeMu.Lock()
	err = conn.Write(writeCtx, websocket.MessageText, data)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	metrics.RecordOutbound(string(m.Type))
	return nil
}

// SendRenderData pushes render data to a surface outside the ready
// handshake. Duplicate deliveries are the content's job to ignore.
func (r *Registry) SendRenderData(ctx context.Context, surfaceID string, renderData any) error {
	s, ok := r.Get(surfaceID)
	if !ok {
		return fmt.Errorf("unknown surface %s", surfaceID)
	}
	m, err := wire.NewRenderData(renderData)
	if err != nil {
		return err
	}
	return s.send(ctx, m)
}
