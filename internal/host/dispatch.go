package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpui/uibridge/internal/logx"
	"github.com/mcpui/uibridge/internal/metrics"
	"github.com/mcpui/uibridge/sdk/wire"
)

// readLoop dispatches inbound frames for one surface. Handlers run inside
// the loop, so a surface's messages are handled one at a time; surfaces are
// independent of each other.
func (r *Registry) readLoop(ctx context.Context, s *Surface) {
	defer r.Remove(s.ID)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		m, err := wire.Parse(data)
		if err != nil {
			// Malformed or unknown frames are dropped before any handler
			// sees them. Silent on the wire, visible in logs.
			metrics.RecordViolation()
			logx.Log.Warn().Err(err).Str("surface_id", s.ID).Msg("dropping invalid frame")
			continue
		}
		r.dispatch(ctx, s, m)
	}
}

// dispatch routes one parsed message. Host-direction types arriving from
// content are identity violations: a surface must not forge responses.
func (r *Registry) dispatch(ctx context.Context, s *Surface, m wire.Message) {
	switch m.Type {
	case wire.TypeTool, wire.TypePrompt, wire.TypeLink, wire.TypeIntent, wire.TypeNotify:
		r.handleAction(ctx, s, m)
	case wire.TypeLifecycleReady:
		r.handleReady(ctx, s)
		metrics.RecordInbound(string(m.Type), metrics.OutcomeOK)
	case wire.TypeRequestData, wire.TypeRequestRenderData:
		r.handleRenderDataRequest(ctx, s, m)
		metrics.RecordInbound(string(m.Type), metrics.OutcomeOK)
	case wire.TypeSizeChange:
		r.handleSizeChange(s, m)
		metrics.RecordInbound(string(m.Type), metrics.OutcomeOK)
	case wire.TypeRenderData, wire.TypeMessageReceived, wire.TypeMessageResponse:
		metrics.RecordViolation()
		logx.Log.Warn().Str("surface_id", s.ID).Str("type", string(m.Type)).Msg("dropping host-direction frame from surface")
	}
}

// handleAction runs the correlation layer over a single action message:
// one advisory acknowledgment before the handler, then exactly one
// response once the handler settles. Without a registered handler the
// message is consumed with no reply at all.
func (r *Registry) handleAction(ctx context.Context, s *Surface, m wire.Message) {
	if r.handler == nil {
		metrics.RecordInbound(string(m.Type), metrics.OutcomeUnhandled)
		logx.Log.Debug().Str("surface_id", s.ID).Str("type", string(m.Type)).Msg("no action handler registered")
		return
	}
	if m.MessageID != "" {
		if !s.claimMessageID(m.MessageID) {
			// Upstream retry of an already-answered ID; one response per ID.
			logx.Log.Debug().Str("surface_id", s.ID).Str("message_id", m.MessageID).Msg("duplicate message id ignored")
			return
		}
		_ = s.send(ctx, wire.NewReceived(m.MessageID))
	}

	action, err := wire.DecodeAction(m)
	if err != nil {
		metrics.RecordViolation()
		logx.Log.Warn().Err(err).Str("surface_id", s.ID).Msg("dropping malformed action payload")
		s.respondErr(ctx, m.MessageID, "malformed action payload")
		return
	}

	result, err := r.invoke(ctx, s, action)
	if err != nil {
		metrics.RecordInbound(string(m.Type), metrics.OutcomeHandlerError)
		logx.Log.Warn().Err(err).Str("surface_id", s.ID).Str("type", string(m.Type)).Msg("action handler failed")
		s.respondErr(ctx, m.MessageID, err.Error())
		return
	}
	metrics.RecordInbound(string(m.Type), metrics.OutcomeOK)
	if m.MessageID != "" {
		if resp, err := wire.NewResponse(m.MessageID, result); err == nil {
			_ = s.send(ctx, resp)
		}
	}
}

// invoke runs the handler with the configured deadline and converts a panic
// into an error so the dispatch loop survives any handler.
func (r *Registry) invoke(ctx context.Context, s *Surface, action wire.Action) (result any, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return r.handler(ctx, s, action)
}

// claimMessageID records a message ID the first time it is seen. A second
// claim fails, which suppresses duplicate acks and responses.
func (s *Surface) claimMessageID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.responded[id]; dup {
		return false
	}
	s.responded[id] = struct{}{}
	return true
}

// respondErr emits the {error} response when the message was correlated.
func (s *Surface) respondErr(ctx context.Context, messageID, errValue string) {
	if messageID == "" {
		return
	}
	if resp, err := wire.NewErrorResponse(messageID, errValue); err == nil {
		_ = s.send(ctx, resp)
	}
}

// handleReady answers the passive-lifecycle ready signal with render data
// when the store has any for this surface.
func (r *Registry) handleReady(ctx context.Context, s *Surface) {
	data, ok, err := r.renderData.Get(ctx, s.ID)
	if err != nil {
		logx.Log.Warn().Err(err).Str("surface_id", s.ID).Msg("render data lookup failed")
		return
	}
	if !ok {
		return
	}
	m, err := wire.NewRenderData(data)
	if err != nil {
		return
	}
	_ = s.send(ctx, m)
}

// handleRenderDataRequest answers the active-lifecycle request through the
// response message type, correlated when the request carried an ID. A
// correlated request shares the one-response-per-ID rule with actions.
func (r *Registry) handleRenderDataRequest(ctx context.Context, s *Surface, m wire.Message) {
	if m.MessageID != "" && !s.claimMessageID(m.MessageID) {
		logx.Log.Debug().Str("surface_id", s.ID).Str("message_id", m.MessageID).Msg("duplicate message id ignored")
		return
	}
	data, ok, err := r.renderData.Get(ctx, s.ID)
	if err != nil || !ok {
		if err != nil {
			logx.Log.Warn().Err(err).Str("surface_id", s.ID).Msg("render data lookup failed")
		}
		s.respondErr(ctx, m.MessageID, "no render data available")
		return
	}
	payload, err := json.Marshal(wire.RenderDataPayload{RenderData: data})
	if err != nil {
		s.respondErr(ctx, m.MessageID, "render data not serializable")
		return
	}
	resp := wire.Message{Type: wire.TypeMessageResponse, MessageID: m.MessageID, Payload: payload}
	_ = s.send(ctx, resp)
}

// handleSizeChange applies the host resize policy and forwards the result
// to the presenter. Advisory only; errors are not possible and the message
// never gets a response.
func (r *Registry) handleSizeChange(s *Surface, m wire.Message) {
	if r.presenter == nil {
		return
	}
	var p wire.SizeChangePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		metrics.RecordViolation()
		logx.Log.Warn().Err(err).Str("surface_id", s.ID).Msg("dropping malformed size-change payload")
		return
	}
	width, height := r.resize.Apply(p.Width, p.Height)
	if width == nil && height == nil {
		return
	}
	r.presenter.Resize(s.ID, width, height)
}

// CloseAll tears down every surface, e.g. on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.surfaces))
	for id := range r.surfaces {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Remove(id)
	}
}
