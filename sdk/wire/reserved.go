package wire

import "encoding/json"

// SizeChangePayload reports the surface's preferred dimensions. Either axis
// may be absent; the host applies its own resize policy.
type SizeChangePayload struct {
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// RenderDataPayload carries initialization data for a surface.
type RenderDataPayload struct {
	RenderData any `json:"renderData"`
}

// ResponsePayload closes a correlated request. Response and Error are
// mutually exclusive; exactly one is set.
type ResponsePayload struct {
	Response any `json:"response,omitempty"`
	Error    any `json:"error,omitempty"`
}

// NewReady builds the passive-lifecycle ready message.
func NewReady() Message { return Message{Type: TypeLifecycleReady} }

// NewSizeChange builds a size-change message. Pass nil for an axis the
// content does not constrain.
func NewSizeChange(width, height *float64) (Message, error) {
	payload, err := json.Marshal(SizeChangePayload{Width: width, Height: height})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeSizeChange, Payload: payload}, nil
}

// NewRequestRenderData builds the active-lifecycle render data request.
func NewRequestRenderData(messageID string) Message {
	return Message{Type: TypeRequestRenderData, MessageID: messageID}
}

// NewRenderData builds the host's render-data delivery message.
func NewRenderData(renderData any) (Message, error) {
	payload, err := json.Marshal(RenderDataPayload{RenderData: renderData})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeRenderData, Payload: payload}, nil
}

// NewReceived builds the advisory acknowledgment echoing a message ID.
func NewReceived(messageID string) Message {
	return Message{Type: TypeMessageReceived, MessageID: messageID}
}

// NewResponse builds a resolution for a correlated request.
func NewResponse(messageID string, response any) (Message, error) {
	payload, err := json.Marshal(ResponsePayload{Response: response})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeMessageResponse, MessageID: messageID, Payload: payload}, nil
}

// NewErrorResponse builds a rejection for a correlated request.
func NewErrorResponse(messageID string, errValue any) (Message, error) {
	payload, err := json.Marshal(ResponsePayload{Error: errValue})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeMessageResponse, MessageID: messageID, Payload: payload}, nil
}
