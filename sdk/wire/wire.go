// Package wire defines the message unit exchanged between a host and an
// embedded UI surface, and the closed vocabulary of message types.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// MessageType discriminates protocol messages. The set is closed: an
// unrecognized type at the boundary is a protocol violation, not an
// extension point.
type MessageType string

// Action types emitted by embedded content toward the host.
const (
	TypeTool   MessageType = "tool"
	TypePrompt MessageType = "prompt"
	TypeLink   MessageType = "link"
	TypeIntent MessageType = "intent"
	TypeNotify MessageType = "notify"
)

// Lifecycle and meta types reserved by the protocol, content to host.
const (
	TypeLifecycleReady    MessageType = "ui-lifecycle-iframe-ready"
	TypeSizeChange        MessageType = "ui-size-change"
	TypeRequestData       MessageType = "ui-request-data"
	TypeRequestRenderData MessageType = "ui-request-render-data"
)

// Reserved types, host to content.
const (
	TypeRenderData      MessageType = "ui-lifecycle-iframe-render-data"
	TypeMessageReceived MessageType = "ui-message-received"
	TypeMessageResponse MessageType = "ui-message-response"
)

// ErrUnknownType reports a message whose type is outside the closed set.
var ErrUnknownType = errors.New("unknown message type")

// ErrMalformed reports a message that is not valid JSON or lacks a type.
var ErrMalformed = errors.New("malformed message")

// Message is the protocol wire unit, both directions. MessageID is optional;
// when present it activates request/response correlation for this message.
type Message struct {
	Type      MessageType     `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var knownTypes = map[MessageType]struct{}{
	TypeTool: {}, TypePrompt: {}, TypeLink: {}, TypeIntent: {}, TypeNotify: {},
	TypeLifecycleReady: {}, TypeSizeChange: {}, TypeRequestData: {}, TypeRequestRenderData: {},
	TypeRenderData: {}, TypeMessageReceived: {}, TypeMessageResponse: {},
}

// Parse decodes a raw frame and rejects anything outside the closed type
// set. Callers drop rejected frames; they are never dispatched.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if _, ok := knownTypes[m.Type]; !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}

// IsAction reports whether the message carries one of the five action
// vocabulary types.
func (m Message) IsAction() bool {
	switch m.Type {
	case TypeTool, TypePrompt, TypeLink, TypeIntent, TypeNotify:
		return true
	}
	return false
}

// Encode marshals the message for transport.
func (m Message) Encode() ([]byte, error) { return json.Marshal(m) }

// WaitForRenderDataParam is the reserved query parameter appended to a
// surface address to signal passive-lifecycle opt-in before presentation.
const WaitForRenderDataParam = "waitForRenderData"

// AppendWaitForRenderData marks a surface address as deferring its render
// until render data arrives. The raw address is returned unchanged when it
// cannot be parsed.
func AppendWaitForRenderData(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(WaitForRenderDataParam, "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// WantsRenderData reports whether a surface address carries the
// passive-lifecycle opt-in flag.
func WantsRenderData(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get(WaitForRenderDataParam) == "true"
}
