package wire

import (
	"encoding/json"
	"fmt"
)

// Action is the closed set of payloads embedded content may emit toward the
// host. Exactly one concrete type corresponds to each action message type.
type Action interface {
	isAction()
	Type() MessageType
}

// ToolCallPayload asks the host to execute a named operation.
type ToolCallPayload struct {
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params"`
}

// PromptPayload asks the host to run a free-text prompt.
type PromptPayload struct {
	Prompt string `json:"prompt"`
}

// LinkPayload asks the host to navigate.
type LinkPayload struct {
	URL string `json:"url"`
}

// IntentPayload is a generic host-interpreted user intent, distinct from a
// concrete tool call.
type IntentPayload struct {
	Intent string         `json:"intent"`
	Params map[string]any `json:"params"`
}

// NotifyPayload signals a side effect the content already completed. The
// host need not respond.
type NotifyPayload struct {
	Message string `json:"message"`
}

func (ToolCallPayload) isAction() {}
func (PromptPayload) isAction()   {}
func (LinkPayload) isAction()     {}
func (IntentPayload) isAction()   {}
func (NotifyPayload) isAction()   {}

func (ToolCallPayload) Type() MessageType { return TypeTool }
func (PromptPayload) Type() MessageType   { return TypePrompt }
func (LinkPayload) Type() MessageType     { return TypeLink }
func (IntentPayload) Type() MessageType   { return TypeIntent }
func (NotifyPayload) Type() MessageType   { return TypeNotify }

// NewActionMessage wraps an action payload into a wire message. messageID
// may be empty for fire-and-forget use.
func NewActionMessage(action Action, messageID string) (Message, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: action.Type(), MessageID: messageID, Payload: payload}, nil
}

// DecodeAction extracts the typed action payload from an action message.
func DecodeAction(m Message) (Action, error) {
	var (
		action Action
		err    error
	)
	switch m.Type {
	case TypeTool:
		var p ToolCallPayload
		err = json.Unmarshal(m.Payload, &p)
		action = p
	case TypePrompt:
		var p PromptPayload
		err = json.Unmarshal(m.Payload, &p)
		action = p
	case TypeLink:
		var p LinkPayload
		err = json.Unmarshal(m.Payload, &p)
		action = p
	case TypeIntent:
		var p IntentPayload
		err = json.Unmarshal(m.Payload, &p)
		action = p
	case TypeNotify:
		var p NotifyPayload
		err = json.Unmarshal(m.Payload, &p)
		action = p
	default:
		return nil, fmt.Errorf("%w: %q is not an action", ErrUnknownType, m.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return action, nil
}
