package host

import (
	"fmt"

	"github.com/mcpui/uibridge/sdk/uires"
)

// Presenter is the embedding application's side of the contract: it owns
// the actual frames and may honor advisory resize requests.
type Presenter interface {
	// Resize is invoked after the host's resize policy filtered the
	// surface's size-change message. A nil axis is left alone.
	Resize(surfaceID string, width, height *float64)
}

// ResizePolicy selects which axes follow size-change messages.
type ResizePolicy string

const (
	ResizeBoth   ResizePolicy = "both"
	ResizeWidth  ResizePolicy = "width"
	ResizeHeight ResizePolicy = "height"
	ResizeNone   ResizePolicy = "none"
)

// ParseResizePolicy validates a configured policy name.
func ParseResizePolicy(v string) (ResizePolicy, error) {
	switch p := ResizePolicy(v); p {
	case ResizeBoth, ResizeWidth, ResizeHeight, ResizeNone:
		return p, nil
	case "":
		return ResizeBoth, nil
	default:
		return "", fmt.Errorf("unknown resize policy %q", v)
	}
}

// Apply filters requested dimensions down to the axes the policy allows.
func (p ResizePolicy) Apply(width, height *float64) (*float64, *float64) {
	switch p {
	case ResizeWidth:
		return width, nil
	case ResizeHeight:
		return nil, height
	case ResizeNone:
		return nil, nil
	default:
		return width, height
	}
}

// SandboxAttributes returns the minimum frame capabilities per content
// variant. Inline markup has no origin of its own, so it never gets
// allow-same-origin; an address-backed surface does, since its origin
// already isolates it from the host's.
func SandboxAttributes(content uires.Content) []string {
	switch content.(type) {
	case uires.ExternalURL:
		return []string{"allow-scripts", "allow-same-origin"}
	default:
		return []string{"allow-scripts"}
	}
}
