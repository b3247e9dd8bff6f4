// Package uires builds MCP UI resources: embedded resources with a ui://
// URI whose payload a client renders inside an isolated surface.
//
// The payload is passed through untouched. In particular RawHTML content is
// not sanitized and will run scripts inside the surface; callers that accept
// markup from elsewhere must sanitize it themselves before construction.
package uires

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Encoding selects how the resolved payload is stored on the wire.
type Encoding string

const (
	// EncodingText stores the payload verbatim in the text field.
	EncodingText Encoding = "text"
	// EncodingBlob stores the payload as Base64 of its UTF-8 bytes.
	EncodingBlob Encoding = "blob"
)

// MetaPrefix namespaces UI-specific metadata keys inside the resource _meta
// mapping, keeping them apart from caller-supplied generic metadata.
const MetaPrefix = "mcpui.dev/ui-"

// Reserved _meta keys written from UIMetadata.
const (
	MetaKeyPreferredFrameSize = MetaPrefix + "preferred-frame-size"
	MetaKeyInitialRenderData  = MetaPrefix + "initial-render-data"
)

// UIMetadata holds the UI-specific metadata namespace. Keys are rewritten
// with MetaPrefix before being merged into _meta.
type UIMetadata struct {
	// PreferredFrameSize is the [width, height] the host should initially
	// give the surface, as CSS size strings (e.g. "800px").
	PreferredFrameSize [2]string
	// InitialRenderData is handed to surfaces that negotiate render data.
	InitialRenderData map[string]any
}

// ResourceProps carries extra properties applied to the resource contents.
type ResourceProps struct {
	// Meta is merged into _meta last, overriding UIMetadata and Metadata
	// entries on key collision.
	Meta map[string]any
}

// EmbeddedResourceProps carries extra properties applied to the embedded
// resource wrapper rather than the contents.
type EmbeddedResourceProps struct {
	Annotations *mcp.Annotations
}

// CreateUIResourceOptions configures a single resource construction.
type CreateUIResourceOptions struct {
	URI                   string
	Content               Content
	Encoding              Encoding
	UIMetadata            *UIMetadata
	Metadata              map[string]any
	ResourceProps         *ResourceProps
	EmbeddedResourceProps *EmbeddedResourceProps
}

// CreateUIResource builds the embedded resource that goes into a tool
// result's content array. Construction is pure and idempotent: the same
// options always produce a structurally equal resource, and every failure is
// a synchronous error with nothing partially built.
func CreateUIResource(opts CreateUIResourceOptions) (*mcp.EmbeddedResource, error) {
	if !strings.HasPrefix(opts.URI, URIScheme) {
		return nil, fmt.Errorf("%w: URI must start with %q, got %q", ErrInvalidURI, URIScheme, opts.URI)
	}
	mimeType, payload, err := Resolve(opts.Content)
	if err != nil {
		return nil, err
	}

	meta := mergeMeta(opts)

	var contents mcp.ResourceContents
	switch opts.Encoding {
	case EncodingText:
		contents = mcp.TextResourceContents{
			Meta:     meta,
			URI:      opts.URI,
			MIMEType: mimeType,
			Text:     payload,
		}
	case EncodingBlob:
		blob, err := encodeBlob(payload)
		if err != nil {
			return nil, err
		}
		contents = mcp.BlobResourceContents{
			Meta:     meta,
			URI:      opts.URI,
			MIMEType: mimeType,
			Blob:     blob,
		}
	default:
		return nil, fmt.Errorf("%w: invalid encoding type %q", ErrInvalidContent, opts.Encoding)
	}

	res := mcp.EmbeddedResource{Type: "resource", Resource: contents}
	if opts.EmbeddedResourceProps != nil {
		res.Annotations = opts.EmbeddedResourceProps.Annotations
	}
	return &res, nil
}

// mergeMeta folds the three metadata sources into one mapping, lowest
// precedence first: prefixed UIMetadata, then Metadata, then
// ResourceProps.Meta. Returns nil when no source contributes a key so a
// minimal resource carries no _meta container at all.
func mergeMeta(opts CreateUIResourceOptions) map[string]any {
	merged := map[string]any{}
	if ui := opts.UIMetadata; ui != nil {
		if ui.PreferredFrameSize != [2]string{} {
			merged[MetaKeyPreferredFrameSize] = []string{ui.PreferredFrameSize[0], ui.PreferredFrameSize[1]}
		}
		if ui.InitialRenderData != nil {
			merged[MetaKeyInitialRenderData] = ui.InitialRenderData
		}
	}
	for k, v := range opts.Metadata {
		merged[k] = v
	}
	if opts.ResourceProps != nil {
		for k, v := range opts.ResourceProps.Meta {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// encodeBlob Base64-encodes the payload's UTF-8 bytes through a streaming
// encoder in fixed-size chunks, so very large remote-dom scripts never hit
// argument-size limits.
func encodeBlob(payload string) (string, error) {
	const chunkSize = 32 * 1024
	var sb strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := io.WriteString(enc, payload[off:end]); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEncoding, err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return sb.String(), nil
}
