package uires

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mcpui/uibridge/internal/logx"
)

// URIScheme is the reserved scheme prefix every UI resource URI must carry.
// It is the sole discriminator that lets a generic embedded resource be
// recognized as a UI resource rather than an arbitrary payload.
const URIScheme = "ui://"

// Framework identifies the remote-dom scripting framework a RemoteDOM
// payload targets.
type Framework string

const (
	FrameworkReact         Framework = "react"
	FrameworkWebComponents Framework = "webcomponents"
)

// MIME types produced by content resolution.
const (
	MimeHTML    = "text/html"
	MimeURIList = "text/uri-list"

	mimeRemoteDOMFmt = "application/vnd.mcp-ui.remote-dom+javascript; framework=%s"
)

// Content is the closed set of content variants a UI resource can carry.
// Exactly one concrete type is used per resource; Resolve matches
// exhaustively so adding a variant is a compile-time visible change.
type Content interface {
	isContent()
}

// RawHTML delivers an HTML document rendered verbatim inside the surface.
//
// The markup is NOT sanitized at any point: it executes with script
// privileges inside the surface. Sanitization is deliberately left to the
// caller, before construction.
type RawHTML struct {
	HTMLString string
}

// ExternalURL points the surface at an independently hosted page. The URL
// may be a newline-delimited uri-list; only the first well-formed URI is
// kept (see Resolve).
type ExternalURL struct {
	IframeURL string
}

// RemoteDOM carries a remote-dom script plus the framework it targets.
type RemoteDOM struct {
	Script    string
	Framework Framework
}

func (RawHTML) isContent()     {}
func (ExternalURL) isContent() {}
func (RemoteDOM) isContent()   {}

// Resolve turns a content variant into its canonical (mimeType, payload)
// pair. It is pure apart from warning logs for dropped uri-list lines.
func Resolve(content Content) (mimeType, payload string, err error) {
	switch c := content.(type) {
	case RawHTML:
		if c.HTMLString == "" {
			return "", "", fmt.Errorf("%w: htmlString must be a non-empty string for rawHtml content", ErrInvalidContent)
		}
		return MimeHTML, c.HTMLString, nil
	case ExternalURL:
		if c.IframeURL == "" {
			return "", "", fmt.Errorf("%w: iframeUrl must be a non-empty string for externalUrl content", ErrInvalidContent)
		}
		first, err := firstURI(c.IframeURL)
		if err != nil {
			return "", "", err
		}
		return MimeURIList, first, nil
	case RemoteDOM:
		if c.Script == "" {
			return "", "", fmt.Errorf("%w: script must be a non-empty string for remoteDom content", ErrInvalidContent)
		}
		switch c.Framework {
		case FrameworkReact, FrameworkWebComponents:
		default:
			return "", "", fmt.Errorf("%w: framework must be %q or %q, got %q", ErrInvalidContent, FrameworkReact, FrameworkWebComponents, c.Framework)
		}
		return fmt.Sprintf(mimeRemoteDOMFmt, c.Framework), c.Script, nil
	case nil:
		return "", "", fmt.Errorf("%w: content is required", ErrInvalidContent)
	default:
		return "", "", fmt.Errorf("%w: unknown content variant %T", ErrInvalidContent, content)
	}
}

// firstURI extracts the first well-formed URI from a newline-delimited
// uri-list. Comment lines (leading '#') and malformed lines are skipped with
// a warning; anything after the winning line is dropped and logged, since
// only one address can be presented.
func firstURI(list string) (string, error) {
	lines := strings.Split(list, "\n")
	chosen := ""
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if chosen != "" {
			logx.Log.Warn().Str("uri", line).Msg("uri-list has multiple URIs; only the first is used")
			continue
		}
		if u, err := url.Parse(line); err != nil || u.Scheme == "" && !strings.HasPrefix(line, "/") {
			logx.Log.Warn().Int("line", i+1).Str("value", line).Msg("skipping malformed uri-list line")
			continue
		}
		chosen = line
	}
	if chosen == "" {
		return "", fmt.Errorf("%w: iframeUrl contains no valid URI", ErrInvalidContent)
	}
	return chosen, nil
}
