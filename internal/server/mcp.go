package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpui/uibridge/internal/host"
	"github.com/mcpui/uibridge/sdk/uires"
)

// NewMCPServer builds the MCP endpoint. The show_counter tool demonstrates
// the full path: it registers a surface, stores its render data and returns
// a UI resource pointing at the surface's websocket address.
func NewMCPServer(reg *host.Registry, store hostStore, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("uibridge", version, mcpserver.WithToolCapabilities(false))

	tool := mcp.NewTool("show_counter",
		mcp.WithDescription("Open an interactive counter panel"),
		mcp.WithString("title", mcp.Required()),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return nil, err
		}
		surface, err := reg.Create(host.SurfaceSpec{
			Content:           uires.RawHTML{HTMLString: counterHTML},
			WaitForRenderData: true,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Put(ctx, surface.ID, map[string]any{"title": title, "count": 0}); err != nil {
			return nil, err
		}
		res, err := uires.CreateUIResource(uires.CreateUIResourceOptions{
			URI:      fmt.Sprintf("ui://counter/%s", surface.ID),
			Content:  uires.RawHTML{HTMLString: uires.WrapHTML(counterHTML)},
			Encoding: uires.EncodingText,
			UIMetadata: &uires.UIMetadata{
				PreferredFrameSize: [2]string{"400px", "300px"},
			},
			Metadata: map[string]any{
				"uibridge/surface-address": surface.Address,
			},
		})
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{Content: []mcp.Content{*res}}, nil
	})
	return s
}

// hostStore is the slice of the render-data store the MCP layer needs.
type hostStore interface {
	Put(ctx context.Context, surfaceID string, renderData any) error
}

const counterHTML = `<!DOCTYPE html>
<html>
<head><title>Counter</title></head>
<body>
<h1 id="title"></h1>
<button id="inc">+1</button>
<span id="count">0</span>
<script>
window.mcpUI.onMessage(function (msg) {
  if (msg.type === 'ui-lifecycle-iframe-render-data') {
    document.getElementById('title').textContent = msg.payload.renderData.title;
    document.getElementById('count').textContent = msg.payload.renderData.count;
  }
});
window.mcpUI.postMessage({ type: 'ui-lifecycle-iframe-ready' });
document.getElementById('inc').addEventListener('click', function () {
  window.mcpUI.postMessage({
    type: 'tool',
    messageId: String(Date.now()),
    payload: { toolName: 'increment', params: {} }
  });
});
</script>
</body>
</html>`
