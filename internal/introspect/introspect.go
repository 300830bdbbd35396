// Package introspect exposes a read-only MCP surface over the running
// tracer fleet and hop cache, for assistant-facing inspection. It never
// sits on the hot path of sampling, tracing or publishing.
package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sidn/pathtraced/internal/enrich"
	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/internal/publisher"
)

var log = logging.Named("path_traceroute")

const serverName = "pathtraced"
const serverVersion = "1.0.0"

// Server wraps an mcp-go stdio server with two read-only tools bound to
// a running publisher and enricher.
type Server struct {
	pub      *publisher.Publisher
	enricher *enrich.Enricher
	mcp      *server.MCPServer
}

// New builds the MCP server and registers its tools.
func New(pub *publisher.Publisher, enricher *enrich.Enricher) *Server {
	s := &Server{
		pub:      pub,
		enricher: enricher,
		mcp:      server.NewMCPServer(serverName, serverVersion),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	listTracers := mcp.NewTool("list_tracers",
		mcp.WithDescription("List every destination currently being traced, with its last hop count, dports and change flag."),
	)
	s.mcp.AddTool(listTracers, s.handleListTracers)

	cacheStats := mcp.NewTool("cache_stats",
		mcp.WithDescription("Report the hop enrichment cache's current size."),
	)
	s.mcp.AddTool(cacheStats, s.handleCacheStats)
}

// Run serves the MCP stdio transport until stdin closes. ctx is not
// passed to the transport, so cancelling it does not stop Run.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("starting MCP introspection server")
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleListTracers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active := s.pub.Active()
	if len(active) == 0 {
		return mcp.NewToolResultText("no active tracers"), nil
	}

	var b strings.Builder
	for _, tr := range active {
		hist := tr.History()
		hopCount := 0
		changed := false
		dports := ""
		if len(hist) > 0 {
			last := hist[len(hist)-1]
			hopCount = len(last.Hops)
			changed = last.Change
			dports = strings.Join(last.DPorts.Sorted(), ",")
		}
		fmt.Fprintf(&b, "%s\thops=%d\tdports=%s\tchange=%v\n", tr.Destination(), hopCount, dports, changed)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleCacheStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.enricher.CacheStats()
	return mcp.NewToolResultText(fmt.Sprintf("cache_size=%d", stats.Size)), nil
}
