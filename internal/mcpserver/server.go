// Package mcpserver exposes the session manager as MCP tools and serves
// them over stdio or streamable HTTP.
package mcpserver

import (
	"io"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"sshmcp/internal/metrics"
	"sshmcp/internal/session"
	"sshmcp/util"
)

// Name is the MCP implementation name reported to clients.
const Name = "ssh-mcp-server"

// Options configures a [Server].
type Options struct {
	Version string
	Logger  *util.Logger
	Metrics *metrics.Collector

	// GracePeriod bounds HTTP shutdown.
	GracePeriod time.Duration

	// Stderr receives the stdio banner.  Default os.Stderr.
	Stderr io.Writer
}

// Server binds a session manager to an MCP tool server.
type Server struct {
	manager *session.Manager
	mcp     *server.MCPServer
	opts    Options
	logger  *util.Logger
	metrics *metrics.Collector
}

// New registers the ssh_* tools for m.
func New(m *session.Manager, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	s := &Server{
		manager: m,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	s.mcp = server.NewMCPServer(Name, opts.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCP returns the underlying tool server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }
