package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/server"
)

// ServeStdio speaks MCP over in/out until ctx is done or in reaches EOF.
// stdout belongs to the protocol, so everything else goes to stderr.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(s.opts.Stderr, "SSH MCP server (stdio) starting...")

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger.Zerolog(), "", 0))

	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		s.logger.Info("stdio transport closed")
		return nil
	}
	return fmt.Errorf("stdio: %w", err)
}
