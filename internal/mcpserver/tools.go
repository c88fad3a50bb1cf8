package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	sserr "sshmcp/internal/errors"
	"sshmcp/internal/session"
	"sshmcp/internal/transport"
)

// Tool names.
const (
	ToolOpen  = "ssh_open"
	ToolExec  = "ssh_exec"
	ToolClose = "ssh_close"
	ToolList  = "ssh_list"
)

type openResult struct {
	SessionID string `json:"sessionId" jsonschema:"description=Identifier to pass to ssh_exec and ssh_close"`
}

type closeResult struct {
	Closed bool `json:"closed" jsonschema:"description=True once the session is gone"`
}

type listResult struct {
	Sessions []session.Info `json:"sessions" jsonschema:"description=Open sessions in no particular order"`
}

func (s *Server) registerTools() {
	s.mcp.AddTool(openTool(), s.handleOpen)
	s.mcp.AddTool(execTool(), s.handleExec)
	s.mcp.AddTool(closeTool(), s.handleClose)
	s.mcp.AddTool(listTool(), s.handleList)
}

// ── definitions ──────────────────────────────────────────────────────

func openTool() mcp.Tool {
	return mcp.NewTool(ToolOpen,
		mcp.WithDescription("Open a persistent SSH session and return a sessionId for later commands."),
		mcp.WithTitleAnnotation("Open SSH session"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithOutputSchema[openResult](),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("SSH host name or IP address"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port (default 22)"),
			mcp.Min(1),
			mcp.Max(65535),
		),
		mcp.WithString("username",
			mcp.Required(),
			mcp.Description("SSH user"),
		),
		mcp.WithString("password",
			mcp.Description("Password. If omitted, the SSH_PRIVATE_KEY env var will be used."),
		),
		mcp.WithString("privateKey",
			mcp.Description("OpenSSH or PEM private key. Ignored when password is set."),
		),
	)
}

func execTool() mcp.Tool {
	return mcp.NewTool(ToolExec,
		mcp.WithDescription("Run a shell command on an existing SSH session created by ssh_open."),
		mcp.WithTitleAnnotation("Execute command on existing SSH session"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithOutputSchema[session.Result](),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session ID from ssh_open"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Shell command to execute"),
		),
		mcp.WithNumber("timeoutMs",
			mcp.Description("Timeout in milliseconds (default 60000)"),
		),
	)
}

func closeTool() mcp.Tool {
	return mcp.NewTool(ToolClose,
		mcp.WithDescription("Close an existing SSH session."),
		mcp.WithTitleAnnotation("Close SSH session"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithOutputSchema[closeResult](),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session ID to close"),
		),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool(ToolList,
		mcp.WithDescription("List open SSH sessions."),
		mcp.WithTitleAnnotation("List SSH sessions"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
		mcp.WithOutputSchema[listResult](),
	)
}

// ── handlers ─────────────────────────────────────────────────────────

func (s *Server) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := req.RequireString("host")
	if err != nil {
		return toolError(sserr.InvalidArgument("%v", err)), nil
	}
	user, err := req.RequireString("username")
	if err != nil {
		return toolError(sserr.InvalidArgument("%v", err)), nil
	}
	port := mcp.ParseInt(req, "port", transport.DefaultPort)
	if port < 1 || port > 65535 {
		return toolError(sserr.InvalidArgument("port %d out of range 1-65535", port)), nil
	}

	target := transport.Target{
		Host:     host,
		Port:     port,
		User:     user,
		Password: mcp.ParseString(req, "password", ""),
	}
	if target.Password == "" {
		target.PrivateKey = mcp.ParseString(req, "privateKey", "")
	}

	id, err := s.manager.Open(ctx, target)
	if err != nil {
		return toolError(err), nil
	}
	return structured(openResult{SessionID: id})
}

func (s *Server) handleExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sessionId")
	if err != nil {
		return toolError(sserr.InvalidArgument("%v", err)), nil
	}
	command, err := req.RequireString("command")
	if err != nil {
		return toolError(sserr.InvalidArgument("%v", err)), nil
	}
	timeout := time.Duration(mcp.ParseInt64(req, "timeoutMs", 0)) * time.Millisecond

	res, err := s.manager.Execute(ctx, id, command, timeout)
	if err != nil {
		return toolError(err), nil
	}
	return structured(res)
}

func (s *Server) handleClose(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sessionId")
	if err != nil {
		return toolError(sserr.InvalidArgument("%v", err)), nil
	}
	return structured(closeResult{Closed: s.manager.Close(id)})
}

func (s *Server) handleList(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return structured(listResult{Sessions: s.manager.List()})
}

// ── results ──────────────────────────────────────────────────────────

// structured returns v as structuredContent with its JSON as the text
// content, for clients that only read text.
func structured(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultStructured(v, string(data)), nil
}

// toolError reports err as "<kind>: <message>", with " (retryable)"
// appended when the same call may succeed later unchanged.
func toolError(err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %v", sserr.KindOf(err), err)
	if sserr.IsRetryable(err) {
		msg += " (retryable)"
	}
	return mcp.NewToolResultError(msg)
}
