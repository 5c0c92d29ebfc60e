// Package tools exposes the vibe workflow as MCP tools, served on stdio.
package tools

import (
	"context"
	"io"
	stdlog "log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/bpineau/vibegit/pkg/vibe"
)

// ServerName is the MCP server name announced to clients
const ServerName = "vibe-git"

// Tool names
const (
	StartVibing   = "start_vibing"
	StopVibing    = "stop_vibing"
	VibeStatus    = "vibe_status"
	StashAndVibe  = "stash_and_vibe"
	CommitAndVibe = "commit_and_vibe"
	VibeFromHere  = "vibe_from_here"

	argCommitMessage = "commit_message"
)

// Workflow is the set of operations exposed as tools
type Workflow interface {
	Start(ctx context.Context) vibe.Result
	Stop(ctx context.Context, msg string) vibe.Result
	Status(ctx context.Context) vibe.Result
	StashAndVibe(ctx context.Context) vibe.Result
	CommitAndVibe(ctx context.Context) vibe.Result
	VibeFromHere(ctx context.Context) vibe.Result
}

// Server is the MCP server registering the six workflow tools
type Server struct {
	MCP    *server.MCPServer
	Logger *logrus.Logger

	flow Workflow
}

// New registers the workflow tools on a new MCP server
func New(flow Workflow, version string, log *logrus.Logger) *Server {
	s := &Server{
		MCP:    server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false), server.WithRecovery()),
		Logger: log,
		flow:   flow,
	}

	s.MCP.AddTool(mcp.NewTool(StartVibing,
		mcp.WithDescription("CALL THIS FIRST before making any code changes! Creates a new git branch and "+
			"auto-commits every file change. Safe to call multiple times: it never creates duplicate sessions."),
	), s.handle(StartVibing, flow.Start))

	s.MCP.AddTool(mcp.NewTool(StopVibing,
		mcp.WithDescription("Call this ONLY when the user explicitly asks to stop the session. Squashes all "+
			"auto-commits into a single commit with your message, rebases onto the latest main, force pushes "+
			"and opens a pull request. Safe to call even if not vibing."),
		mcp.WithString(argCommitMessage,
			mcp.Required(),
			mcp.Description("Commit message for the squashed commit. Its first line is the PR title, "+
				"the whole message is the PR body."),
		),
	), s.stop)

	s.MCP.AddTool(mcp.NewTool(VibeStatus,
		mcp.WithDescription("Check whether a vibe session is running, blocked by uncommitted changes, or idle."),
	), s.handle(VibeStatus, flow.Status))

	s.MCP.AddTool(mcp.NewTool(StashAndVibe,
		mcp.WithDescription("Stash uncommitted changes and start a new vibe session from main. "+
			"The changes can be restored later with 'git stash pop'."),
	), s.handle(StashAndVibe, flow.StashAndVibe))

	s.MCP.AddTool(mcp.NewTool(CommitAndVibe,
		mcp.WithDescription("Commit all uncommitted changes as 'WIP' and start a new vibe session from main."),
	), s.handle(CommitAndVibe, flow.CommitAndVibe))

	s.MCP.AddTool(mcp.NewTool(VibeFromHere,
		mcp.WithDescription("Start vibing from the current branch, keeping existing work. "+
			"Uncommitted changes are auto-committed as part of the session."),
	), s.handle(VibeFromHere, flow.VibeFromHere))

	return s
}

// Serve answers MCP requests on in/out until ctx is done or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.MCP)
	stdio.SetErrorLogger(stdlog.New(s.Logger.WriterLevel(logrus.ErrorLevel), "", 0))

	s.Logger.Infof("Serving %s MCP tools on stdio", ServerName)
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handle(name string, op func(context.Context) vibe.Result) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.Logger.Debugf("tool call: %s", name)
		return toResult(op(ctx)), nil
	}
}

func (s *Server) stop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg := req.GetString(argCommitMessage, "")
	if msg == "" {
		return mcp.NewToolResultError("commit_message is required and must be a non-empty string"), nil
	}

	s.Logger.Debugf("tool call: %s", StopVibing)
	return toResult(s.flow.Stop(ctx, msg)), nil
}

// toResult flags failed operations as tool errors. Blocked starts (Dirty)
// aren't errors: they carry guidance.
func toResult(res vibe.Result) *mcp.CallToolResult {
	if res.Err != nil {
		return mcp.NewToolResultError(res.String())
	}
	return mcp.NewToolResultText(res.String())
}
