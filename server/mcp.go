package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ServerOptions struct {
	// Name is the MCP server implementation name. Default: "gitguard".
	Name string
	// Version is the MCP server implementation version. Default: "0.1.0".
	Version string
}

func textResult(r ToolResult) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: r.Text}},
		IsError: r.IsError,
	}
}

// gitTool adapts a Core operation to an MCP tool handler.
func gitTool[In any](op func(context.Context, In) (ToolResult, error)) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		res, err := op(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		return textResult(res), nil, nil
	}
}

func readOnly() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{ReadOnlyHint: true}
}

func NewMCPServer(core *Core, logger *slog.Logger, opts ...ServerOptions) *mcp.Server {
	name := "gitguard"
	version := "0.1.0"
	if len(opts) > 0 {
		if opts[0].Name != "" {
			name = opts[0].Name
		}
		if opts[0].Version != "" {
			version = opts[0].Version
		}
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, &mcp.ServerOptions{Logger: logger})

	detail := fmt.Sprintf("The preview is bounded to about %d tokens of stdout; the full rendering is kept for query_output.",
		core.Formatter.Budgets.PreviewStdout)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_status",
		Description: "Summarize the working tree: branch, upstream, staged, unstaged, untracked and conflicted files. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Status))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_diff",
		Description: "Show changes as per-file line counts followed by the patch. Use staged for the index, or base/target for revisions. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Diff))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_log",
		Description: "List commits one per line with hash, date, author, refs and subject. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Log))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_branches",
		Description: "List branches by most recent commit with upstream tracking state. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Branches))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_blame",
		Description: "Annotate lines of a file with the commit, author and date that last changed them. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Blame))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_conflicts",
		Description: "List unmerged paths with their base, ours and theirs blobs. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Conflicts))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_show",
		Description: "Show a commit, tag or tree with its diffstat and patch. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Show))

	mcp.AddTool(srv, &mcp.Tool{
		Name: "git_command",
		Description: "Run a read-only git command given as an argument string, e.g. 'log --oneline -n 5'. " +
			"Arguments are parsed without a shell and checked against an allowlist; commands that modify the repository are refused with a reason. " +
			"Use the cwd parameter instead of -C. " + detail,
		Annotations: readOnly(),
	}, gitTool(core.Command))

	mcp.AddTool(srv, &mcp.Tool{
		Name: "query_output",
		Description: fmt.Sprintf("Search the full rendering of the most recent git operation without running git again. "+
			"Returns matching lines, or the whole rendering when text is empty, bounded to about %d tokens.", core.Formatter.Budgets.Detail),
		Annotations: readOnly(),
	}, gitTool(core.QueryOutput))

	mcp.AddTool(srv, &mcp.Tool{Name: "connect", Description: "Connect to a remote host via SSH so git operations can run there with the host parameter"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in ConnectInput) (*mcp.CallToolResult, map[string]any, error) {
			out, err := core.Connect(ctx, in)
			return nil, out, err
		})

	mcp.AddTool(srv, &mcp.Tool{Name: "disconnect", Description: "Disconnect from remote host(s)"},
		func(_ context.Context, _ *mcp.CallToolRequest, in DisconnectInput) (*mcp.CallToolResult, map[string]any, error) {
			out, err := core.Disconnect(in)
			return nil, out, err
		})

	return srv
}

func RunStdio(ctx context.Context, core *Core, logger *slog.Logger, opts ...ServerOptions) error {
	server := NewMCPServer(core, logger, opts...)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("run mcp stdio server: %w", err)
	}
	return nil
}

// NewHTTPHandler returns an http.Handler serving MCP over SSE.
func NewHTTPHandler(core *Core, logger *slog.Logger, opts ...ServerOptions) http.Handler {
	srv := NewMCPServer(core, logger, opts...)
	return mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
		return srv
	}, nil)
}
