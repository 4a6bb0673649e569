// Package server runs git operations through the compaction pipeline and
// registers them as MCP tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonchun/gitguard/decode"
	"github.com/jonchun/gitguard/gitcmd"
	"github.com/jonchun/gitguard/manifest"
	"github.com/jonchun/gitguard/output"
	"github.com/jonchun/gitguard/parser"
	"github.com/jonchun/gitguard/probe"
	"github.com/jonchun/gitguard/response"
	"github.com/jonchun/gitguard/ssh"
	"github.com/jonchun/gitguard/validator"
)

// Executor runs git on the local machine.
type Executor interface {
	Run(ctx context.Context, inv gitcmd.Invocation) (output.CommandResult, error)
	ResolveDir(ctx context.Context, dir string) (string, error)
}

// RemoteExecutor runs git on hosts reached over SSH.
type RemoteExecutor interface {
	Connect(ctx context.Context, params ssh.ConnectionParams) error
	ExecuteRaw(ctx context.Context, host, command string, timeout time.Duration) (ssh.ExecResult, error)
	Run(ctx context.Context, host string, inv gitcmd.Invocation) (output.CommandResult, error)
	ResolveDir(ctx context.Context, host, dir string) (string, error)
	Disconnect(host string) error
}

// ToolResult is the text handed back to the caller for one operation.
type ToolResult struct {
	Text    string
	IsError bool
	// CaptureID names the stored detailed rendering. Empty for queries.
	CaptureID string
}

type Core struct {
	Registry  map[string]*manifest.Manifest
	Local     Executor
	Remote    RemoteExecutor
	Formatter output.Formatter
	Store     *response.Store

	Parse    func(string) ([]string, error)
	Validate func([]string, map[string]*manifest.Manifest) (*manifest.Manifest, error)

	// DefaultTimeout is in seconds.
	DefaultTimeout int
	GitBinary      string
	LogFormat      decode.LogFormat

	logger         *slog.Logger
	mu             sync.RWMutex
	probeState     map[string]probe.Result
	connectedHosts map[string]struct{}
}

type CoreOption func(*Core)

func WithDefaultTimeout(seconds int) CoreOption {
	return func(c *Core) { c.DefaultTimeout = seconds }
}

func WithGitBinary(binary string) CoreOption {
	return func(c *Core) { c.GitBinary = binary }
}

func WithBudgets(b output.Budgets) CoreOption {
	return func(c *Core) { c.Formatter = output.NewFormatter(b) }
}

func WithRemote(remote RemoteExecutor) CoreOption {
	return func(c *Core) { c.Remote = remote }
}

// WithStore shares s between cores. Each Core otherwise owns a fresh Store.
func WithStore(s *response.Store) CoreOption {
	return func(c *Core) { c.Store = s }
}

func NewCore(registry map[string]*manifest.Manifest, local Executor, logger *slog.Logger, opts ...CoreOption) *Core {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Core{
		Registry:       registry,
		Local:          local,
		Formatter:      output.NewFormatter(output.DefaultBudgets),
		Store:          response.NewStore(),
		Parse:          parser.ParseArgs,
		Validate:       validator.ValidateArgs,
		DefaultTimeout: 30,
		GitBinary:      gitcmd.DefaultBinary,
		LogFormat:      decode.DefaultLogFormat,
		logger:         logger,
		probeState:     make(map[string]probe.Result),
		connectedHosts: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// target names where an operation runs.
type target struct {
	cwd  string
	host string
}

// summarizer turns raw stdout into the text the formatter renders.
type summarizer func(stdout string) string

// run executes args in t and pushes the result through decode, format and
// store. It returns the preview rendering.
func (c *Core) run(ctx context.Context, op string, t target, args []string, timeout time.Duration, summarize summarizer) (ToolResult, error) {
	start := time.Now()
	argv := append([]string{c.gitBinary()}, args...)

	dir, err := c.resolveDir(ctx, t)
	if err != nil {
		c.logOutcome(ctx, op, argv, t, "error", start, "stage", "resolve_dir", "error", err.Error())
		return ToolResult{}, fmt.Errorf("resolve working directory: %w", err)
	}

	inv := gitcmd.Invocation{Binary: c.gitBinary(), Args: args, Dir: dir, Timeout: timeout}
	res, err := c.execute(ctx, t.host, inv)
	if err != nil {
		c.logOutcome(ctx, op, argv, t, "error", start, "stage", "run", "error", err.Error())
		return ToolResult{}, fmt.Errorf("run git %s: %w", args[0], err)
	}

	var opts []output.FormatOption
	if summarize != nil {
		opts = append(opts, output.WithStdout(summarize(res.Stdout)))
	}
	formatted := c.Formatter.Format(argv, res, opts...)
	stored := c.Store.Put(argv, formatted.Detailed, res)

	outcome := "success"
	if formatted.IsError {
		outcome = "tool_error"
	}
	c.logOutcome(ctx, op, argv, t, outcome, start,
		"exit_code", exitCodeAttr(res.ExitCode),
		"preview_truncated", formatted.PreviewTruncated,
		"capture_id", stored.ID,
	)

	return ToolResult{Text: formatted.Preview, IsError: formatted.IsError, CaptureID: stored.ID}, nil
}

func (c *Core) resolveDir(ctx context.Context, t target) (string, error) {
	if t.host == "" {
		if c.Local == nil {
			return "", errors.New("local execution is not configured")
		}
		return c.Local.ResolveDir(ctx, t.cwd)
	}
	if err := c.requireConnected(t.host); err != nil {
		return "", err
	}
	return c.Remote.ResolveDir(ctx, t.host, t.cwd)
}

func (c *Core) execute(ctx context.Context, host string, inv gitcmd.Invocation) (output.CommandResult, error) {
	if host == "" {
		return c.Local.Run(ctx, inv)
	}
	return c.Remote.Run(ctx, host, inv)
}

func (c *Core) requireConnected(host string) error {
	if c.Remote == nil {
		return errors.New("remote execution is not configured")
	}
	if !c.isConnected(host) {
		return fmt.Errorf("not connected to host %q; call connect first", host)
	}
	return nil
}

// reject logs a validation failure for op and returns err unchanged.
func (c *Core) reject(ctx context.Context, op string, argv []string, t target, start time.Time, stage string, err error) error {
	c.logOutcome(ctx, op, argv, t, "rejected", start, "stage", stage, "error", err.Error())
	return err
}

func (c *Core) logOutcome(ctx context.Context, op string, argv []string, t target, outcome string, start time.Time, attrs ...any) {
	base := []any{
		"args", argv,
		"cwd", t.cwd,
		"host", t.host,
		"outcome", outcome,
	}
	base = append(base, attrs...)
	base = append(base, "duration_ms", time.Since(start).Milliseconds())
	c.logger.InfoContext(ctx, op, base...)
}

func exitCodeAttr(code *int) any {
	if code == nil {
		return "signal"
	}
	return *code
}

func (c *Core) gitBinary() string {
	if c.GitBinary == "" {
		return gitcmd.DefaultBinary
	}
	return c.GitBinary
}

func (c *Core) defaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// timeoutFor returns the larger of the default timeout and m's own.
func (c *Core) timeoutFor(m *manifest.Manifest) time.Duration {
	d := c.defaultTimeout()
	if m != nil && m.TimeoutDuration() > d {
		return m.TimeoutDuration()
	}
	return d
}

func (c *Core) connectedHostsSnapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hosts := make([]string, 0, len(c.connectedHosts))
	for host := range c.connectedHosts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

func (c *Core) isConnected(host string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.connectedHosts[host]
	return ok
}

func (c *Core) setConnected(host string, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if connected {
		c.connectedHosts[host] = struct{}{}
		return
	}
	delete(c.connectedHosts, host)
}

func (c *Core) setProbeState(host string, result probe.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeState[host] = result
}

// ProbeState returns the capability probe recorded when host connected.
func (c *Core) ProbeState(host string) (probe.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.probeState[host]
	return result, ok
}

func (c *Core) clearHostState(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if host == "" {
		clear(c.connectedHosts)
		clear(c.probeState)
		return
	}
	delete(c.connectedHosts, host)
	delete(c.probeState, host)
}
