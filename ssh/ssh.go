// Package ssh runs git on remote hosts and resolves remote working
// directories over SFTP.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"

	"github.com/jonchun/gitguard/gitcmd"
	"github.com/jonchun/gitguard/output"
)

type ExecResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Signal    string
	RuntimeMs int
}

// CommandResult converts r, leaving the exit code unset when the remote
// process was terminated by a signal.
func (r ExecResult) CommandResult(dir string) output.CommandResult {
	res := output.CommandResult{
		Stdout:           r.Stdout,
		Stderr:           r.Stderr,
		DurationMs:       int64(r.RuntimeMs),
		WorkingDirectory: dir,
	}
	if r.Signal == "" {
		res.ExitCode = output.ExitStatus(r.ExitCode)
	}
	return res
}

type SFTPClient interface {
	Stat(path string) (os.FileInfo, error)
	RealPath(path string) (string, error)
	Close() error
}

type Client interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (ExecResult, error)
	SFTPSession() (SFTPClient, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, params ConnectionParams) (Client, error)
}

type ConnectionParams struct {
	Host           string
	User           string
	Port           int
	IdentityFile   string
	// HostKeyMode and KnownHostsFile override the dialer's settings for
	// this host. They come from ssh_config when unset by the caller.
	HostKeyMode    HostKeyMode
	KnownHostsFile string
}

type ManagedConnection struct {
	Client Client
	Params ConnectionParams
}

type SSHManager struct {
	mu            sync.Mutex
	dialer        Dialer
	connections   map[string]*ManagedConnection
	retries       int
	backoff       time.Duration
	resolveConfig func(ConnectionParams) ConnectionParams
}

type Option func(*SSHManager)

func WithRetries(retries int) Option {
	return func(m *SSHManager) {
		if retries >= 0 {
			m.retries = retries
		}
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(m *SSHManager) {
		if d, ok := m.dialer.(*XCryptoDialer); ok {
			d.ConnectTimeout = timeout
		}
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(m *SSHManager) {
		if backoff > 0 {
			m.backoff = backoff
		}
	}
}

func WithHostKeyChecking(mode HostKeyMode) Option {
	return func(m *SSHManager) {
		if d, ok := m.dialer.(*XCryptoDialer); ok {
			d.HostKeyMode = mode
		}
	}
}

func WithKnownHostsFile(path string) Option {
	return func(m *SSHManager) {
		if d, ok := m.dialer.(*XCryptoDialer); ok {
			d.KnownHostsFile = path
		}
	}
}

func NewSSHManager(dialer Dialer, opts ...Option) *SSHManager {
	if dialer == nil {
		dialer = &XCryptoDialer{}
	}
	m := &SSHManager{
		dialer:        dialer,
		connections:   make(map[string]*ManagedConnection),
		retries:       2,
		backoff:       250 * time.Millisecond,
		resolveConfig: defaultApplySSHConfig,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SSHManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections) > 0
}

// Connect dials params.Host, resolving it through ~/.ssh/config first. The
// connection is stored under the name the caller used.
func (m *SSHManager) Connect(ctx context.Context, params ConnectionParams) error {
	if params.Host == "" {
		return errors.New("host is required")
	}
	origHost := params.Host
	if m.resolveConfig != nil {
		params = m.resolveConfig(params)
	}
	params = withDefaults(params)

	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		client, err := m.dialer.Dial(ctx, params)
		if err == nil {
			m.mu.Lock()
			if prev := m.connections[origHost]; prev != nil && prev.Client != nil {
				_ = prev.Client.Close()
			}
			m.connections[origHost] = &ManagedConnection{Client: client, Params: params}
			m.mu.Unlock()
			return nil
		}
		lastErr = err

		if !isRetriable(err) || attempt == m.retries {
			break
		}
		if sleepErr := sleepWithContext(ctx, m.backoff*time.Duration(1<<attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("connect %s:%d failed: %w", params.Host, params.Port, lastErr)
}

func (m *SSHManager) ResolveConnection(host string) (*ManagedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if host != "" {
		conn := m.connections[host]
		if conn == nil {
			return nil, fmt.Errorf("not connected to host %q", host)
		}
		return conn, nil
	}

	if len(m.connections) == 0 {
		return nil, errors.New("not connected")
	}
	if len(m.connections) > 1 {
		return nil, errors.New("host is required when multiple connections are active")
	}
	for _, conn := range m.connections {
		return conn, nil
	}
	return nil, errors.New("not connected")
}

// Execute runs command, retrying transient transport failures. Only
// read-only git commands are sent through here.
func (m *SSHManager) Execute(ctx context.Context, host, command string, timeout time.Duration) (ExecResult, error) {
	conn, err := m.ResolveConnection(host)
	if err != nil {
		return ExecResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		res, err := conn.Client.Execute(ctx, command, timeout)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isRetriable(err) || attempt == m.retries {
			break
		}
		if sleepErr := sleepWithContext(ctx, m.backoff*time.Duration(1<<attempt)); sleepErr != nil {
			return ExecResult{}, sleepErr
		}
	}

	return ExecResult{}, fmt.Errorf("execute failed: %w", lastErr)
}

// ExecuteRaw runs command once without retries.
func (m *SSHManager) ExecuteRaw(ctx context.Context, host, command string, timeout time.Duration) (ExecResult, error) {
	conn, err := m.ResolveConnection(host)
	if err != nil {
		return ExecResult{}, err
	}

	res, err := conn.Client.Execute(ctx, command, timeout)
	if err != nil {
		return ExecResult{}, fmt.Errorf("execute raw failed: %w", err)
	}
	return res, nil
}

// Run executes inv on host. inv.Dir must already be resolved.
func (m *SSHManager) Run(ctx context.Context, host string, inv gitcmd.Invocation) (output.CommandResult, error) {
	res, err := m.Execute(ctx, host, RemoteCommand(inv), inv.Timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return output.CommandResult{}, fmt.Errorf("remote git timed out after %s", inv.Timeout)
		}
		return output.CommandResult{}, err
	}
	return res.CommandResult(inv.Dir), nil
}

// ResolveDir returns the canonical remote path for dir, which must be an
// existing directory. An empty dir resolves to the login directory.
func (m *SSHManager) ResolveDir(_ context.Context, host, dir string) (string, error) {
	client, err := m.SFTPSession(host)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	if dir == "" {
		dir = "."
	}
	abs, err := client.RealPath(dir)
	if err != nil {
		return "", fmt.Errorf("resolve remote directory %q: %w", dir, err)
	}
	info, err := client.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("remote directory %q: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("remote directory %q is not a directory", abs)
	}
	return abs, nil
}

func (m *SSHManager) SFTPSession(host string) (SFTPClient, error) {
	conn, err := m.ResolveConnection(host)
	if err != nil {
		return nil, err
	}
	client, err := conn.Client.SFTPSession()
	if err != nil {
		return nil, fmt.Errorf("sftp session failed: %w", err)
	}
	return client, nil
}

// Disconnect closes the connection to host, or every connection when host
// is empty.
func (m *SSHManager) Disconnect(host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if host == "" {
		for h, conn := range m.connections {
			if conn != nil && conn.Client != nil {
				_ = conn.Client.Close()
			}
			delete(m.connections, h)
		}
		return nil
	}

	conn := m.connections[host]
	if conn == nil {
		return nil
	}
	if conn.Client != nil {
		_ = conn.Client.Close()
	}
	delete(m.connections, host)
	return nil
}

func withDefaults(params ConnectionParams) ConnectionParams {
	if params.User == "" {
		params.User = "root"
	}
	if params.Port == 0 {
		params.Port = 22
	}
	return params
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var hostKeyErr *HostKeyError
	if errors.As(err, &hostKeyErr) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection reset", "broken pipe", "timeout", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

type XCryptoDialer struct {
	ConnectTimeout time.Duration
	HostKeyMode    HostKeyMode
	KnownHostsFile string
}

func (d *XCryptoDialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return 10 * time.Second
}

func (d *XCryptoDialer) hostKeyPolicy(params ConnectionParams) hostKeyPolicy {
	return hostKeyPolicy{mode: d.HostKeyMode, knownHosts: d.KnownHostsFile}.forHost(params)
}

func (d *XCryptoDialer) Dial(ctx context.Context, params ConnectionParams) (Client, error) {
	params = withDefaults(params)

	hostKeyCb, err := d.hostKeyPolicy(params).callback()
	if err != nil {
		return nil, fmt.Errorf("host key verification setup: %w", err)
	}

	authMethods, authCleanup, err := buildAuthMethods(params)
	defer authCleanup()
	if err != nil {
		return nil, err
	}

	cfg := &gossh.ClientConfig{
		User:            params.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCb,
		Timeout:         d.connectTimeout(),
	}

	addr := net.JoinHostPort(params.Host, fmt.Sprint(params.Port))
	netDialer := net.Dialer{Timeout: d.connectTimeout()}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := gossh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &xcryptoClient{client: gossh.NewClient(c, chans, reqs)}, nil
}

type xcryptoClient struct {
	client *gossh.Client
}

func (c *xcryptoClient) Execute(ctx context.Context, command string, timeout time.Duration) (ExecResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return ExecResult{}, err
	}
	defer func() { _ = session.Close() }()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	execCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-execCtx.Done():
		_ = session.Signal(gossh.SIGKILL)
		_ = session.Close()
		return ExecResult{}, execCtx.Err()
	case err := <-done:
		res := ExecResult{
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			RuntimeMs: int(time.Since(started).Milliseconds()),
		}
		if err == nil {
			return res, nil
		}
		var exitErr *gossh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			res.Signal = exitErr.Signal()
			return res, nil
		}
		return ExecResult{}, err
	}
}

func (c *xcryptoClient) Close() error {
	return c.client.Close()
}

func (c *xcryptoClient) SFTPSession() (SFTPClient, error) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, err
	}
	return client, nil
}
