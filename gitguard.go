// Package gitguard is an MCP server giving LLM agents compact, read-only views
// of git repositories on the local machine or over SSH.
package gitguard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonchun/gitguard/config"
	"github.com/jonchun/gitguard/localexec"
	"github.com/jonchun/gitguard/manifest"
	"github.com/jonchun/gitguard/output"
	"github.com/jonchun/gitguard/server"
	"github.com/jonchun/gitguard/ssh"
)

type Config struct {
	// Manifests is the git sub-command registry. If nil, the built-in
	// defaults are loaded.
	Manifests map[string]*manifest.Manifest

	// Local runs git on this machine. If nil, a localexec.Runner rooted at
	// the configured repo_dir is created.
	Local server.Executor

	// Remote runs git over SSH. If nil, an ssh.SSHManager with the default
	// dialer is created.
	Remote server.RemoteExecutor

	// Logger is the structured logger passed to Core. If nil, a discard logger is used.
	Logger *slog.Logger

	// Name overrides the MCP server implementation name (default: "gitguard").
	Name string

	// Version overrides the MCP server implementation version (default: "0.1.0").
	Version string
}

// New builds a Core, loading manifests, budgets and SSH settings from the
// user config.
func New(cfg Config) (*server.Core, error) {
	userCfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}

	registry := cfg.Manifests
	if registry == nil {
		registry, err = manifest.LoadEmbedded()
		if err != nil {
			return nil, fmt.Errorf("load embedded manifests: %w", err)
		}
	}

	if userCfg.ManifestDir != nil {
		userManifests, err := manifest.LoadDir(*userCfg.ManifestDir)
		if err != nil {
			return nil, fmt.Errorf("load user manifests from %s: %w", *userCfg.ManifestDir, err)
		}
		registry = manifest.Merge(registry, userManifests)
	}

	local := cfg.Local
	if local == nil {
		repoDir := ""
		if userCfg.RepoDir != nil {
			repoDir = *userCfg.RepoDir
		}
		local = localexec.New(repoDir)
	}

	remote := cfg.Remote
	if remote == nil {
		remote = ssh.NewSSHManager(nil, sshOptions(userCfg.SSH)...)
	}

	coreOpts := []server.CoreOption{
		server.WithRemote(remote),
		server.WithBudgets(budgets(userCfg.Budgets)),
	}
	if userCfg.Timeout != nil {
		coreOpts = append(coreOpts, server.WithDefaultTimeout(*userCfg.Timeout))
	}
	if userCfg.GitBinary != nil {
		coreOpts = append(coreOpts, server.WithGitBinary(*userCfg.GitBinary))
	}

	return server.NewCore(registry, local, cfg.Logger, coreOpts...), nil
}

func sshOptions(c *config.SSHConfig) []ssh.Option {
	if c == nil {
		return nil
	}
	var opts []ssh.Option
	if c.Retries != nil {
		opts = append(opts, ssh.WithRetries(*c.Retries))
	}
	if c.RetryBackoff != nil {
		opts = append(opts, ssh.WithRetryBackoff(c.RetryBackoff.Duration()))
	}
	if c.ConnectTimeout != nil {
		opts = append(opts, ssh.WithConnectTimeout(c.ConnectTimeout.Duration()))
	}
	if c.HostKeyChecking != nil {
		opts = append(opts, ssh.WithHostKeyChecking(ssh.HostKeyMode(*c.HostKeyChecking)))
	}
	if c.KnownHostsFile != nil {
		opts = append(opts, ssh.WithKnownHostsFile(*c.KnownHostsFile))
	}
	return opts
}

// budgets overlays the configured token budgets on the defaults.
func budgets(c *config.BudgetsConfig) output.Budgets {
	b := output.DefaultBudgets
	if c == nil {
		return b
	}
	for _, f := range []struct {
		src *int
		dst *int
	}{
		{c.PreviewStdout, &b.PreviewStdout},
		{c.PreviewStderr, &b.PreviewStderr},
		{c.FailureStdout, &b.FailureStdout},
		{c.FailureStderr, &b.FailureStderr},
		{c.Detail, &b.Detail},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return b
}

func (cfg Config) serverOptions() server.ServerOptions {
	return server.ServerOptions{Name: cfg.Name, Version: cfg.Version}
}

// RunStdio creates a server from cfg and runs it over stdin/stdout.
func RunStdio(ctx context.Context, cfg Config) error {
	core, err := New(cfg)
	if err != nil {
		return err
	}
	return server.RunStdio(ctx, core, cfg.Logger, cfg.serverOptions())
}

// NewHTTPHandler creates a server from cfg and serves it over SSE.
func NewHTTPHandler(cfg Config) (http.Handler, error) {
	core, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return server.NewHTTPHandler(core, cfg.Logger, cfg.serverOptions()), nil
}
