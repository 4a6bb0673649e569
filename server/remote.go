package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonchun/gitguard/probe"
	"github.com/jonchun/gitguard/ssh"
)

const probeTimeout = 10 * time.Second

type ConnectInput struct {
	Host         string `json:"host" jsonschema:"Hostname, IP address or ~/.ssh/config alias"`
	User         string `json:"user,omitempty" jsonschema:"SSH username (default root)"`
	Port         int    `json:"port,omitempty" jsonschema:"SSH port (default 22)"`
	IdentityFile string `json:"identity_file,omitempty" jsonschema:"Path to SSH identity file"`
}

type DisconnectInput struct {
	Host string `json:"host,omitempty" jsonschema:"Hostname to disconnect; empty disconnects all"`
}

// Connect opens an SSH connection and probes the host for git. A failed
// probe leaves the connection usable.
func (c *Core) Connect(ctx context.Context, in ConnectInput) (map[string]any, error) {
	if strings.TrimSpace(in.Host) == "" {
		return nil, errors.New("host is required")
	}
	if c.Remote == nil {
		return nil, errors.New("remote execution is not configured")
	}

	start := time.Now()

	params := ssh.ConnectionParams{
		Host:         in.Host,
		User:         in.User,
		Port:         in.Port,
		IdentityFile: in.IdentityFile,
	}
	if err := c.Remote.Connect(ctx, params); err != nil {
		c.logger.InfoContext(ctx, "connect",
			"host", in.Host,
			"outcome", "error",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	c.setConnected(in.Host, true)

	message := fmt.Sprintf("Connected to %s. Could not determine the git version.", in.Host)
	probeRes, err := c.Remote.ExecuteRaw(ctx, in.Host, probe.BuildProbeCommand(c.gitBinary()), probeTimeout)
	if err == nil {
		result := probe.ParseProbeOutput(probeRes.Stdout)
		c.setProbeState(in.Host, result)
		message = result.Summary(in.Host)
	} else {
		c.logger.InfoContext(ctx, "probe",
			"host", in.Host,
			"outcome", "error",
			"error", err.Error(),
		)
	}

	c.logger.InfoContext(ctx, "connect",
		"host", in.Host,
		"outcome", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return map[string]any{
		"ok":              true,
		"host":            in.Host,
		"message":         message,
		"connected_hosts": c.connectedHostsSnapshot(),
	}, nil
}

func (c *Core) Disconnect(in DisconnectInput) (map[string]any, error) {
	if c.Remote == nil {
		return nil, errors.New("remote execution is not configured")
	}
	if err := c.Remote.Disconnect(in.Host); err != nil {
		c.logger.Info("disconnect",
			"host", in.Host,
			"outcome", "error",
			"error", err.Error(),
		)
		return nil, err
	}
	c.clearHostState(in.Host)

	c.logger.Info("disconnect",
		"host", in.Host,
		"outcome", "success",
	)

	return map[string]any{"ok": true, "connected_hosts": c.connectedHostsSnapshot()}, nil
}
