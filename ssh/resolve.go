package ssh

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sshconfig "github.com/kevinburke/ssh_config"
)

// hostAlias is what ~/.ssh/config says about one Host pattern.
type hostAlias struct {
	HostName      string
	User          string
	Port          int
	IdentityFiles []string
	HostKeyMode   HostKeyMode
	KnownHosts    string
}

type resolver struct {
	config *sshconfig.Config
}

// newResolver reads an ssh_config file. Missing or malformed files give a
// resolver that resolves nothing.
func newResolver(path string) *resolver {
	f, err := os.Open(path)
	if err != nil {
		return &resolver{}
	}
	defer func() { _ = f.Close() }()

	cfg, err := sshconfig.Decode(f)
	if err != nil {
		return &resolver{}
	}
	return &resolver{config: cfg}
}

func defaultResolver() *resolver {
	home, err := os.UserHomeDir()
	if err != nil {
		return &resolver{}
	}
	return newResolver(filepath.Join(home, ".ssh", "config"))
}

func (r *resolver) get(alias, key string) string {
	v, err := r.config.Get(alias, key)
	if err != nil {
		return ""
	}
	return v
}

func (r *resolver) resolve(alias string) hostAlias {
	if r.config == nil {
		return hostAlias{}
	}

	h := hostAlias{
		HostName: r.get(alias, "HostName"),
		User:     r.get(alias, "User"),
	}
	if p, err := strconv.Atoi(r.get(alias, "Port")); err == nil && p > 0 {
		h.Port = p
	}
	if files, err := r.config.GetAll(alias, "IdentityFile"); err == nil {
		for _, f := range files {
			if f != "" {
				h.IdentityFiles = append(h.IdentityFiles, expandTilde(f))
			}
		}
	}
	if mode, ok := modeFromSSHConfig(r.get(alias, "StrictHostKeyChecking")); ok {
		h.HostKeyMode = mode
	}
	// UserKnownHostsFile may list several files; the first is the one written to.
	if files := strings.Fields(r.get(alias, "UserKnownHostsFile")); len(files) > 0 {
		h.KnownHosts = expandTilde(files[0])
	}
	return h
}

// applyResolved fills unset params from the alias entry. HostName always
// replaces the alias so the dial goes to the real address.
func applyResolved(params ConnectionParams, r *resolver) ConnectionParams {
	h := r.resolve(params.Host)

	if h.HostName != "" {
		params.Host = h.HostName
	}
	if params.User == "" {
		params.User = h.User
	}
	if params.Port == 0 {
		params.Port = h.Port
	}
	if params.IdentityFile == "" && len(h.IdentityFiles) > 0 {
		params.IdentityFile = h.IdentityFiles[0]
	}
	if params.HostKeyMode == "" {
		params.HostKeyMode = h.HostKeyMode
	}
	if params.KnownHostsFile == "" {
		params.KnownHostsFile = h.KnownHosts
	}
	return params
}

func defaultApplySSHConfig(params ConnectionParams) ConnectionParams {
	return applyResolved(params, defaultResolver())
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
