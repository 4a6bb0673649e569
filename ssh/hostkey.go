package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyMode selects how remote git hosts are verified.
type HostKeyMode string

const (
	// HostKeyAcceptNew records unknown hosts on first connect and rejects
	// later key changes.
	HostKeyAcceptNew HostKeyMode = "accept-new"
	// HostKeyStrict only accepts hosts already in known_hosts.
	HostKeyStrict HostKeyMode = "strict"
	HostKeyOff    HostKeyMode = "off"
)

// ValidHostKeyMode reports whether mode names a HostKeyMode.
func ValidHostKeyMode(mode string) bool {
	switch HostKeyMode(mode) {
	case HostKeyAcceptNew, HostKeyStrict, HostKeyOff:
		return true
	}
	return false
}

// modeFromSSHConfig maps an ssh_config StrictHostKeyChecking value. "ask"
// has no prompt to fall back on here, so it is treated as strict.
func modeFromSSHConfig(value string) (HostKeyMode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "ask":
		return HostKeyStrict, true
	case "accept-new":
		return HostKeyAcceptNew, true
	case "no", "off":
		return HostKeyOff, true
	}
	return "", false
}

// HostKeyError reports a git host whose key no longer matches known_hosts.
// It is never retried.
type HostKeyError struct {
	Host       string
	KnownHosts string
}

func (e *HostKeyError) Error() string {
	return fmt.Sprintf("host key for %s does not match %s; refusing to run git there until the stale entry is removed",
		e.Host, e.KnownHosts)
}

// hostKeyPolicy is the verification applied to one connection: the dialer's
// configured mode and file, overridden per host by ssh_config.
type hostKeyPolicy struct {
	mode       HostKeyMode
	knownHosts string
}

// forHost overlays the host's own StrictHostKeyChecking and
// UserKnownHostsFile settings carried in params.
func (p hostKeyPolicy) forHost(params ConnectionParams) hostKeyPolicy {
	if params.HostKeyMode != "" {
		p.mode = params.HostKeyMode
	}
	if params.KnownHostsFile != "" {
		p.knownHosts = params.KnownHostsFile
	}
	if p.mode == "" {
		p.mode = HostKeyAcceptNew
	}
	return p
}

func (p hostKeyPolicy) callback() (gossh.HostKeyCallback, error) {
	if p.mode == HostKeyOff {
		return gossh.InsecureIgnoreHostKey(), nil
	}

	path := p.knownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	if p.mode == HostKeyStrict {
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("strict host key verification needs a readable known_hosts: %w", err)
		}
		return cb, nil
	}
	return (&firstUseTrust{path: path}).check, nil
}

// firstUseTrust accepts and records keys for hosts absent from its
// known_hosts file and rejects keys that differ from a recorded one.
type firstUseTrust struct {
	mu   sync.Mutex
	path string
}

func (f *firstUseTrust) check(hostname string, remote net.Addr, key gossh.PublicKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); err != nil {
		return f.record(hostname, key)
	}
	checker, err := knownhosts.New(f.path)
	if err != nil {
		return fmt.Errorf("loading known_hosts: %w", err)
	}
	verifyErr := checker(hostname, remote, key)
	if verifyErr == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(verifyErr, &keyErr) {
		return fmt.Errorf("host key verification: %w", verifyErr)
	}
	if len(keyErr.Want) > 0 {
		return &HostKeyError{Host: hostname, KnownHosts: f.path}
	}
	return f.record(hostname, key)
}

func (f *firstUseTrust) record(hostname string, key gossh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating known_hosts directory: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening known_hosts: %w", err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(file, line); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing known_hosts entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing known_hosts: %w", err)
	}
	return nil
}
