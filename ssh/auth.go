package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// defaultKeyPaths lists ~/.ssh private keys in preference order. DSA keys
// are not tried.
func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	sshDir := filepath.Join(home, ".ssh")
	return []string{
		filepath.Join(sshDir, "id_ed25519"),
		filepath.Join(sshDir, "id_ecdsa"),
		filepath.Join(sshDir, "id_rsa"),
	}
}

// loadPrivateKey returns nil for missing, unreadable, unparseable or
// passphrase-protected keys.
func loadPrivateKey(path string) gossh.Signer {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := gossh.ParsePrivateKey(key)
	if err != nil {
		return nil
	}
	return signer
}

func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// buildAuthMethods returns the auth chain for params and a cleanup func that
// releases the agent connection, if one was opened. The cleanup is never nil.
//
// Order: explicit identity file (errors are fatal), ssh-agent from
// SSH_AUTH_SOCK, then default key paths (errors skipped).
func buildAuthMethods(params ConnectionParams) ([]gossh.AuthMethod, func(), error) {
	cleanup := func() {}
	methods, err := buildAuthMethodsWithDefaults(params, defaultKeyPaths())
	if err != nil {
		return nil, cleanup, err
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, dialErr := net.Dial("unix", sock); dialErr == nil {
			cleanup = func() { _ = conn.Close() }
			agentMethod := gossh.PublicKeysCallback(agent.NewClient(conn).Signers)
			if params.IdentityFile != "" && len(methods) > 0 {
				methods = append(methods[:1], append([]gossh.AuthMethod{agentMethod}, methods[1:]...)...)
			} else {
				methods = append([]gossh.AuthMethod{agentMethod}, methods...)
			}
		}
	}
	return methods, cleanup, nil
}

func buildAuthMethodsWithDefaults(params ConnectionParams, defaults []string) ([]gossh.AuthMethod, error) {
	var methods []gossh.AuthMethod
	tried := make(map[string]struct{})

	if params.IdentityFile != "" {
		tried[normalizePath(params.IdentityFile)] = struct{}{}

		key, err := os.ReadFile(params.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := gossh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse identity key: %w", err)
		}
		methods = append(methods, gossh.PublicKeys(signer))
	}

	for _, path := range defaults {
		norm := normalizePath(path)
		if _, ok := tried[norm]; ok {
			continue
		}
		tried[norm] = struct{}{}

		if signer := loadPrivateKey(path); signer != nil {
			methods = append(methods, gossh.PublicKeys(signer))
		}
	}

	return methods, nil
}
