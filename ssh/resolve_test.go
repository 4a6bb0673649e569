package ssh

import (
	"os"
	"path/filepath"
	"testing"
)

func tempSSHConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp ssh config: %v", err)
	}
	return path
}

const testSSHConfig = `
Host gitbox
    HostName 10.0.0.1
    User git
    Port 2222
    IdentityFile ~/.ssh/gitbox_ed25519
    IdentityFile /etc/keys/fallback

Host *.builds.internal
    User ci
    Port 2200

Host badport
    Port nope

Host lab
    HostName 10.0.0.9
    StrictHostKeyChecking no
    UserKnownHostsFile ~/.ssh/lab_known_hosts /dev/null

Host pinned
    StrictHostKeyChecking yes
`

func TestResolve(t *testing.T) {
	r := newResolver(tempSSHConfig(t, testSSHConfig))
	home, _ := os.UserHomeDir()

	tests := []struct {
		alias string
		want  hostAlias
	}{
		{"gitbox", hostAlias{HostName: "10.0.0.1", User: "git", Port: 2222, IdentityFiles: []string{filepath.Join(home, ".ssh/gitbox_ed25519"), "/etc/keys/fallback"}}},
		{"x.builds.internal", hostAlias{User: "ci", Port: 2200}},
		{"badport", hostAlias{}},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			got := r.resolve(tt.alias)
			if got.HostName != tt.want.HostName || got.User != tt.want.User || got.Port != tt.want.Port {
				t.Fatalf("resolve(%q) = %+v, want %+v", tt.alias, got, tt.want)
			}
			if home != "" && len(tt.want.IdentityFiles) > 0 {
				if len(got.IdentityFiles) != len(tt.want.IdentityFiles) || got.IdentityFiles[0] != tt.want.IdentityFiles[0] {
					t.Fatalf("IdentityFiles = %v, want %v", got.IdentityFiles, tt.want.IdentityFiles)
				}
			}
		})
	}
}

func TestResolveMissingOrBrokenConfig(t *testing.T) {
	for _, r := range []*resolver{
		newResolver(filepath.Join(t.TempDir(), "missing")),
		newResolver(tempSSHConfig(t, "Host \"unterminated\n  = = =\n")),
	} {
		if got := r.resolve("anything"); got.HostName != "" || got.Port != 0 {
			t.Fatalf("resolve() = %+v, want empty", got)
		}
	}
}

func TestApplyResolved(t *testing.T) {
	r := newResolver(tempSSHConfig(t, testSSHConfig))

	filled := applyResolved(ConnectionParams{Host: "gitbox"}, r)
	if filled.Host != "10.0.0.1" || filled.User != "git" || filled.Port != 2222 || filled.IdentityFile == "" {
		t.Fatalf("applyResolved() = %+v", filled)
	}

	explicit := applyResolved(ConnectionParams{Host: "gitbox", User: "me", Port: 22, IdentityFile: "/k"}, r)
	if explicit.Host != "10.0.0.1" || explicit.User != "me" || explicit.Port != 22 || explicit.IdentityFile != "/k" {
		t.Fatalf("explicit params overridden: %+v", explicit)
	}

	unknown := applyResolved(ConnectionParams{Host: "other.example.com"}, r)
	if unknown.Host != "other.example.com" || unknown.User != "" || unknown.Port != 0 {
		t.Fatalf("applyResolved() for unknown host = %+v", unknown)
	}
}

func TestResolveHostKeySettings(t *testing.T) {
	r := newResolver(tempSSHConfig(t, testSSHConfig))
	home, _ := os.UserHomeDir()

	lab := r.resolve("lab")
	if lab.HostKeyMode != HostKeyOff {
		t.Fatalf("lab HostKeyMode = %q, want %q", lab.HostKeyMode, HostKeyOff)
	}
	if home != "" {
		if got, want := lab.KnownHosts, filepath.Join(home, ".ssh/lab_known_hosts"); got != want {
			t.Fatalf("lab KnownHosts = %q, want %q", got, want)
		}
	}

	if got := r.resolve("pinned").HostKeyMode; got != HostKeyStrict {
		t.Fatalf("pinned HostKeyMode = %q, want %q", got, HostKeyStrict)
	}
	if got := r.resolve("gitbox"); got.HostKeyMode != "" || got.KnownHosts != "" {
		t.Fatalf("gitbox host key settings = %q %q, want unset", got.HostKeyMode, got.KnownHosts)
	}

	params := applyResolved(ConnectionParams{Host: "lab"}, r)
	if params.HostKeyMode != HostKeyOff || params.KnownHostsFile == "" {
		t.Fatalf("applyResolved(lab) = %+v", params)
	}
	explicit := applyResolved(ConnectionParams{Host: "lab", HostKeyMode: HostKeyStrict}, r)
	if explicit.HostKeyMode != HostKeyStrict {
		t.Fatalf("explicit HostKeyMode overridden: %+v", explicit)
	}
}

func TestConnectUsesSSHConfigResolution(t *testing.T) {
	r := newResolver(tempSSHConfig(t, testSSHConfig))
	d := &mockDialer{client: &mockClient{}}
	m := NewSSHManager(d)
	m.resolveConfig = func(p ConnectionParams) ConnectionParams { return applyResolved(p, r) }

	if err := m.Connect(t.Context(), ConnectionParams{Host: "gitbox"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got, want := d.params[0].Host, "10.0.0.1"; got != want {
		t.Fatalf("dialed Host = %q, want %q", got, want)
	}
	if _, err := m.ResolveConnection("gitbox"); err != nil {
		t.Fatalf("connection not stored under alias: %v", err)
	}
	if _, err := m.ResolveConnection("10.0.0.1"); err == nil {
		t.Fatal("connection should not be stored under the resolved address")
	}
}

func TestConnectCarriesSSHConfigHostKeySettings(t *testing.T) {
	r := newResolver(tempSSHConfig(t, testSSHConfig))
	d := &mockDialer{client: &mockClient{}}
	m := NewSSHManager(d)
	m.resolveConfig = func(p ConnectionParams) ConnectionParams { return applyResolved(p, r) }

	if err := m.Connect(t.Context(), ConnectionParams{Host: "lab"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := d.params[0].HostKeyMode; got != HostKeyOff {
		t.Fatalf("dialed HostKeyMode = %q, want %q", got, HostKeyOff)
	}
}
