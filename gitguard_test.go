package gitguard_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonchun/gitguard"
	"github.com/jonchun/gitguard/manifest"
	"github.com/jonchun/gitguard/output"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "gitguard")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewWithDefaults(t *testing.T) {
	isolateConfig(t)
	core, err := gitguard.New(gitguard.Config{})
	if err != nil {
		t.Fatalf("New() with defaults: %v", err)
	}
	if core.Local == nil || core.Remote == nil {
		t.Fatal("New() should create local and remote executors")
	}
	if _, ok := core.Registry["log"]; !ok {
		t.Fatal("embedded registry should include log")
	}
	if got, want := core.Formatter.Budgets, output.DefaultBudgets; got != want {
		t.Fatalf("Budgets = %+v, want %+v", got, want)
	}
	if got, want := core.DefaultTimeout, 30; got != want {
		t.Fatalf("DefaultTimeout = %d, want %d", got, want)
	}
}

func TestNewWithCustomManifests(t *testing.T) {
	isolateConfig(t)
	core, err := gitguard.New(gitguard.Config{
		Manifests: map[string]*manifest.Manifest{
			"log": {Name: "log", Description: "history"},
		},
	})
	if err != nil {
		t.Fatalf("New() with custom manifests: %v", err)
	}
	if got, want := len(core.Registry), 1; got != want {
		t.Fatalf("len(Registry) = %d, want %d", got, want)
	}
}

func TestNewWithLogger(t *testing.T) {
	isolateConfig(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	core, err := gitguard.New(gitguard.Config{Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if core.Logger() != logger {
		t.Fatal("New() should pass the logger to Core")
	}
}

func TestNew_WithConfigFile(t *testing.T) {
	dir := isolateConfig(t)
	writeConfig(t, dir, `timeout: 60
git_binary: /opt/git/bin/git
budgets:
  preview_stdout: 800
  detail: 4000
`)

	core, err := gitguard.New(gitguard.Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got, want := core.DefaultTimeout, 60; got != want {
		t.Fatalf("DefaultTimeout = %d, want %d", got, want)
	}
	if got, want := core.GitBinary, "/opt/git/bin/git"; got != want {
		t.Fatalf("GitBinary = %q, want %q", got, want)
	}
	b := core.Formatter.Budgets
	if b.PreviewStdout != 800 || b.Detail != 4000 {
		t.Fatalf("Budgets = %+v, want preview_stdout 800 and detail 4000", b)
	}
	if got, want := b.FailureStderr, output.DefaultBudgets.FailureStderr; got != want {
		t.Fatalf("FailureStderr = %d, want default %d", got, want)
	}
}

func TestNew_ManifestDirOverlay(t *testing.T) {
	dir := isolateConfig(t)
	manifests := t.TempDir()
	if err := os.WriteFile(filepath.Join(manifests, "grep.yaml"), []byte("name: grep\ndeny: true\nreason: disabled here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "manifest_dir: "+manifests+"\n")

	core, err := gitguard.New(gitguard.Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if m := core.Registry["grep"]; m == nil || !m.Deny {
		t.Fatalf("grep = %+v, want denied by overlay", m)
	}
	if _, ok := core.Registry["status"]; !ok {
		t.Fatal("overlay should keep embedded entries")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	dir := isolateConfig(t)
	writeConfig(t, dir, "budgets:\n  detail: 0\n")

	if _, err := gitguard.New(gitguard.Config{}); err == nil {
		t.Fatal("New() should fail on an invalid config")
	}
}

func TestNewHTTPHandler(t *testing.T) {
	isolateConfig(t)
	h, err := gitguard.NewHTTPHandler(gitguard.Config{})
	if err != nil {
		t.Fatalf("NewHTTPHandler() error = %v", err)
	}
	if h == nil {
		t.Fatal("NewHTTPHandler() returned nil")
	}
}
