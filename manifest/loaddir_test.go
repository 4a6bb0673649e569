package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDir_ValidManifests(t *testing.T) {
	dir := t.TempDir()
	content := `name: whatchanged
description: Show logs with the files each commit touched
category: history
timeout: 45
flags:
  - flag: "-n"
    description: limit the number of commits
    takes_value: true
allows_path_args: true
max_positional: 2
`
	if err := os.WriteFile(filepath.Join(dir, "whatchanged.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	if got, want := len(registry), 1; got != want {
		t.Fatalf("len(registry) = %d, want %d", got, want)
	}

	m, ok := registry["whatchanged"]
	if !ok {
		t.Fatal("registry missing key \"whatchanged\"")
	}
	if got, want := m.Name, "whatchanged"; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
	if got, want := m.Description, "Show logs with the files each commit touched"; got != want {
		t.Fatalf("Description = %q, want %q", got, want)
	}
	if got, want := m.Category, "history"; got != want {
		t.Fatalf("Category = %q, want %q", got, want)
	}
	if got, want := m.Timeout, 45; got != want {
		t.Fatalf("Timeout = %d, want %d", got, want)
	}

	if !m.AllowsPathArgs {
		t.Fatal("AllowsPathArgs = false, want true")
	}
	if m.MaxPositional == nil || *m.MaxPositional != 2 {
		t.Fatalf("MaxPositional = %v, want 2", m.MaxPositional)
	}

	f := m.GetFlag("-n")
	if f == nil {
		t.Fatal("GetFlag(\"-n\") = nil")
	}
	if !f.TakesValue {
		t.Fatal("flag TakesValue = false, want true")
	}
	if got, want := f.Description, "limit the number of commits"; got != want {
		t.Fatalf("flag Description = %q, want %q", got, want)
	}
}

func TestLoadDir_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if got, want := len(registry), 0; got != want {
		t.Fatalf("len(registry) = %d, want %d", got, want)
	}
}

func TestLoadDir_SkipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not yaml"), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if got, want := len(registry), 0; got != want {
		t.Fatalf("len(registry) = %d, want %d", got, want)
	}
}

func TestLoadDir_SkipsUnderscorePrefix(t *testing.T) {
	dir := t.TempDir()
	content := `name: notes_template
description: should be skipped
`
	if err := os.WriteFile(filepath.Join(dir, "_schema.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if got, want := len(registry), 0; got != want {
		t.Fatalf("len(registry) = %d, want %d", got, want)
	}
}

func TestLoadDir_Subdirectories(t *testing.T) {
	dir := t.TempDir()

	topContent := `name: range-diff
description: Compare two commit ranges
category: history
`
	if err := os.WriteFile(filepath.Join(dir, "range-diff.yaml"), []byte(topContent), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	deniedDir := filepath.Join(dir, "denied")
	if err := os.MkdirAll(deniedDir, 0755); err != nil {
		t.Fatalf("MkdirAll error = %v", err)
	}
	deniedContent := `name: maintenance
description: Run repository maintenance tasks
deny: true
reason: repacks and prunes objects
`
	if err := os.WriteFile(filepath.Join(deniedDir, "maintenance.yaml"), []byte(deniedContent), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	registry, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	if got, want := len(registry), 2; got != want {
		t.Fatalf("len(registry) = %d, want %d", got, want)
	}

	if _, ok := registry["range-diff"]; !ok {
		t.Fatal("registry missing key \"range-diff\"")
	}

	m, ok := registry["maintenance"]
	if !ok {
		t.Fatal("registry missing key \"maintenance\" from subdirectory")
	}
	if !m.Deny {
		t.Fatal("maintenance.Deny = false, want true")
	}
	if got, want := m.Reason, "repacks and prunes objects"; got != want {
		t.Fatalf("maintenance.Reason = %q, want %q", got, want)
	}
}

func TestLoadDir_NonexistentDir(t *testing.T) {
	_, err := LoadDir("/nonexistent/dir/that/does/not/exist")
	if err == nil {
		t.Fatal("LoadDir() should return error for nonexistent dir")
	}
}

func TestLoadDir_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(":::invalid:::yaml[[["), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatal("LoadDir() should return error for invalid YAML")
	}
}

func TestMerge(t *testing.T) {
	base := map[string]*Manifest{
		"log":    {Name: "log", Timeout: 30},
		"status": {Name: "status", Timeout: 30},
	}
	overlay := map[string]*Manifest{
		"log":  {Name: "log", Timeout: 60},
		"fsck": {Name: "fsck", Timeout: 10},
	}

	merged := Merge(base, overlay)

	if got, want := len(merged), 3; got != want {
		t.Fatalf("len(merged) = %d, want %d", got, want)
	}

	if got, want := merged["log"].Timeout, 60; got != want {
		t.Fatalf("merged[\"log\"].Timeout = %d, want %d", got, want)
	}
	if got, want := merged["status"].Timeout, 30; got != want {
		t.Fatalf("merged[\"status\"].Timeout = %d, want %d", got, want)
	}
	if _, ok := merged["fsck"]; !ok {
		t.Fatal("merged missing key \"fsck\"")
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := map[string]*Manifest{
		"blame": {Name: "blame", Timeout: 30},
		"grep":  {Name: "grep", Timeout: 30},
	}
	overlay := map[string]*Manifest{
		"blame": {Name: "blame", Timeout: 120},
		"fsck":  {Name: "fsck", Timeout: 10},
	}

	_ = Merge(base, overlay)

	if got, want := len(base), 2; got != want {
		t.Fatalf("len(base) = %d, want %d after Merge", got, want)
	}
	if _, ok := base["fsck"]; ok {
		t.Fatal("base should not contain \"fsck\" after Merge")
	}
	if got, want := base["blame"].Timeout, 30; got != want {
		t.Fatalf("base[\"blame\"].Timeout = %d, want %d after Merge", got, want)
	}

	if got, want := len(overlay), 2; got != want {
		t.Fatalf("len(overlay) = %d, want %d after Merge", got, want)
	}
}

func TestMergeOverlayCanDenyEmbedded(t *testing.T) {
	registry := mustLoadEmbedded(t)
	dir := t.TempDir()
	content := `name: grep
deny: true
reason: disabled on this host
`
	if err := os.WriteFile(filepath.Join(dir, "grep.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	overlay, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	merged := Merge(registry, overlay)
	if !merged["grep"].Deny {
		t.Fatal("overlay should deny grep")
	}
	if registry["grep"].Deny {
		t.Fatal("Merge mutated the embedded registry")
	}
}
