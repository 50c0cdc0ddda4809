package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWorkspace_CreatesConfig(t *testing.T) {
	dir := t.TempDir()
	if err := initWorkspace(dir, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "bfrun.yaml"))
	if err != nil {
		t.Fatalf("bfrun.yaml not created: %v", err)
	}
	content := string(data)
	for _, want := range []string{"animal:", "secret:", "collector_url:", "branch:", "build_root:"} {
		if !strings.Contains(content, want) {
			t.Errorf("bfrun.yaml missing field %q", want)
		}
	}
}

func TestInitWorkspace_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bfrun.yaml")
	if err := os.WriteFile(path, []byte("branch: mine\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := initWorkspace(dir, false); err == nil {
		t.Fatal("expected error when bfrun.yaml already exists")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "branch: mine\n" {
		t.Error("existing bfrun.yaml was modified without --force")
	}
}

func TestInitWorkspace_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bfrun.yaml")
	if err := os.WriteFile(path, []byte("branch: mine\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := initWorkspace(dir, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "collector_url:") {
		t.Error("bfrun.yaml not replaced with --force")
	}
}
