package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkspace(t *testing.T, root, content string) {
	t.Helper()
	wsDir := filepath.Join(root, WorkspaceDirName)
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("failed to create workspace dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, WorkspaceConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}
}

func TestDiscoverWorkspace_Found(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	result, err := DiscoverWorkspace(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_WalkUp(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dirs: %v", err)
	}

	result, err := DiscoverWorkspace(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_NotFound(t *testing.T) {
	result, err := DiscoverWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestDiscoverWorkspace_MaxDepth(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	parts := make([]string, MaxSearchDepth+2)
	parts[0] = tmpDir
	for i := 1; i <= MaxSearchDepth+1; i++ {
		parts[i] = "d"
	}
	deepPath := filepath.Join(parts...)
	if err := os.MkdirAll(deepPath, 0755); err != nil {
		t.Fatalf("failed to create deep path: %v", err)
	}

	result, err := DiscoverWorkspace(deepPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string (beyond max depth), got %q", result)
	}
}

func TestLoadWithWorkspace_DefaultsOnly(t *testing.T) {
	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{Disable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != "" {
		t.Errorf("expected empty workspace dir, got %q", wsDir)
	}
	if cfg.Server.Name != "snapshot-query" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithWorkspace_WorkspaceOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "search:\n  stemming: true\noutput:\n  list_limit: 3\n")

	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != tmpDir {
		t.Errorf("expected workspace %q, got %q", tmpDir, wsDir)
	}
	if !cfg.Search.Stemming {
		t.Error("expected workspace to enable stemming")
	}
	if cfg.Output.ListLimit != 3 {
		t.Errorf("expected list limit 3, got %d", cfg.Output.ListLimit)
	}
	if cfg.Search.K1 != 1.5 {
		t.Errorf("expected default k1 kept, got %v", cfg.Search.K1)
	}
}

func TestLoadWithWorkspace_ExplicitOverridesWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "output:\n  list_limit: 3\n  refs_limit: 9\n")

	explicitPath := filepath.Join(tmpDir, "override.toml")
	if err := os.WriteFile(explicitPath, []byte("[output]\nlist_limit = 42\n"), 0644); err != nil {
		t.Fatalf("failed to write explicit config: %v", err)
	}

	cfg, _, err := LoadWithWorkspace(explicitPath, WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Output.ListLimit != 42 {
		t.Errorf("explicit config should win, got %d", cfg.Output.ListLimit)
	}
	if cfg.Output.RefsLimit != 9 {
		t.Errorf("workspace value should survive, got %d", cfg.Output.RefsLimit)
	}
}

func TestLoadWithWorkspace_Disabled(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "output:\n  list_limit: 3\n")

	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{Disable: true, ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != "" {
		t.Errorf("expected no workspace, got %q", wsDir)
	}
	if cfg.Output.ListLimit != 20 {
		t.Errorf("expected default list limit, got %d", cfg.Output.ListLimit)
	}
}

func TestLoadWithWorkspace_InvalidWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "search: [unclosed\n")

	_, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err == nil || !strings.Contains(err.Error(), "workspace config") {
		t.Errorf("expected workspace config error, got %v", err)
	}
}

func TestResolveWorkspacePaths_Relative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mangle.SchemaPath = "rules.mg"
	cfg = resolveWorkspacePaths(cfg, "/ws")

	if cfg.Server.LogFile != filepath.Join("/ws", "snapshot-query.log") {
		t.Errorf("unexpected log file %q", cfg.Server.LogFile)
	}
	if cfg.Server.TraceDir != filepath.Join("/ws", "traces") {
		t.Errorf("unexpected trace dir %q", cfg.Server.TraceDir)
	}
	if cfg.MCP.SnapshotRoot != "/ws" {
		t.Errorf("unexpected snapshot root %q", cfg.MCP.SnapshotRoot)
	}
	if cfg.Mangle.SchemaPath != filepath.Join("/ws", "rules.mg") {
		t.Errorf("unexpected schema path %q", cfg.Mangle.SchemaPath)
	}
}

func TestResolveWorkspacePaths_AbsoluteUntouched(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.LogFile = "/var/log/sq.log"
	cfg.Mangle.SchemaPath = ""
	cfg = resolveWorkspacePaths(cfg, "/ws")

	if cfg.Server.LogFile != "/var/log/sq.log" {
		t.Errorf("absolute path changed: %q", cfg.Server.LogFile)
	}
	if cfg.Mangle.SchemaPath != "" {
		t.Errorf("empty path should stay empty, got %q", cfg.Mangle.SchemaPath)
	}
}

func TestInitWorkspace_Creates(t *testing.T) {
	root := t.TempDir()
	if err := InitWorkspace(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range []string{
		filepath.Join(root, WorkspaceDirName, WorkspaceConfigFile),
		filepath.Join(root, WorkspaceDirName, ".gitignore"),
		filepath.Join(root, WorkspaceDirName, "traces"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}

	// the template is all comments and must load cleanly
	cfg, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: root})
	if err != nil {
		t.Fatalf("template config should load: %v", err)
	}
	if cfg.Server.Name != "snapshot-query" {
		t.Errorf("expected defaults from template, got %q", cfg.Server.Name)
	}
}

func TestInitWorkspace_AlreadyExists(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, WorkspaceDirName), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := InitWorkspace(root); err == nil {
		t.Error("expected error when workspace exists")
	}
}
