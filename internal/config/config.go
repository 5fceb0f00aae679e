package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level config.
	WorkspaceDirName = ".snapshot-query"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up.
	ExplicitDir string
}

// Config captures all tunable settings for the query server and CLI.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	MCP     MCPConfig     `yaml:"mcp" toml:"mcp"`
	Search  SearchConfig  `yaml:"search" toml:"search"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Browser BrowserConfig `yaml:"browser" toml:"browser"`
	Mangle  MangleConfig  `yaml:"mangle" toml:"mangle"`
}

type ServerConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Version string `yaml:"version" toml:"version"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	// Directory for JSONL tool-call traces.
	TraceDir string `yaml:"trace_dir" toml:"trace_dir"`
	// EnableTrace records every tool call to TraceDir.
	EnableTrace bool `yaml:"enable_trace" toml:"enable_trace"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port" toml:"sse_port"`
	// MaxSessions bounds the number of snapshot files kept loaded.
	MaxSessions int `yaml:"max_sessions" toml:"max_sessions"`
	// SnapshotRoot is the directory list_snapshots searches.
	SnapshotRoot string `yaml:"snapshot_root" toml:"snapshot_root"`
}

// SearchConfig tunes BM25 ranking.
type SearchConfig struct {
	K1       float64 `yaml:"k1" toml:"k1"`
	B        float64 `yaml:"b" toml:"b"`
	Stemming bool    `yaml:"stemming" toml:"stemming"`
}

// OutputConfig caps list sizes in tool and CLI output. Zero means the
// built-in default.
type OutputConfig struct {
	ListLimit        int `yaml:"list_limit" toml:"list_limit"`
	InteractiveLimit int `yaml:"interactive_limit" toml:"interactive_limit"`
	RefsLimit        int `yaml:"refs_limit" toml:"refs_limit"`
}

// BrowserConfig configures how we attach to or launch Chrome for live capture.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222).
	DebuggerURL string `yaml:"debugger_url" toml:"debugger_url"`
	// Optional launch command; the first element is the Chrome binary, the rest are flags.
	Launch []string `yaml:"launch" toml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless" toml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout" toml:"default_navigation_timeout"`
}

// MangleConfig controls the embedded deductive engine.
type MangleConfig struct {
	Enable bool `yaml:"enable" toml:"enable"`
	// Optional extra rules appended to the built-in snapshot schema.
	SchemaPath string `yaml:"schema_path" toml:"schema_path"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "snapshot-query",
			Version:  "0.3.0",
			LogFile:  "snapshot-query.log",
			TraceDir: "traces",
		},
		MCP: MCPConfig{
			SSEPort:      0,
			MaxSessions:  16,
			SnapshotRoot: ".",
		},
		Search: SearchConfig{
			K1: 1.5,
			B:  0.75,
		},
		Output: OutputConfig{
			ListLimit:        20,
			InteractiveLimit: 5,
			RefsLimit:        100,
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "15s",
		},
		Mangle: MangleConfig{
			Enable: true,
		},
	}
}

// Load reads a YAML or TOML config from disk and overlays defaults. The
// format is chosen by extension; anything other than .toml is YAML.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	if err := overlayFile(&cfg, path); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decode(cfg, path, raw)
}

func decode(cfg *Config, path string, raw []byte) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parsing toml config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parsing yaml config %s: %w", path, err)
	}
	return nil
}

// DiscoverWorkspace walks up from startDir looking for a .snapshot-query/config.yaml file.
// Returns the workspace root directory (parent of .snapshot-query/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .snapshot-query/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			if err := overlayFile(&cfg, wsConfigPath); err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		if err := overlayFile(&cfg, explicitConfig); err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .snapshot-query/ directory with a template config at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	for _, d := range []string{wsDir, filepath.Join(wsDir, "traces")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# snapshot-query project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# search:
#   k1: 1.5
#   b: 0.75
#   stemming: false

# output:
#   list_limit: 20
#   interactive_limit: 5
#   refs_limit: 100

# mcp:
#   snapshot_root: "snapshots"

# mangle:
#   schema_path: "rules.mg"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("traces/\n"), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Server.TraceDir = resolve(cfg.Server.TraceDir)
	cfg.MCP.SnapshotRoot = resolve(cfg.MCP.SnapshotRoot)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Search.K1 < 0 {
		return fmt.Errorf("search.k1 must not be negative, got %v", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return fmt.Errorf("search.b must be within [0, 1], got %v", c.Search.B)
	}
	if c.MCP.MaxSessions < 0 {
		return fmt.Errorf("mcp.max_sessions must not be negative, got %d", c.MCP.MaxSessions)
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.DefaultNavigationTimeout == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultNavigationTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// CanCapture reports whether enough is configured to reach a browser.
func (b BrowserConfig) CanCapture() bool {
	return b.DebuggerURL != "" || len(b.Launch) > 0
}

// GetMaxSessions returns the session cap with a sane default.
func (m MCPConfig) GetMaxSessions() int {
	if m.MaxSessions <= 0 {
		return 16
	}
	return m.MaxSessions
}

// GetListLimit returns the per-list output cap with a sane default.
func (o OutputConfig) GetListLimit() int {
	if o.ListLimit <= 0 {
		return 20
	}
	return o.ListLimit
}

// GetInteractiveLimit returns the per-role cap for interactive listings.
func (o OutputConfig) GetInteractiveLimit() int {
	if o.InteractiveLimit <= 0 {
		return 5
	}
	return o.InteractiveLimit
}

// GetRefsLimit returns the cap for ref listings.
func (o OutputConfig) GetRefsLimit() int {
	if o.RefsLimit <= 0 {
		return 100
	}
	return o.RefsLimit
}
