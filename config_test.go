package toolpipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Roots = []string{"/workspace"}
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no roots", func(c *Config) { c.Roots = nil }},
		{"relative root", func(c *Config) { c.Roots = []string{"relative"} }},
		{"nil policy", func(c *Config) { c.Policy = nil }},
		{"relative workdir", func(c *Config) { c.WorkDir = "relative" }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"negative read limit", func(c *Config) { c.MaxReadBytes = -1 }},
		{"negative output limit", func(c *Config) { c.MaxOutputBytes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Validate() = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := &Config{
		Roots:  []string{"/workspace", "/scratch"},
		Policy: &WhitelistPolicy{},
	}
	out := cfg.withDefaults()

	if out.WorkDir != "/workspace" {
		t.Errorf("WorkDir = %q, want first root", out.WorkDir)
	}
	if out.Shell != defaultShell {
		t.Errorf("Shell = %q", out.Shell)
	}
	if out.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v", out.Timeout)
	}
	if out.MaxReadBytes != defaultMaxReadBytes || out.MaxOutputBytes != defaultMaxOutputBytes {
		t.Errorf("limits = %d / %d", out.MaxReadBytes, out.MaxOutputBytes)
	}
	if out.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestDefaultConfigDeniesEverything(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Policy.CheckCommand("ls"); !errors.Is(err, ErrCommandDenied) {
		t.Errorf("default policy allowed a command: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolpipe.yaml")
	data := `roots:
  - /workspace
work_dir: /workspace
shell: /bin/bash
timeout_seconds: 30
max_read_bytes: 4096
resolve_symlinks: true
policy:
  mode: whitelist
  whitelist:
    allowed_commands: [ls, cat]
    forbidden_paths: [/etc/shadow]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Roots) != 1 || cfg.Roots[0] != "/workspace" {
		t.Errorf("roots = %v", cfg.Roots)
	}
	if cfg.Shell != "/bin/bash" || cfg.Timeout != 30*time.Second || cfg.MaxReadBytes != 4096 {
		t.Errorf("config = %+v", cfg)
	}
	if !cfg.ResolveSymlinks {
		t.Error("resolve_symlinks not applied")
	}
	if cfg.MaxOutputBytes != defaultMaxOutputBytes {
		t.Errorf("unset limit should default: %d", cfg.MaxOutputBytes)
	}

	wp, ok := cfg.Policy.(*WhitelistPolicy)
	if !ok {
		t.Fatalf("policy = %T", cfg.Policy)
	}
	if len(wp.AllowedCommands) != 2 || wp.ForbiddenPaths[0] != "/etc/shadow" {
		t.Errorf("policy = %+v", wp)
	}
}

func TestLoadConfigFileSandbox(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolpipe.yaml")
	data := `roots: [/workspace]
policy:
  mode: sandbox
  sandbox:
    blacklist: [shutdown]
    namespaces:
      user: true
      pid: true
    binds:
      readonly: [/usr, /lib]
      hidden: [/root]
    fallback:
      allowed_commands: [ls]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sp, ok := cfg.Policy.(*SandboxPolicy)
	if !ok {
		t.Fatalf("policy = %T", cfg.Policy)
	}
	if len(sp.Blacklist) != 1 || !sp.Namespaces.User || !sp.Namespaces.PID {
		t.Errorf("sandbox policy = %+v", sp)
	}
	if len(sp.Binds.ReadOnly) != 2 || len(sp.Binds.Hidden) != 1 {
		t.Errorf("binds = %+v", sp.Binds)
	}
	if sp.Fallback == nil || len(sp.Fallback.AllowedCommands) != 1 {
		t.Errorf("fallback = %+v", sp.Fallback)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	write := func(name, data string) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing mode", write("a.yaml", "roots: [/w]\npolicy:\n  whitelist:\n    allowed_commands: [ls]\n")},
		{"unknown mode", write("b.yaml", "roots: [/w]\npolicy:\n  mode: everything-goes\n")},
		{"mode without block", write("c.yaml", "roots: [/w]\npolicy:\n  mode: sandbox\n")},
		{"invalid yaml", write("d.yaml", "roots: [unclosed\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfigFile(tt.path); !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("LoadConfigFile = %v, want ErrConfigInvalid", err)
			}
		})
	}

	if _, err := LoadConfigFile(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}
