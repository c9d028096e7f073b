package toolpipe

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/axekit/toolpipe/audit"
)

const (
	// defaultMaxOutputBytes limits captured stdout/stderr (10 MB).
	defaultMaxOutputBytes = 10 * 1024 * 1024

	// defaultMaxReadBytes limits READ results (256 KB); longer files are
	// truncated with an indicator.
	defaultMaxReadBytes = 256 * 1024

	// defaultTimeout bounds a single command's wall-clock execution.
	defaultTimeout = 60 * time.Second

	// defaultShell interprets shell-dependent commands.
	defaultShell = "/bin/sh"
)

// Config holds the session-scoped configuration for a pipeline Session.
// All fields are read-only from the pipeline's perspective once the
// session is constructed.
type Config struct {
	// Roots is the ordered, non-empty workspace root set: the absolute
	// directories the session may read and write.
	Roots []string

	// WorkDir is the working directory for command execution and relative
	// path resolution. Defaults to the first root.
	WorkDir string

	// Policy is the active security policy, either *WhitelistPolicy or
	// *SandboxPolicy.
	Policy Policy

	// Shell is the shell used for shell-dependent commands. Defaults to
	// /bin/sh.
	Shell string

	// Timeout bounds each command's execution; a fired timeout terminates
	// the process group and reports a synthetic exit code.
	Timeout time.Duration

	// MaxReadBytes caps READ results. 0 uses the default.
	MaxReadBytes int

	// MaxOutputBytes caps captured stdout/stderr. 0 uses the default.
	MaxOutputBytes int

	// ResolveSymlinks makes path confinement resolve symlinks before the
	// root comparison. Off by default for behavioral compatibility:
	// without it, a symlink inside a root that targets outside it can
	// defeat confinement. Turning it on is the documented hardening
	// option.
	ResolveSymlinks bool

	// Logger is the structured logger for operational messages such as
	// isolation degradation warnings and extraction diagnostics. If nil,
	// slog.Default() is used.
	Logger *slog.Logger

	// Audit is an optional store that records every invocation and its
	// result. Nil disables auditing.
	Audit *audit.Store
}

// DefaultConfig returns a Config with secure defaults: whitelist policy
// with an empty allow-list (denies every command) and no workspace roots.
// Callers must set Roots and widen the policy before use.
func DefaultConfig() *Config {
	return &Config{
		Policy:         &WhitelistPolicy{},
		Shell:          defaultShell,
		Timeout:        defaultTimeout,
		MaxReadBytes:   defaultMaxReadBytes,
		MaxOutputBytes: defaultMaxOutputBytes,
	}
}

// Validate checks the configuration for structural errors. It does not
// probe the sandbox runtime; that happens once in NewSession.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("%w: at least one workspace root is required", ErrConfigInvalid)
	}
	for i, root := range c.Roots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("%w: root[%d] %q is not absolute", ErrConfigInvalid, i, root)
		}
	}
	if c.Policy == nil {
		return fmt.Errorf("%w: a security policy is required", ErrConfigInvalid)
	}
	if c.WorkDir != "" && !filepath.IsAbs(c.WorkDir) {
		return fmt.Errorf("%w: work dir %q is not absolute", ErrConfigInvalid, c.WorkDir)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrConfigInvalid)
	}
	if c.MaxReadBytes < 0 || c.MaxOutputBytes < 0 {
		return fmt.Errorf("%w: byte limits must not be negative", ErrConfigInvalid)
	}
	return nil
}

// withDefaults returns a copy of the config with zero-valued fields
// replaced by defaults.
func (c *Config) withDefaults() Config {
	out := *c
	out.Roots = append([]string(nil), c.Roots...)
	if out.WorkDir == "" {
		out.WorkDir = out.Roots[0]
	}
	if out.Shell == "" {
		out.Shell = defaultShell
	}
	if out.Timeout == 0 {
		out.Timeout = defaultTimeout
	}
	if out.MaxReadBytes == 0 {
		out.MaxReadBytes = defaultMaxReadBytes
	}
	if out.MaxOutputBytes == 0 {
		out.MaxOutputBytes = defaultMaxOutputBytes
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}
