package toolpipe

import (
	"fmt"
	"slices"
	"strings"

	"github.com/axekit/toolpipe/internal/shellscan"
	"github.com/axekit/toolpipe/sandbox"
)

// Policy validates exec invocations. Exactly one policy is active per
// session; file operations are confined to the workspace roots regardless
// of which policy is in effect.
type Policy interface {
	// CheckCommand validates a raw command string. A nil return allows
	// execution; denials return a *DeniedCommandError naming the cause.
	CheckCommand(command string) error

	// Mode returns the short policy identifier used in logs and feedback.
	Mode() string
}

// WhitelistPolicy denies by default: every constituent command name in a
// pipeline or sequence must appear in AllowedCommands, and the full raw
// command string must not mention any forbidden path.
type WhitelistPolicy struct {
	// AllowedCommands lists the command names permitted to run.
	AllowedCommands []string `yaml:"allowed_commands"`

	// ForbiddenPaths lists path substrings that deny a command outright.
	// The scan runs over the raw command string, not the heredoc-stripped
	// view, so paths smuggled into heredoc redirect targets still match.
	ForbiddenPaths []string `yaml:"forbidden_paths"`
}

// Mode returns "whitelist".
func (p *WhitelistPolicy) Mode() string { return "whitelist" }

// CheckCommand validates command against the allow-list. Command names are
// extracted from a heredoc-stripped view, one per constituent command; a
// single name off the list denies the whole expression and the denial
// names the offender.
func (p *WhitelistPolicy) CheckCommand(command string) error {
	for _, fp := range p.ForbiddenPaths {
		if fp != "" && strings.Contains(command, fp) {
			return &DeniedCommandError{
				Command: command,
				Reason:  fmt.Sprintf("command references forbidden path %q", fp),
			}
		}
	}

	names := shellscan.CommandNames(command)
	if len(names) == 0 {
		return &DeniedCommandError{
			Command: command,
			Reason:  "no recognizable command name",
		}
	}
	for _, name := range names {
		if !slices.Contains(p.AllowedCommands, name) {
			return &DeniedCommandError{
				Command: command,
				Name:    name,
				Reason:  fmt.Sprintf("command %q is not on the allow-list", name),
			}
		}
	}
	return nil
}

// SandboxPolicy allows by default: commands run inside namespace isolation
// and path-level enforcement is delegated to the sandbox bind plan, not to
// string scanning. An optional blacklist still denies specific names.
type SandboxPolicy struct {
	// Blacklist lists command names that are denied even inside the
	// sandbox. Empty means allow everything.
	Blacklist []string `yaml:"blacklist"`

	// Namespaces selects the namespace toggles for sandboxed commands.
	Namespaces sandbox.NamespaceConfig `yaml:"namespaces"`

	// Binds configures host path visibility inside the sandbox.
	Binds sandbox.HostBinds `yaml:"binds"`

	// Fallback is the explicit whitelist policy to switch to when the
	// isolation runtime is entirely unavailable at session start. Nil
	// means fail closed: session construction returns
	// ErrSandboxUnavailable instead of degrading.
	Fallback *WhitelistPolicy `yaml:"fallback"`
}

// Mode returns "sandbox".
func (p *SandboxPolicy) Mode() string { return "sandbox" }

// CheckCommand applies the blacklist, if any, to the extracted command
// names.
func (p *SandboxPolicy) CheckCommand(command string) error {
	if len(p.Blacklist) == 0 {
		return nil
	}
	for _, name := range shellscan.CommandNames(command) {
		if slices.Contains(p.Blacklist, name) {
			return &DeniedCommandError{
				Command: command,
				Name:    name,
				Reason:  fmt.Sprintf("command %q is blacklisted", name),
			}
		}
	}
	return nil
}
