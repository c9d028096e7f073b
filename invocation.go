package toolpipe

import "strings"

// unknownStr is the string representation for unknown enum values.
const unknownStr = "unknown"

// Kind identifies the action an invocation requests.
type Kind int

const (
	// KindExec runs a shell command. It is the zero value so that an
	// uninitialized invocation is subject to the strictest validation path.
	KindExec Kind = iota

	// KindRead reads a file within the workspace roots.
	KindRead

	// KindWrite writes a file within the workspace roots, creating
	// intermediate directories as needed.
	KindWrite

	// KindAppend appends to a file within the workspace roots.
	KindAppend

	// KindListDir lists a directory within the workspace roots.
	KindListDir
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindExec:
		return "exec"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindAppend:
		return "append"
	case KindListDir:
		return "list_dir"
	default:
		return unknownStr
	}
}

// Syntax identifies which textual syntax family produced an invocation.
// It is diagnostic only and never changes behavior.
type Syntax int

const (
	// SyntaxNative is a fenced block whose info string names a tool.
	SyntaxNative Syntax = iota

	// SyntaxFunctionCall is an XML tool_call envelope with named params.
	SyntaxFunctionCall

	// SyntaxSimpleTag is an inline XML-style tag such as <read path="x"/>.
	SyntaxSimpleTag

	// SyntaxShellFence is a fenced shell/bash/sh code block.
	SyntaxShellFence
)

// String returns the string representation of a Syntax.
func (s Syntax) String() string {
	switch s {
	case SyntaxNative:
		return "native"
	case SyntaxFunctionCall:
		return "function_call"
	case SyntaxSimpleTag:
		return "simple_tag"
	case SyntaxShellFence:
		return "shell_fence"
	default:
		return unknownStr
	}
}

// Invocation is the canonical, syntax-independent representation of one
// requested action. Invocations are created fresh from each turn's raw
// text and discarded once their ExecutionResult is produced.
type Invocation struct {
	// Kind is the requested action.
	Kind Kind

	// Path is the target path for file operations.
	Path string

	// Content is the payload for write and append operations.
	Content string

	// Command is the shell command for exec operations, byte-for-byte as
	// it appeared in the source text.
	Command string

	// Origin records which syntax family produced this invocation.
	Origin Syntax

	// Start and End delimit the source text region the invocation came
	// from. They order and deduplicate invocations and are never used
	// for execution.
	Start, End int
}

// Target returns the invocation's identifying parameter: the command for
// exec, the path otherwise.
func (inv Invocation) Target() string {
	if inv.Kind == KindExec {
		return inv.Command
	}
	return inv.Path
}

// dedupKey normalizes an invocation for duplicate detection. Two
// invocations are duplicates iff they share a kind and semantically
// equivalent parameters, ignoring incidental surrounding whitespace.
func (inv Invocation) dedupKey() string {
	var b strings.Builder
	b.WriteString(inv.Kind.String())
	b.WriteByte('\x00')
	b.WriteString(strings.TrimSpace(inv.Path))
	b.WriteByte('\x00')
	b.WriteString(strings.TrimSpace(inv.Content))
	b.WriteByte('\x00')
	b.WriteString(normalizeCommand(inv.Command))
	return b.String()
}

// normalizeCommand collapses incidental whitespace in a command string so
// that equivalent encodings from different syntax families compare equal.
// Interior newlines are preserved: heredoc bodies are whitespace-sensitive.
func normalizeCommand(cmd string) string {
	lines := strings.Split(strings.TrimSpace(cmd), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
