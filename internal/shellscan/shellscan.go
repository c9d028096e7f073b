// Package shellscan inspects shell command strings without executing them.
// It classifies commands as shell-dependent or plain argv, strips heredoc
// bodies to produce a validation view, and extracts constituent command
// names from pipelines and sequences.
//
// Command-name extraction parses the command with mvdan.cc/sh/v3 and walks
// the resulting AST; heredoc bodies, redirect targets, and environment
// assignment prefixes never contribute names. When the parser rejects the
// input, a conservative operator-splitting fallback is used on the
// heredoc-stripped view.
package shellscan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrUnterminatedQuote is returned by SplitArgv when a quote is left open.
var ErrUnterminatedQuote = errors.New("shellscan: unterminated quote")

// Mode is the execution mode a command string requires.
type Mode int

const (
	// ArgvOnly means the command can be split into an argv vector and run
	// without a shell.
	ArgvOnly Mode = iota

	// NeedsShell means the command uses shell operators, redirections,
	// heredocs, or substitution, and must be interpreted by a shell.
	NeedsShell
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case ArgvOnly:
		return "argv"
	case NeedsShell:
		return "shell"
	default:
		return "unknown"
	}
}

// shellOperators are the multi-character operators checked by Classify,
// longest first so that prefix operators do not shadow longer forms.
var shellOperators = []string{
	"2>&1", "2>>", "<<<", "<<-", "&&", "||", ">>", "<<", "2>", "&>",
	"|", ";", ">", "<",
}

// Classify reports whether cmd needs a shell to execute. A command needs a
// shell iff it contains a pipeline/sequence operator, a redirection, a
// heredoc marker, or command substitution.
func Classify(cmd string) Mode {
	if strings.Contains(cmd, "$(") || strings.Contains(cmd, "`") {
		return NeedsShell
	}
	for _, op := range shellOperators {
		if strings.Contains(cmd, op) {
			return NeedsShell
		}
	}
	return ArgvOnly
}

// heredocOpenRE matches a heredoc opening marker and captures the optional
// dash (tab-stripping form) and the delimiter word, which may be quoted.
// Herestring (<<<) matches are rejected by the neighbor checks at the use
// site, since Go regexp has no lookbehind.
var heredocOpenRE = regexp.MustCompile(`<<(-?)\s*(?:'([^']+)'|"([^"]+)"|(\\?[A-Za-z_][A-Za-z0-9_]*))`)

// StripHeredocs removes every heredoc body (the lines between an opening
// marker and its terminator line) from cmd, leaving only command text. The
// result is a validation view: it is used for command-name extraction and
// whitelist checks, and must never be handed to an execution backend.
func StripHeredocs(cmd string) string {
	if !strings.Contains(cmd, "<<") {
		return cmd
	}

	lines := strings.Split(cmd, "\n")
	var out []string

	// pending holds delimiters for heredocs opened on the current command
	// line, in opening order; bodies follow in the same order.
	type pending struct {
		delim     string
		stripTabs bool
	}
	var queue []pending

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if len(queue) > 0 {
			// Inside a heredoc body: drop lines until the terminator.
			probe := line
			if queue[0].stripTabs {
				probe = strings.TrimLeft(probe, "\t")
			}
			if probe == queue[0].delim {
				queue = queue[1:]
			}
			continue
		}

		for _, m := range heredocOpenRE.FindAllStringSubmatchIndex(line, -1) {
			// Skip herestrings: "<<<" matches neither body nor terminator.
			if m[0] > 0 && line[m[0]-1] == '<' {
				continue
			}
			if m[1] < len(line) && line[m[1]] == '<' {
				continue
			}
			delim := firstGroup(line, m)
			delim = strings.TrimPrefix(delim, `\`)
			queue = append(queue, pending{delim: delim, stripTabs: line[m[2]:m[3]] == "-"})
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// firstGroup returns the first non-empty capture group of a
// FindAllStringSubmatchIndex match, skipping group 1 (the dash).
func firstGroup(s string, m []int) string {
	for g := 2; g*2 < len(m); g++ {
		if m[g*2] >= 0 {
			return s[m[g*2]:m[g*2+1]]
		}
	}
	return ""
}

// CommandNames returns the name of each constituent command in cmd, in
// left-to-right order. Compound pipelines and sequences contribute one name
// per command; names inside heredoc bodies never appear. Returns nil for a
// command with no recognizable name.
func CommandNames(cmd string) []string {
	if names, err := astCommandNames(cmd); err == nil {
		return names
	}
	return fallbackCommandNames(StripHeredocs(cmd))
}

// astCommandNames extracts command names by parsing cmd as bash and
// collecting the first argument word of every call expression. Assignment
// prefixes sit in CallExpr.Assigns and redirect targets in Stmt.Redirs, so
// neither can produce a name; heredoc bodies are plain words with no nested
// call expressions.
func astCommandNames(cmd string) ([]string, error) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return nil, fmt.Errorf("shellscan: parse: %w", err)
	}

	var names []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		if len(call.Args) == 0 {
			return true // bare VAR=value assignment
		}
		if name := wordText(call.Args[0]); name != "" {
			names = append(names, name)
		}
		return true
	})
	return names, nil
}

// wordText returns the literal text of a word, concatenating literal and
// quoted-literal parts. Words built from substitutions yield "".
func wordText(w *syntax.Word) string {
	if s := w.Lit(); s != "" {
		return s
	}
	var b strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					b.WriteString(lit.Value)
				}
			}
		}
	}
	return b.String()
}

// redirectOps are operators whose immediately following token is a redirect
// target or heredoc delimiter, not a command.
var redirectOps = map[string]bool{
	">": true, ">>": true, "<": true, "2>": true, "2>>": true,
	"&>": true, "<<<": true, "<<": true, "<<-": true,
}

// controlOps are operators after which a new command begins.
var controlOps = map[string]bool{
	"|": true, "||": true, "&&": true, ";": true,
}

// fallbackCommandNames splits a heredoc-stripped command on shell operators
// without a full parse. Operators are recognized longest-first even when
// glued to their operands ("grep<input"), wrapping parentheses from
// subshell groupings are dropped, and VAR=value assignment prefixes and
// redirect targets are skipped.
func fallbackCommandNames(stripped string) []string {
	var names []string
	expectCommand := true
	skipNext := false
	for _, tok := range tokenizeOps(stripped) {
		switch {
		case skipNext:
			skipNext = false
		case tok == "2>&1":
			// No target token follows.
		case redirectOps[tok]:
			skipNext = true
		case controlOps[tok]:
			expectCommand = true
		case expectCommand:
			if isAssignment(tok) {
				continue // VAR=value prefix, command name still pending
			}
			names = append(names, strings.Trim(tok, `"'`))
			expectCommand = false
		}
	}
	return names
}

// tokenizeOps splits a command string into words and operator tokens.
// Operators match longest-first so "2>>" never splits into "2>" + ">";
// parentheses are treated as whitespace.
func tokenizeOps(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '(' || c == ')' {
			flush()
			i++
			continue
		}
		op := ""
		for _, candidate := range shellOperators {
			if strings.HasPrefix(s[i:], candidate) {
				op = candidate
				break
			}
		}
		if op != "" {
			flush()
			toks = append(toks, op)
			i += len(op)
			continue
		}
		cur.WriteByte(c)
		i++
	}
	flush()
	return toks
}

// isAssignment reports whether tok looks like a VAR=value environment
// assignment prefix.
func isAssignment(tok string) bool {
	idx := strings.IndexByte(tok, '=')
	if idx <= 0 {
		return false
	}
	for _, r := range tok[:idx] {
		if r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') {
			return false
		}
	}
	return true
}

// SplitArgv splits a command string into an argv vector using shell
// word-splitting rules: whitespace separation, single and double quotes,
// and backslash escaping. No expansion of any kind is performed; $VAR and
// glob characters pass through literally. Returns ErrUnterminatedQuote if
// a quote is left open.
func SplitArgv(cmd string) ([]string, error) {
	var argv []string
	var cur strings.Builder
	inWord := false

	const (
		none = iota
		single
		double
	)
	quote := none
	escaped := false

	for _, r := range cmd {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != single:
			escaped = true
			inWord = true
		case quote == single:
			if r == '\'' {
				quote = none
			} else {
				cur.WriteRune(r)
			}
		case quote == double:
			if r == '"' {
				quote = none
			} else {
				cur.WriteRune(r)
			}
		case r == '\'':
			quote = single
			inWord = true
		case r == '"':
			quote = double
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				argv = append(argv, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if escaped || quote != none {
		return nil, ErrUnterminatedQuote
	}
	if inWord {
		argv = append(argv, cur.String())
	}
	return argv, nil
}
