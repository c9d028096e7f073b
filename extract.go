package toolpipe

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Warning reports a malformed or ambiguous construct encountered during
// extraction. Warnings are non-fatal: the construct is skipped and
// extraction continues.
type Warning struct {
	// Start and End delimit the offending source text region.
	Start, End int

	// Message describes what was malformed.
	Message string
}

// ExtractResult holds the deduplicated, ordered invocations extracted from
// one block of raw agent text, plus any non-fatal warnings.
type ExtractResult struct {
	Invocations []Invocation
	Warnings    []Warning
}

// toolNames normalizes tool aliases across all syntax families to a
// canonical Kind.
var toolNames = map[string]Kind{
	"exec": KindExec, "run": KindExec, "execute": KindExec,
	"read": KindRead, "read_file": KindRead, "cat": KindRead,
	"write": KindWrite, "write_file": KindWrite, "create_file": KindWrite,
	"append": KindAppend, "append_file": KindAppend,
	"ls": KindListDir, "list": KindListDir, "list_dir": KindListDir, "dir": KindListDir,
}

// shellInfos are fence info strings that mark a shell code block rather
// than a native tool fence. "shell", "bash" and "sh" are exec aliases in
// tag position but shell-family markers in fence position.
var shellInfos = map[string]bool{
	"shell": true, "bash": true, "sh": true, "zsh": true,
}

// tagToolNames extends toolNames with the exec aliases that double as
// fence info strings; in tag position they are unambiguous.
var tagToolNames = map[string]Kind{
	"shell": KindExec, "bash": KindExec, "sh": KindExec,
}

// lookupTool resolves a tool name from any syntax family. Fence info
// strings must be checked against shellInfos first.
func lookupTool(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if k, ok := toolNames[name]; ok {
		return k, true
	}
	if k, ok := tagToolNames[name]; ok {
		return k, true
	}
	return 0, false
}

// Extract scans raw agent text for every supported invocation syntax and
// returns the canonical invocations in first-appearance order, each
// logical action exactly once.
//
// Fenced blocks are authoritative for their span: tag syntaxes are never
// parsed inside a fence, and a fence recognized by one family is not
// re-parsed by another. Identical actions reachable through multiple
// syntaxes collapse to the first occurrence.
func Extract(raw string) ExtractResult {
	var res ExtractResult

	fences := scanFences(raw)
	masked := maskRegions(raw, fenceSpans(fences))

	for _, f := range fences {
		res.Invocations = append(res.Invocations, extractFence(f)...)
	}

	envInvs, envSpans := extractToolCalls(masked, &res.Warnings)
	res.Invocations = append(res.Invocations, envInvs...)
	masked = maskRegions(masked, envSpans)

	res.Invocations = append(res.Invocations, extractSimpleTags(masked, &res.Warnings)...)

	res.Invocations = dedupe(res.Invocations)
	return res
}

// span is a half-open byte range in the raw text.
type span struct{ start, end int }

// maskRegions blanks the given regions with spaces so later scans skip
// them while every surviving match keeps its original offsets.
func maskRegions(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, sp := range spans {
		for i := sp.start; i < sp.end && i < len(b); i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

// ---------------------------------------------------------------------------
// Fenced blocks (native tool fences and shell fences)
// ---------------------------------------------------------------------------

// fence is one ``` fenced block with its byte offsets.
type fence struct {
	start, end int
	info       string
	body       string
	bodyStart  int
}

func fenceSpans(fences []fence) []span {
	spans := make([]span, len(fences))
	for i, f := range fences {
		spans[i] = span{f.start, f.end}
	}
	return spans
}

// scanFences finds complete ``` fenced blocks. An unterminated opening
// fence is ignored rather than swallowing the rest of the text.
func scanFences(raw string) []fence {
	var fences []fence
	offset := 0
	open := -1
	var info string
	var bodyStart int

	for _, line := range strings.SplitAfter(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case open < 0 && strings.HasPrefix(trimmed, "```"):
			open = offset
			info = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			bodyStart = offset + len(line)
		case open >= 0 && trimmed == "```":
			fences = append(fences, fence{
				start:     open,
				end:       offset + len(line),
				info:      info,
				body:      raw[bodyStart:offset],
				bodyStart: bodyStart,
			})
			open = -1
		}
		offset += len(line)
	}
	return fences
}

// heredocMarkerRE detects a heredoc opener inside a shell fence body. The
// <<< herestring form does not open a body and is excluded at the use site.
var heredocMarkerRE = regexp.MustCompile(`<<-?\s*(?:'[^']+'|"[^"]+"|\\?[A-Za-z_])`)

// containsHeredoc reports whether body opens a heredoc.
func containsHeredoc(body string) bool {
	for _, m := range heredocMarkerRE.FindAllStringIndex(body, -1) {
		if m[0] > 0 && body[m[0]-1] == '<' {
			continue // <<< herestring
		}
		return true
	}
	return false
}

// extractFence converts one fenced block into invocations. Shell fences
// split line-by-line unless a heredoc is present, in which case the whole
// block is a single command; native fences always yield one invocation.
func extractFence(f fence) []Invocation {
	infoWord := strings.ToLower(strings.TrimSpace(f.info))
	if i := strings.IndexAny(infoWord, " \t"); i >= 0 {
		infoWord = infoWord[:i]
	}

	if shellInfos[infoWord] {
		return extractShellFence(f)
	}

	kind, ok := lookupTool(infoWord)
	if !ok {
		return nil // ordinary code fence, masked but not an invocation
	}

	inv := Invocation{
		Kind:   kind,
		Origin: SyntaxNative,
		Start:  f.start,
		End:    f.end,
	}
	body := strings.TrimSuffix(f.body, "\n")
	switch kind {
	case KindExec:
		inv.Command = strings.TrimSpace(body)
	case KindRead, KindListDir:
		inv.Path = firstNonEmptyLine(body)
	case KindWrite, KindAppend:
		path, content, found := strings.Cut(body, "\n")
		inv.Path = strings.TrimSpace(path)
		if found {
			inv.Content = content
		}
	}
	if inv.Target() == "" {
		return nil
	}
	return []Invocation{inv}
}

// extractShellFence converts a shell/bash/sh fence into exec invocations.
func extractShellFence(f fence) []Invocation {
	body := strings.TrimSuffix(f.body, "\n")
	if strings.TrimSpace(body) == "" {
		return nil
	}

	// A heredoc body must stay glued to its command: the whole block is
	// one invocation, never split line-by-line.
	if containsHeredoc(body) {
		return []Invocation{{
			Kind:    KindExec,
			Command: body,
			Origin:  SyntaxShellFence,
			Start:   f.start,
			End:     f.end,
		}}
	}

	var invs []Invocation
	offset := f.bodyStart
	for _, line := range strings.SplitAfter(f.body, "\n") {
		text := strings.TrimSpace(strings.TrimSuffix(line, "\n"))
		if text != "" && !strings.HasPrefix(text, "#") {
			invs = append(invs, Invocation{
				Kind:    KindExec,
				Command: text,
				Origin:  SyntaxShellFence,
				Start:   offset,
				End:     offset + len(line),
			})
		}
		offset += len(line)
	}
	return invs
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// XML function-call envelopes
// ---------------------------------------------------------------------------

var (
	toolCallRE = regexp.MustCompile(`(?s)<tool_call\s+name\s*=\s*"([^"]*)"\s*>(.*?)</tool_call>`)
	paramRE    = regexp.MustCompile(`(?s)<param\s+name\s*=\s*"([^"]*)"\s*>(.*?)</param>`)
	openCallRE = regexp.MustCompile(`<tool_call\b`)
)

// extractToolCalls parses <tool_call name="..."> envelopes with named
// <param> children. Returns the invocations and the envelope spans so the
// caller can mask them before the simple-tag scan.
func extractToolCalls(text string, warnings *[]Warning) ([]Invocation, []span) {
	var invs []Invocation
	var spans []span
	matched := make(map[int]bool)

	for _, m := range toolCallRE.FindAllStringSubmatchIndex(text, -1) {
		matched[m[0]] = true
		spans = append(spans, span{m[0], m[1]})

		name := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		kind, ok := lookupTool(name)
		if !ok {
			*warnings = append(*warnings, Warning{
				Start:   m[0],
				End:     m[1],
				Message: fmt.Sprintf("tool_call names unknown tool %q", name),
			})
			continue
		}

		params := make(map[string]string)
		for _, pm := range paramRE.FindAllStringSubmatchIndex(body, -1) {
			params[normalizeParamName(body[pm[2]:pm[3]])] = body[pm[4]:pm[5]]
		}

		inv, err := invocationFromParams(kind, params)
		if err != nil {
			*warnings = append(*warnings, Warning{
				Start:   m[0],
				End:     m[1],
				Message: err.Error(),
			})
			continue
		}
		inv.Origin = SyntaxFunctionCall
		inv.Start = m[0]
		inv.End = m[1]
		invs = append(invs, inv)
	}

	// Opening markers with no matching closed envelope are malformed.
	for _, om := range openCallRE.FindAllStringIndex(text, -1) {
		if !matched[om[0]] {
			*warnings = append(*warnings, Warning{
				Start:   om[0],
				End:     om[1],
				Message: "unclosed tool_call envelope",
			})
		}
	}
	return invs, spans
}

// normalizeParamName maps parameter name aliases to the canonical keys.
func normalizeParamName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "path", "file", "filename", "file_path", "target":
		return "path"
	case "content", "text", "body":
		return "content"
	case "command", "cmd", "script":
		return "command"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// invocationFromParams builds a canonical invocation from named parameters.
func invocationFromParams(kind Kind, params map[string]string) (Invocation, error) {
	inv := Invocation{Kind: kind}
	switch kind {
	case KindExec:
		inv.Command = strings.TrimSpace(params["command"])
		if inv.Command == "" {
			return inv, fmt.Errorf("exec tool_call is missing a command parameter")
		}
	case KindWrite, KindAppend:
		inv.Path = strings.TrimSpace(params["path"])
		inv.Content = params["content"]
		if inv.Path == "" {
			return inv, fmt.Errorf("%s tool_call is missing a path parameter", kind)
		}
	case KindRead, KindListDir:
		inv.Path = strings.TrimSpace(params["path"])
		if inv.Path == "" {
			return inv, fmt.Errorf("%s tool_call is missing a path parameter", kind)
		}
	}
	return inv, nil
}

// ---------------------------------------------------------------------------
// Simple inline tags
// ---------------------------------------------------------------------------

var (
	// simpleTagRE matches both <tool .../> and <tool ...>body</tool>
	// forms for any tag word; unknown tag names are ignored unless they
	// resemble tool tags.
	simpleTagRE = regexp.MustCompile(`(?s)<([a-zA-Z_][\w]*)((?:\s+[^<>]*?)?)\s*(/>|>(.*?)</([a-zA-Z_][\w]*)\s*>)`)

	// openTagRE matches a bare opening tag; tool-named openings outside
	// every complete simpleTagRE match are unclosed.
	openTagRE = regexp.MustCompile(`<([a-zA-Z_][\w]*)(?:\s+[^<>]*?)?\s*>`)

	attrRE = regexp.MustCompile(`([^\s=]+)\s*=\s*"([^"]*)"`)
)

// extractSimpleTags parses inline tags like <read path="x"/> and
// <exec>rm -f stale.lock</exec>. Unknown tag names are skipped silently
// (arbitrary XML/HTML is common in prose); malformed attributes on known
// tool tags produce warnings.
func extractSimpleTags(text string, warnings *[]Warning) []Invocation {
	var invs []Invocation
	var matched []span

	for _, m := range simpleTagRE.FindAllStringSubmatchIndex(text, -1) {
		matched = append(matched, span{m[0], m[1]})
		name := text[m[2]:m[3]]
		kind, ok := lookupTool(name)
		if !ok {
			continue
		}

		// Paired form: closing tag must match the opening one.
		if m[10] >= 0 && !strings.EqualFold(name, text[m[10]:m[11]]) {
			*warnings = append(*warnings, Warning{
				Start:   m[0],
				End:     m[1],
				Message: fmt.Sprintf("tag <%s> closed by </%s>", name, text[m[10]:m[11]]),
			})
			continue
		}

		attrText := text[m[4]:m[5]]
		attrs, err := parseAttrs(attrText)
		if err != nil {
			*warnings = append(*warnings, Warning{
				Start:   m[0],
				End:     m[1],
				Message: fmt.Sprintf("tag <%s>: %v", name, err),
			})
			continue
		}

		var body string
		if m[8] >= 0 {
			body = text[m[8]:m[9]]
		}

		inv, err := invocationFromTag(kind, attrs, body)
		if err != nil {
			*warnings = append(*warnings, Warning{
				Start:   m[0],
				End:     m[1],
				Message: fmt.Sprintf("tag <%s>: %v", name, err),
			})
			continue
		}
		inv.Origin = SyntaxSimpleTag
		inv.Start = m[0]
		inv.End = m[1]
		invs = append(invs, inv)
	}

	// A tool-named opening tag with no complete form anywhere around it
	// was opened and never closed.
	for _, om := range openTagRE.FindAllStringSubmatchIndex(text, -1) {
		name := text[om[2]:om[3]]
		if _, ok := lookupTool(name); !ok {
			continue
		}
		if insideSpan(matched, om[0]) {
			continue
		}
		*warnings = append(*warnings, Warning{
			Start:   om[0],
			End:     om[1],
			Message: fmt.Sprintf("unclosed tag <%s>", name),
		})
	}
	return invs
}

// insideSpan reports whether pos falls inside any of the given spans.
func insideSpan(spans []span, pos int) bool {
	for _, sp := range spans {
		if pos >= sp.start && pos < sp.end {
			return true
		}
	}
	return false
}

// parseAttrs parses key="value" attributes, rejecting non-ASCII attribute
// names and code/JSON misplaced into attribute position.
func parseAttrs(attrText string) (map[string]string, error) {
	attrs := make(map[string]string)
	trimmed := strings.TrimSpace(attrText)
	if trimmed == "" {
		return attrs, nil
	}
	if strings.ContainsAny(trimmed, "{}") {
		return nil, fmt.Errorf("code or JSON in attribute position")
	}

	for _, am := range attrRE.FindAllStringSubmatch(attrText, -1) {
		name := am[1]
		for _, r := range name {
			if r > unicode.MaxASCII {
				return nil, fmt.Errorf("non-ASCII attribute name %q", name)
			}
		}
		attrs[normalizeParamName(name)] = am[2]
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("malformed attributes %q", trimmed)
	}
	return attrs, nil
}

// invocationFromTag builds an invocation from a simple tag's attributes
// and body. The body supplies the command for exec tags, the content for
// write/append tags, and the path for read/list tags without a path
// attribute.
func invocationFromTag(kind Kind, attrs map[string]string, body string) (Invocation, error) {
	inv := Invocation{Kind: kind}
	switch kind {
	case KindExec:
		inv.Command = strings.TrimSpace(attrs["command"])
		if inv.Command == "" {
			inv.Command = strings.TrimSpace(body)
		}
		if inv.Command == "" {
			return inv, fmt.Errorf("missing command")
		}
	case KindWrite, KindAppend:
		inv.Path = strings.TrimSpace(attrs["path"])
		inv.Content = body
		if c, ok := attrs["content"]; ok {
			inv.Content = c
		}
		if inv.Path == "" {
			return inv, fmt.Errorf("missing path attribute")
		}
	case KindRead, KindListDir:
		inv.Path = strings.TrimSpace(attrs["path"])
		if inv.Path == "" {
			inv.Path = strings.TrimSpace(body)
		}
		if inv.Path == "" {
			return inv, fmt.Errorf("missing path")
		}
	}
	return inv, nil
}

// ---------------------------------------------------------------------------
// Ordering and dedup
// ---------------------------------------------------------------------------

// dedupe orders invocations by first appearance and collapses duplicates:
// two invocations with the same kind and semantically equivalent
// parameters execute exactly once, at the earlier position.
func dedupe(invs []Invocation) []Invocation {
	sortByStart(invs)
	seen := make(map[string]bool, len(invs))
	out := invs[:0]
	for _, inv := range invs {
		key := inv.dedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inv)
	}
	return out
}

// sortByStart sorts invocations by source position, stable for equal
// offsets (insertion order preserved).
func sortByStart(invs []Invocation) {
	slices.SortStableFunc(invs, func(a, b Invocation) int {
		return a.Start - b.Start
	})
}
