package toolpipe

import (
	"fmt"
	"strings"
)

// maxTargetWidth bounds the identifying parameter shown in a section
// header; longer targets are elided.
const maxTargetWidth = 80

// InvocationResult pairs an invocation with its outcome for formatting.
type InvocationResult struct {
	Invocation Invocation
	Result     ExecutionResult
}

// FormatFeedback assembles the ordered results of one turn into the
// feedback block appended verbatim to the acting party's output and to
// the conversation transcript. Each invocation gets one delimited
// section, in original order, tagged with its kind and identifying
// parameter; extraction warnings follow at the end.
func FormatFeedback(results []InvocationResult, warnings []Warning) string {
	if len(results) == 0 && len(warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("[tool results]\n")
	for i, r := range results {
		fmt.Fprintf(&b, "--- %d. %s %s ---\n", i+1, r.Invocation.Kind, headerTarget(r.Invocation))
		writeOutcome(&b, r.Result)
	}
	for _, w := range warnings {
		fmt.Fprintf(&b, "--- warning ---\n%s\n", w.Message)
	}
	b.WriteString("[end tool results]\n")
	return b.String()
}

// headerTarget renders the identifying parameter for a section header:
// single line, width-bounded.
func headerTarget(inv Invocation) string {
	target := inv.Target()
	if i := strings.IndexByte(target, '\n'); i >= 0 {
		target = target[:i] + " ..."
	}
	if len(target) > maxTargetWidth {
		target = target[:maxTargetWidth] + "..."
	}
	return target
}

// writeOutcome renders one result body.
func writeOutcome(b *strings.Builder, res ExecutionResult) {
	switch {
	case res.OK:
		if res.ExitCode != noExitCode {
			fmt.Fprintf(b, "ok (exit %d)", res.ExitCode)
		} else {
			b.WriteString("ok")
		}
		if res.Detail != "" {
			fmt.Fprintf(b, ": %s", res.Detail)
		}
		b.WriteByte('\n')
	case res.Kind == ErrorValidationDenied:
		fmt.Fprintf(b, "denied: %s\n", res.Detail)
	case res.Kind == ErrorPathOutsideRoots:
		fmt.Fprintf(b, "denied: %s\n", res.Detail)
	case res.Kind == ErrorRuntimeUnavailable:
		fmt.Fprintf(b, "unavailable: %s\n", res.Detail)
	case res.Kind == ErrorNonZeroExit:
		fmt.Fprintf(b, "failed (exit %d): %s\n", res.ExitCode, res.Detail)
	default:
		fmt.Fprintf(b, "error: %s\n", res.Detail)
	}

	if res.Output != "" {
		b.WriteString(res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			b.WriteByte('\n')
		}
	}
}
