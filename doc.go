// Package toolpipe turns untrusted model-generated text into safely
// executed file and process operations.
//
// It scans free-form agent output for action requests across several
// competing syntaxes (native tool fences, XML function-call envelopes,
// simple inline tags, shell code fences), normalizes them into canonical
// invocations with exactly-once semantics, validates each against a
// whitelist or sandbox policy, executes it directly or inside Linux
// namespace isolation, and assembles the ordered results into a feedback
// block for the next conversational turn.
//
// Key properties:
//   - Deduplicated extraction: the same logical action encoded in more
//     than one syntax executes exactly once
//   - Heredoc separation: validation sees a heredoc-stripped view while
//     execution receives the original command byte-for-byte
//   - Segment-aware path confinement to the session's workspace roots
//   - Namespace isolation that degrades loudly, never silently
//
// Basic usage:
//
//	cfg := toolpipe.DefaultConfig()
//	cfg.Roots = []string{"/work/project"}
//	sess, err := toolpipe.NewSession(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	feedback, err := sess.Process(ctx, agentText)
package toolpipe
