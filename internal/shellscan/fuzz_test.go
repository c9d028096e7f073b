package shellscan

import (
	"strings"
	"testing"
)

// FuzzScan exercises the scanner entry points with arbitrary command
// strings. None of them may panic, and the heredoc-stripped view must be a
// subset of the input's lines.
func FuzzScan(f *testing.F) {
	seeds := []string{
		"",
		"ls -la",
		"ps aux | grep ssh | wc -l",
		"cat << 'EOF' > notes.md\n- item1\nEOF",
		"cat <<- EOF\n\tbody\n\tEOF",
		"wc -c <<< hello",
		"grep<input",
		"FOO=bar make build",
		"echo hi; rm -rf tmp)",
		"echo `date` $(whoami)",
		`echo "unterminated`,
		"cmd 2>&1 2>> log &> all",
		"<< << <<- <<<",
		"(((", // parser failure path
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, cmd string) {
		_ = Classify(cmd)
		_ = CommandNames(cmd)
		_, _ = SplitArgv(cmd)

		stripped := StripHeredocs(cmd)
		inputLines := make(map[string]bool)
		for _, line := range strings.Split(cmd, "\n") {
			inputLines[line] = true
		}
		for _, line := range strings.Split(stripped, "\n") {
			if line != "" && !inputLines[line] {
				t.Errorf("stripped view invented line %q", line)
			}
		}
	})
}
