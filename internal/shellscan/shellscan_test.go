package shellscan

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		cmd  string
		want Mode
	}{
		{"ls -la", ArgvOnly},
		{"echo hello world", ArgvOnly},
		{"git commit -m 'done'", ArgvOnly},
		{"ls | wc -l", NeedsShell},
		{"make && make test", NeedsShell},
		{"a || b", NeedsShell},
		{"echo hi; ls", NeedsShell},
		{"echo hi > out.txt", NeedsShell},
		{"echo hi >> out.txt", NeedsShell},
		{"wc -l < in.txt", NeedsShell},
		{"cmd 2> err.log", NeedsShell},
		{"cmd 2>> err.log", NeedsShell},
		{"cmd &> all.log", NeedsShell},
		{"cmd 2>&1", NeedsShell},
		{"cat << EOF\nx\nEOF", NeedsShell},
		{"cat <<- EOF\nx\nEOF", NeedsShell},
		{"wc <<< hi", NeedsShell},
		{"echo $(date)", NeedsShell},
		{"echo `date`", NeedsShell},
	}
	for _, tt := range tests {
		if got := Classify(tt.cmd); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

func TestStripHeredocs(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{
			name: "no heredoc",
			cmd:  "ls -la",
			want: "ls -la",
		},
		{
			name: "quoted delimiter with redirect",
			cmd:  "cat << 'EOF' > notes.md\n- item1\n- item2\nEOF",
			want: "cat << 'EOF' > notes.md",
		},
		{
			name: "unquoted delimiter",
			cmd:  "cat << END\nrm -rf /\nEND\necho done",
			want: "cat << END\necho done",
		},
		{
			name: "dash form strips tab-indented terminator",
			cmd:  "cat <<- EOF\n\tbody\n\tEOF\necho after",
			want: "cat <<- EOF\necho after",
		},
		{
			name: "herestring untouched",
			cmd:  "wc -c <<< hello",
			want: "wc -c <<< hello",
		},
		{
			name: "double-quoted delimiter",
			cmd:  `cat << "STOP"` + "\nsecret\nSTOP",
			want: `cat << "STOP"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHeredocs(tt.cmd); got != tt.want {
				t.Errorf("StripHeredocs(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestCommandNames(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want []string
	}{
		{"single", "ls -la", []string{"ls"}},
		{"pipeline", "ps aux | grep ssh | wc -l", []string{"ps", "grep", "wc"}},
		{"and sequence", "make build && make test", []string{"make", "make"}},
		{"or sequence", "test -f x || touch x", []string{"test", "touch"}},
		{"semicolons", "cd /tmp; ls; pwd", []string{"cd", "ls", "pwd"}},
		{"glued redirect", "grep<input", []string{"grep"}},
		{"redirect target skipped", "echo hi > out.txt", []string{"echo"}},
		{"stderr redirect", "build 2> err.log", []string{"build"}},
		{"env assignment prefix", "FOO=bar make build", []string{"make"}},
		{"bare assignment", "FOO=bar", nil},
		{"subshell", "(cd /tmp && ls)", []string{"cd", "ls"}},
		{"nested subshell", "((echo a); echo b)", []string{"echo", "echo"}},
		{
			"heredoc body excluded",
			"cat << 'EOF' > notes.md\n- item1\n- item2\nEOF",
			[]string{"cat"},
		},
		{
			"command after heredoc",
			"cat << EOF\nrm -rf /\nEOF\necho done",
			[]string{"cat", "echo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommandNames(tt.cmd); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CommandNames(%q) = %v, want %v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestCommandNamesFallback(t *testing.T) {
	// Unbalanced parenthesis defeats the parser; the operator-splitting
	// fallback must still find both names.
	got := CommandNames("echo hi; rm -rf tmp)")
	want := []string{"echo", "rm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CommandNames = %v, want %v", got, want)
	}
}

func TestFallbackCommandNames(t *testing.T) {
	tests := []struct {
		cmd  string
		want []string
	}{
		{"a | b", []string{"a", "b"}},
		{"grep<input", []string{"grep"}},
		{"echo hi > out && wc < in", []string{"echo", "wc"}},
		{"cmd 2>&1", []string{"cmd"}},
		{"(inner)", []string{"inner"}},
		{"X=1 Y=2 run", []string{"run"}},
	}
	for _, tt := range tests {
		if got := fallbackCommandNames(tt.cmd); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("fallbackCommandNames(%q) = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

func TestSplitArgv(t *testing.T) {
	tests := []struct {
		cmd  string
		want []string
	}{
		{"ls -la /tmp", []string{"ls", "-la", "/tmp"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`printf a\ b`, []string{"printf", "a b"}},
		{`echo "nested 'quotes'"`, []string{"echo", "nested 'quotes'"}},
		{`echo $HOME`, []string{"echo", "$HOME"}}, // no expansion
		{"", nil},
		{"   ", nil},
	}
	for _, tt := range tests {
		got, err := SplitArgv(tt.cmd)
		if err != nil {
			t.Errorf("SplitArgv(%q) unexpected error: %v", tt.cmd, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitArgv(%q) = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

func TestSplitArgvUnterminated(t *testing.T) {
	for _, cmd := range []string{`echo "open`, `echo 'open`, `echo trailing\`} {
		if _, err := SplitArgv(cmd); !errors.Is(err, ErrUnterminatedQuote) {
			t.Errorf("SplitArgv(%q) error = %v, want ErrUnterminatedQuote", cmd, err)
		}
	}
}

func TestModeString(t *testing.T) {
	if ArgvOnly.String() != "argv" || NeedsShell.String() != "shell" {
		t.Errorf("Mode.String: got %q / %q", ArgvOnly, NeedsShell)
	}
	if Mode(99).String() != "unknown" {
		t.Errorf("unknown Mode.String = %q", Mode(99).String())
	}
}
