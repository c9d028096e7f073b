package toolpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axekit/toolpipe/audit"
	"github.com/axekit/toolpipe/internal/confine"
	"github.com/axekit/toolpipe/internal/shellscan"
	"github.com/axekit/toolpipe/sandbox"
)

// probeTimeout bounds the one-time isolation capability probe.
const probeTimeout = 10 * time.Second

// probeFn performs the isolation capability probe. It is a variable so
// tests can pin the level without cloning namespaces.
var probeFn = sandbox.Probe

// Session is one agent session's tool invocation pipeline. It holds the
// session-scoped workspace root set and security policy, both read-only
// during invocation processing, and processes each turn's raw text
// strictly in order, one invocation at a time.
type Session struct {
	mu     sync.Mutex
	closed bool

	id     uuid.UUID
	cfg    Config
	policy Policy
	logger *slog.Logger
	level  sandbox.IsolationLevel
	seq    int
}

// NewSession validates cfg and constructs a session. When the sandbox
// policy is active, the namespace capability probe runs exactly once here:
// degraded isolation logs a single warning, and a fully unavailable
// runtime either fails construction (fail closed) or switches to the
// policy's explicit whitelist fallback. There is no implicit downgrade.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config must not be nil", ErrConfigInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.New(),
		cfg:    cfg.withDefaults(),
		policy: cfg.Policy,
	}
	s.logger = s.cfg.Logger

	if sp, ok := s.policy.(*SandboxPolicy); ok {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		s.level = probeFn(ctx)

		switch s.level {
		case sandbox.LevelFull:
			// Nothing to report.
		case sandbox.LevelNoUidMapping:
			s.logger.Warn("user namespace mapping unavailable; sandbox degrades to filesystem/process separation",
				"session", s.id, "isolation", s.level.String())
		case sandbox.LevelUnavailable:
			if sp.Fallback == nil {
				return nil, fmt.Errorf("%w: no fallback policy configured", ErrSandboxUnavailable)
			}
			s.logger.Warn("sandbox runtime unavailable; falling back to whitelist policy",
				"session", s.id)
			s.policy = sp.Fallback
		}
	}

	if s.cfg.Audit != nil {
		if err := s.cfg.Audit.BeginSession(context.Background(), audit.Session{
			ID:     s.id.String(),
			Policy: s.policy.Mode(),
			Roots:  s.cfg.Roots,
		}); err != nil {
			return nil, fmt.Errorf("toolpipe: audit session: %w", err)
		}
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// IsolationLevel returns the probed isolation level; meaningful only when
// the sandbox policy is active.
func (s *Session) IsolationLevel() sandbox.IsolationLevel { return s.level }

// Close marks the session closed. Subsequent calls return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return nil
}

// Process runs one full turn: extract invocations from rawText, validate
// and execute each strictly in textual order, and return the formatted
// feedback block. Execution is synchronous; no invocation begins before
// the previous one's result is produced.
func (s *Session) Process(ctx context.Context, rawText string) (string, error) {
	ext := Extract(rawText)
	for _, w := range ext.Warnings {
		s.logger.Debug("extraction warning", "session", s.id, "message", w.Message)
	}

	results := make([]InvocationResult, 0, len(ext.Invocations))
	for _, inv := range ext.Invocations {
		res, err := s.Execute(ctx, inv)
		if err != nil {
			return "", err
		}
		results = append(results, InvocationResult{Invocation: inv, Result: res})
	}
	return FormatFeedback(results, ext.Warnings), nil
}

// Execute validates and executes a single invocation. The only error
// return is ErrSessionClosed; every per-invocation failure is reported
// inside the ExecutionResult so the turn can continue.
func (s *Session) Execute(ctx context.Context, inv Invocation, opts ...Option) (ExecutionResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ExecutionResult{}, ErrSessionClosed
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	co := mergeCallOptions(opts...)

	var res ExecutionResult
	switch inv.Kind {
	case KindExec:
		res = s.runExec(ctx, inv.Command, co)
	case KindRead:
		res = readFile(inv.Path, s.cfg.Roots, s.confineOptions(), s.cfg.MaxReadBytes)
	case KindWrite:
		res = writeFile(inv.Path, inv.Content, s.cfg.Roots, s.confineOptions(), false)
	case KindAppend:
		res = writeFile(inv.Path, inv.Content, s.cfg.Roots, s.confineOptions(), true)
	case KindListDir:
		res = listDir(inv.Path, s.cfg.Roots, s.confineOptions())
	default:
		res = deniedResult(ErrorValidationDenied, fmt.Sprintf("unknown invocation kind %d", inv.Kind))
	}

	s.record(ctx, seq, inv, res)
	return res, nil
}

// runExec validates a command against the active policy and dispatches it
// to the appropriate backend.
func (s *Session) runExec(ctx context.Context, command string, co *callOptions) ExecutionResult {
	if err := s.policy.CheckCommand(command); err != nil {
		return deniedResult(ErrorValidationDenied, err.Error())
	}

	timeout := s.cfg.Timeout
	if co.timeout > 0 {
		timeout = co.timeout
	}
	maxOutput := s.cfg.MaxOutputBytes
	if co.maxOutputBytes > 0 {
		maxOutput = co.maxOutputBytes
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if sp, ok := s.policy.(*SandboxPolicy); ok {
		return s.runSandboxed(ctx, command, sp, co, maxOutput)
	}

	// Whitelist mode executes on the host: argv-only commands run without
	// a shell, everything else goes through it.
	var cmd = directCommand(ctx, command)
	if shellscan.Classify(command) == shellscan.NeedsShell {
		cmd = shellCommand(ctx, s.cfg.Shell, command)
	}
	cmd.Dir = s.cfg.WorkDir
	applyEnv(cmd, co.env)
	return runCommand(ctx, cmd, maxOutput)
}

// runSandboxed executes the original command string inside namespace
// isolation. The payload is byte-for-byte what the agent wrote; validation
// views never reach this path.
func (s *Session) runSandboxed(ctx context.Context, command string, sp *SandboxPolicy, co *callOptions, maxOutput int) ExecutionResult {
	spec := &sandbox.Spec{
		Shell:      s.cfg.Shell,
		Command:    command,
		WorkDir:    s.cfg.WorkDir,
		Roots:      s.cfg.Roots,
		Binds:      sp.Binds,
		Namespaces: sp.Namespaces,
	}
	cmd, cleanup, err := sandbox.Command(ctx, spec, s.level)
	if err != nil {
		return deniedResult(ErrorRuntimeUnavailable, err.Error())
	}
	defer cleanup()
	applyEnv(cmd, co.env)
	return runCommand(ctx, cmd, maxOutput)
}

// Confine validates path against the session's workspace roots and
// returns its absolute form. Rejections return a *PathDeniedError
// wrapping ErrPathOutsideRoots; callers can pre-flight file targets
// without executing an invocation.
func (s *Session) Confine(path string) (string, error) {
	return confinePath(path, s.cfg.Roots, s.confineOptions())
}

// confineOptions builds the confinement options from session config.
func (s *Session) confineOptions() confine.Options {
	return confine.Options{
		WorkDir:         s.cfg.WorkDir,
		ResolveSymlinks: s.cfg.ResolveSymlinks,
	}
}

// record writes the invocation outcome to the audit store, if configured.
// Audit failures are logged, never fatal to the turn.
func (s *Session) record(ctx context.Context, seq int, inv Invocation, res ExecutionResult) {
	if s.cfg.Audit == nil {
		return
	}
	err := s.cfg.Audit.Record(ctx, audit.Record{
		SessionID: s.id.String(),
		Seq:       seq,
		Kind:      inv.Kind.String(),
		Origin:    inv.Origin.String(),
		Target:    inv.Target(),
		OK:        res.OK,
		ExitCode:  res.ExitCode,
		ErrorKind: res.Kind.String(),
		Detail:    res.Detail,
		Duration:  res.Duration,
	})
	if err != nil {
		s.logger.Warn("audit record failed", "session", s.id, "err", err)
	}
}
