package toolpipe

import "time"

// Option configures a single Execute call.
type Option func(*callOptions)

// callOptions holds per-call configuration applied via Option functions.
type callOptions struct {
	timeout        time.Duration
	maxOutputBytes int
	env            []string
}

// WithTimeout overrides the session timeout for a single call.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithMaxOutputBytes overrides the captured output limit for a single call.
func WithMaxOutputBytes(n int) Option {
	return func(o *callOptions) {
		o.maxOutputBytes = n
	}
}

// WithEnv appends environment variables (KEY=value form) for a single call.
func WithEnv(env ...string) Option {
	cpy := append([]string(nil), env...)
	return func(o *callOptions) {
		o.env = append(o.env, cpy...)
	}
}

// mergeCallOptions applies per-call Option functions and returns the result.
func mergeCallOptions(opts ...Option) *callOptions {
	co := &callOptions{}
	for _, opt := range opts {
		opt(co)
	}
	return co
}
