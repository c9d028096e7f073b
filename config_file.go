package toolpipe

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of a configuration file. Exactly one
// policy block must be present; the mode field makes the choice explicit
// rather than inferring it from which block happens to exist.
type fileConfig struct {
	Roots           []string `yaml:"roots"`
	WorkDir         string   `yaml:"work_dir"`
	Shell           string   `yaml:"shell"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	MaxReadBytes    int      `yaml:"max_read_bytes"`
	MaxOutputBytes  int      `yaml:"max_output_bytes"`
	ResolveSymlinks bool     `yaml:"resolve_symlinks"`

	Policy struct {
		Mode      string           `yaml:"mode"`
		Whitelist *WhitelistPolicy `yaml:"whitelist"`
		Sandbox   *SandboxPolicy   `yaml:"sandbox"`
	} `yaml:"policy"`
}

// LoadConfigFile reads a YAML configuration file into a Config. The
// result still needs Validate (NewSession performs it).
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toolpipe: read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	cfg := DefaultConfig()
	cfg.Roots = fc.Roots
	cfg.WorkDir = fc.WorkDir
	if fc.Shell != "" {
		cfg.Shell = fc.Shell
	}
	if fc.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(fc.TimeoutSeconds) * time.Second
	}
	if fc.MaxReadBytes > 0 {
		cfg.MaxReadBytes = fc.MaxReadBytes
	}
	if fc.MaxOutputBytes > 0 {
		cfg.MaxOutputBytes = fc.MaxOutputBytes
	}
	cfg.ResolveSymlinks = fc.ResolveSymlinks

	switch fc.Policy.Mode {
	case "whitelist":
		if fc.Policy.Whitelist == nil {
			return nil, fmt.Errorf("%w: policy.mode is whitelist but no whitelist block", ErrConfigInvalid)
		}
		cfg.Policy = fc.Policy.Whitelist
	case "sandbox":
		if fc.Policy.Sandbox == nil {
			return nil, fmt.Errorf("%w: policy.mode is sandbox but no sandbox block", ErrConfigInvalid)
		}
		cfg.Policy = fc.Policy.Sandbox
	case "":
		return nil, fmt.Errorf("%w: policy.mode is required", ErrConfigInvalid)
	default:
		return nil, fmt.Errorf("%w: unknown policy.mode %q", ErrConfigInvalid, fc.Policy.Mode)
	}
	return cfg, nil
}
