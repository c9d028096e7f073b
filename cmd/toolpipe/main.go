// Command toolpipe runs the tool invocation pipeline from the command
// line: process a block of agent text against a configured session, check
// a single command against the active policy, or probe namespace
// isolation capability.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/axekit/toolpipe"
	"github.com/axekit/toolpipe/audit"
	"github.com/axekit/toolpipe/sandbox"
)

var (
	cfgFile   string
	auditPath string
)

var rootCmd = &cobra.Command{
	Use:   "toolpipe",
	Short: "Execute tool invocations extracted from agent text",
	Long: `toolpipe detects action requests embedded in model-generated text,
validates them against a whitelist or sandbox policy, executes them, and
prints the feedback block for the next conversational turn.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Process one turn of agent text (file or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args)
		if err != nil {
			return err
		}

		sess, closeFn, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		feedback, err := sess.Process(cmd.Context(), string(raw))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), feedback)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Validate a command against the configured policy without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := toolpipe.LoadConfigFile(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Policy.CheckCommand(args[0]); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "denied: %v\n", err)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "allowed")
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe namespace isolation capability",
	RunE: func(cmd *cobra.Command, _ []string) error {
		level := sandbox.Probe(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "isolation: %s\n", level)
		if !level.Usable() {
			return fmt.Errorf("sandboxed execution is not available on this system")
		}
		return nil
	},
}

// newSession builds a session from the config file and optional audit
// store; the returned func closes both.
func newSession(ctx context.Context) (*toolpipe.Session, func(), error) {
	cfg, err := toolpipe.LoadConfigFile(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	var store *audit.Store
	if auditPath != "" {
		store, err = audit.Open(ctx, auditPath)
		if err != nil {
			return nil, nil, err
		}
		cfg.Audit = store
	}

	sess, err := toolpipe.NewSession(cfg)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}
	return sess, func() {
		_ = sess.Close()
		if store != nil {
			_ = store.Close()
		}
	}, nil
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "toolpipe.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit", "", "SQLite audit log path (empty disables auditing)")
	rootCmd.AddCommand(runCmd, checkCmd, probeCmd)
}

func main() {
	// Must run before anything else: sandboxed commands re-execute this
	// binary as their init helper.
	if toolpipe.MaybeSandboxInit() {
		return
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
