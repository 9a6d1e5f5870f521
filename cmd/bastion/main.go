package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bytemomo/bastion/internal/adapter/logger"
	"bytemomo/bastion/internal/adapter/textreport"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/modules"
	"bytemomo/bastion/internal/native"
	"bytemomo/bastion/internal/schema"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFailed    = 1 // validation failed, signature mismatch, drift
	exitMalformed = 2 // unreadable, unparseable or unsupported input
)

// exitError carries an exit code through cobra. A nil err means the command
// already printed everything the user needs.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func exitWith(code int) error { return &exitError{code: code} }

func main() {
	modules.Init()
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(os.Stderr, err))
	}
}

// exitCode prints err (unless it is silent) and maps it to an exit code.
// Load errors are malformed input; anything else unexpected is a failure.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	code := exitFailed
	var le *domain.LoadError
	if errors.As(err, &le) {
		code = exitMalformed
	}
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		err = ee.err
	}
	if err != nil {
		fmt.Fprintln(w, "error:", err)
	}
	return code
}

type app struct {
	v      *viper.Viper
	logOut io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("BASTION")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "bastion",
		Short:         "Breach and attack simulation orchestrator",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `bastion runs campaigns of security test modules against declared targets,
locally or through a remote agent, and records every outcome in a signed
evidence pack that can be verified, summarised and diffed against a golden run.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logger.ParseLevel(a.v.GetString("log-level"))
			if err != nil {
				return fail(exitMalformed, err)
			}
			a.logOut = logger.SetLoggerToStructured(lvl, a.v.GetString("log-file"))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logOut != nil {
				_ = a.logOut.Close()
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fail(exitMalformed, err)
	})
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "also append structured logs to this file")
	_ = a.v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log-file", root.PersistentFlags().Lookup("log-file"))

	root.AddCommand(initCmd())
	root.AddCommand(a.runCmd())
	root.AddCommand(modulesCmd())
	root.AddCommand(a.verifyCmd())
	root.AddCommand(a.signCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(validateModuleCmd())
	root.AddCommand(validateCampaignCmd())
	root.AddCommand(validateSummaryCmd())
	root.AddCommand(diffSummaryCmd())
	root.AddCommand(policyHashCmd())
	root.AddCommand(exportSchemasCmd())
	root.AddCommand(a.agentCmd())
	return root
}

// bind exposes local flags through viper so BASTION_* variables fill them.
func (a *app) bind(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = a.v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printReason emits the machine-readable failure envelope.
func printReason(w io.Writer, reason string) {
	_ = printJSON(w, map[string]any{"ok": false, "reason": reason})
}

const sampleCampaign = `version: v1
name: "basic-campaign"
targets:
  - id: "local-host"
    name: "Local Host"
    tags: ["dev"]
modules:
  - id: "noop-1"
    module: "noop"
    target_id: "local-host"
    scope_allowlist: ["local"]
    expectations: {}
    params: {}
  - id: "echo-1"
    module: "echo_expectation"
    target_id: "local-host"
    scope_allowlist: ["local"]
    expectations:
      expected_value: "ok"
    params:
      value: "ok"
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <path>",
		Short: "Write a sample campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fail(exitMalformed, fmt.Errorf("file already exists: %s", path))
			}
			if err := writeFile(path, []byte(sampleCampaign)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote example campaign to %s\n", path)
			return nil
		},
	}
}

func modulesCmd() *cobra.Command {
	var describe bool
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List registered modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if describe {
				textreport.Modules(cmd.OutOrStdout(), native.Entries())
				return nil
			}
			for _, name := range native.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&describe, "describe", false, "show module descriptions in a table")
	return cmd
}

func exportSchemasCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-schemas",
		Short: "Write JSON schemas for campaigns, policies, evidence and summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := schema.Export(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote schemas to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory for JSON schemas")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
