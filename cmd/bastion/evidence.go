package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bytemomo/bastion/internal/adapter/boltstore"
	"bytemomo/bastion/internal/adapter/jsonreport"
	"bytemomo/bastion/internal/adapter/textreport"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/evidence"
	"bytemomo/bastion/internal/summary"
)

// isInvalidJSON reports whether err is a parse failure rather than a missing file.
func isInvalidJSON(err error) bool {
	var le *domain.LoadError
	return errors.As(err, &le) && le.Reason == jsonreport.ReasonInvalidJSON
}

func (a *app) verifyCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "verify <evidence>",
		Short: "Verify the HMAC signature of an evidence pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.bind(cmd, "sign-key")
			key := a.v.GetString("sign-key")
			if key == "" {
				return fail(exitMalformed, errors.New("--sign-key is required"))
			}
			w := cmd.OutOrStdout()

			pack, err := jsonreport.ReadEvidence(args[0])
			if err != nil {
				if jsonOut && isInvalidJSON(err) {
					printReason(w, "invalid_json")
					return exitWith(exitMalformed)
				}
				return err
			}
			if !pack.Signed() {
				if jsonOut {
					printReason(w, "missing_signature")
					return exitWith(exitFailed)
				}
				return fail(exitFailed, errors.New("evidence pack is not signed"))
			}
			if !evidence.Verify(pack, []byte(key)) {
				if jsonOut {
					printReason(w, "invalid_signature")
					return exitWith(exitFailed)
				}
				return fail(exitFailed, errors.New("evidence signature mismatch"))
			}
			if jsonOut {
				return printJSON(w, map[string]any{"ok": true})
			}
			fmt.Fprintln(w, "evidence signature ok")
			return nil
		},
	}
	cmd.Flags().String("sign-key", "", "HMAC key used to sign evidence")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	return cmd
}

func (a *app) signCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "sign <evidence>",
		Short: "Sign an existing evidence pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.bind(cmd, "sign-key")
			key := a.v.GetString("sign-key")
			if key == "" {
				return fail(exitMalformed, errors.New("--sign-key is required"))
			}
			pack, err := jsonreport.ReadEvidence(args[0])
			if err != nil {
				return err
			}
			signed, err := evidence.Sign(pack, []byte(key))
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0]
			}
			if err := jsonreport.WriteJSON(out, signed); err != nil {
				return fmt.Errorf("write evidence: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote signed evidence pack to %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("sign-key", "", "HMAC key for signing")
	cmd.Flags().StringVar(&out, "out", "", "output path (defaults to rewriting the input)")
	return cmd
}

func reportCmd() *cobra.Command {
	var jsonOut, exitNonzero bool
	cmd := &cobra.Command{
		Use:   "report <evidence>",
		Short: "Summarise an evidence pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			pack, err := jsonreport.ReadEvidence(args[0])
			if err != nil {
				if jsonOut && isInvalidJSON(err) {
					printReason(w, "invalid_json")
					return exitWith(exitMalformed)
				}
				return err
			}
			s := summary.FromEvidence(pack)
			if jsonOut {
				if err := printJSON(w, s); err != nil {
					return err
				}
			} else {
				textreport.Evidence(w, pack)
			}
			if exitNonzero && !s.OK {
				return exitWith(exitFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the summary as JSON")
	cmd.Flags().BoolVar(&exitNonzero, "exit-nonzero", false, "exit 1 when any module failed or errored")
	return cmd
}

func historyCmd() *cobra.Command {
	var archive, runID string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := boltstore.Open(archive)
			if err != nil {
				return err
			}
			defer store.Close()
			w := cmd.OutOrStdout()

			if runID != "" {
				pack, err := store.Get(runID)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(w, pack)
				}
				textreport.Evidence(w, pack)
				return nil
			}

			runs, err := store.List()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(w, runs)
			}
			textreport.History(w, runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "bbolt archive written by run --archive")
	cmd.Flags().StringVar(&runID, "run", "", "show one archived run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	_ = cmd.MarkFlagRequired("archive")
	return cmd
}
