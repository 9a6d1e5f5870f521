package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bytemomo/bastion/internal/adapter/yamlconfig"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/native"
	"bytemomo/bastion/internal/policy"
	"bytemomo/bastion/internal/summary"
)

func validateModuleCmd() *cobra.Command {
	var specPath, resultPath string
	cmd := &cobra.Command{
		Use:   "validate-module",
		Short: "Check a module spec and optionally a module result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := yamlconfig.LoadModuleSpec(specPath); err != nil {
				return err
			}
			if resultPath != "" {
				if _, err := yamlconfig.LoadModuleResult(resultPath); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "module spec ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&specPath, "spec", "", "path to module spec YAML/JSON")
	cmd.Flags().StringVar(&resultPath, "result", "", "path to module result JSON")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func validateCampaignCmd() *cobra.Command {
	var policyPath string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "validate-campaign <campaign>",
		Short: "Lint a campaign against the registry and policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			camp, err := yamlconfig.LoadCampaign(args[0])
			if err != nil {
				if jsonOut {
					printReason(w, "invalid_campaign")
					return exitWith(exitMalformed)
				}
				return err
			}
			var pol *domain.PolicySpec
			if policyPath != "" {
				p, err := yamlconfig.LoadPolicy(policyPath)
				if err != nil {
					if jsonOut {
						printReason(w, "invalid_policy")
						return exitWith(exitMalformed)
					}
					return err
				}
				pol = &p
			}

			findings := domain.ValidateCampaign(camp, native.Default().Has, policy.Resolver(pol))
			if jsonOut {
				if err := printJSON(w, map[string]any{"errors": findings, "ok": len(findings) == 0}); err != nil {
					return err
				}
			} else if len(findings) == 0 {
				fmt.Fprintln(w, "campaign ok")
			} else {
				for _, f := range findings {
					fmt.Fprintf(w, "%s: %s (%s)\n", f.Code, f.Message, f.Path)
				}
			}
			if len(findings) > 0 {
				return exitWith(exitFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyPath, "policy", "", "policy YAML/JSON path with allowlists")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	return cmd
}

// loadSummary reads a summary payload, printing the invalid_json envelope
// when asked to.
func loadSummary(cmd *cobra.Command, path string, jsonOut bool) (any, error) {
	payload, err := yamlconfig.LoadPayload(path)
	if err != nil {
		if jsonOut {
			printReason(cmd.OutOrStdout(), "invalid_json")
			return nil, exitWith(exitMalformed)
		}
		return nil, err
	}
	return payload, nil
}

func validateSummaryCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "validate-summary <summary>",
		Short: "Validate a summary JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := loadSummary(cmd, args[0], jsonOut)
			if err != nil {
				return err
			}
			errs := summary.Validate(payload)
			if errs == nil {
				errs = []string{}
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(w, map[string]any{"errors": errs, "ok": len(errs) == 0}); err != nil {
					return err
				}
			} else if len(errs) == 0 {
				fmt.Fprintln(w, "summary ok")
			} else {
				for _, e := range errs {
					fmt.Fprintln(w, e)
				}
			}
			if len(errs) > 0 {
				return exitWith(exitFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	return cmd
}

func diffSummaryCmd() *cobra.Command {
	var ignoreFields, ignorePaths []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "diff-summary <golden> <candidate>",
		Short: "Compare a summary against a golden summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			golden, err := loadSummary(cmd, args[0], jsonOut)
			if err != nil {
				return err
			}
			candidate, err := loadSummary(cmd, args[1], jsonOut)
			if err != nil {
				return err
			}
			diffs, err := summary.Diff(golden, candidate, ignoreFields, ignorePaths)
			if err != nil {
				return fail(exitMalformed, err)
			}
			if diffs == nil {
				diffs = []string{}
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(w, map[string]any{"diffs": diffs, "ok": len(diffs) == 0}); err != nil {
					return err
				}
			} else if len(diffs) == 0 {
				fmt.Fprintln(w, "summaries match")
			} else {
				for _, d := range diffs {
					fmt.Fprintln(w, d)
				}
			}
			if len(diffs) > 0 {
				return exitWith(exitFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&ignoreFields, "ignore-field", nil, "top-level field to ignore (repeatable)")
	cmd.Flags().StringArrayVar(&ignorePaths, "ignore-path", nil, "path glob to ignore, e.g. $.results[*].duration_ms (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	return cmd
}

func policyHashCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "policy-hash <policy>",
		Short: "Print the canonical hash of a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			p, err := yamlconfig.LoadPolicy(args[0])
			if err != nil {
				if jsonOut {
					printReason(w, "invalid_policy")
					return exitWith(exitMalformed)
				}
				return err
			}
			hash, err := policy.Hash(p)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(w, map[string]any{"policy_hash": hash})
			}
			fmt.Fprintln(w, hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	return cmd
}
