package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bytemomo/bastion/internal/adapter/boltstore"
	"bytemomo/bastion/internal/adapter/jsonreport"
	"bytemomo/bastion/internal/adapter/yamlconfig"
	"bytemomo/bastion/internal/agent"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/runner"
)

var agentFlags = []string{
	"agent-url", "agent-enabled", "agent-cert", "agent-key", "agent-ca", "agent-server-name",
	"agent-id", "agent-policy-hash", "agent-token-secret", "agent-allow-insecure", "agent-timeout",
}

func (a *app) runCmd() *cobra.Command {
	var (
		out           string
		deterministic bool
		policyPath    string
		archive       string
		runsDir       string
	)
	cmd := &cobra.Command{
		Use:   "run <campaign>",
		Short: "Execute a campaign and write its evidence pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.bind(cmd, append([]string{"sign-key"}, agentFlags...)...)
			if out == "" {
				return fail(exitMalformed, errors.New("--out is required"))
			}

			camp, err := yamlconfig.LoadCampaign(args[0])
			if err != nil {
				return err
			}
			var pol *domain.PolicySpec
			if policyPath != "" {
				p, err := yamlconfig.LoadPolicy(policyPath)
				if err != nil {
					return err
				}
				pol = &p
			}
			agentCfg, err := a.agentConfig()
			if err != nil {
				return fail(exitMalformed, err)
			}

			var repos evidenceRepos
			if runsDir != "" {
				repos = append(repos, jsonreport.New(runsDir))
			}
			if archive != "" {
				store, err := boltstore.Open(archive)
				if err != nil {
					return err
				}
				defer store.Close()
				repos = append(repos, store)
			}

			r := runner.Runner{
				Log:           logrus.WithField("campaign_path", args[0]),
				Agent:         agentCfg,
				Policy:        pol,
				Deterministic: deterministic,
			}
			if key := a.v.GetString("sign-key"); key != "" {
				r.SignKey = []byte(key)
			}
			if len(repos) > 0 {
				r.Store = repos
			}

			pack, err := r.Execute(cmd.Context(), camp)
			if err != nil {
				return err
			}
			if err := jsonreport.WriteJSON(out, pack); err != nil {
				return fmt.Errorf("write evidence: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote evidence pack to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write evidence pack JSON")
	cmd.Flags().BoolVar(&deterministic, "deterministic", false, "use stable timestamps and run id for reproducibility")
	cmd.Flags().String("sign-key", "", "HMAC key for signing the evidence pack")
	cmd.Flags().StringVar(&policyPath, "policy", "", "policy YAML/JSON path with allowlists")
	cmd.Flags().StringVar(&archive, "archive", "", "bbolt file to archive the evidence pack in")
	cmd.Flags().StringVar(&runsDir, "runs-dir", "", "directory to also write runs/<run_id>.json into")
	addAgentFlags(cmd)
	return cmd
}

func addAgentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("agent-url", "", "remote agent base URL (https://, grpcs://, mock://)")
	f.Bool("agent-enabled", false, "enable remote agent execution")
	f.String("agent-cert", "", "client TLS certificate path")
	f.String("agent-key", "", "client TLS key path")
	f.String("agent-ca", "", "CA bundle path for agent TLS")
	f.String("agent-server-name", "", "TLS server name override")
	f.String("agent-id", "", "agent id used during handshake")
	f.String("agent-policy-hash", "", "expected agent policy hash")
	f.String("agent-token-secret", "", "HS256 secret for agent bearer tokens")
	f.Bool("agent-allow-insecure", false, "permit http:// and grpc:// agent URLs")
	f.Duration("agent-timeout", agent.DefaultTimeout, "per-request agent timeout")
}

// agentConfig returns nil when remote execution is disabled.
func (a *app) agentConfig() (*agent.Config, error) {
	if !a.v.GetBool("agent-enabled") {
		return nil, nil
	}
	url := a.v.GetString("agent-url")
	if url == "" {
		return nil, errors.New("--agent-url is required when --agent-enabled is set")
	}
	return &agent.Config{
		BaseURL:            url,
		Enabled:            true,
		CertPath:           a.v.GetString("agent-cert"),
		KeyPath:            a.v.GetString("agent-key"),
		CAPath:             a.v.GetString("agent-ca"),
		ServerName:         a.v.GetString("agent-server-name"),
		Timeout:            a.v.GetDuration("agent-timeout"),
		AgentID:            a.v.GetString("agent-id"),
		ExpectedPolicyHash: a.v.GetString("agent-policy-hash"),
		AllowInsecure:      a.v.GetBool("agent-allow-insecure"),
		TokenSecret:        a.v.GetString("agent-token-secret"),
	}, nil
}

// evidenceRepos fans a finished pack out to every configured archive.
type evidenceRepos []domain.EvidenceRepo

func (rs evidenceRepos) Save(pack domain.EvidencePack) error {
	var errs []error
	for _, r := range rs {
		if err := r.Save(pack); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
