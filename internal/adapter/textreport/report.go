// Package textreport renders evidence, module and run-history tables for
// terminals.
package textreport

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"bytemomo/bastion/internal/adapter/boltstore"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/native"
)

// Evidence writes a human-readable report of pack to w.
func Evidence(w io.Writer, pack domain.EvidencePack) {
	fmt.Fprintf(w, "Campaign: %s\n", pack.CampaignName)
	fmt.Fprintf(w, "Run: %s\n", pack.RunID)
	fmt.Fprintf(w, "Score: %.2f\n", pack.Score)
	s := pack.Summary
	fmt.Fprintf(w, "Summary: total=%d passed=%d failed=%d errored=%d skipped=%d\n",
		s.Total, s.Passed, s.Failed, s.Errored, s.Skipped)
	if pack.Signed() {
		fmt.Fprintf(w, "Signature: %s\n", pack.SignatureAlg)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Modules")

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Module", "Status", "Duration", "Notes"})
	for _, r := range pack.Results {
		tw.AppendRow(table.Row{r.ModuleID, r.Status, r.Duration().Round(time.Millisecond), r.Notes})
	}
	tw.Render()
}

// Modules lists registered modules with their descriptions.
func Modules(w io.Writer, entries []native.Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Module", "Description"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Name, e.Descriptor.Description})
	}
	tw.Render()
}

// History lists archived runs.
func History(w io.Writer, runs []boltstore.RunRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Run", "Campaign", "Started", "Score", "Passed", "Failed", "Errored", "Signed"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.RunID, r.CampaignName, r.StartedAt.UTC().Format(time.RFC3339),
			fmt.Sprintf("%.2f", r.Score), r.Summary.Passed, r.Summary.Failed, r.Summary.Errored, r.Signed,
		})
	}
	tw.Render()
}
