// Package ui prints human-readable CLI output: import reports, project
// summaries and errors. Colors are used only when the writer is a terminal.
package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/papapumpkin/tptmodel/internal/ansi"
	"github.com/papapumpkin/tptmodel/internal/ingest"
	"github.com/papapumpkin/tptmodel/internal/project"
)

// Printer writes formatted output to w.
type Printer struct {
	w     io.Writer
	color bool
}

// New creates a printer on w.
func New(w io.Writer) *Printer {
	return &Printer{w: w, color: ansi.Enabled(w)}
}

func (p *Printer) style(s string, codes ...string) string {
	return ansi.Style(p.color, s, codes...)
}

// Error prints msg as an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, "%s%s\n", p.style("error: ", ansi.Red, ansi.Bold), msg)
}

// ImportReport prints one line per non-empty outcome, followed by the ids.
func (p *Printer) ImportReport(rep ingest.Report) {
	src := rep.Source
	if src == "" {
		src = "document"
	}
	fmt.Fprintf(p.w, "%s %s\n", p.style("import", ansi.Bold, ansi.Cyan), src)

	rows := []struct {
		label string
		ids   []string
		color string
	}{
		{ingest.OutcomeCreated, rep.Created, ansi.Green},
		{ingest.OutcomeUpdated, rep.Updated, ansi.Yellow},
		{ingest.OutcomeDeleted, rep.Deleted, ansi.Red},
		{ingest.OutcomeUnchanged, rep.Unchanged, ansi.Dim},
	}
	for _, r := range rows {
		if len(r.ids) == 0 {
			continue
		}
		fmt.Fprintf(p.w, "  %s %d  %s\n",
			p.style(fmt.Sprintf("%-9s", r.label), r.color),
			len(r.ids),
			p.style(strings.Join(r.ids, " "), ansi.Dim))
	}
}

// WatchResult prints the outcome of one re-import.
func (p *Printer) WatchResult(res ingest.Result) {
	if res.Err != nil {
		p.Error(res.Err.Error())
		return
	}
	p.ImportReport(res.Report)
}

// ProjectSummary prints entity counts and one line per requirement.
func (p *Printer) ProjectSummary(v project.View) {
	fmt.Fprintf(p.w, "%s %s\n", p.style("project", ansi.Bold, ansi.Cyan), v.Scope)

	kinds := make([]string, 0, len(v.Entities))
	for k := range v.Entities {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(p.w, "  %-20s %d\n", k, v.Entities[k])
	}
	if len(v.Requirements) == 0 {
		return
	}

	fmt.Fprintln(p.w)
	for _, r := range v.Requirements {
		flags := ""
		if r.Modified {
			flags += p.style(" modified", ansi.Yellow)
		}
		if r.Reviewed {
			flags += p.style(" reviewed", ansi.Green)
		}
		fmt.Fprintf(p.w, "  %-12s %-11s %-8s%s\n", r.ExternalID, r.Type, r.Status, flags)
		if n := len(r.LinkedAssessments) + len(r.LinkedScenarios); n > 0 {
			fmt.Fprintf(p.w, "    %s\n", p.style(fmt.Sprintf("%d link(s), %d test case(s)", n, len(r.TestCases)), ansi.Dim))
		}
	}
}
