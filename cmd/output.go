package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/sells-group/studio-suggest/internal/ingest"
	"github.com/sells-group/studio-suggest/internal/lifecycle"
	"github.com/sells-group/studio-suggest/internal/model"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSuggestionsList writes a tabular list of suggestions to w.
func formatSuggestionsList(out io.Writer, list []model.Suggestion) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCONF\tENTITY\tTITLE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t----\t------\t-----\t-------")

	for _, s := range list {
		title := s.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			truncateID(s.ID),
			s.Type,
			s.Status,
			s.ConfidenceScore,
			s.RelatedEntityCode,
			title,
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatPreview writes the planned mutation to w.
func formatPreview(out io.Writer, p *model.Preview) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	target := p.Table
	if p.RecordID != "" {
		target += "/" + p.RecordID
	}
	_, _ = fmt.Fprintf(w, "Action:\t%s\n", p.Action)
	if target != "" {
		_, _ = fmt.Fprintf(w, "Target:\t%s\n", target)
	}
	for _, c := range p.Changes {
		_, _ = fmt.Fprintf(w, "  %s:\t%v -> %v\n", c.Field, display(c.OldValue), display(c.NewValue))
	}
	_ = w.Flush()
}

// formatChanges writes change records to w.
func formatChanges(out io.Writer, recs []model.ChangeRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACTION\tTABLE\tRECORD\tFIELD\tOLD\tNEW\tREVERSED")
	for _, c := range recs {
		reversed := ""
		if c.ReversedAt != nil {
			reversed = c.ReversedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%v\t%s\n",
			c.Action, c.TableName, truncateID(c.RecordID), c.FieldName,
			display(c.Old()), display(c.New()), reversed)
	}
	_ = w.Flush()
}

func display(v any) any {
	if v == nil {
		return "null"
	}
	return v
}

// formatTally writes a batch result to w, failures sorted by key.
func formatTally(out io.Writer, op string, t *lifecycle.Tally) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s:\t%d total, %d succeeded, %d failed\n", op, t.Total, t.Succeeded, t.Failed)
	keys := make([]string, 0, len(t.Errors))
	for k := range t.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", k, t.Errors[k])
	}
	_ = w.Flush()
}

// formatStats writes queue statistics to w.
func formatStats(out io.Writer, s *model.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total suggestions:\t%d\n", s.Total)
	for _, st := range model.AllStatuses {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, s.ByStatus[st])
	}
	_, _ = fmt.Fprintln(w, "By type:")
	for _, t := range model.AllSuggestionTypes {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", t, s.ByType[t])
	}
	_, _ = fmt.Fprintf(w, "Patterns:\t%d (%d active)\n", s.Patterns, s.ActivePatterns)
	_ = w.Flush()
}

// formatPatterns writes a tabular list of patterns to w.
func formatPatterns(out io.Writer, pats []model.Pattern) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tKEY\tTARGET\tCONF\tUSED\tCORRECT\tREJECTED\tACTIVE")
	for _, p := range pats {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%d\t%d\t%t\n",
			p.PatternType, p.PatternKey, p.TargetCode, p.Confidence,
			p.TimesUsed, p.TimesCorrect, p.TimesRejected, p.IsActive)
	}
	_ = w.Flush()
}

// formatIngestSummary writes a feed summary to w.
func formatIngestSummary(out io.Writer, s *ingest.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Signals read:\t%d\n", s.Read)
	_, _ = fmt.Fprintf(w, "Created:\t%d\n", s.Created)
	_, _ = fmt.Fprintf(w, "Merged:\t%d\n", s.Merged)
	_, _ = fmt.Fprintf(w, "Duplicates:\t%d\n", s.Duplicates)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	keys := make([]string, 0, len(s.Errors))
	for k := range s.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", k, s.Errors[k])
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
