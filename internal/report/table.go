package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table 在终端输出实体汇总表
type Table struct {
	Out io.Writer
}

func (t *Table) Report(_ context.Context, s *Summary) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(t.Out)
	tw.SetTitle(fmt.Sprintf("run %s  list=%s pages=%d entities=%d records=%d", s.RunID, s.ListState, s.Pages, s.Entities, len(s.Records)))

	header := table.Row{"#", "ID", "Title"}
	for _, f := range s.Facets {
		header = append(header, f.Name)
	}
	tw.AppendHeader(header)

	for i, rec := range s.Records {
		title := ""
		if rec.Entity != nil {
			title = text.Trim(rec.Entity.Title, 40)
		}
		row := table.Row{i + 1, rec.ID, title}
		for _, f := range s.Facets {
			m, ok := rec.Facets[f.Name]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%d metrics", len(m)))
		}
		tw.AppendRow(row)
	}

	if len(s.Skipped) > 0 {
		statuses := make([]string, 0, len(s.Skipped))
		for k := range s.Skipped {
			statuses = append(statuses, k)
		}
		sort.Strings(statuses)
		for _, st := range statuses {
			tw.AppendFooter(table.Row{"", "skipped", fmt.Sprintf("%s: %d", st, s.Skipped[st])})
		}
	}
	if s.Partial {
		tw.AppendFooter(table.Row{"", "partial", s.Error})
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
	return nil
}
