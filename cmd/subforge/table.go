package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"subforge-go/internal/processor"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderSummary shows the run's outcome as key/value rows followed by per-stage call counts.
func renderSummary(res processor.Result) string {
	s := res.Summary
	failed := "-"
	if len(s.Failed) > 0 {
		failed = strings.Join(s.Failed, ", ")
	}
	rows := [][]string{
		{"run", res.RunID},
		{"mode", s.Mode},
		{"units", strconv.Itoa(s.Units)},
		{"completed", strconv.Itoa(s.Completed)},
		{"failed", failed},
		{"items", strconv.Itoa(s.Items)},
		{"elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}

	stages := make([]string, 0, len(s.StageCounts))
	for st := range s.StageCounts {
		stages = append(stages, st)
	}
	sort.Strings(stages)
	for _, st := range stages {
		rows = append(rows, []string{"stage " + st, fmt.Sprint(s.StageCounts[st])})
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
