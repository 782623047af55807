package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"circuitvc/internal/diff"
	"circuitvc/internal/engine"
	"circuitvc/internal/history"

	"github.com/fatih/color"
)

// laneColor maps a lane's palette entry onto a terminal color.
func laneColor(c history.Color) *color.Color {
	hex := strings.TrimPrefix(c.Hex(), "#")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.New(color.Reset)
	}
	return color.RGB(int(v>>16&0xff), int(v>>8&0xff), int(v&0xff))
}

// graphCells draws the lane columns of one row: the row's own lane gets
// its marker, lanes passing through get a bar.
func graphCells(row history.Row, width int) string {
	cells := make([]string, width)
	for i := range cells {
		cells[i] = " "
	}
	for _, l := range row.PassingLanes {
		if l.Column < width {
			cells[l.Column] = laneColor(l.Color).Sprint("|")
		}
	}

	marker := "*"
	if row.Kind == history.KindBranch {
		marker = "o"
	}
	if row.Lane.Column < width {
		cells[row.Lane.Column] = laneColor(row.Lane.Color).Sprint(marker)
	}
	return strings.Join(cells, " ")
}

func labels(row history.Row) string {
	var parts []string
	parts = append(parts, row.Branches...)
	for _, t := range row.Tags {
		parts = append(parts, "tag: "+t)
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + color.New(color.FgYellow).Sprintf("(%s)", strings.Join(parts, ", "))
}

// renderLog writes one line per history row, newest first.
func renderLog(w io.Writer, view history.View) {
	width := view.Width
	if width < 1 {
		width = 1
	}
	id := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, row := range view.Rows {
		graph := graphCells(row, width)
		switch row.Kind {
		case history.KindBranch:
			fmt.Fprintf(w, "%s  %s %s\n", graph, dim("branch"), row.BranchName)
		default:
			line := fmt.Sprintf("%s  %s%s %s", graph, id(engine.ShortID(row.Ref)), labels(row), row.Message)
			if row.Author != "" {
				line += dim(" <" + row.Author + ">")
			}
			fmt.Fprintln(w, line)
		}
	}

	red := color.New(color.FgRed).SprintFunc()
	for _, p := range view.Problems {
		fmt.Fprintf(w, "%s %s\n", red("warning:"), p.Message)
	}
}

// renderDiff colors a diff's removal and addition lines.
func renderDiff(w io.Writer, d *diff.Diff) {
	red := color.New(color.FgRed).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	for _, line := range strings.Split(strings.TrimSuffix(d.Format(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			fmt.Fprintln(w, red(line))
		case strings.HasPrefix(line, "+ "):
			fmt.Fprintln(w, green(line))
		}
	}
}
