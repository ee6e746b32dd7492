package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/storage"
)

var (
	header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	cell   = lipgloss.NewStyle().PaddingRight(2)
)

var box = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("238")).
	Padding(0, 1)

// RenderRun formats the metadata of a stored run.
func RenderRun(meta storage.RunMetadata) string {
	var b strings.Builder

	status := green.Render(meta.Status)
	if meta.Code != dynamo.CodeSuccess {
		status = red.Render(meta.Status)
	}
	fmt.Fprintf(&b, "%s  %s\n", header.Render(meta.ID), status)
	fmt.Fprintf(&b, "%s %s  %s %s  %s %s (%d dof)\n",
		dim.Render("scenario"), white.Render(meta.Scenario),
		dim.Render("solver"), white.Render(meta.Solver),
		dim.Render("vehicle"), white.Render(meta.Vehicle), meta.DOF)
	fmt.Fprintf(&b, "%s %s  %s %.2fs\n",
		dim.Render("started"), meta.Timestamp.Format("2006-01-02 15:04:05"),
		dim.Render("elapsed"), meta.Elapsed)

	if len(meta.Points) > 0 {
		b.WriteString("\n")
		b.WriteString(renderPoints(meta.Points))
	}
	return box.Render(strings.TrimRight(b.String(), "\n"))
}

func renderPoints(points []storage.PointRecord) string {
	names := metricNames(points)
	cols := append([]string{"sim", "v", "R", "cant", "t", "status", "steps", "rejected"}, names...)

	rows := make([][]string, 0, len(points))
	for _, p := range points {
		row := []string{
			fmt.Sprint(p.Sim),
			fmt.Sprintf("%.2f", p.Speed),
			fmt.Sprintf("%.0f", p.Radius),
			fmt.Sprintf("%.3f", p.Cant),
			fmt.Sprintf("%.2f-%.2f", p.T0, p.T1),
			p.Status,
			fmt.Sprint(p.Stats.Steps),
			fmt.Sprint(p.Stats.Rejected),
		}
		for _, n := range names {
			v, ok := p.Metrics[n]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.4g", v))
		}
		rows = append(rows, row)
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range rows {
		for i, v := range row {
			widths[i] = max(widths[i], lipgloss.Width(v))
		}
	}

	var b strings.Builder
	line := make([]string, len(cols))
	for i, c := range cols {
		line[i] = cell.Width(widths[i] + 2).Render(header.Render(c))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...) + "\n")
	for r, row := range rows {
		for i, v := range row {
			style := white
			if cols[i] == "status" && points[r].Code != dynamo.CodeSuccess {
				style = red
			}
			line[i] = cell.Width(widths[i] + 2).Render(style.Render(v))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...) + "\n")
	}
	return b.String()
}

func metricNames(points []storage.PointRecord) []string {
	seen := map[string]bool{}
	var names []string
	for _, p := range points {
		for n := range p.Metrics {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
