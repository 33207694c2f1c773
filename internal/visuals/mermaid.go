package visuals

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"dpm-server/internal/domain"
	"dpm-server/internal/schedule"
	"dpm-server/internal/simulation"
)

// maxGanttTasks caps the chart size; Mermaid's gantt layout becomes
// unreadable well before a large program's full activity count.
const maxGanttTasks = 40

// GenerateGanttChart renders the scheduled network as a Mermaid gantt chart.
// Dates are derived from the CPM early dates via the working calendar, with
// the program anchored at its first working day. Critical activities are
// tagged crit; zero-duration activities render as milestones.
func GenerateGanttChart(programName string, programStart time.Time, cal *schedule.Calendar, activities []*domain.Activity, res *schedule.CPMResult) string {
	if len(activities) == 0 || res == nil {
		return ""
	}

	ordered := make([]*domain.Activity, 0, len(activities))
	for _, a := range activities {
		if _, ok := res.Activities[a.ID]; ok {
			ordered = append(ordered, a)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		ti, tj := res.Activities[ordered[i].ID], res.Activities[ordered[j].ID]
		if ti.EarlyStart != tj.EarlyStart {
			return ti.EarlyStart < tj.EarlyStart
		}
		return ordered[i].Code < ordered[j].Code
	})
	if len(ordered) > maxGanttTasks {
		ordered = ordered[:maxGanttTasks]
	}

	base := cal.NextWorkingDay(programStart)

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("gantt\n")
	sb.WriteString(fmt.Sprintf("    title %s\n", sanitizeLabel(programName)))
	sb.WriteString("    dateFormat YYYY-MM-DD\n")
	sb.WriteString("    axisFormat %m-%d\n")

	for _, a := range ordered {
		times := res.Activities[a.ID]
		start := cal.AddWorkingDays(base, times.EarlyStart)
		name := sanitizeLabel(a.Name)

		if a.Milestone || a.Duration == 0 {
			sb.WriteString(fmt.Sprintf("    %s :milestone, %s, %s, 0d\n", name, a.Code, start.Format("2006-01-02")))
			continue
		}

		finish := cal.AddWorkingDays(base, times.EarlyFinish-1)
		tag := ""
		if times.IsCritical {
			tag = "crit, "
		}
		sb.WriteString(fmt.Sprintf("    %s :%s%s, %s, %s\n", name, tag, a.Code, start.Format("2006-01-02"), finish.Format("2006-01-02")))
	}

	sb.WriteString("```")
	return sb.String()
}

// GenerateSimulationCDF renders the forecast percentiles as a Mermaid bar
// chart, one bar per confidence level.
func GenerateSimulationCDF(p simulation.Percentiles) string {
	if p.P95 == 0 {
		return ""
	}

	labels := []string{
		"\"P10 (Aggressive)\"",
		"\"P50 (Coin Toss)\"",
		"\"P80 (Likely)\"",
		"\"P90 (Conservative)\"",
		"\"P95 (Safe)\"",
	}
	values := []string{
		fmt.Sprintf("%.0f", p.P10),
		fmt.Sprintf("%.0f", p.P50),
		fmt.Sprintf("%.0f", p.P80),
		fmt.Sprintf("%.0f", p.P90),
		fmt.Sprintf("%.0f", p.P95),
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Schedule Risk (Cumulative Probability)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Duration (Working Days)\" 0 --> %d\n", int(math.Ceil(p.P95*1.1))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateCriticalityChart renders per-activity criticality indices from a
// network-mode simulation as a Mermaid bar chart, highest first.
func GenerateCriticalityChart(res *simulation.Result, activities []*domain.Activity) string {
	if res == nil || len(res.Activities) == 0 {
		return ""
	}

	type row struct {
		code  string
		index float64
	}
	var rows []row
	for _, a := range activities {
		if st, ok := res.Activities[a.ID]; ok {
			rows = append(rows, row{code: a.Code, index: st.CriticalityIndex})
		}
	}
	if len(rows) == 0 {
		return ""
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].index != rows[j].index {
			return rows[i].index > rows[j].index
		}
		return rows[i].code < rows[j].code
	})

	// Limit to 20 activities to keep the text chart legible
	if len(rows) > 20 {
		rows = rows[:20]
	}

	var labels []string
	var values []string
	for _, r := range rows {
		labels = append(labels, fmt.Sprintf("\"%s\"", sanitizeLabel(r.code)))
		values = append(values, fmt.Sprintf("%.2f", r.index))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Criticality Index (Top 20 Activities)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"P(on critical path)\" 0 --> 1\n")
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// sanitizeLabel strips characters that break Mermaid's parser.
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, ":", " ")
	s = strings.ReplaceAll(s, "#", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
