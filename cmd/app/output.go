package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatMaybeUint(v *uint) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

func formatMaybeDuration(seconds *int64) string {
	if seconds == nil {
		return "-"
	}
	return formatDuration(*seconds)
}

func formatMaybeStatus(s *domain.Status) string {
	if s == nil {
		return "-"
	}
	return string(*s)
}

func printRecords(items []domain.BreakdownRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.VehiclePlate,
			item.DriverName,
			string(item.Status),
			formatTime(item.CreatedAt),
			formatTime(item.UpdatedAt),
		})
	}
	printTable([]string{"ID", "PLATE", "DRIVER", "STATUS", "CREATED_AT", "UPDATED_AT"}, rows)
}

func printTransition(item domain.StatusTransition) {
	printKV([][2]string{
		{"id", strconv.FormatUint(uint64(item.ID), 10)},
		{"record_id", strconv.FormatUint(uint64(item.RecordID), 10)},
		{"sequence", strconv.Itoa(item.SequenceNumber)},
		{"previous_status", formatMaybeStatus(item.PreviousStatus)},
		{"new_status", string(item.NewStatus)},
		{"operator", item.OperatorName},
		{"changed_at", formatTime(item.ChangedAt)},
		{"duration_in_previous", formatMaybeDuration(item.DurationInPreviousStatus)},
	})
}

func printTimeline(entries []domain.TimelineEntry) {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		exited := "-"
		if entry.ExitedAt != nil {
			exited = formatTime(*entry.ExitedAt)
		}
		current := ""
		if entry.IsCurrent {
			current = "*"
		}
		rows = append(rows, []string{
			string(entry.Status),
			formatTime(entry.EnteredAt),
			exited,
			formatDuration(entry.DurationSeconds),
			entry.OperatorName,
			current,
		})
	}
	printTable([]string{"STATUS", "ENTERED_AT", "EXITED_AT", "DURATION", "OPERATOR", "CURRENT"}, rows)
}

func printAnalysis(analysis domain.ProcessTimelineAnalysis) {
	printKV([][2]string{
		{"record_id", strconv.FormatUint(uint64(analysis.RecordID), 10)},
		{"total_process_time", formatDuration(analysis.TotalProcessTimeSeconds)},
		{"fastest_resolution", formatDuration(analysis.Efficiency.FastestResolutionTimeSeconds)},
		{"slowest_resolution", formatDuration(analysis.Efficiency.SlowestResolutionTimeSeconds)},
		{"most_time_consuming", string(analysis.Efficiency.MostTimeConsumingStatus)},
		{"least_time_consuming", string(analysis.Efficiency.LeastTimeConsumingStatus)},
	})

	fmt.Println()
	rows := make([][]string, 0, len(analysis.TimeAnalysisByStatus))
	for _, item := range analysis.TimeAnalysisByStatus {
		rows = append(rows, []string{
			string(item.Status),
			formatDuration(item.TotalTimeSeconds),
			strconv.Itoa(item.TotalOccurrences),
			formatDuration(int64(item.AverageTimeSeconds)),
			fmt.Sprintf("%.1f%%", item.PercentageOfTotalTime),
		})
	}
	printTable([]string{"STATUS", "TOTAL", "OCCURRENCES", "AVERAGE", "SHARE"}, rows)

	if len(analysis.Bottlenecks) > 0 {
		fmt.Println()
		rows = rows[:0]
		for _, b := range analysis.Bottlenecks {
			rows = append(rows, []string{
				string(b.Status),
				formatDuration(b.DurationSeconds),
				strconv.Itoa(b.OccurrenceNumber),
				fmt.Sprintf("%.1f%%", b.Percentage),
				formatTime(b.EnteredAt),
			})
		}
		printTable([]string{"BOTTLENECK", "DURATION", "OCCURRENCE", "SHARE", "ENTERED_AT"}, rows)
	}
}

func printReport(report domain.ManagerialReport) {
	printKV([][2]string{
		{"period_start", formatTime(report.PeriodStart)},
		{"period_end", formatTime(report.PeriodEnd)},
		{"total_processes", strconv.Itoa(report.TotalProcesses)},
		{"completed", strconv.Itoa(report.CompletedProcesses)},
		{"active", strconv.Itoa(report.ActiveProcesses)},
		{"avg_completion", formatDuration(int64(report.AverageCompletionTimeSeconds))},
	})

	if len(report.StatusPerformance) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(report.StatusPerformance))
		for _, item := range report.StatusPerformance {
			rows = append(rows, []string{
				string(item.Status),
				formatDuration(item.TotalTimeSeconds),
				strconv.Itoa(item.TotalOccurrences),
				fmt.Sprintf("%.1f%%", item.PercentageOfTotalTime),
			})
		}
		printTable([]string{"STATUS", "TOTAL", "OCCURRENCES", "SHARE"}, rows)
	}

	if len(report.CommonTransitionPatterns) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(report.CommonTransitionPatterns))
		for _, item := range report.CommonTransitionPatterns {
			rows = append(rows, []string{
				string(item.FromStatus),
				string(item.ToStatus),
				strconv.Itoa(item.Frequency),
				formatDuration(int64(item.AverageDurationSeconds)),
			})
		}
		printTable([]string{"FROM", "TO", "FREQUENCY", "AVG_DURATION"}, rows)
	}

	if len(report.Recommendations) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(report.Recommendations))
		for _, item := range report.Recommendations {
			rows = append(rows, []string{
				item.Type,
				string(item.Status),
				item.Impact,
				fmt.Sprintf("%.1f%%", item.Percentage),
				item.Message,
			})
		}
		printTable([]string{"TYPE", "STATUS", "IMPACT", "SHARE", "MESSAGE"}, rows)
	}
}

func printOccurrences(items []domain.Occurrence) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			strconv.FormatUint(uint64(item.RecordID), 10),
			item.OperatorName,
			item.Description,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "RECORD_ID", "OPERATOR", "DESCRIPTION", "CREATED_AT"}, rows)
}

type statusInfo struct {
	Status             string   `json:"status"`
	Label              string   `json:"label"`
	Icon               string   `json:"icon"`
	Color              string   `json:"color"`
	Terminal           bool     `json:"terminal"`
	AllowedTransitions []string `json:"allowed_transitions"`
}

func printStatuses(items []statusInfo) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.Status,
			item.Label,
			strconv.FormatBool(item.Terminal),
			strings.Join(item.AllowedTransitions, ","),
		})
	}
	printTable([]string{"STATUS", "LABEL", "TERMINAL", "ALLOWED_TRANSITIONS"}, rows)
}

func printUsers(items []domain.User) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Email,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "EMAIL", "CREATED_AT"}, rows)
}

func printRoles(items []domain.Role) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Key,
			item.Name,
		})
	}
	printTable([]string{"ID", "KEY", "NAME"}, rows)
}

func printAuditRecords(items []domain.AuditRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Action,
			item.TargetType,
			formatMaybeUint(item.TargetID),
			item.ActorUserEmail,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_TYPE", "TARGET_ID", "ACTOR", "AT"}, rows)
}
