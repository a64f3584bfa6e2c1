package timeline

import (
	"sort"
	"time"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

const maxBottlenecks = 3

// interval is one closed-or-current stay in a status, with the duration
// already resolved against the process end bound.
type interval struct {
	status    domain.Status
	enteredAt time.Time
	seconds   int64
}

// Analyze computes the full timeline analysis for one record. Returns nil
// when the record has no transitions: "no data yet" is not an error.
//
// The process end bound is the last transition when the current status is
// terminal, otherwise now; a closed process stops accruing time. The
// embedded timeline is built against the same bound so the current entry
// never outgrows TotalProcessTimeSeconds.
func Analyze(recordID uint, transitions []domain.StatusTransition, now time.Time) *domain.ProcessTimelineAnalysis {
	if len(transitions) == 0 {
		return nil
	}

	ordered := sortBySequence(transitions)
	first := ordered[0]
	last := ordered[len(ordered)-1]

	end := now
	if last.NewStatus.IsTerminal() || end.Before(last.ChangedAt) {
		end = last.ChangedAt
	}
	total := clampSeconds(end.Sub(first.ChangedAt))

	intervals := make([]interval, 0, len(ordered))
	for i, tr := range ordered {
		iv := interval{status: tr.NewStatus, enteredAt: tr.ChangedAt}
		if i+1 < len(ordered) {
			iv.seconds = clampSeconds(ordered[i+1].ChangedAt.Sub(tr.ChangedAt))
		} else {
			iv.seconds = clampSeconds(end.Sub(tr.ChangedAt))
		}
		intervals = append(intervals, iv)
	}

	return &domain.ProcessTimelineAnalysis{
		RecordID:                recordID,
		Timeline:                Build(transitions, end),
		TimeAnalysisByStatus:    aggregateIntervals(intervals, total),
		Bottlenecks:             rankBottlenecks(intervals, total),
		Efficiency:              efficiencyMetrics(intervals, total),
		TotalProcessTimeSeconds: total,
	}
}

// aggregateIntervals groups intervals by status in first-seen order and
// derives totals, occurrence counts, averages, min/max and percentages.
// Percentages are 0 when total is 0 rather than dividing by zero.
func aggregateIntervals(intervals []interval, total int64) []domain.StatusTimeAnalysis {
	order := make([]domain.Status, 0)
	byStatus := make(map[domain.Status]*domain.StatusTimeAnalysis)

	for _, iv := range intervals {
		agg, ok := byStatus[iv.status]
		if !ok {
			agg = &domain.StatusTimeAnalysis{
				Status:         iv.status,
				MinTimeSeconds: iv.seconds,
				MaxTimeSeconds: iv.seconds,
			}
			byStatus[iv.status] = agg
			order = append(order, iv.status)
		}
		agg.TotalTimeSeconds += iv.seconds
		agg.TotalOccurrences++
		if iv.seconds < agg.MinTimeSeconds {
			agg.MinTimeSeconds = iv.seconds
		}
		if iv.seconds > agg.MaxTimeSeconds {
			agg.MaxTimeSeconds = iv.seconds
		}
	}

	out := make([]domain.StatusTimeAnalysis, 0, len(order))
	for _, status := range order {
		agg := byStatus[status]
		agg.AverageTimeSeconds = float64(agg.TotalTimeSeconds) / float64(agg.TotalOccurrences)
		if total > 0 {
			agg.PercentageOfTotalTime = float64(agg.TotalTimeSeconds) / float64(total) * 100
		}
		out = append(out, *agg)
	}
	return out
}

// rankBottlenecks sorts individual intervals (not status aggregates) by
// duration descending and keeps the top three. Occurrence numbers are the
// 1-based chronological position within each status's own repeats.
func rankBottlenecks(intervals []interval, total int64) []domain.Bottleneck {
	occurrence := make(map[domain.Status]int)
	candidates := make([]domain.Bottleneck, 0, len(intervals))
	for _, iv := range intervals {
		occurrence[iv.status]++
		b := domain.Bottleneck{
			Status:           iv.status,
			DurationSeconds:  iv.seconds,
			OccurrenceNumber: occurrence[iv.status],
			EnteredAt:        iv.enteredAt,
		}
		if total > 0 {
			b.Percentage = float64(iv.seconds) / float64(total) * 100
		}
		candidates = append(candidates, b)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DurationSeconds > candidates[j].DurationSeconds
	})
	if len(candidates) > maxBottlenecks {
		candidates = candidates[:maxBottlenecks]
	}
	return candidates
}

func efficiencyMetrics(intervals []interval, total int64) domain.EfficiencyMetrics {
	m := domain.EfficiencyMetrics{}
	if len(intervals) == 0 {
		return m
	}

	m.FastestResolutionTimeSeconds = intervals[0].seconds
	m.SlowestResolutionTimeSeconds = intervals[0].seconds
	for _, iv := range intervals[1:] {
		if iv.seconds < m.FastestResolutionTimeSeconds {
			m.FastestResolutionTimeSeconds = iv.seconds
		}
		if iv.seconds > m.SlowestResolutionTimeSeconds {
			m.SlowestResolutionTimeSeconds = iv.seconds
		}
	}

	aggregates := aggregateIntervals(intervals, total)
	most, least := aggregates[0], aggregates[0]
	for _, agg := range aggregates[1:] {
		if agg.TotalTimeSeconds > most.TotalTimeSeconds {
			most = agg
		}
		if agg.TotalTimeSeconds < least.TotalTimeSeconds {
			least = agg
		}
	}
	m.MostTimeConsumingStatus = most.Status
	m.LeastTimeConsumingStatus = least.Status
	m.AverageTimePerStatusSeconds = float64(total) / float64(len(intervals))
	return m
}
