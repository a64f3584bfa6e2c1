package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

const (
	// DefaultBottleneckThresholdPct flags any status consuming more than
	// this share of total fleet time.
	DefaultBottleneckThresholdPct = 30.0
	highImpactThresholdPct        = 50.0
)

// Report aggregates per-record analyses across a time window into a
// fleet-wide managerial report. histories maps record id to that record's
// full transition log; records without a transition inside the window are
// ignored.
func Report(periodStart, periodEnd time.Time, histories map[uint][]domain.StatusTransition, now time.Time, bottleneckThresholdPct float64) domain.ManagerialReport {
	if bottleneckThresholdPct <= 0 {
		bottleneckThresholdPct = DefaultBottleneckThresholdPct
	}

	report := domain.ManagerialReport{
		PeriodStart:              periodStart,
		PeriodEnd:                periodEnd,
		StatusPerformance:        []domain.StatusTimeAnalysis{},
		CommonTransitionPatterns: []domain.TransitionPattern{},
		EfficiencyTrends:         []domain.EfficiencyTrend{},
		Recommendations:          []domain.Recommendation{},
	}

	var (
		allIntervals  []interval
		fleetTotal    int64
		completionSum int64
		patterns      = make(map[[2]domain.Status]*domain.TransitionPattern)
		trendBuckets  = make(map[string]*domain.EfficiencyTrend)
	)

	ids := make([]uint, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		transitions := histories[id]
		if !overlapsWindow(transitions, periodStart, periodEnd) {
			continue
		}
		analysis := Analyze(id, transitions, now)
		if analysis == nil {
			continue
		}

		report.TotalProcesses++
		ordered := sortBySequence(transitions)
		last := ordered[len(ordered)-1]

		if last.NewStatus.IsTerminal() {
			report.CompletedProcesses++
			completionSum += analysis.TotalProcessTimeSeconds

			day := last.ChangedAt.UTC().Format("2006-01-02")
			bucket, ok := trendBuckets[day]
			if !ok {
				bucket = &domain.EfficiencyTrend{Date: day}
				trendBuckets[day] = bucket
			}
			// AverageCompletionTimeSeconds accumulates the sum until the
			// final pass divides it by TotalProcesses.
			bucket.AverageCompletionTimeSeconds += float64(analysis.TotalProcessTimeSeconds)
			bucket.TotalProcesses++
		}

		for _, tr := range ordered {
			if tr.PreviousStatus == nil {
				continue
			}
			key := [2]domain.Status{*tr.PreviousStatus, tr.NewStatus}
			p, ok := patterns[key]
			if !ok {
				p = &domain.TransitionPattern{FromStatus: key[0], ToStatus: key[1]}
				patterns[key] = p
			}
			p.Frequency++
			if tr.DurationInPreviousStatus != nil {
				p.AverageDurationSeconds += float64(*tr.DurationInPreviousStatus)
			}
		}

		end := now
		if last.NewStatus.IsTerminal() || end.Before(last.ChangedAt) {
			end = last.ChangedAt
		}
		for i, tr := range ordered {
			iv := interval{status: tr.NewStatus, enteredAt: tr.ChangedAt}
			if i+1 < len(ordered) {
				iv.seconds = clampSeconds(ordered[i+1].ChangedAt.Sub(tr.ChangedAt))
			} else {
				iv.seconds = clampSeconds(end.Sub(tr.ChangedAt))
			}
			allIntervals = append(allIntervals, iv)
			fleetTotal += iv.seconds
		}
	}

	report.ActiveProcesses = report.TotalProcesses - report.CompletedProcesses
	if report.CompletedProcesses > 0 {
		report.AverageCompletionTimeSeconds = float64(completionSum) / float64(report.CompletedProcesses)
	}

	report.StatusPerformance = aggregateIntervals(allIntervals, fleetTotal)

	for _, p := range patterns {
		if p.Frequency > 0 {
			p.AverageDurationSeconds /= float64(p.Frequency)
		}
		report.CommonTransitionPatterns = append(report.CommonTransitionPatterns, *p)
	}
	sort.SliceStable(report.CommonTransitionPatterns, func(i, j int) bool {
		a, b := report.CommonTransitionPatterns[i], report.CommonTransitionPatterns[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if a.FromStatus != b.FromStatus {
			return a.FromStatus < b.FromStatus
		}
		return a.ToStatus < b.ToStatus
	})

	for _, bucket := range trendBuckets {
		if bucket.TotalProcesses > 0 {
			bucket.AverageCompletionTimeSeconds /= float64(bucket.TotalProcesses)
		}
		report.EfficiencyTrends = append(report.EfficiencyTrends, *bucket)
	}
	sort.Slice(report.EfficiencyTrends, func(i, j int) bool {
		return report.EfficiencyTrends[i].Date < report.EfficiencyTrends[j].Date
	})

	report.Recommendations = recommend(report.StatusPerformance, bottleneckThresholdPct)
	return report
}

// overlapsWindow reports whether any transition happened inside [start, end].
func overlapsWindow(transitions []domain.StatusTransition, start, end time.Time) bool {
	for _, tr := range transitions {
		if tr.ChangedAt.Before(start) || tr.ChangedAt.After(end) {
			continue
		}
		return true
	}
	return false
}

func recommend(performance []domain.StatusTimeAnalysis, thresholdPct float64) []domain.Recommendation {
	out := []domain.Recommendation{}
	for _, agg := range performance {
		if agg.PercentageOfTotalTime <= thresholdPct {
			continue
		}
		impact := "medium"
		if agg.PercentageOfTotalTime > highImpactThresholdPct {
			impact = "high"
		}
		out = append(out, domain.Recommendation{
			Type:       "bottleneck",
			Status:     agg.Status,
			Impact:     impact,
			Percentage: agg.PercentageOfTotalTime,
			Message:    fmt.Sprintf("%s consumes %.1f%% of total fleet time across %d occurrences", agg.Status.Label(), agg.PercentageOfTotalTime, agg.TotalOccurrences),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out
}
