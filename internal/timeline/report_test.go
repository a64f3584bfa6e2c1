package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

func TestReportEmpty(t *testing.T) {
	report := Report(testStart, testStart.Add(time.Hour), nil, testStart.Add(time.Hour), 0)
	if report.TotalProcesses != 0 || report.CompletedProcesses != 0 || report.ActiveProcesses != 0 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if len(report.StatusPerformance) != 0 || len(report.Recommendations) != 0 {
		t.Fatalf("expected empty sections: %+v", report)
	}
}

func TestReportCounters(t *testing.T) {
	histories := map[uint][]domain.StatusTransition{
		1: makeHistory(1,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusAwaitingMechanic, 10*time.Minute),
			step(domain.StatusResolved, 30*time.Minute),
		),
		2: makeHistory(2,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusUnderRepair, 20*time.Minute),
		),
	}
	now := testStart.Add(time.Hour)

	report := Report(testStart.Add(-time.Hour), testStart.Add(2*time.Hour), histories, now, 0)

	if report.TotalProcesses != 2 {
		t.Fatalf("expected 2 processes, got %d", report.TotalProcesses)
	}
	if report.CompletedProcesses != 1 || report.ActiveProcesses != 1 {
		t.Fatalf("unexpected completed/active split: %d/%d",
			report.CompletedProcesses, report.ActiveProcesses)
	}
	if report.AverageCompletionTimeSeconds != 1800 {
		t.Fatalf("expected avg completion 1800s, got %.1f", report.AverageCompletionTimeSeconds)
	}
}

func TestReportSkipsRecordsOutsideWindow(t *testing.T) {
	old := makeHistory(9,
		step(domain.StatusAwaitingTechnician, -72*time.Hour),
		step(domain.StatusResolved, -71*time.Hour),
	)
	histories := map[uint][]domain.StatusTransition{9: old}

	report := Report(testStart, testStart.Add(time.Hour), histories, testStart.Add(time.Hour), 0)
	if report.TotalProcesses != 0 {
		t.Fatalf("expected record outside window to be skipped, got %d", report.TotalProcesses)
	}
}

func TestReportTransitionPatterns(t *testing.T) {
	histories := map[uint][]domain.StatusTransition{
		1: makeHistory(1,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusAwaitingMechanic, 10*time.Minute),
			step(domain.StatusResolved, 30*time.Minute),
		),
		2: makeHistory(2,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusAwaitingMechanic, 30*time.Minute),
			step(domain.StatusResolved, 50*time.Minute),
		),
		3: makeHistory(3,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusUnderRepair, 20*time.Minute),
		),
	}
	now := testStart.Add(time.Hour)

	report := Report(testStart.Add(-time.Hour), testStart.Add(2*time.Hour), histories, now, 0)

	if len(report.CommonTransitionPatterns) != 3 {
		t.Fatalf("expected 3 patterns, got %d", len(report.CommonTransitionPatterns))
	}
	top := report.CommonTransitionPatterns[0]
	if top.Frequency != 2 {
		t.Fatalf("expected most frequent pattern first, got %+v", top)
	}

	for _, p := range report.CommonTransitionPatterns {
		if p.FromStatus == domain.StatusAwaitingTechnician && p.ToStatus == domain.StatusAwaitingMechanic {
			// stays of 10min and 30min average to 20min
			if math.Abs(p.AverageDurationSeconds-1200) > 1e-9 {
				t.Fatalf("expected avg 1200s, got %.1f", p.AverageDurationSeconds)
			}
			return
		}
	}
	t.Fatalf("missing expected pattern: %+v", report.CommonTransitionPatterns)
}

func TestReportEfficiencyTrends(t *testing.T) {
	histories := map[uint][]domain.StatusTransition{
		1: makeHistory(1,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusResolved, 30*time.Minute),
		),
		2: makeHistory(2,
			step(domain.StatusAwaitingTechnician, 24*time.Hour),
			step(domain.StatusResolved, 24*time.Hour+time.Hour),
		),
	}
	now := testStart.Add(48 * time.Hour)

	report := Report(testStart.Add(-time.Hour), now, histories, now, 0)

	if len(report.EfficiencyTrends) != 2 {
		t.Fatalf("expected one bucket per day, got %d", len(report.EfficiencyTrends))
	}
	first, second := report.EfficiencyTrends[0], report.EfficiencyTrends[1]
	if first.Date != "2025-03-10" || second.Date != "2025-03-11" {
		t.Fatalf("expected buckets in date order, got %q then %q", first.Date, second.Date)
	}
	if first.TotalProcesses != 1 || first.AverageCompletionTimeSeconds != 1800 {
		t.Fatalf("unexpected first bucket: %+v", first)
	}
	if second.AverageCompletionTimeSeconds != 3600 {
		t.Fatalf("unexpected second bucket: %+v", second)
	}
}

func TestReportRecommendations(t *testing.T) {
	histories := map[uint][]domain.StatusTransition{
		1: makeHistory(1,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusNoForecast, 10*time.Minute),
			step(domain.StatusResolved, 100*time.Minute),
		),
	}
	now := testStart.Add(2 * time.Hour)

	report := Report(testStart.Add(-time.Hour), now, histories, now, DefaultBottleneckThresholdPct)

	// sem_previsao holds 90 of 100 minutes, well past the high impact bar.
	if len(report.Recommendations) == 0 {
		t.Fatalf("expected a bottleneck recommendation")
	}
	top := report.Recommendations[0]
	if top.Type != "bottleneck" || top.Status != domain.StatusNoForecast {
		t.Fatalf("unexpected recommendation: %+v", top)
	}
	if top.Impact != "high" {
		t.Fatalf("expected high impact at %.1f%%, got %q", top.Percentage, top.Impact)
	}
	if top.Message == "" {
		t.Fatalf("recommendation message must name the status and share")
	}
}

func TestReportRecommendationThreshold(t *testing.T) {
	histories := map[uint][]domain.StatusTransition{
		1: makeHistory(1,
			step(domain.StatusAwaitingTechnician, 0),
			step(domain.StatusAwaitingMechanic, 25*time.Minute),
			step(domain.StatusResolved, 100*time.Minute),
		),
	}
	now := testStart.Add(2 * time.Hour)

	strict := Report(testStart.Add(-time.Hour), now, histories, now, 80)
	if len(strict.Recommendations) != 0 {
		t.Fatalf("expected no recommendations at 80%% threshold, got %+v", strict.Recommendations)
	}

	loose := Report(testStart.Add(-time.Hour), now, histories, now, 20)
	if len(loose.Recommendations) != 2 {
		t.Fatalf("expected both non-terminal stays flagged at 20%%, got %+v", loose.Recommendations)
	}
	if loose.Recommendations[0].Percentage < loose.Recommendations[1].Percentage {
		t.Fatalf("recommendations must be sorted by share descending")
	}
}
