// Package timeline derives read models from the append-only status
// transition log: per-record timelines, aggregate analyses and fleet-wide
// managerial reports. Everything here is a pure function of the transition
// slice and an explicit clock, so callers can recompute on every request.
package timeline

import (
	"sort"
	"time"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

// Build reconstructs the ordered sequence of status intervals for one record.
// Exactly one entry (the last) is current; its duration is computed against
// now. An empty history yields an empty timeline, not an error.
func Build(transitions []domain.StatusTransition, now time.Time) []domain.TimelineEntry {
	ordered := sortBySequence(transitions)
	entries := make([]domain.TimelineEntry, 0, len(ordered))

	for i, tr := range ordered {
		entry := domain.TimelineEntry{
			Status:       tr.NewStatus,
			EnteredAt:    tr.ChangedAt,
			OperatorName: tr.OperatorName,
			Notes:        tr.Notes,
		}
		if i+1 < len(ordered) {
			exited := ordered[i+1].ChangedAt
			entry.ExitedAt = &exited
			entry.DurationSeconds = clampSeconds(exited.Sub(tr.ChangedAt))
		} else {
			entry.IsCurrent = true
			entry.DurationSeconds = clampSeconds(now.Sub(tr.ChangedAt))
		}
		entries = append(entries, entry)
	}

	return entries
}

func sortBySequence(transitions []domain.StatusTransition) []domain.StatusTransition {
	ordered := make([]domain.StatusTransition, len(transitions))
	copy(ordered, transitions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceNumber < ordered[j].SequenceNumber
	})
	return ordered
}

func clampSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 0 {
		return 0
	}
	return s
}
