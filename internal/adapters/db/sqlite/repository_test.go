package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

func newTestRepo(t *testing.T) *TrackerRepository {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tracker_test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewTrackerRepository(db)
}

func createTestRecord(t *testing.T, repo *TrackerRepository, at time.Time) domain.BreakdownRecord {
	t.Helper()
	record, err := repo.CreateRecord(context.Background(), domain.BreakdownRecord{
		VehiclePlate: "ABC1D23",
		DriverName:   "Joao",
		Description:  "engine overheating on BR-116",
		Status:       domain.InitialStatus,
	}, domain.TransitionAppend{
		NewStatus:    domain.InitialStatus,
		OperatorName: "carla",
		ChangedAt:    at,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return record
}

func TestCreateRecordWritesOpeningTransition(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	record := createTestRecord(t, repo, start)
	if record.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if record.Status != domain.InitialStatus {
		t.Fatalf("unexpected initial status: %s", record.Status)
	}

	transitions, err := repo.ListTransitions(ctx, record.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("expected one opening transition, got %d", len(transitions))
	}
	first := transitions[0]
	if first.SequenceNumber != 1 || first.PreviousStatus != nil || first.DurationInPreviousStatus != nil {
		t.Fatalf("unexpected opening transition: %+v", first)
	}
}

func TestAppendTransitionAssignsSequenceAndDuration(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	record := createTestRecord(t, repo, start)

	second, err := repo.AppendTransition(ctx, domain.TransitionAppend{
		RecordID:     record.ID,
		NewStatus:    domain.StatusAwaitingMechanic,
		OperatorName: "carla",
		ChangedAt:    start.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("append transition: %v", err)
	}
	if second.SequenceNumber != 2 {
		t.Fatalf("expected sequence 2, got %d", second.SequenceNumber)
	}
	if second.PreviousStatus == nil || *second.PreviousStatus != domain.InitialStatus {
		t.Fatalf("unexpected previous status: %v", second.PreviousStatus)
	}
	if second.DurationInPreviousStatus == nil || *second.DurationInPreviousStatus != 600 {
		t.Fatalf("unexpected stored duration: %v", second.DurationInPreviousStatus)
	}

	updated, err := repo.GetRecordByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updated.Status != domain.StatusAwaitingMechanic {
		t.Fatalf("record status not advanced: %s", updated.Status)
	}
}

func TestAppendTransitionClampsBackwardsClock(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	record := createTestRecord(t, repo, start)

	tr, err := repo.AppendTransition(ctx, domain.TransitionAppend{
		RecordID:     record.ID,
		NewStatus:    domain.StatusUnderRepair,
		OperatorName: "carla",
		ChangedAt:    start.Add(-5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("append transition: %v", err)
	}
	if tr.ChangedAt.Before(start) {
		t.Fatalf("changed_at went backwards: %v", tr.ChangedAt)
	}
	if tr.DurationInPreviousStatus == nil || *tr.DurationInPreviousStatus != 0 {
		t.Fatalf("expected clamped zero duration, got %v", tr.DurationInPreviousStatus)
	}
}

func TestAppendTransitionUnknownRecord(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.AppendTransition(ctx, domain.TransitionAppend{
		RecordID:     999,
		NewStatus:    domain.StatusUnderRepair,
		OperatorName: "carla",
		ChangedAt:    time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRecordsFilters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	record := createTestRecord(t, repo, start)
	other, err := repo.CreateRecord(ctx, domain.BreakdownRecord{
		VehiclePlate: "XYZ9K88",
		DriverName:   "Maria",
		Status:       domain.InitialStatus,
	}, domain.TransitionAppend{NewStatus: domain.InitialStatus, OperatorName: "carla", ChangedAt: start})
	if err != nil {
		t.Fatalf("create second record: %v", err)
	}
	if _, err := repo.AppendTransition(ctx, domain.TransitionAppend{
		RecordID:     other.ID,
		NewStatus:    domain.StatusUnderRepair,
		OperatorName: "carla",
		ChangedAt:    start.Add(time.Minute),
	}); err != nil {
		t.Fatalf("append transition: %v", err)
	}

	byPlate, err := repo.ListRecords(ctx, domain.RecordFilter{Query: "ABC", Limit: 10})
	if err != nil {
		t.Fatalf("list by plate: %v", err)
	}
	if len(byPlate) != 1 || byPlate[0].ID != record.ID {
		t.Fatalf("unexpected plate filter result: %+v", byPlate)
	}

	status := domain.StatusUnderRepair
	byStatus, err := repo.ListRecords(ctx, domain.RecordFilter{Status: &status, Limit: 10})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != other.ID {
		t.Fatalf("unexpected status filter result: %+v", byStatus)
	}
}

func TestDeleteRecordRemovesDependents(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	record := createTestRecord(t, repo, start)

	if _, err := repo.CreateOccurrence(ctx, domain.Occurrence{
		RecordID:     record.ID,
		OperatorName: "carla",
		Description:  "tow truck dispatched",
		CreatedAt:    start,
	}); err != nil {
		t.Fatalf("create occurrence: %v", err)
	}

	if err := repo.DeleteRecord(ctx, record.ID); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, err := repo.GetRecordByID(ctx, record.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	transitions, err := repo.ListTransitions(ctx, record.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 0 {
		t.Fatalf("expected transitions removed, got %d", len(transitions))
	}
	occurrences, err := repo.ListOccurrences(ctx, record.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(occurrences) != 0 {
		t.Fatalf("expected occurrences removed, got %d", len(occurrences))
	}

	if err := repo.DeleteRecord(ctx, record.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListTransitionsForRecordsGroupsBySequence(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	a := createTestRecord(t, repo, start)
	b := createTestRecord(t, repo, start.Add(time.Hour))
	if _, err := repo.AppendTransition(ctx, domain.TransitionAppend{
		RecordID:     a.ID,
		NewStatus:    domain.StatusAwaitingMechanic,
		OperatorName: "carla",
		ChangedAt:    start.Add(15 * time.Minute),
	}); err != nil {
		t.Fatalf("append transition: %v", err)
	}

	ids, err := repo.ListRecordIDsWithTransitions(ctx, start.Add(-time.Minute), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list record ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected both records in window, got %v", ids)
	}

	histories, err := repo.ListTransitionsForRecords(ctx, ids)
	if err != nil {
		t.Fatalf("list histories: %v", err)
	}
	if len(histories[a.ID]) != 2 || len(histories[b.ID]) != 1 {
		t.Fatalf("unexpected history sizes: %d and %d", len(histories[a.ID]), len(histories[b.ID]))
	}
	if histories[a.ID][0].SequenceNumber != 1 || histories[a.ID][1].SequenceNumber != 2 {
		t.Fatalf("history not ordered by sequence: %+v", histories[a.ID])
	}

	narrow, err := repo.ListRecordIDsWithTransitions(ctx, start.Add(10*time.Minute), start.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("narrow window: %v", err)
	}
	if len(narrow) != 1 || narrow[0] != a.ID {
		t.Fatalf("expected only record with transitions in narrow window, got %v", narrow)
	}
}
