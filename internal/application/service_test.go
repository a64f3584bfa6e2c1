package application

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqliteadapter "github.com/samedev2/losungquebrasv32-sub001/internal/adapters/db/sqlite"
	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*TrackerService, domain.Identity, *testClock) {
	t.Helper()
	ctx := context.Background()

	db, err := sqliteadapter.Open(filepath.Join(t.TempDir(), "service_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	clock := &testClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	svc := NewTrackerService(sqliteadapter.NewTrackerRepository(db), WithClock(clock.Now))

	if err := svc.BootstrapAdmin(ctx, "admin@quebras.local", "secret"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	_, token, err := svc.LoginWithAPIToken(ctx, "admin@quebras.local", "secret", "test", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	identity, err := svc.AuthenticateBearerToken(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return svc, identity, clock
}

func operatorIdentity(t *testing.T, svc *TrackerService, admin domain.Identity) domain.Identity {
	t.Helper()
	ctx := context.Background()

	roles, err := svc.ListRoles(ctx, admin)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	var operatorRoleID uint
	for _, role := range roles {
		if role.Key == "operator" {
			operatorRoleID = role.ID
		}
	}
	if operatorRoleID == 0 {
		t.Fatalf("operator role not seeded")
	}

	if _, err := svc.CreateUser(ctx, admin, "carla@quebras.local", "secret", operatorRoleID); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	_, token, err := svc.LoginWithAPIToken(ctx, "carla@quebras.local", "secret", "test", nil)
	if err != nil {
		t.Fatalf("operator login: %v", err)
	}
	identity, err := svc.AuthenticateBearerToken(ctx, token)
	if err != nil {
		t.Fatalf("operator authenticate: %v", err)
	}
	return identity
}

func TestBootstrapAdminIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, admin, _ := newTestService(t)

	if err := svc.BootstrapAdmin(ctx, "other@quebras.local", "other"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	users, err := svc.ListUsers(ctx, admin, "", 10)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected single user after repeat bootstrap, got %d", len(users))
	}
	if !svc.Can(admin, PermRecordsDelete) {
		t.Fatalf("admin wildcard should cover every permission")
	}
}

func TestCreateRecordOpensAtInitialStatus(t *testing.T) {
	ctx := context.Background()
	svc, admin, _ := newTestService(t)

	record, err := svc.CreateRecord(ctx, admin, "abc1d23", "Joao", "engine overheating")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if record.VehiclePlate != "ABC1D23" {
		t.Fatalf("plate not normalized: %s", record.VehiclePlate)
	}
	if record.Status != domain.InitialStatus {
		t.Fatalf("unexpected initial status: %s", record.Status)
	}

	transitions, err := svc.ListTransitions(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 1 || transitions[0].SequenceNumber != 1 {
		t.Fatalf("expected one opening transition, got %+v", transitions)
	}
	if transitions[0].OperatorName != admin.User.Email {
		t.Fatalf("opening transition should carry the creator: %s", transitions[0].OperatorName)
	}
}

func TestCreateRecordValidation(t *testing.T) {
	ctx := context.Background()
	svc, admin, _ := newTestService(t)

	if _, err := svc.CreateRecord(ctx, admin, " ", "Joao", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordTransitionAppendsDenseSequence(t *testing.T) {
	ctx := context.Background()
	svc, admin, clock := newTestService(t)
	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	clock.Advance(10 * time.Minute)
	tr, err := svc.RecordTransition(ctx, admin, record.ID, domain.StatusAwaitingMechanic, "carla", "mechanic called")
	if err != nil {
		t.Fatalf("record transition: %v", err)
	}
	if tr.SequenceNumber != 2 {
		t.Fatalf("expected sequence 2, got %d", tr.SequenceNumber)
	}
	if tr.DurationInPreviousStatus == nil || *tr.DurationInPreviousStatus != 600 {
		t.Fatalf("unexpected duration: %v", tr.DurationInPreviousStatus)
	}

	updated, err := svc.GetRecord(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updated.Status != domain.StatusAwaitingMechanic {
		t.Fatalf("record status not advanced: %s", updated.Status)
	}
}

func TestConcurrentTransitionsKeepDenseSequence(t *testing.T) {
	ctx := context.Background()
	svc, admin, _ := newTestService(t)
	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	// sem_previsao and aguardando_mecanico form a legal cycle, and both are
	// legal first hops from the opening status, so every writer always has
	// at least one acceptable target no matter how the race interleaves.
	targets := []domain.Status{domain.StatusNoForecast, domain.StatusAwaitingMechanic}

	const workers = 8
	const attemptsPerWorker = 2

	var (
		wg        sync.WaitGroup
		successes int64
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < attemptsPerWorker; i++ {
				for _, target := range targets {
					_, err := svc.RecordTransition(ctx, admin, record.ID, target, "carla", "")
					if err == nil {
						atomic.AddInt64(&successes, 1)
						break
					}
					if !errors.Is(err, domain.ErrStateTransition) {
						t.Errorf("unexpected transition error: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	if t.Failed() {
		return
	}

	transitions, err := svc.ListTransitions(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if got, want := len(transitions), int(successes)+1; got != want {
		t.Fatalf("expected %d rows (%d accepted writes plus the opening one), got %d", want, successes, got)
	}
	for i, tr := range transitions {
		if tr.SequenceNumber != i+1 {
			t.Fatalf("sequence not dense at row %d: %+v", i, transitions)
		}
		if i == 0 {
			continue
		}
		if tr.PreviousStatus == nil || *tr.PreviousStatus != transitions[i-1].NewStatus {
			t.Fatalf("broken continuity at sequence %d: %+v", tr.SequenceNumber, tr)
		}
	}

	updated, err := svc.GetRecord(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if updated.Status != transitions[len(transitions)-1].NewStatus {
		t.Fatalf("record status %s does not mirror last transition %s",
			updated.Status, transitions[len(transitions)-1].NewStatus)
	}
}

func TestRecordTransitionRejectsIllegalEdge(t *testing.T) {
	ctx := context.Background()
	svc, admin, clock := newTestService(t)
	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := svc.RecordTransition(ctx, admin, record.ID, domain.StatusUnderRepair, "carla", ""); err != nil {
		t.Fatalf("record transition: %v", err)
	}

	clock.Advance(time.Minute)
	_, err = svc.RecordTransition(ctx, admin, record.ID, domain.StatusAwaitingMechanic, "carla", "")
	if !errors.Is(err, domain.ErrStateTransition) {
		t.Fatalf("expected state transition error, got %v", err)
	}

	transitions, err := svc.ListTransitions(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 2 {
		t.Fatalf("rejected transition must not be stored, got %d rows", len(transitions))
	}
}

func TestRecordTransitionRequiresOperator(t *testing.T) {
	ctx := context.Background()
	svc, admin, _ := newTestService(t)
	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	if _, err := svc.RecordTransition(ctx, admin, record.ID, domain.StatusAwaitingMechanic, "  ", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.RecordTransition(ctx, admin, record.ID, domain.Status("voando"), "carla", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	transitions, err := svc.ListTransitions(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("invalid requests must not touch the log, got %d rows", len(transitions))
	}
}

func TestOperatorPermissions(t *testing.T) {
	ctx := context.Background()
	svc, admin, clock := newTestService(t)
	operator := operatorIdentity(t, svc, admin)

	record, err := svc.CreateRecord(ctx, operator, "XYZ9K88", "Maria", "")
	if err != nil {
		t.Fatalf("operator create: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := svc.RecordTransition(ctx, operator, record.ID, domain.StatusAwaitingMechanic, "maria", ""); err != nil {
		t.Fatalf("operator transition: %v", err)
	}

	if err := svc.DeleteRecord(ctx, operator, record.ID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied on delete, got %v", err)
	}
	if _, err := svc.ListAuditLogs(ctx, operator, 10); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied on audit, got %v", err)
	}
	if _, err := svc.ListUsers(ctx, operator, "", 10); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied on users, got %v", err)
	}
}

func TestAnalyzeTimelineUsesServiceClock(t *testing.T) {
	ctx := context.Background()
	svc, admin, clock := newTestService(t)
	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	clock.Advance(10 * time.Minute)
	if _, err := svc.RecordTransition(ctx, admin, record.ID, domain.StatusAwaitingMechanic, "carla", ""); err != nil {
		t.Fatalf("record transition: %v", err)
	}
	clock.Advance(20 * time.Minute)

	analysis, err := svc.AnalyzeTimeline(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis == nil {
		t.Fatalf("expected analysis")
	}
	if analysis.TotalProcessTimeSeconds != 1800 {
		t.Fatalf("expected 1800s total, got %d", analysis.TotalProcessTimeSeconds)
	}
	if len(analysis.Timeline) != 2 || !analysis.Timeline[1].IsCurrent {
		t.Fatalf("unexpected timeline: %+v", analysis.Timeline)
	}
}

func TestGenerateReport(t *testing.T) {
	ctx := context.Background()
	svc, admin, clock := newTestService(t)
	start := clock.Now()

	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := svc.RecordTransition(ctx, admin, record.ID, domain.StatusAwaitingMechanic, "carla", ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	clock.Advance(20 * time.Minute)
	if _, err := svc.RecordTransition(ctx, admin, record.ID, domain.StatusResolved, "carla", ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	report, err := svc.GenerateReport(ctx, admin, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("generate report: %v", err)
	}
	if report.TotalProcesses != 1 || report.CompletedProcesses != 1 || report.ActiveProcesses != 0 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if report.AverageCompletionTimeSeconds != 1800 {
		t.Fatalf("unexpected avg completion: %f", report.AverageCompletionTimeSeconds)
	}

	if _, err := svc.GenerateReport(ctx, admin, start, start.Add(-time.Hour)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for inverted period, got %v", err)
	}
}

func TestOccurrences(t *testing.T) {
	ctx := context.Background()
	svc, admin, _ := newTestService(t)
	record, err := svc.CreateRecord(ctx, admin, "ABC1D23", "Joao", "")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	if _, err := svc.AddOccurrence(ctx, admin, record.ID, "carla", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.AddOccurrence(ctx, admin, record.ID, "carla", "tow truck dispatched"); err != nil {
		t.Fatalf("add occurrence: %v", err)
	}

	occurrences, err := svc.ListOccurrences(ctx, admin, record.ID)
	if err != nil {
		t.Fatalf("list occurrences: %v", err)
	}
	if len(occurrences) != 1 || occurrences[0].Description != "tow truck dispatched" {
		t.Fatalf("unexpected occurrences: %+v", occurrences)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	_, token, err := svc.LoginWithSession(ctx, "admin@quebras.local", "secret", time.Hour)
	if err != nil {
		t.Fatalf("session login: %v", err)
	}
	if _, err := svc.AuthenticateSession(ctx, token); err != nil {
		t.Fatalf("authenticate session: %v", err)
	}

	if err := svc.LogoutSession(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.AuthenticateSession(ctx, token); err == nil {
		t.Fatalf("expected auth failure after logout")
	}

	_, token, err = svc.LoginWithSession(ctx, "admin@quebras.local", "secret", time.Hour)
	if err != nil {
		t.Fatalf("session login: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := svc.AuthenticateSession(ctx, token); err == nil {
		t.Fatalf("expected expired session to fail")
	}
}

func TestBearerTokenRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	if _, err := svc.AuthenticateBearerToken(ctx, "not-a-token"); err == nil {
		t.Fatalf("expected auth failure")
	}
	if _, _, err := svc.LoginWithAPIToken(ctx, "admin@quebras.local", "wrong", "cli", nil); err == nil {
		t.Fatalf("expected invalid credentials")
	}
}
