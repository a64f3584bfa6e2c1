package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
	"github.com/samedev2/losungquebrasv32-sub001/internal/timeline"
)

// Permission keys checked by the service. The admin role holds "*".
const (
	PermRecordsRead       = "records.read"
	PermRecordsEdit       = "records.edit"
	PermRecordsDelete     = "records.delete"
	PermOccurrencesManage = "occurrences.manage"
	PermReportsRead       = "reports.read"
	PermAccessManage      = "access.manage"
	PermAuditRead         = "audit.read"
)

var operatorPermissions = []string{
	PermRecordsRead,
	PermRecordsEdit,
	PermOccurrencesManage,
	PermReportsRead,
}

type TrackerService struct {
	repo domain.TrackerRepository
	now  func() time.Time

	bottleneckThresholdPct float64

	mu          sync.Mutex
	recordLocks map[uint]*sync.Mutex
}

type Option func(*TrackerService)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *TrackerService) { s.now = now }
}

// WithBottleneckThreshold sets the percentage of total time above which a
// status is flagged in managerial reports.
func WithBottleneckThreshold(pct float64) Option {
	return func(s *TrackerService) { s.bottleneckThresholdPct = pct }
}

func NewTrackerService(repo domain.TrackerRepository, opts ...Option) *TrackerService {
	s := &TrackerService{
		repo:                   repo,
		now:                    func() time.Time { return time.Now().UTC() },
		bottleneckThresholdPct: timeline.DefaultBottleneckThresholdPct,
		recordLocks:            make(map[uint]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recordLock serializes status appends per record. The unique
// (record_id, sequence_number) index backs this up across processes.
func (s *TrackerService) recordLock(recordID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.recordLocks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		s.recordLocks[recordID] = lock
	}
	return lock
}

func (s *TrackerService) CreateRecord(ctx context.Context, identity domain.Identity, plate, driver, description string) (domain.BreakdownRecord, error) {
	if err := s.require(identity, PermRecordsEdit); err != nil {
		return domain.BreakdownRecord{}, err
	}
	plate = strings.ToUpper(strings.TrimSpace(plate))
	driver = strings.TrimSpace(driver)
	if plate == "" || driver == "" {
		return domain.BreakdownRecord{}, fmt.Errorf("%w: vehicle_plate and driver_name are required", domain.ErrValidation)
	}

	record, err := s.repo.CreateRecord(ctx, domain.BreakdownRecord{
		VehiclePlate: plate,
		DriverName:   driver,
		Description:  strings.TrimSpace(description),
		Status:       domain.InitialStatus,
	}, domain.TransitionAppend{
		NewStatus:    domain.InitialStatus,
		OperatorName: identity.User.Email,
		ChangedAt:    s.now(),
	})
	if err != nil {
		return domain.BreakdownRecord{}, err
	}

	s.WriteAudit(ctx, &identity.User.ID, "records.create", "record", &record.ID, plate)
	return record, nil
}

func (s *TrackerService) GetRecord(ctx context.Context, identity domain.Identity, recordID uint) (domain.BreakdownRecord, error) {
	if err := s.require(identity, PermRecordsRead); err != nil {
		return domain.BreakdownRecord{}, err
	}
	if recordID == 0 {
		return domain.BreakdownRecord{}, fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	return s.repo.GetRecordByID(ctx, recordID)
}

func (s *TrackerService) ListRecords(ctx context.Context, identity domain.Identity, filter domain.RecordFilter) ([]domain.BreakdownRecord, error) {
	if err := s.require(identity, PermRecordsRead); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *filter.Status)
	}
	return s.repo.ListRecords(ctx, filter)
}

func (s *TrackerService) DeleteRecord(ctx context.Context, identity domain.Identity, recordID uint) error {
	if err := s.require(identity, PermRecordsDelete); err != nil {
		return err
	}
	if recordID == 0 {
		return fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	if err := s.repo.DeleteRecord(ctx, recordID); err != nil {
		return err
	}
	s.WriteAudit(ctx, &identity.User.ID, "records.delete", "record", &recordID, "")
	return nil
}

func (s *TrackerService) DeleteRecords(ctx context.Context, identity domain.Identity, recordIDs []uint) error {
	if err := s.require(identity, PermRecordsDelete); err != nil {
		return err
	}
	if len(recordIDs) == 0 {
		return fmt.Errorf("%w: at least one record id is required", domain.ErrValidation)
	}
	if err := s.repo.DeleteRecords(ctx, recordIDs); err != nil {
		return err
	}
	s.WriteAudit(ctx, &identity.User.ID, "records.bulk_delete", "record", nil, fmt.Sprintf("%d records", len(recordIDs)))
	return nil
}

// RecordTransition appends one row to a record's transition log. Validation
// happens before any write: an invalid request leaves the log untouched.
func (s *TrackerService) RecordTransition(ctx context.Context, identity domain.Identity, recordID uint, newStatus domain.Status, operatorName, notes string) (domain.StatusTransition, error) {
	if err := s.require(identity, PermRecordsEdit); err != nil {
		return domain.StatusTransition{}, err
	}
	operatorName = strings.TrimSpace(operatorName)
	if recordID == 0 {
		return domain.StatusTransition{}, fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	if operatorName == "" {
		return domain.StatusTransition{}, fmt.Errorf("%w: operator_name is required", domain.ErrValidation)
	}
	if !newStatus.Valid() {
		return domain.StatusTransition{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, newStatus)
	}

	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.repo.GetRecordByID(ctx, recordID)
	if err != nil {
		return domain.StatusTransition{}, err
	}
	if err := domain.ValidateTransition(record.Status, newStatus); err != nil {
		return domain.StatusTransition{}, err
	}

	tr, err := s.repo.AppendTransition(ctx, domain.TransitionAppend{
		RecordID:     recordID,
		NewStatus:    newStatus,
		OperatorName: operatorName,
		Notes:        strings.TrimSpace(notes),
		ChangedAt:    s.now(),
	})
	if err != nil {
		return domain.StatusTransition{}, err
	}

	s.WriteAudit(ctx, &identity.User.ID, "records.status_change", "record", &recordID, fmt.Sprintf("%s -> %s", record.Status, newStatus))
	return tr, nil
}

func (s *TrackerService) ListTransitions(ctx context.Context, identity domain.Identity, recordID uint) ([]domain.StatusTransition, error) {
	if err := s.require(identity, PermRecordsRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRecordByID(ctx, recordID); err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, recordID)
}

func (s *TrackerService) Timeline(ctx context.Context, identity domain.Identity, recordID uint) ([]domain.TimelineEntry, error) {
	if err := s.require(identity, PermRecordsRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRecordByID(ctx, recordID); err != nil {
		return nil, err
	}
	transitions, err := s.repo.ListTransitions(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return timeline.Build(transitions, s.now()), nil
}

// AnalyzeTimeline returns nil without error when the record exists but has no
// transitions yet.
func (s *TrackerService) AnalyzeTimeline(ctx context.Context, identity domain.Identity, recordID uint) (*domain.ProcessTimelineAnalysis, error) {
	if err := s.require(identity, PermRecordsRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRecordByID(ctx, recordID); err != nil {
		return nil, err
	}
	transitions, err := s.repo.ListTransitions(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return timeline.Analyze(recordID, transitions, s.now()), nil
}

func (s *TrackerService) GenerateReport(ctx context.Context, identity domain.Identity, periodStart, periodEnd time.Time) (domain.ManagerialReport, error) {
	if err := s.require(identity, PermReportsRead); err != nil {
		return domain.ManagerialReport{}, err
	}
	if periodEnd.Before(periodStart) {
		return domain.ManagerialReport{}, fmt.Errorf("%w: period end before period start", domain.ErrValidation)
	}

	ids, err := s.repo.ListRecordIDsWithTransitions(ctx, periodStart, periodEnd)
	if err != nil {
		return domain.ManagerialReport{}, err
	}
	histories, err := s.repo.ListTransitionsForRecords(ctx, ids)
	if err != nil {
		return domain.ManagerialReport{}, err
	}

	return timeline.Report(periodStart, periodEnd, histories, s.now(), s.bottleneckThresholdPct), nil
}

func (s *TrackerService) AddOccurrence(ctx context.Context, identity domain.Identity, recordID uint, operatorName, description string) (domain.Occurrence, error) {
	if err := s.require(identity, PermOccurrencesManage); err != nil {
		return domain.Occurrence{}, err
	}
	operatorName = strings.TrimSpace(operatorName)
	description = strings.TrimSpace(description)
	if recordID == 0 || operatorName == "" || description == "" {
		return domain.Occurrence{}, fmt.Errorf("%w: record id, operator_name and description are required", domain.ErrValidation)
	}
	if _, err := s.repo.GetRecordByID(ctx, recordID); err != nil {
		return domain.Occurrence{}, err
	}

	occ, err := s.repo.CreateOccurrence(ctx, domain.Occurrence{
		RecordID:     recordID,
		OperatorName: operatorName,
		Description:  description,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return domain.Occurrence{}, err
	}
	s.WriteAudit(ctx, &identity.User.ID, "occurrences.create", "record", &recordID, "")
	return occ, nil
}

func (s *TrackerService) ListOccurrences(ctx context.Context, identity domain.Identity, recordID uint) ([]domain.Occurrence, error) {
	if err := s.require(identity, PermRecordsRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRecordByID(ctx, recordID); err != nil {
		return nil, err
	}
	return s.repo.ListOccurrences(ctx, recordID)
}

// BootstrapAdmin seeds the first user, the admin and operator roles and their
// permissions. A no-op once any user exists.
func (s *TrackerService) BootstrapAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return errors.New("bootstrap admin email and password are required")
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	u, err := s.repo.CreateUser(ctx, domain.User{Email: strings.ToLower(strings.TrimSpace(email)), PasswordHash: hash})
	if err != nil {
		return err
	}

	adminRoleID, err := s.repo.CreateRoleIfMissing(ctx, "admin", "Administrator")
	if err != nil {
		return err
	}
	permID, err := s.repo.CreatePermissionIfMissing(ctx, "*")
	if err != nil {
		return err
	}
	if err := s.repo.GrantPermissionToRole(ctx, adminRoleID, permID); err != nil {
		return err
	}
	if err := s.repo.AssignRoleToUser(ctx, u.ID, adminRoleID); err != nil {
		return err
	}

	operatorRoleID, err := s.repo.CreateRoleIfMissing(ctx, "operator", "Fleet operator")
	if err != nil {
		return err
	}
	for _, key := range operatorPermissions {
		pid, err := s.repo.CreatePermissionIfMissing(ctx, key)
		if err != nil {
			return err
		}
		if err := s.repo.GrantPermissionToRole(ctx, operatorRoleID, pid); err != nil {
			return err
		}
	}

	return s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &u.ID, Action: "auth.bootstrap_admin", TargetType: "user", TargetID: &u.ID, Metadata: "initial admin created"})
}

func (s *TrackerService) LoginWithSession(ctx context.Context, email, password string, ttl time.Duration) (domain.User, string, error) {
	u, err := s.authenticateEmailPassword(ctx, email, password)
	if err != nil {
		return domain.User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}

	_, err = s.repo.CreateSession(ctx, domain.AuthSession{
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(ttl),
	})
	if err != nil {
		return domain.User{}, "", err
	}

	s.WriteAudit(ctx, &u.ID, "auth.login.session", "user", &u.ID, "session login")
	return u, plain, nil
}

func (s *TrackerService) LoginWithAPIToken(ctx context.Context, email, password, tokenName string, ttl *time.Duration) (domain.User, string, error) {
	u, err := s.authenticateEmailPassword(ctx, email, password)
	if err != nil {
		return domain.User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}

	var expiresAt *time.Time
	if ttl != nil {
		t := s.now().Add(*ttl)
		expiresAt = &t
	}

	_, err = s.repo.CreateAPIToken(ctx, domain.APIToken{
		UserID:    u.ID,
		Name:      defaultString(tokenName, "cli"),
		TokenHash: hash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return domain.User{}, "", err
	}

	s.WriteAudit(ctx, &u.ID, "auth.login.api_token", "user", &u.ID, "api token issued")
	return u, plain, nil
}

func (s *TrackerService) AuthenticateSession(ctx context.Context, token string) (domain.Identity, error) {
	hash := hashToken(token)
	session, err := s.repo.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	if session.ExpiresAt.Before(s.now()) {
		_ = s.repo.DeleteSessionByTokenHash(ctx, hash)
		return domain.Identity{}, errors.New("session expired")
	}

	return s.identityByUserID(ctx, session.UserID)
}

func (s *TrackerService) AuthenticateBearerToken(ctx context.Context, token string) (domain.Identity, error) {
	hash := hashToken(token)
	apit, err := s.repo.GetAPITokenByTokenHash(ctx, hash)
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	if apit.ExpiresAt != nil && apit.ExpiresAt.Before(s.now()) {
		return domain.Identity{}, errors.New("token expired")
	}

	return s.identityByUserID(ctx, apit.UserID)
}

func (s *TrackerService) LogoutSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.repo.DeleteSessionByTokenHash(ctx, hashToken(token))
}

func (s *TrackerService) Can(identity domain.Identity, permission string) bool {
	if _, ok := identity.Permissions["*"]; ok {
		return true
	}
	_, ok := identity.Permissions[permission]
	return ok
}

func (s *TrackerService) require(identity domain.Identity, permission string) error {
	if s.Can(identity, permission) {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, permission)
}

func (s *TrackerService) WriteAudit(ctx context.Context, actorUserID *uint, action, targetType string, targetID *uint, metadata string) {
	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: actorUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
}

func (s *TrackerService) CreateUser(ctx context.Context, identity domain.Identity, email, password string, roleID uint) (domain.User, error) {
	if err := s.require(identity, PermAccessManage); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.repo.CreateUser(ctx, domain.User{Email: strings.ToLower(strings.TrimSpace(email)), PasswordHash: hash})
	if err != nil {
		return domain.User{}, err
	}
	if roleID != 0 {
		if err := s.repo.AssignRoleToUser(ctx, u.ID, roleID); err != nil {
			return domain.User{}, err
		}
	}
	s.WriteAudit(ctx, &identity.User.ID, "access.user_create", "user", &u.ID, u.Email)
	return u, nil
}

func (s *TrackerService) ListUsers(ctx context.Context, identity domain.Identity, query string, limit int) ([]domain.User, error) {
	if err := s.require(identity, PermAccessManage); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListUsers(ctx, query, limit)
}

func (s *TrackerService) ListRoles(ctx context.Context, identity domain.Identity) ([]domain.Role, error) {
	if err := s.require(identity, PermAccessManage); err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx)
}

func (s *TrackerService) AssignRole(ctx context.Context, identity domain.Identity, userID, roleID uint) error {
	if err := s.require(identity, PermAccessManage); err != nil {
		return err
	}
	if userID == 0 || roleID == 0 {
		return fmt.Errorf("%w: user_id and role_id are required", domain.ErrValidation)
	}
	if err := s.repo.AssignRoleToUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.WriteAudit(ctx, &identity.User.ID, "access.role_assign", "user", &userID, fmt.Sprintf("role %d", roleID))
	return nil
}

func (s *TrackerService) ListAuditLogs(ctx context.Context, identity domain.Identity, limit int) ([]domain.AuditRecord, error) {
	if err := s.require(identity, PermAuditRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *TrackerService) authenticateEmailPassword(ctx context.Context, email, password string) (domain.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return domain.User{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, errors.New("invalid credentials")
	}
	return u, nil
}

func (s *TrackerService) identityByUserID(ctx context.Context, userID uint) (domain.Identity, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, errors.New("unauthorized")
	}
	permList, err := s.repo.GetPermissionsByUserID(ctx, userID)
	if err != nil {
		return domain.Identity{}, err
	}
	permMap := make(map[string]struct{}, len(permList))
	for _, p := range permList {
		permMap[p] = struct{}{}
	}
	return domain.Identity{User: u, Permissions: permMap}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func newTokenPair() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)
	return plain, hashToken(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum[:])
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}
	return input
}
