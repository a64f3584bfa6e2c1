package domain

import (
	"context"
	"time"
)

// TransitionAppend carries the caller-validated fields of a new transition.
// Sequence number, previous status and stored duration are assigned by the
// repository inside the same transaction that advances the record's status.
type TransitionAppend struct {
	RecordID     uint
	NewStatus    Status
	OperatorName string
	Notes        string
	ChangedAt    time.Time
}

type TrackerRepository interface {
	CreateRecord(ctx context.Context, value BreakdownRecord, initial TransitionAppend) (BreakdownRecord, error)
	GetRecordByID(ctx context.Context, id uint) (BreakdownRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]BreakdownRecord, error)
	DeleteRecord(ctx context.Context, id uint) error
	DeleteRecords(ctx context.Context, ids []uint) error

	AppendTransition(ctx context.Context, value TransitionAppend) (StatusTransition, error)
	ListTransitions(ctx context.Context, recordID uint) ([]StatusTransition, error)
	CurrentTransition(ctx context.Context, recordID uint) (*StatusTransition, error)
	ListRecordIDsWithTransitions(ctx context.Context, start, end time.Time) ([]uint, error)
	ListTransitionsForRecords(ctx context.Context, recordIDs []uint) (map[uint][]StatusTransition, error)

	CreateOccurrence(ctx context.Context, value Occurrence) (Occurrence, error)
	ListOccurrences(ctx context.Context, recordID uint) ([]Occurrence, error)

	CreateUser(ctx context.Context, value User) (User, error)
	CountUsers(ctx context.Context) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id uint) (User, error)
	CreateSession(ctx context.Context, value AuthSession) (AuthSession, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (AuthSession, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	CreateAPIToken(ctx context.Context, value APIToken) (APIToken, error)
	GetAPITokenByTokenHash(ctx context.Context, tokenHash string) (APIToken, error)
	CreateRoleIfMissing(ctx context.Context, key, name string) (uint, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreatePermissionIfMissing(ctx context.Context, key string) (uint, error)
	GrantPermissionToRole(ctx context.Context, roleID, permissionID uint) error
	AssignRoleToUser(ctx context.Context, userID, roleID uint) error
	ListUsers(ctx context.Context, query string, limit int) ([]User, error)
	GetPermissionsByUserID(ctx context.Context, userID uint) ([]string, error)
	CreateAuditLog(ctx context.Context, value AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error)
}
