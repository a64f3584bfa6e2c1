package sqlite

import "time"

type BreakdownRecordModel struct {
	ID           uint   `gorm:"primaryKey"`
	VehiclePlate string `gorm:"not null;index"`
	DriverName   string `gorm:"not null"`
	Description  string
	Status       string `gorm:"not null;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BreakdownRecordModel) TableName() string { return "breakdown_records" }

type StatusTransitionModel struct {
	ID                       uint `gorm:"primaryKey"`
	RecordID                 uint `gorm:"not null;index:idx_record_seq,unique"`
	SequenceNumber           int  `gorm:"not null;index:idx_record_seq,unique"`
	PreviousStatus           *string
	NewStatus                string `gorm:"not null"`
	OperatorName             string `gorm:"not null"`
	ChangedAt                time.Time
	DurationInPreviousStatus *int64
	Notes                    string
	CreatedAt                time.Time
}

func (StatusTransitionModel) TableName() string { return "status_transitions" }

type OccurrenceModel struct {
	ID           uint   `gorm:"primaryKey"`
	RecordID     uint   `gorm:"not null;index"`
	OperatorName string `gorm:"not null"`
	Description  string `gorm:"not null"`
	CreatedAt    time.Time
}

func (OccurrenceModel) TableName() string { return "occurrences" }

type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type SessionModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (SessionModel) TableName() string { return "sessions" }

type APITokenModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (APITokenModel) TableName() string { return "api_tokens" }

type RoleModel struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"not null;uniqueIndex"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (RoleModel) TableName() string { return "roles" }

type PermissionModel struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

func (PermissionModel) TableName() string { return "permissions" }

type UserRoleModel struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;index:idx_user_role,unique"`
	RoleID    uint `gorm:"not null;index:idx_user_role,unique"`
	CreatedAt time.Time
}

func (UserRoleModel) TableName() string { return "user_roles" }

type RolePermissionModel struct {
	ID           uint `gorm:"primaryKey"`
	RoleID       uint `gorm:"not null;index:idx_role_perm,unique"`
	PermissionID uint `gorm:"not null;index:idx_role_perm,unique"`
	CreatedAt    time.Time
}

func (RolePermissionModel) TableName() string { return "role_permissions" }

type AuditLogModel struct {
	ID          uint `gorm:"primaryKey"`
	ActorUserID *uint
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
