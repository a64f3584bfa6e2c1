package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

type TrackerRepository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewTrackerRepository(db *gorm.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

// CreateRecord inserts the record and its sequence-1 transition in one
// transaction so a record never exists without its opening log row.
func (r *TrackerRepository) CreateRecord(ctx context.Context, value domain.BreakdownRecord, initial domain.TransitionAppend) (domain.BreakdownRecord, error) {
	m := BreakdownRecordModel{
		VehiclePlate: value.VehiclePlate,
		DriverName:   value.DriverName,
		Description:  value.Description,
		Status:       string(value.Status),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		first := StatusTransitionModel{
			RecordID:       m.ID,
			SequenceNumber: 1,
			NewStatus:      string(initial.NewStatus),
			OperatorName:   initial.OperatorName,
			ChangedAt:      initial.ChangedAt,
			Notes:          initial.Notes,
		}
		return tx.Create(&first).Error
	})
	if err != nil {
		return domain.BreakdownRecord{}, persistence(err)
	}

	return recordFromModel(m), nil
}

func (r *TrackerRepository) GetRecordByID(ctx context.Context, id uint) (domain.BreakdownRecord, error) {
	var m BreakdownRecordModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BreakdownRecord{}, fmt.Errorf("%w: record %d", domain.ErrNotFound, id)
		}
		return domain.BreakdownRecord{}, persistence(err)
	}
	return recordFromModel(m), nil
}

func (r *TrackerRepository) ListRecords(ctx context.Context, filter domain.RecordFilter) ([]domain.BreakdownRecord, error) {
	q := r.db.WithContext(ctx).Model(&BreakdownRecordModel{})
	if strings.TrimSpace(filter.Query) != "" {
		like := "%" + strings.TrimSpace(filter.Query) + "%"
		q = q.Where("vehicle_plate LIKE ? OR driver_name LIKE ?", like, like)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}

	rows := make([]BreakdownRecordModel, 0)
	if err := q.Order("id DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, persistence(err)
	}

	result := make([]domain.BreakdownRecord, 0, len(rows))
	for _, m := range rows {
		result = append(result, recordFromModel(m))
	}
	return result, nil
}

func (r *TrackerRepository) DeleteRecord(ctx context.Context, id uint) error {
	return r.deleteByIDs(ctx, []uint{id}, true)
}

func (r *TrackerRepository) DeleteRecords(ctx context.Context, ids []uint) error {
	return r.deleteByIDs(ctx, ids, false)
}

func (r *TrackerRepository) deleteByIDs(ctx context.Context, ids []uint, strict bool) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id IN ?", ids).Delete(&BreakdownRecordModel{})
		if res.Error != nil {
			return res.Error
		}
		if strict && res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("record_id IN ?", ids).Delete(&StatusTransitionModel{}).Error; err != nil {
			return err
		}
		return tx.Where("record_id IN ?", ids).Delete(&OccurrenceModel{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: record %d", domain.ErrNotFound, ids[0])
	}
	if err != nil {
		return persistence(err)
	}
	return nil
}

// AppendTransition assigns the sequence number, previous status and stored
// duration inside the same transaction that advances the record's status.
// The unique (record_id, sequence_number) index rejects concurrent appends
// that slipped past the service lock.
func (r *TrackerRepository) AppendTransition(ctx context.Context, value domain.TransitionAppend) (domain.StatusTransition, error) {
	var m StatusTransitionModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record BreakdownRecordModel
		if err := tx.First(&record, value.RecordID).Error; err != nil {
			return err
		}

		var current StatusTransitionModel
		err := tx.Where("record_id = ?", value.RecordID).
			Order("sequence_number DESC").
			First(&current).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		m = StatusTransitionModel{
			RecordID:       value.RecordID,
			SequenceNumber: 1,
			NewStatus:      string(value.NewStatus),
			OperatorName:   value.OperatorName,
			ChangedAt:      value.ChangedAt,
			Notes:          value.Notes,
		}
		if current.ID != 0 {
			m.SequenceNumber = current.SequenceNumber + 1
			m.PreviousStatus = &current.NewStatus
			// changed_at never goes backwards within one record's log
			if m.ChangedAt.Before(current.ChangedAt) {
				m.ChangedAt = current.ChangedAt
			}
			d := int64(m.ChangedAt.Sub(current.ChangedAt) / time.Second)
			if d < 0 {
				d = 0
			}
			m.DurationInPreviousStatus = &d
		}

		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return tx.Model(&BreakdownRecordModel{}).
			Where("id = ?", value.RecordID).
			Update("status", string(value.NewStatus)).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.StatusTransition{}, fmt.Errorf("%w: record %d", domain.ErrNotFound, value.RecordID)
	}
	if err != nil {
		return domain.StatusTransition{}, persistence(err)
	}

	return transitionFromModel(m), nil
}

func (r *TrackerRepository) ListTransitions(ctx context.Context, recordID uint) ([]domain.StatusTransition, error) {
	rows := make([]StatusTransitionModel, 0)
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("sequence_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, persistence(err)
	}

	result := make([]domain.StatusTransition, 0, len(rows))
	for _, m := range rows {
		result = append(result, transitionFromModel(m))
	}
	return result, nil
}

func (r *TrackerRepository) CurrentTransition(ctx context.Context, recordID uint) (*domain.StatusTransition, error) {
	var m StatusTransitionModel
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("sequence_number DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence(err)
	}
	tr := transitionFromModel(m)
	return &tr, nil
}

func (r *TrackerRepository) ListRecordIDsWithTransitions(ctx context.Context, start, end time.Time) ([]uint, error) {
	ids := make([]uint, 0)
	err := r.db.WithContext(ctx).
		Model(&StatusTransitionModel{}).
		Where("changed_at >= ? AND changed_at <= ?", start, end).
		Distinct("record_id").
		Order("record_id ASC").
		Pluck("record_id", &ids).Error
	if err != nil {
		return nil, persistence(err)
	}
	return ids, nil
}

func (r *TrackerRepository) ListTransitionsForRecords(ctx context.Context, recordIDs []uint) (map[uint][]domain.StatusTransition, error) {
	result := make(map[uint][]domain.StatusTransition, len(recordIDs))
	if len(recordIDs) == 0 {
		return result, nil
	}

	rows := make([]StatusTransitionModel, 0)
	err := r.db.WithContext(ctx).
		Where("record_id IN ?", recordIDs).
		Order("record_id ASC, sequence_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, persistence(err)
	}

	for _, m := range rows {
		result[m.RecordID] = append(result[m.RecordID], transitionFromModel(m))
	}
	return result, nil
}

func (r *TrackerRepository) CreateOccurrence(ctx context.Context, value domain.Occurrence) (domain.Occurrence, error) {
	m := OccurrenceModel{
		RecordID:     value.RecordID,
		OperatorName: value.OperatorName,
		Description:  value.Description,
		CreatedAt:    value.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Occurrence{}, persistence(err)
	}
	return occurrenceFromModel(m), nil
}

func (r *TrackerRepository) ListOccurrences(ctx context.Context, recordID uint) ([]domain.Occurrence, error) {
	rows := make([]OccurrenceModel, 0)
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, persistence(err)
	}
	result := make([]domain.Occurrence, 0, len(rows))
	for _, m := range rows {
		result = append(result, occurrenceFromModel(m))
	}
	return result, nil
}

func recordFromModel(m BreakdownRecordModel) domain.BreakdownRecord {
	return domain.BreakdownRecord{
		ID:           m.ID,
		VehiclePlate: m.VehiclePlate,
		DriverName:   m.DriverName,
		Description:  m.Description,
		Status:       domain.Status(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func transitionFromModel(m StatusTransitionModel) domain.StatusTransition {
	tr := domain.StatusTransition{
		ID:                       m.ID,
		RecordID:                 m.RecordID,
		SequenceNumber:           m.SequenceNumber,
		NewStatus:                domain.Status(m.NewStatus),
		OperatorName:             m.OperatorName,
		ChangedAt:                m.ChangedAt,
		DurationInPreviousStatus: m.DurationInPreviousStatus,
		Notes:                    m.Notes,
	}
	if m.PreviousStatus != nil {
		prev := domain.Status(*m.PreviousStatus)
		tr.PreviousStatus = &prev
	}
	return tr
}

func occurrenceFromModel(m OccurrenceModel) domain.Occurrence {
	return domain.Occurrence{
		ID:           m.ID,
		RecordID:     m.RecordID,
		OperatorName: m.OperatorName,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
	}
}

func persistence(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}

func (r *TrackerRepository) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	m := UserModel{Email: strings.ToLower(strings.TrimSpace(value.Email)), PasswordHash: value.PasswordHash}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: m.ID, Email: m.Email, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}, nil
}

func (r *TrackerRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error
	return count, err
}

func (r *TrackerRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&m).Error; err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: m.ID, Email: m.Email, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}, nil
}

func (r *TrackerRepository) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: m.ID, Email: m.Email, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}, nil
}

func (r *TrackerRepository) CreateSession(ctx context.Context, value domain.AuthSession) (domain.AuthSession, error) {
	m := SessionModel{UserID: value.UserID, TokenHash: value.TokenHash, ExpiresAt: value.ExpiresAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{ID: m.ID, UserID: m.UserID, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *TrackerRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.AuthSession, error) {
	var m SessionModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{ID: m.ID, UserID: m.UserID, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *TrackerRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&SessionModel{}).Error
}

func (r *TrackerRepository) CreateAPIToken(ctx context.Context, value domain.APIToken) (domain.APIToken, error) {
	m := APITokenModel{UserID: value.UserID, Name: value.Name, TokenHash: value.TokenHash, ExpiresAt: value.ExpiresAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.APIToken{}, err
	}
	return domain.APIToken{ID: m.ID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *TrackerRepository) GetAPITokenByTokenHash(ctx context.Context, tokenHash string) (domain.APIToken, error) {
	var m APITokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		return domain.APIToken{}, err
	}
	return domain.APIToken{ID: m.ID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *TrackerRepository) CreateRoleIfMissing(ctx context.Context, key, name string) (uint, error) {
	m := RoleModel{Key: key, Name: name}
	err := r.db.WithContext(ctx).Where("key = ?", key).FirstOrCreate(&m).Error
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (r *TrackerRepository) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows := make([]RoleModel, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Role, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.Role{ID: m.ID, Key: m.Key, Name: m.Name, CreatedAt: m.CreatedAt})
	}
	return result, nil
}

func (r *TrackerRepository) CreatePermissionIfMissing(ctx context.Context, key string) (uint, error) {
	m := PermissionModel{Key: key}
	err := r.db.WithContext(ctx).Where("key = ?", key).FirstOrCreate(&m).Error
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (r *TrackerRepository) GrantPermissionToRole(ctx context.Context, roleID, permissionID uint) error {
	m := RolePermissionModel{RoleID: roleID, PermissionID: permissionID}
	return r.db.WithContext(ctx).Where("role_id = ? AND permission_id = ?", roleID, permissionID).FirstOrCreate(&m).Error
}

func (r *TrackerRepository) AssignRoleToUser(ctx context.Context, userID, roleID uint) error {
	m := UserRoleModel{UserID: userID, RoleID: roleID}
	return r.db.WithContext(ctx).Where("user_id = ? AND role_id = ?", userID, roleID).FirstOrCreate(&m).Error
}

func (r *TrackerRepository) ListUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	q := r.db.WithContext(ctx).Model(&UserModel{})
	if strings.TrimSpace(query) != "" {
		like := "%" + strings.TrimSpace(query) + "%"
		q = q.Where("email LIKE ?", like)
	}
	rows := make([]UserModel, 0)
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.User, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.User{ID: m.ID, Email: m.Email, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt})
	}
	return result, nil
}

func (r *TrackerRepository) GetPermissionsByUserID(ctx context.Context, userID uint) ([]string, error) {
	type row struct{ Key string }
	rows := make([]row, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT p.key
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN user_roles ur ON ur.role_id = rp.role_id
WHERE ur.user_id = ?
`, userID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.Key)
	}
	return result, nil
}

func (r *TrackerRepository) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	m := AuditLogModel{ActorUserID: value.ActorUserID, Action: value.Action, TargetType: value.TargetType, TargetID: value.TargetID, Metadata: value.Metadata}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *TrackerRepository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	type row struct {
		ID             uint
		ActorUserID    *uint
		ActorUserEmail string
		Action         string
		TargetType     string
		TargetID       *uint
		Metadata       string
		CreatedAt      time.Time
	}
	rows := make([]row, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT a.id,
       a.actor_user_id,
       COALESCE(u.email, '') AS actor_user_email,
       a.action,
       a.target_type,
       a.target_id,
       a.metadata,
       a.created_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_user_id
ORDER BY a.id DESC
LIMIT ?
`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.AuditRecord, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.AuditRecord{
			ID:             m.ID,
			ActorUserID:    m.ActorUserID,
			ActorUserEmail: m.ActorUserEmail,
			Action:         m.Action,
			TargetType:     m.TargetType,
			TargetID:       m.TargetID,
			Metadata:       m.Metadata,
			CreatedAt:      m.CreatedAt,
		})
	}
	return result, nil
}
