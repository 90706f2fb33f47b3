package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/kitemc/verifyd/internal/models"
	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

// GormUserStore implements UserStore on a relational database. Atomic
// durability comes from transactional commit, so Save is a no-op.
type GormUserStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewGormUserStore wraps an open gorm handle.
func NewGormUserStore(db *gorm.DB) (*GormUserStore, error) {
	if db == nil {
		return nil, errors.New("user store: db is required")
	}
	return &GormUserStore{db: db}, nil
}

func (s *GormUserStore) GetAllUsers(ctx context.Context) ([]models.UserRecord, error) {
	var records []models.UserRecord
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.WrapStorage(err)
	}
	return records, nil
}

func (s *GormUserStore) GetUserByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	var record models.UserRecord
	err := s.db.WithContext(ctx).
		Where("username_key = ? AND deleted_at IS NULL", models.NormalizeUsername(username)).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.WrapStorage(err)
	}
	return &record, nil
}

func (s *GormUserStore) GetUserByID(ctx context.Context, id string) (*models.UserRecord, error) {
	var record models.UserRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.WrapStorage(err)
	}
	return &record, nil
}

func (s *GormUserStore) RegisterUser(ctx context.Context, user *models.UserRecord) error {
	if user == nil {
		return errors.New("user store: record is required")
	}

	// Single writer per store instance. The username check and the insert
	// form one critical section so two concurrent registers cannot both pass.
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NormalizeUsername(user.Username)
	user.UsernameKey = key

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.UserRecord{}).
			Where("username_key = ? AND deleted_at IS NULL", key).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperrors.ErrConflict
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) || isUniqueConstraintError(err) {
			return apperrors.ErrConflict
		}
		return apperrors.WrapStorage(err)
	}
	return nil
}

func (s *GormUserStore) UpdateStatus(ctx context.Context, id string, status models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&models.UserRecord{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"status":                status,
			"last_status_change_at": at,
		})
	if res.Error != nil {
		return apperrors.WrapStorage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *GormUserStore) DeleteUser(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&models.UserRecord{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at)
	if res.Error != nil {
		return apperrors.WrapStorage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Save is a no-op: every mutation above commits transactionally.
func (s *GormUserStore) Save(ctx context.Context) error {
	return nil
}

// GormAuditStore implements AuditStore as an insert-only table keyed by a
// monotonically increasing sequence.
type GormAuditStore struct {
	db *gorm.DB
}

// NewGormAuditStore wraps an open gorm handle.
func NewGormAuditStore(db *gorm.DB) (*GormAuditStore, error) {
	if db == nil {
		return nil, errors.New("audit store: db is required")
	}
	return &GormAuditStore{db: db}, nil
}

func (s *GormAuditStore) Append(ctx context.Context, record *models.AuditRecord) error {
	if record == nil {
		return errors.New("audit store: record is required")
	}
	if record.Action == "" {
		return errors.New("audit store: action is required")
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperrors.WrapStorage(fmt.Errorf("append audit entry: %w", err))
	}
	return nil
}

func (s *GormAuditStore) List(ctx context.Context, filter AuditFilter) ([]models.AuditRecord, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditRecord{}).Order("seq")

	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Since != nil {
		query = query.Where("timestamp >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("timestamp <= ?", *filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []models.AuditRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, apperrors.WrapStorage(err)
	}
	return records, nil
}

func (s *GormAuditStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", olderThan).Delete(&models.AuditRecord{})
	if result.Error != nil {
		return 0, apperrors.WrapStorage(result.Error)
	}
	return int(result.RowsAffected), nil
}

// Save is a no-op for the relational implementation.
func (s *GormAuditStore) Save(ctx context.Context) error {
	return nil
}
