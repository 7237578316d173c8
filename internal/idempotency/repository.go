package idempotency

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Claim inserts the record if no live row exists for (scope, key).
	// Returns claimed=true when this caller won the insert; otherwise the
	// existing record is returned.
	Claim(ctx context.Context, record *Record) (claimed bool, existing *Record, err error)

	// Reclaim flips a FAILED record back to IN_PROGRESS so the operation
	// can be retried. Returns false if the record was not in FAILED state.
	Reclaim(ctx context.Context, scope, key string, expiresAt time.Time) (bool, error)

	// Takeover re-claims a record whose TTL lapsed before the cleanup job
	// removed it, whatever its status: an expired COMPLETED result must
	// not replay, and an IN_PROGRESS row orphaned by a crash must not
	// block the key forever. Returns false when the row is still live.
	Takeover(ctx context.Context, scope, key string, now, expiresAt time.Time) (bool, error)

	Complete(ctx context.Context, scope, key string, result []byte) error
	Fail(ctx context.Context, scope, key string, lastError string) error
	Get(ctx context.Context, scope, key string) (*Record, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Claim(ctx context.Context, record *Record) (bool, *Record, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil, nil
	}

	existing, err := r.Get(ctx, record.Scope, record.Key)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *repository) Reclaim(ctx context.Context, scope, key string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Record{}).
		Where("scope = ? AND key = ? AND status = ?", scope, key, StatusFailed).
		Updates(map[string]interface{}{
			"status":     StatusInProgress,
			"last_error": "",
			"expires_at": expiresAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Takeover(ctx context.Context, scope, key string, now, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Record{}).
		Where("scope = ? AND key = ? AND expires_at < ?", scope, key, now).
		Updates(map[string]interface{}{
			"status":     StatusInProgress,
			"result":     nil,
			"last_error": "",
			"expires_at": expiresAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Complete(ctx context.Context, scope, key string, result []byte) error {
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("scope = ? AND key = ?", scope, key).
		Updates(map[string]interface{}{
			"status":     StatusCompleted,
			"result":     result,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) Fail(ctx context.Context, scope, key string, lastError string) error {
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("scope = ? AND key = ?", scope, key).
		Updates(map[string]interface{}{
			"status":     StatusFailed,
			"last_error": lastError,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) Get(ctx context.Context, scope, key string) (*Record, error) {
	var record Record
	err := r.db.WithContext(ctx).
		Where("scope = ? AND key = ?", scope, key).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}
