package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRepository struct {
	db *DB
}

var _ repository.IdempotencyRepository = (*IdempotencyRepository)(nil)

func NewIdempotencyRepository(db *DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, userAccountID int64, key string) (entity.IdempotencyKey, bool, error) {
	var row entity.IdempotencyKey
	err := r.db.Write(ctx).
		Where("user_account_id = ? AND key = ?", userAccountID, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.IdempotencyKey{}, false, nil
	}
	if err != nil {
		return entity.IdempotencyKey{}, false, err
	}
	return row, true, nil
}

func (r *IdempotencyRepository) Save(ctx context.Context, key entity.IdempotencyKey) (entity.IdempotencyKey, error) {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	res := r.db.Write(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&key)
	if res.Error != nil {
		return entity.IdempotencyKey{}, res.Error
	}
	if res.RowsAffected > 0 {
		return key, nil
	}

	existing, ok, err := r.Get(ctx, key.UserAccountID, key.Key)
	if err != nil {
		return entity.IdempotencyKey{}, err
	}
	if !ok || existing.RequestHash != key.RequestHash {
		return entity.IdempotencyKey{}, repository.ErrIdempotencyKeyConflict
	}
	return existing, nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, userAccountID int64, key string) error {
	return r.db.Write(ctx).
		Where("user_account_id = ? AND key = ?", userAccountID, key).
		Delete(&entity.IdempotencyKey{}).Error
}

func (r *IdempotencyRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.Write(ctx).
		Where("created_at < ?", before).
		Delete(&entity.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
