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

type UserAccountRepository struct {
	db *DB
}

var _ repository.UserAccountRepository = (*UserAccountRepository)(nil)

func NewUserAccountRepository(db *DB) *UserAccountRepository {
	return &UserAccountRepository{db: db}
}

func (r *UserAccountRepository) GetByUserID(ctx context.Context, userID string) (entity.UserAccount, error) {
	return firstAccount(r.db.Read(ctx), userID)
}

// Create relies on the unique index over user_id; a concurrent insert for the
// same user makes this one a no-op and the winner row is returned.
func (r *UserAccountRepository) Create(ctx context.Context, account entity.UserAccount) (entity.UserAccount, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	err := r.db.Write(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&account).Error
	if err != nil {
		return entity.UserAccount{}, err
	}
	// read the primary so a replica lagging behind the insert cannot miss it
	return firstAccount(r.db.Write(ctx), account.UserID)
}

func (r *UserAccountRepository) DecrementTokens(ctx context.Context, userID string, count int) (bool, error) {
	res := r.db.Write(ctx).
		Model(&entity.UserAccount{}).
		Where("user_id = ? AND image_generation_tokens > 0", userID).
		UpdateColumn("image_generation_tokens", gorm.Expr("image_generation_tokens - ?", count))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *UserAccountRepository) SetNextRegeneration(ctx context.Context, userID string, next time.Time) error {
	return affected(r.db.Write(ctx).
		Model(&entity.UserAccount{}).
		Where("user_id = ?", userID).
		UpdateColumn("next_token_regeneration", next))
}

func (r *UserAccountRepository) Regenerate(ctx context.Context, userID string, count int, next time.Time) error {
	return affected(r.db.Write(ctx).
		Model(&entity.UserAccount{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"image_generation_tokens": gorm.Expr("GREATEST(image_generation_tokens, ?)", count),
			"next_token_regeneration": next,
		}))
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

func firstAccount(tx *gorm.DB, userID string) (entity.UserAccount, error) {
	var account entity.UserAccount
	err := tx.Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.UserAccount{}, repository.ErrAccountNotFound
	}
	if err != nil {
		return entity.UserAccount{}, err
	}
	return account, nil
}
