package persistence

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"gorm.io/datatypes"
)

type GeneratedImageRepository struct {
	db     *DB
	outbox *OutboxRepository
}

var _ repository.GeneratedImageRepository = (*GeneratedImageRepository)(nil)

func NewGeneratedImageRepository(db *DB) *GeneratedImageRepository {
	return &GeneratedImageRepository{db: db, outbox: NewOutboxRepository(db)}
}

func (r *GeneratedImageRepository) List(ctx context.Context, q repository.ImageQuery) ([]entity.GeneratedImage, error) {
	query := r.db.Read(ctx).
		Where("user_account_id = ?", q.UserAccountID)
	for _, kw := range q.Keywords {
		query = query.Where("LOWER(prompt) LIKE ?", "%"+escapeLike(kw)+"%")
	}
	query = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(q.Limit)
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var images []entity.GeneratedImage
	if err := query.Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *GeneratedImageRepository) SaveBatch(ctx context.Context, account entity.UserAccount, images []entity.NewGeneratedImage) ([]entity.GeneratedImage, error) {
	if len(images) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	rows := make([]entity.GeneratedImage, 0, len(images))
	for _, img := range images {
		rows = append(rows, entity.GeneratedImage{
			UserAccountID: account.ID,
			Prompt:        img.Prompt,
			Key:           img.Key,
			BlurHash:      img.BlurHash,
			CreatedAt:     now,
		})
	}

	err := r.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := r.db.Write(txCtx).Create(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			if err := r.appendEvent(txCtx, entity.EventImageGenerated, account, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GeneratedImageRepository) Delete(ctx context.Context, account entity.UserAccount, id int64) (entity.GeneratedImage, error) {
	var deleted entity.GeneratedImage
	err := r.db.WithTx(ctx, func(txCtx context.Context) error {
		var rows []entity.GeneratedImage
		if err := r.db.Write(txCtx).Raw(
			`DELETE FROM generated_images WHERE id = ? AND user_account_id = ? RETURNING id, user_account_id, prompt, key, blur_hash, created_at`,
			id, account.ID,
		).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return repository.ErrImageNotFound
		}
		deleted = rows[0]
		return r.appendEvent(txCtx, entity.EventImageDeleted, account, deleted)
	})
	if err != nil {
		return entity.GeneratedImage{}, err
	}
	return deleted, nil
}

func (r *GeneratedImageRepository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := r.db.Read(ctx).Model(&entity.GeneratedImage{}).Pluck("key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *GeneratedImageRepository) appendEvent(ctx context.Context, eventType string, account entity.UserAccount, img entity.GeneratedImage) error {
	data, err := json.Marshal(entity.ImageEvent{
		ImageID:       img.ID,
		UserAccountID: account.ID,
		UserID:        account.UserID,
		Key:           img.Key,
		Prompt:        img.Prompt,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.outbox.Append(ctx, entity.OutboxEvent{
		AggregateType: "generated_image",
		AggregateID:   strconv.FormatInt(img.ID, 10),
		EventType:     eventType,
		Payload:       datatypes.JSON(data),
	})
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
