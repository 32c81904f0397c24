package usecase

import (
	"context"
	"errors"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/daffahilmyf/go-imagegen/internal/infra/imaging"
	"github.com/daffahilmyf/go-imagegen/internal/infra/metrics"
	"github.com/daffahilmyf/go-imagegen/internal/infra/pagination"
	"github.com/sirupsen/logrus"
)

type Images struct {
	gate
	repo     repository.GeneratedImageRepository
	store    repository.Store
	storage  repository.ObjectStorage
	metrics  *metrics.Metrics
	blurHash func([]byte) (string, error)
}

var _ service.ImageService = (*Images)(nil)

func NewImages(
	accounts service.AccountService,
	repo repository.GeneratedImageRepository,
	store repository.Store,
	storage repository.ObjectStorage,
	provider repository.AIProvider,
	maxPrompt int,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Images {
	return &Images{
		gate:     gate{accounts: accounts, provider: provider, maxPrompt: maxPrompt, log: log},
		repo:     repo,
		store:    store,
		storage:  storage,
		metrics:  m,
		blurHash: imaging.BlurHash,
	}
}

func (i *Images) List(ctx context.Context, p service.Principal, in service.ListImagesInput) (service.ImagePage, error) {
	page, err := pagination.Parse(in.Cursor, in.Limit)
	if err != nil {
		return service.ImagePage{}, apperr.Validation(err.Error())
	}
	account, err := i.accounts.GetOrCreate(ctx, p)
	if err != nil {
		return service.ImagePage{}, err
	}
	rows, err := i.repo.List(ctx, repository.ImageQuery{
		UserAccountID: account.ID,
		Keywords:      pagination.Keywords(in.Search),
		Limit:         page.Fetch(),
		Offset:        page.Offset(),
	})
	if err != nil {
		i.log.WithError(err).WithField("user_id", p.UserID).Error("list images failed")
		return service.ImagePage{}, err
	}

	next := page.Next(len(rows))
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
	}
	return service.ImagePage{Images: i.views(rows), NextCursor: next}, nil
}

// Delete removes the row and queues the object deletion through the outbox.
func (i *Images) Delete(ctx context.Context, p service.Principal, id int64) (entity.GeneratedImage, error) {
	account, err := i.accounts.GetOrCreate(ctx, p)
	if err != nil {
		return entity.GeneratedImage{}, err
	}
	image, err := i.repo.Delete(ctx, account, id)
	if errors.Is(err, repository.ErrImageNotFound) {
		return entity.GeneratedImage{}, apperr.NotFound("image not found")
	}
	if err != nil {
		i.log.WithError(err).WithField("image_id", id).Error("delete image failed")
		return entity.GeneratedImage{}, err
	}
	return image, nil
}

func (i *Images) Generate(ctx context.Context, p service.Principal, prompt string) ([]service.ImageView, error) {
	_, prompt, err := i.admit(ctx, p, prompt)
	if err != nil {
		i.metrics.Generation(metrics.OutcomeRejected)
		return nil, err
	}
	raw, err := i.provider.GenerateRaw(ctx, prompt, p.UserID)
	if err != nil {
		i.log.WithError(err).WithField("user_id", p.UserID).Error("generate image failed")
		i.metrics.Generation(metrics.OutcomeFailed)
		return nil, err
	}
	blobs, err := i.provider.DecodeImages(ctx, raw)
	if err != nil {
		i.log.WithError(err).WithField("user_id", p.UserID).Error("decode images failed")
		i.metrics.Generation(metrics.OutcomeFailed)
		return nil, err
	}
	views, err := i.Persist(ctx, p.UserID, prompt, blobs)
	if err != nil {
		i.metrics.Generation(metrics.OutcomeFailed)
		return nil, err
	}
	i.metrics.Generation(metrics.OutcomeDone)
	return views, nil
}

func (i *Images) Persist(ctx context.Context, userID, prompt string, blobs []repository.Blob) ([]service.ImageView, error) {
	if len(blobs) == 0 {
		return nil, apperr.Provider("no images to upload", nil)
	}
	account, err := i.accounts.GetOrCreate(ctx, service.Principal{UserID: userID})
	if err != nil {
		return nil, err
	}
	log := i.log.WithField("user_id", userID)

	objects, err := i.storage.Upload(ctx, blobs, map[string]string{"prompt": prompt, "userId": userID})
	if err != nil {
		log.WithError(err).Error("upload images failed")
		return nil, apperr.Storage("upload images", err)
	}

	rows := make([]entity.NewGeneratedImage, len(objects))
	for n, obj := range objects {
		rows[n] = entity.NewGeneratedImage{Prompt: prompt, Key: obj.Key}
		hash, err := i.blurHash(blobs[n].Data)
		if err != nil {
			log.WithError(err).WithField("key", obj.Key).Warn("blurhash skipped")
			continue
		}
		rows[n].BlurHash = &hash
	}

	// rows and debit commit together; objects left by a rollback are
	// orphans for the reconciler
	var saved []entity.GeneratedImage
	err = i.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		saved, err = i.repo.SaveBatch(ctx, account, rows)
		if err != nil || account.IsUnlimited {
			return err
		}
		return i.accounts.DecrementTokenCount(ctx, userID, len(saved))
	})
	if err != nil {
		log.WithError(err).Error("save images failed")
		return nil, err
	}
	if !account.IsUnlimited {
		i.metrics.TokensDebited(len(saved))
	}
	log.WithField("count", len(saved)).Info("images stored")
	return i.views(saved), nil
}

func (i *Images) views(rows []entity.GeneratedImage) []service.ImageView {
	out := make([]service.ImageView, len(rows))
	for n, row := range rows {
		out[n] = service.ImageView{GeneratedImage: row, URL: i.storage.URLFor(row.Key)}
	}
	return out
}
