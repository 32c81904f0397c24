package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/sirupsen/logrus"
)

type Account struct {
	repo repository.UserAccountRepository
	cfg  config.Tokens
	log  *logrus.Logger
	now  func() time.Time
}

var _ service.AccountService = (*Account)(nil)

func NewAccount(repo repository.UserAccountRepository, cfg config.Tokens, log *logrus.Logger) *Account {
	return &Account{repo: repo, cfg: cfg, log: log, now: time.Now}
}

func (a *Account) GetOrCreate(ctx context.Context, p service.Principal) (entity.UserAccount, error) {
	if p.UserID == "" {
		return entity.UserAccount{}, apperr.ErrUnauthorized
	}
	account, err := a.repo.GetByUserID(ctx, p.UserID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		a.log.WithError(err).WithField("user_id", p.UserID).Error("get account failed")
		return entity.UserAccount{}, err
	}

	account = entity.UserAccount{
		UserID:                p.UserID,
		ImageGenerationTokens: a.cfg.DefaultCount,
		CreatedAt:             a.now().UTC(),
	}
	if p.DisplayName != "" {
		name := p.DisplayName
		account.UserName = &name
	}
	account, err = a.repo.Create(ctx, account)
	if err != nil {
		a.log.WithError(err).WithField("user_id", p.UserID).Error("create account failed")
		return entity.UserAccount{}, err
	}
	a.log.WithField("user_id", p.UserID).Info("account created")
	return account, nil
}

// DecrementTokenCount never takes a balance below zero from a positive one
// and leaves an exhausted balance unchanged.
func (a *Account) DecrementTokenCount(ctx context.Context, userID string, count int) error {
	if count <= 0 {
		return apperr.Validation("token count must be positive")
	}
	changed, err := a.repo.DecrementTokens(ctx, userID, count)
	if err != nil {
		a.log.WithError(err).WithField("user_id", userID).Error("decrement tokens failed")
		return err
	}
	if !changed {
		a.log.WithField("user_id", userID).Debug("decrement skipped, balance exhausted")
	}
	return nil
}

// CheckTokenRegeneration creates the account on first sight, so an unknown
// user starts with the default balance and a fresh schedule.
func (a *Account) CheckTokenRegeneration(ctx context.Context, userID string) (*time.Time, error) {
	account, err := a.GetOrCreate(ctx, service.Principal{UserID: userID})
	if err != nil {
		return nil, err
	}
	next, _, err := a.regenerate(ctx, account)
	return next, err
}

func (a *Account) GetTokenCount(ctx context.Context, p service.Principal) (service.TokenCount, error) {
	account, err := a.GetOrCreate(ctx, p)
	if err != nil {
		return service.TokenCount{}, err
	}
	next, regenerated, err := a.regenerate(ctx, account)
	if err != nil {
		return service.TokenCount{}, err
	}
	if account.IsUnlimited {
		return service.TokenCount{Unlimited: true}, nil
	}
	count := account.ImageGenerationTokens
	if regenerated && count < a.cfg.RegenerationCount {
		count = a.cfg.RegenerationCount
	}
	return service.TokenCount{Count: count, NextRegeneration: next}, nil
}

// regenerate evaluates the regeneration schedule on read and reports whether
// the balance was topped up.
func (a *Account) regenerate(ctx context.Context, account entity.UserAccount) (*time.Time, bool, error) {
	if account.IsUnlimited {
		return nil, false, nil
	}
	now := a.now().UTC()
	next := now.AddDate(0, 0, a.cfg.RegenerationDays)

	switch {
	case account.NextTokenRegeneration == nil:
		if err := a.repo.SetNextRegeneration(ctx, account.UserID, next); err != nil {
			return nil, false, fmt.Errorf("schedule regeneration: %w", err)
		}
		return &next, false, nil
	case !account.NextTokenRegeneration.After(now):
		if err := a.repo.Regenerate(ctx, account.UserID, a.cfg.RegenerationCount, next); err != nil {
			return nil, false, fmt.Errorf("regenerate tokens: %w", err)
		}
		a.log.WithField("user_id", account.UserID).Info("tokens regenerated")
		return &next, true, nil
	default:
		stored := *account.NextTokenRegeneration
		return &stored, false, nil
	}
}
