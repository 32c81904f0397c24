package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/sirupsen/logrus"
)

const quotaMessage = "You don't have enough tokens to generate images"

// gate runs the checks every generation passes before any state is written:
// account, quota, prompt length and moderation, in that order.
type gate struct {
	accounts  service.AccountService
	provider  repository.AIProvider
	maxPrompt int
	log       *logrus.Logger
}

func (g gate) admit(ctx context.Context, p service.Principal, prompt string) (entity.UserAccount, string, error) {
	account, err := g.accounts.GetOrCreate(ctx, p)
	if err != nil {
		return entity.UserAccount{}, "", err
	}
	if !account.CanGenerate() {
		return entity.UserAccount{}, "", apperr.Quota(quotaMessage)
	}
	prompt, err = normalizePrompt(prompt, g.maxPrompt)
	if err != nil {
		return entity.UserAccount{}, "", err
	}
	flagged, err := g.provider.Moderate(ctx, prompt)
	if err != nil {
		g.log.WithError(err).WithField("user_id", p.UserID).Error("moderation failed")
		return entity.UserAccount{}, "", err
	}
	if flagged {
		g.log.WithField("user_id", p.UserID).Info("prompt rejected by moderation")
		return entity.UserAccount{}, "", apperr.Moderation("prompt violates the content policy")
	}
	return account, prompt, nil
}

func normalizePrompt(prompt string, limit int) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", apperr.Validation("prompt is required")
	}
	if limit > 0 && utf8.RuneCountInString(prompt) > limit {
		return "", apperr.Validation(fmt.Sprintf("prompt must be at most %d characters", limit))
	}
	return prompt, nil
}
