package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/apperr"
	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/daffahilmyf/go-imagegen/internal/infra/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const generationFailed = "image generation failed"

type Generation struct {
	gate
	images      service.ImageService
	pending     repository.PendingStore
	publisher   repository.RequestPublisher
	idempotency repository.IdempotencyRepository
	metrics     *metrics.Metrics
	newID       func() string
	now         func() time.Time
}

var _ service.GenerationService = (*Generation)(nil)

func NewGeneration(
	accounts service.AccountService,
	images service.ImageService,
	provider repository.AIProvider,
	pending repository.PendingStore,
	publisher repository.RequestPublisher,
	idempotency repository.IdempotencyRepository,
	maxPrompt int,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Generation {
	return &Generation{
		gate:        gate{accounts: accounts, provider: provider, maxPrompt: maxPrompt, log: log},
		images:      images,
		pending:     pending,
		publisher:   publisher,
		idempotency: idempotency,
		metrics:     m,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

func (g *Generation) Submit(ctx context.Context, p service.Principal, req service.GenerateRequest) (string, error) {
	keyed := req.IdempotencyKey != "" && g.idempotency != nil
	// A retried request returns the original message id without passing the
	// gates again.
	if keyed {
		account, err := g.accounts.GetOrCreate(ctx, p)
		if err != nil {
			return "", err
		}
		prev, ok, err := g.idempotency.Get(ctx, account.ID, req.IdempotencyKey)
		if err != nil {
			return "", err
		}
		if ok {
			return g.replay(prev, req.RequestHash)
		}
	}

	account, prompt, err := g.admit(ctx, p, req.Prompt)
	if err != nil {
		g.metrics.Generation(metrics.OutcomeRejected)
		return "", err
	}

	messageID := g.newID()
	log := g.log.WithField("message_id", messageID).WithField("user_id", p.UserID)
	if keyed {
		stored, err := g.idempotency.Save(ctx, entity.IdempotencyKey{
			UserAccountID: account.ID,
			Key:           req.IdempotencyKey,
			RequestHash:   req.RequestHash,
			MessageID:     messageID,
			CreatedAt:     g.now().UTC(),
		})
		if err != nil {
			if errors.Is(err, repository.ErrIdempotencyKeyConflict) {
				return "", apperr.Conflict("idempotency key reused with a different request")
			}
			return "", err
		}
		if stored.MessageID != messageID {
			return g.replay(stored, req.RequestHash)
		}
	}
	// a key must never point at a message the relay did not receive
	forget := func() {
		if !keyed {
			return
		}
		if err := g.idempotency.Delete(context.WithoutCancel(ctx), account.ID, req.IdempotencyKey); err != nil {
			log.WithError(err).Warn("delete idempotency key failed")
		}
	}

	waiting := entity.PendingRequest{Status: entity.PendingWaiting, UserID: p.UserID, Prompt: prompt}
	if err := g.pending.Put(ctx, messageID, waiting); err != nil {
		log.WithError(err).Error("store pending request failed")
		forget()
		return "", err
	}

	payload, err := json.Marshal(entity.GenerationJob{MessageID: messageID, UserID: p.UserID, Prompt: prompt})
	if err != nil {
		forget()
		return "", err
	}
	if err := g.publisher.PublishRequest(ctx, messageID, payload); err != nil {
		log.WithError(err).Error("publish generation request failed")
		if derr := g.pending.Delete(context.WithoutCancel(ctx), messageID); derr != nil {
			log.WithError(derr).Warn("delete pending request failed")
		}
		forget()
		return "", apperr.Internal("publish generation request", err)
	}

	g.metrics.Generation(metrics.OutcomeSubmitted)
	log.Info("generation submitted")
	return messageID, nil
}

func (g *Generation) replay(prev entity.IdempotencyKey, hash string) (string, error) {
	if prev.RequestHash != hash {
		return "", apperr.Conflict("idempotency key reused with a different request")
	}
	return prev.MessageID, nil
}

func (g *Generation) Poll(ctx context.Context, p service.Principal, messageID string) ([]string, error) {
	req, err := g.owned(ctx, p, messageID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case entity.PendingDone:
		return req.URLs, nil
	case entity.PendingFailed:
		return nil, apperr.Gone(req.Reason)
	default:
		return nil, apperr.NotFound("generation not finished")
	}
}

func (g *Generation) owned(ctx context.Context, p service.Principal, messageID string) (entity.PendingRequest, error) {
	if messageID == "" {
		return entity.PendingRequest{}, apperr.Validation("messageId is required")
	}
	req, ok, err := g.pending.Get(ctx, messageID)
	if err != nil {
		return entity.PendingRequest{}, err
	}
	if !ok || req.UserID != p.UserID {
		return entity.PendingRequest{}, apperr.NotFound("generation not found")
	}
	return req, nil
}

// HandleCallback claims the waiting entry and finishes it. Once claimed, any
// failure leaves a failed state with a reason instead of the images.
func (g *Generation) HandleCallback(ctx context.Context, messageID string, status int, body []byte) error {
	log := g.log.WithField("message_id", messageID)
	prev, claimed, err := g.pending.Claim(ctx, messageID)
	if err != nil {
		log.WithError(err).Error("claim pending request failed")
		return err
	}
	if !claimed {
		log.WithField("status", prev.Status).Warn("callback for request not waiting")
		return apperr.Conflict("generation is not waiting")
	}
	log = log.WithField("user_id", prev.UserID)

	urls, err := g.complete(ctx, prev, status, body)
	if err != nil {
		reason := apperr.MessageOf(err)
		if k := apperr.KindOf(err); k == apperr.KindProvider || k == apperr.KindStorage || k == apperr.KindInternal || reason == "" {
			reason = generationFailed
		}
		log.WithError(err).Error("generation failed")
		g.metrics.Generation(metrics.OutcomeFailed)
		failed := entity.PendingRequest{Status: entity.PendingFailed, UserID: prev.UserID, Reason: reason}
		if rerr := g.pending.Resolve(context.WithoutCancel(ctx), messageID, failed); rerr != nil {
			log.WithError(rerr).Error("record failed generation failed")
		}
		return err
	}

	done := entity.PendingRequest{Status: entity.PendingDone, UserID: prev.UserID, URLs: urls}
	if err := g.pending.Resolve(ctx, messageID, done); err != nil {
		log.WithError(err).Error("record finished generation failed")
		return err
	}
	g.metrics.Generation(metrics.OutcomeDone)
	log.WithField("count", len(urls)).Info("generation finished")
	return nil
}

func (g *Generation) complete(ctx context.Context, req entity.PendingRequest, status int, body []byte) ([]string, error) {
	if status < 200 || status >= 300 {
		msg := gjson.GetBytes(body, "error.message").String()
		return nil, apperr.Provider("provider returned an error", errors.New(msg))
	}
	blobs, err := g.provider.DecodeImages(ctx, body)
	if err != nil {
		return nil, err
	}
	views, err := g.images.Persist(ctx, req.UserID, req.Prompt, blobs)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(views))
	for n, v := range views {
		urls[n] = v.URL
	}
	return urls, nil
}

// Watch waits for the terminal state of an owned request, returning at once
// when it is already terminal.
func (g *Generation) Watch(ctx context.Context, p service.Principal, messageID string) (entity.PendingRequest, error) {
	req, err := g.owned(ctx, p, messageID)
	if err != nil {
		return entity.PendingRequest{}, err
	}
	if req.Terminal() {
		return req, nil
	}

	updates, stop, err := g.pending.Watch(ctx, messageID)
	if err != nil {
		return entity.PendingRequest{}, err
	}
	defer stop()

	// The state may have turned terminal between the read and the subscribe.
	if req, ok, err := g.pending.Get(ctx, messageID); err == nil && ok && req.Terminal() {
		return req, nil
	}

	select {
	case <-ctx.Done():
		return entity.PendingRequest{}, ctx.Err()
	case req, ok := <-updates:
		if !ok {
			return entity.PendingRequest{}, apperr.NotFound("generation not found")
		}
		return req, nil
	}
}

type Prompt struct {
	provider  repository.AIProvider
	maxPrompt int
	log       *logrus.Logger
}

var _ service.PromptService = (*Prompt)(nil)

func NewPrompt(provider repository.AIProvider, maxPrompt int, log *logrus.Logger) *Prompt {
	return &Prompt{provider: provider, maxPrompt: maxPrompt, log: log}
}

func (pr *Prompt) Improve(ctx context.Context, p service.Principal, prompt string) (string, error) {
	prompt, err := normalizePrompt(prompt, pr.maxPrompt)
	if err != nil {
		return "", err
	}
	improved, err := pr.provider.ImprovePrompt(ctx, prompt)
	if err != nil {
		pr.log.WithError(err).WithField("user_id", p.UserID).Error("improve prompt failed")
		return "", err
	}
	return improved, nil
}
