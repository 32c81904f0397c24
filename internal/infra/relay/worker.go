package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/infra/messaging"
	"github.com/sirupsen/logrus"
)

// failureMessage is the reason end users see when the provider call fails.
const failureMessage = "image generation failed"

type Worker struct {
	provider    repository.AIProvider
	signer      *Signer
	client      *http.Client
	callbackURL string
	log         *logrus.Logger
}

func NewWorker(provider repository.AIProvider, signer *Signer, callbackURL string, timeout time.Duration, log *logrus.Logger) *Worker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{
		provider:    provider,
		signer:      signer,
		client:      &http.Client{Timeout: timeout},
		callbackURL: callbackURL,
		log:         log,
	}
}

// Handle runs one job and delivers its outcome. Provider failures are
// delivered as a failed envelope; only delivery failures are retried.
func (w *Worker) Handle(ctx context.Context, messageID string, payload []byte) error {
	var job entity.GenerationJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("%w: decode job: %v", messaging.ErrPermanent, err)
	}
	if messageID == "" {
		messageID = job.MessageID
	}
	if messageID == "" {
		return fmt.Errorf("%w: job has no message id", messaging.ErrPermanent)
	}

	log := w.log.WithField("message_id", messageID)
	status := http.StatusOK
	body, err := w.provider.GenerateRaw(ctx, job.Prompt, job.UserID)
	if err != nil {
		log.WithError(err).Warn("relay: provider call failed")
		status = http.StatusBadGateway
		body, _ = json.Marshal(map[string]any{"error": map[string]string{"message": failureMessage}})
	}

	return w.deliver(ctx, NewEnvelope(messageID, status, body))
}

func (w *Worker) deliver(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", messaging.ErrPermanent, err)
	}
	token, err := w.signer.Sign(w.callbackURL, raw)
	if err != nil {
		return fmt.Errorf("sign callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.callbackURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: build callback: %v", messaging.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Already completed by an earlier delivery.
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: callback rejected: %s", messaging.ErrPermanent, resp.Status)
	default:
		return fmt.Errorf("callback failed: %s", resp.Status)
	}
}
