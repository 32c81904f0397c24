package bootstrap

import (
	"context"
	"errors"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/infra/ai"
	"github.com/daffahilmyf/go-imagegen/internal/infra/messaging"
	"github.com/daffahilmyf/go-imagegen/internal/infra/persistence"
	"github.com/daffahilmyf/go-imagegen/internal/infra/relay"
	"github.com/daffahilmyf/go-imagegen/internal/worker"
	"golang.org/x/sync/errgroup"
)

// RunOutbox publishes outbox events to the event subjects.
func RunOutbox(ctx context.Context, cfg config.Config) error {
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	natsClient, err := openNATS(ctx, cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	return worker.NewOutbox(persistence.NewOutboxRepository(conn), natsClient, cfg.Outbox, log).Run(ctx)
}

// RunConsumer audits domain events and removes deleted images from storage.
func RunConsumer(ctx context.Context, cfg config.Config) error {
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	natsClient, err := openNATS(ctx, cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close()
	objects, err := openStorage(natsClient, cfg.Storage)
	if err != nil {
		return err
	}

	events := worker.NewEvents(persistence.NewAuditLogRepository(conn), objects, log)
	spec := messaging.ConsumerSpec{
		Durable: cfg.NATS.ConsumerDurable,
		Subject: messaging.EventSubject(cfg.NATS.EventSubject, ">"),
	}
	return natsClient.Consume(ctx, spec, events.HandleMsg, log)
}

// RunRelayWorker consumes generation requests, calls the provider and posts
// the signed result to the callback URL. relay.concurrency consumers share
// the durable.
func RunRelayWorker(ctx context.Context, cfg config.Config) error {
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	if cfg.Relay.CallbackURL == "" {
		return errors.New("relay: callback_url or server.public_url is required")
	}
	natsClient, err := openNATS(ctx, cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close()
	transport, err := openRequestTransport(cfg, natsClient)
	if err != nil {
		return err
	}
	defer transport.close()

	provider, err := ai.NewOpenAI(cfg.AI)
	if err != nil {
		return err
	}
	signer, err := relay.NewSigner(cfg.Relay.SigningKey, cfg.Relay.Issuer, cfg.Relay.SignatureTTL)
	if err != nil {
		return err
	}
	w := relay.NewWorker(provider, signer, cfg.Relay.CallbackURL, cfg.Relay.CallbackTimeout, log)

	concurrency := cfg.Relay.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	log.Infof("relay-worker: %d consumers via %s, callback %s", concurrency, cfg.Relay.Transport, cfg.Relay.CallbackURL)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return transport.consume(gctx, w.Handle, log)
		})
	}
	return g.Wait()
}

// RunReconcile removes stored objects without an image row, once or on
// reconcile.schedule.
func RunReconcile(ctx context.Context, cfg config.Config) error {
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	natsClient, err := openNATS(ctx, cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close()
	objects, err := openStorage(natsClient, cfg.Storage)
	if err != nil {
		return err
	}

	return worker.NewReconciler(persistence.NewGeneratedImageRepository(conn), persistence.NewIdempotencyRepository(conn), objects, cfg.Reconcile, log).Run(ctx)
}
