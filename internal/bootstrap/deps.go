package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/infra/messaging"
	"github.com/daffahilmyf/go-imagegen/internal/infra/persistence"
	"github.com/daffahilmyf/go-imagegen/internal/infra/storage"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func openDB(ctx context.Context, cfg config.Config, log *logrus.Logger) (*persistence.DB, error) {
	start := time.Now()
	conn, err := persistence.New(ctx, persistence.ConfigFrom(cfg.Database, log))
	if err != nil {
		return nil, err
	}
	pingCtx := ctx
	if cfg.Database.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
	}
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	log.Infof("bootstrap: db ready in %s", time.Since(start))
	return conn, nil
}

func openNATS(ctx context.Context, cfg config.Config) (*messaging.NATSClient, error) {
	client, err := messaging.NewNATS(ctx, cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	if client == nil {
		return nil, errors.New("nats: nats url is required")
	}
	return client, nil
}

// openRedis returns nil when no address is configured; callers fall back to
// in-process state.
func openRedis(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return client, nil
}

func openStorage(client *messaging.NATSClient, cfg config.Storage) (*storage.ObjectStore, error) {
	bucket, err := client.ObjectStore(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("object store %s: %w", cfg.Bucket, err)
	}
	return storage.New(bucket, cfg.PublicBaseURL), nil
}

// requestTransport is the relay queue selected by relay.transport.
type requestTransport struct {
	publisher repository.RequestPublisher
	consume   func(ctx context.Context, handle messaging.RequestHandler, log *logrus.Logger) error
	close     func()
}

func openRequestTransport(cfg config.Config, natsClient *messaging.NATSClient) (requestTransport, error) {
	switch cfg.Relay.Transport {
	case "", "nats":
		return requestTransport{
			publisher: natsClient,
			consume: func(ctx context.Context, handle messaging.RequestHandler, log *logrus.Logger) error {
				return natsClient.ConsumeRequests(ctx, cfg.NATS.RelayDurable, handle, log)
			},
			close: func() {},
		}, nil
	case "amqp":
		client, err := messaging.NewAMQP(cfg.AMQP)
		if err != nil {
			return requestTransport{}, err
		}
		return requestTransport{publisher: client, consume: client.ConsumeRequests, close: client.Close}, nil
	default:
		return requestTransport{}, fmt.Errorf("relay: unknown transport %q", cfg.Relay.Transport)
	}
}
