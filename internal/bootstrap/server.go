package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/infra/ai"
	"github.com/daffahilmyf/go-imagegen/internal/infra/identity"
	"github.com/daffahilmyf/go-imagegen/internal/infra/metrics"
	"github.com/daffahilmyf/go-imagegen/internal/infra/pending"
	"github.com/daffahilmyf/go-imagegen/internal/infra/persistence"
	"github.com/daffahilmyf/go-imagegen/internal/infra/ratelimit"
	"github.com/daffahilmyf/go-imagegen/internal/infra/relay"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/handlers"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/middleware"
	"github.com/daffahilmyf/go-imagegen/internal/transport/http/response"
	"github.com/daffahilmyf/go-imagegen/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func Run(ctx context.Context, cfg config.Config) error {
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis: redis.addr is required for pending requests")
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

	transport, err := openRequestTransport(cfg, natsClient)
	if err != nil {
		return err
	}
	defer transport.close()

	redisClient, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	objects, err := openStorage(natsClient, cfg.Storage)
	if err != nil {
		return err
	}
	provider, err := ai.NewOpenAI(cfg.AI)
	if err != nil {
		return err
	}
	verifier, err := identity.NewVerifier(cfg.Auth)
	if err != nil {
		return err
	}
	relayVerifier, err := relay.NewVerifier(cfg.Relay.SigningKey, cfg.Relay.NextSigningKey, cfg.Relay.Issuer)
	if err != nil {
		return err
	}
	m := metrics.New()

	accounts := usecase.NewAccount(persistence.NewUserAccountRepository(conn), cfg.Tokens, log)
	images := usecase.NewImages(accounts, persistence.NewGeneratedImageRepository(conn), conn, objects, provider, cfg.AI.MaxPromptLength, m, log)
	generation := usecase.NewGeneration(
		accounts,
		images,
		provider,
		pending.New(redisClient, cfg.Redis.KeyPrefix, cfg.Relay.PendingTTL),
		transport.publisher,
		persistence.NewIdempotencyRepository(conn),
		cfg.AI.MaxPromptLength,
		m,
		log,
	)
	prompts := usecase.NewPrompt(provider, cfg.AI.MaxPromptLength, log)

	mw, err := buildMiddlewares(cfg, redisClient, verifier, relayVerifier, m, log)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(log), middleware.Metrics(m), gin.Recovery())
	handler := handlers.NewHandler(handlers.Deps{
		Accounts:         accounts,
		Images:           images,
		Generation:       generation,
		Prompts:          prompts,
		Storage:          objects,
		Store:            conn,
		HealthcheckToken: cfg.Healthcheck.Token,
		WatchTimeout:     cfg.Relay.PollTimeout,
		Log:              log,
	})
	handlers.NewRouter(handler).RegisterRoutes(router, mw)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("bootstrap: server listening on %s (relay=%s)", cfg.Server.Address, cfg.Relay.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	return nil
}

// buildMiddlewares wires the limiter policies and verifiers. Relay routes
// answer with a bare {message} body, typed routes with the envelope.
func buildMiddlewares(cfg config.Config, redisClient *redis.Client, verifier *identity.Verifier, relayVerifier *relay.Verifier, m *metrics.Metrics, log *logrus.Logger) (handlers.Middlewares, error) {
	defaultPolicy := ratelimit.PolicyFrom("default", cfg.RateLimit.Default)
	promptPolicy := ratelimit.PolicyFrom("prompt", cfg.RateLimit.Prompt)
	defaultLimiter, err := ratelimit.New(redisClient, cfg.RateLimit.Prefix, defaultPolicy)
	if err != nil {
		return handlers.Middlewares{}, err
	}
	promptLimiter, err := ratelimit.New(redisClient, cfg.RateLimit.Prefix, promptPolicy)
	if err != nil {
		return handlers.Middlewares{}, err
	}

	return handlers.Middlewares{
		Auth:         middleware.Auth(verifier, response.RespondErr),
		RelayAuth:    middleware.Auth(verifier, response.RespondMessage),
		DefaultLimit: middleware.RateLimit(defaultLimiter, defaultPolicy, m, log, response.RespondErr),
		RelayLimit:   middleware.RateLimit(defaultLimiter, defaultPolicy, m, log, response.RespondMessage),
		PromptLimit:  middleware.RateLimit(promptLimiter, promptPolicy, m, log, response.RespondErr),
		Idempotency:  middleware.Idempotency(response.RespondMessage),
		Signature:    middleware.Signature(relayVerifier, log),
		Metrics:      m.Handler(),
	}, nil
}

func buildLogger(cfg config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch cfg.Log.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	case "console", "":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, errors.New("log format error: supported values are console or json")
	}
	return log, nil
}
