package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	WriteDSN          string        `mapstructure:"write_dsn"`
	ReadDSN           string        `mapstructure:"read_dsn"`
	Host              string        `mapstructure:"host"`
	ReadHost          string        `mapstructure:"read_host"`
	Port              int           `mapstructure:"port"`
	Name              string        `mapstructure:"name"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	SSLMode           string        `mapstructure:"sslmode"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	SlowQuery         time.Duration `mapstructure:"slow_query"`
}

type Config struct {
	Database    Database    `mapstructure:"database"`
	Server      Server      `mapstructure:"server"`
	Log         Log         `mapstructure:"log"`
	NATS        NATS        `mapstructure:"nats"`
	AMQP        AMQP        `mapstructure:"amqp"`
	Relay       Relay       `mapstructure:"relay"`
	Redis       Redis       `mapstructure:"redis"`
	Storage     Storage     `mapstructure:"storage"`
	AI          AI          `mapstructure:"ai"`
	Auth        Auth        `mapstructure:"auth"`
	RateLimit   RateLimit   `mapstructure:"ratelimit"`
	Tokens      Tokens      `mapstructure:"tokens"`
	Outbox      Outbox      `mapstructure:"outbox"`
	Reconcile   Reconcile   `mapstructure:"reconcile"`
	Healthcheck Healthcheck `mapstructure:"healthcheck"`
	Env         string      `mapstructure:"environment"`
}

type Server struct {
	Address      string        `mapstructure:"address"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type NATS struct {
	URL                string          `mapstructure:"url"`
	Stream             string          `mapstructure:"stream"`
	RequestSubject     string          `mapstructure:"request_subject"`
	EventSubject       string          `mapstructure:"event_subject"`
	DLQSubject         string          `mapstructure:"dlq_subject"`
	ConsumerDurable    string          `mapstructure:"consumer_durable"`
	RelayDurable       string          `mapstructure:"relay_durable"`
	AckWait            time.Duration   `mapstructure:"ack_wait"`
	MaxAckPending      int             `mapstructure:"max_ack_pending"`
	ConsumerMaxDeliver int             `mapstructure:"consumer_max_deliver"`
	ConsumerBackoff    []time.Duration `mapstructure:"consumer_backoff"`
}

type AMQP struct {
	URL      string `mapstructure:"url"`
	Queue    string `mapstructure:"queue"`
	DLX      string `mapstructure:"dlx"`
	Prefetch int    `mapstructure:"prefetch"`
}

type Relay struct {
	// Transport is "nats" or "amqp".
	Transport       string        `mapstructure:"transport"`
	CallbackURL     string        `mapstructure:"callback_url"`
	SigningKey      string        `mapstructure:"signing_key"`
	NextSigningKey  string        `mapstructure:"next_signing_key"`
	Issuer          string        `mapstructure:"issuer"`
	SignatureTTL    time.Duration `mapstructure:"signature_ttl"`
	PendingTTL      time.Duration `mapstructure:"pending_ttl"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	CallbackTimeout time.Duration `mapstructure:"callback_timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Storage struct {
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type AI struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	ImageModel      string        `mapstructure:"image_model"`
	ChatModel       string        `mapstructure:"chat_model"`
	ModerationModel string        `mapstructure:"moderation_model"`
	ImageCount      int           `mapstructure:"image_count"`
	ImageSize       string        `mapstructure:"image_size"`
	MaxPromptLength int           `mapstructure:"max_prompt_length"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
}

type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type Policy struct {
	// Kind is "sliding_window" or "token_bucket".
	Kind     string        `mapstructure:"kind"`
	Limit    int           `mapstructure:"limit"`
	Window   time.Duration `mapstructure:"window"`
	Refill   int           `mapstructure:"refill"`
	Interval time.Duration `mapstructure:"interval"`
	Message  string        `mapstructure:"message"`
}

type RateLimit struct {
	Prefix  string `mapstructure:"prefix"`
	Default Policy `mapstructure:"default"`
	Prompt  Policy `mapstructure:"prompt"`
}

type Tokens struct {
	DefaultCount      int `mapstructure:"default_count"`
	RegenerationCount int `mapstructure:"regeneration_count"`
	RegenerationDays  int `mapstructure:"regeneration_days"`
}

type Outbox struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type Reconcile struct {
	Schedule string        `mapstructure:"schedule"`
	MinAge   time.Duration `mapstructure:"min_age"`
	DryRun   bool          `mapstructure:"dry_run"`
	// IdempotencyTTL is how long a client key keeps replaying its generation.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type Healthcheck struct {
	Token string `mapstructure:"token"`
}

func Load(cfgFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.imagegen")
		v.AddConfigPath("/etc/imagegen")
	}

	v.SetEnvPrefix("IMAGEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASS")
	_ = v.BindEnv("ai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("healthcheck.token", "HEALTHCHECK_TOKEN")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg = applyDSNDefaults(cfg)
	cfg = applyURLDefaults(cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.max_conn_idle_time", "5m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.slow_query", "500ms")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("nats.stream", "IMAGEGEN")
	v.SetDefault("nats.request_subject", "imagegen.requests")
	v.SetDefault("nats.event_subject", "imagegen.events")
	v.SetDefault("nats.dlq_subject", "imagegen.dlq")
	v.SetDefault("nats.consumer_durable", "imagegen-events-worker")
	v.SetDefault("nats.relay_durable", "imagegen-relay-worker")
	v.SetDefault("nats.ack_wait", "90s")
	v.SetDefault("nats.max_ack_pending", 256)
	v.SetDefault("nats.consumer_max_deliver", 5)
	v.SetDefault("amqp.queue", "imagegen_requests")
	v.SetDefault("amqp.dlx", "imagegen_dlx")
	v.SetDefault("amqp.prefetch", 4)
	v.SetDefault("relay.transport", "nats")
	v.SetDefault("relay.issuer", "imagegen-relay")
	v.SetDefault("relay.signature_ttl", "5m")
	v.SetDefault("relay.pending_ttl", "10m")
	v.SetDefault("relay.poll_timeout", "2m")
	v.SetDefault("relay.callback_timeout", "30s")
	v.SetDefault("relay.concurrency", 4)
	v.SetDefault("redis.key_prefix", "imagegen")
	v.SetDefault("storage.bucket", "imagegen-images")
	v.SetDefault("ai.image_model", "dall-e-2")
	v.SetDefault("ai.chat_model", "gpt-4o-mini")
	v.SetDefault("ai.moderation_model", "omni-moderation-latest")
	v.SetDefault("ai.image_count", 1)
	v.SetDefault("ai.image_size", "512x512")
	v.SetDefault("ai.max_prompt_length", 800)
	v.SetDefault("ai.fetch_timeout", "30s")
	v.SetDefault("ratelimit.prefix", "imagegen/ratelimit")
	v.SetDefault("ratelimit.default.kind", "sliding_window")
	v.SetDefault("ratelimit.default.limit", 5)
	v.SetDefault("ratelimit.default.window", "5s")
	v.SetDefault("ratelimit.prompt.kind", "token_bucket")
	v.SetDefault("ratelimit.prompt.limit", 10)
	v.SetDefault("ratelimit.prompt.refill", 10)
	v.SetDefault("ratelimit.prompt.interval", "15m")
	v.SetDefault("ratelimit.prompt.message", "You have done too much prompts improvements")
	v.SetDefault("tokens.default_count", 10)
	v.SetDefault("tokens.regeneration_count", 10)
	v.SetDefault("tokens.regeneration_days", 7)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.lock_timeout", "60s")
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("reconcile.schedule", "")
	v.SetDefault("reconcile.min_age", "1h")
	v.SetDefault("reconcile.idempotency_ttl", "24h")
	v.SetDefault("environment", "dev")
}

func applyDSNDefaults(cfg Config) Config {
	if cfg.Database.WriteDSN == "" && cfg.Database.Host != "" && cfg.Database.Name != "" {
		cfg.Database.WriteDSN = buildDSN(cfg.Database.Host, cfg.Database.Port, cfg.Database.Name, cfg.Database.User, cfg.Database.Password, cfg.Database.SSLMode)
	}
	if cfg.Database.ReadDSN == "" {
		readHost := cfg.Database.ReadHost
		if readHost == "" {
			readHost = cfg.Database.Host
		}
		if readHost != "" && cfg.Database.Name != "" {
			cfg.Database.ReadDSN = buildDSN(readHost, cfg.Database.Port, cfg.Database.Name, cfg.Database.User, cfg.Database.Password, cfg.Database.SSLMode)
		}
	}
	return cfg
}

// applyURLDefaults derives the callback and public file URLs from server.public_url
// when they are not configured explicitly.
func applyURLDefaults(cfg Config) Config {
	base := strings.TrimRight(cfg.Server.PublicURL, "/")
	if base == "" {
		return cfg
	}
	if cfg.Relay.CallbackURL == "" {
		cfg.Relay.CallbackURL = base + "/api/image/callback"
	}
	if cfg.Storage.PublicBaseURL == "" {
		cfg.Storage.PublicBaseURL = base + "/api/image/file"
	}
	return cfg
}

func buildDSN(host string, port int, name, user, password, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	creds := ""
	if user != "" {
		creds = user
		if password != "" {
			creds += ":" + password
		}
		creds += "@"
	}
	return "postgres://" + creds + host + ":" + fmt.Sprintf("%d", port) + "/" + name + "?sslmode=" + sslmode
}
