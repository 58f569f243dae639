package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/club-portal-assistant/cmd/mainconfig"
	"github.com/wolfman30/club-portal-assistant/internal/assistant"
	appconfig "github.com/wolfman30/club-portal-assistant/internal/config"
	"github.com/wolfman30/club-portal-assistant/internal/observability/metrics"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool opens and pings a pgx pool for DATABASE_URL.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	url := strings.TrimSpace(cfg.DatabaseURL)
	if url == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildSessionStore selects the persistence backend named by SESSION_STORE.
// The returned close func releases the backend's connections.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (assistant.Store, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	switch cfg.SessionStore {
	case "", appconfig.StoreMemory:
		logger.Info("session store: memory")
		return assistant.NewMemoryStore(), noop, nil
	case appconfig.StoreRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, noop, fmt.Errorf("bootstrap: redis unavailable at %s", cfg.RedisAddr)
		}
		logger.Info("session store: redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
		return assistant.NewRedisStore(client, cfg.SessionTTL), func() { _ = client.Close() }, nil
	case appconfig.StorePostgres:
		pool, err := BuildPostgresPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("session store: postgres")
		return assistant.NewPGStore(pool), pool.Close, nil
	case appconfig.StoreDynamoDB:
		client, err := mainconfig.NewDynamoClient(ctx, cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("session store: dynamodb", "table", cfg.SessionsTable)
		return assistant.NewDynamoStore(client, cfg.SessionsTable, cfg.SessionTTL), noop, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown session store %q", cfg.SessionStore)
	}
}

// BuildReplyProvider selects the rule-based or remote reply provider.
func BuildReplyProvider(cfg *appconfig.Config, src assistant.RandSource) (assistant.ReplyProvider, error) {
	switch cfg.ReplyProvider {
	case "", appconfig.ProviderRules:
		return assistant.NewRuleProvider(nil, src), nil
	case appconfig.ProviderRemote:
		return assistant.NewRemoteProvider(assistant.RemoteConfig{
			URL:     cfg.RemoteChatURL,
			Timeout: cfg.RemoteChatTimeout,
		})
	default:
		return nil, fmt.Errorf("bootstrap: unknown reply provider %q", cfg.ReplyProvider)
	}
}

// DelayPolicy maps the typing settings onto the scheduler policy.
func DelayPolicy(cfg *appconfig.Config) assistant.DelayPolicy {
	return assistant.DelayPolicy{
		Min:     cfg.TypingMinDelay,
		Max:     cfg.TypingMaxDelay,
		PerChar: cfg.TypingPerChar,
	}
}

// BuildRegistry wires provider, store and metrics into a session registry.
func BuildRegistry(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.AssistantMetrics) (*assistant.Registry, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	provider, err := BuildReplyProvider(cfg, nil)
	if err != nil {
		return nil, func() {}, err
	}
	store, closeStore, err := BuildSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, func() {}, err
	}
	registry := assistant.NewRegistry(assistant.RegistryOptions{
		Provider:  provider,
		Store:     store,
		Delay:     DelayPolicy(cfg),
		SentDelay: cfg.SentDelay,
		Logger:    logger,
		Metrics:   m,
	})
	logger.Info("assistant ready", "provider", provider.Name())
	return registry, func() {
		registry.Close()
		closeStore()
	}, nil
}
