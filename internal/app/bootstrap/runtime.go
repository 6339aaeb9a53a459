package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	appconfig "github.com/wolfman30/consult-funnel/internal/config"
	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/internal/session"
	"github.com/wolfman30/consult-funnel/pkg/logging"
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
		return nil
	}
	return client
}

// BuildPostgresPool connects to Postgres, returning nil for an empty URL.
func BuildPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// BuildSessionStore picks the session backend named by SESSION_STORE.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, awsCfg *aws.Config, logger *logging.Logger) (session.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionStore {
	case "", "memory":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: session store redis requires REDIS_ADDR")
		}
		logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
		return session.NewRedisStore(redisClient, cfg.SessionTTL, nil), nil
	case "dynamo", "dynamodb":
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: session store dynamo requires aws config")
		}
		logger.Info("using dynamodb session store", "table", cfg.DynamoTable)
		return session.NewDynamoStore(dynamodb.NewFromConfig(*awsCfg), cfg.DynamoTable, cfg.SessionTTL, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session store %q", cfg.SessionStore)
	}
}

// BuildLeadRepository picks the lead backend named by LEAD_STORE.
func BuildLeadRepository(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (leads.Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.LeadStore {
	case "", "memory":
		logger.Warn("using in-memory lead repository; leads are lost on restart")
		return leads.NewInMemoryRepository(), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: lead store postgres requires DATABASE_URL")
		}
		return leads.NewPostgresRepository(pool), nil
	case "sheets":
		var opts []option.ClientOption
		if path := strings.TrimSpace(cfg.SheetsCredentials); path != "" {
			opts = append(opts, option.WithCredentialsFile(path))
		}
		repo, err := leads.NewSheetsRepository(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("using google sheets lead repository", "sheet", cfg.SheetsSheetName)
		return repo, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown lead store %q", cfg.LeadStore)
	}
}
