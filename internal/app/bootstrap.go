package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tokend/internal/config"
	"tokend/internal/credential"
	"tokend/internal/flow"
	"tokend/internal/provider"
	"tokend/internal/ratelimit"
	"tokend/internal/server"
	"tokend/internal/token"
	"tokend/pkg/logging"
)

// Application encapsulates a fully wired tokend instance.
//
// Bootstrap happens in two phases: NewApplication loads configuration and
// connects the backing services, Run serves HTTP until the context is
// canceled and then releases the connections.
type Application struct {
	config config.Config
	server *server.Server
	states *flow.StateStore

	pool        *pgxpool.Pool
	redisClient *redis.Client
}

// NewApplication creates and initializes a new application instance.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.Init(appLogLevel, logOutput)

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	serviceCfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	if err := config.Validate(serviceCfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: serviceCfg}
	if err := app.wire(); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

// wire connects storage, rate limiting, providers, and the HTTP server.
func (a *Application) wire() error {
	ctx := context.Background()

	store, err := a.buildStore(ctx)
	if err != nil {
		return err
	}

	limiter := a.buildLimiter()

	registry, err := buildRegistry(a.config.Providers)
	if err != nil {
		return err
	}

	a.states = flow.NewStateStore()
	flows := flow.NewController(store, registry, a.states, a.config.Server.PublicURL)
	tokens := token.NewManager(store, registry)

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = server.New(addr, flows, tokens, limiter, a.config.Server.TrustForwardedFor)
	return nil
}

func (a *Application) buildStore(ctx context.Context) (credential.Store, error) {
	switch a.config.Storage.Driver {
	case config.StorageDriverPostgres:
		pool, err := pgxpool.New(ctx, a.config.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
		}
		a.pool = pool

		store := credential.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure credential schema: %w", err)
		}
		logging.Info("Bootstrap", "Using Postgres credential store")
		return store, nil

	default:
		logging.Info("Bootstrap", "Using in-memory credential store")
		return credential.NewMemoryStore(), nil
	}
}

// buildLimiter returns nil when no Redis address is configured; a nil
// limiter allows every request.
func (a *Application) buildLimiter() *ratelimit.Limiter {
	if a.config.Redis.Addr == "" {
		logging.Warn("Bootstrap", "No Redis configured, rate limiting disabled")
		return nil
	}

	a.redisClient = redis.NewClient(&redis.Options{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})
	logging.Info("Bootstrap", "Rate limiting %d requests per %v via Redis at %s",
		a.config.RateLimit.MaxRequests, a.config.RateLimit.Window, a.config.Redis.Addr)

	counter := ratelimit.NewRedisCounter(a.redisClient)
	return ratelimit.NewLimiter(counter, a.config.RateLimit.MaxRequests, a.config.RateLimit.Window)
}

// buildRegistry constructs one adapter per configured provider.
func buildRegistry(providers map[string]config.ProviderConfig) (*provider.Registry, error) {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make([]provider.Adapter, 0, len(names))
	for _, name := range names {
		p, err := credential.ParseProvider(name)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		pc := providers[name]
		adapters = append(adapters, provider.New(provider.Config{
			Provider:     p,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			AuthURL:      pc.AuthURL,
			TokenURL:     pc.TokenURL,
			Scopes:       pc.Scopes,
		}))
		logging.Info("Bootstrap", "Configured provider %s", p)
	}
	return provider.NewRegistry(adapters...), nil
}

// Run serves HTTP until the context is canceled, then cleans up.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()
	return a.server.Start(ctx)
}

func (a *Application) close() {
	if a.states != nil {
		a.states.Stop()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logging.Error("Bootstrap", err, "Failed to close Redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
