package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/config"
	"gitlab.com/cubelite/api/integration-engine/internal/adapters/logger"
	"gitlab.com/cubelite/api/integration-engine/internal/adapters/middleware"
	appnats "gitlab.com/cubelite/api/integration-engine/internal/adapters/nats"
	appredis "gitlab.com/cubelite/api/integration-engine/internal/adapters/redis"
	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// AdminAPIKeyMiddleware is a distinct type so Wire can inject the auth
// middleware alongside other func(http.Handler) http.Handler values.
type AdminAPIKeyMiddleware func(http.Handler) http.Handler

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			// Last resort; NewExample never fails.
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App wires the engine's services and transports together. Wire builds it;
// Run (in app.go) drives it.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server

	redisClient  *redis.Client
	natsConsumer *appnats.ConsumerAdapter

	eventService     *application.EventService
	ruleEngine       *application.RuleEngine
	mappingService   *application.MappingService
	contactService   *application.ContactService
	syncService      *application.SyncService
	syncTracker      *application.SyncTracker
	dashboardService *application.DashboardService
	broadcaster      *application.EventBroadcaster
	dispatchRegistry *application.DispatchRegistry
	eventProcessor   *appnats.EventProcessor

	apiKeyMiddleware AdminAPIKeyMiddleware
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	redisClient *redis.Client,
	natsConsumer *appnats.ConsumerAdapter,
	eventService *application.EventService,
	ruleEngine *application.RuleEngine,
	mappingService *application.MappingService,
	contactService *application.ContactService,
	syncService *application.SyncService,
	syncTracker *application.SyncTracker,
	dashboardService *application.DashboardService,
	broadcaster *application.EventBroadcaster,
	dispatchRegistry *application.DispatchRegistry,
	eventProcessor *appnats.EventProcessor,
	apiKeyMiddleware AdminAPIKeyMiddleware,
) (*App, func(), error) {
	app := &App{
		configProvider:   cfgProvider,
		logger:           appLogger,
		httpServeMux:     mux,
		httpServer:       server,
		redisClient:      redisClient,
		natsConsumer:     natsConsumer,
		eventService:     eventService,
		ruleEngine:       ruleEngine,
		mappingService:   mappingService,
		contactService:   contactService,
		syncService:      syncService,
		syncTracker:      syncTracker,
		dashboardService: dashboardService,
		broadcaster:      broadcaster,
		dispatchRegistry: dispatchRegistry,
		eventProcessor:   eventProcessor,
		apiKeyMiddleware: apiKeyMiddleware,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.eventProcessor != nil {
			app.eventProcessor.Stop()
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	// Write timeout must cover a full synchronous sync trigger; /ws/events
	// hijacks the connection and is unaffected by these.
	readTimeout := 10 * time.Second
	writeTimeout := 60 * time.Second
	idleTimeout := 60 * time.Second

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// RedisClientProvider provides a Redis client and a cleanup function.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// EventStoreProvider provides the Redis-backed event log.
func EventStoreProvider(redisClient *redis.Client, appLogger domain.Logger, cfgProvider config.Provider) domain.EventStore {
	return appredis.NewEventLogAdapter(redisClient, appLogger, cfgProvider.Get().App.EventLogLimit)
}

// RuleStoreProvider provides the Redis-backed rule store.
func RuleStoreProvider(redisClient *redis.Client, appLogger domain.Logger) domain.RuleStore {
	return appredis.NewRuleStoreAdapter(redisClient, appLogger)
}

// MappingStoreProvider provides the Redis-backed mapping store.
func MappingStoreProvider(redisClient *redis.Client, appLogger domain.Logger) domain.MappingStore {
	return appredis.NewMappingStoreAdapter(redisClient, appLogger)
}

// ContactStoreProvider provides the Redis-backed contact store.
func ContactStoreProvider(redisClient *redis.Client, appLogger domain.Logger) domain.ContactStore {
	return appredis.NewContactStoreAdapter(redisClient, appLogger)
}

// ContactLockManagerProvider provides the per-contact lock manager.
func ContactLockManagerProvider(redisClient *redis.Client, appLogger domain.Logger) domain.ContactLockManager {
	return appredis.NewContactLockManagerAdapter(redisClient, appLogger)
}

// SyncStateStoreProvider provides the Redis-backed sync state store.
func SyncStateStoreProvider(redisClient *redis.Client, appLogger domain.Logger) domain.SyncStateStore {
	return appredis.NewSyncStateStoreAdapter(redisClient, appLogger)
}

// NatsConsumerAdapterProvider provides the NATS ConsumerAdapter.
func NatsConsumerAdapterProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*appnats.ConsumerAdapter, func(), error) {
	return appnats.NewConsumerAdapter(ctx, cfgProvider, appLogger)
}

// EventPublisherProvider provides the JetStream event publisher.
func EventPublisherProvider(consumer *appnats.ConsumerAdapter, appLogger domain.Logger) domain.EventPublisher {
	return appnats.NewPublisherAdapter(consumer, appLogger)
}

// EventServiceProvider provides the event emission service.
func EventServiceProvider(appLogger domain.Logger, store domain.EventStore, publisher domain.EventPublisher) *application.EventService {
	return application.NewEventService(appLogger, store, publisher)
}

// MappingServiceProvider provides the mapping service.
func MappingServiceProvider(appLogger domain.Logger, store domain.MappingStore) *application.MappingService {
	return application.NewMappingService(appLogger, store)
}

// ContactServiceProvider provides the unified contact service.
func ContactServiceProvider(appLogger domain.Logger, store domain.ContactStore, locks domain.ContactLockManager, cfgProvider config.Provider) *application.ContactService {
	lockTTL := time.Duration(cfgProvider.Get().App.ContactLockTTLSeconds) * time.Second
	return application.NewContactService(appLogger, store, locks, lockTTL)
}

// DispatchRegistryProvider provides the module handler registry with its
// bounded dispatch timeout, pre-registered with the built-in handlers.
func DispatchRegistryProvider(appLogger domain.Logger, cfgProvider config.Provider) *application.DispatchRegistry {
	timeout := time.Duration(cfgProvider.Get().App.DispatchTimeoutSeconds) * time.Second
	registry := application.NewDispatchRegistry(appLogger, timeout)
	registerBuiltinHandlers(registry, appLogger)
	return registry
}

// SyncTrackerProvider provides the sync status tracker.
func SyncTrackerProvider(appLogger domain.Logger, store domain.SyncStateStore) *application.SyncTracker {
	return application.NewSyncTracker(appLogger, store)
}

// EventBroadcasterProvider provides the live feed broadcaster.
func EventBroadcasterProvider(appLogger domain.Logger) *application.EventBroadcaster {
	return application.NewEventBroadcaster(appLogger)
}

// RuleEngineProvider provides the rule engine.
func RuleEngineProvider(
	appLogger domain.Logger,
	rules domain.RuleStore,
	events domain.EventStore,
	mappings domain.MappingStore,
	mapper *application.MappingService,
	contacts *application.ContactService,
	dispatcher *application.DispatchRegistry,
	tracker *application.SyncTracker,
	broadcaster *application.EventBroadcaster,
) *application.RuleEngine {
	return application.NewRuleEngine(appLogger, rules, events, mappings, mapper, contacts, dispatcher, tracker, broadcaster)
}

// SyncServiceProvider provides the sync orchestration service.
func SyncServiceProvider(
	appLogger domain.Logger,
	tracker *application.SyncTracker,
	events domain.EventStore,
	engine *application.RuleEngine,
	emitter *application.EventService,
) *application.SyncService {
	return application.NewSyncService(appLogger, tracker, events, engine, emitter)
}

// DashboardServiceProvider provides the dashboard aggregation service.
func DashboardServiceProvider(
	appLogger domain.Logger,
	events domain.EventStore,
	rules domain.RuleStore,
	mappings domain.MappingStore,
	contacts domain.ContactStore,
	syncs domain.SyncStateStore,
	broadcaster *application.EventBroadcaster,
) *application.DashboardService {
	return application.NewDashboardService(appLogger, events, rules, mappings, contacts, syncs, broadcaster)
}

// EventProcessorProvider provides the JetStream-to-rule-engine bridge.
func EventProcessorProvider(consumer *appnats.ConsumerAdapter, engine *application.RuleEngine, appLogger domain.Logger) *appnats.EventProcessor {
	return appnats.NewEventProcessor(consumer, engine, appLogger)
}

// AdminAPIKeyMiddlewareProvider provides the auth middleware guarding
// mutating endpoints.
func AdminAPIKeyMiddlewareProvider(cfgProvider config.Provider, appLogger domain.Logger) AdminAPIKeyMiddleware {
	return middleware.APIKeyAuthMiddleware(cfgProvider, appLogger)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure adapters
	RedisClientProvider,
	EventStoreProvider,
	RuleStoreProvider,
	MappingStoreProvider,
	ContactStoreProvider,
	ContactLockManagerProvider,
	SyncStateStoreProvider,
	NatsConsumerAdapterProvider,
	EventPublisherProvider,

	// Application services
	EventServiceProvider,
	MappingServiceProvider,
	ContactServiceProvider,
	DispatchRegistryProvider,
	SyncTrackerProvider,
	EventBroadcasterProvider,
	RuleEngineProvider,
	SyncServiceProvider,
	DashboardServiceProvider,
	EventProcessorProvider,

	// HTTP middleware
	AdminAPIKeyMiddlewareProvider,

	NewApp,
)
