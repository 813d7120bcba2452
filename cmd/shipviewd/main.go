package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shipview/shipview/pkg/access"
	"github.com/shipview/shipview/pkg/api"
	"github.com/shipview/shipview/pkg/capability"
	"github.com/shipview/shipview/pkg/config"
	"github.com/shipview/shipview/pkg/credential"
	"github.com/shipview/shipview/pkg/directory"
	"github.com/shipview/shipview/pkg/identity"
	"github.com/shipview/shipview/pkg/observability"
	"github.com/shipview/shipview/pkg/policy"
	"github.com/shipview/shipview/pkg/projects"
	"github.com/shipview/shipview/pkg/storage/postgres"
	"github.com/shipview/shipview/pkg/teamtoken"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// Storage
	connections, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Storage.PostgresURL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Storage.PostgresReplicaURLs),
		MaxConns:    cfg.Storage.PostgresMaxConns,
		MinConns:    cfg.Storage.PostgresMinConns,
		Timeout:     cfg.Storage.PostgresTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := teamtoken.RunMigrations(migrateCtx, connections.Primary()); err != nil {
		cancel()
		logger.WithError(err).Error("team token migrations failed")
		os.Exit(1)
	}
	if err := projects.RunMigrations(migrateCtx, connections.Primary()); err != nil {
		cancel()
		logger.WithError(err).Error("project migrations failed")
		os.Exit(1)
	}
	cancel()

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisURL,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, continuing without cache")
			redisClient = nil
		}
	}

	// Team tokens and project metadata, cached when redis is available.
	// Mirror writes go to the primary; policy reads come off a replica.
	tokenStore := teamtoken.NewStore(connections.Primary(), metrics)
	var tokens interface {
		Generate(ctx context.Context, teamID int64) (string, error)
		Validate(ctx context.Context, token string) (int64, error)
		CurrentToken(ctx context.Context, teamID int64) (string, error)
		History(ctx context.Context, teamID int64) ([]teamtoken.TeamToken, error)
	} = tokenStore
	projectReadStore := projects.NewStore(connections.Replica())
	projectWriteStore := projects.NewStore(connections.Primary())
	var projectGetter policy.ProjectGetter = projectReadStore
	var projectReads api.ProjectLister = projectReadStore
	var projectWrites api.ProjectWriter = projectWriteStore
	var cachedTokens *teamtoken.CachedStore
	if redisClient != nil {
		cachedTokens = teamtoken.NewCachedStore(tokenStore, redisClient)
		tokens = cachedTokens
		cachedProjects := projects.NewCachedStore(projectReadStore, redisClient)
		projectGetter = cachedProjects
		projectReads = cachedProjects
		// Both cache layers share the same keys, so a write-side upsert
		// invalidates the read-side cache entry.
		projectWrites = projects.NewCachedStore(projectWriteStore, redisClient)
	}

	// Auth core
	keys, err := credential.NewKeyServiceClient(cfg.Auth.KeyServiceURL, nil, metrics)
	if err != nil {
		logger.WithError(err).Error("failed to create key service client")
		os.Exit(1)
	}
	verifier := credential.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.Algorithm, keys, metrics)
	resolver := identity.NewResolver(cfg.Auth.ConnectionPrefix, cfg.Auth.ProfileURL, nil, tokens, logger)
	dir := directory.NewClient(cfg.Auth.DirectoryURL, cfg.Auth.DirectoryToken, nil, metrics)
	authPolicy := policy.New(dir, projectGetter, cfg.Auth.AdminGroupID)
	capabilities := capability.NewGenerator(cfg.Auth.CapabilitySecret)

	boundary := access.NewBoundary(verifier, resolver, authPolicy, capabilities, cfg.Auth.CookieName, metrics, logger)
	middleware := access.NewMiddleware(boundary, cfg.Auth.LoginURL, logger)

	// HTTP surface
	router := mux.NewRouter()
	api.NewTeamTokenHandlers(tokens, middleware, logger).RegisterRoutes(router)
	api.NewPreviewHandlers(capabilities, middleware, logger).RegisterRoutes(router)
	api.NewProjectHandlers(projectWrites, projectReads, middleware, logger).RegisterRoutes(router)

	var handler http.Handler = router
	if metrics != nil {
		handler = metrics.HTTPMiddleware(handler)
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				metrics.ObserveDBStats(connections.Primary().Stats())
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes. Postgres readiness
	// goes through the connection manager so replica health is covered too.
	health := observability.NewHealthChecker(nil, nil)
	health.RegisterCheck("postgres", connections.HealthCheck)
	if cachedTokens != nil {
		health.RegisterCheck("token-cache", cachedTokens.Healthy)
	}
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.Infof("ShipView listening on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return connections.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}
