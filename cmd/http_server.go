package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/auth"
	authPostgres "github.com/frahmantamala/authcore/internal/auth/postgres"
	authRedis "github.com/frahmantamala/authcore/internal/auth/redis"
	"github.com/frahmantamala/authcore/internal/core/events"
	"github.com/frahmantamala/authcore/internal/transport/middleware"
	"github.com/frahmantamala/authcore/internal/transport/rest"
	"github.com/frahmantamala/authcore/internal/user"
	userPostgres "github.com/frahmantamala/authcore/internal/user/postgres"
	"github.com/frahmantamala/authcore/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Redis    *goredis.Client
	Router   *chi.Mux
	Registry *prometheus.Registry
	EventBus *events.EventBus
	Limiter  *middleware.RateLimiter
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           http.TimeoutHandler(deps.Router, deps.Config.Server.RequestTimeout, `{"error":{"type":"INTERNAL_ERROR","code":"TIMEOUT","message":"Request timed out"}}`),
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go sweepRateLimiter(bgCtx, deps.Limiter)

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func sweepRateLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	metrics := auth.NewMetrics(deps.Registry)
	hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost, cfg.Security.MaxConcurrentHashes, metrics)
	tokens, err := auth.NewJWTTokenService(auth.TokenConfig{
		Secret:     cfg.Security.JWTSecret,
		AccessTTL:  cfg.Security.AccessTokenTTL(),
		RefreshTTL: cfg.Security.RefreshTokenDuration,
		ResetTTL:   cfg.Security.PasswordResetTokenDuration,
		Leeway:     cfg.Security.TokenLeeway,
	}, lg, metrics)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	resolver := auth.NewPermissionResolver(cfg.Security.AdminRoles)

	var denylist auth.Denylist = auth.NopDenylist{}
	if deps.Redis != nil {
		denylist = authRedis.NewDenylist(deps.Redis)
	}

	registerEventHandlers(deps.EventBus, lg)

	authService := auth.NewService(
		authPostgres.NewRepository(deps.Gorm),
		hasher,
		tokens,
		resolver,
		auth.WithDenylist(denylist),
		auth.WithEventPublisher(deps.EventBus),
		auth.WithLogger(lg),
		auth.WithMetrics(metrics),
		auth.WithSingleUseResetTokens(cfg.Security.SingleUseResetTokens),
	)
	userService := user.NewService(userPostgres.NewRepository(deps.Gorm), hasher, resolver, lg)

	components := map[string]rest.Pinger{"postgres": deps.DB.DB}
	if deps.Redis != nil {
		client := deps.Redis
		components["redis"] = rest.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	var metricsHandler http.Handler
	if cfg.Observability.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry})
	}

	rest.RegisterAllRoutes(deps.Router, rest.RouterDeps{
		Health:            rest.NewHealthHandler(components),
		AuthHandler:       auth.NewHandler(authService),
		UserHandler:       user.NewHandler(userService),
		LoginLimiter:      deps.Limiter,
		Metrics:           metricsHandler,
		MetricsPath:       cfg.Observability.Metrics.Path,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		OpenAPIPath:       "./api/openapi.yml",
		Logger:            lg,
	})
	return nil
}

// registerEventHandlers wires in-process consumers of auth events. Delivering
// reset emails belongs to an external collaborator; here the request is only
// recorded.
func registerEventHandlers(bus *events.EventBus, lg *slog.Logger) {
	bus.Subscribe(events.EventTypePasswordResetRequested, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.PasswordResetRequestedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}
		lg.Info("password reset ready for delivery", "user_id", e.UserID, "email", e.Email)
		return nil
	})
	bus.Subscribe(events.EventTypeLoginFailed, func(ctx context.Context, event events.Event) error {
		lg.Debug("login failure recorded", "event_id", event.EventID())
		return nil
	})
	bus.Subscribe(events.EventTypePasswordChanged, func(ctx context.Context, event events.Event) error {
		lg.Info("password changed", "event_id", event.EventID(), "payload", event.Payload())
		return nil
	})
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.InitWithLevel(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var redisClient *goredis.Client
	if config.Redis.Enabled() {
		redisClient, err = authRedis.NewClient(context.Background(), config.Redis.URL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		lg.Info("token denylist enabled", "backend", "redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gormDB,
		Redis:    redisClient,
		Router:   chi.NewRouter(),
		Registry: registry,
		EventBus: events.NewEventBus(lg),
		Limiter:  middleware.NewRateLimiter(config.Security.LoginRatePerSecond, config.Security.LoginBurst, lg),
		Logger:   lg,
	}, nil
}

func (d *Dependencies) Close() {
	if d.EventBus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.EventBus.Drain(ctx); err != nil {
			d.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
		cancel()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
		d.Redis = nil
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("Database close error", "error", err)
		}
		d.DB = nil
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see the same connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	return gormDB, nil
}
