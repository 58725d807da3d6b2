package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	redis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/crumbhq/sera/internal/config"
	"github.com/crumbhq/sera/internal/coordinator"
	"github.com/crumbhq/sera/internal/http_api"
	"github.com/crumbhq/sera/internal/metrics"
	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/internal/repository"
	"github.com/crumbhq/sera/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "sera",
		Usage: "Sera coordinates exclusive edit locks on bakery orders",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "lock-backend", Aliases: []string{"b"}, Usage: "Lock storage backend (postgres, redis or memory)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"l"}, Usage: "API port"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "redis-addr", Aliases: []string{"r"}, Usage: "Redis address"},
			&cli.DurationFlag{Name: "lock-ttl", Usage: "Default lock lifetime"},
			&cli.DurationFlag{Name: "sweep-interval", Usage: "How often expired lock rows are swept"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("lock-backend") {
		cfg.LockBackend = c.String("lock-backend")
	}
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("redis-addr") {
		cfg.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("lock-ttl") {
		cfg.LockTTL = c.Duration("lock-ttl")
	}
	if c.IsSet("sweep-interval") {
		cfg.SweepInterval = c.Duration("sweep-interval")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize lock storage and the order directory
	store, directory, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	// The directory may hold its own database connection, separate from the
	// lock store's.
	if closer, ok := directory.(io.Closer); ok {
		defer closer.Close()
	}

	// Register metrics
	registry := metrics.NewRegistry()
	metrics.RegisterCoordinatorMetrics(registry)

	// Create coordinator, sweeper and API server instances
	lockCoordinator := coordinator.NewLockCoordinator(store, directory, log, cfg)
	sweeper := coordinator.NewSweeper(lockCoordinator, cfg.SweepInterval, log.Named("sweeper"))
	apiServer := http_api.NewHTTPServer(lockCoordinator, cfg, log, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start()
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return apiServer.Shutdown()
	})

	return g.Wait()
}

// buildStore wires the configured lock backend together with the order
// directory used to screen acquire requests.
func buildStore(cfg *config.Config, log *logger.Logger) (models.LockStore, models.OrderDirectory, error) {
	var directory models.OrderDirectory = repository.AllowAllDirectory{}

	switch cfg.LockBackend {
	case config.BackendPostgres:
		store, err := repository.NewPostgresLockStore(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %v", err)
		}
		if cfg.OrderLookupEnabled {
			directory = repository.NewGormOrderDirectory(store.Conn, cfg.CustomerOrdersTable, cfg.InternalOrdersTable, log)
		}
		return store, directory, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := repository.NewRedisLockStore(client, cfg.SweepGrace, log)
		if cfg.OrderLookupEnabled {
			dir, err := repository.NewPostgresOrderDirectory(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, cfg.CustomerOrdersTable, cfg.InternalOrdersTable, log)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect to orders database: %v", err)
			}
			directory = dir
		}
		return store, directory, nil

	case config.BackendMemory:
		log.Warn("Using the in-memory lock backend; locks will not survive a restart and cannot be shared between instances")
		return repository.NewMemoryLockStore(), directory, nil

	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}
