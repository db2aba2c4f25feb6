/**
 * @description
 * This is the main entry point for the treasury-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the message broker producer, the Redis rate limiter,
 * the approval workflow service, the auto-send scheduler, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq, pkg/token: Message broker client and action token signer.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/treasury-service/internal/api"
	"github.com/transfa/treasury-service/internal/app"
	"github.com/transfa/treasury-service/internal/config"
	"github.com/transfa/treasury-service/internal/store"
	rmrabbit "github.com/transfa/treasury-service/pkg/rabbitmq"
	"github.com/transfa/treasury-service/pkg/token"
)

func main() {
	// Load .env for local development; in deployed environments the variables
	// come from the platform.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; relying on environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting treasury-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish notification events. The
	// service can run without it; notifications degrade to log lines.
	var notifier app.Notifier
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; notifications disabled\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		notifier = app.NewEventNotifier(rabbitProducer, cfg.TreasuryEventsExchange)
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis client for action link rate limiting.
	var redisClient *redis.Client
	if cfg.ActionRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; action link rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; action link rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; action link rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// The action token signer refuses to run without a secret: unsigned
	// approval links would let anyone decide requests.
	signer, err := token.NewSigner(cfg.ActionTokenSecret)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"action token signer init failed\" env=ACTION_TOKEN_SECRET err=%v", err)
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	treasuryService := app.NewService(
		repository,
		notifier,
		signer,
		time.Duration(cfg.ActionTokenMaxAgeHours)*time.Hour,
		cfg.ActionLinkBaseURL,
		cfg.DefaultCurrency,
	)

	// Initialize the API handlers.
	treasuryHandlers := api.NewTreasuryHandlers(treasuryService)
	if redisClient != nil {
		treasuryHandlers.SetActionRateLimiter(
			app.NewRedisActionRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.ActionRateLimitPerMinute,
		)
	}

	// Start the in-process auto-send scheduler.
	jobLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(treasuryService, jobLogger, cfg.AutoSendBatchSize)
	scheduler := app.NewScheduler(jobs, jobLogger, cfg.AutoSendSchedule)
	scheduler.Start()
	defer scheduler.Stop()

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.TreasuryRoutes(treasuryHandlers, cfg.JWKSURL, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
