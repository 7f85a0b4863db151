package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/erazemk/sledljivost/internal/api"
	"github.com/erazemk/sledljivost/internal/config"
	"github.com/erazemk/sledljivost/internal/db"
	"github.com/erazemk/sledljivost/internal/events"
	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/logging"
	"github.com/erazemk/sledljivost/internal/model"
	"github.com/erazemk/sledljivost/internal/store"
)

// redisQueueSize is the number of events buffered for the Redis publisher.
const redisQueueSize = 256

func main() {
	fs := flag.NewFlagSet("sledljivost", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "config", "", "")
	fs.StringVar(&configPath, "c", "", "")

	var dbPath string
	fs.StringVar(&dbPath, "db", "", "")
	fs.StringVar(&dbPath, "d", "", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var adminUser string
	fs.StringVar(&adminUser, "user", "", "")
	fs.StringVar(&adminUser, "u", "", "")

	var owner string
	fs.StringVar(&owner, "owner", "", "")
	fs.StringVar(&owner, "o", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: sledljivost [flags]

Flags:
  -c, -config <path>      TOML config file (default: none)
  -d, -db <path>          SQLite database path (default: sledljivost.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -o, -owner <account>    ledger owner account on first run (default: random)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Settings can also be given as SLEDLJIVOST_* environment variables or in a .env file.
Flags take precedence over the environment, which takes precedence over the config file.
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Only flags given on the command line override the config.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db", "d":
			cfg.DBPath = dbPath
		case "addr", "a":
			cfg.Addr = addr
		case "user", "u":
			cfg.AdminUser = adminUser
		case "owner", "o":
			cfg.Owner = owner
		case "log", "l":
			cfg.LogPath = logPath
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}
	zerolog.DefaultContextLogger = &log.Logger

	// Open database.
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		os.Exit(1)
	}
	defer database.Close()

	// Apply pending migrations (idempotent).
	if err := db.Migrate(database); err != nil {
		log.Error().Err(err).Msg("failed to migrate database")
		os.Exit(1)
	}

	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// A database without users is being set up for the first time.
	userCount, err := store.CountUsers(ctx, database)
	if err != nil {
		log.Error().Err(err).Msg("failed to count users")
		os.Exit(1)
	}
	firstRun := userCount == 0

	ledgerOwner := model.NormalizeAccount(cfg.Owner)
	if firstRun && ledgerOwner.IsZero() {
		ledgerOwner, err = generateAccount()
		if err != nil {
			log.Error().Err(err).Msg("failed to generate owner account")
			os.Exit(1)
		}
	}

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		log.Error().Err(err).Msg("failed to get JWT secret")
		os.Exit(1)
	}

	hub := events.NewHub()
	notifiers := events.Fanout{events.NewHubNotifier(hub)}

	publisherDone := make(chan struct{})
	close(publisherDone)
	if cfg.Redis.Addr != "" {
		client, err := events.NewRedisClient(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to redis")
			os.Exit(1)
		}
		defer client.Close()

		publisher := events.NewRedisPublisher(client, cfg.Redis.Channel, redisQueueSize)
		notifiers = append(notifiers, publisher)

		publisherDone = make(chan struct{})
		go func() {
			defer close(publisherDone)
			publisher.Run(ctx)
		}()
		log.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("publishing events to redis")
	}

	engine, err := ledger.Open(ctx, store.NewLedgerStore(database), ledgerOwner,
		ledger.WithLogger(log.Logger.With().Str("component", "ledger").Logger()),
		ledger.WithNotifier(notifiers),
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to open ledger")
		os.Exit(1)
	}

	if firstRun {
		password, err := createAdmin(ctx, database, cfg.AdminUser, engine.Owner())
		if err != nil {
			log.Error().Err(err).Msg("failed to create admin user")
			os.Exit(1)
		}
		printInitResult(cfg.DBPath, cfg.AdminUser, password, engine.Owner())
		fmt.Println()
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = api.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	router := api.NewRouter(api.Config{
		DB:        database,
		Engine:    engine,
		Hub:       hub,
		JWTSecret: jwtSecret,
		Limiter:   limiter,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.RequestLogger(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Str("owner", engine.Owner().String()).Msg("server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	// Stop the publisher and let it flush queued events.
	stop()
	<-publisherDone

	log.Info().Msg("server stopped, closing database")
}

// createAdmin creates the admin user acting as the ledger owner and returns
// its generated password.
func createAdmin(ctx context.Context, database *sqlx.DB, username string, owner model.Account) (string, error) {
	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, username, string(hash), model.RoleAdmin, owner); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string, owner model.Account) {
	fmt.Printf("Database initialized: %s\n", dbPath)
	fmt.Printf("Ledger owner: %s\n", owner)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Printf("  Account:  %s\n", owner)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// generateAccount creates a random 20 byte account address.
func generateAccount() (model.Account, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return model.Account("0x" + hex.EncodeToString(b)), nil
}
