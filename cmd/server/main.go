package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-dmrelay/internal/api"
	"github.com/npezzotti/go-dmrelay/internal/auth"
	"github.com/npezzotti/go-dmrelay/internal/config"
	"github.com/npezzotti/go-dmrelay/internal/database"
	"github.com/npezzotti/go-dmrelay/internal/relay"
	"github.com/npezzotti/go-dmrelay/internal/server"
	"github.com/npezzotti/go-dmrelay/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (database.RelayRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		logger.Printf("using mongo store %q", cfg.MongoDatabase)
		return database.NewMongoRelayRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StoreMemory:
		logger.Println("using in-memory store, data is lost on exit")
		return database.NewMemoryRelayRepository(), nil
	default:
		logger.Println("running postgres migrations")
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			return nil, err
		}
		return database.NewPgRelayRepository(cfg.DatabaseDSN)
	}
}

func main() {
	logger := log.New(os.Stderr, "[go-dmrelay] ", log.LstdFlags)

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatal("load .env: ", err)
	}

	var (
		opts           config.Options
		allowedOrigins stringSliceFlag
	)
	flag.StringVar(&opts.ServerAddr, "addr", config.EnvString("RELAY_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&opts.StoreBackend, "store", config.EnvString("RELAY_STORE", config.StorePostgres), "record store: postgres, mongo or memory")
	flag.StringVar(&opts.DatabaseDSN, "dsn", config.EnvString("RELAY_DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "postgres connection string")
	flag.StringVar(&opts.MongoURI, "mongo-uri", config.EnvString("RELAY_MONGO_URI", "mongodb://localhost:27017"), "mongo connection URI")
	flag.StringVar(&opts.MongoDatabase, "mongo-db", config.EnvString("RELAY_MONGO_DATABASE", config.DefaultMongoDatabase), "mongo database name")
	flag.StringVar(&opts.SigningKey, "signing-key", config.EnvString("RELAY_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.DurationVar(&opts.TokenTTL, "token-ttl", config.EnvDuration("RELAY_TOKEN_TTL", config.DefaultTokenTTL), "lifetime of issued tokens")
	flag.IntVar(&opts.MaxMessageLength, "max-message-length", config.EnvInt("RELAY_MAX_MESSAGE_LENGTH", config.DefaultMaxMessageLength), "maximum message length in characters")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	opts.AllowedOrigins = allowedOrigins
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = config.EnvList("RELAY_ALLOWED_ORIGINS")
	}

	cfg, err := config.NewConfig(opts)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	store, err := openStore(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	tokens := auth.NewTokenService(cfg.SigningKey, cfg.TokenTTL)
	presence := relay.NewPresenceTracker(store)
	core := api.Core{
		Tokens:   tokens,
		Accounts: relay.NewAccounts(store, tokens),
		Relay:    relay.NewMessageRelay(store, relay.NewConversationIdentity(store), store, cfg.MaxMessageLength),
		Presence: presence,
	}

	// No session can exist yet, so any CONNECTED flag is left over from a
	// previous run.
	n, err := presence.Reset(startCtx)
	if err != nil {
		logger.Fatal("reset presence: ", err)
	}
	if n > 0 {
		logger.Printf("reset %d stale connected identities", n)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, core.Relay, presence, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewRelayApp(mux, logger, chatServer, store, core, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
