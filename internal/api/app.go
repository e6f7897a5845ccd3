package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-dmrelay/internal/auth"
	"github.com/npezzotti/go-dmrelay/internal/config"
	"github.com/npezzotti/go-dmrelay/internal/database"
	"github.com/npezzotti/go-dmrelay/internal/relay"
	"github.com/npezzotti/go-dmrelay/internal/server"
)

// Core bundles the relay components the HTTP boundary calls into.
type Core struct {
	Tokens   *auth.TokenService
	Accounts *relay.Accounts
	Relay    *relay.MessageRelay
	Presence *relay.PresenceTracker
}

type RelayApp struct {
	log            *log.Logger
	db             database.RelayRepository
	srv            *http.Server
	cs             *server.ChatServer
	core           Core
	allowedOrigins []string
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.RelayRepository, core Core, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:            logger,
		db:             db,
		cs:             cs,
		core:           core,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/users", s.authMiddleware(s.listConnected))
	mux.HandleFunc("GET /api/messages/{senderId}/{recipientId}", s.authMiddleware(s.getMessages))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
