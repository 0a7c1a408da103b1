package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/chatgateway/internal/audit"
	"github.com/org/chatgateway/internal/auth"
	"github.com/org/chatgateway/internal/billing"
	"github.com/org/chatgateway/internal/chat"
	"github.com/org/chatgateway/internal/entitlement"
	"github.com/org/chatgateway/internal/ratelimit"
	"github.com/org/chatgateway/internal/registry"
	"github.com/org/chatgateway/internal/secret"
	"github.com/org/chatgateway/internal/storage"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
	// WriteTimeout applies to every route except the chat stream.
	WriteTimeout time.Duration
}

// Services are the domain components the handlers call into.
type Services struct {
	Chat     *chat.Service
	Checker  *entitlement.Checker
	Registry *registry.Registry
	Keys     *secret.KeyManager
	Auditor  *audit.Logger
	Verifier *auth.Verifier
	Limiter  ratelimit.Limiter
	// Webhook is nil when Stripe is not configured.
	Webhook *billing.Webhook
}

// Server is the API server.
type Server struct {
	store    storage.StorageBackend
	chat     *chat.Service
	checker  *entitlement.Checker
	registry *registry.Registry
	keys     *secret.KeyManager
	auditor  *audit.Logger
	verifier *auth.Verifier
	limiter  ratelimit.Limiter
	webhook  *billing.Webhook
	cfg      Config
	httpSrv  *http.Server
}

// NewServer creates a fully wired Server.
func NewServer(store storage.StorageBackend, svc Services, cfg Config) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	return &Server{
		store:    store,
		chat:     svc.Chat,
		checker:  svc.Checker,
		registry: svc.Registry,
		keys:     svc.Keys,
		auditor:  svc.Auditor,
		verifier: svc.Verifier,
		limiter:  svc.Limiter,
		webhook:  svc.Webhook,
		cfg:      cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(accessLogMiddleware)

	// Unauthenticated
	r.Handle("/metrics", MetricsHandler())
	r.Get("/healthz", s.HealthHandler)
	r.Post("/webhooks/stripe", s.StripeWebhookHandler)

	// Chat answers in plain text, rate limited before anything else
	r.Group(func(r chi.Router) {
		r.Use(rateLimitMiddleware(s.limiter))
		r.Use(authMiddleware(s.verifier, writeText))
		r.Post("/chat", s.ChatHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.verifier, writeError))

		r.Get("/models", s.ModelsHandler)

		r.Get("/chats", s.ListChatsHandler)
		r.Post("/chats", s.CreateChatHandler)
		r.Get("/chats/{id}", s.GetChatHandler)
		r.Patch("/chats/{id}", s.RenameChatHandler)
		r.Delete("/chats/{id}", s.DeleteChatHandler)
		r.Post("/chats/{id}/title", s.ChatTitleHandler)

		r.Get("/agents", s.ListAgentsHandler)
		r.Put("/agents", s.SaveAgentHandler)
		r.Delete("/agents/{id}", s.DeleteAgentHandler)

		r.Get("/settings/keys", s.KeyStatusHandler)
		r.Put("/settings/keys/{provider}", s.SetKeyHandler)
		r.Delete("/settings/keys/{provider}", s.DeleteKeyHandler)

		r.Post("/company/members/check", s.MemberCheckHandler)
		r.Get("/audit-log", s.AuditLogHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for background chat persistence.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.chat.Wait(ctx)
}
