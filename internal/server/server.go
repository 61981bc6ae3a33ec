package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/storefront/internal/auth"
	"github.com/dukerupert/storefront/internal/config"
	"github.com/dukerupert/storefront/internal/email"
	"github.com/dukerupert/storefront/internal/handler"
	"github.com/dukerupert/storefront/internal/metrics"
	"github.com/dukerupert/storefront/internal/middleware"
	"github.com/dukerupert/storefront/internal/store"
	ws "github.com/dukerupert/storefront/internal/websocket"
)

// Sign-in endpoints, order links included, allow this many requests per
// client IP per window.
const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	hub            *ws.Hub
	authH          *handler.AuthHandler
	adminH         *handler.AdminHandler
	sessions       *auth.Sessions
	cookies        *auth.CookieTransport
	rateLimiter    *middleware.RateLimiter
	clientIP       func(*http.Request) string
	metrics        *metrics.Auth
	originPatterns []string
	logger         *slog.Logger
}

// Option adjusts server construction, mainly for tests.
type Option func(*options)

type options struct {
	authOpts []auth.AuthenticatorOption
}

// WithAuthenticatorOptions forwards options to the admin Authenticator.
func WithAuthenticatorOptions(opts ...auth.AuthenticatorOption) Option {
	return func(o *options) {
		o.authOpts = append(o.authOpts, opts...)
	}
}

func New(db *sql.DB, cfg config.Config, emailClient *email.Client, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	principalStore := store.NewPrincipalStore(db)
	magicLinkStore := store.NewMagicLinkStore(db)
	orderStore := store.NewOrderStore(db)

	sessions, err := auth.NewSessions([]byte(cfg.SessionSecret), principalStore)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	authenticator, err := auth.NewAuthenticator(auth.AdminCredentials{
		Email:        cfg.AdminEmail,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
	}, o.authOpts...)
	if err != nil {
		return nil, fmt.Errorf("admin credentials: %w", err)
	}

	cookies := auth.NewCookieTransport(cfg.Production())
	m := metrics.NewAuth()
	authLogger := logger.With("component", "auth")

	var origins []string
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		origins = []string{u.Host}
	}

	return &Server{
		hub: hub,
		authH: handler.NewAuthHandler(
			auth.NewLinkIssuer(magicLinkStore, principalStore, auth.WithReservedEmail(cfg.AdminEmail)),
			authenticator,
			sessions,
			cookies,
			auth.NewBridge(orderStore, logger.With("component", "bridge")),
			principalStore,
			emailClient,
			m,
			hub,
			authLogger,
		),
		adminH:   handler.NewAdminHandler(principalStore, orderStore, emailClient, cfg.BaseURL, hub, logger.With("component", "admin")),
		sessions: sessions,
		cookies:  cookies,
		rateLimiter: middleware.NewRateLimiter(middleware.WithRejectHook(func(r *http.Request) {
			m.RateLimited(r.URL.Path)
		})),
		clientIP:       middleware.ClientIP(cfg.TrustProxy),
		metrics:        m,
		originPatterns: origins,
		logger:         logger,
	}, nil
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	gateLogger := s.logger.With("component", "gate")
	requireAuth := middleware.RequireAuth(s.sessions, s.cookies, gateLogger)
	requireAdmin := middleware.RequireAdmin(s.sessions, s.cookies, gateLogger)
	optionalAuth := middleware.Authenticate(s.sessions, s.cookies, gateLogger)

	// Public routes
	mux.HandleFunc("POST /api/auth/link", s.rateLimitedHandler(s.authH.RequestLink))
	mux.HandleFunc("POST /api/auth/verify", s.rateLimitedHandler(s.authH.VerifyLink))
	mux.HandleFunc("POST /api/admin/login", s.rateLimitedHandler(s.authH.AdminLogin))
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.Handle("GET /auth/order", optionalAuth(s.rateLimitedHandler(s.authH.OrderSignIn)))
	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.Handle("GET /api/session", requireAuth(http.HandlerFunc(s.authH.Session)))

	// Admin routes
	mux.Handle("GET /api/admin/principals", requireAdmin(http.HandlerFunc(s.adminH.ListPrincipals)))
	mux.Handle("PUT /api/admin/principals/{publicID}/role", requireAdmin(http.HandlerFunc(s.adminH.SetRole)))
	mux.Handle("POST /api/admin/orders/{publicID}/sign-in-link", requireAdmin(http.HandlerFunc(s.adminH.SendOrderLink)))
	mux.Handle("GET /api/admin/events", requireAdmin(ws.HandleEvents(s.hub, s.originPatterns, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.clientIP)(mux)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return s.clientIP(r) + " " + r.URL.Path
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, authRateLimit, authRateWindow)
	return rl(h).ServeHTTP
}
