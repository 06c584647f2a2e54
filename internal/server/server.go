package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fernhill/hearth/internal/billing"
	"github.com/fernhill/hearth/internal/entitlement"
	"github.com/fernhill/hearth/internal/handler"
	"github.com/fernhill/hearth/internal/household"
	"github.com/fernhill/hearth/internal/invite"
	"github.com/fernhill/hearth/internal/middleware"
	"github.com/fernhill/hearth/internal/realtime"
	"github.com/fernhill/hearth/internal/store"
)

// Config carries the secrets and knobs the server needs beyond the database.
type Config struct {
	JWTSecret           []byte
	StripeWebhookSecret string
}

type Server struct {
	db          *sql.DB
	cfg         Config
	hub         *realtime.Hub
	householdH  *handler.HouseholdHandler
	inviteH     *handler.InviteHandler
	meH         *handler.MeHandler
	quotaH      *handler.QuotaHandler
	webhookH    *billing.WebhookHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := realtime.NewHub(logger.With("component", "realtime"))

	engine := entitlement.NewEngine(db, hub, logger.With("component", "entitlement"))
	householdSvc := household.NewService(db, household.StoreChoreReassigner{}, hub, logger.With("component", "household"))
	inviteSvc := invite.NewService(db, hub, logger.With("component", "invite"))
	billingSvc := billing.NewService(db, engine, logger.With("component", "billing"))
	stripeClient := billing.NewStripeClient(billing.StripeConfig{WebhookSecret: cfg.StripeWebhookSecret})

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		householdH:  handler.NewHouseholdHandler(householdSvc, logger.With("component", "household_handler")),
		inviteH:     handler.NewInviteHandler(inviteSvc, logger.With("component", "invite_handler")),
		meH:         handler.NewMeHandler(householdSvc, logger.With("component", "me_handler")),
		quotaH:      handler.NewQuotaHandler(householdSvc, logger.With("component", "quota_handler")),
		webhookH:    billing.NewWebhookHandler(stripeClient, billingSvc, logger.With("component", "webhook")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the realtime hub for external fan-out.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /webhooks/stripe", s.rateLimitedHandler(s.webhookH.HandleStripeWebhook, 60))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.cfg.JWTSecret)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, limit int) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Household lifecycle
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("POST /api/households/join", s.rateLimitedHandler(s.householdH.Join, 10))
	mux.HandleFunc("POST /api/households/{id}/leave", s.householdH.Leave)
	mux.HandleFunc("POST /api/households/{id}/transfer", s.householdH.Transfer)
	mux.HandleFunc("POST /api/households/{id}/kick", s.householdH.Kick)

	// Invites
	mux.HandleFunc("GET /api/households/{id}/invite", s.inviteH.Active)
	mux.HandleFunc("POST /api/households/{id}/invite/rotate", s.inviteH.Rotate)
	mux.HandleFunc("POST /api/households/{id}/invite/revoke", s.inviteH.Revoke)

	// Quota admission for collaborator modules
	mux.HandleFunc("POST /api/households/{id}/quota", s.quotaH.Admit)

	// Caller state
	mux.HandleFunc("GET /api/me/membership", s.meH.Membership)
	mux.HandleFunc("GET /api/me/plan", s.meH.Plan)

	// WebSocket
	mux.HandleFunc("GET /ws", realtime.HandleWebSocket(s.hub, s.resolveHome, s.logger.With("component", "ws_handler")))
}

// resolveHome maps a user to their current household for websocket scoping.
func (s *Server) resolveHome(userID int64) (int64, error) {
	m, err := store.NewMembershipStore(s.db).CurrentByUser(userID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, nil
	}
	return m.HouseholdID, nil
}
