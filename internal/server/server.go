// Package server wires the stores, engines, and delivery pipeline into an
// HTTP API.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ewhitaker/larder/internal/config"
	"github.com/ewhitaker/larder/internal/email"
	"github.com/ewhitaker/larder/internal/handler"
	"github.com/ewhitaker/larder/internal/kv"
	"github.com/ewhitaker/larder/internal/middleware"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/notify"
	"github.com/ewhitaker/larder/internal/push"
	"github.com/ewhitaker/larder/internal/stock"
	"github.com/ewhitaker/larder/internal/store"
	"github.com/ewhitaker/larder/internal/suggestion"
	ws "github.com/ewhitaker/larder/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	memberStore *store.MemberStore
	scheduler   *notify.Scheduler
	rateLimiter *middleware.RateLimiter

	inventoryH  *handler.InventoryHandler
	shoppingH   *handler.ShoppingHandler
	suggestionH *handler.SuggestionHandler
	memberH     *handler.MemberHandler
	eventH      *handler.EventHandler

	logger *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	kvs := kv.NewStore(db)
	memberStore := store.NewMemberStore(kvs)
	inventoryStore := store.NewInventoryStore(kvs)
	shoppingStore := store.NewShoppingListStore(kvs, cfg.PurchasedTTL)
	suggestionStore := store.NewSuggestionStore(kvs)
	eventStore := store.NewEventStore(kvs)

	// Delivery pipeline. Channels without credentials are left out of the
	// notifier map entirely; the router only routes to what exists.
	resolver := notify.NewResolver(cfg.DefaultFrequency)
	notifiers := make(map[model.Channel]notify.Notifier)

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.PostmarkFrom)
	if emailClient.Configured() {
		notifiers[model.ChannelEmail] = emailClient
	}

	var pushSvc *push.Service
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.Push)
		notifiers[model.ChannelPush] = pushSvc
	}

	router := notify.NewRouter(memberStore, eventStore, resolver, notifiers, logger.With("component", "router"))

	digests := make(map[model.Channel]*notify.Digest, len(notifiers))
	digestList := make([]*notify.Digest, 0, len(notifiers))
	for ch, n := range notifiers {
		d := notify.NewDigest(kvs, memberStore, eventStore, resolver, ch, n, logger.With("component", "digest", "channel", ch))
		digests[ch] = d
		digestList = append(digestList, d)
	}
	scheduler := notify.NewScheduler(digestList, kvs, cfg.DigestHour, cfg.WeeklyDay, logger.With("component", "scheduler"))

	monitor := stock.NewMonitor(eventStore, router, logger.With("component", "stock"))
	engine := suggestion.NewEngine(kvs, suggestionStore, inventoryStore, shoppingStore, eventStore,
		router, monitor, logger.With("component", "suggestion"))

	return &Server{
		db:          db,
		hub:         hub,
		memberStore: memberStore,
		scheduler:   scheduler,
		rateLimiter: middleware.NewRateLimiter(),
		inventoryH:  handler.NewInventoryHandler(inventoryStore, monitor, hub, logger.With("component", "inventory")),
		shoppingH:   handler.NewShoppingHandler(shoppingStore, hub, logger.With("component", "shopping")),
		suggestionH: handler.NewSuggestionHandler(suggestionStore, engine, hub, logger.With("component", "suggestion_handler")),
		memberH:     handler.NewMemberHandler(memberStore, pushSvc, logger.With("component", "member")),
		eventH:      handler.NewEventHandler(eventStore, router, digests, logger.With("component", "event")),
		logger:      logger,
	}
}

// Scheduler returns the digest scheduler for lifecycle management.
func (s *Server) Scheduler() *notify.Scheduler {
	return s.scheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /unsubscribe", s.rateLimitedHandler(s.memberH.UnsubscribeByToken))

	// Protected routes behind bearer auth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.memberStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Inventory API routes
	mux.HandleFunc("POST /api/inventory", s.inventoryH.Create)
	mux.HandleFunc("GET /api/inventory", s.inventoryH.List)
	mux.HandleFunc("GET /api/inventory/{id}", s.inventoryH.Get)
	mux.HandleFunc("PUT /api/inventory/{id}", s.inventoryH.Update)
	mux.HandleFunc("POST /api/inventory/{id}/quantity", s.inventoryH.SetQuantity)
	mux.HandleFunc("POST /api/inventory/{id}/archive", s.inventoryH.Archive)

	// Shopping list API routes
	mux.HandleFunc("POST /api/shopping", s.shoppingH.Add)
	mux.HandleFunc("GET /api/shopping", s.shoppingH.List)
	mux.HandleFunc("POST /api/shopping/{id}/status", s.shoppingH.UpdateStatus)
	mux.HandleFunc("PUT /api/shopping/{id}", s.shoppingH.Rename)

	// Suggestion API routes
	mux.HandleFunc("POST /api/suggestions", s.suggestionH.Create)
	mux.HandleFunc("GET /api/suggestions", s.suggestionH.ListPending)
	mux.HandleFunc("GET /api/suggestions/{id}", s.suggestionH.Get)
	mux.HandleFunc("POST /api/suggestions/{id}/approve", s.suggestionH.Approve)
	mux.HandleFunc("POST /api/suggestions/{id}/reject", s.suggestionH.Reject)

	// Member and preference API routes
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.Handle("POST /api/members", middleware.RequireAdmin(http.HandlerFunc(s.memberH.Create)))
	mux.HandleFunc("GET /api/preferences", s.memberH.GetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.memberH.UpdatePreferences)
	mux.HandleFunc("POST /api/preferences/unsubscribe-email", s.memberH.SetUnsubscribeAllEmail)

	// Push subscription API routes
	mux.HandleFunc("POST /api/push/subscribe", s.memberH.SubscribePush)
	mux.HandleFunc("DELETE /api/push/subscribe", s.memberH.UnsubscribePush)
	mux.HandleFunc("GET /api/push/vapid-key", s.memberH.GetVAPIDKey)

	// Notification event API routes
	mux.HandleFunc("GET /api/events", s.eventH.ListActive)
	mux.HandleFunc("POST /api/events/{id}/resend", s.eventH.Resend)
	mux.Handle("POST /api/admin/digest/run", middleware.RequireAdmin(http.HandlerFunc(s.eventH.RunDigest)))

	// Real-time sync
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
