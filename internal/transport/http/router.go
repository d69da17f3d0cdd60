package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-notify-hub/internal/application/notification"
	"github.com/go-notify-hub/internal/application/registry"
	"github.com/go-notify-hub/internal/application/router"
	"github.com/go-notify-hub/internal/config"
	"github.com/go-notify-hub/internal/domain"
	jwtinfra "github.com/go-notify-hub/internal/infrastructure/jwt"
	"github.com/go-notify-hub/internal/transport/http/handler"
	appmiddleware "github.com/go-notify-hub/internal/transport/http/middleware"
	"github.com/go-notify-hub/internal/transport/ws"
	"golang.org/x/time/rate"
)

// Deps holds everything the HTTP surface serves.
type Deps struct {
	Notifications notification.Service
	Registry      *registry.Registry
	Router        *router.Router
	Hub           *ws.Hub
	JWTProvider   *jwtinfra.Provider
}

// NewRouter builds the application router. The returned stop func releases
// the rate limiter's background sweeper.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.InternalTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 20 requests/second, burst of 40, per client IP.
	limiter := appmiddleware.NewRateLimiter(rate.Limit(20), 40)

	healthH := handler.NewHealthHandler(deps.Hub)
	notifH := handler.NewNotificationHandler(deps.Notifications)
	var tokens handler.TokenIssuer
	if deps.JWTProvider != nil {
		tokens = deps.JWTProvider
	}
	internalH := handler.NewInternalHandler(deps.Notifications, deps.Router, deps.Registry, deps.Hub, tokens)

	// The socket route sits outside the limiter; inbound events are limited
	// per connection by the hub.
	r.Get("/ws", deps.Hub.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Limit)

		r.Get("/health", healthH.Status)
		r.Get("/health-check/{action}", healthH.Ping)

		if deps.JWTProvider != nil {
			r.Route("/notifications", func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.JWTProvider))

				r.Get("/", notifH.List)
				r.Get("/unread", notifH.ListUnread)
				r.Get("/read", notifH.ListRead)
				r.Get("/stats", notifH.Stats)
				r.Get("/search", notifH.Search)
				r.Get("/{id}", notifH.Get)
				r.Put("/mark-multiple-read", notifH.MarkManyRead)
				r.Put("/mark-all-read", notifH.MarkAllRead)
				r.Put("/{id}/read", notifH.MarkRead)
				r.Delete("/multiple", notifH.DeleteMany)
				r.Delete("/all", notifH.DeleteAll)
				r.Delete("/{id}", notifH.Delete)
			})

			// Operators may inspect socket state with an admin token.
			r.With(appmiddleware.Auth(deps.JWTProvider), appmiddleware.RequireRole(domain.RoleAdmin)).
				Get("/admin/socket/stats", internalH.SocketStats)
		}

		r.Route("/internal", func(r chi.Router) {
			r.Use(appmiddleware.InternalToken(cfg.InternalTokenHash))

			r.Post("/notifications/send", internalH.Send)
			r.Post("/notifications/send-bulk", internalH.SendBulk)
			r.Post("/notifications/system", internalH.System)
			r.Post("/notifications/send-custom", internalH.SendCustom)
			r.Post("/notifications/broadcast", internalH.Broadcast)
			r.Post("/notifications/cleanup", internalH.Cleanup)
			r.Get("/notifications/{id}", internalH.Audit)
			r.Post("/socket/token", internalH.IssueToken)
			r.Get("/socket/stats", internalH.SocketStats)
			r.Get("/socket/connections/{userId}", internalH.UserConnections)
		})
	})

	return r, limiter.Stop
}
