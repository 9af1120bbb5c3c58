// Package server assembles the HTTP router from the handlers and middleware.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/handlers"
	"museum-ticketing-platform/internal/middleware"
)

// Deps are the collaborators the router mounts
type Deps struct {
	Auth    *middleware.Authenticator
	Limiter *middleware.RateLimiter
	CORS    config.CORSConfig
	Logger  *logrus.Logger

	Health        *handlers.HealthHandler
	Cart          *handlers.CartHandler
	Checkout      *handlers.CheckoutHandler
	Payment       *handlers.PaymentHandler
	Webhook       *handlers.WebhookHandler
	Bookings      *handlers.BookingHandler
	Admin         *handlers.AdminHandler
	AdminSettings *handlers.AdminSettingsHandler
}

// NewRouter builds the API routes
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer(d.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(d.CORS))

	r.NotFound(middleware.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", d.Health.Health)

	r.Route("/api", func(r chi.Router) {
		// gateway callbacks carry no bearer token
		r.With(d.Limiter.Limit("webhook")).Post("/webhooks/razorpay", d.Webhook.Razorpay)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.LoadPrincipal)

			r.Route("/guest-cart", func(r chi.Router) {
				r.Get("/", d.Cart.GuestList)
				r.Delete("/", d.Cart.GuestClear)
				r.Post("/items", d.Cart.GuestAdd)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", d.Cart.List)
					r.Delete("/", d.Cart.Clear)
					r.Post("/items", d.Cart.AddItem)
					r.Delete("/items/{id}", d.Cart.RemoveItem)
					r.Post("/expired/sweep", d.Cart.SweepExpired)
					r.Post("/merge-guest", d.Cart.MergeGuest)
				})

				r.Post("/checkout", d.Checkout.Checkout)
				r.With(d.Limiter.Limit("verify")).Post("/payments/verify", d.Payment.Verify)

				r.Get("/bookings", d.Bookings.List)
				r.Get("/bookings/{reference}", d.Bookings.Get)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/settings", d.AdminSettings.Get)
				r.Put("/settings", d.AdminSettings.Update)
				r.Get("/reconciliation", d.Admin.Reconciliation)
				r.Get("/webhook-events", d.Admin.WebhookEvents)
				r.Get("/audit-logs", d.Admin.AuditLogs)
			})
		})
	})

	return r
}
