package router

import (
	"net/http"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func SetupRoutes(
	orderHandler *handler.OrderHandler,
	paymentHandler *handler.PaymentHandler,
	walletHandler *handler.WalletHandler,
	callbackHandler *handler.CallbackHandler,
	adminHandler *handler.AdminHandler,
	authMW *auth.Middleware,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/api/v1/checkout/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Customer surface, JWT required.
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", orderHandler.Create)
				r.Get("/", orderHandler.List)
				r.Get("/{orderID}", orderHandler.Get)
				r.Post("/{orderID}/pay/wallet", paymentHandler.PayWithWallet)
				r.Post("/{orderID}/pay/gateway", paymentHandler.PayWithGateway)
				r.Post("/{orderID}/cancel", paymentHandler.Cancel)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletHandler.Balance)
				r.Get("/transactions", walletHandler.Transactions)
				r.Post("/topup", paymentHandler.Topup)
			})

			r.Get("/ws/wallet", walletHandler.Subscribe)
		})

		// Back office, admin role required.
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Use(authMW.RequireAdmin)

			r.Route("/admin/orders", func(r chi.Router) {
				r.Get("/", adminHandler.ListOrders)
				r.Patch("/{orderID}/status", adminHandler.UpdateOrderStatus)
				r.Post("/{orderID}/cancel", adminHandler.CancelOrder)
			})
		})

		// Gateway callbacks, authenticated by payload signature.
		r.Route("/callbacks/payos", func(r chi.Router) {
			r.Post("/payment/{reference}", callbackHandler.HandlePaymentCallback)
			r.Post("/topup/{reference}", callbackHandler.HandleTopupCallback)
		})
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
