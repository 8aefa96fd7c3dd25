package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/lockblip/server/internal/auth"
	"github.com/lockblip/server/internal/http/handlers"
	"github.com/lockblip/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(ghostHandler *handlers.GhostHandler, authHandler *handlers.AuthHandler, jwtService *auth.JWTService) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/auth/dev_login", authHandler.HandleDevLogin)

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))

		r.Route("/ghost", func(r chi.Router) {
			r.Post("/setup", ghostHandler.HandleSetup)
			r.Post("/unlock", ghostHandler.HandleUnlock)
			r.Post("/heartbeat", ghostHandler.HandleHeartbeat)
			r.Post("/lock", ghostHandler.HandleLock)
			r.Post("/biometric", ghostHandler.HandleEnableBiometric)
			r.Post("/activate", ghostHandler.HandleActivate)
			r.Post("/join", ghostHandler.HandleJoin)

			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Post("/validate", ghostHandler.HandleValidateAccess)
				r.Post("/reauth", ghostHandler.HandleReauth)
				r.Post("/messages", ghostHandler.HandleSendMessage)
				r.Get("/messages", ghostHandler.HandleListMessages)
				r.Post("/events", ghostHandler.HandleLogEvent)
				r.Get("/logs", ghostHandler.HandleAccessLogs)
				r.Post("/terminate", ghostHandler.HandleTerminate)
			})

			r.Post("/messages/{messageID}/view", ghostHandler.HandleViewMessage)
		})
	})

	return r
}
