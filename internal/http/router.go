package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/docstamp-api/internal/auth"
	"github.com/redmonkez12/docstamp-api/internal/config"
	"github.com/redmonkez12/docstamp-api/internal/document"
	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/stamp"
)

// Handlers groups the per-domain HTTP handlers mounted by the router
type Handlers struct {
	Auth      *auth.Handler
	Documents *document.Handler
	Stamps    *stamp.Handler
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, h Handlers, authMiddleware *auth.Middleware, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Mode"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth)

	// Swagger UI is only mounted in development
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/otp/request", h.Auth.RequestOTP)
		r.Post("/otp/verify", h.Auth.VerifyOTP)
		r.Post("/login", h.Auth.Login)
		r.Post("/refresh", h.Auth.Refresh)
		r.Post("/logout", h.Auth.Logout)
	})

	// Public authenticity checks
	r.Get("/verify-serial/{serial}", h.Documents.VerifySerial)
	r.Get("/verify-serial/{serial}/qr", h.Documents.QRCode)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		r.Get("/me", h.Auth.Me)
		r.Post("/otp/request", h.Auth.RequestOTPForAccount)
		r.Post("/otp/verify", h.Auth.VerifyOTPForAccount)

		r.Post("/serial-numbers", h.Documents.GenerateSerial)
		r.Post("/documents/upload-url", h.Documents.RequestUpload)
		r.Post("/documents", h.Documents.Save)
		r.Get("/documents", h.Documents.List)

		r.Post("/stamps/logo-upload-url", h.Stamps.RequestLogoUpload)
		r.Post("/stamps", h.Stamps.Create)
		r.Get("/stamps", h.Stamps.List)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondErrorWithCode(w, "route not found", httputil.CodeNotFound, http.StatusNotFound)
	})

	return r
}

// handleHealth is a simple health check endpoint
// @Summary      Health check
// @Description  Check if the API is running
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
}
