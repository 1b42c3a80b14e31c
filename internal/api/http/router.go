// Package http provides the HTTP delivery layer for the URL shortener
// service. It contains the router, the handlers for creating, resolving and
// inspecting short links, and the request/response schemas.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterOptions carries the delivery-layer knobs the handlers need.
type RouterOptions struct {
	// BaseURL is the public prefix short links are built from.
	BaseURL string
	// QRSize is the pixel size of rendered QR images.
	QRSize int
}

// NewRouter initializes and returns a new Chi router configured with
// middleware and routes for the URL shortener API.
func NewRouter(logger *httplog.Logger, urlUseCase urlUseCase, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	validate := validator.New()
	h := newURLHandler(urlUseCase, validate, opts)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Post("/shorten", h.shortenURL)
		r.Get("/shorten/{shortCode}/stats", h.getURLStats)
		r.Get("/urls", h.listURLs)
	})

	r.Get("/{shortCode}", h.redirect)
	r.Get("/{shortCode}/qr", h.qrImage)

	return r
}
