package handlers

import (
	"net/http"

	"github.com/felipet/lacoctelera-backend/internal/metrics"
	"github.com/felipet/lacoctelera-backend/internal/middleware"
	"github.com/rs/cors"
)

// RouterDeps are the collaborators the HTTP surface needs
type RouterDeps struct {
	Tokens     TokenRequestService
	Authorizer middleware.Authorizer
	Store      Pinger
	// Ready is an optional readiness gate for the health endpoints
	Ready func() bool
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// NewAppMux creates the application ServeMux with every route
func NewAppMux(deps RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()

	tokenHandler := NewTokenHandler(deps.Tokens)
	accountHandler := NewAccountHandler()
	healthHandler := NewHealthHandler(deps.Store, deps.Ready)
	authMiddleware := middleware.APITokenMiddleware(deps.Authorizer)

	health := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		healthHandler.Health(w, r)
	}
	mux.HandleFunc("/api/health", health)
	mux.HandleFunc("/api/v1/health", health)

	// Metrics endpoint (v1, no auth required)
	mux.Handle("/api/v1/metrics", metrics.Handler())

	// Token request routes (public)
	mux.Handle("/token/request", middleware.MetricsMiddleware("/token/request", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tokenHandler.RequestForm(w, r)
		case http.MethodPost:
			tokenHandler.SubmitRequest(w, r)
		default:
			methodNotAllowed(w)
		}
	})))

	mux.Handle("/token/confirm", middleware.MetricsMiddleware("/token/confirm", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		tokenHandler.Confirm(w, r)
	})))

	// Account routes (require auth)
	mux.Handle("/api/v1/account", middleware.MetricsMiddleware("/api/v1/account", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		accountHandler.GetAccount(w, r)
	}))))

	return mux
}

// NewRouter creates the API router with CORS handling
func NewRouter(deps RouterDeps) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(NewAppMux(deps))
}
