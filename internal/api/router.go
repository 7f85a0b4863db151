package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sledljivost/internal/events"
	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
)

// Config holds the dependencies of the API router.
type Config struct {
	DB        *sqlx.DB
	Engine    *ledger.Engine
	Hub       *events.Hub
	JWTSecret string
	// Limiter throttles public reads per client IP. Nil disables it.
	Limiter *RateLimiter
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: cfg.DB, JWTSecret: cfg.JWTSecret}
	usersHandler := &UsersHandler{DB: cfg.DB}
	productsHandler := &ProductsHandler{Engine: cfg.Engine, DB: cfg.DB}
	accountsHandler := &AccountsHandler{Engine: cfg.Engine}
	eventsHandler := &EventsHandler{Hub: cfg.Hub, DB: cfg.DB, JWTSecret: cfg.JWTSecret}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.DB)
	requireAdmin := RequireRole(model.RoleAdmin)

	public := func(h http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return h
		}
		return cfg.Limiter.Middleware(h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return authMW(h)
	}

	// Session.
	mux.Handle("POST /api/auth/login", public(authHandler.Login))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Products: reads are public, writes act as the token's account.
	mux.Handle("POST /api/products", authed(productsHandler.Register))
	mux.Handle("GET /api/products", public(productsHandler.List))
	mux.Handle("GET /api/products/{id}", public(productsHandler.Get))
	mux.Handle("GET /api/products/{id}/history", public(productsHandler.History))
	mux.Handle("POST /api/products/{id}/transfers", authed(productsHandler.Transfer))
	mux.Handle("PUT /api/products/{id}/image", authed(productsHandler.UploadImage))
	mux.Handle("GET /api/products/{id}/image", public(productsHandler.GetImage))

	// Accounts.
	mux.Handle("GET /api/manufacturers/{account}", public(accountsHandler.Manufacturer))
	mux.Handle("PUT /api/manufacturers/{account}", authed(accountsHandler.Authorize))
	mux.Handle("GET /api/holders/{account}/products", public(accountsHandler.HolderProducts))
	mux.Handle("GET /api/ledger", public(accountsHandler.Ledger))

	mux.HandleFunc("GET /api/events", eventsHandler.Stream)
	mux.HandleFunc("GET /api/health", Health(cfg.DB))

	return mux
}
