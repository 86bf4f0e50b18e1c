package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/susu3304/coffeebot/internal/coffee"
	"github.com/susu3304/coffeebot/internal/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type API struct {
	router      *mux.Router
	store       coffee.Store
	coord       *coffee.Coordinator
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	log         *zap.Logger
}

func New(cfg *config.Config, store coffee.Store, coord *coffee.Coordinator, logger *zap.Logger) *API {
	api := &API{
		router:    mux.NewRouter(),
		store:     store,
		coord:     coord,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		log:       logger.Named("api"),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(a.logMiddleware)

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Operational endpoints
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/me/debts", a.handleMyDebts).Methods("GET")
	protected.HandleFunc("/me/credits", a.handleMyCredits).Methods("GET")
	protected.HandleFunc("/me/payments", a.handleMyPayments).Methods("GET")
	protected.HandleFunc("/cards", a.handleCards).Methods("GET")
	protected.HandleFunc("/session", a.handleSession).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (a *API) Handler() http.Handler {
	// With a wildcard origin credentials must stay disabled; the API uses bearer tokens.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Run serves until ctx is done, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *API) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}
