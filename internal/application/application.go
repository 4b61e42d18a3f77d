package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/seat-allocator/internal/api"
	"github.com/eugenenazirov/seat-allocator/internal/apportionment"
	"github.com/eugenenazirov/seat-allocator/internal/config"
	"github.com/eugenenazirov/seat-allocator/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage     storage.Storage
	apportioner apportionment.Apportioner
	handler     *api.Handler
	router      http.Handler
	logger      *zap.Logger
	server      *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.NewMemoryStorage()
	if err := store.SetSettings(cfg.Settings); err != nil {
		return nil, fmt.Errorf("failed to apply initial settings: %w", err)
	}

	apportioner := apportionment.New()
	handler := api.NewHandler(apportioner, store, api.WithLogger(logger))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage:     store,
		apportioner: apportioner,
		handler:     handler,
		router:      apiRouter,
		logger:      logger,
		server:      NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and points the bare root at the health check.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/api/health", http.StatusFound)
	}))
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.Int("default_seats", a.defaultSeats()),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

func (a *App) defaultSeats() int {
	settings, err := a.storage.GetSettings()
	if err != nil {
		return 0
	}
	return settings.TotalSeats
}
