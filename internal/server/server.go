package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"ledger-transfers/internal/config"
	"ledger-transfers/internal/domain"
	"ledger-transfers/internal/events"
	"ledger-transfers/internal/handler"
	"ledger-transfers/internal/lock"
	"ledger-transfers/internal/metrics"
	"ledger-transfers/internal/repository"
	"ledger-transfers/internal/service"
	"ledger-transfers/internal/worker"
)

const reconcileTimeout = 30 * time.Second

// Server represents the HTTP server and the resources it owns.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	server     *http.Server
	db         *sql.DB
	redis      redis.UniversalClient
	dispatcher *events.Dispatcher
	scheduler  *worker.ReconcileScheduler
	logger     *slog.Logger
	port       string
}

// NewServer builds every dependency from cfg and injects it downwards.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{logger: logger}

	currency, err := domain.ParseCurrency(cfg.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_CURRENCY: %w", err)
	}

	accounts, transactions, err := s.openStorage(cfg)
	if err != nil {
		return nil, err
	}

	locker, err := s.openLocker(cfg)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	s.dispatcher = events.NewDispatcher(s.openPublisher(cfg), events.DefaultDispatcherConfig(), logger)

	deps := service.Dependencies{
		Accounts:        accounts,
		Transactions:    transactions,
		Locker:          locker,
		Events:          s.dispatcher,
		DefaultCurrency: currency,
		Logger:          logger,
	}

	// Initialize services
	transferMoney := service.NewTransferMoney(deps)
	ibanTransfer := service.NewTransferToIBAN(deps, transferMoney)
	accountService := service.NewAccountService(deps)
	transactionService := service.NewTransactionService(deps)
	reconciler := service.NewReconciler(deps, service.ReconcilerConfig{
		Threshold: cfg.ReconcileThreshold,
		BatchSize: cfg.ReconcileBatch,
	})
	s.scheduler = worker.NewReconcileScheduler(reconciler, cfg.ReconcileSchedule, reconcileTimeout, logger)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService, transactionService)
	transactionHandler := handler.NewTransactionHandler(transferMoney, ibanTransfer, transactionService)

	// Setup router
	s.router = mux.NewRouter()
	s.router.Use(loggingMiddleware(logger))
	handler.RegisterRoutes(s.router, accountHandler, transactionHandler)
	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// CORS wraps the router so preflight requests never reach route matching.
	s.handler = cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(s.router)

	return s, nil
}

func (s *Server) openStorage(cfg *config.Config) (domain.AccountRepository, domain.TransactionRepository, error) {
	if cfg.StorageDriver == config.StorageMemory {
		s.logger.Warn("Using in-memory storage; data is lost on restart")
		store := repository.NewMemoryStore()
		return store.Account(), store.Transaction(), nil
	}

	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	s.db = db
	s.logger.Info("Successfully connected to database")

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db, s.logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	store := repository.NewStore(db, s.logger)
	return store.Account(), store.Transaction(), nil
}

func (s *Server) openLocker(cfg *config.Config) (lock.Locker, error) {
	if cfg.RedisURL == "" {
		return lock.NewMemoryLocker(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	s.redis = client
	s.logger.Info("Using redis account locks", "addr", opts.Addr)
	return lock.NewRedisLocker(client, cfg.LockTTL, s.logger), nil
}

// openPublisher falls back to logging events when the broker is unreachable,
// so the ledger keeps serving without it.
func (s *Server) openPublisher(cfg *config.Config) events.Publisher {
	if cfg.RabbitMQURL == "" {
		return events.NewLogPublisher(s.logger)
	}
	pub, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.EventsExchange, s.logger)
	if err != nil {
		s.logger.Warn("RabbitMQ unavailable, logging events instead", "error", err)
		return events.NewLogPublisher(s.logger)
	}
	s.logger.Info("Publishing events to RabbitMQ", "exchange", cfg.EventsExchange)
	return pub
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "redis unavailable"})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.ObserveHTTPRequest(r.Method, route, ww.statusCode, duration)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", duration,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port along with the
// reconciliation schedule.
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	// Get the actual port being used
	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.scheduler.Start(); err != nil {
		listener.Close()
		return "", err
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains HTTP traffic, stops the scheduler, flushes pending events and
// closes the stores.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var firstErr error
	if s.server != nil {
		firstErr = s.server.Shutdown(ctx)
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			s.logger.Warn("Failed to close event publisher", "error", err)
		}
	}
	s.closeResources()
	return firstErr
}

func (s *Server) closeResources() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	// Initialize logger - use io.Discard for tests to avoid panic
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	// Start the server and get the actual port
	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
