// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// It is separate from main.go so tests can build the full application with
// New and drive it through Handler, without a listening socket.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New creates:
//	  sqlite.DB → AuthService, PostService → AuthHandler, BlogHandler
//	  SessionStore → LoadIdentity middleware
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/blog/internal/auth"
	"github.com/sakif/blog/internal/config"
	"github.com/sakif/blog/internal/handler"
	"github.com/sakif/blog/internal/middleware"
	sqliteRepo "github.com/sakif/blog/internal/repository/sqlite"
	"github.com/sakif/blog/internal/service"
	"github.com/sakif/blog/web"
)

// shutdownTimeout is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it on shutdown;
// callers that never Start (tests) call Close.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server from a validated config.
//
// WIRING ORDER:
//  1. Open the database (migrations run here)
//  2. Build the password hasher and the session store
//  3. Build the services on top of the DB
//  4. Parse the templates and build the handlers
//  5. Mount everything on the router
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET       /                 → feed
//	GET       /hello            → plain-text liveness page
//	GET       /{id}             → single post
//	GET|POST  /auth/register    → registration
//	GET|POST  /auth/login       → login
//	GET       /auth/logout      → logout
//	GET|POST  /create           → new post             (login)
//	GET|POST  /{id}/update      → edit post            (login, author)
//	POST      /{id}/delete      → delete post          (login, author)
//	GET       /static/*         → embedded CSS
//
// {id} only matches digits, so /abc/update is a plain 404 that never
// reaches a handler.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: tags the request for the logs
//  2. RealIP: client address from proxy headers
//  3. Logger: one line per request, with the final status
//  4. Recoverer: a panic becomes a 500 that Logger still sees
//  5. LoadIdentity: session cookie → current user, once per request
func (s *Server) setupRoutes() error {
	sessions, err := auth.NewSessionStore(s.config.SecretKey, s.config.SessionLifetime, s.config.CookieSecure)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	// s.db implements both repository interfaces.
	authService := service.NewAuthService(s.db, passwords, s.logger)
	postService := service.NewPostService(s.db, s.logger)

	renderer, err := handler.NewRenderer(web.Templates(), s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	authHandler := handler.NewAuthHandler(authService, renderer, s.logger)
	blogHandler := handler.NewBlogHandler(postService, renderer, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(auth.LoadIdentity(sessions, authService, s.logger))

	s.router.NotFound(renderer.NotFound)
	s.router.MethodNotAllowed(renderer.MethodNotAllowed)

	// === Static Files ===
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	// === Public Pages ===
	s.router.Get("/", blogHandler.HandleIndex)
	s.router.Get("/hello", blogHandler.HandleHello)
	s.router.Get("/{id:[0-9]+}", blogHandler.HandleDetail)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/register", authHandler.HandleRegisterForm)
		r.Post("/register", authHandler.HandleRegister)
		r.Get("/login", authHandler.HandleLoginForm)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/logout", authHandler.HandleLogout)
	})

	// === Login Required ===
	// RequireLogin only checks that someone is logged in. Whether they wrote
	// the post is PostService's call.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin)

		r.Get("/create", blogHandler.HandleCreateForm)
		r.Post("/create", blogHandler.HandleCreate)
		r.Get("/{id:[0-9]+}/update", blogHandler.HandleUpdateForm)
		r.Post("/{id:[0-9]+}/update", blogHandler.HandleUpdate)
		r.Post("/{id:[0-9]+}/delete", blogHandler.HandleDelete)
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (checkpoints WAL, releases the file)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
