package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-approvals/internal/auth"
	"expense-approvals/internal/config"
	"expense-approvals/internal/guard"
	"expense-approvals/internal/handlers"
	"expense-approvals/internal/ledger"
	"expense-approvals/internal/logging"
	"expense-approvals/internal/storage"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogFormat == "json"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL %q: %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := storage.NewStore(db, log)
	dir := auth.NewDirectory(store, auth.WithPasswordHashing(cfg.HashPasswords))

	ctx := context.Background()
	seeded, err := dir.EnsureSeed(ctx, cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if seeded {
		log.Info().Str("username", cfg.AdminUser).Msg("seeded admin user")
	}

	l := ledger.New(store, ledger.WithSelfApproval(cfg.AllowSelfApproval))
	if _, err := l.ListExpenses(ctx); err != nil {
		return err
	}
	logStoreWarnings(log, store.Warnings())

	h := handlers.NewHandlers(dir, l, log, cfg.SecureCookie)
	g := guard.New(guard.DefaultRoutes)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      g.Middleware(h.Session, log)(setupRouter(h, cfg.StaticDir)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("db", cfg.DBPath).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

func logStoreWarnings(log zerolog.Logger, warnings []string) {
	for _, w := range warnings {
		log.Warn().Str("warning", w).Msg("stored value was unreadable and is treated as empty")
	}
}

// setupRouter registers every route. Access control wraps the returned mux.
func setupRouter(h *handlers.Handlers, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /signup", h.SignupForm)
	mux.HandleFunc("POST /signup", h.Signup)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.HandleFunc("GET /{$}", h.Dashboard)

	mux.HandleFunc("GET /expenses", h.ListExpenses)
	mux.HandleFunc("GET /expenses/new", h.CreateExpenseForm)
	mux.HandleFunc("POST /expenses/new", h.CreateExpense)
	mux.HandleFunc("GET /expenses/{id}", h.GetExpense)
	mux.HandleFunc("POST /expenses/{id}/submit", h.SubmitExpense)

	mux.HandleFunc("GET /approvals", h.ListApprovals)
	mux.HandleFunc("POST /approvals/{id}/{decision}", h.Decide)

	mux.HandleFunc("GET /reports", h.Reports)
	mux.HandleFunc("GET /reports/download", h.DownloadReport)

	mux.HandleFunc("GET /profile", h.Profile)
	mux.HandleFunc("POST /profile", h.UpdateProfile)
	mux.HandleFunc("GET /settings", h.Settings)
	mux.HandleFunc("POST /settings", h.UpdateProfile)

	mux.HandleFunc("GET /users", h.ListUsers)
	mux.HandleFunc("POST /users", h.CreateUser)
	mux.HandleFunc("POST /users/{id}", h.UpdateUser)
	mux.HandleFunc("POST /users/{id}/delete", h.DeleteUser)

	return mux
}
