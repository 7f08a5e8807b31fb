package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/dompy/backend/internal/assistant"
	"example.com/dompy/backend/internal/assistant/llm"
	"example.com/dompy/backend/internal/assistant/tools"
	"example.com/dompy/backend/internal/auth"
	"example.com/dompy/backend/internal/config"
	"example.com/dompy/backend/internal/handlers"
	"example.com/dompy/backend/internal/ledger"
	"example.com/dompy/backend/internal/repository"
)

// New assembles the Echo server with routes and dependencies.
func New(cfg config.Config, logger *slog.Logger, db *pgxpool.Pool) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	validator := NewValidator()
	e.Validator = validator

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	budgetRepo := repository.NewBudgetRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	proposalRepo := repository.NewProposalRepository(db)

	ledgerService := ledger.NewService(accountRepo, categoryRepo, transactionRepo, budgetRepo)
	registry := tools.NewRegistry(ledgerService, ledgerService, validator.Validator())

	llmClient := llm.NewOpenAIClient(cfg.Assistant.APIKey, cfg.Assistant.BaseURL, cfg.Assistant.Model, cfg.Assistant.Timeout)
	assistantService := assistant.NewService(
		llmClient,
		registry,
		ledgerService,
		conversationRepo,
		proposalRepo,
		cfg.Assistant.MaxToolRounds,
		cfg.Assistant.HistoryLimit,
		logger,
	)

	authHandler := handlers.NewAuthHandler(userRepo, tokenRepo, tokenManager)
	accountHandler := handlers.NewAccountHandler(accountRepo)
	categoryHandler := handlers.NewCategoryHandler(categoryRepo)
	transactionHandler := handlers.NewTransactionHandler(ledgerService, transactionRepo)
	budgetHandler := handlers.NewBudgetHandler(ledgerService, budgetRepo)
	assistantHandler := handlers.NewAssistantHandler(assistantService)

	registerRoutes(
		e,
		authHandler,
		accountHandler,
		categoryHandler,
		transactionHandler,
		budgetHandler,
		assistantHandler,
		auth.JWTMiddleware(tokenManager),
		rateLimiter(cfg.Auth.RateLimitPerMinute, cfg.Auth.RateLimitBurst),
		rateLimiter(cfg.Assistant.RateLimitPerMinute, cfg.Assistant.RateLimitBurst),
	)

	return e
}

// NewHTTPServer creates a net/http server with the configured timeouts.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func rateLimiter(perMinute, burst int) echo.MiddlewareFunc {
	limit := rate.Limit(float64(perMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     burst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
