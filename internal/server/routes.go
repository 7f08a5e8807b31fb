package server

import (
	"github.com/labstack/echo/v4"

	"example.com/dompy/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	categoryHandler *handlers.CategoryHandler,
	transactionHandler *handlers.TransactionHandler,
	budgetHandler *handlers.BudgetHandler,
	assistantHandler *handlers.AssistantHandler,
	authMiddleware echo.MiddlewareFunc,
	authRateLimiter echo.MiddlewareFunc,
	assistantRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", handlers.Health)

	api := e.Group("/api/v1")
	authGroup := api.Group("/auth", authRateLimiter)

	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", authHandler.Me, authMiddleware)

	accounts := api.Group("/accounts", authMiddleware)
	accounts.GET("", accountHandler.List)
	accounts.POST("", accountHandler.Create)
	accounts.GET("/:id", accountHandler.Get)
	accounts.DELETE("/:id", accountHandler.Delete)

	categories := api.Group("/categories", authMiddleware)
	categories.GET("", categoryHandler.List)
	categories.POST("", categoryHandler.Create)
	categories.PATCH("/:id", categoryHandler.Rename)
	categories.DELETE("/:id", categoryHandler.Delete)

	transactions := api.Group("/transactions", authMiddleware)
	transactions.GET("", transactionHandler.List)
	transactions.POST("", transactionHandler.Create)
	transactions.POST("/transfer", transactionHandler.Transfer)
	transactions.GET("/cashflow", transactionHandler.Cashflow)
	transactions.DELETE("/:id", transactionHandler.Delete)

	budgets := api.Group("/budgets", authMiddleware)
	budgets.GET("/overview", budgetHandler.Overview)
	budgets.PUT("", budgetHandler.Upsert)

	assistantGroup := api.Group("/assistant", authMiddleware, assistantRateLimiter)
	assistantGroup.POST("/message", assistantHandler.Message)
	assistantGroup.POST("/apply", assistantHandler.Apply)
	assistantGroup.GET("/proposals/:id", assistantHandler.GetProposal)
	assistantGroup.PATCH("/proposals/:id", assistantHandler.UpdateProposal)
	assistantGroup.GET("/conversations", assistantHandler.ListConversations)
	assistantGroup.GET("/conversations/:id", assistantHandler.GetConversation)
	assistantGroup.DELETE("/conversations/:id", assistantHandler.DeleteConversation)
}
