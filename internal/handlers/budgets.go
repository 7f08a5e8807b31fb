package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/dompy/backend/internal/auth"
	"example.com/dompy/backend/internal/ledger"
	"example.com/dompy/backend/internal/repository"
)

type BudgetHandler struct {
	Ledger  *ledger.Service
	Budgets *repository.BudgetRepository
}

func NewBudgetHandler(service *ledger.Service, budgets *repository.BudgetRepository) *BudgetHandler {
	return &BudgetHandler{Ledger: service, Budgets: budgets}
}

type UpsertBudgetRequest struct {
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	Month       string    `json:"month" validate:"required"`
	LimitAmount int64     `json:"limit_amount" validate:"gte=0"`
}

const monthLayout = "2006-01"

// Upsert creates or updates a category's monthly limit.
func (h *BudgetHandler) Upsert(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req UpsertBudgetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	month, err := time.Parse(monthLayout, req.Month)
	if err != nil {
		return badRequest(c, "invalid month, want YYYY-MM")
	}

	budget, err := h.Budgets.Upsert(c.Request().Context(), userID, req.CategoryID, month, req.LimitAmount)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "category not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, budget)
}

// Overview returns the month's budgets with spent amounts.
func (h *BudgetHandler) Overview(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	month := time.Now()
	if raw := c.QueryParam("month"); raw != "" {
		var err error
		if month, err = time.Parse(monthLayout, raw); err != nil {
			return badRequest(c, "invalid month, want YYYY-MM")
		}
	}

	overview, err := h.Ledger.BudgetOverview(c.Request().Context(), userID, month)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, overview)
}
