package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/dompy/backend/internal/auth"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

type AccountHandler struct {
	Accounts *repository.AccountRepository
}

func NewAccountHandler(accounts *repository.AccountRepository) *AccountHandler {
	return &AccountHandler{Accounts: accounts}
}

type CreateAccountRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Type     string `json:"type" validate:"required,oneof=checking savings e-wallet cash other"`
	Balance  int64  `json:"balance" validate:"gte=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// Create adds an account.
func (h *AccountHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	currency := req.Currency
	if currency == "" {
		currency = "IDR"
	}

	account, err := h.Accounts.Create(c.Request().Context(), userID, req.Name, models.AccountType(req.Type), req.Balance, currency)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusCreated, account)
}

// List returns the user's accounts.
func (h *AccountHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	accounts, err := h.Accounts.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, map[string]any{"accounts": accounts})
}

// Get returns one account.
func (h *AccountHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid account id")
	}

	account, err := h.Accounts.GetByID(c.Request().Context(), userID, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "account not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, account)
}

// Delete removes an account.
func (h *AccountHandler) Delete(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid account id")
	}

	if err := h.Accounts.Delete(c.Request().Context(), userID, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "account not found")
		}
		return serverError(c)
	}

	return c.NoContent(http.StatusNoContent)
}
