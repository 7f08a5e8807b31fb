package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/dompy/backend/internal/auth"
	"example.com/dompy/backend/internal/ledger"
	"example.com/dompy/backend/internal/models"
	"example.com/dompy/backend/internal/repository"
)

type TransactionHandler struct {
	Ledger       *ledger.Service
	Transactions *repository.TransactionRepository
}

func NewTransactionHandler(service *ledger.Service, transactions *repository.TransactionRepository) *TransactionHandler {
	return &TransactionHandler{Ledger: service, Transactions: transactions}
}

type CreateTransactionRequest struct {
	Date        string    `json:"date" validate:"required"`
	Type        string    `json:"type" validate:"required,oneof=income expense"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	AccountID   uuid.UUID `json:"account_id" validate:"required"`
	Description string    `json:"description" validate:"max=500"`
	Tags        []string  `json:"tags" validate:"omitempty,dive,max=50"`
}

type CreateTransferRequest struct {
	Date          string    `json:"date" validate:"required"`
	Amount        int64     `json:"amount" validate:"required,gt=0"`
	FromAccountID uuid.UUID `json:"from_account_id" validate:"required"`
	ToAccountID   uuid.UUID `json:"to_account_id" validate:"required"`
	Description   string    `json:"description" validate:"max=500"`
}

const dateLayout = "2006-01-02"

// Create records a transaction.
func (h *TransactionHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateTransactionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return badRequest(c, "invalid date, want YYYY-MM-DD")
	}

	txn, err := h.Ledger.CreateTransaction(c.Request().Context(), userID, ledger.NewTransaction{
		Date:        date,
		Type:        models.TransactionType(req.Type),
		Amount:      req.Amount,
		CategoryID:  req.CategoryID,
		AccountID:   req.AccountID,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusCreated, txn)
}

// Transfer records both legs of an account transfer.
func (h *TransactionHandler) Transfer(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateTransferRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return badRequest(c, "invalid date, want YYYY-MM-DD")
	}

	result, err := h.Ledger.CreateTransfer(c.Request().Context(), userID, ledger.Transfer{
		Date:          date,
		Amount:        req.Amount,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Description:   req.Description,
	})
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// List returns the user's transactions matching the query filters.
func (h *TransactionHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	filter := repository.TransactionFilter{
		Search: c.QueryParam("search"),
		Limit:  queryInt(c, "limit", 0),
	}

	var err error
	if filter.DateFrom, err = queryDate(c, "date_from"); err != nil {
		return badRequest(c, "invalid date_from")
	}
	if filter.DateTo, err = queryDate(c, "date_to"); err != nil {
		return badRequest(c, "invalid date_to")
	}
	if filter.CategoryID, err = queryUUID(c, "category_id"); err != nil {
		return badRequest(c, "invalid category_id")
	}
	if filter.AccountID, err = queryUUID(c, "account_id"); err != nil {
		return badRequest(c, "invalid account_id")
	}
	if t := c.QueryParam("type"); t == "income" || t == "expense" {
		tt := models.TransactionType(t)
		filter.Type = &tt
	}

	transactions, err := h.Transactions.List(c.Request().Context(), userID, filter)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, map[string]any{"transactions": transactions})
}

// Delete removes a transaction and reverts its balance effect.
func (h *TransactionHandler) Delete(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	if err := h.Transactions.Delete(c.Request().Context(), userID, transactionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "transaction not found")
		}
		return serverError(c)
	}

	return c.NoContent(http.StatusNoContent)
}

// Cashflow returns the income/expense summary between two dates.
func (h *TransactionHandler) Cashflow(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	dateFrom, err := time.Parse(dateLayout, c.QueryParam("date_from"))
	if err != nil {
		return badRequest(c, "invalid date_from")
	}
	dateTo, err := time.Parse(dateLayout, c.QueryParam("date_to"))
	if err != nil {
		return badRequest(c, "invalid date_to")
	}

	summary, err := h.Ledger.CashflowSummary(c.Request().Context(), userID, dateFrom, dateTo)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, summary)
}

func ledgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "referenced entity not found")
	case errors.Is(err, repository.ErrInvalid):
		return badRequest(c, err.Error())
	case errors.Is(err, repository.ErrConflict):
		return conflict(c, "conflicting entity")
	}
	return serverError(c)
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
