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

type CategoryHandler struct {
	Categories *repository.CategoryRepository
}

func NewCategoryHandler(categories *repository.CategoryRepository) *CategoryHandler {
	return &CategoryHandler{Categories: categories}
}

type CreateCategoryRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Type  string `json:"type" validate:"required,oneof=income expense"`
	Color string `json:"color" validate:"omitempty,max=20"`
	Icon  string `json:"icon" validate:"omitempty,max=50"`
}

type RenameCategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// Create adds a category.
func (h *CategoryHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	category, err := h.Categories.Create(c.Request().Context(), userID, req.Name, models.CategoryType(req.Type), req.Color, req.Icon)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return conflict(c, "category already exists")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusCreated, category)
}

// List returns the user's categories, optionally filtered by type.
func (h *CategoryHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var categoryType *models.CategoryType
	if t := c.QueryParam("type"); t == "income" || t == "expense" {
		ct := models.CategoryType(t)
		categoryType = &ct
	}

	categories, err := h.Categories.ListByUser(c.Request().Context(), userID, categoryType, false)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, map[string]any{"categories": categories})
}

// Rename updates a category name.
func (h *CategoryHandler) Rename(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	categoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid category id")
	}

	var req RenameCategoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	category, err := h.Categories.Rename(c.Request().Context(), userID, categoryID, req.Name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "category not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, category)
}

// Delete removes a category that is not referenced by transactions.
func (h *CategoryHandler) Delete(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	categoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid category id")
	}

	if err := h.Categories.Delete(c.Request().Context(), userID, categoryID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFound(c, "category not found")
		case errors.Is(err, repository.ErrConflict):
			return conflict(c, "category still has transactions")
		}
		return serverError(c)
	}

	return c.NoContent(http.StatusNoContent)
}
