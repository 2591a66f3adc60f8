package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"artisora/internal/domain/repository"
	"artisora/pkg/errors"
	"artisora/pkg/response"
)

// ProductHandler serves the product metadata the chat UI snapshots into a new
// conversation (id, name, thumbnail, reply-context fields).
type ProductHandler struct {
	productRepo repository.ProductRepository
}

func NewProductHandler(productRepo repository.ProductRepository) *ProductHandler {
	return &ProductHandler{
		productRepo: productRepo,
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return response.Error(c, errors.BadRequest("Product id is required", nil))
	}

	product, err := h.productRepo.GetByID(c.Request().Context(), id)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, product)
}

func (h *ProductHandler) ListArtisanProducts(c echo.Context) error {
	artisanID := c.Param("artisanId")
	if artisanID == "" {
		return response.Error(c, errors.BadRequest("Artisan id is required", nil))
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return response.Error(c, errors.BadRequest("Invalid limit", err))
		}
		limit = parsed
	}

	products, err := h.productRepo.ListByArtisanID(c.Request().Context(), artisanID, limit)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, products)
}
