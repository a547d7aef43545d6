package admin

import (
	"strings"

	handlershared "github.com/mercato-next/internal/http/handlers/shared"
	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/service"

	"github.com/gin-gonic/gin"
)

type createCategoryPayload struct {
	Slug      string `json:"slug" binding:"required"`
	Name      string `json:"name" binding:"required"`
	SortOrder int    `json:"sort_order"`
}

type createProductPayload struct {
	CategoryID  uint         `json:"category_id" binding:"required"`
	Slug        string       `json:"slug" binding:"required"`
	Title       string       `json:"title" binding:"required"`
	PriceAmount models.Money `json:"price_amount"`
	IsActive    *bool        `json:"is_active"`
}

var catalogErrorRules = []mappedHandlerError{
	{target: service.ErrCategoryInvalid, code: response.CodeBadRequest, key: "error.category_invalid"},
	{target: service.ErrCategoryExists, code: response.CodeConflict, key: "error.category_exists"},
	{target: service.ErrCategoryNotFound, code: response.CodeBadRequest, key: "error.category_not_found"},
	{target: service.ErrProductInvalid, code: response.CodeBadRequest, key: "error.product_invalid"},
	{target: service.ErrProductExists, code: response.CodeConflict, key: "error.product_exists"},
}

// GetAdminCategories 分类列表
func (h *Handler) GetAdminCategories(c *gin.Context) {
	categories, err := h.CategoryService.List()
	if err != nil {
		respondError(c, response.CodeInternal, "error.category_fetch_failed", err)
		return
	}
	response.Success(c, categories)
}

// CreateCategory 创建分类
func (h *Handler) CreateCategory(c *gin.Context) {
	var req createCategoryPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	category, err := h.CategoryService.Create(service.CreateCategoryInput{
		Slug:      req.Slug,
		Name:      req.Name,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respondWithMappedError(c, err, catalogErrorRules, response.CodeInternal, "error.save_failed")
		return
	}
	response.Success(c, category)
}

// GetAdminProducts 商品列表（含下架）
func (h *Handler) GetAdminProducts(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	categoryID := handlershared.ParseUintQuery(c, "category_id")
	search := strings.TrimSpace(c.Query("search"))

	products, total, err := h.ProductService.ListAdmin(categoryID, search, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.product_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, products, handlershared.BuildPagination(page, pageSize, total))
}

// CreateProduct 创建商品
func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	product, err := h.ProductService.Create(service.CreateProductInput{
		CategoryID:  req.CategoryID,
		Slug:        req.Slug,
		Title:       req.Title,
		PriceAmount: req.PriceAmount,
		IsActive:    req.IsActive,
	})
	if err != nil {
		respondWithMappedError(c, err, catalogErrorRules, response.CodeInternal, "error.save_failed")
		return
	}
	response.Success(c, product)
}
