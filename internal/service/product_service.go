package service

import (
	"strings"

	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"
)

// ProductService 商品业务服务
type ProductService struct {
	repo         repository.ProductRepository
	categoryRepo repository.CategoryRepository
}

// NewProductService 创建商品服务
func NewProductService(repo repository.ProductRepository, categoryRepo repository.CategoryRepository) *ProductService {
	return &ProductService{repo: repo, categoryRepo: categoryRepo}
}

// CreateProductInput 创建商品输入
type CreateProductInput struct {
	CategoryID  uint
	Slug        string
	Title       string
	PriceAmount models.Money
	IsActive    *bool
}

// ListPublic 获取上架商品列表
func (s *ProductService) ListPublic(categoryID uint, search string, page, pageSize int) ([]models.Product, int64, error) {
	return s.repo.List(repository.ProductListFilter{
		Page:       page,
		PageSize:   pageSize,
		CategoryID: categoryID,
		Search:     search,
		OnlyActive: true,
	})
}

// ListAdmin 获取后台商品列表
func (s *ProductService) ListAdmin(categoryID uint, search string, page, pageSize int) ([]models.Product, int64, error) {
	return s.repo.List(repository.ProductListFilter{
		Page:       page,
		PageSize:   pageSize,
		CategoryID: categoryID,
		Search:     search,
	})
}

// Create 创建商品
func (s *ProductService) Create(input CreateProductInput) (*models.Product, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	title := strings.TrimSpace(input.Title)
	if slug == "" || title == "" || !input.PriceAmount.Decimal.IsPositive() {
		return nil, ErrProductInvalid
	}
	category, err := s.categoryRepo.GetByID(input.CategoryID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	count, err := s.repo.CountBySlug(slug)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrProductExists
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	product := models.Product{
		CategoryID:  category.ID,
		Slug:        slug,
		Title:       title,
		PriceAmount: models.NewMoneyFromDecimal(input.PriceAmount.Decimal),
		IsActive:    isActive,
	}
	if err := s.repo.Create(&product); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrProductExists
		}
		return nil, err
	}
	return &product, nil
}
