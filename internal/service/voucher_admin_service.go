package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/metrics"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/queue"
	"github.com/mercato-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	bulkInsertChunkSize = 500
	bulkExistingChunk   = 500
	bulkInsertAttempts  = 3
)

var voucherCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,64}$`)

type voucherTaskQueue interface {
	Enabled() bool
	EnqueueVoucherReconcile(payload queue.VoucherReconcilePayload) error
}

// VoucherAdminService 优惠券后台管理
type VoucherAdminService struct {
	cfg          config.VoucherConfig
	voucherRepo  repository.VoucherRepository
	usageRepo    repository.VoucherUsageRepository
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
	userRepo     repository.UserRepository
	queueClient  voucherTaskQueue
}

// NewVoucherAdminService 创建优惠券管理服务
func NewVoucherAdminService(
	cfg *config.Config,
	voucherRepo repository.VoucherRepository,
	usageRepo repository.VoucherUsageRepository,
	categoryRepo repository.CategoryRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	queueClient voucherTaskQueue,
) *VoucherAdminService {
	s := &VoucherAdminService{
		voucherRepo:  voucherRepo,
		usageRepo:    usageRepo,
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
		userRepo:     userRepo,
		queueClient:  queueClient,
	}
	if cfg != nil {
		s.cfg = cfg.Voucher
	}
	return s
}

// VoucherTemplate 优惠券定义（创建与批量生成共用）
type VoucherTemplate struct {
	Name              string
	DiscountType      string
	Value             models.Money
	MinSpend          models.Money
	ExpiresAt         *time.Time
	IsActive          *bool
	MaxUsagePerUser   int
	MaxTotalUsage     int
	QualificationType string
	CategoryIDs       []uint
	ProductIDs        []uint
	EligibleUserIDs   []uint
}

// CreateVoucherInput 创建优惠券输入
type CreateVoucherInput struct {
	Code string
	VoucherTemplate
}

// UpdateVoucherInput 更新优惠券输入，nil 字段保持不变
type UpdateVoucherInput struct {
	Name              *string
	Value             *models.Money
	MinSpend          *models.Money
	ExpiresAt         *time.Time
	ClearExpiry       bool
	IsActive          *bool
	MaxUsagePerUser   *int
	MaxTotalUsage     *int
	QualificationType *string
	CategoryIDs       *[]uint
	ProductIDs        *[]uint
}

// BulkGenerateInput 批量生成输入
type BulkGenerateInput struct {
	Prefix     string
	Quantity   int
	CodeLength int
	VoucherTemplate
}

// BulkGenerateResult 批量生成结果
type BulkGenerateResult struct {
	BatchNo  string           `json:"batch_no"`
	Count    int              `json:"count"`
	Vouchers []models.Voucher `json:"vouchers"`
}

// VoucherStats 单券统计
type VoucherStats struct {
	VoucherID     uint         `json:"voucher_id"`
	UsageCount    int          `json:"usage_count"`
	MaxTotalUsage int          `json:"max_total_usage"`
	Redemptions   int64        `json:"redemptions"`
	DistinctUsers int64        `json:"distinct_users"`
	TotalDiscount models.Money `json:"total_discount"`
	CounterDrift  int64        `json:"counter_drift"`
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	VoucherID uint `json:"voucher_id"`
	Before    int  `json:"before"`
	After     int  `json:"after"`
	Corrected bool `json:"corrected"`
}

// Create 创建优惠券
func (s *VoucherAdminService) Create(input CreateVoucherInput) (*models.Voucher, error) {
	code := normalizeVoucherCode(input.Code)
	if !voucherCodePattern.MatchString(code) {
		return nil, ErrVoucherInvalid
	}
	voucher, err := s.buildFromTemplate(input.VoucherTemplate)
	if err != nil {
		return nil, err
	}
	voucher.Code = code

	exist, err := s.voucherRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if exist != nil {
		return nil, ErrVoucherCodeExists
	}

	categoryIDs := uniqueIDs(input.CategoryIDs)
	productIDs := uniqueIDs(input.ProductIDs)
	userIDs := uniqueIDs(input.EligibleUserIDs)
	if err := s.validateReferences(categoryIDs, productIDs, userIDs); err != nil {
		return nil, err
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.voucherRepo.WithTx(tx)
		if err := repo.Create(voucher); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrVoucherCodeExists
			}
			return err
		}
		if err := repo.ReplaceScope(voucher.ID, categoryIDs, productIDs); err != nil {
			return err
		}
		return repo.ReplaceEligibleUsers(voucher.ID, userIDs)
	})
	if err != nil {
		return nil, err
	}
	voucher.CategoryIDs = categoryIDs
	voucher.ProductIDs = productIDs
	logger.Infow("voucher_created", "voucher_id", voucher.ID, "code", voucher.Code)
	return voucher, nil
}

// Update 更新优惠券定义，不触碰 usage_count
func (s *VoucherAdminService) Update(id uint, input UpdateVoucherInput) (*models.Voucher, error) {
	voucher, err := s.loadVoucher(id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		voucher.Name = strings.TrimSpace(*input.Name)
	}
	if input.Value != nil {
		voucher.Value = *input.Value
	}
	if input.MinSpend != nil {
		voucher.MinSpend = *input.MinSpend
	}
	if input.ClearExpiry {
		voucher.ExpiresAt = nil
	} else if input.ExpiresAt != nil {
		expiresAt := *input.ExpiresAt
		voucher.ExpiresAt = &expiresAt
	}
	if input.IsActive != nil {
		voucher.IsActive = *input.IsActive
	}
	if input.MaxUsagePerUser != nil {
		voucher.MaxUsagePerUser = *input.MaxUsagePerUser
	}
	if input.MaxTotalUsage != nil {
		voucher.MaxTotalUsage = *input.MaxTotalUsage
	}
	if input.QualificationType != nil {
		voucher.QualificationType = strings.ToLower(strings.TrimSpace(*input.QualificationType))
	}
	if err := validateVoucherDefinition(voucher); err != nil {
		return nil, err
	}

	replaceScope := input.CategoryIDs != nil || input.ProductIDs != nil
	var categoryIDs, productIDs []uint
	if replaceScope {
		if categoryIDs, err = s.voucherRepo.ListCategoryIDs(id); err != nil {
			return nil, err
		}
		if productIDs, err = s.voucherRepo.ListProductIDs(id); err != nil {
			return nil, err
		}
		if input.CategoryIDs != nil {
			categoryIDs = uniqueIDs(*input.CategoryIDs)
		}
		if input.ProductIDs != nil {
			productIDs = uniqueIDs(*input.ProductIDs)
		}
		if err := s.validateReferences(categoryIDs, productIDs, nil); err != nil {
			return nil, err
		}
	}

	voucher.UpdatedAt = time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.voucherRepo.WithTx(tx)
		if err := repo.Update(voucher); err != nil {
			return err
		}
		if replaceScope {
			return repo.ReplaceScope(id, categoryIDs, productIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("voucher_updated", "voucher_id", id)
	return s.Get(id)
}

// Get 获取优惠券详情（含适用范围）
func (s *VoucherAdminService) Get(id uint) (*models.Voucher, error) {
	voucher, err := s.loadVoucher(id)
	if err != nil {
		return nil, err
	}
	if voucher.CategoryIDs, err = s.voucherRepo.ListCategoryIDs(id); err != nil {
		return nil, err
	}
	if voucher.ProductIDs, err = s.voucherRepo.ListProductIDs(id); err != nil {
		return nil, err
	}
	return voucher, nil
}

// List 优惠券列表
func (s *VoucherAdminService) List(filter repository.VoucherListFilter) ([]models.Voucher, int64, error) {
	return s.voucherRepo.List(filter)
}

// GenerateBulk 按模板批量生成优惠券
// 单个优惠码与批内或库内冲突时只重抽该码，整批在同一事务内分块写入
func (s *VoucherAdminService) GenerateBulk(ctx context.Context, input BulkGenerateInput) (*BulkGenerateResult, error) {
	if input.Quantity <= 0 || input.Quantity > s.maxBulkQuantity() {
		return nil, ErrVoucherBulkQuantityInvalid
	}
	prefix := normalizeVoucherCode(input.Prefix)
	length := input.CodeLength
	if length <= 0 {
		length = s.codeLength()
	}
	if !voucherCodePattern.MatchString(prefix + strings.Repeat("A", length)) {
		return nil, ErrVoucherInvalid
	}
	template, err := s.buildFromTemplate(input.VoucherTemplate)
	if err != nil {
		return nil, err
	}
	categoryIDs := uniqueIDs(input.CategoryIDs)
	productIDs := uniqueIDs(input.ProductIDs)
	userIDs := uniqueIDs(input.EligibleUserIDs)
	if err := s.validateReferences(categoryIDs, productIDs, userIDs); err != nil {
		return nil, err
	}

	batchNo := newBatchNo(time.Now())
	for attempt := 0; attempt < bulkInsertAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		codes, err := s.generateUniqueCodes(prefix, length, input.Quantity)
		if err != nil {
			return nil, err
		}
		vouchers := make([]models.Voucher, 0, len(codes))
		for _, code := range codes {
			v := *template
			v.Code = code
			v.BatchNo = batchNo
			vouchers = append(vouchers, v)
		}

		err = models.DB.Transaction(func(tx *gorm.DB) error {
			repo := s.voucherRepo.WithTx(tx)
			if err := repo.CreateBatch(vouchers, bulkInsertChunkSize); err != nil {
				if repository.IsUniqueViolation(err) {
					return ErrUniqueConstraintCollision
				}
				return err
			}
			ids := make([]uint, 0, len(vouchers))
			for _, v := range vouchers {
				ids = append(ids, v.ID)
			}
			if err := repo.AttachScope(ids, categoryIDs, productIDs); err != nil {
				return err
			}
			return repo.AttachEligibleUsers(ids, userIDs)
		})
		if errors.Is(err, ErrUniqueConstraintCollision) {
			logger.Warnw("voucher_bulk_insert_collision_retry", "batch_no", batchNo, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.Infow("voucher_bulk_generated", "batch_no", batchNo, "count", len(vouchers))
		return &BulkGenerateResult{BatchNo: batchNo, Count: len(vouchers), Vouchers: vouchers}, nil
	}
	return nil, ErrVoucherCodeSpaceExhausted
}

// generateUniqueCodes 生成与批内及库内均不重复的优惠码
func (s *VoucherAdminService) generateUniqueCodes(prefix string, length, quantity int) ([]string, error) {
	retryLimit := s.codeRetryLimit()
	seen := make(map[string]struct{}, quantity)
	codes := make([]string, 0, quantity)

	draw := func() (string, error) {
		for i := 0; i < retryLimit; i++ {
			code, err := randomVoucherCode(prefix, length)
			if err != nil {
				return "", err
			}
			if _, dup := seen[code]; !dup {
				return code, nil
			}
		}
		return "", ErrVoucherCodeSpaceExhausted
	}

	for len(codes) < quantity {
		code, err := draw()
		if err != nil {
			return nil, err
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	for round := 0; round < retryLimit; round++ {
		taken, err := s.existingCodes(codes)
		if err != nil {
			return nil, err
		}
		if len(taken) == 0 {
			return codes, nil
		}
		for i, code := range codes {
			if _, ok := taken[code]; !ok {
				continue
			}
			replacement, err := draw()
			if err != nil {
				return nil, err
			}
			seen[replacement] = struct{}{}
			codes[i] = replacement
		}
	}
	return nil, ErrVoucherCodeSpaceExhausted
}

func (s *VoucherAdminService) existingCodes(codes []string) (map[string]struct{}, error) {
	taken := make(map[string]struct{})
	for start := 0; start < len(codes); start += bulkExistingChunk {
		end := start + bulkExistingChunk
		if end > len(codes) {
			end = len(codes)
		}
		existing, err := s.voucherRepo.ExistingCodes(codes[start:end])
		if err != nil {
			return nil, err
		}
		for _, code := range existing {
			taken[code] = struct{}{}
		}
	}
	return taken, nil
}

// ReplaceEligibleUsers 覆盖定向用户名单
func (s *VoucherAdminService) ReplaceEligibleUsers(id uint, userIDs []uint) ([]uint, error) {
	if _, err := s.loadVoucher(id); err != nil {
		return nil, err
	}
	ids := uniqueIDs(userIDs)
	if err := s.validateReferences(nil, nil, ids); err != nil {
		return nil, err
	}
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		return s.voucherRepo.WithTx(tx).ReplaceEligibleUsers(id, ids)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("voucher_eligible_users_replaced", "voucher_id", id, "count", len(ids))
	return ids, nil
}

// ListUsages 核销记录
func (s *VoucherAdminService) ListUsages(id uint, filter repository.VoucherUsageListFilter) ([]models.VoucherUsage, int64, error) {
	if _, err := s.loadVoucher(id); err != nil {
		return nil, 0, err
	}
	filter.VoucherID = id
	return s.usageRepo.List(filter)
}

// Stats 单券核销统计，CounterDrift 为计数器与核销记录的差值
func (s *VoucherAdminService) Stats(id uint) (*VoucherStats, error) {
	voucher, err := s.loadVoucher(id)
	if err != nil {
		return nil, err
	}
	agg, err := s.usageRepo.StatsByVoucher(id)
	if err != nil {
		return nil, err
	}
	return &VoucherStats{
		VoucherID:     id,
		UsageCount:    voucher.UsageCount,
		MaxTotalUsage: voucher.MaxTotalUsage,
		Redemptions:   agg.Redemptions,
		DistinctUsers: agg.DistinctUsers,
		TotalDiscount: agg.TotalDiscount,
		CounterDrift:  int64(voucher.UsageCount) - agg.Redemptions,
	}, nil
}

// Reconcile 以核销记录为准修正 usage_count
// 先锁定优惠券行，保证统计期间没有并发核销
func (s *VoucherAdminService) Reconcile(ctx context.Context, id uint) (*ReconcileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *ReconcileResult
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.voucherRepo.WithTx(tx)
		voucher, err := repo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return ErrVoucherNotFound
		}
		count, err := s.usageRepo.WithTx(tx).CountByVoucher(id)
		if err != nil {
			return err
		}
		result = &ReconcileResult{VoucherID: id, Before: voucher.UsageCount, After: int(count)}
		if voucher.UsageCount == int(count) {
			return nil
		}
		result.Corrected = true
		return repo.SetUsageCount(id, int(count))
	})
	if err != nil {
		return nil, err
	}
	if result.Corrected {
		metrics.VoucherReconciled()
		logger.Warnw("voucher_usage_count_corrected",
			"voucher_id", id,
			"before", result.Before,
			"after", result.After,
		)
	}
	return result, nil
}

// ReconcileAll 逐张对账，返回被修正的数量
func (s *VoucherAdminService) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.voucherRepo.ListIDs()
	if err != nil {
		return 0, err
	}
	corrected := 0
	for _, id := range ids {
		result, err := s.Reconcile(ctx, id)
		if err != nil {
			if errors.Is(err, ErrVoucherNotFound) {
				continue
			}
			return corrected, fmt.Errorf("reconcile voucher %d: %w", id, err)
		}
		if result.Corrected {
			corrected++
		}
	}
	logger.Infow("voucher_reconcile_finished", "total", len(ids), "corrected", corrected)
	return corrected, nil
}

// ScheduleReconcile 队列可用时异步对账，否则同步执行
// voucherID 为 0 表示全部
func (s *VoucherAdminService) ScheduleReconcile(ctx context.Context, voucherID uint) (queued bool, corrected int, err error) {
	if s.queueClient != nil && s.queueClient.Enabled() {
		enqueueErr := s.queueClient.EnqueueVoucherReconcile(queue.VoucherReconcilePayload{VoucherID: voucherID})
		if enqueueErr == nil {
			return true, 0, nil
		}
		logger.Warnw("voucher_reconcile_enqueue_failed", "voucher_id", voucherID, "error", enqueueErr)
	}
	if voucherID == 0 {
		corrected, err = s.ReconcileAll(ctx)
		return false, corrected, err
	}
	result, err := s.Reconcile(ctx, voucherID)
	if err != nil {
		return false, 0, err
	}
	if result.Corrected {
		corrected = 1
	}
	return false, corrected, nil
}

func (s *VoucherAdminService) buildFromTemplate(t VoucherTemplate) (*models.Voucher, error) {
	isActive := true
	if t.IsActive != nil {
		isActive = *t.IsActive
	}
	qualification := strings.ToLower(strings.TrimSpace(t.QualificationType))
	if qualification == "" {
		qualification = constants.QualificationManual
	}
	voucher := &models.Voucher{
		Name:              strings.TrimSpace(t.Name),
		DiscountType:      strings.ToLower(strings.TrimSpace(t.DiscountType)),
		Value:             t.Value,
		MinSpend:          t.MinSpend,
		ExpiresAt:         t.ExpiresAt,
		IsActive:          isActive,
		MaxUsagePerUser:   t.MaxUsagePerUser,
		MaxTotalUsage:     t.MaxTotalUsage,
		QualificationType: qualification,
	}
	if err := validateVoucherDefinition(voucher); err != nil {
		return nil, err
	}
	return voucher, nil
}

func (s *VoucherAdminService) validateReferences(categoryIDs, productIDs, userIDs []uint) error {
	if len(categoryIDs) > 0 {
		count, err := s.categoryRepo.CountByIDs(categoryIDs)
		if err != nil {
			return err
		}
		if count != int64(len(categoryIDs)) {
			return ErrVoucherScopeInvalid
		}
	}
	if len(productIDs) > 0 {
		count, err := s.productRepo.CountByIDs(productIDs)
		if err != nil {
			return err
		}
		if count != int64(len(productIDs)) {
			return ErrVoucherScopeInvalid
		}
	}
	if len(userIDs) > 0 {
		count, err := s.userRepo.CountByIDs(userIDs)
		if err != nil {
			return err
		}
		if count != int64(len(userIDs)) {
			return ErrVoucherUsersInvalid
		}
	}
	return nil
}

func (s *VoucherAdminService) loadVoucher(id uint) (*models.Voucher, error) {
	if id == 0 {
		return nil, ErrVoucherNotFound
	}
	voucher, err := s.voucherRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, ErrVoucherNotFound
	}
	return voucher, nil
}

func (s *VoucherAdminService) maxBulkQuantity() int {
	if s.cfg.MaxBulkQuantity <= 0 {
		return 10000
	}
	return s.cfg.MaxBulkQuantity
}

// MaxBulkQuantity 单批最大生成数量
func (s *VoucherAdminService) MaxBulkQuantity() int {
	return s.maxBulkQuantity()
}

func (s *VoucherAdminService) codeLength() int {
	if s.cfg.CodeLength < 6 {
		return 10
	}
	return s.cfg.CodeLength
}

func (s *VoucherAdminService) codeRetryLimit() int {
	if s.cfg.CodeRetryLimit <= 0 {
		return 8
	}
	return s.cfg.CodeRetryLimit
}

// validateVoucherDefinition 校验折扣类型、面值与上限
func validateVoucherDefinition(v *models.Voucher) error {
	switch v.DiscountType {
	case constants.DiscountTypePercentage:
		if !v.Value.Decimal.IsPositive() || v.Value.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			return ErrVoucherInvalid
		}
	case constants.DiscountTypeFixed:
		if !v.Value.Decimal.IsPositive() {
			return ErrVoucherInvalid
		}
	default:
		return ErrVoucherInvalid
	}
	if v.MinSpend.Decimal.IsNegative() {
		return ErrVoucherInvalid
	}
	if v.MaxUsagePerUser < 0 || v.MaxTotalUsage < 0 {
		return ErrVoucherInvalid
	}
	switch v.QualificationType {
	case constants.QualificationManual, constants.QualificationAutomatic, constants.QualificationTargeted:
	default:
		return ErrVoucherInvalid
	}
	return nil
}

func uniqueIDs(ids []uint) []uint {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newBatchNo(now time.Time) string {
	return "B" + now.Format("20060102") + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
