package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/metrics"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VoucherService 优惠券核销服务
type VoucherService struct {
	cfg         config.VoucherConfig
	voucherRepo repository.VoucherRepository
	usageRepo   repository.VoucherUsageRepository
	productRepo repository.ProductRepository
}

// NewVoucherService 创建优惠券核销服务
func NewVoucherService(
	cfg *config.Config,
	voucherRepo repository.VoucherRepository,
	usageRepo repository.VoucherUsageRepository,
	productRepo repository.ProductRepository,
) *VoucherService {
	s := &VoucherService{
		voucherRepo: voucherRepo,
		usageRepo:   usageRepo,
		productRepo: productRepo,
	}
	if cfg != nil {
		s.cfg = cfg.Voucher
	}
	return s
}

// CartLine 购物车行
type CartLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// VoucherCart 核销上下文
type VoucherCart struct {
	Lines   []CartLine
	OrderID *uint
}

// VoucherQuote 试算结果
type VoucherQuote struct {
	VoucherID      uint         `json:"voucher_id"`
	Code           string       `json:"code"`
	DiscountType   string       `json:"discount_type"`
	Subtotal       models.Money `json:"subtotal"`
	DiscountAmount models.Money `json:"discount_amount"`
}

// RedemptionResult 核销结果
type RedemptionResult struct {
	VoucherQuote
	UsageID   uint   `json:"usage_id"`
	ReceiptNo string `json:"receipt_no"`
}

type pricedLine struct {
	product  models.Product
	quantity int
}

// voucherEvaluation 校验通过后的中间结果
type voucherEvaluation struct {
	voucher    *models.Voucher
	subtotal   models.Money
	discount   models.Money
	priorCount int64
}

// voucherReaders 一组绑定同一连接或事务的仓库
type voucherReaders struct {
	vouchers repository.VoucherRepository
	usages   repository.VoucherUsageRepository
	products repository.ProductRepository
}

// Apply 校验并核销优惠券
// 校验与写入在同一事务内完成，同一用户并发核销撞上 (voucher_id, user_id, user_seq) 唯一键时整体重试
func (s *VoucherService) Apply(ctx context.Context, code string, userID uint, cart VoucherCart) (*RedemptionResult, error) {
	result, err := s.apply(ctx, code, userID, cart)
	if err != nil {
		metrics.VoucherApplied(voucherFailureReason(err), 0)
		logger.Infow("voucher_apply_rejected",
			"user_id", userID,
			"code", normalizeVoucherCode(code),
			"reason", voucherFailureReason(err),
		)
		return nil, err
	}
	discount, _ := result.DiscountAmount.Decimal.Float64()
	metrics.VoucherApplied("", discount)
	logger.Infow("voucher_applied",
		"user_id", userID,
		"voucher_id", result.VoucherID,
		"usage_id", result.UsageID,
		"receipt_no", result.ReceiptNo,
		"discount_amount", result.DiscountAmount.String(),
	)
	return result, nil
}

func (s *VoucherService) apply(ctx context.Context, code string, userID uint, cart VoucherCart) (*RedemptionResult, error) {
	normalized := normalizeVoucherCode(code)
	if normalized == "" {
		return nil, ErrVoucherNotFound
	}
	if userID == 0 {
		return nil, ErrNotFound
	}
	lines, err := mergeCartLines(cart.Lines)
	if err != nil {
		return nil, err
	}

	var result *RedemptionResult
	for attempt := 0; attempt < s.applyRetryLimit(); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err = s.applyOnce(normalized, userID, lines, cart.OrderID)
		if !errors.Is(err, ErrUniqueConstraintCollision) {
			return result, err
		}
		logger.Debugw("voucher_apply_collision_retry", "user_id", userID, "code", normalized, "attempt", attempt+1)
	}
	return nil, ErrVoucherPerUserLimitReached
}

func (s *VoucherService) applyOnce(code string, userID uint, lines []CartLine, orderID *uint) (*RedemptionResult, error) {
	var result *RedemptionResult
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		readers := voucherReaders{
			vouchers: s.voucherRepo.WithTx(tx),
			usages:   s.usageRepo.WithTx(tx),
			products: s.productRepo.WithTx(tx),
		}
		voucher, err := readers.vouchers.GetByCodeForUpdate(code)
		if err != nil {
			return err
		}
		eval, err := s.evaluate(readers, voucher, userID, lines, time.Now())
		if err != nil {
			return err
		}

		ok, err := readers.vouchers.IncrementUsageIfAvailable(voucher.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrVoucherGloballyExhausted
		}

		usage := &models.VoucherUsage{
			VoucherID:      voucher.ID,
			UserID:         userID,
			UserSeq:        int(eval.priorCount) + 1,
			OrderID:        orderID,
			ReceiptNo:      uuid.NewString(),
			Subtotal:       eval.subtotal,
			DiscountAmount: eval.discount,
		}
		if err := readers.usages.Create(usage); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrUniqueConstraintCollision
			}
			return err
		}

		result = &RedemptionResult{
			VoucherQuote: VoucherQuote{
				VoucherID:      voucher.ID,
				Code:           voucher.Code,
				DiscountType:   voucher.DiscountType,
				Subtotal:       eval.subtotal,
				DiscountAmount: eval.discount,
			},
			UsageID:   usage.ID,
			ReceiptNo: usage.ReceiptNo,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Preview 只读试算，不占用额度
func (s *VoucherService) Preview(ctx context.Context, code string, userID uint, cart VoucherCart) (*VoucherQuote, error) {
	normalized := normalizeVoucherCode(code)
	if normalized == "" {
		return nil, ErrVoucherNotFound
	}
	lines, err := mergeCartLines(cart.Lines)
	if err != nil {
		return nil, err
	}
	voucher, err := s.voucherRepo.GetByCode(normalized)
	if err != nil {
		return nil, err
	}
	readers := voucherReaders{vouchers: s.voucherRepo, usages: s.usageRepo, products: s.productRepo}
	eval, err := s.evaluate(readers, voucher, userID, lines, time.Now())
	if err != nil {
		return nil, err
	}
	return &VoucherQuote{
		VoucherID:      voucher.ID,
		Code:           voucher.Code,
		DiscountType:   voucher.DiscountType,
		Subtotal:       eval.subtotal,
		DiscountAmount: eval.discount,
	}, nil
}

// ListAvailable 用户当前可领取使用的优惠券，已达个人上限的不返回
func (s *VoucherService) ListAvailable(ctx context.Context, userID uint) ([]models.Voucher, error) {
	if userID == 0 {
		return nil, ErrNotFound
	}
	return s.voucherRepo.ListAvailableForUser(userID, time.Now())
}

// evaluate 依次执行全部校验并计算折扣，任一失败立即返回
func (s *VoucherService) evaluate(readers voucherReaders, voucher *models.Voucher, userID uint, lines []CartLine, now time.Time) (*voucherEvaluation, error) {
	if voucher == nil {
		return nil, ErrVoucherNotFound
	}
	if !voucher.IsActive {
		return nil, ErrVoucherInactive
	}
	if voucher.IsExpiredAt(now) {
		return nil, ErrVoucherExpired
	}

	priced, err := priceCartLines(readers.products, lines)
	if err != nil {
		return nil, err
	}
	categoryIDs, err := readers.vouchers.ListCategoryIDs(voucher.ID)
	if err != nil {
		return nil, err
	}
	productIDs, err := readers.vouchers.ListProductIDs(voucher.ID)
	if err != nil {
		return nil, err
	}
	// 限定范围时门槛按命中行的小计判断，无命中行视为小计为 0
	subtotal, matched := eligibleSubtotal(priced, categoryIDs, productIDs)
	if subtotal.Decimal.LessThan(voucher.MinSpend.Decimal) {
		return nil, ErrVoucherMinimumSpendNotMet
	}
	if matched == 0 {
		return nil, ErrVoucherNotApplicable
	}

	if voucher.IsGloballyExhausted() {
		return nil, ErrVoucherGloballyExhausted
	}

	priorCount, err := readers.usages.CountByVoucherAndUser(voucher.ID, userID)
	if err != nil {
		return nil, err
	}
	if voucher.MaxUsagePerUser > 0 && priorCount >= int64(voucher.MaxUsagePerUser) {
		return nil, ErrVoucherPerUserLimitReached
	}

	if voucher.IsTargeted() {
		eligible, err := readers.vouchers.IsUserEligible(voucher.ID, userID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, ErrVoucherNotEligible
		}
	}

	discount, err := calculateVoucherDiscount(voucher, subtotal)
	if err != nil {
		return nil, err
	}
	return &voucherEvaluation{
		voucher:    voucher,
		subtotal:   subtotal,
		discount:   discount,
		priorCount: priorCount,
	}, nil
}

// calculateVoucherDiscount 计算折扣金额，保留两位小数且不超过适用小计
func calculateVoucherDiscount(voucher *models.Voucher, subtotal models.Money) (models.Money, error) {
	var amount decimal.Decimal
	switch voucher.DiscountType {
	case constants.DiscountTypePercentage:
		amount = subtotal.Decimal.Mul(voucher.Value.Decimal).Div(decimal.NewFromInt(100))
	case constants.DiscountTypeFixed:
		amount = decimal.Min(voucher.Value.Decimal, subtotal.Decimal)
	default:
		return models.Money{}, ErrVoucherInvalid
	}
	amount = amount.Round(2)
	if amount.GreaterThan(subtotal.Decimal) {
		amount = subtotal.Decimal
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return models.NewMoneyFromDecimal(amount), nil
}

// eligibleSubtotal 未限定范围时整单参与，否则只累计命中分类或商品的行
func eligibleSubtotal(lines []pricedLine, categoryIDs, productIDs []uint) (models.Money, int) {
	scoped := len(categoryIDs) > 0 || len(productIDs) > 0
	categorySet := make(map[uint]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		categorySet[id] = struct{}{}
	}
	productSet := make(map[uint]struct{}, len(productIDs))
	for _, id := range productIDs {
		productSet[id] = struct{}{}
	}

	total := decimal.Zero
	matched := 0
	for _, line := range lines {
		if scoped {
			_, byProduct := productSet[line.product.ID]
			_, byCategory := categorySet[line.product.CategoryID]
			if !byProduct && !byCategory {
				continue
			}
		}
		matched++
		total = total.Add(line.product.PriceAmount.Decimal.Mul(decimal.NewFromInt(int64(line.quantity))))
	}
	return models.NewMoneyFromDecimal(total), matched
}

func priceCartLines(products repository.ProductRepository, lines []CartLine) ([]pricedLine, error) {
	ids := make([]uint, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	rows, err := products.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok || !product.IsActive {
			return nil, ErrVoucherCartInvalid
		}
		priced = append(priced, pricedLine{product: product, quantity: line.Quantity})
	}
	return priced, nil
}

// mergeCartLines 合并同商品的行并校验数量
func mergeCartLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrVoucherCartInvalid
	}
	merged := make([]CartLine, 0, len(lines))
	index := make(map[uint]int, len(lines))
	for _, line := range lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return nil, ErrVoucherCartInvalid
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func (s *VoucherService) applyRetryLimit() int {
	if s.cfg.ApplyRetryLimit <= 0 {
		return 3
	}
	return s.cfg.ApplyRetryLimit
}

func normalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func voucherFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrVoucherNotFound):
		return "not_found"
	case errors.Is(err, ErrVoucherInactive):
		return "inactive"
	case errors.Is(err, ErrVoucherExpired):
		return "expired"
	case errors.Is(err, ErrVoucherMinimumSpendNotMet):
		return "min_spend"
	case errors.Is(err, ErrVoucherGloballyExhausted):
		return "exhausted"
	case errors.Is(err, ErrVoucherPerUserLimitReached):
		return "per_user_limit"
	case errors.Is(err, ErrVoucherNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrVoucherNotApplicable):
		return "not_applicable"
	case errors.Is(err, ErrVoucherCartInvalid):
		return "cart_invalid"
	default:
		return "error"
	}
}
