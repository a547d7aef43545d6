package admin

import (
	"errors"
	"strings"
	"time"

	handlershared "github.com/mercato-next/internal/http/handlers/shared"
	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"
	"github.com/mercato-next/internal/service"

	"github.com/gin-gonic/gin"
)

// voucherTemplatePayload 创建与批量生成共用的定义字段
type voucherTemplatePayload struct {
	Name              string       `json:"name"`
	DiscountType      string       `json:"discount_type" binding:"required"`
	Value             models.Money `json:"value"`
	MinSpend          models.Money `json:"min_spend"`
	ExpiresAt         *time.Time   `json:"expires_at"`
	IsActive          *bool        `json:"is_active"`
	MaxUsagePerUser   int          `json:"max_usage_per_user"`
	MaxTotalUsage     int          `json:"max_total_usage"`
	QualificationType string       `json:"qualification_type"`
	CategoryIDs       []uint       `json:"category_ids"`
	ProductIDs        []uint       `json:"product_ids"`
	EligibleUserIDs   []uint       `json:"eligible_user_ids"`
}

func (p voucherTemplatePayload) toTemplate() service.VoucherTemplate {
	return service.VoucherTemplate{
		Name:              p.Name,
		DiscountType:      p.DiscountType,
		Value:             p.Value,
		MinSpend:          p.MinSpend,
		ExpiresAt:         p.ExpiresAt,
		IsActive:          p.IsActive,
		MaxUsagePerUser:   p.MaxUsagePerUser,
		MaxTotalUsage:     p.MaxTotalUsage,
		QualificationType: p.QualificationType,
		CategoryIDs:       p.CategoryIDs,
		ProductIDs:        p.ProductIDs,
		EligibleUserIDs:   p.EligibleUserIDs,
	}
}

type createVoucherPayload struct {
	Code string `json:"code" binding:"required"`
	voucherTemplatePayload
}

type updateVoucherPayload struct {
	Name              *string       `json:"name"`
	Value             *models.Money `json:"value"`
	MinSpend          *models.Money `json:"min_spend"`
	ExpiresAt         *time.Time    `json:"expires_at"`
	ClearExpiry       bool          `json:"clear_expiry"`
	IsActive          *bool         `json:"is_active"`
	MaxUsagePerUser   *int          `json:"max_usage_per_user"`
	MaxTotalUsage     *int          `json:"max_total_usage"`
	QualificationType *string       `json:"qualification_type"`
	CategoryIDs       *[]uint       `json:"category_ids"`
	ProductIDs        *[]uint       `json:"product_ids"`
}

type bulkGeneratePayload struct {
	Prefix     string `json:"prefix"`
	Quantity   int    `json:"quantity" binding:"required"`
	CodeLength int    `json:"code_length"`
	voucherTemplatePayload
}

type eligibleUsersPayload struct {
	UserIDs []uint `json:"user_ids"`
}

var voucherAdminErrorRules = []mappedHandlerError{
	{target: service.ErrVoucherNotFound, code: response.CodeNotFound, key: "error.voucher_not_found"},
	{target: service.ErrVoucherInvalid, code: response.CodeBadRequest, key: "error.voucher_invalid"},
	{target: service.ErrVoucherCodeExists, code: response.CodeConflict, key: "error.voucher_code_exists"},
	{target: service.ErrVoucherScopeInvalid, code: response.CodeBadRequest, key: "error.voucher_scope_invalid"},
	{target: service.ErrVoucherUsersInvalid, code: response.CodeBadRequest, key: "error.voucher_users_invalid"},
	{target: service.ErrVoucherCodeSpaceExhausted, code: response.CodeConflict, key: "error.voucher_code_space_exhausted"},
}

// GetAdminVouchers 优惠券列表
func (h *Handler) GetAdminVouchers(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.VoucherListFilter{
		Page:              page,
		PageSize:          pageSize,
		Code:              strings.TrimSpace(c.Query("code")),
		BatchNo:           strings.TrimSpace(c.Query("batch_no")),
		QualificationType: strings.TrimSpace(c.Query("qualification_type")),
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("is_active"))) {
	case "true", "1":
		active := true
		filter.IsActive = &active
	case "false", "0":
		active := false
		filter.IsActive = &active
	}

	vouchers, total, err := h.VoucherAdminService.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.voucher_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, vouchers, handlershared.BuildPagination(page, pageSize, total))
}

// GetAdminVoucher 优惠券详情
func (h *Handler) GetAdminVoucher(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	voucher, err := h.VoucherAdminService.Get(id)
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.voucher_fetch_failed")
		return
	}
	response.Success(c, voucher)
}

// CreateVoucher 创建优惠券
func (h *Handler) CreateVoucher(c *gin.Context) {
	var req createVoucherPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	voucher, err := h.VoucherAdminService.Create(service.CreateVoucherInput{
		Code:            req.Code,
		VoucherTemplate: req.toTemplate(),
	})
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.save_failed")
		return
	}
	response.Success(c, voucher)
}

// UpdateVoucher 更新优惠券，未提交的字段保持不变
func (h *Handler) UpdateVoucher(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateVoucherPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	voucher, err := h.VoucherAdminService.Update(id, service.UpdateVoucherInput{
		Name:              req.Name,
		Value:             req.Value,
		MinSpend:          req.MinSpend,
		ExpiresAt:         req.ExpiresAt,
		ClearExpiry:       req.ClearExpiry,
		IsActive:          req.IsActive,
		MaxUsagePerUser:   req.MaxUsagePerUser,
		MaxTotalUsage:     req.MaxTotalUsage,
		QualificationType: req.QualificationType,
		CategoryIDs:       req.CategoryIDs,
		ProductIDs:        req.ProductIDs,
	})
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.save_failed")
		return
	}
	response.Success(c, voucher)
}

// BulkGenerateVouchers 按模板批量生成优惠券
func (h *Handler) BulkGenerateVouchers(c *gin.Context) {
	var req bulkGeneratePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	result, err := h.VoucherAdminService.GenerateBulk(c.Request.Context(), service.BulkGenerateInput{
		Prefix:          req.Prefix,
		Quantity:        req.Quantity,
		CodeLength:      req.CodeLength,
		VoucherTemplate: req.toTemplate(),
	})
	if err != nil {
		if errors.Is(err, service.ErrVoucherBulkQuantityInvalid) {
			handlershared.RespondErrorWithArgs(c, response.CodeBadRequest, "error.voucher_bulk_quantity", h.VoucherAdminService.MaxBulkQuantity())
			return
		}
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.save_failed")
		return
	}
	requestLog(c).Infow("admin_voucher_bulk_generated",
		"batch_no", result.BatchNo,
		"count", result.Count,
	)
	response.Success(c, result)
}

// ReplaceVoucherEligibleUsers 覆盖定向券的可用用户
func (h *Handler) ReplaceVoucherEligibleUsers(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req eligibleUsersPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	userIDs, err := h.VoucherAdminService.ReplaceEligibleUsers(id, req.UserIDs)
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.save_failed")
		return
	}
	response.Success(c, gin.H{"voucher_id": id, "user_ids": userIDs})
}

// GetVoucherUsages 核销记录
func (h *Handler) GetVoucherUsages(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	usages, total, err := h.VoucherAdminService.ListUsages(id, repository.VoucherUsageListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   handlershared.ParseUintQuery(c, "user_id"),
	})
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.voucher_fetch_failed")
		return
	}
	response.SuccessWithPage(c, usages, handlershared.BuildPagination(page, pageSize, total))
}

// GetVoucherStats 单券统计
func (h *Handler) GetVoucherStats(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	stats, err := h.VoucherAdminService.Stats(id)
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.voucher_fetch_failed")
		return
	}
	response.Success(c, stats)
}

// ReconcileVoucher 校正单张券的使用计数
func (h *Handler) ReconcileVoucher(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.VoucherAdminService.Get(id); err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.voucher_fetch_failed")
		return
	}
	h.scheduleReconcile(c, id)
}

// ReconcileAllVouchers 校正全部优惠券的使用计数
func (h *Handler) ReconcileAllVouchers(c *gin.Context) {
	h.scheduleReconcile(c, 0)
}

func (h *Handler) scheduleReconcile(c *gin.Context, voucherID uint) {
	queued, corrected, err := h.VoucherAdminService.ScheduleReconcile(c.Request.Context(), voucherID)
	if err != nil {
		respondWithMappedError(c, err, voucherAdminErrorRules, response.CodeInternal, "error.voucher_reconcile_failed")
		return
	}
	response.Success(c, gin.H{
		"voucher_id": voucherID,
		"queued":     queued,
		"corrected":  corrected,
	})
}
