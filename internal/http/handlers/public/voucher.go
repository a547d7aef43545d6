package public

import (
	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/service"

	"github.com/gin-gonic/gin"
)

// VoucherCartRequest 优惠券核销/试算请求
type VoucherCartRequest struct {
	Code    string             `json:"code" binding:"required"`
	Items   []service.CartLine `json:"items" binding:"required"`
	OrderID *uint              `json:"order_id"`
}

func (r VoucherCartRequest) toCart() service.VoucherCart {
	return service.VoucherCart{Lines: r.Items, OrderID: r.OrderID}
}

// ApplyVoucher 核销优惠券
func (h *Handler) ApplyVoucher(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req VoucherCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.VoucherService.Apply(c.Request.Context(), req.Code, userID, req.toCart())
	if err != nil {
		respondWithMappedError(c, err, voucherRedeemErrorRules, response.CodeInternal, "error.voucher_apply_failed")
		return
	}
	response.Success(c, result)
}

// PreviewVoucher 试算优惠金额，不写入核销记录
func (h *Handler) PreviewVoucher(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req VoucherCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	quote, err := h.VoucherService.Preview(c.Request.Context(), req.Code, userID, req.toCart())
	if err != nil {
		respondWithMappedError(c, err, voucherRedeemErrorRules, response.CodeInternal, "error.voucher_apply_failed")
		return
	}
	response.Success(c, quote)
}

// ListAvailableVouchers 当前用户可用的优惠券
func (h *Handler) ListAvailableVouchers(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	vouchers, err := h.VoucherService.ListAvailable(c.Request.Context(), userID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.voucher_fetch_failed", err)
		return
	}
	response.Success(c, vouchers)
}
