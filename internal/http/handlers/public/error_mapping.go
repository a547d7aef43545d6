package public

import (
	"errors"

	"github.com/mercato-next/internal/http/response"
	"github.com/mercato-next/internal/i18n"
	"github.com/mercato-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	key    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	if respondPasswordPolicyError(c, err) {
		return
	}
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.key, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

// respondPasswordPolicyError 密码策略错误带有格式化参数，单独处理
func respondPasswordPolicyError(c *gin.Context, err error) bool {
	if !errors.Is(err, service.ErrWeakPassword) {
		return false
	}
	var perr interface {
		Key() string
		Args() []interface{}
	}
	if errors.As(err, &perr) {
		msg := i18n.Sprintf(i18n.ResolveLocale(c), perr.Key(), perr.Args()...)
		response.Error(c, response.CodeBadRequest, msg)
		return true
	}
	respondError(c, response.CodeBadRequest, "error.bad_request", nil)
	return true
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var captchaErrorRules = []mappedHandlerError{
	{target: service.ErrCaptchaRequired, code: response.CodeBadRequest, key: "error.captcha_required"},
	{target: service.ErrCaptchaInvalid, code: response.CodeBadRequest, key: "error.captcha_invalid"},
}

var userRegisterErrorRules = []mappedHandlerError{
	{target: service.ErrContactRequired, code: response.CodeBadRequest, key: "error.contact_required"},
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
	{target: service.ErrInvalidPhone, code: response.CodeBadRequest, key: "error.phone_invalid"},
	{target: service.ErrEmailExists, code: response.CodeConflict, key: "error.email_exists"},
	{target: service.ErrPhoneExists, code: response.CodeConflict, key: "error.phone_exists"},
}

var userLoginErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized, key: "error.login_invalid"},
	{target: service.ErrUserDisabled, code: response.CodeUnauthorized, key: "error.user_disabled"},
}

var verificationIssueErrorRules = []mappedHandlerError{
	{target: service.ErrVerificationChannelInvalid, code: response.CodeBadRequest, key: "error.verification_channel_invalid"},
	{target: service.ErrVerificationDestinationMissing, code: response.CodeBadRequest, key: "error.verification_destination_missing"},
	{target: service.ErrVerificationContactInUse, code: response.CodeConflict, key: "error.verification_contact_in_use"},
	{target: service.ErrVerificationTooFrequent, code: response.CodeTooManyRequests, key: "error.verification_too_frequent"},
	{target: service.ErrVerificationCodeNotFound, code: response.CodeNotFound, key: "error.verification_code_not_found"},
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
	{target: service.ErrInvalidPhone, code: response.CodeBadRequest, key: "error.phone_invalid"},
	{target: service.ErrUserDisabled, code: response.CodeUnauthorized, key: "error.user_disabled"},
	{target: service.ErrNotFound, code: response.CodeNotFound, key: "error.user_not_found"},
}

// voucherRedeemErrorRules 核销与试算共用
var voucherRedeemErrorRules = []mappedHandlerError{
	{target: service.ErrVoucherNotFound, code: response.CodeNotFound, key: "error.voucher_not_found"},
	{target: service.ErrVoucherInactive, code: response.CodeBadRequest, key: "error.voucher_inactive"},
	{target: service.ErrVoucherExpired, code: response.CodeBadRequest, key: "error.voucher_expired"},
	{target: service.ErrVoucherMinimumSpendNotMet, code: response.CodeBadRequest, key: "error.voucher_min_spend"},
	{target: service.ErrVoucherGloballyExhausted, code: response.CodeBadRequest, key: "error.voucher_exhausted"},
	{target: service.ErrVoucherPerUserLimitReached, code: response.CodeBadRequest, key: "error.voucher_per_user_limit"},
	{target: service.ErrVoucherNotEligible, code: response.CodeForbidden, key: "error.voucher_not_eligible"},
	{target: service.ErrVoucherNotApplicable, code: response.CodeBadRequest, key: "error.voucher_not_applicable"},
	{target: service.ErrVoucherCartInvalid, code: response.CodeBadRequest, key: "error.voucher_cart_invalid"},
}
