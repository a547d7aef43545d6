package service

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user disabled")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPhone       = errors.New("invalid phone")
	ErrContactRequired    = errors.New("email or phone required")
	ErrEmailExists        = errors.New("email already exists")
	ErrPhoneExists        = errors.New("phone already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrCaptchaRequired    = errors.New("captcha required")
	ErrCaptchaInvalid     = errors.New("captcha invalid")
)

// 验证码
var (
	ErrVerificationChannelInvalid     = errors.New("verification channel invalid")
	ErrVerificationDestinationMissing = errors.New("verification destination missing")
	ErrVerificationContactInUse       = errors.New("verification contact in use")
	ErrVerificationTooFrequent        = errors.New("verification code requested too frequently")
	ErrVerificationCodeNotFound       = errors.New("verification code not found")
	ErrVerificationAlreadyUsed        = errors.New("verification code already used")
	ErrVerificationDeliveryFailed     = errors.New("verification code delivery failed")
	// ErrUniqueConstraintCollision 并发写入触发唯一约束，仅在服务内部重试
	ErrUniqueConstraintCollision = errors.New("unique constraint collision")
)

// 优惠券
var (
	ErrVoucherNotFound            = errors.New("voucher not found")
	ErrVoucherInactive            = errors.New("voucher inactive")
	ErrVoucherExpired             = errors.New("voucher expired")
	ErrVoucherMinimumSpendNotMet  = errors.New("voucher minimum spend not met")
	ErrVoucherGloballyExhausted   = errors.New("voucher globally exhausted")
	ErrVoucherPerUserLimitReached = errors.New("voucher per-user limit reached")
	ErrVoucherNotEligible         = errors.New("voucher not eligible")
	ErrVoucherNotApplicable       = errors.New("voucher not applicable to cart")
	ErrVoucherCartInvalid         = errors.New("voucher cart invalid")
	ErrVoucherInvalid             = errors.New("voucher invalid")
	ErrVoucherCodeExists          = errors.New("voucher code exists")
	ErrVoucherBulkQuantityInvalid = errors.New("voucher bulk quantity invalid")
	ErrVoucherCodeSpaceExhausted  = errors.New("voucher code space exhausted")
	ErrVoucherScopeInvalid        = errors.New("voucher scope invalid")
	ErrVoucherUsersInvalid        = errors.New("voucher eligible users invalid")
)

// 商品目录
var (
	ErrCategoryExists   = errors.New("category slug exists")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryInvalid  = errors.New("category invalid")
	ErrProductExists    = errors.New("product slug exists")
	ErrProductInvalid   = errors.New("product invalid")
)
