package constants

// 验证码渠道
const (
	ChannelPhone = "phone"
	ChannelEmail = "email"
)

// 验证码失效原因
const (
	ConsumeReasonVerified   = "verified"
	ConsumeReasonSuperseded = "superseded"
)

// 验证码投递状态
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusQueued  = "queued"
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
)

// 优惠类型
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// 领取资格类型
const (
	QualificationManual    = "manual"
	QualificationAutomatic = "automatic"
	QualificationTargeted  = "targeted"
)

// 用户状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 通知渠道实现
const (
	NotifyProviderLog    = "log"
	NotifyProviderSMTP   = "smtp"
	NotifyProviderTwilio = "twilio"
	NotifyProviderSNS    = "sns"
)

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型
const (
	TaskVerificationDispatch = "verification:dispatch"
	TaskVoucherReconcile     = "voucher:reconcile"
)

// 验证码场景
const (
	CaptchaSceneLogin     = "login"
	CaptchaSceneIssueCode = "issue_code"
)
