package i18n

var zhCN = map[string]string{
	"error.bad_request":               "请求参数错误",
	"error.unauthorized":              "未登录或登录已失效",
	"error.forbidden":                 "无权限访问",
	"error.not_found":                 "资源不存在",
	"error.internal":                  "服务器内部错误",
	"error.too_many_requests":         "请求过于频繁，请稍后再试",
	"error.rate_limited":              "请求过于频繁，请 %d 秒后再试",
	"error.rate_limit_unavailable":    "限流服务不可用",
	"error.authz_fetch_failed":        "权限信息获取失败",
	"error.captcha_generate_failed":   "验证码生成失败",
	"error.captcha_unavailable":       "图形验证码服务不可用",
	"error.category_fetch_failed":     "分类获取失败",
	"error.category_invalid":          "分类参数无效",
	"error.login_failed":              "登录失败",
	"error.phone_invalid":             "手机号格式不正确",
	"error.product_fetch_failed":      "商品获取失败",
	"error.product_invalid":           "商品参数无效",
	"error.register_failed":           "注册失败",
	"error.save_failed":               "保存失败",
	"error.user_fetch_failed":         "用户信息获取失败",
	"error.verification_issue_failed": "验证码发送失败",
	"error.voucher_apply_failed":      "优惠券核销失败",
	"error.voucher_fetch_failed":      "优惠券获取失败",
	"error.voucher_reconcile_failed":  "优惠券用量校准失败",
	"error.invalid_id":                "ID 无效",

	"error.jwt_secret_missing":  "服务端未配置 JWT 密钥",
	"error.auth_header_missing": "缺少认证信息",
	"error.auth_header_invalid": "认证信息格式错误",
	"error.token_invalid":       "Token 无效或已过期",
	"error.token_revoked":       "登录状态已失效，请重新登录",
	"error.user_id_invalid":     "用户 ID 无效",
	"error.user_id_type":        "用户 ID 类型错误",
	"error.admin_id_invalid":    "管理员 ID 无效",
	"error.admin_id_type":       "管理员 ID 类型错误",

	"error.login_invalid":           "账号或密码错误",
	"error.user_disabled":           "账号已被禁用",
	"error.user_not_found":          "用户不存在",
	"error.contact_required":        "邮箱与手机号至少填写一项",
	"error.email_invalid":           "邮箱格式错误",
	"error.email_exists":            "邮箱已被注册",
	"error.phone_exists":            "手机号已被注册",
	"error.password_min_length":     "密码长度不能少于 %d 位",
	"error.password_require_letter": "密码必须包含字母",
	"error.password_require_number": "密码必须包含数字",
	"error.captcha_required":        "请输入图形验证码",
	"error.captcha_invalid":         "图形验证码错误",

	"error.verification_channel_invalid":     "不支持的验证渠道",
	"error.verification_destination_missing": "未设置该渠道的联系方式",
	"error.verification_contact_in_use":      "该联系方式已被其他账号使用",
	"error.verification_too_frequent":        "发送过于频繁，请稍后再试",
	"error.verification_code_not_found":      "验证码不存在或已失效",
	"error.verification_failed":              "验证码错误或已失效",

	"error.voucher_not_found":            "优惠券不存在",
	"error.voucher_inactive":             "优惠券未启用",
	"error.voucher_expired":              "优惠券已过期",
	"error.voucher_min_spend":            "未达到优惠券使用门槛",
	"error.voucher_exhausted":            "优惠券已被领完",
	"error.voucher_per_user_limit":       "已达到该优惠券的使用次数上限",
	"error.voucher_not_eligible":         "当前账号不可使用该优惠券",
	"error.voucher_not_applicable":       "购物车中没有适用该优惠券的商品",
	"error.voucher_cart_invalid":         "购物车商品无效",
	"error.voucher_invalid":              "优惠券参数错误",
	"error.voucher_code_exists":          "优惠码已存在",
	"error.voucher_bulk_quantity":        "批量生成数量需在 1 到 %d 之间",
	"error.voucher_code_space_exhausted": "无法生成足够的唯一优惠码，请调整前缀或长度",
	"error.voucher_scope_invalid":        "适用分类或商品不存在",
	"error.voucher_users_invalid":        "定向用户不存在",

	"error.category_exists":    "分类标识已存在",
	"error.category_not_found": "分类不存在",
	"error.product_exists":     "商品标识已存在",
	"error.product_not_found":  "商品不存在",
	"error.role_invalid":       "角色无效",
	"error.admin_not_found":    "管理员不存在",
}

var enUS = map[string]string{
	"error.bad_request":               "Invalid request parameters",
	"error.unauthorized":              "Not signed in or session expired",
	"error.forbidden":                 "Access denied",
	"error.not_found":                 "Resource not found",
	"error.internal":                  "Internal server error",
	"error.too_many_requests":         "Too many requests, please try again later",
	"error.rate_limited":              "Too many requests, please retry in %d seconds",
	"error.rate_limit_unavailable":    "Rate limiter is unavailable",
	"error.authz_fetch_failed":        "Failed to fetch authorization data",
	"error.captcha_generate_failed":   "Failed to generate captcha",
	"error.captcha_unavailable":       "Captcha service is unavailable",
	"error.category_fetch_failed":     "Failed to fetch categories",
	"error.category_invalid":          "Invalid category",
	"error.login_failed":              "Login failed",
	"error.phone_invalid":             "Invalid phone number",
	"error.product_fetch_failed":      "Failed to fetch products",
	"error.product_invalid":           "Invalid product",
	"error.register_failed":           "Registration failed",
	"error.save_failed":               "Failed to save",
	"error.user_fetch_failed":         "Failed to fetch user",
	"error.verification_issue_failed": "Failed to send verification code",
	"error.voucher_apply_failed":      "Failed to apply voucher",
	"error.voucher_fetch_failed":      "Failed to fetch vouchers",
	"error.voucher_reconcile_failed":  "Failed to reconcile voucher usage",
	"error.invalid_id":                "Invalid ID",

	"error.jwt_secret_missing":  "JWT secret is not configured",
	"error.auth_header_missing": "Missing authorization header",
	"error.auth_header_invalid": "Malformed authorization header",
	"error.token_invalid":       "Token is invalid or expired",
	"error.token_revoked":       "Session has been revoked, please sign in again",
	"error.user_id_invalid":     "Invalid user ID",
	"error.user_id_type":        "Unexpected user ID type",
	"error.admin_id_invalid":    "Invalid admin ID",
	"error.admin_id_type":       "Unexpected admin ID type",

	"error.login_invalid":           "Incorrect account or password",
	"error.user_disabled":           "Account is disabled",
	"error.user_not_found":          "User not found",
	"error.contact_required":        "Email or phone number is required",
	"error.email_invalid":           "Invalid email address",
	"error.email_exists":            "Email is already registered",
	"error.phone_exists":            "Phone number is already registered",
	"error.password_min_length":     "Password must be at least %d characters",
	"error.password_require_letter": "Password must contain a letter",
	"error.password_require_number": "Password must contain a number",
	"error.captcha_required":        "Captcha is required",
	"error.captcha_invalid":         "Captcha is incorrect",

	"error.verification_channel_invalid":     "Unsupported verification channel",
	"error.verification_destination_missing": "No contact is set for this channel",
	"error.verification_contact_in_use":      "This contact is used by another account",
	"error.verification_too_frequent":        "Codes are sent too frequently, please wait",
	"error.verification_code_not_found":      "No active verification code",
	"error.verification_failed":              "Verification code is incorrect or expired",

	"error.voucher_not_found":            "Voucher not found",
	"error.voucher_inactive":             "Voucher is not active",
	"error.voucher_expired":              "Voucher has expired",
	"error.voucher_min_spend":            "Minimum spend for this voucher is not met",
	"error.voucher_exhausted":            "Voucher has been fully redeemed",
	"error.voucher_per_user_limit":       "You have reached the usage limit for this voucher",
	"error.voucher_not_eligible":         "This account is not eligible for the voucher",
	"error.voucher_not_applicable":       "No items in the cart qualify for this voucher",
	"error.voucher_cart_invalid":         "Cart contains invalid items",
	"error.voucher_invalid":              "Invalid voucher parameters",
	"error.voucher_code_exists":          "Voucher code already exists",
	"error.voucher_bulk_quantity":        "Bulk quantity must be between 1 and %d",
	"error.voucher_code_space_exhausted": "Could not generate enough unique codes, adjust prefix or length",
	"error.voucher_scope_invalid":        "Scoped category or product does not exist",
	"error.voucher_users_invalid":        "Targeted user does not exist",

	"error.category_exists":    "Category slug already exists",
	"error.category_not_found": "Category not found",
	"error.product_exists":     "Product slug already exists",
	"error.product_not_found":  "Product not found",
	"error.role_invalid":       "Invalid role",
	"error.admin_not_found":    "Admin not found",
}
