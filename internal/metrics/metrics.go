package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mercato"

var (
	verificationIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "issued_total",
		Help:      "Verification codes issued, by channel.",
	}, []string{"channel"})

	verificationDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "dispatch_total",
		Help:      "Verification code deliveries, by channel and result.",
	}, []string{"channel", "result"})

	verificationVerify = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "verify_total",
		Help:      "Verification attempts, by channel and result.",
	}, []string{"channel", "result"})

	voucherApply = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "voucher",
		Name:      "apply_total",
		Help:      "Voucher redemption attempts, by result.",
	}, []string{"result"})

	voucherDiscount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "voucher",
		Name:      "discount_amount_total",
		Help:      "Sum of discounts granted by successful redemptions.",
	})

	voucherReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "voucher",
		Name:      "reconcile_corrections_total",
		Help:      "Usage counters corrected by reconciliation.",
	})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by method, route template and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler 暴露 Prometheus 指标
func Handler() http.Handler {
	return promhttp.Handler()
}

// VerificationIssued 记录一次验证码签发
func VerificationIssued(channel string) {
	verificationIssued.WithLabelValues(channel).Inc()
}

// VerificationDispatched 记录一次投递结果
func VerificationDispatched(channel string, ok bool) {
	verificationDispatch.WithLabelValues(channel, resultLabel(ok)).Inc()
}

// VerificationVerified 记录一次校验结果
func VerificationVerified(channel string, ok bool) {
	verificationVerify.WithLabelValues(channel, resultLabel(ok)).Inc()
}

// VoucherApplied 记录一次核销，reason 为空表示成功
func VoucherApplied(reason string, discount float64) {
	if reason == "" {
		voucherApply.WithLabelValues("success").Inc()
		if discount > 0 {
			voucherDiscount.Add(discount)
		}
		return
	}
	voucherApply.WithLabelValues(reason).Inc()
}

// VoucherReconciled 记录一次计数修正
func VoucherReconciled() {
	voucherReconciled.Inc()
}

// ObserveHTTPRequest 记录一次 HTTP 请求耗时，route 取路由模板避免高基数
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
