package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	VerificationIssued("email")
	VoucherApplied("", 12.5)
	VoucherApplied("expired", 0)
	ObserveHTTPRequest("POST", "/api/v1/vouchers/apply", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`mercato_verification_issued_total{channel="email"}`,
		`mercato_voucher_apply_total{result="success"}`,
		`mercato_voucher_apply_total{result="expired"}`,
		`mercato_voucher_discount_amount_total`,
		`mercato_http_request_duration_seconds_count{method="POST",route="/api/v1/vouchers/apply",status="200"}`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
