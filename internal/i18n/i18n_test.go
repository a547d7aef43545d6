package i18n

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestResolveLocale(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{name: "default", url: "/", want: LocaleZhCN},
		{name: "accept_language_en", url: "/", header: "en-GB,en;q=0.9", want: LocaleEnUS},
		{name: "skip_unknown", url: "/", header: "fr-FR, zh;q=0.5", want: LocaleZhCN},
		{name: "query_wins", url: "/?lang=en_US", header: "zh-CN", want: LocaleEnUS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", tc.url, nil)
			if tc.header != "" {
				c.Request.Header.Set("Accept-Language", tc.header)
			}
			if got := ResolveLocale(c); got != tc.want {
				t.Fatalf("want %s got %s", tc.want, got)
			}
		})
	}
}

func TestTranslateFallback(t *testing.T) {
	if got := T(LocaleEnUS, "error.voucher_expired"); got != "Voucher has expired" {
		t.Fatalf("unexpected en message: %s", got)
	}
	if got := T("ja-JP", "error.voucher_expired"); got != zhCN["error.voucher_expired"] {
		t.Fatalf("unknown locale should fall back to default, got %s", got)
	}
	if got := T(LocaleEnUS, "error.unknown_key"); got != "error.unknown_key" {
		t.Fatalf("missing key should return key, got %s", got)
	}
	if got := Sprintf(LocaleEnUS, "error.password_min_length", 8); got != "Password must be at least 8 characters" {
		t.Fatalf("unexpected formatted message: %s", got)
	}
}
