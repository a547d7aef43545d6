package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorHelpersAttachRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name  string
		write func(c *gin.Context)
		code  int
	}{
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "login required") }, CodeUnauthorized},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "denied") }, CodeForbidden},
		{"error", func(c *gin.Context) { Error(c, CodeConflict, "conflict") }, CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Set("request_id", "req-1")
			tc.write(c)

			if w.Code != http.StatusOK {
				t.Fatalf("http status want 200 got %d", w.Code)
			}
			var resp struct {
				StatusCode int               `json:"status_code"`
				Data       map[string]string `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if resp.StatusCode != tc.code || resp.Data["request_id"] != "req-1" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestSuccessWithPageKeepsPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	SuccessWithPage(c, []int{1, 2}, Pagination{Page: 2, PageSize: 2, Total: 5, TotalPage: 3})

	var resp PageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.StatusCode != 0 || resp.Pagination.TotalPage != 3 || resp.Pagination.Page != 2 {
		t.Fatalf("unexpected page response: %+v", resp)
	}
}
