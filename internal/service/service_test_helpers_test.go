package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/queue"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// setupServiceTestDB 打开独立的内存库并替换全局 DB
// 单连接保证并发用例中的事务串行执行
func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), models.NewGormConfig("silent"))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	prev := models.DB
	models.DB = db
	t.Cleanup(func() {
		models.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

func newServiceTestConfig() *config.Config {
	return &config.Config{
		Verification: config.VerificationConfig{
			Length:                 6,
			ExpireMinutes:          10,
			SendIntervalSeconds:    0,
			MaxAttempts:            5,
			DispatchTimeoutSeconds: 2,
		},
		Voucher: config.VoucherConfig{
			CodeLength:      10,
			MaxBulkQuantity: 5000,
			CodeRetryLimit:  8,
			ApplyRetryLimit: 3,
		},
		JWT:     config.JWTConfig{SecretKey: "admin-test-secret", ExpireHours: 1},
		UserJWT: config.JWTConfig{SecretKey: "user-test-secret", ExpireHours: 1},
		Security: config.SecurityConfig{
			PasswordPolicy: config.PasswordPolicyConfig{MinLength: 8, RequireLetter: true, RequireNumber: true},
		},
	}
}

func createServiceTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		PasswordHash: "hash",
		Status:       constants.UserStatusActive,
	}
	if email != "" {
		user.Email = &email
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

type sentMessage struct {
	channel     string
	destination string
	message     string
}

// fakeDispatcher 记录投递内容，err 非空时模拟投递失败
type fakeDispatcher struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeDispatcher) Send(ctx context.Context, channel, destination, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{channel: channel, destination: destination, message: message})
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeTaskQueue struct {
	mu                sync.Mutex
	enabled           bool
	err               error
	dispatchPayloads  []queue.VerificationDispatchPayload
	reconcilePayloads []queue.VoucherReconcilePayload
}

func (q *fakeTaskQueue) Enabled() bool {
	return q != nil && q.enabled
}

func (q *fakeTaskQueue) EnqueueVerificationDispatch(payload queue.VerificationDispatchPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.dispatchPayloads = append(q.dispatchPayloads, payload)
	return nil
}

func (q *fakeTaskQueue) EnqueueVoucherReconcile(payload queue.VoucherReconcilePayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.reconcilePayloads = append(q.reconcilePayloads, payload)
	return nil
}

var errFakeDelivery = errors.New("provider unavailable")
