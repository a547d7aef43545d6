package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"

	"gorm.io/gorm"
)

func newVerificationServiceForTest(t *testing.T, db *gorm.DB, dispatcher CodeDispatcher, q verificationTaskQueue) (*VerificationService, *repository.GormVerificationCodeRepository) {
	t.Helper()
	codeRepo := repository.NewVerificationCodeRepository(db)
	svc := NewVerificationService(newServiceTestConfig(), codeRepo, repository.NewUserRepository(db), dispatcher, q)
	return svc, codeRepo
}

func TestVerificationIssueAndVerify(t *testing.T) {
	db := setupServiceTestDB(t, "verification_issue")
	user := createServiceTestUser(t, db, "issue@example.com")
	dispatcher := &fakeDispatcher{}
	svc, _ := newVerificationServiceForTest(t, db, dispatcher, nil)

	result, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: "EMAIL"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !result.Delivered || result.DeliveryStatus != constants.DeliveryStatusSent {
		t.Fatalf("unexpected delivery result: %+v", result)
	}
	if len(result.Code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", result.Code)
	}
	if dispatcher.count() != 1 || !strings.Contains(dispatcher.sent[0].message, result.Code) {
		t.Fatalf("code should be delivered, got %+v", dispatcher.sent)
	}
	if dispatcher.sent[0].destination != "issue@example.com" {
		t.Fatalf("unexpected destination: %s", dispatcher.sent[0].destination)
	}

	ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, result.Code)
	if err != nil || !ok {
		t.Fatalf("first verify should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Verify(context.Background(), user.ID, constants.ChannelEmail, result.Code)
	if err != nil || ok {
		t.Fatalf("second verify should fail: ok=%v err=%v", ok, err)
	}

	var reloaded models.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if reloaded.EmailVerifiedAt == nil {
		t.Fatalf("email should be marked verified")
	}
}

func TestVerificationIssueSupersedesPreviousCode(t *testing.T) {
	db := setupServiceTestDB(t, "verification_supersede")
	user := createServiceTestUser(t, db, "supersede@example.com")
	svc, codeRepo := newVerificationServiceForTest(t, db, &fakeDispatcher{}, nil)

	first, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	second, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}

	count, err := codeRepo.CountActive(user.ID, constants.ChannelEmail)
	if err != nil || count != 1 {
		t.Fatalf("expected exactly one active code, got %d err=%v", count, err)
	}
	old, _ := codeRepo.GetByID(first.CodeID)
	if old.UsedAt == nil || old.ConsumeReason != constants.ConsumeReasonSuperseded {
		t.Fatalf("first code should be superseded: %+v", old)
	}

	if first.Code != second.Code {
		ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, first.Code)
		if err != nil || ok {
			t.Fatalf("superseded code should not verify: ok=%v err=%v", ok, err)
		}
	}
	ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, second.Code)
	if err != nil || !ok {
		t.Fatalf("latest code should verify: ok=%v err=%v", ok, err)
	}
}

func TestVerificationConcurrentIssueKeepsSingleActiveCode(t *testing.T) {
	db := setupServiceTestDB(t, "verification_concurrent")
	user := createServiceTestUser(t, db, "concurrent@example.com")
	svc, codeRepo := newVerificationServiceForTest(t, db, &fakeDispatcher{}, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent issue failed: %v", err)
	}

	count, err := codeRepo.CountActive(user.ID, constants.ChannelEmail)
	if err != nil || count != 1 {
		t.Fatalf("expected one active code after concurrent issue, got %d err=%v", count, err)
	}
	var total int64
	db.Model(&models.VerificationCode{}).Where("user_id = ?", user.ID).Count(&total)
	if total != workers {
		t.Fatalf("expected %d audit rows, got %d", workers, total)
	}
}

func TestVerificationExpiredCodeRejected(t *testing.T) {
	db := setupServiceTestDB(t, "verification_expired")
	user := createServiceTestUser(t, db, "expired@example.com")
	svc, _ := newVerificationServiceForTest(t, db, &fakeDispatcher{}, nil)

	result, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := db.Model(&models.VerificationCode{}).Where("id = ?", result.CodeID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("expire code failed: %v", err)
	}

	ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, result.Code)
	if err != nil || ok {
		t.Fatalf("expired code should be rejected: ok=%v err=%v", ok, err)
	}
}

func TestVerificationAttemptLimit(t *testing.T) {
	db := setupServiceTestDB(t, "verification_attempts")
	user := createServiceTestUser(t, db, "attempts@example.com")
	svc, _ := newVerificationServiceForTest(t, db, &fakeDispatcher{}, nil)
	svc.cfg.MaxAttempts = 2

	result, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	wrong := "000000"
	for i := 0; i < 2; i++ {
		ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, wrong)
		if err != nil || ok {
			t.Fatalf("wrong code should fail: ok=%v err=%v", ok, err)
		}
	}
	ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, result.Code)
	if err != nil || ok {
		t.Fatalf("code should be locked after too many attempts: ok=%v err=%v", ok, err)
	}
}

func TestVerificationDeliveryFailureIsNonFatal(t *testing.T) {
	db := setupServiceTestDB(t, "verification_delivery_failed")
	user := createServiceTestUser(t, db, "delivery@example.com")
	svc, codeRepo := newVerificationServiceForTest(t, db, &fakeDispatcher{err: errFakeDelivery}, nil)

	result, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("delivery failure must not fail issue: %v", err)
	}
	if result.Delivered || result.DeliveryStatus != constants.DeliveryStatusFailed {
		t.Fatalf("unexpected delivery result: %+v", result)
	}
	record, _ := codeRepo.GetByID(result.CodeID)
	if record.DeliveryStatus != constants.DeliveryStatusFailed || record.DeliveryError == "" {
		t.Fatalf("delivery failure should be recorded: %+v", record)
	}

	ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, result.Code)
	if err != nil || !ok {
		t.Fatalf("undelivered code should stay valid: ok=%v err=%v", ok, err)
	}
}

func TestVerificationIssueToNewPhone(t *testing.T) {
	db := setupServiceTestDB(t, "verification_phone")
	user := createServiceTestUser(t, db, "phone_owner@example.com")
	other := createServiceTestUser(t, db, "phone_other@example.com")
	taken := "+8613800000001"
	if err := db.Model(&models.User{}).Where("id = ?", other.ID).Update("phone", taken).Error; err != nil {
		t.Fatalf("bind phone failed: %v", err)
	}
	dispatcher := &fakeDispatcher{}
	svc, _ := newVerificationServiceForTest(t, db, dispatcher, nil)

	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelPhone}); !errors.Is(err, ErrVerificationDestinationMissing) {
		t.Fatalf("expected destination missing, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelPhone, Address: taken}); !errors.Is(err, ErrVerificationContactInUse) {
		t.Fatalf("expected contact in use, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: "fax"}); !errors.Is(err, ErrVerificationChannelInvalid) {
		t.Fatalf("expected channel invalid, got %v", err)
	}

	result, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelPhone, Address: "+86 138-0000-0002"})
	if err != nil {
		t.Fatalf("issue to new phone failed: %v", err)
	}
	if result.Destination != "+8613800000002" {
		t.Fatalf("phone should be normalized, got %s", result.Destination)
	}
	ok, err := svc.Verify(context.Background(), user.ID, constants.ChannelPhone, result.Code)
	if err != nil || !ok {
		t.Fatalf("verify phone failed: ok=%v err=%v", ok, err)
	}
	var reloaded models.User
	db.First(&reloaded, user.ID)
	if reloaded.Phone == nil || *reloaded.Phone != "+8613800000002" || reloaded.PhoneVerifiedAt == nil {
		t.Fatalf("phone should be bound and verified: %+v", reloaded)
	}
}

func TestVerificationIssueThrottled(t *testing.T) {
	db := setupServiceTestDB(t, "verification_throttle")
	user := createServiceTestUser(t, db, "throttle@example.com")
	svc, _ := newVerificationServiceForTest(t, db, &fakeDispatcher{}, nil)
	svc.cfg.SendIntervalSeconds = 60

	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail}); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail}); !errors.Is(err, ErrVerificationTooFrequent) {
		t.Fatalf("expected too frequent, got %v", err)
	}
	if _, err := svc.Resend(context.Background(), user.ID, constants.ChannelEmail); !errors.Is(err, ErrVerificationTooFrequent) {
		t.Fatalf("expected resend too frequent, got %v", err)
	}
}

func TestVerificationResendDeliversActiveCode(t *testing.T) {
	db := setupServiceTestDB(t, "verification_resend")
	user := createServiceTestUser(t, db, "resend@example.com")
	dispatcher := &fakeDispatcher{}
	svc, _ := newVerificationServiceForTest(t, db, dispatcher, nil)

	if _, err := svc.Resend(context.Background(), user.ID, constants.ChannelEmail); !errors.Is(err, ErrVerificationCodeNotFound) {
		t.Fatalf("expected code not found, got %v", err)
	}
	issued, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	resent, err := svc.Resend(context.Background(), user.ID, constants.ChannelEmail)
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if resent.CodeID != issued.CodeID || !resent.Delivered {
		t.Fatalf("resend should deliver the same code: %+v", resent)
	}
	if dispatcher.count() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", dispatcher.count())
	}
}

func TestVerificationAsyncDispatchQueued(t *testing.T) {
	db := setupServiceTestDB(t, "verification_async")
	user := createServiceTestUser(t, db, "async@example.com")
	dispatcher := &fakeDispatcher{}
	q := &fakeTaskQueue{enabled: true}
	svc, codeRepo := newVerificationServiceForTest(t, db, dispatcher, q)
	svc.cfg.AsyncDispatch = true

	result, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if result.DeliveryStatus != constants.DeliveryStatusQueued || dispatcher.count() != 0 {
		t.Fatalf("issue should only enqueue: %+v sent=%d", result, dispatcher.count())
	}
	if len(q.dispatchPayloads) != 1 || q.dispatchPayloads[0].CodeID != result.CodeID {
		t.Fatalf("unexpected queued payloads: %+v", q.dispatchPayloads)
	}

	if err := svc.DispatchByID(context.Background(), result.CodeID); err != nil {
		t.Fatalf("dispatch by id failed: %v", err)
	}
	record, _ := codeRepo.GetByID(result.CodeID)
	if record.DeliveryStatus != constants.DeliveryStatusSent || record.SentAt == nil {
		t.Fatalf("record should be marked sent: %+v", record)
	}

	if ok, _ := svc.Verify(context.Background(), user.ID, constants.ChannelEmail, result.Code); !ok {
		t.Fatalf("verify queued code failed")
	}
	if err := svc.DispatchByID(context.Background(), result.CodeID); err != nil {
		t.Fatalf("dispatch of used code should be skipped: %v", err)
	}
	if dispatcher.count() != 1 {
		t.Fatalf("used code must not be delivered again, got %d", dispatcher.count())
	}
}

func TestVerificationRejectsDisabledUser(t *testing.T) {
	db := setupServiceTestDB(t, "verification_disabled")
	user := createServiceTestUser(t, db, "disabled@example.com")
	db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", constants.UserStatusDisabled)
	svc, _ := newVerificationServiceForTest(t, db, &fakeDispatcher{}, nil)

	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: user.ID, Channel: constants.ChannelEmail}); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected user disabled, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), IssueVerificationInput{UserID: 9999, Channel: constants.ChannelEmail}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
