package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/metrics"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/queue"
	"github.com/mercato-next/internal/repository"

	"gorm.io/gorm"
)

const (
	issueRetryLimit      = 3
	defaultMessageFormat = "Your verification code is %s. It expires in %d minutes."
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,20}$`)

// CodeDispatcher 按渠道投递消息
type CodeDispatcher interface {
	Send(ctx context.Context, channel, destination, message string) error
}

type verificationTaskQueue interface {
	Enabled() bool
	EnqueueVerificationDispatch(payload queue.VerificationDispatchPayload) error
}

// VerificationService 一次性验证码签发与校验
type VerificationService struct {
	cfg           config.VerificationConfig
	messageFormat string
	codeRepo      repository.VerificationCodeRepository
	userRepo      repository.UserRepository
	dispatcher    CodeDispatcher
	queueClient   verificationTaskQueue
}

// NewVerificationService 创建验证码服务
func NewVerificationService(
	cfg *config.Config,
	codeRepo repository.VerificationCodeRepository,
	userRepo repository.UserRepository,
	dispatcher CodeDispatcher,
	queueClient verificationTaskQueue,
) *VerificationService {
	s := &VerificationService{
		codeRepo:    codeRepo,
		userRepo:    userRepo,
		dispatcher:  dispatcher,
		queueClient: queueClient,
	}
	if cfg != nil {
		s.cfg = cfg.Verification
		s.messageFormat = cfg.Notify.MessageFormat
	}
	return s
}

// IssueVerificationInput 签发请求
// Address 为空时使用用户已绑定的联系方式
type IssueVerificationInput struct {
	UserID  uint
	Channel string
	Address string
}

// IssueResult 签发结果
type IssueResult struct {
	CodeID         uint      `json:"code_id"`
	Code           string    `json:"-"`
	Channel        string    `json:"channel"`
	Destination    string    `json:"destination"`
	ExpiresAt      time.Time `json:"expires_at"`
	Delivered      bool      `json:"delivered"`
	DeliveryStatus string    `json:"delivery_status"`
}

// Issue 签发新验证码，同时作废该用户该渠道下所有未使用的旧码
// 投递失败不回滚，记录仍然有效
func (s *VerificationService) Issue(ctx context.Context, input IssueVerificationInput) (*IssueResult, error) {
	channel, err := normalizeChannel(input.Channel)
	if err != nil {
		return nil, err
	}
	user, err := s.loadActiveUser(input.UserID)
	if err != nil {
		return nil, err
	}

	destination := user.ContactFor(channel)
	if strings.TrimSpace(input.Address) != "" {
		destination, err = normalizeContact(channel, input.Address)
		if err != nil {
			return nil, err
		}
	}
	if destination == "" {
		return nil, ErrVerificationDestinationMissing
	}
	owner, err := s.userRepo.GetByContact(channel, destination)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.ID != user.ID {
		return nil, ErrVerificationContactInUse
	}

	now := time.Now()
	active, err := s.codeRepo.GetActive(user.ID, channel)
	if err != nil {
		return nil, err
	}
	if active != nil && now.Sub(active.CreatedAt) < s.sendInterval() {
		return nil, ErrVerificationTooFrequent
	}

	record, err := s.createSuperseding(user.ID, channel, destination, now)
	if err != nil {
		return nil, err
	}
	metrics.VerificationIssued(channel)
	logger.Infow("verification_code_issued",
		"user_id", user.ID,
		"channel", channel,
		"code_id", record.ID,
	)

	result := &IssueResult{
		CodeID:         record.ID,
		Code:           record.Code,
		Channel:        channel,
		Destination:    destination,
		ExpiresAt:      record.ExpiresAt,
		DeliveryStatus: constants.DeliveryStatusPending,
	}
	if s.enqueueDispatch(record) {
		result.DeliveryStatus = constants.DeliveryStatusQueued
		return result, nil
	}
	if err := s.deliver(ctx, record); err != nil {
		result.DeliveryStatus = constants.DeliveryStatusFailed
		return result, nil
	}
	result.Delivered = true
	result.DeliveryStatus = constants.DeliveryStatusSent
	return result, nil
}

// createSuperseding 在同一事务内作废旧码并写入新码
// 并发签发撞上部分唯一索引时整体重试
func (s *VerificationService) createSuperseding(userID uint, channel, destination string, now time.Time) (*models.VerificationCode, error) {
	var record *models.VerificationCode
	for attempt := 0; attempt < issueRetryLimit; attempt++ {
		code, err := randomNumericCode(s.codeLength())
		if err != nil {
			return nil, err
		}
		record = &models.VerificationCode{
			UserID:         userID,
			Channel:        channel,
			Destination:    destination,
			Code:           code,
			ExpiresAt:      now.Add(s.ttl()),
			DeliveryStatus: constants.DeliveryStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err = models.DB.Transaction(func(tx *gorm.DB) error {
			repo := s.codeRepo.WithTx(tx)
			if _, err := repo.SupersedeActive(userID, channel, now); err != nil {
				return err
			}
			if err := repo.Create(record); err != nil {
				if repository.IsUniqueViolation(err) {
					return ErrUniqueConstraintCollision
				}
				return err
			}
			return nil
		})
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrUniqueConstraintCollision) {
			return nil, err
		}
		logger.Debugw("verification_issue_collision_retry", "user_id", userID, "channel", channel, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("issue verification code: %w", ErrUniqueConstraintCollision)
}

// Verify 校验验证码
// 所有业务失败统一返回 false，error 仅表示基础设施故障
func (s *VerificationService) Verify(ctx context.Context, userID uint, channel, submitted string) (bool, error) {
	normalized, err := normalizeChannel(channel)
	if err != nil {
		return false, nil
	}
	ok, err := s.verify(userID, normalized, strings.TrimSpace(submitted))
	if err != nil {
		return false, err
	}
	metrics.VerificationVerified(normalized, ok)
	return ok, nil
}

func (s *VerificationService) verify(userID uint, channel, submitted string) (bool, error) {
	record, err := s.codeRepo.GetActive(userID, channel)
	if err != nil {
		return false, err
	}
	now := time.Now()
	if !record.IsUsable(now, s.maxAttempts()) {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(submitted)) != 1 {
		if err := s.codeRepo.IncrementAttempt(record.ID); err != nil {
			logger.Warnw("verification_attempt_increment_failed", "code_id", record.ID, "error", err)
		}
		return false, nil
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		affected, err := s.codeRepo.WithTx(tx).Consume(record.ID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrVerificationAlreadyUsed
		}
		if err := s.userRepo.WithTx(tx).MarkContactVerified(userID, channel, record.Destination, now); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrVerificationContactInUse
			}
			return err
		}
		return nil
	})
	switch {
	case err == nil:
		logger.Infow("verification_code_verified", "user_id", userID, "channel", channel, "code_id", record.ID)
		return true, nil
	case errors.Is(err, ErrVerificationAlreadyUsed), errors.Is(err, ErrVerificationContactInUse):
		logger.Infow("verification_code_rejected", "user_id", userID, "channel", channel, "code_id", record.ID, "reason", err.Error())
		return false, nil
	default:
		return false, err
	}
}

// Resend 重新投递当前有效的验证码
func (s *VerificationService) Resend(ctx context.Context, userID uint, channel string) (*IssueResult, error) {
	normalized, err := normalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	record, err := s.codeRepo.GetActive(userID, normalized)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if !record.IsUsable(now, s.maxAttempts()) {
		return nil, ErrVerificationCodeNotFound
	}
	last := record.CreatedAt
	if record.SentAt != nil && record.SentAt.After(last) {
		last = *record.SentAt
	}
	if now.Sub(last) < s.sendInterval() {
		return nil, ErrVerificationTooFrequent
	}

	result := &IssueResult{
		CodeID:      record.ID,
		Code:        record.Code,
		Channel:     normalized,
		Destination: record.Destination,
		ExpiresAt:   record.ExpiresAt,
	}
	if err := s.deliver(ctx, record); err != nil {
		result.DeliveryStatus = constants.DeliveryStatusFailed
		return result, nil
	}
	result.Delivered = true
	result.DeliveryStatus = constants.DeliveryStatusSent
	return result, nil
}

// DispatchByID 队列消费入口，已使用或已过期的记录直接跳过
func (s *VerificationService) DispatchByID(ctx context.Context, codeID uint) error {
	record, err := s.codeRepo.GetByID(codeID)
	if err != nil {
		return err
	}
	if !record.IsUsable(time.Now(), 0) {
		logger.Debugw("verification_dispatch_skipped", "code_id", codeID)
		return nil
	}
	return s.deliver(ctx, record)
}

func (s *VerificationService) enqueueDispatch(record *models.VerificationCode) bool {
	if !s.cfg.AsyncDispatch || s.queueClient == nil || !s.queueClient.Enabled() {
		return false
	}
	if err := s.queueClient.EnqueueVerificationDispatch(queue.VerificationDispatchPayload{CodeID: record.ID}); err != nil {
		logger.Warnw("verification_dispatch_enqueue_failed", "code_id", record.ID, "error", err)
		return false
	}
	if err := s.codeRepo.UpdateDelivery(record.ID, constants.DeliveryStatusQueued, "", nil); err != nil {
		logger.Warnw("verification_delivery_status_update_failed", "code_id", record.ID, "error", err)
	}
	return true
}

func (s *VerificationService) deliver(ctx context.Context, record *models.VerificationCode) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout())
	defer cancel()

	var err error
	if s.dispatcher == nil {
		err = errors.New("dispatcher not configured")
	} else {
		err = s.dispatcher.Send(ctx, record.Channel, record.Destination, s.buildMessage(record.Code))
	}
	metrics.VerificationDispatched(record.Channel, err == nil)
	if err != nil {
		logger.Warnw("verification_dispatch_failed",
			"code_id", record.ID,
			"channel", record.Channel,
			"error", err,
		)
		if updateErr := s.codeRepo.UpdateDelivery(record.ID, constants.DeliveryStatusFailed, err.Error(), nil); updateErr != nil {
			logger.Warnw("verification_delivery_status_update_failed", "code_id", record.ID, "error", updateErr)
		}
		return fmt.Errorf("%w: %v", ErrVerificationDeliveryFailed, err)
	}
	sentAt := time.Now()
	if updateErr := s.codeRepo.UpdateDelivery(record.ID, constants.DeliveryStatusSent, "", &sentAt); updateErr != nil {
		logger.Warnw("verification_delivery_status_update_failed", "code_id", record.ID, "error", updateErr)
	}
	return nil
}

func (s *VerificationService) buildMessage(code string) string {
	format := strings.TrimSpace(s.messageFormat)
	if !strings.Contains(format, "%s") {
		format = defaultMessageFormat
	}
	if strings.Contains(format, "%d") {
		return fmt.Sprintf(format, code, int(s.ttl().Minutes()))
	}
	return fmt.Sprintf(format, code)
}

func (s *VerificationService) loadActiveUser(userID uint) (*models.User, error) {
	if userID == 0 {
		return nil, ErrNotFound
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if user.Status != constants.UserStatusActive {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func (s *VerificationService) ttl() time.Duration {
	if s.cfg.ExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.ExpireMinutes) * time.Minute
}

func (s *VerificationService) sendInterval() time.Duration {
	if s.cfg.SendIntervalSeconds < 0 {
		return 0
	}
	return time.Duration(s.cfg.SendIntervalSeconds) * time.Second
}

func (s *VerificationService) maxAttempts() int {
	if s.cfg.MaxAttempts <= 0 {
		return 5
	}
	return s.cfg.MaxAttempts
}

func (s *VerificationService) codeLength() int {
	if s.cfg.Length < 4 || s.cfg.Length > 10 {
		return 6
	}
	return s.cfg.Length
}

func (s *VerificationService) dispatchTimeout() time.Duration {
	if s.cfg.DispatchTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.cfg.DispatchTimeoutSeconds) * time.Second
}

func normalizeChannel(channel string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case constants.ChannelPhone:
		return constants.ChannelPhone, nil
	case constants.ChannelEmail:
		return constants.ChannelEmail, nil
	default:
		return "", ErrVerificationChannelInvalid
	}
}

func normalizeContact(channel, value string) (string, error) {
	switch channel {
	case constants.ChannelEmail:
		return normalizeEmail(value)
	case constants.ChannelPhone:
		return normalizePhone(value)
	default:
		return "", ErrVerificationChannelInvalid
	}
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func normalizePhone(phone string) (string, error) {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	normalized := replacer.Replace(strings.TrimSpace(phone))
	if !phonePattern.MatchString(normalized) {
		return "", ErrInvalidPhone
	}
	return normalized, nil
}
