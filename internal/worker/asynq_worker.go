package worker

import (
	"context"
	"errors"

	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/provider"
	"github.com/mercato-next/internal/queue"
	"github.com/mercato-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskVerificationDispatch, c.handleVerificationDispatch)
	mux.HandleFunc(queue.TaskVoucherReconcile, c.handleVoucherReconcile)
}

func (c *Consumer) handleVerificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_verification_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseVerificationDispatchPayload(task)
	if err != nil {
		logger.Warnw("worker_verification_dispatch_unmarshal_failed", "error", err)
		return err
	}
	if payload.CodeID == 0 {
		logger.Debugw("worker_verification_dispatch_skip_invalid_payload", "code_id", payload.CodeID)
		return nil
	}
	if c.VerificationService == nil {
		logger.Warnw("worker_verification_dispatch_skip_service_nil", "code_id", payload.CodeID)
		return nil
	}
	// 投递失败已记录在验证码记录上，返回错误交给队列重试
	if err := c.VerificationService.DispatchByID(ctx, payload.CodeID); err != nil {
		logger.Warnw("worker_verification_dispatch_failed", "code_id", payload.CodeID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleVoucherReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_voucher_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseVoucherReconcilePayload(task)
	if err != nil {
		logger.Warnw("worker_voucher_reconcile_unmarshal_failed", "error", err)
		return err
	}
	if c.VoucherAdminService == nil {
		logger.Warnw("worker_voucher_reconcile_skip_service_nil", "voucher_id", payload.VoucherID)
		return nil
	}
	if payload.VoucherID == 0 {
		corrected, err := c.VoucherAdminService.ReconcileAll(ctx)
		if err != nil {
			logger.Warnw("worker_voucher_reconcile_all_failed", "error", err)
			return err
		}
		logger.Infow("worker_voucher_reconcile_all_done", "corrected", corrected)
		return nil
	}
	if _, err := c.VoucherAdminService.Reconcile(ctx, payload.VoucherID); err != nil {
		if errors.Is(err, service.ErrVoucherNotFound) {
			logger.Debugw("worker_voucher_reconcile_skip_not_found", "voucher_id", payload.VoucherID)
			return nil
		}
		logger.Warnw("worker_voucher_reconcile_failed", "voucher_id", payload.VoucherID, "error", err)
		return err
	}
	return nil
}
