package queue

import (
	"encoding/json"

	"github.com/mercato-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskVerificationDispatch 验证码投递任务
	TaskVerificationDispatch = constants.TaskVerificationDispatch
	// TaskVoucherReconcile 优惠券计数对账任务
	TaskVoucherReconcile = constants.TaskVoucherReconcile
)

// VerificationDispatchPayload 验证码投递任务载荷
// 只携带记录 ID，验证码明文不进入队列
type VerificationDispatchPayload struct {
	CodeID uint `json:"code_id"`
}

// VoucherReconcilePayload 对账任务载荷，VoucherID 为 0 表示全部
type VoucherReconcilePayload struct {
	VoucherID uint `json:"voucher_id"`
}

// NewVerificationDispatchTask 创建验证码投递任务
func NewVerificationDispatchTask(payload VerificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVerificationDispatch, body), nil
}

// NewVoucherReconcileTask 创建对账任务
func NewVoucherReconcileTask(payload VoucherReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherReconcile, body), nil
}

// ParseVerificationDispatchPayload 解析验证码投递载荷
func ParseVerificationDispatchPayload(task *asynq.Task) (VerificationDispatchPayload, error) {
	var payload VerificationDispatchPayload
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}

// ParseVoucherReconcilePayload 解析对账载荷
func ParseVoucherReconcilePayload(task *asynq.Task) (VoucherReconcilePayload, error) {
	var payload VoucherReconcilePayload
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
