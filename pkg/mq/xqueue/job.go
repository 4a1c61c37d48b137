package xqueue

import (
	"encoding/json"
	"time"

	"github.com/omeyang/xguard/pkg/resilience/xretry"
)

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in-flight"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed-permanently"
)

// Job 队列任务
type Job struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Attempts 已开始的投递次数
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	Backoff      xretry.Backoff `json:"backoff"`
	InitialDelay time.Duration  `json:"initial_delay"`
	MaxDelay     time.Duration  `json:"max_delay"`

	Status    Status `json:"status"`
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// RunAt 最早可出队时间
	RunAt time.Time `json:"run_at"`
	// LeaseUntil 处理中任务的租约到期时间
	LeaseUntil time.Time `json:"lease_until,omitzero"`
}

// Decode 将 Payload 解码到 v
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// retryPolicy 任务自身的退避参数
func (j *Job) retryPolicy() xretry.Policy {
	return xretry.Policy{
		MaxAttempts:  j.MaxAttempts,
		InitialDelay: j.InitialDelay,
		Backoff:      j.Backoff,
		MaxDelay:     j.MaxDelay,
	}
}

// Exhausted 是否已用完尝试次数
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// NextDelay 第 Attempts 次失败后的重试等待
func (j *Job) NextDelay() time.Duration {
	return j.retryPolicy().Delay(j.Attempts)
}

func (j *Job) clone() *Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	return &c
}
