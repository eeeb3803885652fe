package entity

import (
	"time"

	"gorm.io/datatypes"
)

// EscalationEvent 安灯告警
type EscalationEvent struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	AlertCode string `json:"alert_code" gorm:"size:32;uniqueIndex;not null"`
	LineID    string `json:"line_id" gorm:"size:50;not null;index:idx_andon_line_status"`
	RunID     string `json:"run_id" gorm:"size:32;index"`

	// 分级
	Level                   int                         `json:"level" gorm:"not null;index:idx_andon_line_status"`
	TriggeredBy             string                      `json:"triggered_by" gorm:"size:30;not null"` // consecutiveDefect/reworkRate/lineStop
	ResponseDeadlineMinutes int                         `json:"response_deadline_minutes"`
	ResponseDeadline        time.Time                   `json:"response_deadline"`
	RequiredActions         datatypes.JSONSlice[string] `json:"required_actions"`

	// 触发时的观测值
	ConsecutiveSameCause int     `json:"consecutive_same_cause"`
	ReworkRatePerHour    float64 `json:"rework_rate_per_hour"`
	LineStopMinutes      float64 `json:"line_stop_minutes"`
	DefectCode           string  `json:"defect_code" gorm:"size:32"`

	// 处理
	Status           string     `json:"status" gorm:"size:20;default:active;index:idx_andon_line_status"` // active/acknowledged/resolved
	AcknowledgedBy   string     `json:"acknowledged_by" gorm:"size:64"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at"`
	ResolvedBy       string     `json:"resolved_by" gorm:"size:64"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	CorrectiveAction string     `json:"corrective_action" gorm:"type:text"`

	// 飞书跟进任务
	FeishuTaskID string `json:"feishu_task_id" gorm:"size:64"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EscalationEvent) TableName() string {
	return "qms_andon_alerts"
}
