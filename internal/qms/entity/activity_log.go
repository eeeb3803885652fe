package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog QMS操作日志
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_qms_activity_entity"` // run/claim/andon/defect_code
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_qms_activity_entity"`
	EntityCode string `json:"entity_code" gorm:"size:50"`

	Action     string `json:"action" gorm:"size:50;not null"` // create/update/status_change/import等
	FromStatus string `json:"from_status" gorm:"size:30"`
	ToStatus   string `json:"to_status" gorm:"size:30"`

	Content  string         `json:"content" gorm:"type:text"`
	Metadata datatypes.JSON `json:"metadata"`

	OperatorID   string    `json:"operator_id" gorm:"size:32"`
	OperatorName string    `json:"operator_name" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "qms_activity_logs"
}

// 日志实体类型
const (
	EntityTypeRun        = "run"
	EntityTypeClaim      = "claim"
	EntityTypeAndon      = "andon"
	EntityTypeDefectCode = "defect_code"
)

// AllModels 需要迁移的模型
func AllModels() []interface{} {
	return []interface{}{
		&ProductionRun{},
		&DefectRecord{},
		&DefectCode{},
		&ClaimRecord{},
		&EscalationEvent{},
		&ActivityLog{},
	}
}
