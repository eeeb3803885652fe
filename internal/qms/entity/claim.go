package entity

import "time"

// ClaimRecord 客户索赔记录
type ClaimRecord struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	ClaimNo       string `json:"claim_no" gorm:"size:32;uniqueIndex;not null"`
	ClaimCategory string `json:"claim_category" gorm:"size:20;not null;index"` // automotive/industrial/machining
	Customer      string `json:"customer" gorm:"size:200;not null"`
	PartNumber    string `json:"part_number" gorm:"size:100"`

	// 数量
	DefectQty  int64 `json:"defect_qty" gorm:"not null"`
	ShippedQty int64 `json:"shipped_qty" gorm:"not null"`

	// 8D
	Status           string `json:"status" gorm:"size:30;default:open"` // open/investigating/corrective_action/closed
	Description      string `json:"description" gorm:"type:text"`
	RootCause        string `json:"root_cause" gorm:"type:text"`
	CorrectiveAction string `json:"corrective_action" gorm:"type:text"`

	// 证据
	EvidenceObject string `json:"evidence_object" gorm:"size:500"`
	EvidenceName   string `json:"evidence_name" gorm:"size:200"`
	EvidenceType   string `json:"evidence_type" gorm:"size:100"`

	ClaimDate time.Time  `json:"claim_date" gorm:"not null;index"`
	ClosedAt  *time.Time `json:"closed_at"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ClaimRecord) TableName() string {
	return "qms_claims"
}

// 索赔状态
const (
	ClaimStatusOpen             = "open"
	ClaimStatusInvestigating    = "investigating"
	ClaimStatusCorrectiveAction = "corrective_action"
	ClaimStatusClosed           = "closed"
)

// ValidClaimTransitions 合法的索赔状态流转
var ValidClaimTransitions = map[string][]string{
	ClaimStatusOpen:             {ClaimStatusInvestigating},
	ClaimStatusInvestigating:    {ClaimStatusCorrectiveAction},
	ClaimStatusCorrectiveAction: {ClaimStatusClosed},
}

// ValidClaimCategories 索赔类别（按PPM考核）
var ValidClaimCategories = map[string]bool{
	"automotive": true,
	"industrial": true,
	"machining":  true,
}
