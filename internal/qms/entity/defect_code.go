package entity

import "time"

// DefectCode 缺陷代码主数据
type DefectCode struct {
	Code     string `json:"code" gorm:"primaryKey;size:32"`
	Name     string `json:"name" gorm:"size:200;not null"`
	Category string `json:"category" gorm:"size:20;not null;index"` // dimension/surface/material/assembly/other
	Severity string `json:"severity" gorm:"size:20;not null"`       // critical/major/minor
	Active   bool   `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DefectCode) TableName() string {
	return "qms_defect_codes"
}

// 缺陷类别
const (
	DefectCategoryDimension = "dimension"
	DefectCategorySurface   = "surface"
	DefectCategoryMaterial  = "material"
	DefectCategoryAssembly  = "assembly"
	DefectCategoryOther     = "other"
)

// 严重度
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// ValidDefectCategories 合法的缺陷类别
var ValidDefectCategories = map[string]bool{
	DefectCategoryDimension: true,
	DefectCategorySurface:   true,
	DefectCategoryMaterial:  true,
	DefectCategoryAssembly:  true,
	DefectCategoryOther:     true,
}

// ValidSeverities 合法的严重度
var ValidSeverities = map[string]bool{
	SeverityCritical: true,
	SeverityMajor:    true,
	SeverityMinor:    true,
}

// DefaultDefectCodes 初始缺陷代码
func DefaultDefectCodes() []DefectCode {
	return []DefectCode{
		{Code: "DIM-001", Name: "尺寸超差", Category: DefectCategoryDimension, Severity: SeverityMajor, Active: true},
		{Code: "DIM-002", Name: "孔位偏移", Category: DefectCategoryDimension, Severity: SeverityMajor, Active: true},
		{Code: "DIM-003", Name: "平面度超差", Category: DefectCategoryDimension, Severity: SeverityMinor, Active: true},
		{Code: "SUR-001", Name: "划伤", Category: DefectCategorySurface, Severity: SeverityMinor, Active: true},
		{Code: "SUR-002", Name: "毛刺", Category: DefectCategorySurface, Severity: SeverityMinor, Active: true},
		{Code: "SUR-003", Name: "锈蚀", Category: DefectCategorySurface, Severity: SeverityMajor, Active: true},
		{Code: "MAT-001", Name: "材料裂纹", Category: DefectCategoryMaterial, Severity: SeverityCritical, Active: true},
		{Code: "MAT-002", Name: "硬度不合格", Category: DefectCategoryMaterial, Severity: SeverityMajor, Active: true},
		{Code: "ASM-001", Name: "漏装零件", Category: DefectCategoryAssembly, Severity: SeverityCritical, Active: true},
		{Code: "ASM-002", Name: "扭矩不足", Category: DefectCategoryAssembly, Severity: SeverityMajor, Active: true},
		{Code: "OTH-001", Name: "其他", Category: DefectCategoryOther, Severity: SeverityMinor, Active: true},
	}
}
