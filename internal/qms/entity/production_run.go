package entity

import (
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
)

// ProductionRun 生产批次记录
type ProductionRun struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	RunCode    string `json:"run_code" gorm:"size:32;uniqueIndex;not null"`
	LineID     string `json:"line_id" gorm:"size:50;not null;index:idx_run_line_time"`
	PartNumber string `json:"part_number" gorm:"size:100;index"`
	LotNumber  string `json:"lot_number" gorm:"size:100"`
	Shift      string `json:"shift" gorm:"size:5;not null"` // A/B
	Operator   string `json:"operator" gorm:"size:100"`

	// 数量
	TotalProduced    int `json:"total_produced" gorm:"not null"`
	GoodQty          int `json:"good_qty" gorm:"not null;default:0"`
	ReworkQty        int `json:"rework_qty" gorm:"not null;default:0"`
	ScrapQty         int `json:"scrap_qty" gorm:"not null;default:0"`
	ReworkGoodQty    int `json:"rework_good_qty" gorm:"not null;default:0"`
	ReworkScrapQty   int `json:"rework_scrap_qty" gorm:"not null;default:0"`
	ReworkPendingQty int `json:"rework_pending_qty" gorm:"not null;default:0"`

	LineStopMinutes float64 `json:"line_stop_minutes" gorm:"default:0"`

	ProducedAt time.Time `json:"produced_at" gorm:"not null;index:idx_run_line_time"`
	Notes      string    `json:"notes" gorm:"type:text"`

	Defects []DefectRecord `json:"defects,omitempty" gorm:"foreignKey:RunID"`

	// 乐观锁，每次重写批次 +1
	Version int `json:"version" gorm:"not null;default:0"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProductionRun) TableName() string {
	return "qms_production_runs"
}

// 班次
const (
	ShiftA = "A"
	ShiftB = "B"
)

// ValidShift 班次是否合法
func ValidShift(s string) bool {
	return s == ShiftA || s == ShiftB
}

// ApplyDisposition 写入平衡后的数量
func (r *ProductionRun) ApplyDisposition(d engine.Disposition) {
	r.TotalProduced = d.TotalProduced
	r.GoodQty = d.GoodQty
	r.ReworkQty = d.ReworkQty
	r.ScrapQty = d.ScrapQty
	r.ReworkGoodQty = d.ReworkGoodQty
	r.ReworkScrapQty = d.ReworkScrapQty
	r.ReworkPendingQty = d.ReworkPendingQty
}

// Disposition 当前数量快照
func (r *ProductionRun) Disposition() engine.Disposition {
	return engine.Disposition{
		TotalProduced:    r.TotalProduced,
		GoodQty:          r.GoodQty,
		ReworkQty:        r.ReworkQty,
		ScrapQty:         r.ScrapQty,
		ReworkGoodQty:    r.ReworkGoodQty,
		ReworkScrapQty:   r.ReworkScrapQty,
		ReworkPendingQty: r.ReworkPendingQty,
	}
}

// DefectRecord 缺陷明细
type DefectRecord struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	RunID        string `json:"run_id" gorm:"size:32;not null;index"`
	LineNo       int    `json:"line_no" gorm:"not null;default:0"`
	DefectCode   string `json:"defect_code" gorm:"size:32;not null;index"`
	DefectType   string `json:"defect_type" gorm:"size:10;not null"` // rework/scrap
	Quantity     int    `json:"quantity" gorm:"not null"`
	ReworkResult string `json:"rework_result" gorm:"size:10"` // pending/good/scrap，仅返工
	Measurement  string `json:"measurement" gorm:"size:50"`
	SpecValue    string `json:"spec_value" gorm:"size:50"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DefectRecord) TableName() string {
	return "qms_defect_records"
}

// Item 转换为核算明细
func (d DefectRecord) Item() engine.DefectItem {
	return engine.DefectItem{
		DefectCode:   d.DefectCode,
		DefectType:   engine.DefectType(d.DefectType),
		Quantity:     d.Quantity,
		ReworkResult: engine.ReworkResult(d.ReworkResult),
		Measurement:  d.Measurement,
		SpecValue:    d.SpecValue,
	}
}

// DefectRecordFromItem 由核算明细构造记录
func DefectRecordFromItem(runID string, it engine.DefectItem) DefectRecord {
	return DefectRecord{
		RunID:        runID,
		DefectCode:   it.DefectCode,
		DefectType:   string(it.DefectType),
		Quantity:     it.Quantity,
		ReworkResult: string(it.ReworkResult),
		Measurement:  it.Measurement,
		SpecValue:    it.SpecValue,
	}
}
