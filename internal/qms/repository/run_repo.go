package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"gorm.io/gorm"
)

// RunRepository 生产批次仓库
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RunFilter 批次查询条件
type RunFilter struct {
	LineID     string
	Shift      string
	PartNumber string
	From       *time.Time
	To         *time.Time
}

func (f RunFilter) apply(query *gorm.DB) *gorm.DB {
	if f.LineID != "" {
		query = query.Where("line_id = ?", f.LineID)
	}
	if f.Shift != "" {
		query = query.Where("shift = ?", f.Shift)
	}
	if f.PartNumber != "" {
		query = query.Where("part_number = ?", f.PartNumber)
	}
	if f.From != nil {
		query = query.Where("produced_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("produced_at < ?", *f.To)
	}
	return query
}

// FindAll 查询批次列表
func (r *RunRepository) FindAll(ctx context.Context, page, pageSize int, filter RunFilter) ([]entity.ProductionRun, int64, error) {
	var items []entity.ProductionRun
	var total int64

	query := filter.apply(r.db.WithContext(ctx).Model(&entity.ProductionRun{}))

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("produced_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 查询批次及缺陷明细
func (r *RunRepository) FindByID(ctx context.Context, id string) (*entity.ProductionRun, error) {
	var run entity.ProductionRun
	err := r.db.WithContext(ctx).
		Preload("Defects", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC, id ASC") }).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindDefectByID 查询缺陷明细
func (r *RunRepository) FindDefectByID(ctx context.Context, id string) (*entity.DefectRecord, error) {
	var d entity.DefectRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// CreateWithDefects 在同一事务中写入批次与缺陷明细
func (r *RunRepository) CreateWithDefects(ctx context.Context, run *entity.ProductionRun, defects []entity.DefectRecord) error {
	if run.ID == "" {
		run.ID = newID()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Defects").Create(run).Error; err != nil {
			return err
		}
		return insertDefects(tx, run, defects)
	})
}

// ReplaceWithDefects 重写批次数量并整体替换缺陷明细。
// 以 run.Version 做乐观锁，读取后被他人改写时返回 ErrConcurrentUpdate
func (r *RunRepository) ReplaceWithDefects(ctx context.Context, run *entity.ProductionRun, defects []entity.DefectRecord) error {
	expected := run.Version
	run.Version = expected + 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(run).Where("version = ?", expected).Select(runUpdateColumns).Updates(run)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&entity.ProductionRun{}).Where("id = ?", run.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrConcurrentUpdate
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&entity.DefectRecord{}).Error; err != nil {
			return err
		}
		return insertDefects(tx, run, defects)
	})
	if err != nil {
		run.Version = expected
	}
	return err
}

var runUpdateColumns = []string{
	"line_id", "part_number", "lot_number", "shift", "operator",
	"total_produced", "good_qty", "rework_qty", "scrap_qty",
	"rework_good_qty", "rework_scrap_qty", "rework_pending_qty",
	"line_stop_minutes", "produced_at", "notes", "updated_at", "version",
}

func insertDefects(tx *gorm.DB, run *entity.ProductionRun, defects []entity.DefectRecord) error {
	for i := range defects {
		if defects[i].ID == "" {
			defects[i].ID = newID()
		}
		defects[i].RunID = run.ID
		defects[i].LineNo = i + 1
	}
	if len(defects) > 0 {
		if err := tx.Create(&defects).Error; err != nil {
			return err
		}
	}
	run.Defects = defects
	return nil
}

// Delete 删除批次及缺陷明细
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&entity.DefectRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&entity.ProductionRun{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// RecentByLine 产线最近的批次（含缺陷），按生产时间倒序
func (r *RunRepository) RecentByLine(ctx context.Context, lineID string, before time.Time, limit int) ([]entity.ProductionRun, error) {
	var runs []entity.ProductionRun
	err := r.db.WithContext(ctx).
		Preload("Defects", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("line_id = ? AND produced_at <= ?", lineID, before).
		Order("produced_at DESC, created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// FindBetween 查询时间范围内的批次
func (r *RunRepository) FindBetween(ctx context.Context, filter RunFilter) ([]entity.ProductionRun, error) {
	var runs []entity.ProductionRun
	err := filter.apply(r.db.WithContext(ctx).Model(&entity.ProductionRun{})).
		Order("produced_at ASC").
		Find(&runs).Error
	return runs, err
}

// RunSummary 批次数量汇总
type RunSummary struct {
	Runs           int64 `json:"runs"`
	TotalProduced  int64 `json:"total_produced"`
	GoodQty        int64 `json:"good_qty"`
	ReworkQty      int64 `json:"rework_qty"`
	ScrapQty       int64 `json:"scrap_qty"`
	ReworkGoodQty  int64 `json:"rework_good_qty"`
	ReworkScrapQty int64 `json:"rework_scrap_qty"`
}

// Summary 汇总范围内的数量
func (r *RunRepository) Summary(ctx context.Context, filter RunFilter) (*RunSummary, error) {
	var s RunSummary
	err := filter.apply(r.db.WithContext(ctx).Model(&entity.ProductionRun{})).
		Select(`COUNT(*) AS runs,
			COALESCE(SUM(total_produced), 0) AS total_produced,
			COALESCE(SUM(good_qty), 0) AS good_qty,
			COALESCE(SUM(rework_qty), 0) AS rework_qty,
			COALESCE(SUM(scrap_qty), 0) AS scrap_qty,
			COALESCE(SUM(rework_good_qty), 0) AS rework_good_qty,
			COALESCE(SUM(rework_scrap_qty), 0) AS rework_scrap_qty`).
		Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DefectTotals 按缺陷代码汇总数量，用于柏拉图
func (r *RunRepository) DefectTotals(ctx context.Context, filter RunFilter, defectType string) ([]engine.ParetoRecord, error) {
	query := r.db.WithContext(ctx).
		Table("qms_defect_records AS d").
		Joins("JOIN qms_production_runs AS r ON r.id = d.run_id").
		Joins("LEFT JOIN qms_defect_codes AS c ON c.code = d.defect_code").
		Select("d.defect_code AS code, COALESCE(c.category, ?) AS category, SUM(d.quantity) AS quantity", entity.DefectCategoryOther).
		Group("d.defect_code, c.category")

	if filter.LineID != "" {
		query = query.Where("r.line_id = ?", filter.LineID)
	}
	if filter.Shift != "" {
		query = query.Where("r.shift = ?", filter.Shift)
	}
	if filter.PartNumber != "" {
		query = query.Where("r.part_number = ?", filter.PartNumber)
	}
	if filter.From != nil {
		query = query.Where("r.produced_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("r.produced_at < ?", *filter.To)
	}
	if defectType != "" {
		query = query.Where("d.defect_type = ?", defectType)
	}

	var rows []engine.ParetoRecord
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GenerateCode 生成批次编码 PR-{yyyymmdd}-{4位}
func (r *RunRepository) GenerateCode(ctx context.Context, at time.Time) (string, error) {
	day := at.Format("20060102")
	prefix := fmt.Sprintf("PR-%s-", day)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.ProductionRun{}).
		Select("COALESCE(MAX(run_code), '')").
		Where("run_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "PR-"+day+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("PR-%s-%04d", day, seq), nil
}
