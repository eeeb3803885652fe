package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefectCodeRepository 缺陷代码仓库
type DefectCodeRepository struct {
	db *gorm.DB
}

func NewDefectCodeRepository(db *gorm.DB) *DefectCodeRepository {
	return &DefectCodeRepository{db: db}
}

// FindAll 查询缺陷代码
func (r *DefectCodeRepository) FindAll(ctx context.Context, category string, activeOnly bool) ([]entity.DefectCode, error) {
	var items []entity.DefectCode
	query := r.db.WithContext(ctx).Model(&entity.DefectCode{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	err := query.Order("code ASC").Find(&items).Error
	return items, err
}

// FindByCode 根据代码查找
func (r *DefectCodeRepository) FindByCode(ctx context.Context, code string) (*entity.DefectCode, error) {
	var dc entity.DefectCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&dc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &dc, nil
}

// FindByCodes 批量查找，返回 code -> 缺陷代码
func (r *DefectCodeRepository) FindByCodes(ctx context.Context, codes []string) (map[string]entity.DefectCode, error) {
	out := make(map[string]entity.DefectCode, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	var items []entity.DefectCode
	if err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, dc := range items {
		out[dc.Code] = dc
	}
	return out, nil
}

// Upsert 按代码插入或更新
func (r *DefectCodeRepository) Upsert(ctx context.Context, codes []entity.DefectCode) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "severity", "active", "updated_at"}),
	}).Create(&codes).Error
}

// SeedDefaults 写入初始缺陷代码，已存在的不覆盖
func (r *DefectCodeRepository) SeedDefaults(ctx context.Context) error {
	codes := entity.DefaultDefectCodes()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&codes).Error
}
