package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"gorm.io/gorm"
)

// ClaimRepository 索赔仓库
type ClaimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// FindAll 查询索赔列表
func (r *ClaimRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ClaimRecord, int64, error) {
	var items []entity.ClaimRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ClaimRecord{})

	if category := filters["category"]; category != "" {
		query = query.Where("claim_category = ?", category)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if customer := filters["customer"]; customer != "" {
		query = query.Where("customer LIKE ?", "%"+customer+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("claim_date DESC, created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找索赔
func (r *ClaimRepository) FindByID(ctx context.Context, id string) (*entity.ClaimRecord, error) {
	var claim entity.ClaimRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &claim, nil
}

// Create 创建索赔
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.ClaimRecord) error {
	if claim.ID == "" {
		claim.ID = newID()
	}
	return r.db.WithContext(ctx).Create(claim).Error
}

// Update 更新索赔
func (r *ClaimRepository) Update(ctx context.Context, claim *entity.ClaimRecord) error {
	return r.db.WithContext(ctx).Save(claim).Error
}

// ClaimTotals 某类别的索赔数量汇总
type ClaimTotals struct {
	ClaimCategory string `json:"claim_category"`
	Claims        int64  `json:"claims"`
	DefectQty     int64  `json:"defect_qty"`
	ShippedQty    int64  `json:"shipped_qty"`
}

// TotalsByCategory 按类别汇总时间范围内的索赔
func (r *ClaimRepository) TotalsByCategory(ctx context.Context, from, to *time.Time) ([]ClaimTotals, error) {
	query := r.db.WithContext(ctx).Model(&entity.ClaimRecord{}).
		Select("claim_category, COUNT(*) AS claims, COALESCE(SUM(defect_qty), 0) AS defect_qty, COALESCE(SUM(shipped_qty), 0) AS shipped_qty").
		Group("claim_category")
	if from != nil {
		query = query.Where("claim_date >= ?", *from)
	}
	if to != nil {
		query = query.Where("claim_date < ?", *to)
	}

	var rows []ClaimTotals
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GenerateCode 生成索赔编号 CLM-{year}-{4位}
func (r *ClaimRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("CLM-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.ClaimRecord{}).
		Select("COALESCE(MAX(claim_no), '')").
		Where("claim_no LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "CLM-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("CLM-%s-%04d", year, seq), nil
}
