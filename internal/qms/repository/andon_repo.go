package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"gorm.io/gorm"
)

// AndonRepository 安灯告警仓库
type AndonRepository struct {
	db *gorm.DB
}

func NewAndonRepository(db *gorm.DB) *AndonRepository {
	return &AndonRepository{db: db}
}

// FindAll 查询告警列表
func (r *AndonRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.EscalationEvent, int64, error) {
	var items []entity.EscalationEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.EscalationEvent{})

	if lineID := filters["line_id"]; lineID != "" {
		query = query.Where("line_id = ?", lineID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if level := filters["level"]; level != "" {
		query = query.Where("level = ?", level)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找告警
func (r *AndonRepository) FindByID(ctx context.Context, id string) (*entity.EscalationEvent, error) {
	var ev entity.EscalationEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// FindOpen 查找产线同级别未关闭的告警
func (r *AndonRepository) FindOpen(ctx context.Context, lineID string, level int) (*entity.EscalationEvent, error) {
	var ev entity.EscalationEvent
	err := r.db.WithContext(ctx).
		Where("line_id = ? AND level = ? AND status <> ?", lineID, level, "resolved").
		Order("created_at DESC").
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// CountByRun 统计由该批次触发的告警
func (r *AndonRepository) CountByRun(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.EscalationEvent{}).Where("run_id = ?", runID).Count(&n).Error
	return n, err
}

// Create 创建告警
func (r *AndonRepository) Create(ctx context.Context, ev *entity.EscalationEvent) error {
	if ev.ID == "" {
		ev.ID = newID()
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

// UpdateStatus 条件更新告警状态，仅当当前状态仍为 from 时生效
func (r *AndonRepository) UpdateStatus(ctx context.Context, id, from string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&entity.EscalationEvent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// SetFeishuTaskID 记录飞书跟进任务
func (r *AndonRepository) SetFeishuTaskID(ctx context.Context, id, taskID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.EscalationEvent{}).
		Where("id = ?", id).
		Update("feishu_task_id", taskID).Error
}

// CountActive 按级别统计未关闭告警
func (r *AndonRepository) CountActive(ctx context.Context) (map[int]int64, error) {
	var rows []struct {
		Level int
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&entity.EscalationEvent{}).
		Select("level, COUNT(*) AS count").
		Where("status <> ?", "resolved").
		Group("level").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(rows))
	for _, row := range rows {
		out[row.Level] = row.Count
	}
	return out, nil
}

// GenerateCode 生成告警编码 AND-{yyyymmdd}-{4位}
func (r *AndonRepository) GenerateCode(ctx context.Context, at time.Time) (string, error) {
	day := at.Format("20060102")
	prefix := fmt.Sprintf("AND-%s-", day)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.EscalationEvent{}).
		Select("COALESCE(MAX(alert_code), '')").
		Where("alert_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "AND-"+day+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("AND-%s-%04d", day, seq), nil
}
