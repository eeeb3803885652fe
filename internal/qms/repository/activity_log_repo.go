package repository

import (
	"context"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"gorm.io/gorm"
)

// ActivityLogRepository 操作日志仓库
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// FindByEntity 查询某实体的操作日志
func (r *ActivityLogRepository) FindByEntity(ctx context.Context, entityType, entityID string) ([]entity.ActivityLog, error) {
	var items []entity.ActivityLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// LogActivity 便捷记录操作日志，失败不影响主流程
func (r *ActivityLogRepository) LogActivity(ctx context.Context, entityType, entityID, entityCode, action, fromStatus, toStatus, content, operatorID string) error {
	log := &entity.ActivityLog{
		ID:         newID(),
		EntityType: entityType,
		EntityID:   entityID,
		EntityCode: entityCode,
		Action:     action,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Content:    content,
		OperatorID: operatorID,
	}
	return r.db.WithContext(ctx).Create(log).Error
}
