package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus 条件更新时状态已被他人修改
	ErrStaleStatus = errors.New("status changed concurrently")
	// ErrConcurrentUpdate 批次在读取后已被他人重写
	ErrConcurrentUpdate = errors.New("record modified concurrently")
)

// Repositories QMS仓库集合
type Repositories struct {
	Run         *RunRepository
	DefectCode  *DefectCodeRepository
	Claim       *ClaimRepository
	Andon       *AndonRepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories 创建QMS仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Run:         NewRunRepository(db),
		DefectCode:  NewDefectCodeRepository(db),
		Claim:       NewClaimRepository(db),
		Andon:       NewAndonRepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}

func newID() string {
	return uuid.New().String()[:32]
}
