package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClaimService 客户索赔服务
type ClaimService struct {
	repo            *repository.ClaimRepository
	activityLogRepo *repository.ActivityLogRepository
	store           ObjectStore
	kpi             *KPIService
	logger          *zap.Logger
}

func NewClaimService(repos *repository.Repositories, store ObjectStore, kpi *KPIService, logger *zap.Logger) *ClaimService {
	return &ClaimService{
		repo:            repos.Claim,
		activityLogRepo: repos.ActivityLog,
		store:           store,
		kpi:             kpi,
		logger:          logger,
	}
}

// CreateClaimRequest 创建索赔请求
type CreateClaimRequest struct {
	ClaimCategory string     `json:"claim_category" binding:"required"`
	Customer      string     `json:"customer" binding:"required"`
	PartNumber    string     `json:"part_number"`
	DefectQty     int64      `json:"defect_qty"`
	ShippedQty    int64      `json:"shipped_qty"`
	Description   string     `json:"description"`
	ClaimDate     *time.Time `json:"claim_date"`
}

func checkClaimQty(defectQty, shippedQty int64) error {
	if defectQty < 0 {
		return &FieldError{Field: "defect_qty", Message: "must not be negative"}
	}
	if shippedQty <= 0 {
		return &FieldError{Field: "shipped_qty", Message: "must be positive"}
	}
	return nil
}

// List 索赔列表
func (s *ClaimService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ClaimRecord, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize, filters)
}

// Get 索赔详情
func (s *ClaimService) Get(ctx context.Context, id string) (*entity.ClaimRecord, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 登记索赔
func (s *ClaimService) Create(ctx context.Context, userID string, req *CreateClaimRequest) (*entity.ClaimRecord, error) {
	if !entity.ValidClaimCategories[req.ClaimCategory] {
		return nil, &FieldError{Field: "claim_category", Message: "unknown claim category " + req.ClaimCategory}
	}
	if err := checkClaimQty(req.DefectQty, req.ShippedQty); err != nil {
		return nil, err
	}

	claimNo, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate claim no: %w", err)
	}

	claimDate := time.Now().UTC()
	if req.ClaimDate != nil && !req.ClaimDate.IsZero() {
		claimDate = req.ClaimDate.UTC()
	}

	claim := &entity.ClaimRecord{
		ClaimNo:       claimNo,
		ClaimCategory: req.ClaimCategory,
		Customer:      req.Customer,
		PartNumber:    req.PartNumber,
		DefectQty:     req.DefectQty,
		ShippedQty:    req.ShippedQty,
		Status:        entity.ClaimStatusOpen,
		Description:   req.Description,
		ClaimDate:     claimDate,
		CreatedBy:     userID,
	}
	if err := s.repo.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeClaim, claim.ID, claim.ClaimNo, "create", "", claim.Status,
		fmt.Sprintf("登记索赔: %s 不良 %d / 发货 %d", claim.Customer, claim.DefectQty, claim.ShippedQty), userID)
	s.kpi.Invalidate(ctx)
	return claim, nil
}

// UpdateClaimRequest 更新索赔请求
type UpdateClaimRequest struct {
	Customer         *string    `json:"customer"`
	PartNumber       *string    `json:"part_number"`
	DefectQty        *int64     `json:"defect_qty"`
	ShippedQty       *int64     `json:"shipped_qty"`
	Description      *string    `json:"description"`
	RootCause        *string    `json:"root_cause"`
	CorrectiveAction *string    `json:"corrective_action"`
	ClaimDate        *time.Time `json:"claim_date"`
}

// Update 更新索赔，已关闭的索赔不可修改
func (s *ClaimService) Update(ctx context.Context, id, userID string, req *UpdateClaimRequest) (*entity.ClaimRecord, error) {
	claim, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim.Status == entity.ClaimStatusClosed {
		return nil, fmt.Errorf("%w: claim %s is closed", engine.ErrInvalidTransition, claim.ClaimNo)
	}

	if req.Customer != nil {
		claim.Customer = *req.Customer
	}
	if req.PartNumber != nil {
		claim.PartNumber = *req.PartNumber
	}
	if req.DefectQty != nil {
		claim.DefectQty = *req.DefectQty
	}
	if req.ShippedQty != nil {
		claim.ShippedQty = *req.ShippedQty
	}
	if req.Description != nil {
		claim.Description = *req.Description
	}
	if req.RootCause != nil {
		claim.RootCause = *req.RootCause
	}
	if req.CorrectiveAction != nil {
		claim.CorrectiveAction = *req.CorrectiveAction
	}
	if req.ClaimDate != nil && !req.ClaimDate.IsZero() {
		claim.ClaimDate = req.ClaimDate.UTC()
	}
	if err := checkClaimQty(claim.DefectQty, claim.ShippedQty); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, claim); err != nil {
		return nil, fmt.Errorf("update claim: %w", err)
	}
	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeClaim, claim.ID, claim.ClaimNo, "update", "", "", "更新索赔信息", userID)
	s.kpi.Invalidate(ctx)
	return claim, nil
}

// ChangeClaimStatusRequest 索赔状态变更请求
type ChangeClaimStatusRequest struct {
	Status           string `json:"status" binding:"required"`
	RootCause        string `json:"root_cause"`
	CorrectiveAction string `json:"corrective_action"`
}

// ChangeStatus 索赔状态只能逐级前进；关闭需要根因与纠正措施
func (s *ClaimService) ChangeStatus(ctx context.Context, id, userID string, req *ChangeClaimStatusRequest) (*entity.ClaimRecord, error) {
	claim, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range entity.ValidClaimTransitions[claim.Status] {
		if next == req.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", engine.ErrInvalidTransition, claim.Status, req.Status)
	}

	if req.RootCause != "" {
		claim.RootCause = req.RootCause
	}
	if req.CorrectiveAction != "" {
		claim.CorrectiveAction = req.CorrectiveAction
	}
	if req.Status == entity.ClaimStatusClosed {
		if strings.TrimSpace(claim.RootCause) == "" {
			return nil, &engine.RequiredFieldError{Field: "root_cause"}
		}
		if strings.TrimSpace(claim.CorrectiveAction) == "" {
			return nil, &engine.RequiredFieldError{Field: "corrective_action"}
		}
		now := time.Now().UTC()
		claim.ClosedAt = &now
	}

	from := claim.Status
	claim.Status = req.Status
	if err := s.repo.Update(ctx, claim); err != nil {
		return nil, fmt.Errorf("update claim: %w", err)
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeClaim, claim.ID, claim.ClaimNo, "status_change", from, claim.Status,
		fmt.Sprintf("索赔状态变更: %s -> %s", from, claim.Status), userID)
	return claim, nil
}

// UploadEvidence 上传索赔证据文件
func (s *ClaimService) UploadEvidence(ctx context.Context, id, userID string, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.ClaimRecord, error) {
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}
	claim, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("claims/%s/%s%s", claim.ClaimNo, uuid.New().String()[:8], filepath.Ext(fileName))
	if err := s.store.PutObject(ctx, objectName, reader, fileSize, contentType); err != nil {
		return nil, err
	}

	claim.EvidenceObject = objectName
	claim.EvidenceName = fileName
	claim.EvidenceType = contentType
	if err := s.repo.Update(ctx, claim); err != nil {
		return nil, fmt.Errorf("update claim: %w", err)
	}
	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeClaim, claim.ID, claim.ClaimNo, "upload_evidence", "", "",
		"上传证据: "+fileName, userID)
	return claim, nil
}

// DownloadEvidence 下载索赔证据文件
func (s *ClaimService) DownloadEvidence(ctx context.Context, id string) (io.ReadCloser, *entity.ClaimRecord, error) {
	claim, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if claim.EvidenceObject == "" {
		return nil, claim, repository.ErrNotFound
	}
	if s.store == nil {
		return nil, claim, ErrStorageUnavailable
	}
	object, err := s.store.GetObject(ctx, claim.EvidenceObject)
	if err != nil {
		return nil, nil, err
	}
	return object, claim, nil
}
