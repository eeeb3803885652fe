package handler

import (
	"io"
	"path/filepath"

	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/gin-gonic/gin"
)

// 证据文件上限 20MB
const maxEvidenceSize = 20 << 20

// ClaimHandler 客户索赔处理器
type ClaimHandler struct {
	svc *service.ClaimService
}

func NewClaimHandler(svc *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

// ListClaims 索赔列表
// GET /api/v1/qms/claims?category=xxx&status=xxx&customer=xxx
func (h *ClaimHandler) ListClaims(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"category": c.Query("category"),
		"status":   c.Query("status"),
		"customer": c.Query("customer"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取索赔列表失败: "+err.Error())
		return
	}
	Paginated(c, items, page, pageSize, total)
}

// CreateClaim 创建索赔
// POST /api/v1/qms/claims
func (h *ClaimHandler) CreateClaim(c *gin.Context) {
	var req service.CreateClaimRequest
	if !bindJSON(c, &req) {
		return
	}

	claim, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "创建索赔失败")
		return
	}
	Created(c, claim)
}

// GetClaim 索赔详情
// GET /api/v1/qms/claims/:id
func (h *ClaimHandler) GetClaim(c *gin.Context) {
	claim, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err, "索赔")
		return
	}
	Success(c, claim)
}

// UpdateClaim 更新索赔
// PUT /api/v1/qms/claims/:id
func (h *ClaimHandler) UpdateClaim(c *gin.Context) {
	var req service.UpdateClaimRequest
	if !bindJSON(c, &req) {
		return
	}

	claim, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "更新索赔失败")
		return
	}
	Success(c, claim)
}

// ChangeStatus 索赔状态流转
// POST /api/v1/qms/claims/:id/status
func (h *ClaimHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeClaimStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	claim, err := h.svc.ChangeStatus(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "变更索赔状态失败")
		return
	}
	Success(c, claim)
}

// UploadEvidence 上传索赔证据
// POST /api/v1/qms/claims/:id/evidence (multipart, field: file)
func (h *ClaimHandler) UploadEvidence(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传证据文件")
		return
	}
	defer file.Close()

	if header.Size > maxEvidenceSize {
		BadRequest(c, "文件不能超过20MB")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	claim, err := h.svc.UploadEvidence(c.Request.Context(), c.Param("id"), GetUserID(c),
		file, filepath.Base(header.Filename), header.Size, contentType)
	if err != nil {
		RespondError(c, err, "上传证据失败")
		return
	}
	Success(c, claim)
}

// DownloadEvidence 下载索赔证据
// GET /api/v1/qms/claims/:id/evidence
func (h *ClaimHandler) DownloadEvidence(c *gin.Context) {
	rc, claim, err := h.svc.DownloadEvidence(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err, "证据")
		return
	}
	defer rc.Close()

	contentType := claim.EvidenceType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+claim.EvidenceName+"\"")
	c.Status(200)
	io.Copy(c.Writer, rc)
}
