package handler

import (
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/gin-gonic/gin"
)

// RunHandler 生产批次处理器
type RunHandler struct {
	svc *service.ProductionService
}

func NewRunHandler(svc *service.ProductionService) *RunHandler {
	return &RunHandler{svc: svc}
}

// SubmitRun 提交批次
// POST /api/v1/qms/runs
func (h *RunHandler) SubmitRun(c *gin.Context) {
	var req service.SubmitRunRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "提交批次失败")
		return
	}
	Created(c, result)
}

// ListRuns 批次列表
// GET /api/v1/qms/runs?line_id=xxx&shift=A&part_number=xxx&from=2026-03-01&to=2026-03-31
func (h *RunHandler) ListRuns(c *gin.Context) {
	page, pageSize := GetPagination(c)
	tr, err := GetTimeRange(c)
	if err != nil {
		RespondError(c, err, "查询批次失败")
		return
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, repository.RunFilter{
		LineID:     c.Query("line_id"),
		Shift:      c.Query("shift"),
		PartNumber: c.Query("part_number"),
		From:       tr.From,
		To:         tr.To,
	})
	if err != nil {
		InternalError(c, "获取批次列表失败: "+err.Error())
		return
	}
	Paginated(c, items, page, pageSize, total)
}

// GetRun 批次详情
// GET /api/v1/qms/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	result, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err, "批次")
		return
	}
	Success(c, result)
}

// UpdateRun 重新核算并覆盖批次
// PUT /api/v1/qms/runs/:id
func (h *RunHandler) UpdateRun(c *gin.Context) {
	var req service.SubmitRunRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "更新批次失败")
		return
	}
	Success(c, result)
}

// AutoFill 良品自动补齐
// POST /api/v1/qms/runs/autofill
func (h *RunHandler) AutoFill(c *gin.Context) {
	var req service.AutoFillRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.svc.AutoFill(&req)
	if err != nil {
		RespondError(c, err, "自动补齐失败")
		return
	}
	Success(c, d)
}

// UpdateDefect 修改缺陷明细
// PUT /api/v1/qms/defects/:id
func (h *RunHandler) UpdateDefect(c *gin.Context) {
	var req service.UpdateDefectRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.svc.EditDefect(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		RespondError(c, err, "修改缺陷失败")
		return
	}
	Success(c, result)
}

// DeleteRun 删除批次
// DELETE /api/v1/qms/runs/:id
func (h *RunHandler) DeleteRun(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		RespondError(c, err, "删除批次失败")
		return
	}
	Success(c, nil)
}

// DeleteDefect 删除缺陷明细
// DELETE /api/v1/qms/defects/:id
func (h *RunHandler) DeleteDefect(c *gin.Context) {
	result, err := h.svc.DeleteDefect(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err, "删除缺陷失败")
		return
	}
	Success(c, result)
}
