package handler

import (
	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/gin-gonic/gin"
)

// DefectCodeHandler 缺陷代码主数据处理器
type DefectCodeHandler struct {
	svc *service.DefectCodeService
}

func NewDefectCodeHandler(svc *service.DefectCodeService) *DefectCodeHandler {
	return &DefectCodeHandler{svc: svc}
}

// ListDefectCodes 缺陷代码列表
// GET /api/v1/qms/defect-codes?category=surface&active=true
func (h *DefectCodeHandler) ListDefectCodes(c *gin.Context) {
	codes, err := h.svc.List(c.Request.Context(), c.Query("category"), c.Query("active") == "true")
	if err != nil {
		InternalError(c, "获取缺陷代码失败: "+err.Error())
		return
	}
	Success(c, codes)
}

// ImportDefectCodes 导入缺陷代码CSV
// POST /api/v1/qms/defect-codes/import?encoding=gbk (multipart, field: file)
func (h *DefectCodeHandler) ImportDefectCodes(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传CSV文件")
		return
	}
	defer file.Close()

	result, err := h.svc.Import(c.Request.Context(), GetUserID(c), file, c.Query("encoding"))
	if err != nil {
		RespondError(c, err, "导入缺陷代码失败")
		return
	}
	Success(c, result)
}
