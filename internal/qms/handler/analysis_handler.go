package handler

import (
	"strings"

	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/gin-gonic/gin"
)

// AnalysisHandler KPI看板与柏拉图/趋势分析
type AnalysisHandler struct {
	kpi      *service.KPIService
	analysis *service.AnalysisService
	export   *service.ExportService
}

func NewAnalysisHandler(kpi *service.KPIService, analysis *service.AnalysisService, export *service.ExportService) *AnalysisHandler {
	return &AnalysisHandler{kpi: kpi, analysis: analysis, export: export}
}

// GetKPIDashboard KPI看板
// GET /api/v1/qms/dashboard/kpi?from=xxx&to=xxx&line_id=xxx&shift=A
func (h *AnalysisHandler) GetKPIDashboard(c *gin.Context) {
	tr, err := GetTimeRange(c)
	if err != nil {
		RespondError(c, err, "获取KPI失败")
		return
	}

	d, err := h.kpi.Dashboard(c.Request.Context(), service.KPIQuery{
		TimeRange: tr,
		LineID:    c.Query("line_id"),
		Shift:     c.Query("shift"),
	})
	if err != nil {
		RespondError(c, err, "获取KPI失败")
		return
	}
	Success(c, d)
}

func analysisQuery(c *gin.Context) (service.AnalysisQuery, error) {
	tr, err := GetTimeRange(c)
	if err != nil {
		return service.AnalysisQuery{}, err
	}
	return service.AnalysisQuery{
		TimeRange:  tr,
		LineID:     c.Query("line_id"),
		Shift:      c.Query("shift"),
		PartNumber: c.Query("part_number"),
		DefectType: c.Query("defect_type"),
		Bucket:     c.Query("bucket"),
	}, nil
}

// GetPareto 缺陷柏拉图
// GET /api/v1/qms/analysis/pareto?from=xxx&to=xxx&line_id=xxx&defect_type=scrap
func (h *AnalysisHandler) GetPareto(c *gin.Context) {
	q, err := analysisQuery(c)
	if err != nil {
		RespondError(c, err, "柏拉图分析失败")
		return
	}
	report, err := h.analysis.Pareto(c.Request.Context(), q)
	if err != nil {
		RespondError(c, err, "柏拉图分析失败")
		return
	}
	Success(c, report)
}

// GetTrend 返工/报废趋势
// GET /api/v1/qms/analysis/trend?bucket=day|week|month
func (h *AnalysisHandler) GetTrend(c *gin.Context) {
	q, err := analysisQuery(c)
	if err != nil {
		RespondError(c, err, "趋势分析失败")
		return
	}
	trend, err := h.analysis.Trend(c.Request.Context(), q)
	if err != nil {
		RespondError(c, err, "趋势分析失败")
		return
	}
	Success(c, trend)
}

// ExportPareto 导出柏拉图
// GET /api/v1/qms/analysis/pareto/export?format=xlsx|csv&encoding=gbk
func (h *AnalysisHandler) ExportPareto(c *gin.Context) {
	q, err := analysisQuery(c)
	if err != nil {
		RespondError(c, err, "导出失败")
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
	if format != "xlsx" && format != "csv" {
		BadRequest(c, "format 仅支持 xlsx 或 csv")
		return
	}

	report, err := h.analysis.Pareto(c.Request.Context(), q)
	if err != nil {
		RespondError(c, err, "导出失败")
		return
	}
	filename := service.ParetoFilename(format)

	if format == "csv" {
		gbk := strings.EqualFold(c.Query("encoding"), service.EncodingGBK)
		charset := "utf-8"
		if gbk {
			charset = "gbk"
		}
		c.Header("Content-Type", "text/csv; charset="+charset)
		c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
		c.Status(200)
		if err := h.export.ParetoCSV(c.Writer, report, gbk); err != nil {
			c.Error(err)
		}
		return
	}

	f, err := h.export.ParetoXLSX(report)
	if err != nil {
		InternalError(c, "生成Excel失败: "+err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
