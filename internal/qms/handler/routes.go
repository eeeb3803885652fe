package handler

import (
	"github.com/bitfantasy/nimo-qms/internal/middleware"
	"github.com/gin-gonic/gin"
)

// 权限标识
const (
	PermRead        = "qms:read"
	PermRunWrite    = "qms:run:write"
	PermClaimWrite  = "qms:claim:write"
	PermAndonWrite  = "qms:andon:write"
	PermMasterWrite = "qms:master:write"
)

// RegisterRoutes 注册需登录的QMS接口，api 需已挂载 JWTAuth
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	read := middleware.RequirePermission(PermRead)

	runs := api.Group("/runs")
	{
		runs.GET("", read, h.Run.ListRuns)
		runs.POST("", middleware.RequirePermission(PermRunWrite), h.Run.SubmitRun)
		runs.POST("/autofill", read, h.Run.AutoFill)
		runs.GET("/:id", read, h.Run.GetRun)
		runs.PUT("/:id", middleware.RequirePermission(PermRunWrite), h.Run.UpdateRun)
		runs.DELETE("/:id", middleware.RequirePermission(PermRunWrite), h.Run.DeleteRun)
	}

	defects := api.Group("/defects", middleware.RequirePermission(PermRunWrite))
	{
		defects.PUT("/:id", h.Run.UpdateDefect)
		defects.DELETE("/:id", h.Run.DeleteDefect)
	}

	api.GET("/dashboard/kpi", read, h.Analysis.GetKPIDashboard)

	claims := api.Group("/claims")
	{
		write := middleware.RequirePermission(PermClaimWrite)
		claims.GET("", read, h.Claim.ListClaims)
		claims.POST("", write, h.Claim.CreateClaim)
		claims.GET("/:id", read, h.Claim.GetClaim)
		claims.PUT("/:id", write, h.Claim.UpdateClaim)
		claims.POST("/:id/status", write, h.Claim.ChangeStatus)
		claims.POST("/:id/evidence", write, h.Claim.UploadEvidence)
		claims.GET("/:id/evidence", read, h.Claim.DownloadEvidence)
	}

	andon := api.Group("/andon")
	{
		write := middleware.RequirePermission(PermAndonWrite)
		andon.GET("/policy", read, h.Andon.GetPolicy)
		andon.GET("/alerts", read, h.Andon.ListAlerts)
		andon.GET("/alerts/:id", read, h.Andon.GetAlert)
		andon.POST("/evaluate", write, h.Andon.Evaluate)
		andon.POST("/alerts/:id/acknowledge", write, h.Andon.Acknowledge)
		andon.POST("/alerts/:id/resolve", write, h.Andon.Resolve)
	}

	analysis := api.Group("/analysis", read)
	{
		analysis.GET("/pareto", h.Analysis.GetPareto)
		analysis.GET("/pareto/export", h.Analysis.ExportPareto)
		analysis.GET("/trend", h.Analysis.GetTrend)
	}

	codes := api.Group("/defect-codes")
	{
		codes.GET("", read, h.DefectCode.ListDefectCodes)
		codes.POST("/import", middleware.RequirePermission(PermMasterWrite), h.DefectCode.ImportDefectCodes)
	}

	api.GET("/sse/events", read, h.SSE.Stream)
}

// RegisterWebhooks 注册无需登录的回调接口，未配置飞书校验token时不注册
func (h *Handlers) RegisterWebhooks(group *gin.RouterGroup) bool {
	if h.Andon.verificationToken == "" {
		return false
	}
	group.POST("/feishu/card-callback", h.Andon.CardCallback)
	return true
}
