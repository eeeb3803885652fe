package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/service"
	"github.com/bitfantasy/nimo-qms/internal/qms/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers QMS处理器集合
type Handlers struct {
	Run        *RunHandler
	Claim      *ClaimHandler
	Andon      *AndonHandler
	Analysis   *AnalysisHandler
	DefectCode *DefectCodeHandler
	SSE        *SSEHandler
}

// Options 处理器可选配置
type Options struct {
	// 飞书卡片回调校验token，为空时不开放回调接口
	FeishuVerificationToken string
	Logger                  *zap.Logger
}

// NewHandlers 创建QMS处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Run:        NewRunHandler(svc.Production),
		Claim:      NewClaimHandler(svc.Claim),
		Andon:      NewAndonHandler(svc.Andon, opts.FeishuVerificationToken, logger),
		Analysis:   NewAnalysisHandler(svc.KPI, svc.Analysis, svc.Export),
		DefectCode: NewDefectCodeHandler(svc.DefectCode),
		SSE:        NewSSEHandler(hub),
	}
}

// 业务错误码，HTTP状态码为 code/100
const (
	CodeBadRequest        = 40000
	CodeInvalidTransition = 40010
	CodeNotFound          = 40400
	CodeInternal          = 50000
	CodeUnavailable       = 50300
)

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, CodeBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, CodeNotFound, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, CodeInternal, message)
}

// Paginated 分页列表响应
func Paginated(c *gin.Context, items interface{}, page, pageSize int, total int64) {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// RespondError 将服务层错误映射为响应码
func RespondError(c *gin.Context, err error, message string) {
	var (
		balanceErr *engine.BalanceError
		fieldErr   *service.FieldError
		valueErr   *engine.InvalidValueError
	)
	switch {
	case errors.As(err, &balanceErr):
		ErrorWithData(c, CodeBadRequest, err.Error(), gin.H{
			"scope":     balanceErr.Scope,
			"accounted": balanceErr.Accounted,
			"total":     balanceErr.Total,
			"delta":     balanceErr.Delta(),
		})
	case errors.As(err, &fieldErr):
		ErrorWithData(c, CodeBadRequest, err.Error(), gin.H{"field": fieldErr.Field})
	case errors.As(err, &valueErr):
		ErrorWithData(c, CodeBadRequest, err.Error(), gin.H{"field": valueErr.Field, "value": valueErr.Value})
	case errors.Is(err, engine.ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, repository.ErrStaleStatus),
		errors.Is(err, repository.ErrConcurrentUpdate):
		Error(c, CodeInvalidTransition, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, message+": 记录不存在")
	case errors.Is(err, service.ErrStorageUnavailable):
		Error(c, CodeUnavailable, err.Error())
	default:
		InternalError(c, message+": "+err.Error())
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

const dateLayout = "2006-01-02"

// parseTime 支持 RFC3339 与 yyyy-mm-dd；endOfDay 为 true 时日期取次日零点（区间右开）
func parseTime(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// GetTimeRange 读取 from/to 查询参数
func GetTimeRange(c *gin.Context) (service.TimeRange, error) {
	from, err := parseTime(c.Query("from"), false)
	if err != nil {
		return service.TimeRange{}, &service.FieldError{Field: "from", Message: "must be RFC3339 or yyyy-mm-dd"}
	}
	to, err := parseTime(c.Query("to"), true)
	if err != nil {
		return service.TimeRange{}, &service.FieldError{Field: "to", Message: "must be RFC3339 or yyyy-mm-dd"}
	}
	return service.TimeRange{From: from, To: to}, nil
}

// bindJSON 绑定请求体，失败时返回400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return false
	}
	return true
}
