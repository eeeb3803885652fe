package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/config"
	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/sse"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Production *ProductionService
	KPI        *KPIService
	Claim      *ClaimService
	Andon      *AndonService
	Analysis   *AnalysisService
	DefectCode *DefectCodeService
	Export     *ExportService
}

// Deps 服务依赖。Redis、Store、Notifier、Hub 均可为空
type Deps struct {
	Repos    *repository.Repositories
	Redis    *redis.Client
	Store    ObjectStore
	Notifier AlertNotifier
	Hub      *sse.Hub
	Logger   *zap.Logger
	Quality  config.QualityConfig
}

// NewServices 创建服务集合
func NewServices(d Deps) (*Services, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Hub == nil {
		d.Hub = sse.NewHub(d.Logger)
	}

	policy, err := d.Quality.EscalationPolicy()
	if err != nil {
		return nil, fmt.Errorf("escalation policy: %w", err)
	}
	calc := d.Quality.RateCalculator()

	kpi := NewKPIService(d.Repos, calc, d.Redis, d.Quality.KPICacheTTL, d.Logger)
	andon := NewAndonService(d.Repos, policy, AndonOptions{
		Lookback:     d.Quality.ConsecutiveLookback,
		ReworkWindow: d.Quality.ReworkWindow,
		Notifier:     d.Notifier,
		Hub:          d.Hub,
		KPI:          kpi,
		Logger:       d.Logger,
	})

	return &Services{
		Production: NewProductionService(d.Repos, andon, kpi, d.Hub, d.Logger),
		KPI:        kpi,
		Claim:      NewClaimService(d.Repos, d.Store, kpi, d.Logger),
		Andon:      andon,
		Analysis:   NewAnalysisService(d.Repos),
		DefectCode: NewDefectCodeService(d.Repos, d.Logger),
		Export:     NewExportService(),
	}, nil
}

// FieldError 业务字段校验失败
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Is(target error) bool { return target == engine.ErrValidation }

// TimeRange 统计时间范围，To 不含
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

func (r TimeRange) validate() error {
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return &FieldError{Field: "to", Message: "must be after from"}
	}
	return nil
}

func (r TimeRange) utc() TimeRange {
	out := TimeRange{}
	if r.From != nil {
		t := r.From.UTC()
		out.From = &t
	}
	if r.To != nil {
		t := r.To.UTC()
		out.To = &t
	}
	return out
}

func logActivity(ctx context.Context, repo *repository.ActivityLogRepository, logger *zap.Logger, entityType, entityID, entityCode, action, fromStatus, toStatus, content, operatorID string) {
	if repo == nil {
		return
	}
	if err := repo.LogActivity(ctx, entityType, entityID, entityCode, action, fromStatus, toStatus, content, operatorID); err != nil {
		logger.Warn("write activity log failed",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}
