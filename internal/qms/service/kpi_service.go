package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	kpiCachePrefix     = "qms:kpi:"
	defaultKPICacheTTL = 5 * time.Minute
)

// KPIService 质量KPI看板
type KPIService struct {
	runRepo   *repository.RunRepository
	claimRepo *repository.ClaimRepository
	andonRepo *repository.AndonRepository
	calc      *engine.RateCalculator
	rdb       *redis.Client
	ttl       time.Duration
	logger    *zap.Logger
}

func NewKPIService(repos *repository.Repositories, calc *engine.RateCalculator, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *KPIService {
	if ttl <= 0 {
		ttl = defaultKPICacheTTL
	}
	return &KPIService{
		runRepo:   repos.Run,
		claimRepo: repos.Claim,
		andonRepo: repos.Andon,
		calc:      calc,
		rdb:       rdb,
		ttl:       ttl,
		logger:    logger,
	}
}

// KPIQuery 看板查询条件。产线与班次只作用于厂内指标
type KPIQuery struct {
	TimeRange
	LineID string `json:"line_id,omitempty"`
	Shift  string `json:"shift,omitempty"`
}

func (q KPIQuery) cacheKey() string {
	parts := []string{q.LineID, q.Shift, "", ""}
	if q.From != nil {
		parts[2] = q.From.UTC().Format(time.RFC3339)
	}
	if q.To != nil {
		parts[3] = q.To.UTC().Format(time.RFC3339)
	}
	return kpiCachePrefix + strings.Join(parts, "|")
}

// ClaimKPI 客户索赔PPM
type ClaimKPI struct {
	engine.KpiResult
	Claims     int64 `json:"claims"`
	DefectQty  int64 `json:"defect_qty"`
	ShippedQty int64 `json:"shipped_qty"`
}

// InternalKPI 厂内返工/报废率
type InternalKPI struct {
	engine.KpiResult
	Count    int64 `json:"count"`
	Produced int64 `json:"produced"`
}

// KPIDashboard 看板数据
type KPIDashboard struct {
	Query        KPIQuery              `json:"query"`
	Claims       []ClaimKPI            `json:"claims"`
	Internal     []InternalKPI         `json:"internal"`
	Production   repository.RunSummary `json:"production"`
	ActiveAlerts map[int]int64         `json:"active_alerts"`
	Targets      []engine.KpiTarget    `json:"targets"`
	GeneratedAt  time.Time             `json:"generated_at"`
	Cached       bool                  `json:"cached"`
}

// Dashboard 计算KPI看板，优先读取缓存
func (s *KPIService) Dashboard(ctx context.Context, q KPIQuery) (*KPIDashboard, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	q.TimeRange = q.utc()
	key := q.cacheKey()

	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, key).Result()
		if err == nil {
			var d KPIDashboard
			if err := json.Unmarshal([]byte(cached), &d); err == nil {
				d.Cached = true
				return &d, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("kpi cache read failed", zap.Error(err))
		}
	}

	d, err := s.compute(ctx, q)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(d); err == nil {
			if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
				s.logger.Warn("kpi cache write failed", zap.Error(err))
			}
		}
	}
	return d, nil
}

func (s *KPIService) compute(ctx context.Context, q KPIQuery) (*KPIDashboard, error) {
	d := &KPIDashboard{
		Query:       q,
		Targets:     s.calc.Targets(),
		GeneratedAt: time.Now().UTC(),
	}

	totals, err := s.claimRepo.TotalsByCategory(ctx, q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("claim totals: %w", err)
	}
	byCategory := make(map[string]repository.ClaimTotals, len(totals))
	for _, t := range totals {
		byCategory[t.ClaimCategory] = t
	}

	summary, err := s.runRepo.Summary(ctx, repository.RunFilter{LineID: q.LineID, Shift: q.Shift, From: q.From, To: q.To})
	if err != nil {
		return nil, fmt.Errorf("run summary: %w", err)
	}
	d.Production = *summary

	for _, target := range d.Targets {
		switch target.Unit {
		case engine.UnitPPM:
			t := byCategory[target.Category]
			res, err := s.calc.ClaimPPM(target.Category, t.DefectQty, t.ShippedQty)
			if err != nil {
				return nil, err
			}
			d.Claims = append(d.Claims, ClaimKPI{KpiResult: res, Claims: t.Claims, DefectQty: t.DefectQty, ShippedQty: t.ShippedQty})
		case engine.UnitPercent:
			count := internalCount(target.Category, summary)
			res, err := s.calc.InternalPercent(target.Category, count, summary.TotalProduced)
			if err != nil {
				return nil, err
			}
			d.Internal = append(d.Internal, InternalKPI{KpiResult: res, Count: count, Produced: summary.TotalProduced})
		}
	}

	active, err := s.andonRepo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active alerts: %w", err)
	}
	d.ActiveAlerts = active
	return d, nil
}

// internalCount 返工率按返工数计，报废率按最终报废（直接报废+返工后报废）计
func internalCount(category string, s *repository.RunSummary) int64 {
	switch category {
	case engine.CategoryRework:
		return s.ReworkQty
	case engine.CategoryScrap:
		return s.ScrapQty + s.ReworkScrapQty
	}
	return 0
}

// Evaluate 单项KPI分级
func (s *KPIService) Evaluate(category string, actual float64) (engine.KpiResult, error) {
	return s.calc.Evaluate(category, actual)
}

// Invalidate 清除看板缓存
func (s *KPIService) Invalidate(ctx context.Context) {
	if s == nil || s.rdb == nil {
		return
	}
	iter := s.rdb.Scan(ctx, 0, kpiCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("kpi cache scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("kpi cache invalidate failed", zap.Error(err))
	}
}
