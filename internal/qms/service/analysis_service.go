package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
)

// 柏拉图关键少数阈值（累计占比%）
const vitalFewThreshold = 80

// AnalysisService 柏拉图与趋势分析
type AnalysisService struct {
	runRepo  *repository.RunRepository
	codeRepo *repository.DefectCodeRepository
}

func NewAnalysisService(repos *repository.Repositories) *AnalysisService {
	return &AnalysisService{runRepo: repos.Run, codeRepo: repos.DefectCode}
}

// AnalysisQuery 分析查询条件
type AnalysisQuery struct {
	TimeRange
	LineID     string `json:"line_id,omitempty"`
	Shift      string `json:"shift,omitempty"`
	PartNumber string `json:"part_number,omitempty"`
	DefectType string `json:"defect_type,omitempty"`
	Bucket     string `json:"bucket,omitempty"`
}

func (q AnalysisQuery) filter() repository.RunFilter {
	r := q.utc()
	return repository.RunFilter{
		LineID:     q.LineID,
		Shift:      q.Shift,
		PartNumber: q.PartNumber,
		From:       r.From,
		To:         r.To,
	}
}

// ParetoReport 柏拉图结果
type ParetoReport struct {
	engine.Pareto
	VitalFew  []engine.ParetoItem `json:"vital_few"`
	CodeNames map[string]string   `json:"code_names"`
	Query     AnalysisQuery       `json:"query"`
}

// Pareto 按缺陷代码汇总
func (s *AnalysisService) Pareto(ctx context.Context, q AnalysisQuery) (*ParetoReport, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	switch engine.DefectType(q.DefectType) {
	case "", engine.DefectTypeRework, engine.DefectTypeScrap:
	default:
		return nil, &FieldError{Field: "defect_type", Message: "must be rework or scrap"}
	}

	records, err := s.runRepo.DefectTotals(ctx, q.filter(), q.DefectType)
	if err != nil {
		return nil, fmt.Errorf("defect totals: %w", err)
	}
	p := engine.BuildPareto(records)

	codes := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		codes = append(codes, it.Code)
	}
	names := make(map[string]string, len(codes))
	if len(codes) > 0 {
		known, err := s.codeRepo.FindByCodes(ctx, codes)
		if err != nil {
			return nil, fmt.Errorf("load defect codes: %w", err)
		}
		for code, dc := range known {
			names[code] = dc.Name
		}
	}

	return &ParetoReport{
		Pareto:    p,
		VitalFew:  p.VitalFew(vitalFewThreshold),
		CodeNames: names,
		Query:     q,
	}, nil
}

// Trend 按日/周/月统计返工与报废率并拟合斜率
func (s *AnalysisService) Trend(ctx context.Context, q AnalysisQuery) (*engine.Trend, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	bucket, err := engine.ParseBucket(q.Bucket)
	if err != nil {
		return nil, err
	}

	runs, err := s.runRepo.FindBetween(ctx, q.filter())
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	points := make([]engine.TrendPoint, 0, len(runs))
	for _, r := range runs {
		points = append(points, engine.TrendPoint{
			At:       r.ProducedAt.UTC(),
			Produced: r.TotalProduced,
			Rework:   r.ReworkQty,
			Scrap:    r.ScrapQty,
		})
	}
	tr := engine.BuildTrend(points, bucket)
	return &tr, nil
}
