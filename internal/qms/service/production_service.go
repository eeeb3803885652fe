package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/sse"
	"go.uber.org/zap"
)

// ProductionService 生产批次服务
type ProductionService struct {
	runRepo         *repository.RunRepository
	codeRepo        *repository.DefectCodeRepository
	andonRepo       *repository.AndonRepository
	activityLogRepo *repository.ActivityLogRepository
	andon           *AndonService
	kpi             *KPIService
	hub             *sse.Hub
	logger          *zap.Logger
}

func NewProductionService(repos *repository.Repositories, andon *AndonService, kpi *KPIService, hub *sse.Hub, logger *zap.Logger) *ProductionService {
	return &ProductionService{
		runRepo:         repos.Run,
		codeRepo:        repos.DefectCode,
		andonRepo:       repos.Andon,
		activityLogRepo: repos.ActivityLog,
		andon:           andon,
		kpi:             kpi,
		hub:             hub,
		logger:          logger,
	}
}

// DefectItemRequest 缺陷明细
type DefectItemRequest struct {
	DefectCode   string `json:"defect_code"`
	DefectType   string `json:"defect_type"`
	Quantity     int    `json:"quantity"`
	ReworkResult string `json:"rework_result"`
	Measurement  string `json:"measurement"`
	SpecValue    string `json:"spec_value"`
}

func (r DefectItemRequest) item() engine.DefectItem {
	return engine.DefectItem{
		DefectCode:   r.DefectCode,
		DefectType:   engine.DefectType(r.DefectType),
		Quantity:     r.Quantity,
		ReworkResult: engine.ReworkResult(r.ReworkResult),
		Measurement:  r.Measurement,
		SpecValue:    r.SpecValue,
	}
}

// SubmitRunRequest 批次提交请求
type SubmitRunRequest struct {
	LineID          string              `json:"line_id" binding:"required"`
	PartNumber      string              `json:"part_number"`
	LotNumber       string              `json:"lot_number"`
	Shift           string              `json:"shift"`
	Operator        string              `json:"operator"`
	TotalProduced   int                 `json:"total_produced"`
	GoodQty         int                 `json:"good_qty"`
	ReworkQty       int                 `json:"rework_qty"`
	ScrapQty        int                 `json:"scrap_qty"`
	ReworkGoodQty   int                 `json:"rework_good_qty"`
	ReworkScrapQty  int                 `json:"rework_scrap_qty"`
	LineStopMinutes float64             `json:"line_stop_minutes"`
	ProducedAt      *time.Time          `json:"produced_at"`
	Notes           string              `json:"notes"`
	Defects         []DefectItemRequest `json:"defects"`
}

func (r *SubmitRunRequest) input() engine.RunInput {
	return engine.RunInput{
		TotalProduced:  r.TotalProduced,
		GoodQty:        r.GoodQty,
		ReworkQty:      r.ReworkQty,
		ScrapQty:       r.ScrapQty,
		ReworkGoodQty:  r.ReworkGoodQty,
		ReworkScrapQty: r.ReworkScrapQty,
	}
}

func (r *SubmitRunRequest) items() []engine.DefectItem {
	items := make([]engine.DefectItem, 0, len(r.Defects))
	for _, d := range r.Defects {
		items = append(items, d.item())
	}
	return items
}

// RunResult 批次及派生数量
type RunResult struct {
	Run            *entity.ProductionRun   `json:"run"`
	FinalGoodQty   int                     `json:"final_good_qty"`
	FinalRejectQty int                     `json:"final_reject_qty"`
	UnaccountedQty int                     `json:"unaccounted_qty"`
	Alert          *entity.EscalationEvent `json:"alert,omitempty"`
}

func newRunResult(run *entity.ProductionRun) *RunResult {
	d := run.Disposition()
	return &RunResult{
		Run:            run,
		FinalGoodQty:   d.FinalGoodQty(),
		FinalRejectQty: d.FinalRejectQty(),
		UnaccountedQty: d.UnaccountedQty(),
	}
}

// reconcile 核算并校验批次头信息与缺陷代码
func (s *ProductionService) reconcile(ctx context.Context, req *SubmitRunRequest) (*engine.Reconciliation, error) {
	rec, err := engine.Reconcile(req.input(), req.items())
	if err != nil {
		return nil, err
	}
	if !entity.ValidShift(req.Shift) {
		return nil, &FieldError{Field: "shift", Message: "must be A or B"}
	}
	if req.LineStopMinutes < 0 {
		return nil, &FieldError{Field: "line_stop_minutes", Message: "must not be negative"}
	}
	if err := s.checkCodes(ctx, rec.Items); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *ProductionService) checkCodes(ctx context.Context, items []engine.DefectItem) error {
	if len(items) == 0 {
		return nil
	}
	codes := make([]string, 0, len(items))
	for _, it := range items {
		codes = append(codes, it.DefectCode)
	}
	known, err := s.codeRepo.FindByCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("load defect codes: %w", err)
	}
	for i, it := range items {
		code, ok := known[it.DefectCode]
		if !ok {
			return &FieldError{Field: fmt.Sprintf("defects[%d].defect_code", i), Message: "unknown defect code " + it.DefectCode}
		}
		if !code.Active {
			return &FieldError{Field: fmt.Sprintf("defects[%d].defect_code", i), Message: "defect code " + it.DefectCode + " is inactive"}
		}
	}
	return nil
}

func defectRecords(runID string, items []engine.DefectItem) []entity.DefectRecord {
	records := make([]entity.DefectRecord, 0, len(items))
	for _, it := range items {
		records = append(records, entity.DefectRecordFromItem(runID, it))
	}
	return records
}

// Submit 提交批次：核算、落库、触发安灯评估
func (s *ProductionService) Submit(ctx context.Context, userID string, req *SubmitRunRequest) (*RunResult, error) {
	rec, err := s.reconcile(ctx, req)
	if err != nil {
		return nil, err
	}

	producedAt := time.Now().UTC()
	if req.ProducedAt != nil && !req.ProducedAt.IsZero() {
		producedAt = req.ProducedAt.UTC()
	}

	code, err := s.runRepo.GenerateCode(ctx, producedAt)
	if err != nil {
		return nil, fmt.Errorf("generate run code: %w", err)
	}

	run := &entity.ProductionRun{
		RunCode:         code,
		LineID:          req.LineID,
		PartNumber:      req.PartNumber,
		LotNumber:       req.LotNumber,
		Shift:           req.Shift,
		Operator:        req.Operator,
		LineStopMinutes: req.LineStopMinutes,
		ProducedAt:      producedAt,
		Notes:           req.Notes,
		CreatedBy:       userID,
	}
	run.ApplyDisposition(rec.Disposition)

	if err := s.runRepo.CreateWithDefects(ctx, run, defectRecords("", rec.Items)); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeRun, run.ID, run.RunCode, "create", "", "",
		fmt.Sprintf("提交批次: 产线 %s 产出 %d 良品 %d 返工 %d 报废 %d", run.LineID, run.TotalProduced, run.GoodQty, run.ReworkQty, run.ScrapQty), userID)

	result := newRunResult(run)
	s.hub.PublishLine(sse.EventRunSubmitted, run.LineID, result)

	if s.andon != nil {
		alert, err := s.andon.EvaluateRun(ctx, run, userID)
		if err != nil {
			s.logger.Warn("andon evaluation failed", zap.String("run_id", run.ID), zap.Error(err))
		}
		result.Alert = alert
	}
	// 放在安灯评估之后，看板同时反映新批次与新告警
	s.kpi.Invalidate(ctx)
	return result, nil
}

// Update 重新核算并整体重写批次
func (s *ProductionService) Update(ctx context.Context, id, userID string, req *SubmitRunRequest) (*RunResult, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.reconcile(ctx, req)
	if err != nil {
		return nil, err
	}

	run.LineID = req.LineID
	run.PartNumber = req.PartNumber
	run.LotNumber = req.LotNumber
	run.Shift = req.Shift
	run.Operator = req.Operator
	run.LineStopMinutes = req.LineStopMinutes
	run.Notes = req.Notes
	if req.ProducedAt != nil && !req.ProducedAt.IsZero() {
		run.ProducedAt = req.ProducedAt.UTC()
	}
	run.ApplyDisposition(rec.Disposition)

	if err := s.runRepo.ReplaceWithDefects(ctx, run, defectRecords(run.ID, rec.Items)); err != nil {
		return nil, fmt.Errorf("rewrite run: %w", err)
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeRun, run.ID, run.RunCode, "update", "", "",
		fmt.Sprintf("重新核算批次: 产出 %d 良品 %d 返工 %d 报废 %d", run.TotalProduced, run.GoodQty, run.ReworkQty, run.ScrapQty), userID)
	s.kpi.Invalidate(ctx)
	return newRunResult(run), nil
}

// List 批次列表
func (s *ProductionService) List(ctx context.Context, page, pageSize int, filter repository.RunFilter) ([]entity.ProductionRun, int64, error) {
	return s.runRepo.FindAll(ctx, page, pageSize, filter)
}

// Get 批次详情
func (s *ProductionService) Get(ctx context.Context, id string) (*RunResult, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return newRunResult(run), nil
}

// Delete 删除误录批次；已触发安灯告警的批次需保留追溯，不可删除
func (s *ProductionService) Delete(ctx context.Context, id, userID string) error {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	alerts, err := s.andonRepo.CountByRun(ctx, id)
	if err != nil {
		return fmt.Errorf("count run alerts: %w", err)
	}
	if alerts > 0 {
		return fmt.Errorf("%w: run %s has %d andon alert(s)", engine.ErrInvalidTransition, run.RunCode, alerts)
	}
	if err := s.runRepo.Delete(ctx, id); err != nil {
		return err
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeRun, run.ID, run.RunCode, "delete", "", "",
		fmt.Sprintf("删除批次: 产线 %s 产出 %d", run.LineID, run.TotalProduced), userID)
	s.kpi.Invalidate(ctx)
	return nil
}

// AutoFillRequest 良品自动补齐请求
type AutoFillRequest struct {
	TotalProduced  int                 `json:"total_produced"`
	ReworkQty      int                 `json:"rework_qty"`
	ScrapQty       int                 `json:"scrap_qty"`
	ReworkGoodQty  int                 `json:"rework_good_qty"`
	ReworkScrapQty int                 `json:"rework_scrap_qty"`
	Defects        []DefectItemRequest `json:"defects"`
}

// AutoFill 按 产出-返工-报废 计算良品数，仅在用户显式请求时使用
func (s *ProductionService) AutoFill(req *AutoFillRequest) (*engine.Disposition, error) {
	items := make([]engine.DefectItem, 0, len(req.Defects))
	for _, d := range req.Defects {
		items = append(items, d.item())
	}
	rec, err := engine.Reconcile(engine.RunInput{
		TotalProduced:  req.TotalProduced,
		ReworkQty:      req.ReworkQty,
		ScrapQty:       req.ScrapQty,
		ReworkGoodQty:  req.ReworkGoodQty,
		ReworkScrapQty: req.ReworkScrapQty,
	}, items)
	if err != nil {
		return nil, err
	}
	good, err := engine.AutoFillGood(rec.TotalProduced, rec.ReworkQty, rec.ScrapQty)
	if err != nil {
		return nil, err
	}
	d := rec.Disposition
	d.GoodQty = good
	return &d, nil
}

// UpdateDefectRequest 缺陷明细修改请求
type UpdateDefectRequest struct {
	DefectCode   *string `json:"defect_code"`
	DefectType   *string `json:"defect_type"`
	Quantity     *int    `json:"quantity"`
	ReworkResult *string `json:"rework_result"`
	Measurement  *string `json:"measurement"`
	SpecValue    *string `json:"spec_value"`
}

func (r *UpdateDefectRequest) apply(d *entity.DefectRecord) {
	if r.DefectCode != nil {
		d.DefectCode = *r.DefectCode
	}
	if r.DefectType != nil {
		d.DefectType = *r.DefectType
		if d.DefectType == string(engine.DefectTypeScrap) {
			d.ReworkResult = ""
		}
	}
	if r.Quantity != nil {
		d.Quantity = *r.Quantity
	}
	if r.ReworkResult != nil {
		d.ReworkResult = *r.ReworkResult
	}
	if r.Measurement != nil {
		d.Measurement = *r.Measurement
	}
	if r.SpecValue != nil {
		d.SpecValue = *r.SpecValue
	}
}

// EditDefect 修改缺陷明细并重新汇总所属批次
func (s *ProductionService) EditDefect(ctx context.Context, defectID, userID string, req *UpdateDefectRequest) (*RunResult, error) {
	return s.reaggregate(ctx, defectID, userID, "update_defect", func(d *entity.DefectRecord) bool {
		req.apply(d)
		return true
	})
}

// DeleteDefect 删除缺陷明细并重新汇总所属批次
func (s *ProductionService) DeleteDefect(ctx context.Context, defectID, userID string) (*RunResult, error) {
	return s.reaggregate(ctx, defectID, userID, "delete_defect", func(*entity.DefectRecord) bool { return false })
}

// reaggregate 对目标明细执行 mutate（返回 false 表示删除），再整体重算批次
func (s *ProductionService) reaggregate(ctx context.Context, defectID, userID, action string, mutate func(*entity.DefectRecord) bool) (*RunResult, error) {
	target, err := s.runRepo.FindDefectByID(ctx, defectID)
	if err != nil {
		return nil, err
	}
	run, err := s.runRepo.FindByID(ctx, target.RunID)
	if err != nil {
		return nil, err
	}

	// 原先已明细化的类型，其数量只来自明细
	in := run.Disposition().Input()
	for _, d := range run.Defects {
		switch engine.DefectType(d.DefectType) {
		case engine.DefectTypeScrap:
			in.ScrapQty = 0
		case engine.DefectTypeRework:
			in.ReworkQty, in.ReworkGoodQty, in.ReworkScrapQty = 0, 0, 0
		}
	}

	var kept []entity.DefectRecord
	for _, d := range run.Defects {
		if d.ID == defectID && !mutate(&d) {
			continue
		}
		kept = append(kept, d)
	}

	items := make([]engine.DefectItem, 0, len(kept))
	for _, d := range kept {
		items = append(items, d.Item())
	}
	rec, err := engine.Reconcile(in, items)
	if err != nil {
		return nil, err
	}
	if err := s.checkCodes(ctx, rec.Items); err != nil {
		return nil, err
	}

	records := defectRecords(run.ID, rec.Items)
	for i := range records {
		records[i].ID = kept[i].ID
		records[i].CreatedAt = kept[i].CreatedAt
	}
	run.ApplyDisposition(rec.Disposition)
	if err := s.runRepo.ReplaceWithDefects(ctx, run, records); err != nil {
		return nil, fmt.Errorf("rewrite run: %w", err)
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeRun, run.ID, run.RunCode, action, "", "",
		fmt.Sprintf("缺陷明细变更后重新汇总: 返工 %d 报废 %d", run.ReworkQty, run.ScrapQty), userID)
	s.kpi.Invalidate(ctx)
	return newRunResult(run), nil
}
