package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/sse"
	"go.uber.org/zap"
)

const (
	defaultConsecutiveLookback = 10
	defaultReworkWindow        = time.Hour
	notifyTimeout              = 30 * time.Second
)

// AlertNotifier 安灯告警外部通知，失败不影响告警本身
type AlertNotifier interface {
	// NotifyRaised 返回创建的跟进任务ID（可为空）
	NotifyRaised(ctx context.Context, ev *entity.EscalationEvent) (string, error)
	NotifyUpdated(ctx context.Context, ev *entity.EscalationEvent) error
}

// AndonOptions 安灯服务可选项
type AndonOptions struct {
	Lookback     int
	ReworkWindow time.Duration
	Notifier     AlertNotifier
	Hub          *sse.Hub
	KPI          *KPIService // 告警变化时清除看板缓存
	Logger       *zap.Logger
	Now          func() time.Time
}

// AndonService 安灯升级服务
type AndonService struct {
	andonRepo       *repository.AndonRepository
	runRepo         *repository.RunRepository
	activityLogRepo *repository.ActivityLogRepository
	policy          *engine.EscalationPolicy
	lookback        int
	reworkWindow    time.Duration
	notifier        AlertNotifier
	hub             *sse.Hub
	kpi             *KPIService
	logger          *zap.Logger
	now             func() time.Time
	wg              sync.WaitGroup
}

func NewAndonService(repos *repository.Repositories, policy *engine.EscalationPolicy, opts AndonOptions) *AndonService {
	if opts.Lookback <= 0 {
		opts.Lookback = defaultConsecutiveLookback
	}
	if opts.ReworkWindow <= 0 {
		opts.ReworkWindow = defaultReworkWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Hub == nil {
		opts.Hub = sse.NewHub(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AndonService{
		andonRepo:       repos.Andon,
		runRepo:         repos.Run,
		activityLogRepo: repos.ActivityLog,
		policy:          policy,
		lookback:        opts.Lookback,
		reworkWindow:    opts.ReworkWindow,
		notifier:        opts.Notifier,
		hub:             opts.Hub,
		kpi:             opts.KPI,
		logger:          opts.Logger,
		now:             opts.Now,
	}
}

// Policy 当前分级表
func (s *AndonService) Policy() *engine.EscalationPolicy {
	return s.policy
}

// List 告警列表
func (s *AndonService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.EscalationEvent, int64, error) {
	return s.andonRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 告警详情
func (s *AndonService) Get(ctx context.Context, id string) (*entity.EscalationEvent, error) {
	return s.andonRepo.FindByID(ctx, id)
}

// topDefectCode 数量最多的缺陷代码，数量相同取代码字典序最小者
func topDefectCode(defects []entity.DefectRecord) string {
	qty := make(map[string]int)
	for _, d := range defects {
		qty[d.DefectCode] += d.Quantity
	}
	codes := make([]string, 0, len(qty))
	for code := range qty {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if qty[codes[i]] != qty[codes[j]] {
			return qty[codes[i]] > qty[codes[j]]
		}
		return codes[i] < codes[j]
	})
	if len(codes) == 0 {
		return ""
	}
	return codes[0]
}

// Observe 由产线近期历史得出分级输入
func (s *AndonService) Observe(ctx context.Context, run *entity.ProductionRun) (engine.Observation, string, error) {
	obs := engine.Observation{LineStopMinutes: run.LineStopMinutes}
	if obs.LineStopMinutes < 0 {
		obs.LineStopMinutes = 0
	}

	code := topDefectCode(run.Defects)
	if code != "" {
		recent, err := s.runRepo.RecentByLine(ctx, run.LineID, run.ProducedAt, s.lookback)
		if err != nil {
			return obs, code, fmt.Errorf("recent runs: %w", err)
		}
		for _, r := range recent {
			if topDefectCode(r.Defects) != code {
				break
			}
			obs.ConsecutiveSameCause++
		}
	}

	from := run.ProducedAt.Add(-s.reworkWindow)
	to := run.ProducedAt.Add(time.Nanosecond)
	summary, err := s.runRepo.Summary(ctx, repository.RunFilter{LineID: run.LineID, From: &from, To: &to})
	if err != nil {
		return obs, code, fmt.Errorf("rework window: %w", err)
	}
	obs.ReworkRatePerHour = engine.ComputePercent(summary.ReworkQty, summary.TotalProduced) / s.reworkWindow.Hours()
	return obs, code, nil
}

// EvaluateRun 批次提交后自动评估，未达任何级别返回 nil
func (s *AndonService) EvaluateRun(ctx context.Context, run *entity.ProductionRun, userID string) (*entity.EscalationEvent, error) {
	obs, code, err := s.Observe(ctx, run)
	if err != nil {
		return nil, err
	}
	tier := s.policy.Classify(obs)
	if tier == nil {
		return nil, nil
	}
	ev, _, err := s.raise(ctx, run.LineID, run.ID, code, obs, tier, userID)
	return ev, err
}

// EvaluateRequest 手动评估请求
type EvaluateRequest struct {
	LineID               string  `json:"line_id" binding:"required"`
	RunID                string  `json:"run_id"`
	DefectCode           string  `json:"defect_code"`
	ConsecutiveSameCause int     `json:"consecutive_same_cause"`
	ReworkRatePerHour    float64 `json:"rework_rate_per_hour"`
	LineStopMinutes      float64 `json:"line_stop_minutes"`
}

// EvaluateResult 评估结果
type EvaluateResult struct {
	Observation engine.Observation      `json:"observation"`
	Tier        *engine.Tier            `json:"tier"`
	Alert       *entity.EscalationEvent `json:"alert,omitempty"`
	// 同产线同级别已有未关闭告警，未新建
	Duplicate bool `json:"duplicate"`
}

// Evaluate 按给定观测值分级并创建告警
func (s *AndonService) Evaluate(ctx context.Context, userID string, req *EvaluateRequest) (*EvaluateResult, error) {
	obs := engine.Observation{
		ConsecutiveSameCause: max(req.ConsecutiveSameCause, 0),
		ReworkRatePerHour:    max(req.ReworkRatePerHour, 0),
		LineStopMinutes:      max(req.LineStopMinutes, 0),
	}
	result := &EvaluateResult{Observation: obs, Tier: s.policy.Classify(obs)}
	if result.Tier == nil {
		return result, nil
	}
	ev, created, err := s.raise(ctx, req.LineID, req.RunID, req.DefectCode, obs, result.Tier, userID)
	if err != nil {
		return nil, err
	}
	result.Alert = ev
	result.Duplicate = !created
	return result, nil
}

// raise 创建告警；同产线同级别存在未关闭告警时返回已有告警
func (s *AndonService) raise(ctx context.Context, lineID, runID, defectCode string, obs engine.Observation, tier *engine.Tier, userID string) (*entity.EscalationEvent, bool, error) {
	existing, err := s.andonRepo.FindOpen(ctx, lineID, tier.Level)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("find open alert: %w", err)
	}

	now := s.now().UTC()
	code, err := s.andonRepo.GenerateCode(ctx, now)
	if err != nil {
		return nil, false, fmt.Errorf("generate alert code: %w", err)
	}

	ev := &entity.EscalationEvent{
		AlertCode:               code,
		LineID:                  lineID,
		RunID:                   runID,
		Level:                   tier.Level,
		TriggeredBy:             string(tier.TriggeredBy),
		ResponseDeadlineMinutes: tier.ResponseDeadlineMinutes,
		ResponseDeadline:        now.Add(time.Duration(tier.ResponseDeadlineMinutes) * time.Minute),
		RequiredActions:         tier.RequiredActions,
		ConsecutiveSameCause:    obs.ConsecutiveSameCause,
		ReworkRatePerHour:       obs.ReworkRatePerHour,
		LineStopMinutes:         obs.LineStopMinutes,
		DefectCode:              defectCode,
		Status:                  string(engine.AlertActive),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.andonRepo.Create(ctx, ev); err != nil {
		return nil, false, fmt.Errorf("create alert: %w", err)
	}
	s.kpi.Invalidate(ctx)

	s.logger.Info("andon alert raised",
		zap.String("alert_code", ev.AlertCode),
		zap.String("line_id", lineID),
		zap.Int("level", ev.Level),
		zap.String("triggered_by", ev.TriggeredBy))
	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeAndon, ev.ID, ev.AlertCode, "create", "", ev.Status,
		fmt.Sprintf("L%d 安灯告警: 产线 %s 触发 %s", ev.Level, lineID, ev.TriggeredBy), userID)
	s.hub.PublishLine(sse.EventAndonRaised, lineID, ev)

	snapshot := *ev
	s.dispatch(func(ctx context.Context) {
		taskID, err := s.notifier.NotifyRaised(ctx, &snapshot)
		if err != nil {
			s.logger.Warn("andon notify failed", zap.String("alert_code", snapshot.AlertCode), zap.Error(err))
		}
		if taskID == "" {
			return
		}
		if err := s.andonRepo.SetFeishuTaskID(ctx, snapshot.ID, taskID); err != nil {
			s.logger.Warn("save andon task id failed", zap.String("alert_code", snapshot.AlertCode), zap.Error(err))
		}
	})
	return ev, true, nil
}

// Acknowledge 确认告警
func (s *AndonService) Acknowledge(ctx context.Context, id, actor string) (*entity.EscalationEvent, error) {
	return s.transition(ctx, id, actor, engine.AlertAcknowledged, "")
}

// ResolveRequest 关闭告警请求
type ResolveRequest struct {
	CorrectiveAction string `json:"corrective_action"`
}

// Resolve 关闭告警，需填写纠正措施
func (s *AndonService) Resolve(ctx context.Context, id, actor string, req *ResolveRequest) (*entity.EscalationEvent, error) {
	return s.transition(ctx, id, actor, engine.AlertResolved, req.CorrectiveAction)
}

func (s *AndonService) transition(ctx context.Context, id, actor string, to engine.AlertStatus, correctiveAction string) (*entity.EscalationEvent, error) {
	ev, err := s.andonRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor, correctiveAction = strings.TrimSpace(actor), strings.TrimSpace(correctiveAction)
	from := ev.Status
	if err := engine.CheckAlertTransition(engine.AlertStatus(from), to, actor, correctiveAction); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updates := map[string]interface{}{"status": string(to), "updated_at": now}
	switch to {
	case engine.AlertAcknowledged:
		updates["acknowledged_by"] = actor
		updates["acknowledged_at"] = now
	case engine.AlertResolved:
		updates["resolved_by"] = actor
		updates["resolved_at"] = now
		updates["corrective_action"] = correctiveAction
	}
	if err := s.andonRepo.UpdateStatus(ctx, id, from, updates); err != nil {
		return nil, err
	}
	s.kpi.Invalidate(ctx)

	ev, err = s.andonRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeAndon, ev.ID, ev.AlertCode, "status_change", from, ev.Status,
		fmt.Sprintf("安灯告警 %s: %s -> %s", ev.AlertCode, from, ev.Status), actor)
	s.hub.PublishLine(sse.EventAndonUpdated, ev.LineID, ev)

	snapshot := *ev
	s.dispatch(func(ctx context.Context) {
		if err := s.notifier.NotifyUpdated(ctx, &snapshot); err != nil {
			s.logger.Warn("andon update notify failed", zap.String("alert_code", snapshot.AlertCode), zap.Error(err))
		}
	})
	return ev, nil
}

// dispatch 后台执行通知
func (s *AndonService) dispatch(fn func(ctx context.Context)) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait 等待进行中的通知完成
func (s *AndonService) Wait() {
	s.wg.Wait()
}
