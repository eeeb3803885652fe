package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
)

func scrapRun(minute int, code string) *SubmitRunRequest {
	return &SubmitRunRequest{
		LineID:        "L1",
		Shift:         entity.ShiftA,
		TotalProduced: 1000,
		GoodQty:       999,
		ProducedAt:    at(minute),
		Defects:       []DefectItemRequest{{DefectCode: code, DefectType: "scrap", Quantity: 1}},
	}
}

func TestAutoEscalationOnConsecutiveSameCause(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	prod := env.svc.Production

	first, err := prod.Submit(ctx, "u1", scrapRun(0, "DIM-001"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first.Alert == nil || first.Alert.Level != 1 || first.Alert.ConsecutiveSameCause != 1 || first.Alert.DefectCode != "DIM-001" {
		t.Fatalf("expected L1 alert, got %+v", first.Alert)
	}

	second, err := prod.Submit(ctx, "u1", scrapRun(10, "DIM-001"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second.Alert == nil || second.Alert.ID != first.Alert.ID {
		t.Fatalf("open L1 alert should be reused, got %+v", second.Alert)
	}

	third, err := prod.Submit(ctx, "u1", scrapRun(20, "DIM-001"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	alert := third.Alert
	if alert == nil || alert.Level != 2 || alert.TriggeredBy != string(engine.TriggerConsecutiveDefect) || alert.ConsecutiveSameCause != 3 {
		t.Fatalf("expected L2 consecutive alert, got %+v", alert)
	}
	if alert.ResponseDeadlineMinutes != 15 || len(alert.RequiredActions) != 3 {
		t.Fatalf("unexpected tier data: %+v", alert)
	}

	// a different cause restarts the streak
	other, err := prod.Submit(ctx, "u1", scrapRun(30, "SUR-001"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if other.Alert == nil || other.Alert.Level != 1 {
		t.Fatalf("expected existing L1 alert, got %+v", other.Alert)
	}
	run, _ := env.repos.Run.FindByID(ctx, other.Run.ID)
	obs, code, err := env.svc.Andon.Observe(ctx, run)
	if err != nil || code != "SUR-001" || obs.ConsecutiveSameCause != 1 {
		t.Fatalf("Observe() = %+v, %s, %v", obs, code, err)
	}
}

func TestTopDefectCode(t *testing.T) {
	got := topDefectCode([]entity.DefectRecord{
		{DefectCode: "SUR-002", Quantity: 2},
		{DefectCode: "DIM-001", Quantity: 1},
		{DefectCode: "DIM-001", Quantity: 1},
	})
	if got != "DIM-001" {
		t.Fatalf("tie should break by code, got %s", got)
	}
	if topDefectCode(nil) != "" {
		t.Fatal("expected empty code for no defects")
	}
}

func TestManualEvaluate(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	env.svc.Andon.now = func() time.Time { return now }

	res, err := env.svc.Andon.Evaluate(ctx, "u1", &EvaluateRequest{LineID: "L7", ConsecutiveSameCause: 3, ReworkRatePerHour: 0.2})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Tier == nil || res.Tier.Level != 2 || res.Duplicate || res.Alert == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Alert.ResponseDeadline.Equal(now.Add(15*time.Minute)) || res.Alert.AlertCode != "AND-20260302-0001" {
		t.Fatalf("unexpected alert: %+v", res.Alert)
	}

	again, err := env.svc.Andon.Evaluate(ctx, "u1", &EvaluateRequest{LineID: "L7", ConsecutiveSameCause: 4})
	if err != nil || !again.Duplicate || again.Alert.ID != res.Alert.ID {
		t.Fatalf("expected duplicate, got %+v, %v", again, err)
	}

	quiet, err := env.svc.Andon.Evaluate(ctx, "u1", &EvaluateRequest{LineID: "L7", ReworkRatePerHour: 0.1, LineStopMinutes: -5})
	if err != nil || quiet.Tier != nil || quiet.Alert != nil || quiet.Observation.LineStopMinutes != 0 {
		t.Fatalf("expected no escalation, got %+v, %v", quiet, err)
	}
}

func TestAlertLifecycle(t *testing.T) {
	notifier := &fakeNotifier{taskID: "task-1"}
	env := newTestEnv(t, notifier, nil)
	ctx := context.Background()
	andon := env.svc.Andon

	res, err := andon.Evaluate(ctx, "u1", &EvaluateRequest{LineID: "L1", LineStopMinutes: 45})
	if err != nil || res.Alert == nil || res.Alert.Level != 3 || res.Alert.TriggeredBy != string(engine.TriggerLineStop) {
		t.Fatalf("expected L3 line-stop alert, got %+v, %v", res, err)
	}
	id := res.Alert.ID

	if _, err := andon.Resolve(ctx, id, "u2", &ResolveRequest{CorrectiveAction: "fix"}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("resolve from active should fail, got %v", err)
	}
	if _, err := andon.Acknowledge(ctx, id, ""); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("acknowledge without actor should fail, got %v", err)
	}
	if _, err := andon.Acknowledge(ctx, id, "   "); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("acknowledge with blank actor should fail, got %v", err)
	}

	ev, err := andon.Acknowledge(ctx, id, "u2")
	if err != nil || ev.Status != "acknowledged" || ev.AcknowledgedBy != "u2" || ev.AcknowledgedAt == nil {
		t.Fatalf("Acknowledge() = %+v, %v", ev, err)
	}
	if _, err := andon.Acknowledge(ctx, id, "u3"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("double acknowledge should fail, got %v", err)
	}
	if _, err := andon.Resolve(ctx, id, "u2", &ResolveRequest{}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("resolve without corrective action should fail, got %v", err)
	}
	if _, err := andon.Resolve(ctx, id, "u2", &ResolveRequest{CorrectiveAction: " \t "}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("resolve with blank corrective action should fail, got %v", err)
	}

	ev, err = andon.Resolve(ctx, id, "u2", &ResolveRequest{CorrectiveAction: "  replaced worn fixture "})
	if err != nil || ev.Status != "resolved" || ev.CorrectiveAction != "replaced worn fixture" || ev.ResolvedAt == nil {
		t.Fatalf("Resolve() = %+v, %v", ev, err)
	}
	if _, err := andon.Resolve(ctx, id, "u2", &ResolveRequest{CorrectiveAction: "again"}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("resolved alert must not change, got %v", err)
	}

	andon.Wait()
	notifier.mu.Lock()
	raised, updated := len(notifier.raised), append([]string(nil), notifier.updated...)
	notifier.mu.Unlock()
	sort.Strings(updated)
	if raised != 1 || len(updated) != 2 || updated[0] != "acknowledged" || updated[1] != "resolved" {
		t.Fatalf("unexpected notifications: raised=%d updated=%v", raised, updated)
	}
	stored, _ := andon.Get(ctx, id)
	if stored.FeishuTaskID != "task-1" {
		t.Fatalf("expected task id saved, got %q", stored.FeishuTaskID)
	}

	// a resolved alert no longer blocks a new one
	next, err := andon.Evaluate(ctx, "u1", &EvaluateRequest{LineID: "L1", LineStopMinutes: 45})
	if err != nil || next.Duplicate || next.Alert.ID == id {
		t.Fatalf("expected a new alert, got %+v, %v", next, err)
	}

	logs, _ := env.repos.ActivityLog.FindByEntity(ctx, entity.EntityTypeAndon, id)
	if len(logs) != 3 {
		t.Fatalf("expected 3 activity logs, got %d", len(logs))
	}
	if _, err := andon.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
