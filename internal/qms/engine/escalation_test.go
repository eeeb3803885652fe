package engine

import (
	"errors"
	"testing"
)

func TestClassifyEscalationScenario(t *testing.T) {
	tier := ClassifyEscalation(3, 0.2, 0)
	if tier == nil {
		t.Fatal("expected a tier")
	}
	if tier.Level != 2 || tier.TriggeredBy != TriggerConsecutiveDefect || tier.ResponseDeadlineMinutes != 15 {
		t.Fatalf("unexpected tier: %+v", tier)
	}
	if len(tier.RequiredActions) != 3 {
		t.Fatalf("expected level-2 actions, got %v", tier.RequiredActions)
	}
}

func TestClassifyEscalationTable(t *testing.T) {
	tests := []struct {
		name      string
		consec    int
		rework    float64
		stop      float64
		wantLevel int
		wantBy    Trigger
	}{
		{"nothing", 0, 0, 0, 0, ""},
		{"single defect", 1, 0, 0, 1, TriggerConsecutiveDefect},
		{"rework level 1", 0, 0.30, 0, 1, TriggerReworkRate},
		{"rework below level 1", 0, 0.29, 0, 0, ""},
		{"rework level 2", 0, 0.5, 0, 2, TriggerReworkRate},
		{"five consecutive", 5, 0, 0, 3, TriggerConsecutiveDefect},
		{"line stop only", 0, 0, 30, 3, TriggerLineStop},
		{"short line stop", 0, 0, 29, 0, ""},
		{"rework level 3", 0, 1.0, 0, 3, TriggerReworkRate},
		{"highest wins", 1, 0.6, 45, 3, TriggerLineStop},
		{"consecutive before rework in tier", 3, 0.5, 0, 2, TriggerConsecutiveDefect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyEscalation(tt.consec, tt.rework, tt.stop)
			if tt.wantLevel == 0 {
				if got != nil {
					t.Fatalf("expected no tier, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected level %d, got none", tt.wantLevel)
			}
			if got.Level != tt.wantLevel || got.TriggeredBy != tt.wantBy {
				t.Fatalf("got level %d by %s, want %d by %s", got.Level, got.TriggeredBy, tt.wantLevel, tt.wantBy)
			}
		})
	}
}

func TestClassifyEscalationMonotonic(t *testing.T) {
	level := func(tr *Tier) int {
		if tr == nil {
			return 0
		}
		return tr.Level
	}
	for c := 0; c < 8; c++ {
		for r := 0.0; r <= 1.5; r += 0.1 {
			for s := 0.0; s <= 40; s += 5 {
				base := level(ClassifyEscalation(c, r, s))
				if level(ClassifyEscalation(c+1, r, s)) < base ||
					level(ClassifyEscalation(c, r+0.1, s)) < base ||
					level(ClassifyEscalation(c, r, s+5)) < base {
					t.Fatalf("level decreased from (%d, %v, %v)", c, r, s)
				}
			}
		}
	}
}

func TestClassifyDoesNotShareActions(t *testing.T) {
	a := ClassifyEscalation(5, 0, 0)
	a.RequiredActions[0] = "changed"
	b := ClassifyEscalation(5, 0, 0)
	if b.RequiredActions[0] == "changed" {
		t.Fatal("classifier leaked its action slice")
	}
}

func TestNewEscalationPolicyValidation(t *testing.T) {
	tests := []struct {
		name  string
		rules []TierRule
	}{
		{"zero level", []TierRule{{Level: 0, MinConsecutive: 1, ResponseMinutes: 5}}},
		{"duplicate level", []TierRule{{Level: 1, MinConsecutive: 1, ResponseMinutes: 5}, {Level: 1, MinConsecutive: 2, ResponseMinutes: 5}}},
		{"negative threshold", []TierRule{{Level: 1, MinReworkRate: -1, MinConsecutive: 1, ResponseMinutes: 5}}},
		{"no response time", []TierRule{{Level: 1, MinConsecutive: 1}}},
		{"no trigger", []TierRule{{Level: 1, ResponseMinutes: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEscalationPolicy(tt.rules); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCustomPolicyOrdersByLevel(t *testing.T) {
	p, err := NewEscalationPolicy([]TierRule{
		{Level: 1, MinConsecutive: 2, ResponseMinutes: 10},
		{Level: 2, MinLineStopMinutes: 10, ResponseMinutes: 20},
	})
	if err != nil {
		t.Fatalf("NewEscalationPolicy() error = %v", err)
	}
	rules := p.Rules()
	if rules[0].Level != 2 || rules[1].Level != 1 {
		t.Fatalf("rules not ordered: %+v", rules)
	}
	got := p.Classify(Observation{ConsecutiveSameCause: 2, LineStopMinutes: 12})
	if got == nil || got.Level != 2 || got.TriggeredBy != TriggerLineStop {
		t.Fatalf("unexpected tier: %+v", got)
	}
	if p.Classify(Observation{ConsecutiveSameCause: 1}) != nil {
		t.Fatal("expected no tier below thresholds")
	}
}

func TestCheckAlertTransition(t *testing.T) {
	if err := CheckAlertTransition(AlertActive, AlertAcknowledged, "u1", ""); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := CheckAlertTransition(AlertAcknowledged, AlertResolved, "u1", "replaced fixture"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, step := range [][2]AlertStatus{
		{AlertActive, AlertResolved},
		{AlertResolved, AlertActive},
		{AlertAcknowledged, AlertActive},
		{AlertResolved, AlertAcknowledged},
		{AlertActive, AlertActive},
	} {
		if err := CheckAlertTransition(step[0], step[1], "u1", "x"); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", step[0], step[1], err)
		}
	}

	var rf *RequiredFieldError
	if err := CheckAlertTransition(AlertActive, AlertAcknowledged, "", ""); !errors.As(err, &rf) || rf.Field != "actor" {
		t.Fatalf("expected actor required, got %v", err)
	}
	if err := CheckAlertTransition(AlertAcknowledged, AlertResolved, "u1", ""); !errors.As(err, &rf) || rf.Field != "corrective_action" {
		t.Fatalf("expected corrective_action required, got %v", err)
	}
	if err := CheckAlertTransition(AlertAcknowledged, AlertResolved, "u1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// whitespace is not an actor or an action
	if err := CheckAlertTransition(AlertActive, AlertAcknowledged, "  \t", ""); !errors.As(err, &rf) || rf.Field != "actor" {
		t.Fatalf("expected blank actor rejected, got %v", err)
	}
	if err := CheckAlertTransition(AlertAcknowledged, AlertResolved, " ", "fix"); !errors.As(err, &rf) || rf.Field != "actor" {
		t.Fatalf("expected blank resolver rejected, got %v", err)
	}
	if err := CheckAlertTransition(AlertAcknowledged, AlertResolved, "u1", "\n  "); !errors.As(err, &rf) || rf.Field != "corrective_action" {
		t.Fatalf("expected blank corrective_action rejected, got %v", err)
	}
}
