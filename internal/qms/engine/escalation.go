package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Trigger names the observation that crossed a tier threshold.
type Trigger string

const (
	TriggerConsecutiveDefect Trigger = "consecutiveDefect"
	TriggerReworkRate        Trigger = "reworkRate"
	TriggerLineStop          Trigger = "lineStop"
)

// Observation is the classifier input. Values are expected to be non-negative;
// callers clamp bad readings to zero before classifying.
type Observation struct {
	ConsecutiveSameCause int     `json:"consecutive_same_cause"`
	ReworkRatePerHour    float64 `json:"rework_rate_per_hour"`
	LineStopMinutes      float64 `json:"line_stop_minutes"`
}

// TierRule configures one Andon level. A zero threshold disables that trigger.
type TierRule struct {
	Level              int      `json:"level"`
	MinConsecutive     int      `json:"min_consecutive"`
	MinReworkRate      float64  `json:"min_rework_rate"`
	MinLineStopMinutes float64  `json:"min_line_stop_minutes"`
	ResponseMinutes    int      `json:"response_minutes"`
	RequiredActions    []string `json:"required_actions"`
}

// Tier is the classifier result for an observation that crossed a level.
type Tier struct {
	Level                   int      `json:"level"`
	TriggeredBy             Trigger  `json:"triggered_by"`
	ResponseDeadlineMinutes int      `json:"response_deadline_minutes"`
	RequiredActions         []string `json:"required_actions"`
}

type predicate struct {
	trigger Trigger
	matches func(Observation) bool
}

type tier struct {
	rule       TierRule
	predicates []predicate
}

// EscalationPolicy is an ordered, immutable tier table. Tiers are evaluated
// from the highest level down and the first match wins.
type EscalationPolicy struct {
	tiers []tier
}

// NewEscalationPolicy validates rules and orders them by descending level.
func NewEscalationPolicy(rules []TierRule) (*EscalationPolicy, error) {
	seen := make(map[int]bool, len(rules))
	tiers := make([]tier, 0, len(rules))
	for _, r := range rules {
		if r.Level < 1 {
			return nil, fmt.Errorf("escalation level must be positive, got %d", r.Level)
		}
		if seen[r.Level] {
			return nil, fmt.Errorf("duplicate escalation level %d", r.Level)
		}
		seen[r.Level] = true
		if r.MinConsecutive < 0 || r.MinReworkRate < 0 || r.MinLineStopMinutes < 0 {
			return nil, fmt.Errorf("escalation level %d has a negative threshold", r.Level)
		}
		if r.ResponseMinutes <= 0 {
			return nil, fmt.Errorf("escalation level %d needs a positive response time", r.Level)
		}
		r.RequiredActions = append([]string(nil), r.RequiredActions...)
		t := tier{rule: r, predicates: buildPredicates(r)}
		if len(t.predicates) == 0 {
			return nil, fmt.Errorf("escalation level %d has no trigger", r.Level)
		}
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].rule.Level > tiers[j].rule.Level })
	return &EscalationPolicy{tiers: tiers}, nil
}

func buildPredicates(r TierRule) []predicate {
	var ps []predicate
	if threshold := r.MinConsecutive; threshold > 0 {
		ps = append(ps, predicate{TriggerConsecutiveDefect, func(o Observation) bool { return o.ConsecutiveSameCause >= threshold }})
	}
	if threshold := r.MinReworkRate; threshold > 0 {
		ps = append(ps, predicate{TriggerReworkRate, func(o Observation) bool { return o.ReworkRatePerHour >= threshold }})
	}
	if threshold := r.MinLineStopMinutes; threshold > 0 {
		ps = append(ps, predicate{TriggerLineStop, func(o Observation) bool { return o.LineStopMinutes >= threshold }})
	}
	return ps
}

// DefaultTierRules is the standard three-level Andon table.
func DefaultTierRules() []TierRule {
	return []TierRule{
		{
			Level:              3,
			MinConsecutive:     5,
			MinReworkRate:      1.00,
			MinLineStopMinutes: 30,
			ResponseMinutes:    30,
			RequiredActions:    []string{"emergency meeting", "controlled shipping", "notify customer if needed"},
		},
		{
			Level:           2,
			MinConsecutive:  3,
			MinReworkRate:   0.50,
			ResponseMinutes: 15,
			RequiredActions: []string{"root-cause analysis", "notify maintenance", "open structured problem-solving record"},
		},
		{
			Level:           1,
			MinConsecutive:  1,
			MinReworkRate:   0.30,
			ResponseMinutes: 5,
			RequiredActions: []string{"stop machine temporarily", "preliminary check"},
		},
	}
}

var defaultPolicy = mustPolicy(DefaultTierRules())

func mustPolicy(rules []TierRule) *EscalationPolicy {
	p, err := NewEscalationPolicy(rules)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultEscalationPolicy returns the policy built from DefaultTierRules.
func DefaultEscalationPolicy() *EscalationPolicy { return defaultPolicy }

// Rules returns a copy of the tier table, highest level first.
func (p *EscalationPolicy) Rules() []TierRule {
	out := make([]TierRule, len(p.tiers))
	for i, t := range p.tiers {
		r := t.rule
		r.RequiredActions = append([]string(nil), r.RequiredActions...)
		out[i] = r
	}
	return out
}

// Classify returns the highest tier whose triggers match obs, or nil.
func (p *EscalationPolicy) Classify(obs Observation) *Tier {
	for _, t := range p.tiers {
		for _, pred := range t.predicates {
			if pred.matches(obs) {
				return &Tier{
					Level:                   t.rule.Level,
					TriggeredBy:             pred.trigger,
					ResponseDeadlineMinutes: t.rule.ResponseMinutes,
					RequiredActions:         append([]string(nil), t.rule.RequiredActions...),
				}
			}
		}
	}
	return nil
}

// ClassifyEscalation classifies with the default policy.
func ClassifyEscalation(consecutiveSameCauseDefects int, reworkRatePerHour, lineStopMinutes float64) *Tier {
	return defaultPolicy.Classify(Observation{
		ConsecutiveSameCause: consecutiveSameCauseDefects,
		ReworkRatePerHour:    reworkRatePerHour,
		LineStopMinutes:      lineStopMinutes,
	})
}

// AlertStatus is the lifecycle state of an escalation event.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

var alertTransitions = map[AlertStatus]AlertStatus{
	AlertActive:       AlertAcknowledged,
	AlertAcknowledged: AlertResolved,
}

// CheckAlertTransition validates a lifecycle step. Acknowledging needs an
// actor; resolving needs an actor and the corrective action taken. Blank
// values count as missing.
func CheckAlertTransition(from, to AlertStatus, actor, correctiveAction string) error {
	if next, ok := alertTransitions[from]; !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if strings.TrimSpace(actor) == "" {
		return &RequiredFieldError{Field: "actor"}
	}
	if to == AlertResolved && strings.TrimSpace(correctiveAction) == "" {
		return &RequiredFieldError{Field: "corrective_action"}
	}
	return nil
}
