package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Unit is the measurement unit of a KPI target.
type Unit string

const (
	UnitPPM     Unit = "PPM"
	UnitPercent Unit = "%"
)

// KPI categories. Claim categories are measured in PPM, internal ones in percent.
const (
	CategoryAutomotive = "automotive"
	CategoryIndustrial = "industrial"
	CategoryMachining  = "machining"
	CategoryRework     = "rework"
	CategoryScrap      = "scrap"
)

// ErrUnknownCategory is returned for a category without a configured target.
var ErrUnknownCategory = errors.New("unknown kpi category")

// Status is the band a KPI value falls into relative to its target.
type Status string

const (
	StatusExcellent  Status = "excellent"
	StatusOnTarget   Status = "onTarget"
	StatusAtRisk     Status = "atRisk"
	StatusOverTarget Status = "overTarget"
)

// Classification is the result of Classify.
type Classification struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
}

type band struct {
	maxRatio float64
	status   Status
	label    string
}

// Upper bounds are inclusive. Lower is better for every unit.
var bands = []band{
	{0.6, StatusExcellent, "Excellent"},
	{1.0, StatusOnTarget, "On Target"},
	{1.3, StatusAtRisk, "At Risk"},
}

var overTarget = Classification{Status: StatusOverTarget, Label: "Over Target"}

// ComputePPM returns round(defectQty / shippedQty × 1e6), or 0 when nothing was shipped.
func ComputePPM(defectQty, shippedQty int64) int64 {
	if shippedQty <= 0 {
		return 0
	}
	return int64(math.Round(float64(defectQty) / float64(shippedQty) * 1_000_000))
}

// ComputePercent returns count / total × 100 rounded to two decimals, or 0 when total ≤ 0.
func ComputePercent(count, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(count).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(2).
		InexactFloat64()
}

// Classify bands actual against target by their ratio. A non-positive target
// only tolerates a zero actual.
func Classify(actual, target float64) Classification {
	if target <= 0 {
		if actual <= 0 {
			return Classification{Status: bands[0].status, Label: bands[0].label}
		}
		return overTarget
	}
	ratio := actual / target
	for _, b := range bands {
		if ratio <= b.maxRatio {
			return Classification{Status: b.status, Label: b.label}
		}
	}
	return overTarget
}

// KpiTarget is the static target of one KPI category.
type KpiTarget struct {
	Category string  `json:"category"`
	Target   float64 `json:"target"`
	Unit     Unit    `json:"unit"`
	Strategy string  `json:"strategy"`
}

// KpiResult is a normalized KPI value classified against its target.
type KpiResult struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
	Target   float64 `json:"target"`
	Unit     Unit    `json:"unit"`
	Status   Status  `json:"status"`
	Label    string  `json:"label"`
}

// DefaultTargets is the plant's standard target table.
func DefaultTargets() []KpiTarget {
	return []KpiTarget{
		{Category: CategoryAutomotive, Target: 50, Unit: UnitPPM, Strategy: "IATF 16949 zero-defect drive, CSL escalation on repeat claims"},
		{Category: CategoryIndustrial, Target: 100, Unit: UnitPPM, Strategy: "Outgoing inspection sampling per AQL"},
		{Category: CategoryMachining, Target: 200, Unit: UnitPPM, Strategy: "First-article and in-process SPC"},
		{Category: CategoryRework, Target: 1.0, Unit: UnitPercent, Strategy: "Reduce rework through poka-yoke on top Pareto causes"},
		{Category: CategoryScrap, Target: 0.5, Unit: UnitPercent, Strategy: "Scrap review at daily shift meeting"},
	}
}

// RateCalculator classifies KPI values against a fixed target table. The table
// is copied at construction and never changes afterwards.
type RateCalculator struct {
	targets map[string]KpiTarget
}

// NewRateCalculator builds a calculator over targets; later entries win on duplicate categories.
func NewRateCalculator(targets []KpiTarget) *RateCalculator {
	m := make(map[string]KpiTarget, len(targets))
	for _, t := range targets {
		m[t.Category] = t
	}
	return &RateCalculator{targets: m}
}

// Target returns the configured target for category.
func (c *RateCalculator) Target(category string) (KpiTarget, bool) {
	t, ok := c.targets[category]
	return t, ok
}

// Targets lists the configured targets sorted by category.
func (c *RateCalculator) Targets() []KpiTarget {
	out := make([]KpiTarget, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Evaluate classifies an already normalized value for category.
func (c *RateCalculator) Evaluate(category string, actual float64) (KpiResult, error) {
	t, ok := c.targets[category]
	if !ok {
		return KpiResult{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	cls := Classify(actual, t.Target)
	return KpiResult{
		Category: category,
		Value:    actual,
		Target:   t.Target,
		Unit:     t.Unit,
		Status:   cls.Status,
		Label:    cls.Label,
	}, nil
}

// ClaimPPM computes and classifies an external claim rate.
func (c *RateCalculator) ClaimPPM(category string, defectQty, shippedQty int64) (KpiResult, error) {
	return c.Evaluate(category, float64(ComputePPM(defectQty, shippedQty)))
}

// InternalPercent computes and classifies an internal rework or scrap rate.
func (c *RateCalculator) InternalPercent(category string, count, produced int64) (KpiResult, error) {
	return c.Evaluate(category, ComputePercent(count, produced))
}
