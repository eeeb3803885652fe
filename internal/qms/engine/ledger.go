// Package engine holds the quality-event accounting rules: run reconciliation,
// KPI rate normalization, Andon escalation and Pareto/trend aggregation.
// Every function here is pure; persistence and notification live in the
// service layer.
package engine

import "strings"

// DefectType is the disposition of an itemized defect.
type DefectType string

const (
	DefectTypeRework DefectType = "rework"
	DefectTypeScrap  DefectType = "scrap"
)

// ReworkResult is the second-order outcome of a reworked quantity.
type ReworkResult string

const (
	ReworkPending ReworkResult = "pending"
	ReworkGood    ReworkResult = "good"
	ReworkScrap   ReworkResult = "scrap"
)

// DefectItem is one itemized defect line of a run submission.
type DefectItem struct {
	DefectCode   string
	DefectType   DefectType
	Quantity     int
	ReworkResult ReworkResult
	Measurement  string
	SpecValue    string
}

// RunInput is the operator-entered part of a production run.
//
// ReworkQty, ScrapQty, ReworkGoodQty and ReworkScrapQty are entry-convenience
// counts: they are only read for a defect type that has no itemized lines.
// GoodQty is taken as entered; an omitted value is zero and is never derived.
type RunInput struct {
	TotalProduced  int
	GoodQty        int
	ReworkQty      int
	ScrapQty       int
	ReworkGoodQty  int
	ReworkScrapQty int
}

// Disposition is a reconciled production run.
type Disposition struct {
	TotalProduced    int `json:"total_produced"`
	GoodQty          int `json:"good_qty"`
	ReworkQty        int `json:"rework_qty"`
	ScrapQty         int `json:"scrap_qty"`
	ReworkGoodQty    int `json:"rework_good_qty"`
	ReworkScrapQty   int `json:"rework_scrap_qty"`
	ReworkPendingQty int `json:"rework_pending_qty"`
}

// FinalGoodQty counts first-pass good units plus rework recovered as good.
func (d Disposition) FinalGoodQty() int { return d.GoodQty + d.ReworkGoodQty }

// FinalRejectQty counts direct scrap plus rework that ended as scrap.
func (d Disposition) FinalRejectQty() int { return d.ScrapQty + d.ReworkScrapQty }

// AccountedQty is good + rework + scrap.
func (d Disposition) AccountedQty() int { return d.GoodQty + d.ReworkQty + d.ScrapQty }

// UnaccountedQty is the in-process remainder of totalProduced.
func (d Disposition) UnaccountedQty() int { return d.TotalProduced - d.AccountedQty() }

// Input returns the disposition as a RunInput, for re-reconciliation.
func (d Disposition) Input() RunInput {
	return RunInput{
		TotalProduced:  d.TotalProduced,
		GoodQty:        d.GoodQty,
		ReworkQty:      d.ReworkQty,
		ScrapQty:       d.ScrapQty,
		ReworkGoodQty:  d.ReworkGoodQty,
		ReworkScrapQty: d.ReworkScrapQty,
	}
}

// Reconciliation is the result of Reconcile: the balanced quantities and the
// normalized defect lines they were derived from.
type Reconciliation struct {
	Disposition
	Items []DefectItem
}

// Reconcile validates a run submission and derives its disposition buckets.
//
// For each defect type that has itemized lines, the type's totals are the sum
// of those lines and the flat counts are ignored. Rework lines without a result
// are pending. The run is rejected, never clamped, when good+rework+scrap
// exceeds totalProduced.
func Reconcile(in RunInput, items []DefectItem) (*Reconciliation, error) {
	if in.TotalProduced < 1 {
		return nil, &InvalidQuantityError{Field: "total_produced", Value: in.TotalProduced}
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"good_qty", in.GoodQty},
		{"rework_qty", in.ReworkQty},
		{"scrap_qty", in.ScrapQty},
		{"rework_good_qty", in.ReworkGoodQty},
		{"rework_scrap_qty", in.ReworkScrapQty},
	} {
		if f.value < 0 {
			return nil, &InvalidQuantityError{Field: f.name, Value: f.value}
		}
	}

	normalized, err := normalizeItems(items)
	if err != nil {
		return nil, err
	}

	d := Disposition{TotalProduced: in.TotalProduced, GoodQty: in.GoodQty}

	var hasRework, hasScrap bool
	for _, it := range normalized {
		switch it.DefectType {
		case DefectTypeScrap:
			hasScrap = true
			d.ScrapQty += it.Quantity
		case DefectTypeRework:
			hasRework = true
			d.ReworkQty += it.Quantity
			switch it.ReworkResult {
			case ReworkGood:
				d.ReworkGoodQty += it.Quantity
			case ReworkScrap:
				d.ReworkScrapQty += it.Quantity
			}
		}
	}
	if !hasScrap {
		d.ScrapQty = in.ScrapQty
	}
	if !hasRework {
		d.ReworkQty = in.ReworkQty
		d.ReworkGoodQty = in.ReworkGoodQty
		d.ReworkScrapQty = in.ReworkScrapQty
		if split := d.ReworkGoodQty + d.ReworkScrapQty; split > d.ReworkQty {
			return nil, &BalanceError{Scope: "rework", Accounted: split, Total: d.ReworkQty}
		}
	}

	d.ReworkPendingQty = d.ReworkQty - d.ReworkGoodQty - d.ReworkScrapQty
	if d.ReworkPendingQty < 0 {
		d.ReworkPendingQty = 0
	}

	if accounted := d.AccountedQty(); accounted > d.TotalProduced {
		return nil, &BalanceError{Scope: "run", Accounted: accounted, Total: d.TotalProduced}
	}

	return &Reconciliation{Disposition: d, Items: normalized}, nil
}

// AutoFillGood computes goodQty as the remainder of totalProduced. It is the
// explicit, user-triggered counterpart of Reconcile's no-default policy.
func AutoFillGood(totalProduced, reworkQty, scrapQty int) (int, error) {
	if totalProduced < 1 {
		return 0, &InvalidQuantityError{Field: "total_produced", Value: totalProduced}
	}
	if reworkQty < 0 {
		return 0, &InvalidQuantityError{Field: "rework_qty", Value: reworkQty}
	}
	if scrapQty < 0 {
		return 0, &InvalidQuantityError{Field: "scrap_qty", Value: scrapQty}
	}
	good := totalProduced - reworkQty - scrapQty
	if good < 0 {
		return 0, &BalanceError{Scope: "run", Accounted: reworkQty + scrapQty, Total: totalProduced}
	}
	return good, nil
}

func normalizeItems(items []DefectItem) ([]DefectItem, error) {
	out := make([]DefectItem, 0, len(items))
	for i, it := range items {
		it.DefectCode = strings.TrimSpace(it.DefectCode)
		if it.DefectCode == "" {
			return nil, &MissingDefectCodeError{Index: i}
		}
		if it.Quantity < 1 {
			return nil, &InvalidQuantityError{Field: "defects.quantity", Value: it.Quantity}
		}
		switch it.DefectType {
		case DefectTypeScrap:
			it.ReworkResult = ""
		case DefectTypeRework:
			switch it.ReworkResult {
			case "":
				it.ReworkResult = ReworkPending
			case ReworkPending, ReworkGood, ReworkScrap:
			default:
				return nil, &InvalidDispositionError{Index: i, Field: "rework_result", Value: string(it.ReworkResult)}
			}
		default:
			return nil, &InvalidDispositionError{Index: i, Field: "defect_type", Value: string(it.DefectType)}
		}
		out = append(out, it)
	}
	return out, nil
}
