package engine

import (
	"math"
	"sort"
)

// ParetoRecord is one defect quantity to be ranked.
type ParetoRecord struct {
	Code     string
	Category string
	Quantity int
}

// ParetoItem is one ranked defect code.
type ParetoItem struct {
	Code          string  `json:"code"`
	Category      string  `json:"category"`
	Qty           int     `json:"qty"`
	PctOfTotal    float64 `json:"pct_of_total"`
	CumulativePct float64 `json:"cumulative_pct"`
}

// CategoryTotal is a per-category rollup.
type CategoryTotal struct {
	Category string `json:"category"`
	Qty      int    `json:"qty"`
}

// Pareto is a frequency table ready for 80/20 analysis.
type Pareto struct {
	TotalQty   int             `json:"total_qty"`
	Items      []ParetoItem    `json:"items"`
	Categories []CategoryTotal `json:"categories"`
}

// VitalFew returns the leading items up to and including the one that brings
// the cumulative share to threshold percent.
func (p Pareto) VitalFew(threshold float64) []ParetoItem {
	for i, it := range p.Items {
		if it.CumulativePct >= threshold {
			return p.Items[:i+1]
		}
	}
	return p.Items
}

// BuildPareto groups records by defect code, sorted by quantity descending
// with ties broken by code. Non-positive quantities are ignored. A code keeps
// the category of its first record.
func BuildPareto(records []ParetoRecord) Pareto {
	byCode := make(map[string]*ParetoItem)
	byCategory := make(map[string]int)
	total := 0
	for _, r := range records {
		if r.Quantity <= 0 {
			continue
		}
		it, ok := byCode[r.Code]
		if !ok {
			it = &ParetoItem{Code: r.Code, Category: r.Category}
			byCode[r.Code] = it
		}
		it.Qty += r.Quantity
		byCategory[it.Category] += r.Quantity
		total += r.Quantity
	}

	p := Pareto{TotalQty: total, Items: []ParetoItem{}, Categories: []CategoryTotal{}}
	if total == 0 {
		return p
	}

	for _, it := range byCode {
		p.Items = append(p.Items, *it)
	}
	sort.Slice(p.Items, func(i, j int) bool {
		if p.Items[i].Qty != p.Items[j].Qty {
			return p.Items[i].Qty > p.Items[j].Qty
		}
		return p.Items[i].Code < p.Items[j].Code
	})

	cumulative := 0.0
	for i := range p.Items {
		pct := float64(p.Items[i].Qty) / float64(total) * 100
		cumulative += pct
		p.Items[i].PctOfTotal = round2(pct)
		p.Items[i].CumulativePct = round2(cumulative)
	}

	for cat, qty := range byCategory {
		p.Categories = append(p.Categories, CategoryTotal{Category: cat, Qty: qty})
	}
	sort.Slice(p.Categories, func(i, j int) bool {
		if p.Categories[i].Qty != p.Categories[j].Qty {
			return p.Categories[i].Qty > p.Categories[j].Qty
		}
		return p.Categories[i].Category < p.Categories[j].Category
	})
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
