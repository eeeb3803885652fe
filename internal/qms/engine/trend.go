package engine

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Bucket is the period granularity of a trend series.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// ParseBucket maps a query value to a Bucket, defaulting to day.
func ParseBucket(s string) (Bucket, error) {
	switch Bucket(s) {
	case "", BucketDay:
		return BucketDay, nil
	case BucketWeek, BucketMonth:
		return Bucket(s), nil
	}
	return "", &InvalidValueError{Field: "bucket", Value: s}
}

// Trend directions. Lower defect percentages are better.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendWorsening = "worsening"
)

// Slopes within ±trendFlatBand percentage points per period count as stable.
const trendFlatBand = 0.05

// TrendPoint is one reconciled run reduced to what a trend needs.
type TrendPoint struct {
	At       time.Time
	Produced int
	Rework   int
	Scrap    int
}

// TrendPeriod is one bucket of a trend series.
type TrendPeriod struct {
	Period    string    `json:"period"`
	Start     time.Time `json:"start"`
	Produced  int       `json:"produced"`
	Rework    int       `json:"rework"`
	Scrap     int       `json:"scrap"`
	ReworkPct float64   `json:"rework_pct"`
	ScrapPct  float64   `json:"scrap_pct"`
	DefectPct float64   `json:"defect_pct"`
}

// Trend is a per-period series with its fitted direction.
type Trend struct {
	Bucket    Bucket        `json:"bucket"`
	Periods   []TrendPeriod `json:"periods"`
	Slope     float64       `json:"slope"`
	Direction string        `json:"direction"`
}

// BuildTrend buckets points by period in their own location and fits a
// least-squares line through the per-period defect percentage.
func BuildTrend(points []TrendPoint, bucket Bucket) Trend {
	byPeriod := make(map[string]*TrendPeriod)
	for _, pt := range points {
		start, label := periodOf(pt.At, bucket)
		p, ok := byPeriod[label]
		if !ok {
			p = &TrendPeriod{Period: label, Start: start}
			byPeriod[label] = p
		}
		p.Produced += pt.Produced
		p.Rework += pt.Rework
		p.Scrap += pt.Scrap
	}

	tr := Trend{Bucket: bucket, Periods: make([]TrendPeriod, 0, len(byPeriod)), Direction: TrendStable}
	for _, p := range byPeriod {
		p.ReworkPct = ComputePercent(int64(p.Rework), int64(p.Produced))
		p.ScrapPct = ComputePercent(int64(p.Scrap), int64(p.Produced))
		p.DefectPct = ComputePercent(int64(p.Rework+p.Scrap), int64(p.Produced))
		tr.Periods = append(tr.Periods, *p)
	}
	sort.Slice(tr.Periods, func(i, j int) bool { return tr.Periods[i].Period < tr.Periods[j].Period })

	if len(tr.Periods) < 2 {
		return tr
	}
	xs := make([]float64, len(tr.Periods))
	ys := make([]float64, len(tr.Periods))
	for i, p := range tr.Periods {
		xs[i] = float64(i)
		ys[i] = p.DefectPct
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	tr.Slope = round2(beta)
	switch {
	case beta > trendFlatBand:
		tr.Direction = TrendWorsening
	case beta < -trendFlatBand:
		tr.Direction = TrendImproving
	}
	return tr
}

func periodOf(t time.Time, bucket Bucket) (time.Time, string) {
	y, m, d := t.Date()
	loc := t.Location()
	switch bucket {
	case BucketMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), fmt.Sprintf("%04d-%02d", y, int(m))
	case BucketWeek:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7
		monday := day.AddDate(0, 0, -offset)
		wy, wk := monday.ISOWeek()
		return monday, fmt.Sprintf("%04d-W%02d", wy, wk)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
	}
}
