package engine

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestBuildTrendDaily(t *testing.T) {
	tr := BuildTrend([]TrendPoint{
		{At: day(2026, 3, 2, 8), Produced: 100, Rework: 2, Scrap: 1},
		{At: day(2026, 3, 2, 20), Produced: 100, Rework: 0, Scrap: 1},
		{At: day(2026, 3, 1, 9), Produced: 200, Rework: 10, Scrap: 0},
	}, BucketDay)
	if len(tr.Periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(tr.Periods))
	}
	first, second := tr.Periods[0], tr.Periods[1]
	if first.Period != "2026-03-01" || first.DefectPct != 5 {
		t.Fatalf("unexpected first period: %+v", first)
	}
	if second.Period != "2026-03-02" || second.Produced != 200 || second.ReworkPct != 1 || second.ScrapPct != 1 || second.DefectPct != 2 {
		t.Fatalf("unexpected second period: %+v", second)
	}
	if tr.Slope != -3 || tr.Direction != TrendImproving {
		t.Fatalf("slope %v direction %s", tr.Slope, tr.Direction)
	}
}

func TestBuildTrendWeekAndMonth(t *testing.T) {
	points := []TrendPoint{
		{At: day(2026, 1, 4, 10), Produced: 100, Scrap: 1},  // Sunday, ISO week 1
		{At: day(2026, 1, 5, 10), Produced: 100, Scrap: 2},  // Monday, week 2
		{At: day(2026, 1, 11, 10), Produced: 100, Scrap: 3}, // Sunday, week 2
		{At: day(2026, 2, 1, 10), Produced: 100, Scrap: 9},
	}
	weeks := BuildTrend(points, BucketWeek)
	if len(weeks.Periods) != 3 {
		t.Fatalf("expected 3 weeks, got %+v", weeks.Periods)
	}
	if weeks.Periods[0].Period != "2026-W01" || weeks.Periods[1].Period != "2026-W02" || weeks.Periods[1].Scrap != 5 {
		t.Fatalf("unexpected weeks: %+v", weeks.Periods)
	}
	if !weeks.Periods[1].Start.Equal(day(2026, 1, 5, 0)) {
		t.Fatalf("week should start on Monday, got %v", weeks.Periods[1].Start)
	}

	months := BuildTrend(points, BucketMonth)
	if len(months.Periods) != 2 || months.Periods[0].Period != "2026-01" || months.Periods[0].Scrap != 6 {
		t.Fatalf("unexpected months: %+v", months.Periods)
	}
	if months.Direction != TrendWorsening {
		t.Fatalf("expected worsening, got %s", months.Direction)
	}
}

func TestBuildTrendSinglePeriodIsStable(t *testing.T) {
	tr := BuildTrend([]TrendPoint{{At: day(2026, 3, 1, 1), Produced: 10, Scrap: 5}}, BucketDay)
	if tr.Direction != TrendStable || tr.Slope != 0 {
		t.Fatalf("unexpected trend: %+v", tr)
	}
	empty := BuildTrend(nil, BucketDay)
	if empty.Periods == nil || len(empty.Periods) != 0 {
		t.Fatalf("expected empty periods, got %+v", empty.Periods)
	}
}

func TestParseBucket(t *testing.T) {
	if b, err := ParseBucket(""); err != nil || b != BucketDay {
		t.Fatalf("ParseBucket(\"\") = %s, %v", b, err)
	}
	if b, err := ParseBucket("month"); err != nil || b != BucketMonth {
		t.Fatalf("ParseBucket(month) = %s, %v", b, err)
	}
	_, err := ParseBucket("year")
	var ve *InvalidValueError
	if !errors.Is(err, ErrValidation) || !errors.As(err, &ve) || ve.Field != "bucket" || ve.Value != "year" {
		t.Fatalf("expected bucket value error, got %v", err)
	}
	if strings.Contains(err.Error(), "defect item") {
		t.Fatalf("bucket error should not mention defect items: %v", err)
	}
}
