package service

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func sampleParetoReport() *ParetoReport {
	p := engine.BuildPareto([]engine.ParetoRecord{
		{Code: "DIM-001", Category: "dimension", Quantity: 6},
		{Code: "SUR-001", Category: "surface", Quantity: 3},
		{Code: "MAT-001", Category: "material", Quantity: 1},
	})
	return &ParetoReport{
		Pareto:    p,
		VitalFew:  p.VitalFew(vitalFewThreshold),
		CodeNames: map[string]string{"DIM-001": "尺寸超差", "SUR-001": "划伤"},
	}
}

func TestParetoXLSX(t *testing.T) {
	f, err := NewExportService().ParetoXLSX(sampleParetoReport())
	if err != nil {
		t.Fatalf("ParetoXLSX() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Pareto")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header, 3 items and a summary row, got %d rows", len(rows))
	}
	if rows[0][1] != "缺陷代码" || rows[1][0] != "1" || rows[1][1] != "DIM-001" || rows[1][2] != "尺寸超差" || rows[1][4] != "6" {
		t.Fatalf("unexpected rows: %v", rows[:2])
	}
	if rows[4][0] != "合计" || rows[4][4] != "10" {
		t.Fatalf("unexpected summary row: %v", rows[4])
	}

	cats, err := f.GetRows("Categories")
	if err != nil || len(cats) != 4 || cats[1][0] != "dimension" {
		t.Fatalf("unexpected categories sheet: %v, %v", cats, err)
	}
}

func TestParetoCSV(t *testing.T) {
	svc := NewExportService()
	report := sampleParetoReport()

	var plain bytes.Buffer
	if err := svc.ParetoCSV(&plain, report, false); err != nil {
		t.Fatalf("ParetoCSV() error = %v", err)
	}
	records, err := csv.NewReader(&plain).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	want := []string{"1", "DIM-001", "尺寸超差", "dimension", "6", "60.00", "60.00"}
	if strings.Join(records[1], "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected first row %v", records[1])
	}
	if records[3][2] != "" || records[3][6] != "100.00" {
		t.Fatalf("unexpected last row %v", records[3])
	}

	var encoded bytes.Buffer
	if err := svc.ParetoCSV(&encoded, report, true); err != nil {
		t.Fatalf("ParetoCSV(gbk) error = %v", err)
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(encoded.Bytes())
	if err != nil {
		t.Fatalf("decode gbk: %v", err)
	}
	if !strings.Contains(string(decoded), "尺寸超差") || bytes.Contains(encoded.Bytes(), []byte("尺寸超差")) {
		t.Fatal("csv should be written in gbk")
	}
}

func TestParetoFilename(t *testing.T) {
	name := ParetoFilename("xlsx")
	if !strings.HasPrefix(name, "Pareto_") || !strings.HasSuffix(name, ".xlsx") {
		t.Fatalf("unexpected filename %s", name)
	}
}
