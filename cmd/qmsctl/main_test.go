package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/config"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/testutil"
	"gorm.io/gorm"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClassifyCmd(t *testing.T) {
	out, err := runCLI(t, "classify", "--actual", "60", "--target", "50", "--json")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["status"] != "atRisk" {
		t.Fatalf("status = %q, want atRisk", got["status"])
	}

	out, err = runCLI(t, "classify", "--actual", "30", "--target", "50")
	if err != nil || !strings.Contains(out, "Excellent") {
		t.Fatalf("table output: %q, %v", out, err)
	}

	if _, err := runCLI(t, "classify", "--actual", "1"); err == nil {
		t.Fatal("expected error without --target or --category")
	}
}

func TestClassifyByCategory(t *testing.T) {
	out, err := runCLI(t, "classify", "--actual", "1.2", "--category", "rework", "--json")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var got map[string]interface{}
	json.Unmarshal([]byte(out), &got)
	if got["target"] != 1.0 || got["status"] != "atRisk" {
		t.Fatalf("unexpected result: %v", got)
	}

	if _, err := runCLI(t, "classify", "--actual", "1", "--category", "bogus"); err == nil {
		t.Fatal("expected unknown category error")
	}
}

func TestEscalateCmd(t *testing.T) {
	out, err := runCLI(t, "escalate", "--consecutive", "3", "--json")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	var got struct {
		Tier *struct {
			Level       int    `json:"level"`
			TriggeredBy string `json:"triggered_by"`
		} `json:"tier"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Tier == nil || got.Tier.Level != 2 {
		t.Fatalf("tier = %+v, want level 2", got.Tier)
	}

	out, err = runCLI(t, "escalate", "--line-stop", "45")
	if err != nil || !strings.Contains(out, "emergency meeting") {
		t.Fatalf("line stop: %q, %v", out, err)
	}

	out, err = runCLI(t, "escalate", "--rate", "0.1")
	if err != nil || !strings.Contains(out, "无需升级") {
		t.Fatalf("below threshold: %q, %v", out, err)
	}
}

func TestPPMCmd(t *testing.T) {
	out, err := runCLI(t, "ppm", "--defects", "3", "--shipped", "100000", "--json")
	if err != nil {
		t.Fatalf("ppm: %v", err)
	}
	var got map[string]int64
	json.Unmarshal([]byte(out), &got)
	if got["ppm"] != 30 {
		t.Fatalf("ppm = %d, want 30", got["ppm"])
	}

	out, err = runCLI(t, "ppm", "--defects", "3", "--shipped", "100000", "--category", "automotive")
	if err != nil || !strings.Contains(out, "Excellent") {
		t.Fatalf("automotive: %q, %v", out, err)
	}

	if _, err := runCLI(t, "ppm", "--defects", "-1", "--shipped", "10"); err == nil {
		t.Fatal("expected error for negative quantity")
	}
}

func TestTargetsCmd(t *testing.T) {
	out, err := runCLI(t, "targets")
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	for _, cat := range []string{"automotive", "industrial", "machining", "rework", "scrap"} {
		if !strings.Contains(out, cat) {
			t.Errorf("targets output missing %s", cat)
		}
	}
}

func TestParetoCmd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	orig := openDB
	openDB = func(*config.Config) (*gorm.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = orig })

	day := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	testutil.SeedRun(t, db, &entity.ProductionRun{
		RunCode: "PR-1", LineID: "L1", TotalProduced: 100, GoodQty: 90, ReworkQty: 4, ScrapQty: 6, ReworkGoodQty: 4,
		ProducedAt: day,
		Defects: []entity.DefectRecord{
			{DefectCode: "DIM-001", DefectType: "scrap", Quantity: 6},
			{DefectCode: "SUR-002", DefectType: "rework", Quantity: 4, ReworkResult: "good"},
		},
	})
	testutil.SeedRun(t, db, &entity.ProductionRun{
		RunCode: "PR-2", LineID: "L2", TotalProduced: 50, GoodQty: 40, ScrapQty: 10,
		ProducedAt: day,
		Defects:    []entity.DefectRecord{{DefectCode: "SUR-002", DefectType: "scrap", Quantity: 10}},
	})

	out, err := runCLI(t, "pareto", "--from", "2024-03-05", "--to", "2024-03-05", "--line", "L1")
	if err != nil {
		t.Fatalf("pareto: %v", err)
	}
	if !strings.Contains(out, "尺寸超差") || !strings.Contains(out, "60.00") || !strings.Contains(out, "合计") {
		t.Fatalf("unexpected table:\n%s", out)
	}

	out, err = runCLI(t, "pareto", "--from", "2024-03-05", "--to", "2024-03-05", "--json")
	if err != nil {
		t.Fatalf("pareto json: %v", err)
	}
	var report struct {
		TotalQty int `json:"total_qty"`
		Items    []struct {
			Code string `json:"code"`
			Qty  int    `json:"qty"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalQty != 20 || report.Items[0].Code != "SUR-002" || report.Items[0].Qty != 14 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if _, err := runCLI(t, "pareto", "--from", "05/03/2024"); err == nil {
		t.Fatal("expected invalid date error")
	}
}
