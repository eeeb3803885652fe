package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/testutil"
)

func TestDefectCodeRepositoryUpsert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewDefectCodeRepository(db)
	ctx := context.Background()

	if err := repo.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults() on seeded table error = %v", err)
	}
	all, err := repo.FindAll(ctx, "", false)
	if err != nil || len(all) != len(entity.DefaultDefectCodes()) {
		t.Fatalf("FindAll() = %d, %v", len(all), err)
	}

	err = repo.Upsert(ctx, []entity.DefectCode{
		{Code: "DIM-001", Name: "外径超差", Category: entity.DefectCategoryDimension, Severity: entity.SeverityCritical, Active: false},
		{Code: "NEW-001", Name: "新缺陷", Category: entity.DefectCategoryOther, Severity: entity.SeverityMinor, Active: true},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	dc, err := repo.FindByCode(ctx, "DIM-001")
	if err != nil {
		t.Fatalf("FindByCode() error = %v", err)
	}
	if dc.Name != "外径超差" || dc.Severity != entity.SeverityCritical || dc.Active {
		t.Fatalf("upsert did not update: %+v", dc)
	}

	active, _ := repo.FindAll(ctx, entity.DefectCategoryDimension, true)
	for _, c := range active {
		if c.Code == "DIM-001" {
			t.Fatal("inactive code returned by active filter")
		}
	}

	byCode, err := repo.FindByCodes(ctx, []string{"NEW-001", "NOPE"})
	if err != nil || len(byCode) != 1 || byCode["NEW-001"].Name != "新缺陷" {
		t.Fatalf("FindByCodes() = %v, %v", byCode, err)
	}
}

func TestClaimRepositoryTotals(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewClaimRepository(db)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	for i, c := range []entity.ClaimRecord{
		{ClaimNo: "CLM-A", ClaimCategory: "automotive", Customer: "OEM-1", DefectQty: 2, ShippedQty: 100000, ClaimDate: day},
		{ClaimNo: "CLM-B", ClaimCategory: "automotive", Customer: "OEM-2", DefectQty: 1, ShippedQty: 150000, ClaimDate: day.Add(24 * time.Hour)},
		{ClaimNo: "CLM-C", ClaimCategory: "machining", Customer: "Shop", DefectQty: 5, ShippedQty: 1000, ClaimDate: day.AddDate(0, -2, 0)},
	} {
		c := c
		c.Status = entity.ClaimStatusOpen
		if err := repo.Create(ctx, &c); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	from := day.AddDate(0, 0, -7)
	rows, err := repo.TotalsByCategory(ctx, &from, nil)
	if err != nil {
		t.Fatalf("TotalsByCategory() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ClaimCategory != "automotive" || rows[0].DefectQty != 3 || rows[0].ShippedQty != 250000 || rows[0].Claims != 2 {
		t.Fatalf("unexpected totals: %+v", rows)
	}

	list, total, err := repo.FindAll(ctx, 1, 10, map[string]string{"customer": "OEM"})
	if err != nil || total != 2 || len(list) != 2 || list[0].ClaimNo != "CLM-B" {
		t.Fatalf("FindAll() = %+v, %d, %v", list, total, err)
	}

	code, err := repo.GenerateCode(ctx)
	if err != nil || code != "CLM-"+time.Now().Format("2006")+"-0001" {
		t.Fatalf("GenerateCode() = %s, %v", code, err)
	}
}
