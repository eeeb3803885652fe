package engine

import (
	"errors"
	"testing"
)

func TestReconcileScenario(t *testing.T) {
	rec, err := Reconcile(RunInput{TotalProduced: 100, GoodQty: 92}, []DefectItem{
		{DefectCode: "DIM-001", DefectType: DefectTypeScrap, Quantity: 3},
		{DefectCode: "SUR-002", DefectType: DefectTypeRework, Quantity: 5, ReworkResult: ReworkGood},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	d := rec.Disposition
	if d.ScrapQty != 3 || d.ReworkQty != 5 || d.ReworkGoodQty != 5 || d.ReworkScrapQty != 0 || d.ReworkPendingQty != 0 {
		t.Fatalf("unexpected disposition: %+v", d)
	}
	if d.FinalGoodQty() != 97 {
		t.Fatalf("expected finalGood 97, got %d", d.FinalGoodQty())
	}
	if d.FinalRejectQty() != 3 {
		t.Fatalf("expected finalReject 3, got %d", d.FinalRejectQty())
	}
	if d.AccountedQty() != 100 || d.UnaccountedQty() != 0 {
		t.Fatalf("expected 100 accounted, got %d", d.AccountedQty())
	}
}

func TestReconcileItemsOverrideFlatCounts(t *testing.T) {
	rec, err := Reconcile(RunInput{TotalProduced: 50, GoodQty: 40, ReworkQty: 9, ReworkGoodQty: 9}, []DefectItem{
		{DefectCode: "SUR-001", DefectType: DefectTypeRework, Quantity: 2, ReworkResult: ReworkScrap},
		{DefectCode: "SUR-002", DefectType: DefectTypeRework, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	d := rec.Disposition
	if d.ReworkQty != 5 || d.ReworkGoodQty != 0 || d.ReworkScrapQty != 2 || d.ReworkPendingQty != 3 {
		t.Fatalf("itemized rework not authoritative: %+v", d)
	}
	if rec.Items[1].ReworkResult != ReworkPending {
		t.Fatalf("expected empty rework result normalized to pending, got %q", rec.Items[1].ReworkResult)
	}
}

func TestReconcileFlatFallbackPerType(t *testing.T) {
	rec, err := Reconcile(RunInput{TotalProduced: 20, GoodQty: 10, ScrapQty: 4, ReworkQty: 6, ReworkGoodQty: 2}, []DefectItem{
		{DefectCode: "DIM-001", DefectType: DefectTypeScrap, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	d := rec.Disposition
	if d.ScrapQty != 1 {
		t.Fatalf("scrap should come from items, got %d", d.ScrapQty)
	}
	if d.ReworkQty != 6 || d.ReworkGoodQty != 2 || d.ReworkPendingQty != 4 {
		t.Fatalf("rework should come from flat counts, got %+v", d)
	}
}

func TestReconcileDoesNotAutofillGood(t *testing.T) {
	rec, err := Reconcile(RunInput{TotalProduced: 100}, []DefectItem{
		{DefectCode: "DIM-001", DefectType: DefectTypeScrap, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if rec.GoodQty != 0 {
		t.Fatalf("good qty must not be derived, got %d", rec.GoodQty)
	}
	if rec.UnaccountedQty() != 97 {
		t.Fatalf("expected 97 unaccounted, got %d", rec.UnaccountedQty())
	}
}

func TestReconcileErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    RunInput
		items []DefectItem
		check func(error) bool
	}{
		{
			name:  "zero total",
			in:    RunInput{TotalProduced: 0},
			check: func(err error) bool { var e *InvalidQuantityError; return errors.As(err, &e) && e.Field == "total_produced" },
		},
		{
			name:  "negative good",
			in:    RunInput{TotalProduced: 10, GoodQty: -1},
			check: func(err error) bool { var e *InvalidQuantityError; return errors.As(err, &e) && e.Field == "good_qty" },
		},
		{
			name:  "zero item quantity",
			in:    RunInput{TotalProduced: 10},
			items: []DefectItem{{DefectCode: "A", DefectType: DefectTypeScrap, Quantity: 0}},
			check: func(err error) bool { var e *InvalidQuantityError; return errors.As(err, &e) },
		},
		{
			name:  "missing code",
			in:    RunInput{TotalProduced: 10},
			items: []DefectItem{{DefectCode: "A", DefectType: DefectTypeScrap, Quantity: 1}, {DefectCode: " ", DefectType: DefectTypeScrap, Quantity: 1}},
			check: func(err error) bool { var e *MissingDefectCodeError; return errors.As(err, &e) && e.Index == 1 },
		},
		{
			name:  "bad defect type",
			in:    RunInput{TotalProduced: 10},
			items: []DefectItem{{DefectCode: "A", DefectType: "hold", Quantity: 1}},
			check: func(err error) bool { var e *InvalidDispositionError; return errors.As(err, &e) && e.Field == "defect_type" },
		},
		{
			name:  "bad rework result",
			in:    RunInput{TotalProduced: 10},
			items: []DefectItem{{DefectCode: "A", DefectType: DefectTypeRework, Quantity: 1, ReworkResult: "maybe"}},
			check: func(err error) bool { var e *InvalidDispositionError; return errors.As(err, &e) && e.Field == "rework_result" },
		},
		{
			name:  "run balance",
			in:    RunInput{TotalProduced: 10, GoodQty: 8},
			items: []DefectItem{{DefectCode: "A", DefectType: DefectTypeScrap, Quantity: 3}},
			check: func(err error) bool {
				var e *BalanceError
				return errors.As(err, &e) && e.Scope == "run" && e.Accounted == 11 && e.Total == 10 && e.Delta() == 1
			},
		},
		{
			name:  "flat rework split",
			in:    RunInput{TotalProduced: 10, ReworkQty: 2, ReworkGoodQty: 2, ReworkScrapQty: 1},
			check: func(err error) bool { var e *BalanceError; return errors.As(err, &e) && e.Scope == "rework" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.in, tt.items)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation in chain, got %v", err)
			}
			if !tt.check(err) {
				t.Fatalf("unexpected error: %#v", err)
			}
		})
	}
}

func TestReconcileInvariantsAndIdempotence(t *testing.T) {
	results := []ReworkResult{"", ReworkPending, ReworkGood, ReworkScrap}
	for total := 1; total <= 30; total += 7 {
		for good := 0; good <= total; good += 5 {
			for n := 0; n < 4; n++ {
				var items []DefectItem
				for i := 0; i <= n; i++ {
					typ := DefectTypeRework
					if i%2 == 1 {
						typ = DefectTypeScrap
					}
					items = append(items, DefectItem{DefectCode: "C", DefectType: typ, Quantity: i + 1, ReworkResult: results[(i+n)%len(results)]})
				}
				rec, err := Reconcile(RunInput{TotalProduced: total, GoodQty: good}, items)
				if err != nil {
					var be *BalanceError
					if !errors.As(err, &be) {
						t.Fatalf("unexpected error: %v", err)
					}
					continue
				}
				d := rec.Disposition
				if d.GoodQty+d.ReworkQty+d.ScrapQty > d.TotalProduced {
					t.Fatalf("balance invariant broken: %+v", d)
				}
				if d.ReworkGoodQty+d.ReworkScrapQty+d.ReworkPendingQty != d.ReworkQty {
					t.Fatalf("rework invariant broken: %+v", d)
				}

				again, err := Reconcile(d.Input(), rec.Items)
				if err != nil {
					t.Fatalf("re-reconcile error: %v", err)
				}
				if again.Disposition != d {
					t.Fatalf("not idempotent: %+v vs %+v", again.Disposition, d)
				}
			}
		}
	}
}

func TestAutoFillGood(t *testing.T) {
	good, err := AutoFillGood(100, 5, 3)
	if err != nil || good != 92 {
		t.Fatalf("AutoFillGood() = %d, %v", good, err)
	}
	if _, err := AutoFillGood(5, 4, 3); err == nil {
		t.Fatal("expected balance error")
	}
	if _, err := AutoFillGood(5, -1, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
