package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/testutil"
)

func TestAndonRepositoryLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAndonRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	code, err := repo.GenerateCode(ctx, now)
	if err != nil || code != "AND-20260302-0001" {
		t.Fatalf("GenerateCode() = %s, %v", code, err)
	}
	ev := &entity.EscalationEvent{
		AlertCode:               code,
		LineID:                  "L1",
		Level:                   2,
		TriggeredBy:             "consecutiveDefect",
		ResponseDeadlineMinutes: 15,
		ResponseDeadline:        now.Add(15 * time.Minute),
		RequiredActions:         []string{"root-cause analysis", "notify maintenance"},
		Status:                  "active",
	}
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	open, err := repo.FindOpen(ctx, "L1", 2)
	if err != nil || open.ID != ev.ID {
		t.Fatalf("FindOpen() = %+v, %v", open, err)
	}
	if len(open.RequiredActions) != 2 || open.RequiredActions[1] != "notify maintenance" {
		t.Fatalf("required actions not round-tripped: %v", open.RequiredActions)
	}
	if _, err := repo.FindOpen(ctx, "L1", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.UpdateStatus(ctx, ev.ID, "active", map[string]interface{}{"status": "acknowledged", "acknowledged_by": "u1"}); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := repo.UpdateStatus(ctx, ev.ID, "active", map[string]interface{}{"status": "acknowledged"}); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}

	counts, err := repo.CountActive(ctx)
	if err != nil || counts[2] != 1 {
		t.Fatalf("CountActive() = %v, %v", counts, err)
	}

	if err := repo.UpdateStatus(ctx, ev.ID, "acknowledged", map[string]interface{}{"status": "resolved"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := repo.FindOpen(ctx, "L1", 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolved alert should not be open, got %v", err)
	}
}
