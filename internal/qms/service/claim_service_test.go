package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memStore) PutObject(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestClaimLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	claims := env.svc.Claim

	claim, err := claims.Create(ctx, "u1", &CreateClaimRequest{
		ClaimCategory: "industrial", Customer: "ACME", PartNumber: "P-100", DefectQty: 4, ShippedQty: 20000,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if claim.Status != entity.ClaimStatusOpen || !strings.HasPrefix(claim.ClaimNo, "CLM-") {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	if _, err := claims.ChangeStatus(ctx, claim.ID, "u1", &ChangeClaimStatusRequest{Status: entity.ClaimStatusClosed}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("skipping states should fail, got %v", err)
	}
	for _, status := range []string{entity.ClaimStatusInvestigating, entity.ClaimStatusCorrectiveAction} {
		if claim, err = claims.ChangeStatus(ctx, claim.ID, "u1", &ChangeClaimStatusRequest{Status: status}); err != nil {
			t.Fatalf("ChangeStatus(%s) error = %v", status, err)
		}
	}

	_, err = claims.ChangeStatus(ctx, claim.ID, "u1", &ChangeClaimStatusRequest{Status: entity.ClaimStatusClosed, RootCause: "tool wear"})
	var rf *engine.RequiredFieldError
	if !errors.As(err, &rf) || rf.Field != "corrective_action" {
		t.Fatalf("closing without corrective action should fail, got %v", err)
	}

	claim, err = claims.ChangeStatus(ctx, claim.ID, "u1", &ChangeClaimStatusRequest{
		Status: entity.ClaimStatusClosed, RootCause: "tool wear", CorrectiveAction: "tool life counter",
	})
	if err != nil || claim.Status != entity.ClaimStatusClosed || claim.ClosedAt == nil {
		t.Fatalf("close claim = %+v, %v", claim, err)
	}

	desc := "late edit"
	if _, err := claims.Update(ctx, claim.ID, "u1", &UpdateClaimRequest{Description: &desc}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("closed claim must be read-only, got %v", err)
	}
	if _, err := claims.ChangeStatus(ctx, claim.ID, "u1", &ChangeClaimStatusRequest{Status: entity.ClaimStatusOpen}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("reopen should fail, got %v", err)
	}

	logs, _ := env.repos.ActivityLog.FindByEntity(ctx, entity.EntityTypeClaim, claim.ID)
	closed := 0
	for _, l := range logs {
		if l.Action == "status_change" && l.ToStatus == entity.ClaimStatusClosed {
			closed++
		}
	}
	if len(logs) != 4 || closed != 1 {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestClaimValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   CreateClaimRequest
		field string
	}{
		{"category", CreateClaimRequest{ClaimCategory: "aerospace", Customer: "X", ShippedQty: 1}, "claim_category"},
		{"shipped", CreateClaimRequest{ClaimCategory: "machining", Customer: "X", DefectQty: 1}, "shipped_qty"},
		{"defects", CreateClaimRequest{ClaimCategory: "machining", Customer: "X", DefectQty: -1, ShippedQty: 5}, "defect_qty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Claim.Create(ctx, "u1", &tt.req)
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tt.field || !errors.Is(err, engine.ErrValidation) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClaimEvidence(t *testing.T) {
	store := newMemStore()
	env := newTestEnv(t, nil, store)
	ctx := context.Background()

	claim, err := env.svc.Claim.Create(ctx, "u1", &CreateClaimRequest{ClaimCategory: "automotive", Customer: "OEM", ShippedQty: 100})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, _, err := env.svc.Claim.DownloadEvidence(ctx, claim.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before upload, got %v", err)
	}

	updated, err := env.svc.Claim.UploadEvidence(ctx, claim.ID, "u1", strings.NewReader("photo"), "crack.jpg", 5, "image/jpeg")
	if err != nil {
		t.Fatalf("UploadEvidence() error = %v", err)
	}
	if !strings.HasPrefix(updated.EvidenceObject, "claims/"+claim.ClaimNo+"/") || !strings.HasSuffix(updated.EvidenceObject, ".jpg") {
		t.Fatalf("unexpected object key %s", updated.EvidenceObject)
	}
	if store.types[updated.EvidenceObject] != "image/jpeg" {
		t.Fatalf("content type not passed through")
	}

	rc, got, err := env.svc.Claim.DownloadEvidence(ctx, claim.ID)
	if err != nil {
		t.Fatalf("DownloadEvidence() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "photo" || got.EvidenceName != "crack.jpg" {
		t.Fatalf("unexpected evidence %q %+v", data, got)
	}
}

func TestClaimEvidenceWithoutStorage(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	claim, _ := env.svc.Claim.Create(ctx, "u1", &CreateClaimRequest{ClaimCategory: "automotive", Customer: "OEM", ShippedQty: 100})
	if _, err := env.svc.Claim.UploadEvidence(ctx, claim.ID, "u1", strings.NewReader("x"), "a.pdf", 1, "application/pdf"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
