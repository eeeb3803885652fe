package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bitfantasy/nimo-qms/internal/config"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"github.com/bitfantasy/nimo-qms/internal/qms/testutil"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type testEnv struct {
	svc   *Services
	repos *repository.Repositories
	db    *gorm.DB
	redis *miniredis.Miniredis
}

func newTestEnv(t *testing.T, notifier AlertNotifier, store ObjectStore) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repos := repository.NewRepositories(db)
	svc, err := NewServices(Deps{
		Repos:    repos,
		Redis:    rdb,
		Store:    store,
		Notifier: notifier,
		Quality:  config.QualityConfig{},
	})
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}
	return &testEnv{svc: svc, repos: repos, db: db, redis: mr}
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu      sync.Mutex
	raised  []string
	updated []string
	taskID  string
}

func (f *fakeNotifier) NotifyRaised(_ context.Context, ev *entity.EscalationEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, ev.AlertCode)
	return f.taskID, nil
}

func (f *fakeNotifier) NotifyUpdated(_ context.Context, ev *entity.EscalationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, ev.Status)
	return nil
}

func at(minute int) *time.Time {
	t := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
	return &t
}
