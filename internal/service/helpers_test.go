package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"linknote-server/internal/domain"
	"linknote-server/internal/repository"
	"linknote-server/pkg/hash"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (n *recordingNotifier) RecordsChanged(event domain.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func newMemoryRepo() repository.RecordRepository {
	return repository.NewRecordRepository(repository.NewMemoryKV())
}

func seed(t *testing.T, repo repository.RecordRepository, key string, r domain.Record, password string) *domain.Record {
	t.Helper()
	if password != "" {
		h, err := hash.Hash(password)
		if err != nil {
			t.Fatalf("hash.Hash() error = %v", err)
		}
		r.PasswordHash = h
	}
	if err := repo.Save(context.Background(), key, &r); err != nil {
		t.Fatalf("seed %q: %v", key, err)
	}
	return &r
}

type failingRepo struct {
	repository.RecordRepository
	failSave   map[string]bool
	failDelete bool
}

var errStoreDown = errors.New("store unavailable")

func (f *failingRepo) Save(ctx context.Context, key string, r *domain.Record) error {
	if f.failSave[key] {
		return errStoreDown
	}
	return f.RecordRepository.Save(ctx, key, r)
}

func (f *failingRepo) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.RecordRepository.Delete(ctx, key)
}
