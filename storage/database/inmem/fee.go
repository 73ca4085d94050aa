package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core/fee"
)

type feeRepository struct {
	mu      sync.RWMutex
	entries []fee.Entry
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository() *feeRepository {
	return &feeRepository{}
}

func (repo *feeRepository) CreateEntry(ctx context.Context, e fee.Entry) (fee.Entry, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	repo.entries = append(repo.entries, e)
	return e, nil
}

func (repo *feeRepository) QueryEntriesByStudent(ctx context.Context, studentID string) ([]fee.Entry, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var entries []fee.Entry
	for _, e := range repo.entries {
		if e.StudentID == studentID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RecordedAt.Before(entries[j].RecordedAt) })
	return entries, nil
}
