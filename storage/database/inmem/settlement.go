package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/elimuhq/elimu/core/payment"
)

type settlementRepository struct {
	mu   sync.RWMutex
	recs []payment.SettlementRecord
}

var _ payment.Repository = (*settlementRepository)(nil)

func NewSettlementRepository() *settlementRepository {
	return &settlementRepository{}
}

func (repo *settlementRepository) CreateSettlement(ctx context.Context, rec payment.SettlementRecord) (payment.SettlementRecord, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if rec.CheckoutID != "" {
		for _, r := range repo.recs {
			if r.CheckoutID == rec.CheckoutID {
				return payment.SettlementRecord{}, payment.ErrAlreadySettled
			}
		}
	}
	repo.recs = append(repo.recs, rec)
	return rec, nil
}

func (repo *settlementRepository) GetSettlementByCheckoutID(ctx context.Context, checkoutID string) (payment.SettlementRecord, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, r := range repo.recs {
		if r.CheckoutID == checkoutID && checkoutID != "" {
			return r, nil
		}
	}
	return payment.SettlementRecord{}, payment.ErrNotFound
}

func (repo *settlementRepository) QueryAllSettlements(ctx context.Context) ([]payment.SettlementRecord, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	recs := make([]payment.SettlementRecord, len(repo.recs))
	copy(recs, repo.recs)
	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordedAt.Before(recs[j].RecordedAt) })
	return recs, nil
}
