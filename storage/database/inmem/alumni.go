package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core/alumni"
)

type alumniRepository struct {
	mu   sync.RWMutex
	subs map[string]alumni.Subscription // keyed by alumniID+year
}

var _ alumni.Repository = (*alumniRepository)(nil)

func NewAlumniRepository() *alumniRepository {
	return &alumniRepository{subs: make(map[string]alumni.Subscription)}
}

func subscriptionKey(alumniID string, year int) string {
	return fmt.Sprintf("%s/%d", alumniID, year)
}

func (repo *alumniRepository) CreateSubscription(ctx context.Context, sub alumni.Subscription) (alumni.Subscription, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	key := subscriptionKey(sub.AlumniID, sub.Year)
	if _, ok := repo.subs[key]; ok {
		return alumni.Subscription{}, alumni.ErrYearPaid
	}
	repo.subs[key] = sub
	return sub, nil
}

func (repo *alumniRepository) GetSubscription(ctx context.Context, alumniID string, year int) (alumni.Subscription, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if sub, ok := repo.subs[subscriptionKey(alumniID, year)]; ok {
		return sub, nil
	}
	return alumni.Subscription{}, alumni.ErrNotFound
}

func (repo *alumniRepository) QuerySubscriptionsByAlumni(ctx context.Context, alumniID string) ([]alumni.Subscription, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var subs []alumni.Subscription
	for _, sub := range repo.subs {
		if sub.AlumniID == alumniID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Year < subs[j].Year })
	return subs, nil
}
