package alumni

import (
	"context"
	"errors"

	"github.com/elimuhq/elimu/core/payment"
)

var (
	// errors
	ErrNotFound    = errors.New("subscription not found")
	ErrYearPaid    = errors.New("this subscription year is already paid")
	ErrWrongTarget = errors.New("settlement does not target a subscription")
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		GetSubscription(ctx context.Context, alumniID string, year int) (Subscription, error)
		QuerySubscriptionsByAlumni(ctx context.Context, alumniID string) ([]Subscription, error)
	}

	Service struct {
		repo Repository
	}
)

var _ payment.Target = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) MemberSubscriptions(ctx context.Context, alumniID string) ([]Subscription, error) {
	return svc.repo.QuerySubscriptionsByAlumni(ctx, alumniID)
}

// ApplySettlement marks the member's subscription year paid.
func (svc *Service) ApplySettlement(ctx context.Context, rec payment.SettlementRecord) error {
	if rec.Kind != payment.ContextSubscription {
		return ErrWrongTarget
	}
	if _, err := svc.repo.GetSubscription(ctx, rec.AlumniID, rec.Year); err == nil {
		return ErrYearPaid
	} else if err != ErrNotFound {
		return err
	}

	_, err := svc.repo.CreateSubscription(ctx, Subscription{
		AlumniID:      rec.AlumniID,
		Year:          rec.Year,
		Amount:        rec.Amount,
		Method:        rec.Method,
		TransactionID: rec.TransactionID,
		PaidAt:        rec.RecordedAt,
	})
	return err
}
