package fee

import (
	"context"
	"errors"
	"time"

	"github.com/elimuhq/elimu/core/payment"
)

var (
	// errors
	ErrNotFound    = errors.New("fee entry not found")
	ErrWrongTarget = errors.New("settlement does not target a fee ledger")
)

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		QueryEntriesByStudent(ctx context.Context, studentID string) ([]Entry, error)
	}

	Service struct {
		repo Repository
	}
)

var _ payment.Target = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Statement returns a student's ledger and running total.
func (svc *Service) Statement(ctx context.Context, studentID string) (Statement, error) {
	entries, err := svc.repo.QueryEntriesByStudent(ctx, studentID)
	if err != nil {
		return Statement{}, err
	}
	st := Statement{StudentID: studentID, Entries: entries}
	for _, e := range entries {
		st.Total += e.Amount
	}
	return st, nil
}

// RecordManual appends an admin adjustment to the student's ledger.
func (svc *Service) RecordManual(ctx context.Context, me ManualEntry, recordedBy string) (Entry, error) {
	if err := me.Validate(); err != nil {
		return Entry{}, err
	}
	return svc.repo.CreateEntry(ctx, Entry{
		StudentID:     me.StudentID,
		Amount:        me.Amount,
		Method:        payment.MethodManual,
		TransactionID: "",
		Note:          me.Note,
		RecordedBy:    recordedBy,
		RecordedAt:    time.Now().UTC(),
	})
}

// ApplySettlement credits a confirmed payment to the student's ledger.
func (svc *Service) ApplySettlement(ctx context.Context, rec payment.SettlementRecord) error {
	if rec.Kind != payment.ContextFees {
		return ErrWrongTarget
	}
	_, err := svc.repo.CreateEntry(ctx, Entry{
		StudentID:     rec.StudentID,
		Amount:        rec.Amount,
		Method:        rec.Method,
		TransactionID: rec.TransactionID,
		Note:          rec.Note,
		RecordedBy:    rec.RecordedBy,
		RecordedAt:    rec.RecordedAt,
	})
	return err
}
