package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/elimu/core/fee"
)

type feeRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository(db *sqlx.DB) *feeRepository {
	return &feeRepository{db: db}
}

type feeEntryRow struct {
	ID            string      `db:"id"`
	StudentID     string      `db:"student_id"`
	Amount        int64       `db:"amount"`
	Method        string      `db:"method"`
	TransactionID null.String `db:"transaction_id"`
	Note          null.String `db:"note"`
	RecordedBy    null.String `db:"recorded_by"`
	RecordedAt    null.Time   `db:"recorded_at"`
}

func (r feeEntryRow) toEntry() fee.Entry {
	return fee.Entry{
		ID:            r.ID,
		StudentID:     r.StudentID,
		Amount:        r.Amount,
		Method:        r.Method,
		TransactionID: r.TransactionID.String,
		Note:          r.Note.String,
		RecordedBy:    r.RecordedBy.String,
		RecordedAt:    r.RecordedAt.Time,
	}
}

func (repo *feeRepository) CreateEntry(ctx context.Context, e fee.Entry) (fee.Entry, error) {
	q := `
INSERT INTO fee_entry (student_id, amount, method, transaction_id, note, recorded_by, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

	err := repo.db.GetContext(ctx, &e.ID, q,
		e.StudentID,
		e.Amount,
		e.Method,
		null.NewString(e.TransactionID, e.TransactionID != ""),
		null.NewString(e.Note, e.Note != ""),
		null.NewString(e.RecordedBy, e.RecordedBy != ""),
		e.RecordedAt.UTC(),
	)
	if err != nil {
		return fee.Entry{}, errors.Wrap(err, "creating fee entry")
	}
	return e, nil
}

func (repo *feeRepository) QueryEntriesByStudent(ctx context.Context, studentID string) ([]fee.Entry, error) {
	var rows []feeEntryRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM fee_entry WHERE student_id = $1 ORDER BY recorded_at`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee entries")
	}
	entries := make([]fee.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}
