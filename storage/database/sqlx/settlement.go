package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/elimu/core/payment"
)

type settlementRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*settlementRepository)(nil)

func NewSettlementRepository(db *sqlx.DB) *settlementRepository {
	return &settlementRepository{db: db}
}

type settlementRow struct {
	ID            string      `db:"id"`
	CheckoutID    null.String `db:"checkout_id"` // NULL for free and manual settlements
	Amount        int64       `db:"amount"`
	Method        string      `db:"method"`
	TransactionID string      `db:"transaction_id"`
	PayerPhone    null.String `db:"payer_phone"`
	Kind          string      `db:"kind"`
	StudentID     null.String `db:"student_id"`
	CourseID      null.String `db:"course_id"`
	AlumniID      null.String `db:"alumni_id"`
	Year          null.Int    `db:"year"`
	Note          null.String `db:"note"`
	RecordedBy    null.String `db:"recorded_by"`
	RecordedAt    null.Time   `db:"recorded_at"`
}

func (r settlementRow) toRecord() payment.SettlementRecord {
	return payment.SettlementRecord{
		ID:            r.ID,
		CheckoutID:    r.CheckoutID.String,
		Amount:        r.Amount,
		Method:        r.Method,
		TransactionID: r.TransactionID,
		PayerPhone:    r.PayerPhone.String,
		Kind:          r.Kind,
		StudentID:     r.StudentID.String,
		CourseID:      r.CourseID.String,
		AlumniID:      r.AlumniID.String,
		Year:          r.Year.Int,
		Note:          r.Note.String,
		RecordedBy:    r.RecordedBy.String,
		RecordedAt:    r.RecordedAt.Time,
	}
}

func rowFromRecord(rec payment.SettlementRecord) settlementRow {
	return settlementRow{
		ID:            rec.ID,
		CheckoutID:    null.NewString(rec.CheckoutID, rec.CheckoutID != ""),
		Amount:        rec.Amount,
		Method:        rec.Method,
		TransactionID: rec.TransactionID,
		PayerPhone:    null.NewString(rec.PayerPhone, rec.PayerPhone != ""),
		Kind:          rec.Kind,
		StudentID:     null.NewString(rec.StudentID, rec.StudentID != ""),
		CourseID:      null.NewString(rec.CourseID, rec.CourseID != ""),
		AlumniID:      null.NewString(rec.AlumniID, rec.AlumniID != ""),
		Year:          null.NewInt(rec.Year, rec.Year != 0),
		Note:          null.NewString(rec.Note, rec.Note != ""),
		RecordedBy:    null.NewString(rec.RecordedBy, rec.RecordedBy != ""),
		RecordedAt:    null.TimeFrom(rec.RecordedAt.UTC()),
	}
}

func (repo *settlementRepository) CreateSettlement(ctx context.Context, rec payment.SettlementRecord) (payment.SettlementRecord, error) {
	q := `
INSERT INTO settlement (id, checkout_id, amount, method, transaction_id, payer_phone, kind,
                        student_id, course_id, alumni_id, year, note, recorded_by, recorded_at)
VALUES (:id, :checkout_id, :amount, :method, :transaction_id, :payer_phone, :kind,
        :student_id, :course_id, :alumni_id, :year, :note, :recorded_by, :recorded_at)`

	if _, err := repo.db.NamedExecContext(ctx, q, rowFromRecord(rec)); err != nil {
		return payment.SettlementRecord{}, errors.Wrap(err, "creating settlement")
	}
	return rec, nil
}

func (repo *settlementRepository) GetSettlementByCheckoutID(ctx context.Context, checkoutID string) (payment.SettlementRecord, error) {
	var row settlementRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM settlement WHERE checkout_id = $1`, checkoutID)
	if err != nil {
		if err == sql.ErrNoRows {
			return payment.SettlementRecord{}, payment.ErrNotFound
		}
		return payment.SettlementRecord{}, errors.Wrap(err, "getting settlement")
	}
	return row.toRecord(), nil
}

func (repo *settlementRepository) QueryAllSettlements(ctx context.Context) ([]payment.SettlementRecord, error) {
	var rows []settlementRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM settlement ORDER BY recorded_at`); err != nil {
		return nil, errors.Wrap(err, "querying settlements")
	}
	recs := make([]payment.SettlementRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toRecord())
	}
	return recs, nil
}
