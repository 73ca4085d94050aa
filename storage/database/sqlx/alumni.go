package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/elimu/core/alumni"
)

type alumniRepository struct {
	db *sqlx.DB
}

var _ alumni.Repository = (*alumniRepository)(nil)

func NewAlumniRepository(db *sqlx.DB) *alumniRepository {
	return &alumniRepository{db: db}
}

type subscriptionRow struct {
	ID            string    `db:"id"`
	AlumniID      string    `db:"alumni_id"`
	Year          int       `db:"year"`
	Amount        int64     `db:"amount"`
	Method        string    `db:"method"`
	TransactionID string    `db:"transaction_id"`
	PaidAt        null.Time `db:"paid_at"`
}

func (r subscriptionRow) toSubscription() alumni.Subscription {
	return alumni.Subscription{
		ID:            r.ID,
		AlumniID:      r.AlumniID,
		Year:          r.Year,
		Amount:        r.Amount,
		Method:        r.Method,
		TransactionID: r.TransactionID,
		PaidAt:        r.PaidAt.Time,
	}
}

func (repo *alumniRepository) CreateSubscription(ctx context.Context, sub alumni.Subscription) (alumni.Subscription, error) {
	q := `
INSERT INTO alumni_subscription (alumni_id, year, amount, method, transaction_id, paid_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	err := repo.db.GetContext(ctx, &sub.ID, q,
		sub.AlumniID, sub.Year, sub.Amount, sub.Method, sub.TransactionID, sub.PaidAt.UTC())
	if err != nil {
		return alumni.Subscription{}, errors.Wrap(err, "creating subscription")
	}
	return sub, nil
}

func (repo *alumniRepository) GetSubscription(ctx context.Context, alumniID string, year int) (alumni.Subscription, error) {
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM alumni_subscription WHERE alumni_id = $1 AND year = $2`, alumniID, year)
	if err != nil {
		if err == sql.ErrNoRows {
			return alumni.Subscription{}, alumni.ErrNotFound
		}
		return alumni.Subscription{}, errors.Wrap(err, "getting subscription")
	}
	return row.toSubscription(), nil
}

func (repo *alumniRepository) QuerySubscriptionsByAlumni(ctx context.Context, alumniID string) ([]alumni.Subscription, error) {
	var rows []subscriptionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM alumni_subscription WHERE alumni_id = $1 ORDER BY year`, alumniID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]alumni.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toSubscription())
	}
	return subs, nil
}
