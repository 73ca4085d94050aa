package alumni

import "time"

// Subscription is one alumni member's membership for one calendar year,
// marked paid by a settlement.
type Subscription struct {
	ID            string    `json:"id"`
	AlumniID      string    `json:"alumni_id"`
	Year          int       `json:"year"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"` // UTC
}
