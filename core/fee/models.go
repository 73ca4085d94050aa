package fee

import (
	"time"

	"github.com/elimuhq/elimu/core"
)

// Entry is one line in a student's fee ledger. Credits come from confirmed
// payments or manual admin adjustments.
type Entry struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	Note          string    `json:"note,omitempty"`
	RecordedBy    string    `json:"recorded_by,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"` // UTC
}

// Statement is a student's ledger with its running total.
type Statement struct {
	StudentID string  `json:"student_id"`
	Total     int64   `json:"total"`
	Entries   []Entry `json:"entries"`
}

// ManualEntry is an admin-recorded adjustment (eg. cash or bank deposit).
type ManualEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Note      string `json:"note"`
}

func (me *ManualEntry) Validate() error {
	me.Note = core.CleanString(me.Note)
	return core.Validate.Struct(me)
}
