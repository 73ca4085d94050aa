package payment

import (
	"time"

	"github.com/elimuhq/elimu/core"
)

// Charge outcome statuses.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Result codes reported by the gateway on a status query.
const (
	ResultSuccess  = "0"
	ResultWrongPIN = "2001"
	ResultTimeout  = "1037"
)

var resultTexts = map[string]string{
	ResultWrongPIN: "payment failed: wrong PIN entered or initiator error",
	ResultTimeout:  "payment failed: no response from your phone before the request expired",
}

const resultTextGeneric = "payment failed, please try again"

// Settlement contexts: which business entity a confirmed payment applies to.
const (
	ContextEnrollment   = "enrollment"   // course enrollment
	ContextSubscription = "subscription" // alumni subscription year
	ContextFees         = "fees"         // student fee ledger
)

// Settlement methods.
const (
	MethodMpesa  = "mpesa"
	MethodFree   = "free"
	MethodManual = "manual"
)

// FreeTransactionID marks zero-cost enrollments recorded without a charge.
const FreeTransactionID = "FREE"

// ChargeRequest is what the payer submits to start an STK push.
// Immutable once sent; Amount is in minor currency units.
type ChargeRequest struct {
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	Phone       string    `json:"phone" validate:"required,kemobile"`
	RequestedAt time.Time `json:"requested_at"`
}

func (cr *ChargeRequest) Validate() error {
	cr.Phone = core.CleanString(cr.Phone)
	if cr.RequestedAt.IsZero() {
		cr.RequestedAt = time.Now().UTC()
	}
	return core.Validate.Struct(cr)
}

// ChargeOutcome is the terminal (or not yet terminal) result of one charge
// attempt, produced by either the push channel or a manual status query.
type ChargeOutcome struct {
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	PayerPhone    string    `json:"payer_phone,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	ReasonCode    string    `json:"reason_code,omitempty"`
	ReasonText    string    `json:"reason_text,omitempty"`
}

func (o ChargeOutcome) Succeeded() bool { return o.Status == StatusSucceeded }
func (o ChargeOutcome) Failed() bool    { return o.Status == StatusFailed }
func (o ChargeOutcome) Pending() bool   { return o.Status == StatusPending }

// Pending returns the non-terminal outcome.
func PendingOutcome() ChargeOutcome {
	return ChargeOutcome{Status: StatusPending}
}

// StatusResult is the gateway's raw answer to a status query. Either the
// ResultCode/ResultDesc pair or the generic Status/Message pair is set.
type StatusResult struct {
	ResultCode    string
	ResultDesc    string
	Status        string
	Message       string
	TransactionID string
}

// OutcomeFromResult maps a gateway status result onto a ChargeOutcome.
// The result-code discrimination (0 / 2001 / 1037 / other) is deliberate
// domain knowledge; each known failure gets its own user-facing message.
func OutcomeFromResult(res StatusResult) ChargeOutcome {
	if res.ResultCode != "" {
		switch res.ResultCode {
		case ResultSuccess:
			return ChargeOutcome{
				Status:        StatusSucceeded,
				TransactionID: res.TransactionID,
				Timestamp:     time.Now().UTC(),
			}
		case ResultWrongPIN, ResultTimeout:
			return ChargeOutcome{
				Status:     StatusFailed,
				ReasonCode: res.ResultCode,
				ReasonText: resultTexts[res.ResultCode],
			}
		default:
			return ChargeOutcome{
				Status:     StatusFailed,
				ReasonCode: res.ResultCode,
				ReasonText: resultTextGeneric,
			}
		}
	}

	switch res.Status {
	case "success":
		return ChargeOutcome{
			Status:        StatusSucceeded,
			TransactionID: res.TransactionID,
			Timestamp:     time.Now().UTC(),
		}
	case "pending", "":
		return PendingOutcome()
	default:
		return ChargeOutcome{
			Status:     StatusFailed,
			ReasonText: res.Message,
		}
	}
}

// SettlementContext identifies the business entity a payment applies to.
type SettlementContext struct {
	Kind       string `json:"kind" validate:"required,oneof=enrollment subscription fees"`
	Amount     int64  `json:"amount" validate:"gte=0"`
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	AlumniID   string `json:"alumni_id"`
	Year       int    `json:"year"`
	Note       string `json:"note"`
	PayerName  string `json:"payer_name"`
	PayerEmail string `json:"payer_email" validate:"omitempty,email"`
	RecordedBy string `json:"-"`
}

func (sc *SettlementContext) Validate() error {
	sc.Kind = core.CleanString(sc.Kind, true /* lower */)
	sc.PayerEmail = core.CleanString(sc.PayerEmail, true /* lower */)

	if err := core.Validate.Struct(sc); err != nil {
		return err
	}

	var flds []core.FieldError
	missing := func(field string) {
		flds = append(flds, core.FieldError{Field: field, Error: "this field is required"})
	}
	switch sc.Kind {
	case ContextEnrollment:
		if sc.StudentID == "" {
			missing("student_id")
		}
		if sc.CourseID == "" {
			missing("course_id")
		}
	case ContextSubscription:
		if sc.AlumniID == "" {
			missing("alumni_id")
		}
		if sc.Year == 0 {
			missing("year")
		}
	case ContextFees:
		if sc.StudentID == "" {
			missing("student_id")
		}
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// SettlementRecord is the durable record that a payment was received and
// applied to a business entity. Created only from a succeeded outcome.
type SettlementRecord struct {
	ID            string    `json:"id"`
	CheckoutID    string    `json:"checkout_id,omitempty"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	PayerPhone    string    `json:"payer_phone,omitempty"`
	Kind          string    `json:"kind"`
	StudentID     string    `json:"student_id,omitempty"`
	CourseID      string    `json:"course_id,omitempty"`
	AlumniID      string    `json:"alumni_id,omitempty"`
	Year          int       `json:"year,omitempty"`
	Note          string    `json:"note,omitempty"`
	RecordedBy    string    `json:"recorded_by,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"` // UTC
}
