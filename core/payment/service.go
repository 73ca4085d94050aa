package payment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/elimuhq/elimu/core"
)

var (
	// errors
	ErrNotFound       = errors.New("settlement not found")
	ErrNoCheckoutID   = errors.New("no pending payment, please re-initiate payment")
	ErrMissingID      = errors.New("gateway response is missing the checkout request ID")
	ErrNotConfirmed   = errors.New("settlement requires a confirmed payment with a transaction ID")
	ErrAlreadySettled = errors.New("this payment has already been recorded")
	ErrUnknownContext = errors.New("unknown settlement context")

	chargesInitiated  = metrics.NewCounter(`elimu_charges_initiated_total`)
	chargesConfirmed  = metrics.NewCounter(`elimu_charges_confirmed_total`)
	chargesFailed     = metrics.NewCounter(`elimu_charges_failed_total`)
	settlementsTotal  = metrics.NewCounter(`elimu_settlements_recorded_total`)
	settlementErrors  = metrics.NewCounter(`elimu_settlement_record_errors_total`)
	listenerDropTotal = metrics.NewCounter(`elimu_push_listener_drops_total`)
)

// RecordingError wraps a failure that happened after the charge was confirmed:
// money has moved but the settlement could not be recorded. The client must
// not blindly retry; support reconciles manually.
type RecordingError struct {
	CheckoutID string
	Err        error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("payment succeeded but recording failed, please contact support (checkout %s): %v", e.CheckoutID, e.Err)
}

func (e *RecordingError) Unwrap() error { return e.Err }

type (
	// Gateway is the external mobile-money API the pipeline drives.
	Gateway interface {
		// CreateCharge sends an STK push and returns the checkout request ID
		// correlating the charge with its asynchronous confirmation.
		CreateCharge(ctx context.Context, phone string, amount int64) (string, error)
		// QueryStatus asks for the charge's current status.
		QueryStatus(ctx context.Context, checkoutID string) (StatusResult, error)
	}

	// Listener subscribes to the confirmation push channel and blocks until
	// the single terminal notification for the checkout ID arrives, the
	// channel drops, or ctx is cancelled.
	Listener interface {
		Await(ctx context.Context, checkoutID string) (ChargeOutcome, error)
	}

	// Target applies a recorded settlement to its business entity.
	Target interface {
		ApplySettlement(ctx context.Context, rec SettlementRecord) error
	}

	// EventPublisher broadcasts recorded settlements to downstream consumers.
	EventPublisher interface {
		SettlementRecorded(ctx context.Context, rec SettlementRecord)
	}

	Repository interface {
		CreateSettlement(ctx context.Context, rec SettlementRecord) (SettlementRecord, error)
		GetSettlementByCheckoutID(ctx context.Context, checkoutID string) (SettlementRecord, error)
		QueryAllSettlements(ctx context.Context) ([]SettlementRecord, error)
	}

	Service struct {
		gw       Gateway
		listener Listener
		repo     Repository
		targets  map[string]Target
		mailSvc  core.EmailService
		events   EventPublisher
		logger   core.Logger

		mu        sync.Mutex
		recording map[string]bool // checkout IDs with a settlement write in flight
	}
)

func NewService(
	gw Gateway,
	listener Listener,
	repo Repository,
	mailSvc core.EmailService,
	events EventPublisher,
	logger core.Logger,
) *Service {
	return &Service{
		gw:        gw,
		listener:  listener,
		repo:      repo,
		targets:   make(map[string]Target),
		mailSvc:   mailSvc,
		events:    events,
		logger:    logger,
		recording: make(map[string]bool),
	}
}

// RegisterTarget binds a settlement context kind to the service that applies it.
func (svc *Service) RegisterTarget(kind string, target Target) {
	svc.targets[kind] = target
}

// InitiateCharge validates the request and sends the STK push. Validation
// failures never reach the network; the gateway's own error messages are
// surfaced verbatim; there is no automatic retry.
func (svc *Service) InitiateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	checkoutID, err := svc.gw.CreateCharge(ctx, req.Phone, req.Amount)
	if err != nil {
		return "", err
	}
	// a 2xx response without the correlation ID is still a failure
	if checkoutID == "" {
		return "", ErrMissingID
	}

	chargesInitiated.Inc()
	return checkoutID, nil
}

// AwaitConfirmation waits for the single push notification resolving the
// charge. Transport errors degrade to Pending: the payer falls back to the
// manual status check instead of seeing a scary error for a charge that may
// well have gone through.
func (svc *Service) AwaitConfirmation(ctx context.Context, checkoutID string) ChargeOutcome {
	outcome, err := svc.listener.Await(ctx, checkoutID)
	if err != nil {
		listenerDropTotal.Inc()
		svc.logger.Warn(fmt.Sprintf("push channel dropped for checkout %s: %v", checkoutID, err), err)
		return PendingOutcome()
	}
	if outcome.Succeeded() {
		chargesConfirmed.Inc()
	} else if outcome.Failed() {
		chargesFailed.Inc()
	}
	return outcome
}

// CheckStatus is the payer-triggered fallback when the push notification
// never arrives. Safe to call repeatedly.
func (svc *Service) CheckStatus(ctx context.Context, checkoutID string) (ChargeOutcome, error) {
	if core.CleanString(checkoutID) == "" {
		return ChargeOutcome{}, core.NewValidationError(ErrNoCheckoutID)
	}

	res, err := svc.gw.QueryStatus(ctx, checkoutID)
	if err != nil {
		return ChargeOutcome{}, err
	}
	return OutcomeFromResult(res), nil
}

// RecordSettlement persists a confirmed payment against its business entity.
// A settlement is never created from anything but a succeeded outcome carrying
// a transaction ID, and a checkout ID settles at most once: the push
// resolution and a near-simultaneous manual poll cannot double-record.
func (svc *Service) RecordSettlement(
	ctx context.Context,
	checkoutID string,
	outcome ChargeOutcome,
	sctx SettlementContext,
) (SettlementRecord, error) {
	if !outcome.Succeeded() || outcome.TransactionID == "" {
		return SettlementRecord{}, ErrNotConfirmed
	}
	if err := sctx.Validate(); err != nil {
		return SettlementRecord{}, err
	}

	rec := SettlementRecord{
		CheckoutID:    checkoutID,
		Amount:        sctx.Amount,
		Method:        MethodMpesa,
		TransactionID: outcome.TransactionID,
		PayerPhone:    outcome.PayerPhone,
		Kind:          sctx.Kind,
		StudentID:     sctx.StudentID,
		CourseID:      sctx.CourseID,
		AlumniID:      sctx.AlumniID,
		Year:          sctx.Year,
		Note:          sctx.Note,
		RecordedBy:    sctx.RecordedBy,
		RecordedAt:    time.Now().UTC(),
	}
	return svc.record(ctx, rec, sctx)
}

// RecordFree records a zero-cost enrollment directly; the charge pipeline is
// bypassed entirely and the settlement carries a synthesized marker.
func (svc *Service) RecordFree(ctx context.Context, sctx SettlementContext) (SettlementRecord, error) {
	if err := sctx.Validate(); err != nil {
		return SettlementRecord{}, err
	}

	rec := SettlementRecord{
		Method:        MethodFree,
		TransactionID: FreeTransactionID,
		Kind:          sctx.Kind,
		StudentID:     sctx.StudentID,
		CourseID:      sctx.CourseID,
		AlumniID:      sctx.AlumniID,
		Year:          sctx.Year,
		Note:          sctx.Note,
		RecordedBy:    sctx.RecordedBy,
		RecordedAt:    time.Now().UTC(),
	}
	return svc.record(ctx, rec, sctx)
}

// ConfirmAndRecord runs the tail of the pipeline for an initiated charge:
// wait for the push notification and, on success, record the settlement.
// A Pending resolution leaves recording to the manual status check.
func (svc *Service) ConfirmAndRecord(ctx context.Context, checkoutID string, sctx SettlementContext) {
	outcome := svc.AwaitConfirmation(ctx, checkoutID)
	switch {
	case outcome.Succeeded():
		if _, err := svc.RecordSettlement(ctx, checkoutID, outcome, sctx); err != nil && err != ErrAlreadySettled {
			svc.logger.Error(fmt.Sprintf("recording settlement for checkout %s: %v", checkoutID, err), err)
		}
	case outcome.Failed():
		svc.logger.Info(fmt.Sprintf("charge %s failed: %s (%s)", checkoutID, outcome.ReasonText, outcome.ReasonCode))
	default:
		// pending: push channel closed without a notification,
		// the manual status check is the recovery path
	}
}

// QueryAll lists every recorded settlement.
func (svc *Service) QueryAll(ctx context.Context) ([]SettlementRecord, error) {
	return svc.repo.QueryAllSettlements(ctx)
}

func (svc *Service) record(ctx context.Context, rec SettlementRecord, sctx SettlementContext) (SettlementRecord, error) {
	target, ok := svc.targets[rec.Kind]
	if !ok {
		return SettlementRecord{}, ErrUnknownContext
	}

	if rec.CheckoutID != "" {
		if !svc.beginRecording(rec.CheckoutID) {
			return SettlementRecord{}, ErrAlreadySettled
		}
		// released on every exit: once persisted the durable record takes
		// over the guard, and a failed write must stay retryable so the
		// manual poll can surface the recording failure instead of a
		// phantom "already recorded"
		defer svc.endRecording(rec.CheckoutID)

		if _, err := svc.repo.GetSettlementByCheckoutID(ctx, rec.CheckoutID); err == nil {
			return SettlementRecord{}, ErrAlreadySettled
		} else if err != ErrNotFound {
			return SettlementRecord{}, &RecordingError{CheckoutID: rec.CheckoutID, Err: err}
		}
	}

	rec.ID = uuid.NewString()
	created, err := svc.repo.CreateSettlement(ctx, rec)
	if err != nil {
		settlementErrors.Inc()
		return SettlementRecord{}, &RecordingError{CheckoutID: rec.CheckoutID, Err: err}
	}
	if err = target.ApplySettlement(ctx, created); err != nil {
		settlementErrors.Inc()
		return SettlementRecord{}, &RecordingError{CheckoutID: rec.CheckoutID, Err: err}
	}

	settlementsTotal.Inc()
	if svc.events != nil {
		svc.events.SettlementRecorded(ctx, created)
	}
	svc.sendReceipt(created, sctx)
	return created, nil
}

// beginRecording claims the checkout ID for a settlement write, losing to a
// concurrent writer that already holds it.
func (svc *Service) beginRecording(checkoutID string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.recording[checkoutID] {
		return false
	}
	svc.recording[checkoutID] = true
	return true
}

func (svc *Service) endRecording(checkoutID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.recording, checkoutID)
}

func (svc *Service) sendReceipt(rec SettlementRecord, sctx SettlementContext) {
	if sctx.PayerEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: sctx.PayerName, Address: sctx.PayerEmail}},
		Subject:      "Payment Receipt",
		TemplateName: "payment-receipt",
		TemplateData: struct {
			Amount        int64
			TransactionID string
			RecordedAt    time.Time
		}{rec.Amount, rec.TransactionID, rec.RecordedAt},
	})
}
