package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/core/user"
)

// pushWaitTimeout bounds the background wait for the confirmation push;
// past it the payer falls back to the manual status check.
const pushWaitTimeout = 2 * time.Minute

type paymentApi struct {
	svc    *payment.Service
	usrSvc *user.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *payment.Service, usrSvc *user.Service) {
	api := paymentApi{svc: svc, usrSvc: usrSvc}

	pg := g.Group("/payments", jwt)
	pg.POST("/stk", api.initiate)
	pg.POST("/status", api.checkStatus)
	pg.POST("/free", api.recordFree)
	pg.GET("/settlements", api.querySettlements, adminMiddleware())
}

// Handlers

// initiate fires the STK push and returns immediately with the checkout
// request ID; confirmation and settlement recording continue in the
// background off the push channel.
func (api *paymentApi) initiate(ctx echo.Context) error {
	var data StkPushRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StkPushRequest")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	fillContextDefaults(claims, data.Amount, &data.Context)

	// a broken settlement context must fail before any money moves
	if err = data.Context.Validate(); err != nil {
		return err
	}

	checkoutID, err := api.svc.InitiateCharge(ctx.Request().Context(), payment.ChargeRequest{
		Amount:      data.Amount,
		Phone:       data.Phone,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	go confirmInBackground(api.svc, checkoutID, data.Context)

	return ctx.JSON(http.StatusAccepted, StkPushResponse{CheckoutRequestID: checkoutID})
}

// confirmInBackground runs the pipeline tail detached from the request:
// wait for the confirmation push and record the settlement on success.
func confirmInBackground(svc *payment.Service, checkoutID string, sctx payment.SettlementContext) {
	bctx, cancel := context.WithTimeout(context.Background(), pushWaitTimeout)
	defer cancel()
	svc.ConfirmAndRecord(bctx, checkoutID, sctx)
}

// checkStatus is the payer-triggered fallback when no push notification
// arrived. A confirmed charge is recorded here with the same once-only
// guarantees as the push path.
func (api *paymentApi) checkStatus(ctx echo.Context) error {
	var data ChargeStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChargeStatusRequest")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	fillContextDefaults(claims, data.Context.Amount, &data.Context)

	rctx := ctx.Request().Context()
	outcome, err := api.svc.CheckStatus(rctx, data.CheckoutRequestID)
	if err != nil {
		return err
	}

	resp := ChargeStatusResponse{Outcome: outcome}
	if outcome.Succeeded() {
		rec, err := api.svc.RecordSettlement(rctx, data.CheckoutRequestID, outcome, data.Context)
		switch errors.Cause(err) {
		case nil:
			resp.Settlement = &rec
		case payment.ErrAlreadySettled:
			// the push path won the race; the payer still sees success
		default:
			return err
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// recordFree settles a zero-cost item without touching the gateway.
func (api *paymentApi) recordFree(ctx echo.Context) error {
	var data payment.SettlementContext
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SettlementContext")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	fillContextDefaults(claims, 0, &data)

	rec, err := api.svc.RecordFree(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *paymentApi) querySettlements(ctx echo.Context) error {
	recs, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying settlements")
	}
	if recs == nil {
		recs = []payment.SettlementRecord{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

// fillContextDefaults resolves the settlement context against the
// authenticated payer: owner IDs and the amount default to the caller's.
func fillContextDefaults(claims Claims, amount int64, sctx *payment.SettlementContext) {
	sctx.RecordedBy = claims.Username
	if sctx.PayerEmail == "" {
		sctx.PayerEmail = claims.Email
	}
	if sctx.Amount == 0 {
		sctx.Amount = amount
	}
	switch sctx.Kind {
	case payment.ContextEnrollment, payment.ContextFees:
		if sctx.StudentID == "" {
			sctx.StudentID = claims.Subject
		}
	case payment.ContextSubscription:
		if sctx.AlumniID == "" {
			sctx.AlumniID = claims.Subject
		}
	}
}

type (
	StkPushRequest struct {
		Amount  int64                     `json:"amount"`
		Phone   string                    `json:"phone"`
		Context payment.SettlementContext `json:"context"`
	}

	StkPushResponse struct {
		CheckoutRequestID string `json:"checkout_request_id"`
	}

	ChargeStatusRequest struct {
		CheckoutRequestID string                    `json:"checkout_request_id"`
		Context           payment.SettlementContext `json:"context"`
	}

	ChargeStatusResponse struct {
		Outcome    payment.ChargeOutcome     `json:"outcome"`
		Settlement *payment.SettlementRecord `json:"settlement,omitempty"`
	}
)
