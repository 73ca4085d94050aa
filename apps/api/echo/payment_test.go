package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/core/user"
	"github.com/elimuhq/elimu/services/events"
)

type failingSettlementRepo struct{}

func (failingSettlementRepo) CreateSettlement(context.Context, payment.SettlementRecord) (payment.SettlementRecord, error) {
	return payment.SettlementRecord{}, errors.New("connection reset")
}

func (failingSettlementRepo) GetSettlementByCheckoutID(context.Context, string) (payment.SettlementRecord, error) {
	return payment.SettlementRecord{}, payment.ErrNotFound
}

func (failingSettlementRepo) QueryAllSettlements(context.Context) ([]payment.SettlementRecord, error) {
	return nil, nil
}

func Test_paymentApi_initiate(t *testing.T) {
	app := newTestApp()
	student := createUser(t, app, "Jane Doe", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
	token := getToken(t, student)

	t.Run("authentication required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/payments/stk")
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("charge accepted and settled off the push channel", func(t *testing.T) {
		app.gw.checkoutID = "ABC123"
		app.listener.outcome = payment.ChargeOutcome{
			Status:        payment.StatusSucceeded,
			TransactionID: "XYZ",
			PayerPhone:    "0712345678",
		}

		body := marchallObj(t, StkPushRequest{
			Amount: 500,
			Phone:  "0712345678",
			Context: payment.SettlementContext{
				Kind:     payment.ContextEnrollment,
				CourseID: "crs-1",
			},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/stk", token, body)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusAccepted,
			wantData: marchallObj(t, StkPushResponse{CheckoutRequestID: "ABC123"}),
		}, rec)

		// confirmation runs in the background
		ctx := context.Background()
		require.Eventually(t, func() bool {
			recs, err := app.paySvc.QueryAll(ctx)
			return err == nil && len(recs) == 1
		}, time.Second, 10*time.Millisecond)

		recs, err := app.paySvc.QueryAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ABC123", recs[0].CheckoutID)
		assert.Equal(t, "XYZ", recs[0].TransactionID)
		assert.Equal(t, payment.MethodMpesa, recs[0].Method)
		assert.Equal(t, student.ID, recs[0].StudentID) // defaulted from the token

		enrs, err := app.courseSvc.StudentEnrollments(ctx, student.ID)
		require.NoError(t, err)
		require.Len(t, enrs, 1)
		assert.Equal(t, "crs-1", enrs[0].CourseID)
	})

	t.Run("broken settlement context fails before any money moves", func(t *testing.T) {
		app := newTestApp()
		usr := createUser(t, app, "John", "john", "john@test.ke", "pwd", user.StudentRoles, true)
		app.gw.createErr = errors.New("gateway must not be called")

		body := marchallObj(t, StkPushRequest{
			Amount:  500,
			Phone:   "0712345678",
			Context: payment.SettlementContext{Kind: "raffle"},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/stk", getToken(t, usr), body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid phone number", func(t *testing.T) {
		body := marchallObj(t, StkPushRequest{
			Amount:  500,
			Phone:   "+15551234567",
			Context: payment.SettlementContext{Kind: payment.ContextEnrollment, CourseID: "crs-1"},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/stk", token, body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_paymentApi_checkStatus(t *testing.T) {
	newStatusRequest := func(t *testing.T, token string) (*http.Request, *httptest.ResponseRecorder) {
		t.Helper()
		body := marchallObj(t, ChargeStatusRequest{
			CheckoutRequestID: "ABC123",
			Context: payment.SettlementContext{
				Kind:     payment.ContextEnrollment,
				Amount:   500,
				CourseID: "crs-1",
			},
		})
		return newAuthRequest(http.MethodPost, "/v1/payments/status", token, body)
	}

	t.Run("confirmed charge is recorded on poll", func(t *testing.T) {
		app := newTestApp()
		student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
		app.gw.status = payment.StatusResult{ResultCode: payment.ResultSuccess, TransactionID: "XYZ"}

		req, rec := newStatusRequest(t, getToken(t, student))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ChargeStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Outcome.Succeeded())
		require.NotNil(t, resp.Settlement)
		assert.Equal(t, "XYZ", resp.Settlement.TransactionID)
		assert.Equal(t, student.ID, resp.Settlement.StudentID)
	})

	t.Run("losing the race to the push path still reads as success", func(t *testing.T) {
		app := newTestApp()
		student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
		app.gw.status = payment.StatusResult{ResultCode: payment.ResultSuccess, TransactionID: "XYZ"}

		// the push path already recorded this checkout
		_, err := app.paySvc.RecordSettlement(
			context.Background(),
			"ABC123",
			payment.ChargeOutcome{Status: payment.StatusSucceeded, TransactionID: "XYZ"},
			payment.SettlementContext{Kind: payment.ContextEnrollment, Amount: 500, StudentID: student.ID, CourseID: "crs-1"},
		)
		require.NoError(t, err)

		req, rec := newStatusRequest(t, getToken(t, student))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ChargeStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Outcome.Succeeded())
		assert.Nil(t, resp.Settlement)

		recs, err := app.paySvc.QueryAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("pending charge records nothing", func(t *testing.T) {
		app := newTestApp()
		student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
		app.gw.status = payment.StatusResult{Status: "pending"}

		req, rec := newStatusRequest(t, getToken(t, student))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChargeStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Outcome.Pending())
		assert.Nil(t, resp.Settlement)
	})

	t.Run("failed charge carries the reason", func(t *testing.T) {
		app := newTestApp()
		student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
		app.gw.status = payment.StatusResult{ResultCode: payment.ResultWrongPIN}

		req, rec := newStatusRequest(t, getToken(t, student))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ChargeStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Outcome.Failed())
		assert.NotEmpty(t, resp.Outcome.ReasonText)
	})

	t.Run("a recording failure tells the payer to contact support", func(t *testing.T) {
		app := newTestApp()
		student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
		app.gw.status = payment.StatusResult{ResultCode: payment.ResultSuccess, TransactionID: "XYZ"}

		// a payment service whose settlement store cannot persist
		paySvc := payment.NewService(
			app.gw, app.listener, failingSettlementRepo{}, app.mail, eventsvc.NopPublisher{}, nopLogger{},
		)
		paySvc.RegisterTarget(payment.ContextEnrollment, app.courseSvc)
		server := NewServer(ServerDeps{
			Logger:         nopLogger{},
			UserSvc:        app.usrSvc,
			PaymentSvc:     paySvc,
			CourseSvc:      app.courseSvc,
			AlumniSvc:      app.alumniSvc,
			FeeSvc:         app.feeSvc,
			DisableReqLogs: true,
		})

		req, rec := newStatusRequest(t, getToken(t, student))
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "contact support")
	})

	t.Run("missing checkout ID", func(t *testing.T) {
		app := newTestApp()
		student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)

		body := marchallObj(t, ChargeStatusRequest{
			Context: payment.SettlementContext{Kind: payment.ContextEnrollment, CourseID: "crs-1"},
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/status", getToken(t, student), body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_paymentApi_recordFree(t *testing.T) {
	app := newTestApp()
	student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)

	body := marchallObj(t, payment.SettlementContext{
		Kind:     payment.ContextEnrollment,
		CourseID: "crs-free",
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/payments/free", getToken(t, student), body)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var settled payment.SettlementRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	assert.Equal(t, payment.MethodFree, settled.Method)
	assert.Equal(t, payment.FreeTransactionID, settled.TransactionID)
	assert.Equal(t, student.ID, settled.StudentID)
}

func Test_paymentApi_querySettlements(t *testing.T) {
	app := newTestApp()
	student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
	admin := createUser(t, app, "Boss", "boss", "boss@test.ke", "pwd", []string{user.RoleAdmin}, true)

	tests := []httpTest{
		{
			name:     "student forbidden",
			token:    getToken(t, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "admin gets the list",
			token:    getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/payments/settlements", tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
