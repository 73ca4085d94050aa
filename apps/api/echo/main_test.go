package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/alumni"
	"github.com/elimuhq/elimu/core/course"
	"github.com/elimuhq/elimu/core/fee"
	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/core/user"
	"github.com/elimuhq/elimu/services/events"
	"github.com/elimuhq/elimu/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func TestMain(m *testing.M) {
	core.Conf = &core.Config{
		TestMode:        true,
		Env:             "TEST",
		AppName:         "Elimu",
		SecretKey:       "secret",
		FrontendBaseURL: "https://elimu.test",
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
	core.InitValidators()
	user.InitValidators()

	os.Exit(m.Run())
}

// Stubs

type stubGateway struct {
	checkoutID string
	createErr  error
	status     payment.StatusResult
	statusErr  error
}

func (g *stubGateway) CreateCharge(ctx context.Context, phone string, amount int64) (string, error) {
	return g.checkoutID, g.createErr
}

func (g *stubGateway) QueryStatus(ctx context.Context, checkoutID string) (payment.StatusResult, error) {
	return g.status, g.statusErr
}

type stubListener struct {
	outcome payment.ChargeOutcome
	err     error
}

func (l *stubListener) Await(ctx context.Context, checkoutID string) (payment.ChargeOutcome, error) {
	return l.outcome, l.err
}

type mailRecorder struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

func (m *mailRecorder) lastTemplate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].TemplateName
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// testApp wires a full server against in-memory repositories and stubbed
// gateway services. Each test gets a fresh one.
type testApp struct {
	server   *Server
	gw       *stubGateway
	listener *stubListener
	mail     *mailRecorder

	usrRepo user.Repository
	usrSvc  *user.Service

	paySvc    *payment.Service
	courseSvc *course.Service
	alumniSvc *alumni.Service
	feeSvc    *fee.Service
}

func newTestApp() *testApp {
	app := &testApp{
		gw:       &stubGateway{},
		listener: &stubListener{},
		mail:     &mailRecorder{},
		usrRepo:  inmemdb.NewUserRepository(),
	}

	app.usrSvc = user.NewService(app.usrRepo, app.mail)
	app.courseSvc = course.NewService(inmemdb.NewCourseRepository())
	app.alumniSvc = alumni.NewService(inmemdb.NewAlumniRepository())
	app.feeSvc = fee.NewService(inmemdb.NewFeeRepository())

	app.paySvc = payment.NewService(
		app.gw,
		app.listener,
		inmemdb.NewSettlementRepository(),
		app.mail,
		eventsvc.NopPublisher{},
		nopLogger{},
	)
	app.paySvc.RegisterTarget(payment.ContextEnrollment, app.courseSvc)
	app.paySvc.RegisterTarget(payment.ContextSubscription, app.alumniSvc)
	app.paySvc.RegisterTarget(payment.ContextFees, app.feeSvc)

	app.server = NewServer(ServerDeps{
		Logger:         nopLogger{},
		UserSvc:        app.usrSvc,
		PaymentSvc:     app.paySvc,
		CourseSvc:      app.courseSvc,
		AlumniSvc:      app.alumniSvc,
		FeeSvc:         app.feeSvc,
		DisableReqLogs: true,
	})
	return app
}

func createUser(t *testing.T, app *testApp, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()
	usr := user.User{Name: name, Username: uname, Email: email, Roles: roles}
	usr.SetActive(isActive)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	return usr
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %s; wantData %s", rec.Body.String(), tt.wantData)
	}
}
