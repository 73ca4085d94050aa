package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/alumni"
	"github.com/elimuhq/elimu/core/course"
	"github.com/elimuhq/elimu/core/fee"
	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/core/user"
)

type (
	ServerDeps struct {
		Logger         core.Logger
		UserSvc        *user.Service
		PaymentSvc     *payment.Service
		CourseSvc      *course.Service
		AlumniSvc      *alumni.Service
		FeeSvc         *fee.Service
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, syscall.SIGINT, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	appJWTConfig.SigningKey = []byte(core.Conf.SecretKey)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.deps.UserSvc)
	registerPaymentAPI(v1, jwt, s.deps.PaymentSvc, s.deps.UserSvc)
	registerCourseAPI(v1, jwt, s.deps.CourseSvc, s.deps.PaymentSvc)
	registerAlumniAPI(v1, jwt, s.deps.AlumniSvc)
	registerFeeAPI(v1, jwt, s.deps.FeeSvc)
}

func (s *Server) Start() {
	s.errs <- s.app.Start(core.Conf.Server.Addr)
}

func (s *Server) Errors() <-chan error { return s.errs }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+core.Conf.AppName+" API!")
}
