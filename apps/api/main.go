package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/elimuhq/elimu/apps/api/echo"
	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/alumni"
	"github.com/elimuhq/elimu/core/course"
	"github.com/elimuhq/elimu/core/fee"
	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/core/user"
	emailsvc "github.com/elimuhq/elimu/services/email"
	eventsvc "github.com/elimuhq/elimu/services/events"
	logsvc "github.com/elimuhq/elimu/services/logger"
	mpesasvc "github.com/elimuhq/elimu/services/mpesa"
	pushsvc "github.com/elimuhq/elimu/services/push"
	"github.com/elimuhq/elimu/storage/database"
	sqlxrepos "github.com/elimuhq/elimu/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var events payment.EventPublisher
	if len(conf.Kafka.Brokers) > 0 {
		kafkaPub := eventsvc.NewKafkaPublisher(conf, logger)
		defer func() { _ = kafkaPub.Close() }()
		events = kafkaPub
	} else {
		events = eventsvc.NopPublisher{}
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc)
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db))
	alumniSvc := alumni.NewService(sqlxrepos.NewAlumniRepository(db))
	feeSvc := fee.NewService(sqlxrepos.NewFeeRepository(db))

	paymentSvc := payment.NewService(
		mpesasvc.NewClient(conf),
		pushsvc.NewListener(conf, logger),
		sqlxrepos.NewSettlementRepository(db),
		mailSvc,
		events,
		logger,
	)
	paymentSvc.RegisterTarget(payment.ContextEnrollment, courseSvc)
	paymentSvc.RegisterTarget(payment.ContextSubscription, alumniSvc)
	paymentSvc.RegisterTarget(payment.ContextFees, feeSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.InitValidators()
	user.InitValidators()

	core.ParseEmailTemplates(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Logger:     logger,
			UserSvc:    usrSvc,
			PaymentSvc: paymentSvc,
			CourseSvc:  courseSvc,
			AlumniSvc:  alumniSvc,
			FeeSvc:     feeSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
