package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/course"
	"github.com/elimuhq/elimu/core/payment"
)

type courseApi struct {
	svc        *course.Service
	paymentSvc *payment.Service
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *course.Service, paymentSvc *payment.Service) {
	api := courseApi{svc: svc, paymentSvc: paymentSvc}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())
	cg.GET("/enrollments", api.myEnrollments)
	cg.GET("/:id", api.retrieve)
	cg.POST("/:id/enroll", api.enroll)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	courses, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) myEnrollments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	enrs, err := api.svc.StudentEnrollments(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrs == nil {
		enrs = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

// enroll signs the student up for a course. Free courses enroll on the spot;
// paid ones fire the STK push and hand back the checkout request ID.
func (api *courseApi) enroll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	crs, err := api.svc.GetByID(rctx, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}

	if crs.IsFree() {
		enr, err := api.svc.EnrollFree(rctx, claims.Subject, crs.ID)
		switch errors.Cause(err) {
		case nil:
			return ctx.JSON(http.StatusCreated, enr)
		case course.ErrAlreadyEnrolled, course.ErrUnpublished:
			return core.NewValidationError(err)
		default:
			return errors.Wrap(err, "enrolling")
		}
	}

	var data EnrollRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if !crs.IsPublished {
		return core.NewValidationError(course.ErrUnpublished)
	}

	req := StkPushRequest{
		Amount: crs.Price,
		Phone:  data.Phone,
		Context: payment.SettlementContext{
			Kind:      payment.ContextEnrollment,
			Amount:    crs.Price,
			StudentID: claims.Subject,
			CourseID:  crs.ID,
		},
	}
	return api.initiateCharge(ctx, claims, req)
}

func (api *courseApi) initiateCharge(ctx echo.Context, claims Claims, req StkPushRequest) error {
	fillContextDefaults(claims, req.Amount, &req.Context)
	if err := req.Context.Validate(); err != nil {
		return err
	}

	checkoutID, err := api.paymentSvc.InitiateCharge(ctx.Request().Context(), payment.ChargeRequest{
		Amount: req.Amount,
		Phone:  req.Phone,
	})
	if err != nil {
		return err
	}

	go confirmInBackground(api.paymentSvc, checkoutID, req.Context)

	return ctx.JSON(http.StatusAccepted, StkPushResponse{CheckoutRequestID: checkoutID})
}

type EnrollRequest struct {
	Phone string `json:"phone"`
}
