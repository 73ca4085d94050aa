package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/fee"
)

type feeApi struct {
	svc *fee.Service
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *fee.Service) {
	api := feeApi{svc: svc}

	fg := g.Group("/fees", jwt)
	fg.GET("/statement", api.myStatement)
	fg.GET("/statements/:id", api.studentStatement, adminMiddleware())
	fg.POST("/manual", api.recordManual, adminMiddleware())
}

// Handlers

func (api *feeApi) myStatement(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return api.respondStatement(ctx, claims.Subject)
}

func (api *feeApi) studentStatement(ctx echo.Context) error {
	return api.respondStatement(ctx, ctx.Param("id"))
}

func (api *feeApi) respondStatement(ctx echo.Context, studentID string) error {
	st, err := api.svc.Statement(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying fee statement")
	}
	if st.Entries == nil {
		st.Entries = []fee.Entry{}
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *feeApi) recordManual(ctx echo.Context) error {
	var data fee.ManualEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ManualEntry")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	entry, err := api.svc.RecordManual(ctx.Request().Context(), data, claims.Username)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, entry)
}
