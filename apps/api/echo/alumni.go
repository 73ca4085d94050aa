package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core/alumni"
)

type alumniApi struct {
	svc *alumni.Service
}

func registerAlumniAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *alumni.Service) {
	api := alumniApi{svc: svc}

	ag := g.Group("/alumni", jwt)
	ag.GET("/subscriptions", api.mySubscriptions)
	ag.GET("/subscriptions/:id", api.memberSubscriptions, adminMiddleware())
}

// Handlers

func (api *alumniApi) mySubscriptions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return api.respondSubscriptions(ctx, claims.Subject)
}

func (api *alumniApi) memberSubscriptions(ctx echo.Context) error {
	return api.respondSubscriptions(ctx, ctx.Param("id"))
}

func (api *alumniApi) respondSubscriptions(ctx echo.Context, alumniID string) error {
	subs, err := api.svc.MemberSubscriptions(ctx.Request().Context(), alumniID)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []alumni.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}
