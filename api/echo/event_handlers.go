package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fxapi/api"
	"go.pilab.hu/fxapi/domain"
)

// ListEvents returns the caller's own audit history, newest first.
func (a *API) ListEvents(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c)
	if err != nil {
		return err
	}
	from, to, err := parseDateRange(c)
	if err != nil {
		return err
	}

	filter := domain.EventFilter{
		Kind: domain.EventKind(c.QueryParam("eventType")),
		From: from,
		To:   to,
	}
	result, err := a.events.List(c.Request().Context(), p.AccountID, filter, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Events retrieved successfully", result))
}

func (a *API) EventStats(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	stats, err := a.events.Stats(c.Request().Context(), p.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("", api.EventStatsResponse{Stats: stats}))
}
