package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fxapi/api"
	"go.pilab.hu/fxapi/domain"
	"go.pilab.hu/fxapi/services"
)

func (a *API) CreateConversion(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req api.CreateConversionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	conversion, err := a.conversions.Create(c.Request().Context(), p.AccountID, services.ConversionRequest{
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		Amount:       req.Amount,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.OK("Conversion created successfully", api.ConversionResponse{Conversion: conversion}))
}

func (a *API) ListConversions(c echo.Context) error {
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

	filter := domain.ConversionFilter{
		FromCurrency: strings.ToUpper(c.QueryParam("fromCurrency")),
		ToCurrency:   strings.ToUpper(c.QueryParam("toCurrency")),
		From:         from,
		To:           to,
	}
	result, err := a.conversions.List(c.Request().Context(), p.AccountID, filter, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Conversions retrieved successfully", result))
}

func (a *API) GetConversion(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	conversion, err := a.conversions.Get(c.Request().Context(), p.AccountID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("", api.ConversionResponse{Conversion: conversion}))
}

func (a *API) DeleteConversion(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	if err := a.conversions.Delete(c.Request().Context(), p.AccountID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("Conversion deleted successfully", nil))
}

// ConversionSummary returns the dashboard: per-currency totals, overall
// stats and the most recent conversions.
func (a *API) ConversionSummary(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	dashboard, err := a.conversions.Dashboard(c.Request().Context(), p.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("", dashboard))
}

func (a *API) SupportedCurrencies(c echo.Context) error {
	return c.JSON(http.StatusOK, api.OK("", api.CurrenciesResponse{Currencies: a.conversions.SupportedCurrencies()}))
}

func (a *API) ExchangeRate(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	quote, err := a.conversions.Rate(c.Request().Context(), p.AccountID, c.Param("from"), c.Param("to"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OK("", api.RateResponse{
		FromCurrency: quote.From,
		ToCurrency:   quote.To,
		Rate:         quote.Rate,
		Timestamp:    a.now().UTC(),
	}))
}
