package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	echoapi "go.pilab.hu/fxapi/api/echo"
	"go.pilab.hu/fxapi/config"
	"go.pilab.hu/fxapi/log"
	"go.pilab.hu/fxapi/middleware"
)

// MetricsPath is where the Prometheus handler is mounted.
const MetricsPath = "/metrics"

// NewRouter builds the echo instance with the middleware chain and all routes.
// gatherer may be nil to leave /metrics out.
func NewRouter(cfg *config.ServerConfig, appLogger log.Logger, api *echoapi.API, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.IsDevelopment()

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.OtelServiceName, otelecho.WithSkipper(func(c echo.Context) bool {
		return c.Path() == MetricsPath
	})))
	e.Use(middleware.AccessLog(appLogger))
	e.Use(echomw.BodyLimit("1M"))

	api.RegisterRoutes(e)

	if gatherer != nil {
		e.GET(MetricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

// NewHTTPServer wraps the router in an http.Server listening on cfg.HTTPPort.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, api *echoapi.API, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      NewRouter(cfg, appLogger, api, gatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
