package echo

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fxapi/api"
)

const pingTimeout = 2 * time.Second

func (a *API) pingDatabase(ctx context.Context) string {
	if a.database == nil {
		return "In-Memory"
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := a.database.Ping(ctx); err != nil {
		return "Error"
	}
	return "Connected"
}

// Health reports process and database state, 503 when degraded.
func (a *API) Health(c echo.Context) error {
	db := a.pingDatabase(c.Request().Context())

	resp := api.HealthResponse{
		Status:      "OK",
		Timestamp:   a.now().UTC(),
		Uptime:      time.Since(a.started).Seconds(),
		Environment: a.cfg.Environment,
		Version:     a.cfg.Version,
		Services:    map[string]string{"database": db},
	}
	status := http.StatusOK
	if db == "Error" {
		resp.Status = "Degraded"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

// Ready reports whether the server can take traffic.
func (a *API) Ready(c echo.Context) error {
	ready := a.pingDatabase(c.Request().Context()) != "Error"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, echo.Map{
		"ready":     ready,
		"timestamp": a.now().UTC(),
	})
}

// Live always answers while the process can serve requests.
func (a *API) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"alive":     true,
		"timestamp": a.now().UTC(),
		"uptime":    time.Since(a.started).Seconds(),
	})
}
