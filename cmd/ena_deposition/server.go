package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/echoutil"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsServer builds the operational HTTP server.
//
//   - GET /healthz : 204 when the database responds, 503 otherwise.
//   - GET /metrics : prometheus metrics in reg.
//   - GET /api/status : row counts per table and status, as JSON.
func OpsServer(store db.Store, m *metrics.Metrics, reg *prometheus.Registry, loglevel string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	echoutil.SetLevel(e, loglevel)
	e.Logger.SetPrefix("[ops server]")
	e.Logger.SetHeader(echoutil.Header)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database is not available").SetInternal(err)
		}
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	e.GET("/api/status", func(c echo.Context) error {
		census, err := TakeCensus(c.Request().Context(), store, m)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
		}
		return c.JSON(http.StatusOK, census)
	})
	return e
}

// Serve runs e until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, e *echo.Echo, port int32) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(graceful); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
