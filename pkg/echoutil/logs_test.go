package echoutil_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/loculus-project/ena-deposition/pkg/echoutil"
)

func TestParseLevel(t *testing.T) {
	for when, then := range map[string]log.Lvl{
		"debug": log.DEBUG,
		"INFO":  log.INFO,
		"warn":  log.WARN,
		"":      log.WARN,
		"error": log.ERROR,
		"off":   log.OFF,
	} {
		actual, err := echoutil.ParseLevel(when)
		if err != nil {
			t.Errorf("%q: %v", when, err)
		}
		if actual != then {
			t.Errorf("%q: actual=%v, expect=%v", when, actual, then)
		}
	}

	if lvl, err := echoutil.ParseLevel("verbose"); err == nil || lvl != log.WARN {
		t.Errorf("unknown level: (%v, %v)", lvl, err)
	}
}

func TestLogHandlerFunc(t *testing.T) {
	buf := new(bytes.Buffer)
	e := echo.New()
	e.Logger.SetOutput(buf)
	echoutil.SetLevel(e, "info")
	e.Use(echoutil.LogHandlerFunc)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status: %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "status = 204") || !strings.Contains(buf.String(), "GET /healthz") {
		t.Errorf("log: %s", buf.String())
	}
}
