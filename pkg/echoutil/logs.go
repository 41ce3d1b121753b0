package echoutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Header of log lines of loggers made by Logger.
const Header = "${time_rfc3339} ${level} ${prefix}"

func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Debugf("< request %s %s", meth, path)

		var err error

		defer func() {
			END := time.Now()
			c.Logger().Infof(
				"> response status = %d (for request @[%s] %s %s) in %v / error = %v",
				c.Response().Status, BEGIN.Format(time.RFC3339), meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

// ParseLevel parses one of "debug", "info", "warn", "error" or "off".
//
// Empty string means "warn".
func ParseLevel(loglevel string) (log.Lvl, error) {
	switch strings.ToLower(loglevel) {
	case "debug":
		return log.DEBUG, nil
	case "info":
		return log.INFO, nil
	case "warn", "":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return log.WARN, fmt.Errorf("unknown loglevel: %s", loglevel)
}

func SetLevel(e *echo.Echo, loglevel string) {
	lvl, err := ParseLevel(loglevel)
	e.Logger.SetLevel(lvl)
	if err != nil {
		e.Logger.Warnf("%s. fall-backed to warn", err)
	}
}

// Logger returns a new logger with prefix, like "[tracker loop]".
func Logger(prefix string, loglevel string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(Header)
	lvl, err := ParseLevel(loglevel)
	l.SetLevel(lvl)
	if err != nil {
		l.Warnf("%s. fall-backed to warn", err)
	}
	return l
}
