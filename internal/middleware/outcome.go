package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// outcome is what both middlewares record about a finished request.
type outcome struct {
	method  string
	path    string
	status  int
	elapsed time.Duration
}

// finish resolves the outcome of the request handled by c. A handler that
// returns an *echo.HTTPError has not written its status yet; Echo's central
// error handler does that after the middleware chain unwinds.
func finish(c echo.Context, err error, start time.Time) outcome {
	req := c.Request()
	o := outcome{
		method:  req.Method,
		path:    req.URL.Path,
		status:  c.Response().Status,
		elapsed: time.Since(start),
	}
	if err != nil {
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			o.status = he.Code
		case !c.Response().Committed:
			o.status = http.StatusInternalServerError
		}
	}
	return o
}
