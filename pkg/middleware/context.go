package middleware

import (
	"github.com/Ramsey-B/sorrel/pkg/appcontext"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			// get request id from header
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
