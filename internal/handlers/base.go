// Package handlers exposes the ingestion engine over HTTP. Handlers hold
// their collaborators behind narrow interfaces and return httperror values;
// the error middleware shapes the response envelope.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// timeLayouts accepted on query parameters, most specific first
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

// ParseTimeParam parses an optional time query parameter. Dates without a
// time component parse as midnight UTC.
func ParseTimeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: expected RFC3339 or YYYY-MM-DD", name)
}

// ParseIntParam parses an optional integer query parameter with a default
func ParseIntParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: expected an integer", name)
	}
	return value, nil
}

// OptionalParam returns a pointer to the query parameter, nil when absent
func OptionalParam(c echo.Context, name string) *string {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	return &raw
}
