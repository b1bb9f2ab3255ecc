package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// TraceID links to the distributed trace for this request.
	TraceID string `json:"trace_id,omitempty"`
	// Errors lists rule validation failures on 422 responses.
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// NewProblem builds a problem whose title is the status text.
func NewProblem(status int, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://bizflow.dev/errors/%d", status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

func validationProblem(errs []compiler.ValidationError) *ProblemDetail {
	p := NewProblem(http.StatusUnprocessableEntity, fmt.Sprintf("rule has %d validation error(s)", len(errs)))
	p.Errors = errs
	return p
}

// ErrorHandler renders every handler error as application/problem+json.
// Internal errors are logged but never exposed to the client.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		problem *ProblemDetail
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &problem):
	case errors.As(err, &httpErr):
		problem = NewProblem(httpErr.Code, fmt.Sprint(httpErr.Message))
	default:
		slog.Error("internal server error",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		problem = NewProblem(http.StatusInternalServerError, "An unexpected error occurred. Please try again later.")
	}

	problem.Instance = c.Request().URL.Path
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		problem.TraceID = sc.TraceID().String()
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(problem.Status)
		return
	}
	if err := c.JSON(problem.Status, problem); err != nil {
		slog.Error("write problem response", "error", err)
	}
}
