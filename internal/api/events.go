package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// EventRequest is the body of POST /api/v1/events.
type EventRequest struct {
	Type ir.TriggerType `json:"type"`
	Data ir.Object      `json:"data"`
}

// postEvent emits one trigger event for the tenant and returns the run
// summary. Action failures are reported in the summary with status 200;
// only a malformed request is an HTTP error.
// (POST /api/v1/events)
func (s *Server) postEvent(c echo.Context) error {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return NewProblem(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if !req.Type.Valid() {
		return NewProblem(http.StatusBadRequest, "unknown trigger type "+string(req.Type))
	}
	if req.Data == nil {
		req.Data = ir.Object{}
	}

	summary := s.emitter.Emit(c.Request().Context(), req.Type, tenantOf(c), req.Data)
	return c.JSON(http.StatusOK, summary)
}
