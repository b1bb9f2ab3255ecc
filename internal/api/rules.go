package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

// RuleRequest is the body of POST and PUT /api/v1/rules.
type RuleRequest struct {
	Name     string          `json:"name"`
	IsActive *bool           `json:"is_active,omitempty"`
	Trigger  *TriggerRequest `json:"trigger"`
	Actions  []ActionRequest `json:"actions"`
}

// TriggerRequest is the trigger part of a RuleRequest.
type TriggerRequest struct {
	Type       ir.TriggerType `json:"type"`
	Conditions ir.Object      `json:"conditions,omitempty"`
}

// ActionRequest is one action of a RuleRequest. A missing order means the
// list position.
type ActionRequest struct {
	Type   ir.ActionType `json:"type"`
	Config ir.Object     `json:"config,omitempty"`
	Order  *int          `json:"order,omitempty"`
}

// toRule converts the request into a rule of tenantID. Configs that fail to
// decode are kept as RawConfig so Validate reports them.
func (req RuleRequest) toRule(tenantID string) ir.Rule {
	r := ir.Rule{
		TenantID: tenantID,
		Name:     req.Name,
		IsActive: true,
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
	if req.Trigger != nil {
		conditions := req.Trigger.Conditions
		if conditions == nil {
			conditions = ir.Object{}
		}
		r.Trigger = &ir.Trigger{Type: req.Trigger.Type, Conditions: conditions}
	}
	for i, a := range req.Actions {
		order := i
		if a.Order != nil {
			order = *a.Order
		}
		r.Actions = append(r.Actions, ir.Action{
			Type:   a.Type,
			Config: ir.DecodeActionConfigLenient(a.Type, a.Config),
			Order:  order,
		})
	}
	return r
}

func bindRule(c echo.Context) (ir.Rule, error) {
	var req RuleRequest
	if err := c.Bind(&req); err != nil {
		return ir.Rule{}, NewProblem(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	r := req.toRule(tenantOf(c))
	if errs := compiler.Validate(r); len(errs) > 0 {
		return ir.Rule{}, validationProblem(errs)
	}
	return r, nil
}

// storeError maps store failures onto problems.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NewProblem(http.StatusNotFound, "rule not found")
	case errors.Is(err, store.ErrInvalidRule):
		return NewProblem(http.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}

// listRules returns every rule of the tenant
// (GET /api/v1/rules)
func (s *Server) listRules(c echo.Context) error {
	rules, err := s.backend.ListRules(c.Request().Context(), tenantOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rules)
}

// createRule validates and stores a new rule
// (POST /api/v1/rules)
func (s *Server) createRule(c echo.Context) error {
	r, err := bindRule(c)
	if err != nil {
		return err
	}
	if err := s.backend.CreateRule(c.Request().Context(), &r); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// getRule returns one rule
// (GET /api/v1/rules/:id)
func (s *Server) getRule(c echo.Context) error {
	r, err := s.backend.GetRule(c.Request().Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// replaceRule overwrites the name, active flag, trigger and actions of a rule
// (PUT /api/v1/rules/:id)
func (s *Server) replaceRule(c echo.Context) error {
	r, err := bindRule(c)
	if err != nil {
		return err
	}
	r.ID = c.Param("id")
	if err := s.backend.ReplaceRule(c.Request().Context(), &r); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// deleteRule removes a rule
// (DELETE /api/v1/rules/:id)
func (s *Server) deleteRule(c echo.Context) error {
	if err := s.backend.DeleteRule(c.Request().Context(), tenantOf(c), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

// setActive toggles whether the matcher considers a rule
// (POST /api/v1/rules/:id/active)
func (s *Server) setActive(c echo.Context) error {
	var req activeRequest
	if err := c.Bind(&req); err != nil || req.Active == nil {
		return NewProblem(http.StatusBadRequest, `body must be {"active": true|false}`)
	}
	ctx := c.Request().Context()
	if err := s.backend.SetActive(ctx, tenantOf(c), c.Param("id"), *req.Active); err != nil {
		return storeError(err)
	}
	r, err := s.backend.GetRule(ctx, tenantOf(c), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, r)
}
