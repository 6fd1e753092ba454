package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/guardrails"
)

// listGuardrailRulesHandler handles GET /api/guardrails/rules.
func (s *Server) listGuardrailRulesHandler(c *gin.Context) {
	rules, err := s.guardRules.List(tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// createGuardrailRuleHandler handles POST /api/guardrails/rules (spec.md §4.9).
func (s *Server) createGuardrailRuleHandler(c *gin.Context) {
	var req GuardrailRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	defaults, err := s.ruleConfigs.Resolve(tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	windowMinutes := req.WindowMinutes
	if windowMinutes == 0 {
		windowMinutes = defaults.WindowMinutes
	}
	cooldownMinutes := req.CooldownMinutes
	if cooldownMinutes == 0 {
		cooldownMinutes = defaults.CooldownMinutes
	}

	rule := s.guardRules.Put(&guardrails.Rule{
		TenantID:        tenantID(c),
		Name:            req.Name,
		Enabled:         req.Enabled,
		DryRun:          req.DryRun,
		Condition:       guardrails.ConditionType(req.Condition),
		Scope:           guardrails.Scope{AgentID: req.AgentID},
		WindowMinutes:   windowMinutes,
		Threshold:       req.Threshold,
		CooldownMinutes: cooldownMinutes,
		Action:          guardrails.ActionType(req.Action),
		DowngradeTo:     req.DowngradeTo,
		NotifyChannels:  req.NotifyChannels,
	})
	c.JSON(http.StatusCreated, rule)
}

// getGuardrailRuleHandler handles GET /api/guardrails/rules/:id.
func (s *Server) getGuardrailRuleHandler(c *gin.Context) {
	rule := s.guardRules.Get(c.Param("id"))
	if rule == nil || rule.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "guardrail rule not found"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// updateGuardrailRuleHandler handles PUT /api/guardrails/rules/:id.
func (s *Server) updateGuardrailRuleHandler(c *gin.Context) {
	existing := s.guardRules.Get(c.Param("id"))
	if existing == nil || existing.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "guardrail rule not found"})
		return
	}
	var req GuardrailRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	existing.Name = req.Name
	existing.Enabled = req.Enabled
	existing.DryRun = req.DryRun
	existing.Condition = guardrails.ConditionType(req.Condition)
	existing.Scope = guardrails.Scope{AgentID: req.AgentID}
	existing.Threshold = req.Threshold
	existing.Action = guardrails.ActionType(req.Action)
	existing.DowngradeTo = req.DowngradeTo
	existing.NotifyChannels = req.NotifyChannels
	if req.WindowMinutes != 0 {
		existing.WindowMinutes = req.WindowMinutes
	}
	if req.CooldownMinutes != 0 {
		existing.CooldownMinutes = req.CooldownMinutes
	}

	c.JSON(http.StatusOK, s.guardRules.Put(existing))
}

// deleteGuardrailRuleHandler handles DELETE /api/guardrails/rules/:id.
func (s *Server) deleteGuardrailRuleHandler(c *gin.Context) {
	existing := s.guardRules.Get(c.Param("id"))
	if existing == nil || existing.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "guardrail rule not found"})
		return
	}
	s.guardRules.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// guardrailRuleStatusHandler handles GET /api/guardrails/rules/:id/status,
// surfacing the rule's last-evaluated state and recent trigger history.
func (s *Server) guardrailRuleStatusHandler(c *gin.Context) {
	rule := s.guardRules.Get(c.Param("id"))
	if rule == nil || rule.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "guardrail rule not found"})
		return
	}
	state, _ := s.guardRules.GetState(rule.ID)
	c.JSON(http.StatusOK, GuardrailStatusResponse{
		Rule:           rule,
		State:          state,
		RecentTriggers: s.guardRules.RecentTriggers(rule.ID),
	})
}
