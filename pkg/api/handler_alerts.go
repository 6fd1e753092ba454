package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/alerts"
)

// listAlertRulesHandler handles GET /api/alerts/rules.
func (s *Server) listAlertRulesHandler(c *gin.Context) {
	rules, err := s.alertRules.List(tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// createAlertRuleHandler handles POST /api/alerts/rules (spec.md §4.8).
func (s *Server) createAlertRuleHandler(c *gin.Context) {
	var req AlertRuleRequest
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

	rule := s.alertRules.Put(&alerts.Rule{
		TenantID:        tenantID(c),
		Name:            req.Name,
		Enabled:         req.Enabled,
		Type:            alerts.RuleType(req.Type),
		Scope:           alerts.Scope{AgentID: req.AgentID},
		WindowMinutes:   windowMinutes,
		Threshold:       req.Threshold,
		CooldownMinutes: cooldownMinutes,
		NotifyChannels:  req.NotifyChannels,
	})
	c.JSON(http.StatusCreated, rule)
}

// getAlertRuleHandler handles GET /api/alerts/rules/:id.
func (s *Server) getAlertRuleHandler(c *gin.Context) {
	rule := s.alertRules.Get(c.Param("id"))
	if rule == nil || rule.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert rule not found"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// updateAlertRuleHandler handles PUT /api/alerts/rules/:id.
func (s *Server) updateAlertRuleHandler(c *gin.Context) {
	existing := s.alertRules.Get(c.Param("id"))
	if existing == nil || existing.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert rule not found"})
		return
	}
	var req AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	existing.Name = req.Name
	existing.Enabled = req.Enabled
	existing.Type = alerts.RuleType(req.Type)
	existing.Scope = alerts.Scope{AgentID: req.AgentID}
	existing.Threshold = req.Threshold
	existing.NotifyChannels = req.NotifyChannels
	if req.WindowMinutes != 0 {
		existing.WindowMinutes = req.WindowMinutes
	}
	if req.CooldownMinutes != 0 {
		existing.CooldownMinutes = req.CooldownMinutes
	}

	c.JSON(http.StatusOK, s.alertRules.Put(existing))
}

// deleteAlertRuleHandler handles DELETE /api/alerts/rules/:id.
func (s *Server) deleteAlertRuleHandler(c *gin.Context) {
	existing := s.alertRules.Get(c.Param("id"))
	if existing == nil || existing.TenantID != tenantID(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert rule not found"})
		return
	}
	s.alertRules.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// listAlertHistoryHandler handles GET /api/alerts/history.
func (s *Server) listAlertHistoryHandler(c *gin.Context) {
	rows, err := s.alertRules.ListHistory(tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
