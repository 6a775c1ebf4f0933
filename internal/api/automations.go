package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-karotz/internal/automation"
)

// AutomationRunner exposes the loaded rules. *automation.Engine implements it.
type AutomationRunner interface {
	Rules() []automation.Rule
	Executions() []automation.Execution
	Run(ctx context.Context, id string) (automation.Execution, error)
}

// handleListAutomations returns the loaded rules.
func (s *Server) handleListAutomations(w http.ResponseWriter, _ *http.Request) {
	rules := []automation.Rule{}
	if s.automations != nil {
		rules = s.automations.Rules()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"automations": rules,
		"count":       len(rules),
	})
}

// handleListExecutions returns recent rule executions, newest first.
func (s *Server) handleListExecutions(w http.ResponseWriter, _ *http.Request) {
	execs := []automation.Execution{}
	if s.automations != nil {
		execs = s.automations.Executions()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

// handleRunAutomation runs a rule now and returns its execution.
func (s *Server) handleRunAutomation(w http.ResponseWriter, r *http.Request) {
	if s.automations == nil {
		writeNotFound(w, "automation not found")
		return
	}

	exec, err := s.automations.Run(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, automation.ErrRuleNotFound):
		writeNotFound(w, "automation not found")
		return
	case errors.Is(err, automation.ErrRuleDisabled):
		writeError(w, http.StatusConflict, ErrCodeConflict, "automation is disabled")
		return
	case errors.Is(err, automation.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "automations are stopped")
		return
	case err != nil:
		s.logger.Error("automation run failed", "error", err)
		writeInternalError(w, "failed to run automation")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
