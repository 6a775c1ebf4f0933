package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-karotz/internal/audit"
)

// handleActivity lists the activity log. Query: device_id, kind, limit, offset.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	filter, ok := activityFilter(w, r)
	if !ok {
		return
	}
	filter.DeviceID = r.URL.Query().Get("device_id")
	s.listActivity(w, r, filter)
}

// handleDeviceActivity lists the activity log of one rabbit.
func (s *Server) handleDeviceActivity(w http.ResponseWriter, r *http.Request) {
	filter, ok := activityFilter(w, r)
	if !ok {
		return
	}
	filter.DeviceID = deviceFromContext(r.Context()).Info.ID
	s.listActivity(w, r, filter)
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request, filter audit.Filter) {
	if s.activity == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "activity log not configured")
		return
	}
	res, err := s.activity.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("activity list failed", "error", err)
		writeInternalError(w, "failed to list activity")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func activityFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	q := r.URL.Query()
	f := audit.Filter{Kind: q.Get("kind")}
	if f.Kind != "" && f.Kind != audit.KindCommand && f.Kind != audit.KindEvent {
		writeBadRequest(w, "kind must be command or event")
		return f, false
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return f, false
		}
		*dst = n
	}
	return f, true
}
