package commandsocket

import (
	"net/http"
)

// handleQueue implements "queue" (spec.md §6.3): a read-only dump of
// every task currently in the schedule.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	reqID := decode(r, &struct{}{})
	writeResponse(w, reqID, s.Schedule.Snapshot(), nil)
}

// handleFlush implements "flush [type]" (spec.md §4.3/§6.3): set every
// matching task's due date to 0 so the next PopDue picks it up
// immediately.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	reqID := decode(r, &req)
	n := s.Schedule.Flush(req.Type)
	writeResponse(w, reqID, struct {
		Flushed int `json:"flushed"`
	}{n}, nil)
}
