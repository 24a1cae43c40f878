package api

import (
	"net/http"
)

// healthResponse reports liveness of the bridge. The printer connection is
// informational; a disconnected printer does not fail the health check.
type healthResponse struct {
	Status           string `json:"status"`
	PrinterConnected bool   `json:"printer_connected"`
	PrinterState     string `json:"printer_state"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	st := s.printer.Status()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		PrinterConnected: st.Connected,
		PrinterState:     st.State,
	})
}
