package api

import (
	"errors"
	"net/http"

	"github.com/seantiz/bambubridge/internal/printer"
)

// commandResponse is returned when a print command was handed to the device.
type commandResponse struct {
	State string `json:"state"`
}

func (s *Server) handleGetPrinter(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.printer.Status())
}

// handlePrinterCommand adapts a printer command to a handler. The device acts
// on commands asynchronously, so success is 202.
func (s *Server) handlePrinterCommand(cmd func(Printer) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cmd(s.printer); err != nil {
			if errors.Is(err, printer.ErrNotConnected) {
				s.writeError(w, http.StatusServiceUnavailable, "printer not connected")
				return
			}
			s.logger.Error("printer command", "path", r.URL.Path, "error", err)
			s.writeError(w, http.StatusInternalServerError, "printer command failed")
			return
		}

		s.writeJSON(w, http.StatusAccepted, commandResponse{State: s.printer.Status().State})
	}
}
