package device

import (
	"errors"

	"github.com/seantiz/bambubridge/internal/model"
)

// ErrNotConnected is returned when telemetry is requested while the
// transport has no open connection to the printer.
var ErrNotConnected = errors.New("printer not connected")

// Client is the capability a printer state needs from the device transport.
type Client interface {
	// Connected reports whether the transport currently has an open connection.
	Connected() bool

	// Publish hands a command to the transport. It returns true when the
	// transport accepted the command, not when the device acted on it.
	Publish(cmd Command) bool

	// Telemetry returns the most recent print-job telemetry.
	Telemetry() (model.Telemetry, error)
}
