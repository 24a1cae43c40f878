// Package device talks to a Bambu Lab printer over its LAN MQTT interface.
// It exposes the narrow Client capability the printer states depend on
// (connectivity, command publishing, current print telemetry) and hides the
// report merging and command encoding of the wire protocol behind it.
package device
