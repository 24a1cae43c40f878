// Package projectfiles catalogs the project files (.3mf and .gcode) the
// bridge knows about locally, so printer telemetry can be resolved back to a
// file by the name the device reports.
package projectfiles
