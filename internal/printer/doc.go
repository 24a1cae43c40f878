// Package printer drives the printer state table. A Printer owns the current
// State, the active print job snapshot and its persisted history record, and
// performs every transition on a single goroutine. States talk to it through
// the Host interface and hand control back with a model.Outcome instead of
// switching states themselves.
package printer
