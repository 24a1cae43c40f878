package model

import (
	"fmt"
	"time"
)

// Device execution phases reported in the gcode_state telemetry field.
const (
	GcodeStateIdle    = "IDLE"
	GcodeStatePrepare = "PREPARE"
	GcodeStateRunning = "RUNNING"
	GcodeStatePause   = "PAUSE"
	GcodeStateFinish  = "FINISH"
	GcodeStateFailed  = "FAILED"
)

// Outcome is what a printer state hands back to the driver that owns the
// state table.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeReturnToIdle
	OutcomeCompleted
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeReturnToIdle:
		return "return_to_idle"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobStatus maps a terminal outcome to the job record status it closes with.
// ok is false for outcomes that do not close a record.
func (o Outcome) JobStatus() (status string, ok bool) {
	switch o {
	case OutcomeCompleted:
		return StatusCompleted, true
	case OutcomeCancelled:
		return StatusCancelled, true
	case OutcomeFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// FileInfo describes a project file known to the local catalog.
type FileInfo struct {
	Name       string    `json:"name"`
	DosName    string    `json:"dos_name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Telemetry is the print-job portion of a device status report.
type Telemetry struct {
	SubtaskName     string       `json:"subtask_name"`
	GcodeFile       string       `json:"gcode_file"`
	PrintPercentage int          `json:"print_percentage"`
	GcodeState      string       `json:"gcode_state"`
	RemainingTime   int          `json:"remaining_time"`
	CurrentLayer    int          `json:"current_layer"`
	TotalLayers     int          `json:"total_layers"`
	Temperatures    Temperatures `json:"temperatures"`
	HMS             []HMSError   `json:"hms,omitempty"`
}

// Temperatures are heater readings in degrees Celsius.
type Temperatures struct {
	Nozzle       float64 `json:"nozzle"`
	NozzleTarget float64 `json:"nozzle_target"`
	Bed          float64 `json:"bed"`
	BedTarget    float64 `json:"bed_target"`
	Chamber      float64 `json:"chamber"`
}

// HMSError is one active health management system entry. The device reports
// the entry as two 32-bit words.
type HMSError struct {
	Attr uint32 `json:"attr"`
	Code uint32 `json:"code"`
}

// String formats the entry the way the printer's display and wiki name it,
// e.g. HMS_0300_0100_0001_0001.
func (e HMSError) String() string {
	return fmt.Sprintf("HMS_%04X_%04X_%04X_%04X", e.Attr>>16, e.Attr&0xFFFF, e.Code>>16, e.Code&0xFFFF)
}

// PrintJob is a snapshot of the active print. It is replaced on every
// reconciliation, never updated in place.
type PrintJob struct {
	FileInfo      *FileInfo `json:"file_info"`
	Progress      int       `json:"progress"`
	RemainingTime int       `json:"remaining_time"`
	CurrentLayer  int       `json:"current_layer"`
	TotalLayers   int       `json:"total_layers"`
}

// NewPrintJob builds a snapshot, clamping progress to 0..100 and the layer
// counters to 0 <= current <= total.
func NewPrintJob(info *FileInfo, progress, remainingTime, currentLayer, totalLayers int) *PrintJob {
	progress = min(max(progress, 0), 100)
	totalLayers = max(totalLayers, 0)
	currentLayer = min(max(currentLayer, 0), totalLayers)
	return &PrintJob{
		FileInfo:      info,
		Progress:      progress,
		RemainingTime: max(remainingTime, 0),
		CurrentLayer:  currentLayer,
		TotalLayers:   totalLayers,
	}
}
