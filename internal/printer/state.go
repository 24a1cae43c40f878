package printer

import (
	"log/slog"

	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/model"
)

// State names.
const (
	StateIdle     = "idle"
	StatePrinting = "printing"
	StatePaused   = "paused"
	StateFinished = "finished"
)

var stateNames = []string{StateIdle, StatePrinting, StatePaused, StateFinished}

// State is one entry of the printer state table. Init runs when the state is
// entered and Finalize when it is left; both are called by the driver only.
// The print commands may be called from any goroutine.
type State interface {
	Name() string
	Init() error
	Finalize()
	PausePrint()
	ResumePrint()
	CancelPrint()
}

// FileResolver resolves a device-reported file name to a local project file.
type FileResolver interface {
	// GetFileByName returns nil when no local file matches name.
	GetFileByName(name string) *model.FileInfo
}

// Host is the printer context a State operates on.
type Host interface {
	Client() device.Client
	ProjectFiles() FileResolver

	CurrentPrintJob() *model.PrintJob
	SetCurrentPrintJob(job *model.PrintJob)
	ReportPrintJobStatus()

	RemoveProjectSelection()
	SelectProjectFile(path string) bool

	// Announce records a user-facing message against the active job.
	Announce(msg string)

	// Handoff queues an outcome for the driver and never blocks. Outcomes
	// from a state that is no longer current are discarded.
	Handoff(from State, outcome model.Outcome, err error)
}

// baseState ignores every command. Concrete states embed it and override
// what they support.
type baseState struct {
	name   string
	host   Host
	logger *slog.Logger
}

func newBaseState(name string, host Host, logger *slog.Logger) baseState {
	return baseState{
		name:   name,
		host:   host,
		logger: logger.With("state", name),
	}
}

func (s *baseState) Name() string { return s.name }

func (s *baseState) Init() error { return nil }

func (s *baseState) Finalize() {}

func (s *baseState) PausePrint() {
	s.logger.Debug("pause ignored")
}

func (s *baseState) ResumePrint() {
	s.logger.Debug("resume ignored")
}

func (s *baseState) CancelPrint() {
	s.logger.Debug("cancel ignored")
}

// publish sends cmd when the transport is connected and logs the result.
func (s *baseState) publish(cmd device.Command) bool {
	client := s.host.Client()
	if !client.Connected() {
		s.logger.Info("command skipped, printer not connected", "command", cmd)
		return false
	}
	if !client.Publish(cmd) {
		s.logger.Warn("command failed", "command", cmd)
		return false
	}
	s.logger.Info("command sent", "command", cmd)
	return true
}

// resolveJob reads the device telemetry and resolves it against the local
// project files, first by subtask name and then by gcode file. job is nil
// when neither name is known locally.
func resolveJob(host Host) (*model.PrintJob, model.Telemetry, error) {
	tel, err := host.Client().Telemetry()
	if err != nil {
		reconciliationsTotal.WithLabelValues(resultError).Inc()
		return nil, tel, err
	}

	files := host.ProjectFiles()
	info := files.GetFileByName(tel.SubtaskName)
	if info == nil {
		info = files.GetFileByName(tel.GcodeFile)
	}
	if info == nil {
		reconciliationsTotal.WithLabelValues(resultUnresolved).Inc()
		return nil, tel, nil
	}

	progress := tel.PrintPercentage
	// The device keeps the previous job's 100% while preparing the next one.
	if tel.GcodeState == model.GcodeStatePrepare && progress == 100 {
		progress = 0
	}

	reconciliationsTotal.WithLabelValues(resultResolved).Inc()
	return model.NewPrintJob(info, progress, tel.RemainingTime, tel.CurrentLayer, tel.TotalLayers), tel, nil
}
