package printer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/model"
)

// DefaultPollInterval is how often the printing worker reconciles telemetry.
const DefaultPollInterval = 3 * time.Second

// PrintingState tracks an active print. Init reconciles once and starts a
// worker that keeps the host's print job in step with device telemetry until
// the print reaches 100%, the file can no longer be resolved, or the state
// is left. A new instance is used for every printing episode.
type PrintingState struct {
	baseState
	interval time.Duration

	printing atomic.Bool
	worker   worker

	// cancelMu orders CancelPrint against a reconciliation installing a job.
	cancelMu  sync.Mutex
	cancelled bool
}

// NewPrintingState creates a printing state polling every interval.
func NewPrintingState(host Host, logger *slog.Logger, interval time.Duration) *PrintingState {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PrintingState{
		baseState: newBaseState(StatePrinting, host, logger),
		interval:  interval,
	}
}

// Init clears the project selection, reconciles once and starts the worker.
// A telemetry error is returned and no worker is started. No worker is
// started either when the printed file is not known locally; the idle
// hand-off has already been queued.
func (s *PrintingState) Init() error {
	// Never run two workers for one instance.
	s.worker.join()

	s.printing.Store(true)
	s.host.RemoveProjectSelection()

	outcome, err := s.UpdatePrintJobInfo()
	if err != nil {
		s.printing.Store(false)
		return fmt.Errorf("reconcile print job: %w", err)
	}
	if outcome == model.OutcomeReturnToIdle {
		s.printing.Store(false)
		return nil
	}

	s.worker.start(s.run)
	return nil
}

// Finalize stops the worker, waits for it to exit and clears the host's
// print job. It is safe to call without a prior Init.
func (s *PrintingState) Finalize() {
	s.printing.Store(false)
	s.worker.signal()
	s.worker.join()
	s.host.SetCurrentPrintJob(nil)
}

// Running reports whether the worker goroutine is alive.
func (s *PrintingState) Running() bool {
	return s.worker.running()
}

// UpdatePrintJobInfo maps the current telemetry onto a fresh print job and
// selects its project file. When neither the subtask name nor the gcode file
// resolves locally the job is cleared and OutcomeReturnToIdle is handed off
// and returned.
func (s *PrintingState) UpdatePrintJobInfo() (model.Outcome, error) {
	job, tel, err := resolveJob(s.host)
	if err != nil {
		return model.OutcomeContinue, fmt.Errorf("read telemetry: %w", err)
	}

	if job == nil {
		s.logger.Debug("no local project file for print",
			"subtask_name", tel.SubtaskName,
			"gcode_file", tel.GcodeFile,
		)
		s.host.SetCurrentPrintJob(nil)
		s.host.Handoff(s, model.OutcomeReturnToIdle, nil)
		return model.OutcomeReturnToIdle, nil
	}

	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelled {
		return model.OutcomeContinue, nil
	}
	s.host.SetCurrentPrintJob(job)
	s.host.SelectProjectFile(job.FileInfo.Path)
	return model.OutcomeContinue, nil
}

// PausePrint asks the device to pause. The next reconciliation reflects the
// result; nothing changes locally.
func (s *PrintingState) PausePrint() {
	s.publish(device.CommandPause)
}

// CancelPrint asks the device to stop and, once the transport accepts the
// command, finishes the job immediately without waiting for telemetry.
func (s *PrintingState) CancelPrint() {
	if !s.publish(device.CommandStop) {
		return
	}

	s.printing.Store(false)
	s.worker.signal()

	s.cancelMu.Lock()
	s.cancelled = true
	s.host.SetCurrentPrintJob(nil)
	s.cancelMu.Unlock()

	s.host.Handoff(s, model.OutcomeCancelled, nil)
}

func (s *PrintingState) active() bool {
	if !s.printing.Load() {
		return false
	}
	job := s.host.CurrentPrintJob()
	return job != nil && job.Progress < 100
}

func (s *PrintingState) run(stop <-chan struct{}) {
	for s.active() {
		outcome, err := s.UpdatePrintJobInfo()
		if err != nil {
			s.fail(err)
			return
		}
		if outcome == model.OutcomeReturnToIdle {
			return
		}
		s.host.ReportPrintJobStatus()

		select {
		case <-time.After(s.interval):
		case <-stop:
		}
	}

	// Finalize or CancelPrint own the job from here.
	if !s.printing.Load() {
		return
	}

	outcome, err := s.UpdatePrintJobInfo()
	if err != nil {
		s.fail(err)
		return
	}
	if outcome == model.OutcomeReturnToIdle {
		return
	}

	job := s.host.CurrentPrintJob()
	if job != nil && job.Progress >= 100 && s.printing.CompareAndSwap(true, false) {
		s.logger.Info("print job complete", "file", job.FileInfo.Name)
		s.host.Handoff(s, model.OutcomeCompleted, nil)
	}
}

func (s *PrintingState) fail(err error) {
	s.logger.Error("print job reconciliation failed", "error", err)
	if s.printing.CompareAndSwap(true, false) {
		s.host.Handoff(s, model.OutcomeFailed, err)
	}
}
