package printer

import (
	"log/slog"
	"time"

	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/model"
)

// PausedState holds a paused print. While paused it keeps reporting the job
// status so observers see the print is still there.
type PausedState struct {
	baseState
	interval time.Duration
	reporter worker
}

// NewPausedState creates a paused state reporting every interval.
func NewPausedState(host Host, logger *slog.Logger, interval time.Duration) *PausedState {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PausedState{
		baseState: newBaseState(StatePaused, host, logger),
		interval:  interval,
	}
}

func (s *PausedState) Init() error {
	s.reporter.join()
	s.host.Announce("Print paused")
	s.reporter.start(s.report)
	return nil
}

func (s *PausedState) Finalize() {
	s.reporter.signal()
	s.reporter.join()
	s.host.SetCurrentPrintJob(nil)
}

func (s *PausedState) ResumePrint() {
	s.publish(device.CommandResume)
}

func (s *PausedState) CancelPrint() {
	if !s.publish(device.CommandStop) {
		return
	}

	s.reporter.signal()
	s.host.SetCurrentPrintJob(nil)
	s.host.Handoff(s, model.OutcomeCancelled, nil)
}

func (s *PausedState) report(stop <-chan struct{}) {
	for {
		job, _, err := resolveJob(s.host)
		if err != nil {
			s.logger.Debug("paused status refresh failed", "error", err)
		} else {
			s.host.SetCurrentPrintJob(job)
			if job != nil {
				s.host.SelectProjectFile(job.FileInfo.Path)
				s.host.ReportPrintJobStatus()
			}
		}

		select {
		case <-time.After(s.interval):
		case <-stop:
			return
		}
	}
}
