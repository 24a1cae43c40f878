package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/model"
	"github.com/seantiz/bambubridge/internal/store"
)

// ErrNotConnected is returned by print commands while the device is offline.
var ErrNotConnected = errors.New("printer not connected")

// Compile-time interface satisfaction check.
var _ Host = (*Printer)(nil)

type handoff struct {
	from    State
	outcome model.Outcome
	err     error
}

// Status is a point-in-time view of the printer for the API.
type Status struct {
	State       string          `json:"state"`
	Connected   bool            `json:"connected"`
	GcodeState  string          `json:"gcode_state,omitempty"`
	Job         *model.PrintJob `json:"job,omitempty"`
	Selection   *model.FileInfo `json:"selection,omitempty"`
	ActiveJobID string          `json:"active_job_id,omitempty"`

	Temperatures model.Temperatures `json:"temperatures"`
	HMSErrors    []string           `json:"hms_errors,omitempty"`
}

// Printer owns the printer state table and the active job. All state
// transitions happen on the goroutine running Run; telemetry updates and
// state hand-offs only wake it.
type Printer struct {
	client   device.Client
	files    FileResolver
	store    store.Store
	broker   *EventBroker
	logger   *slog.Logger
	interval time.Duration

	mu        sync.RWMutex
	state     State
	job       *model.PrintJob
	selection *model.FileInfo
	lastPhase string
	// latched is the phase a job was closed in. Reports of that phase do
	// not re-enter the printing or paused state until the phase changes.
	latched string
	temps   model.Temperatures
	hms     []model.HMSError

	// recMu guards the persisted record of the active job. It may be held
	// while taking mu, never the other way round.
	recMu  sync.Mutex
	active *model.JobRecord
	seq    int

	hmu      sync.Mutex
	handoffs []handoff
	wake     chan struct{}
	report   atomic.Bool
}

// New creates a printer in the idle state. interval is the telemetry poll
// period used by the printing and paused states.
func New(client device.Client, files FileResolver, s store.Store, logger *slog.Logger, interval time.Duration) *Printer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Printer{
		client:   client,
		files:    files,
		store:    s,
		broker:   NewEventBroker(),
		logger:   logger,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
	p.state = NewIdleState(p, logger)
	return p
}

// Broker returns the printer's event broker for SSE subscription.
func (p *Printer) Broker() *EventBroker {
	return p.broker
}

// Run drives the state table until ctx is cancelled. On return the current
// state has been finalized and no state goroutine is left running.
func (p *Printer) Run(ctx context.Context) error {
	p.logger.Info("printer driver started")
	defer func() {
		p.currentState().Finalize()
		p.logger.Info("printer driver stopped")
	}()

	p.Notify()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
			p.drainHandoffs()
			p.followDevice(p.report.Swap(false))
		}
	}
}

// Notify tells the driver that fresh telemetry is available. It never blocks.
func (p *Printer) Notify() {
	p.report.Store(true)
	p.wakeDriver()
}

func (p *Printer) wakeDriver() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pause asks the current state to pause the print.
func (p *Printer) Pause() error {
	return p.command(State.PausePrint)
}

// Resume asks the current state to resume the print.
func (p *Printer) Resume() error {
	return p.command(State.ResumePrint)
}

// Cancel asks the current state to cancel the print.
func (p *Printer) Cancel() error {
	return p.command(State.CancelPrint)
}

func (p *Printer) command(fn func(State)) error {
	if !p.client.Connected() {
		return ErrNotConnected
	}
	fn(p.currentState())
	return nil
}

// StateName returns the name of the current state.
func (p *Printer) StateName() string {
	return p.currentState().Name()
}

// ActiveJobID returns the ID of the open job record, or "" when none.
func (p *Printer) ActiveJobID() string {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.active == nil {
		return ""
	}
	return p.active.ID
}

// Status returns a snapshot of the printer.
func (p *Printer) Status() Status {
	activeID := p.ActiveJobID()

	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{
		State:       p.state.Name(),
		Connected:   p.client.Connected(),
		GcodeState:  p.lastPhase,
		Job:         p.job,
		Selection:   p.selection,
		ActiveJobID: activeID,

		Temperatures: p.temps,
		HMSErrors:    hmsStrings(p.hms),
	}
}

func hmsStrings(errs []model.HMSError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.String()
	}
	return out
}

// Client implements Host.
func (p *Printer) Client() device.Client {
	return p.client
}

// ProjectFiles implements Host.
func (p *Printer) ProjectFiles() FileResolver {
	return p.files
}

// CurrentPrintJob implements Host.
func (p *Printer) CurrentPrintJob() *model.PrintJob {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.job
}

// SetCurrentPrintJob implements Host.
func (p *Printer) SetCurrentPrintJob(job *model.PrintJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.job = job
}

// RemoveProjectSelection implements Host.
func (p *Printer) RemoveProjectSelection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selection = nil
}

// SelectProjectFile implements Host.
func (p *Printer) SelectProjectFile(path string) bool {
	info := p.files.GetFileByName(path)
	if info == nil {
		p.logger.Error("select project file: not found", "path", path)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.selection = info
	return true
}

// Announce implements Host.
func (p *Printer) Announce(msg string) {
	p.logger.Info("announcement", "message", msg)

	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.active != nil {
		p.appendEventLocked(context.Background(), p.active, msg)
	}
}

// Handoff implements Host.
func (p *Printer) Handoff(from State, outcome model.Outcome, err error) {
	p.hmu.Lock()
	p.handoffs = append(p.handoffs, handoff{from: from, outcome: outcome, err: err})
	p.hmu.Unlock()
	p.wakeDriver()
}

// ReportPrintJobStatus implements Host. It persists the current job's
// progress to its history record, creating the record when the printed file
// changes, and publishes a progress event.
func (p *Printer) ReportPrintJobStatus() {
	job := p.CurrentPrintJob()
	if job == nil {
		p.logger.Debug("not printing")
		return
	}

	progressGauge.Set(float64(job.Progress))
	layerGauge.Set(float64(job.CurrentLayer))

	ctx := context.Background()
	p.recMu.Lock()
	defer p.recMu.Unlock()

	rec, err := p.ensureRecordLocked(ctx, job)
	if err != nil {
		p.logger.Error("failed to open job record", "file", job.FileInfo.Path, "error", err)
		return
	}

	rec.Progress = job.Progress
	rec.RemainingTime = job.RemainingTime
	rec.CurrentLayer = job.CurrentLayer
	rec.TotalLayers = job.TotalLayers
	if err := p.store.UpdateJobProgress(ctx, rec); err != nil {
		p.logger.Error("failed to persist job progress", "job_id", rec.ID, "error", err)
	}

	p.appendEventLocked(ctx, rec, progressLine(job))
}

func progressLine(job *model.PrintJob) string {
	remaining := time.Duration(job.RemainingTime) * time.Second
	return fmt.Sprintf("progress %d%% layer %d/%d, %s remaining",
		job.Progress, job.CurrentLayer, job.TotalLayers, remaining)
}

func (p *Printer) currentState() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// drainHandoffs applies queued hand-offs, including any queued while
// applying them.
func (p *Printer) drainHandoffs() {
	for {
		p.hmu.Lock()
		pending := p.handoffs
		p.handoffs = nil
		p.hmu.Unlock()

		if len(pending) == 0 {
			return
		}
		for _, h := range pending {
			p.apply(h)
		}
	}
}

func (p *Printer) apply(h handoff) {
	if h.from != p.currentState() {
		p.logger.Debug("discarding stale hand-off", "from", h.from.Name(), "outcome", h.outcome.String())
		return
	}

	var status string
	var closing bool
	switch {
	case h.outcome == model.OutcomeContinue:
		return
	case h.outcome == model.OutcomeReturnToIdle:
	case h.err != nil:
		// A transport fault is not the end of the print. Leave the record
		// open and re-enter on the next report.
		p.logger.Error("state failed", "state", h.from.Name(), "error", h.err)
		p.mu.Lock()
		p.lastPhase = ""
		p.mu.Unlock()
	default:
		status, closing = h.outcome.JobStatus()
		p.mu.Lock()
		p.latched = p.lastPhase
		p.mu.Unlock()
	}

	// Leave the state first so its goroutines can no longer report against
	// the record being closed.
	p.changeState(NewIdleState(p, p.logger))
	if closing {
		p.closeJob(status)
	}
}

// followDevice keeps the state in step with the device's reported phase.
// FINISH and FAILED act once per phase change. RUNNING and PAUSE are
// re-applied on every fresh report, so a print whose file could not be
// resolved is picked up as soon as it can be.
func (p *Printer) followDevice(report bool) {
	tel, err := p.client.Telemetry()
	if err != nil {
		return
	}

	p.mu.Lock()
	changed := tel.GcodeState != p.lastPhase
	p.lastPhase = tel.GcodeState
	if changed {
		p.latched = ""
	}
	retry := report && tel.GcodeState != p.latched
	raised := newHMSErrors(p.hms, tel.HMS)
	p.temps = tel.Temperatures
	p.hms = tel.HMS
	p.mu.Unlock()

	if changed {
		p.logger.Debug("device phase changed", "gcode_state", tel.GcodeState)
	}
	recordTemperatures(tel.Temperatures)
	hmsErrorsGauge.Set(float64(len(tel.HMS)))
	for _, e := range raised {
		p.Announce("HMS error " + e.String())
	}

	switch tel.GcodeState {
	case model.GcodeStateRunning:
		if changed || retry {
			p.changeState(NewPrintingState(p, p.logger, p.interval))
		}
	case model.GcodeStatePause:
		if changed || retry {
			p.changeState(NewPausedState(p, p.logger, p.interval))
		}
	case model.GcodeStateFinish:
		if changed {
			p.changeState(NewFinishedState(p, p.logger, model.OutcomeCompleted))
		}
	case model.GcodeStateFailed:
		if changed {
			p.changeState(NewFinishedState(p, p.logger, model.OutcomeFailed))
		}
	}
}

// newHMSErrors returns the entries of next that were not already active.
func newHMSErrors(prev, next []model.HMSError) []model.HMSError {
	var raised []model.HMSError
	for _, e := range next {
		if !slices.Contains(prev, e) {
			raised = append(raised, e)
		}
	}
	return raised
}

func recordTemperatures(t model.Temperatures) {
	temperatureGauge.WithLabelValues("nozzle").Set(t.Nozzle)
	temperatureGauge.WithLabelValues("bed").Set(t.Bed)
	temperatureGauge.WithLabelValues("chamber").Set(t.Chamber)
}

func (p *Printer) changeState(next State) {
	prev := p.currentState()
	if prev.Name() == next.Name() {
		return
	}

	p.logger.Info("changing state", "from", prev.Name(), "to", next.Name())
	prev.Finalize()

	p.mu.Lock()
	p.state = next
	p.mu.Unlock()
	transitionsTotal.WithLabelValues(prev.Name(), next.Name()).Inc()

	p.syncRecordStatus(next.Name())

	if err := next.Init(); err != nil {
		p.logger.Error("failed to enter state", "state", next.Name(), "error", err)
		p.mu.Lock()
		p.lastPhase = ""
		p.mu.Unlock()
		p.changeState(NewIdleState(p, p.logger))
	}
}

// syncRecordStatus mirrors pause and resume onto the open job record.
func (p *Printer) syncRecordStatus(stateName string) {
	var status string
	switch stateName {
	case StatePrinting:
		status = model.StatusPrinting
	case StatePaused:
		status = model.StatusPaused
	default:
		return
	}

	p.recMu.Lock()
	defer p.recMu.Unlock()

	if p.active == nil || p.active.Status == status {
		return
	}
	ctx := context.Background()
	if err := p.store.UpdateJobStatus(ctx, p.active.ID, status); err != nil {
		p.logger.Error("failed to update job status", "job_id", p.active.ID, "status", status, "error", err)
		return
	}
	p.active.Status = status
}

// closeJob finishes the open job record with status.
func (p *Printer) closeJob(status string) {
	p.recMu.Lock()
	defer p.recMu.Unlock()

	if p.active == nil {
		return
	}
	p.closeRecordLocked(context.Background(), p.active, status)
}

// ensureRecordLocked returns the open record for job, opening a new one when
// the printed file differs from the open record's. A record left open by a
// previous run is resumed when it is for the same file.
func (p *Printer) ensureRecordLocked(ctx context.Context, job *model.PrintJob) (*model.JobRecord, error) {
	path := job.FileInfo.Path
	if p.active != nil {
		if p.active.FilePath == path {
			return p.active, nil
		}
		p.closeRecordLocked(ctx, p.active, supersededStatus(p.active))
	} else {
		prev, err := p.store.GetActiveJob(ctx)
		switch {
		case err == nil && prev.FilePath == path:
			seq, err := p.store.NextEventSeq(ctx, prev.ID)
			if err != nil {
				return nil, err
			}
			p.active, p.seq = prev, seq
			p.logger.Info("resuming job record", "job_id", prev.ID, "file", prev.FileName)
			return prev, nil
		case err == nil:
			p.closeRecordLocked(ctx, prev, supersededStatus(prev))
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("find active job: %w", err)
		}
	}

	status := model.StatusPrinting
	if p.currentState().Name() == StatePaused {
		status = model.StatusPaused
	}
	rec := &model.JobRecord{
		ID:          model.NewID(),
		FileName:    job.FileInfo.Name,
		FilePath:    path,
		Status:      status,
		TotalLayers: job.TotalLayers,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.store.CreateJob(ctx, rec); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	p.active, p.seq = rec, 0

	p.logger.Info("job started", "job_id", rec.ID, "file", rec.FileName)
	p.appendEventLocked(ctx, rec, "Started printing "+rec.FileName)
	return rec, nil
}

// supersededStatus is the status for a record whose print was replaced
// without the driver seeing it end.
func supersededStatus(rec *model.JobRecord) string {
	if rec.Progress >= 100 {
		return model.StatusCompleted
	}
	return model.StatusCancelled
}

func (p *Printer) closeRecordLocked(ctx context.Context, rec *model.JobRecord, status string) {
	if status == model.StatusCompleted && rec.Progress < 100 {
		rec.Progress = 100
		rec.RemainingTime = 0
		rec.CurrentLayer = rec.TotalLayers
		if err := p.store.UpdateJobProgress(ctx, rec); err != nil {
			p.logger.Error("failed to persist final progress", "job_id", rec.ID, "error", err)
		}
	}

	// The closing event is stored before finished_at is set, so a reader
	// that sees a finished record also sees its full history.
	p.appendEventLocked(ctx, rec, fmt.Sprintf("Print %s: %s", status, rec.FileName))
	if err := p.store.UpdateJobStatus(ctx, rec.ID, status); err != nil {
		p.logger.Error("failed to close job", "job_id", rec.ID, "status", status, "error", err)
	} else {
		rec.Status = status
	}
	p.broker.Close(rec.ID)

	jobsTotal.WithLabelValues(status).Inc()
	p.logger.Info("job closed", "job_id", rec.ID, "file", rec.FileName, "status", status)

	if rec == p.active {
		p.active, p.seq = nil, 0
		progressGauge.Set(0)
		layerGauge.Set(0)
	}
}

// appendEventLocked persists line to rec's history and publishes it to
// live subscribers.
func (p *Printer) appendEventLocked(ctx context.Context, rec *model.JobRecord, line string) {
	var seq int
	if rec == p.active {
		seq = p.seq
		p.seq++
	} else {
		next, err := p.store.NextEventSeq(ctx, rec.ID)
		if err != nil {
			p.logger.Error("failed to read event sequence", "job_id", rec.ID, "error", err)
			return
		}
		seq = next
	}

	if err := p.store.InsertEvent(ctx, rec.ID, seq, line); err != nil {
		p.logger.Error("failed to persist job event", "job_id", rec.ID, "seq", seq, "error", err)
	}
	p.broker.Publish(model.JobEvent{
		JobID:     rec.ID,
		Seq:       seq,
		Line:      line,
		CreatedAt: time.Now().UTC(),
	})
}
