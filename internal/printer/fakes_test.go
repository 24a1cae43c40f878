package printer

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/bambubridge/internal/device"
	"github.com/seantiz/bambubridge/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeClient serves a scripted telemetry sequence. Once the sequence is
// exhausted the last entry repeats.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	rejected  bool
	err       error
	seq       []model.Telemetry
	calls     int
	published []device.Command
}

func newFakeClient(seq ...model.Telemetry) *fakeClient {
	return &fakeClient{connected: true, seq: seq}
}

func (c *fakeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(cmd device.Command) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected {
		return false
	}
	c.published = append(c.published, cmd)
	return true
}

func (c *fakeClient) Telemetry() (model.Telemetry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return model.Telemetry{}, c.err
	}
	if len(c.seq) == 0 {
		return model.Telemetry{}, nil
	}
	return c.seq[min(c.calls-1, len(c.seq)-1)], nil
}

func (c *fakeClient) set(tel model.Telemetry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = []model.Telemetry{tel}
	c.calls = 0
	c.err = nil
}

func (c *fakeClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeClient) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

func (c *fakeClient) telemetryCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeClient) commands() []device.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]device.Command(nil), c.published...)
}

// fakeFiles resolves names from a fixed map.
type fakeFiles map[string]*model.FileInfo

func (f fakeFiles) GetFileByName(name string) *model.FileInfo {
	if name == "" {
		return nil
	}
	return f[name]
}

var benchy = &model.FileInfo{Name: "benchy.3mf", Path: "cache/benchy.3mf"}

func testFiles() fakeFiles {
	return fakeFiles{
		"benchy.3mf":       benchy,
		"benchy":           benchy,
		"cache/benchy.3mf": benchy,
	}
}

type recordedHandoff struct {
	from    State
	outcome model.Outcome
	err     error
}

// fakeHost records everything a state does to its context.
type fakeHost struct {
	client *fakeClient
	files  FileResolver

	mu           sync.Mutex
	job          *model.PrintJob
	reports      int
	removed      int
	selections   []string
	announcement []string
	handoffs     []recordedHandoff
	handoffCh    chan recordedHandoff
}

func newFakeHost(client *fakeClient) *fakeHost {
	return &fakeHost{
		client:    client,
		files:     testFiles(),
		handoffCh: make(chan recordedHandoff, 16),
	}
}

func (h *fakeHost) Client() device.Client      { return h.client }
func (h *fakeHost) ProjectFiles() FileResolver { return h.files }

func (h *fakeHost) CurrentPrintJob() *model.PrintJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job
}

func (h *fakeHost) SetCurrentPrintJob(job *model.PrintJob) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.job = job
}

func (h *fakeHost) ReportPrintJobStatus() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports++
}

func (h *fakeHost) RemoveProjectSelection() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed++
}

func (h *fakeHost) SelectProjectFile(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selections = append(h.selections, path)
	return true
}

func (h *fakeHost) Announce(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.announcement = append(h.announcement, msg)
}

func (h *fakeHost) Handoff(from State, outcome model.Outcome, err error) {
	rec := recordedHandoff{from: from, outcome: outcome, err: err}
	h.mu.Lock()
	h.handoffs = append(h.handoffs, rec)
	h.mu.Unlock()
	h.handoffCh <- rec
}

func (h *fakeHost) recorded() []recordedHandoff {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedHandoff(nil), h.handoffs...)
}

func (h *fakeHost) reportCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reports
}

func (h *fakeHost) waitHandoff(t *testing.T, timeout time.Duration) recordedHandoff {
	t.Helper()
	select {
	case rec := <-h.handoffCh:
		return rec
	case <-time.After(timeout):
		t.Fatalf("no hand-off within %s", timeout)
		return recordedHandoff{}
	}
}

func running(progress int) model.Telemetry {
	return model.Telemetry{
		SubtaskName:     "benchy",
		GcodeFile:       "/data/Metadata/plate_1.gcode",
		PrintPercentage: progress,
		GcodeState:      model.GcodeStateRunning,
		RemainingTime:   600,
		CurrentLayer:    progress * 2,
		TotalLayers:     200,
	}
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %s waiting for %s", timeout, what)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}
