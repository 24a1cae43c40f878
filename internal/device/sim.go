package device

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/bambubridge/internal/model"
)

// Compile-time interface satisfaction check.
var _ Client = (*Simulator)(nil)

// Heater readings reported while a simulated print runs.
const (
	simNozzleTemp = 220.0
	simBedTemp    = 55.0
)

// SimulatorConfig describes the print a Simulator plays.
type SimulatorConfig struct {
	// File is the project file name reported as the subtask.
	File string

	// TotalLayers is the layer count of the simulated print.
	TotalLayers int

	// Step is the progress added per tick, in percent.
	Step int

	// Tick is the time between reports.
	Tick time.Duration

	// SecondsPerPercent drives the reported remaining time.
	SecondsPerPercent int
}

// Simulator is an in-process stand-in for a printer. It emits the same
// partial JSON reports as the device and answers pause, resume and stop.
// It is safe for concurrent use.
type Simulator struct {
	cfg    SimulatorConfig
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	telemetry model.Telemetry
	listeners []func()
	commands  []Command
}

// NewSimulator creates a connected simulator with an idle device.
func NewSimulator(cfg SimulatorConfig, logger *slog.Logger) *Simulator {
	if cfg.Step <= 0 {
		cfg.Step = 10
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.TotalLayers <= 0 {
		cfg.TotalLayers = 100
	}
	return &Simulator{
		cfg:       cfg,
		logger:    logger,
		connected: true,
		telemetry: model.Telemetry{GcodeState: model.GcodeStateIdle},
	}
}

// OnUpdate registers fn to be called after every report.
func (s *Simulator) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetConnected simulates the transport dropping or recovering.
func (s *Simulator) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.notify()
}

// Connected implements Client.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Commands returns the commands accepted so far.
func (s *Simulator) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

// Telemetry implements Client.
func (s *Simulator) Telemetry() (model.Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return model.Telemetry{}, ErrNotConnected
	}
	return s.telemetry, nil
}

// Publish implements Client. Control commands change the simulated phase the
// way the device does.
func (s *Simulator) Publish(cmd Command) bool {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return false
	}
	s.commands = append(s.commands, cmd)
	phase := s.telemetry.GcodeState
	s.mu.Unlock()

	s.logger.Debug("simulator received command", "command", cmd)

	switch cmd {
	case CommandPause:
		if phase == model.GcodeStateRunning {
			s.report(map[string]any{"gcode_state": model.GcodeStatePause})
		}
	case CommandResume:
		if phase == model.GcodeStatePause {
			s.report(map[string]any{"gcode_state": model.GcodeStateRunning})
		}
	case CommandStop:
		if phase == model.GcodeStateRunning || phase == model.GcodeStatePause {
			s.report(map[string]any{"gcode_state": model.GcodeStateIdle})
		}
	case CommandPushAll:
		s.notify()
	}
	return true
}

// Start begins a print of the configured file.
func (s *Simulator) Start() {
	s.report(map[string]any{
		"gcode_state":          model.GcodeStateRunning,
		"subtask_name":         strings.TrimSuffix(s.cfg.File, ".3mf"),
		"gcode_file":           s.cfg.File,
		"mc_percent":           0,
		"mc_remaining_time":    100 * s.cfg.SecondsPerPercent / 60,
		"layer_num":            0,
		"total_layer_num":      s.cfg.TotalLayers,
		"nozzle_temper":        simNozzleTemp,
		"nozzle_target_temper": simNozzleTemp,
		"bed_temper":           simBedTemp,
		"bed_target_temper":    simBedTemp,
	})
}

// Run starts a print and advances it every tick until it finishes, is
// stopped, or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.Start()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if done := s.advance(); done {
				return nil
			}
		}
	}
}

// advance moves a running print forward one step. It reports true once the
// print has ended.
func (s *Simulator) advance() bool {
	s.mu.Lock()
	tel := s.telemetry
	s.mu.Unlock()

	switch tel.GcodeState {
	case model.GcodeStateRunning:
	case model.GcodeStatePause:
		return false
	default:
		return true
	}

	progress := min(tel.PrintPercentage+s.cfg.Step, 100)
	if progress == 100 {
		s.report(map[string]any{
			"gcode_state":       model.GcodeStateFinish,
			"mc_percent":        100,
			"mc_remaining_time": 0,
			"layer_num":         s.cfg.TotalLayers,
		})
		return true
	}

	s.report(map[string]any{
		"mc_percent":        progress,
		"mc_remaining_time": (100 - progress) * s.cfg.SecondsPerPercent / 60,
		"layer_num":         progress * s.cfg.TotalLayers / 100,
	})
	return false
}

// report merges a partial device report, exactly as one arriving over MQTT.
func (s *Simulator) report(fields map[string]any) {
	payload, err := json.Marshal(map[string]any{"print": fields})
	if err != nil {
		s.logger.Error("encode simulated report", "error", err)
		return
	}

	s.mu.Lock()
	next, ok, err := MergeReport(s.telemetry, payload)
	if err != nil || !ok {
		s.mu.Unlock()
		s.logger.Error("merge simulated report", "error", err)
		return
	}
	s.telemetry = next
	s.mu.Unlock()

	s.notify()
}

func (s *Simulator) notify() {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
