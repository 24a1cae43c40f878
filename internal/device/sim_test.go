package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/bambubridge/internal/model"
)

func newTestSimulator(t *testing.T, cfg SimulatorConfig) *Simulator {
	t.Helper()
	return NewSimulator(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestSimulatorStartsIdle(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{File: "benchy.3mf"})

	tel, err := sim.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if tel.GcodeState != model.GcodeStateIdle {
		t.Errorf("gcode_state = %q, want IDLE", tel.GcodeState)
	}
}

func TestSimulatorPlaysPrintToFinish(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{
		File:              "benchy.3mf",
		TotalLayers:       50,
		Step:              25,
		SecondsPerPercent: 60,
	})

	var updates atomic.Int32
	sim.OnUpdate(func() { updates.Add(1) })

	sim.Start()
	tel, _ := sim.Telemetry()
	if tel.GcodeState != model.GcodeStateRunning || tel.SubtaskName != "benchy" {
		t.Fatalf("after Start telemetry = %+v", tel)
	}
	if tel.RemainingTime != 100*60 {
		t.Errorf("remaining = %d, want %d", tel.RemainingTime, 100*60)
	}
	if tel.Temperatures.Nozzle != simNozzleTemp || tel.Temperatures.Bed != simBedTemp {
		t.Errorf("temperatures = %+v", tel.Temperatures)
	}

	for want := 25; want < 100; want += 25 {
		if sim.advance() {
			t.Fatalf("advance ended early at %d%%", want)
		}
		tel, _ = sim.Telemetry()
		if tel.PrintPercentage != want {
			t.Errorf("progress = %d, want %d", tel.PrintPercentage, want)
		}
		if tel.CurrentLayer != want*50/100 {
			t.Errorf("layer = %d, want %d", tel.CurrentLayer, want*50/100)
		}
	}

	if !sim.advance() {
		t.Fatal("advance at 100% should end the print")
	}
	tel, _ = sim.Telemetry()
	if tel.GcodeState != model.GcodeStateFinish || tel.PrintPercentage != 100 || tel.CurrentLayer != 50 {
		t.Errorf("final telemetry = %+v", tel)
	}
	if got := updates.Load(); got != 5 {
		t.Errorf("updates = %d, want 5", got)
	}
}

func TestSimulatorCommands(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{File: "benchy.3mf", Step: 10})
	sim.Start()

	phase := func() string {
		tel, _ := sim.Telemetry()
		return tel.GcodeState
	}

	if !sim.Publish(CommandPause) {
		t.Fatal("Publish(pause) = false")
	}
	if phase() != model.GcodeStatePause {
		t.Errorf("after pause phase = %q", phase())
	}
	if sim.advance() {
		t.Error("advance while paused should not end the print")
	}
	if tel, _ := sim.Telemetry(); tel.PrintPercentage != 0 {
		t.Errorf("progress advanced while paused: %d", tel.PrintPercentage)
	}

	sim.Publish(CommandResume)
	if phase() != model.GcodeStateRunning {
		t.Errorf("after resume phase = %q", phase())
	}

	sim.Publish(CommandStop)
	if phase() != model.GcodeStateIdle {
		t.Errorf("after stop phase = %q", phase())
	}
	if !sim.advance() {
		t.Error("advance after stop should report the print ended")
	}

	want := []Command{CommandPause, CommandResume, CommandStop}
	got := sim.Commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSimulatorDisconnected(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{File: "benchy.3mf"})
	sim.SetConnected(false)

	if sim.Connected() {
		t.Error("Connected() = true after SetConnected(false)")
	}
	if _, err := sim.Telemetry(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Telemetry error = %v, want ErrNotConnected", err)
	}
	if sim.Publish(CommandPause) {
		t.Error("Publish while disconnected = true")
	}
	if len(sim.Commands()) != 0 {
		t.Errorf("commands = %v, want none", sim.Commands())
	}
}

func TestSimulatorRunStopsOnCancel(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{File: "benchy.3mf", Step: 1, Tick: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
