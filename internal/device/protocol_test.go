package device

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/seantiz/bambubridge/internal/model"
)

func TestCommandPayload(t *testing.T) {
	tests := []struct {
		cmd     Command
		section string
	}{
		{CommandPause, "print"},
		{CommandResume, "print"},
		{CommandStop, "print"},
		{CommandPushAll, "pushing"},
	}

	for _, tt := range tests {
		data, err := tt.cmd.Payload()
		if err != nil {
			t.Fatalf("%s.Payload: %v", tt.cmd, err)
		}

		var got map[string]map[string]string
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s payload: %v", tt.cmd, err)
		}
		body, ok := got[tt.section]
		if !ok {
			t.Fatalf("%s payload = %s, missing %q section", tt.cmd, data, tt.section)
		}
		if body["command"] != string(tt.cmd) {
			t.Errorf("%s command = %q, want %q", tt.cmd, body["command"], tt.cmd)
		}
		if body["sequence_id"] != "0" {
			t.Errorf("%s sequence_id = %q, want %q", tt.cmd, body["sequence_id"], "0")
		}
	}
}

func TestMergeReportFull(t *testing.T) {
	payload := []byte(`{"print":{"command":"push_status","gcode_state":"RUNNING","mc_percent":42,
		"mc_remaining_time":35,"layer_num":10,"total_layer_num":200,
		"subtask_name":"benchy","gcode_file":"/data/Metadata/plate_1.gcode"}}`)

	got, ok, err := MergeReport(model.Telemetry{}, payload)
	if err != nil {
		t.Fatalf("MergeReport: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want true for a print report")
	}

	want := model.Telemetry{
		SubtaskName:     "benchy",
		GcodeFile:       "/data/Metadata/plate_1.gcode",
		PrintPercentage: 42,
		GcodeState:      model.GcodeStateRunning,
		RemainingTime:   35 * 60,
		CurrentLayer:    10,
		TotalLayers:     200,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("telemetry = %+v, want %+v", got, want)
	}
}

func TestMergeReportPartialKeepsPreviousFields(t *testing.T) {
	current := model.Telemetry{
		SubtaskName:     "benchy",
		GcodeFile:       "plate_1.gcode",
		PrintPercentage: 42,
		GcodeState:      model.GcodeStateRunning,
		TotalLayers:     200,
	}

	got, ok, err := MergeReport(current, []byte(`{"print":{"mc_percent":43,"layer_num":11}}`))
	if err != nil {
		t.Fatalf("MergeReport: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want true")
	}
	if got.PrintPercentage != 43 {
		t.Errorf("PrintPercentage = %d, want 43", got.PrintPercentage)
	}
	if got.CurrentLayer != 11 {
		t.Errorf("CurrentLayer = %d, want 11", got.CurrentLayer)
	}
	if got.SubtaskName != "benchy" || got.GcodeState != model.GcodeStateRunning || got.TotalLayers != 200 {
		t.Errorf("unchanged fields were modified: %+v", got)
	}
}

func TestMergeReportWithoutPrintSection(t *testing.T) {
	current := model.Telemetry{SubtaskName: "benchy"}

	got, ok, err := MergeReport(current, []byte(`{"info":{"command":"get_version"}}`))
	if err != nil {
		t.Fatalf("MergeReport: %v", err)
	}
	if ok {
		t.Error("ok = true, want false for a report without print section")
	}
	if !reflect.DeepEqual(got, current) {
		t.Errorf("telemetry = %+v, want unchanged %+v", got, current)
	}
}

func TestMergeReportInvalidJSON(t *testing.T) {
	current := model.Telemetry{SubtaskName: "benchy"}

	got, ok, err := MergeReport(current, []byte("not json"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if ok {
		t.Error("ok = true, want false on error")
	}
	if !reflect.DeepEqual(got, current) {
		t.Errorf("telemetry = %+v, want unchanged on error", got)
	}
}

func TestMergeReportTemperaturesAndHMS(t *testing.T) {
	current := model.Telemetry{
		GcodeState:   model.GcodeStateRunning,
		Temperatures: model.Temperatures{Nozzle: 150, Bed: 50, Chamber: 30},
	}

	got, ok, err := MergeReport(current, []byte(`{"print":{"nozzle_temper":219.5,
		"nozzle_target_temper":220,"bed_temper":55.1,
		"hms":[{"attr":50331904,"code":65537},{"attr":201375744,"code":131082}]}}`))
	if err != nil {
		t.Fatalf("MergeReport: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want true")
	}

	wantTemps := model.Temperatures{Nozzle: 219.5, NozzleTarget: 220, Bed: 55.1, Chamber: 30}
	if got.Temperatures != wantTemps {
		t.Errorf("Temperatures = %+v, want %+v", got.Temperatures, wantTemps)
	}
	wantHMS := []model.HMSError{
		{Attr: 0x03000100, Code: 0x00010001},
		{Attr: 0x0C00C000, Code: 0x0002000A},
	}
	if !reflect.DeepEqual(got.HMS, wantHMS) {
		t.Errorf("HMS = %v, want %v", got.HMS, wantHMS)
	}

	// Reports without an hms key keep the list; an empty list clears it.
	kept, _, err := MergeReport(got, []byte(`{"print":{"mc_percent":50}}`))
	if err != nil {
		t.Fatalf("MergeReport: %v", err)
	}
	if len(kept.HMS) != 2 {
		t.Errorf("HMS = %v after a report without hms, want it kept", kept.HMS)
	}
	cleared, _, err := MergeReport(kept, []byte(`{"print":{"hms":[]}}`))
	if err != nil {
		t.Fatalf("MergeReport: %v", err)
	}
	if len(cleared.HMS) != 0 {
		t.Errorf("HMS = %v after an empty hms list, want none", cleared.HMS)
	}
}
