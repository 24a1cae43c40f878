package device

import (
	"encoding/json"
	"fmt"

	"github.com/seantiz/bambubridge/internal/model"
)

// Command is a request understood by the printer's MQTT request topic.
type Command string

const (
	CommandPause   Command = "pause"
	CommandResume  Command = "resume"
	CommandStop    Command = "stop"
	CommandPushAll Command = "pushall"
)

// commands lists every known command, used to pre-initialise metric labels.
var commands = []Command{CommandPause, CommandResume, CommandStop, CommandPushAll}

type commandRequest struct {
	SequenceID string `json:"sequence_id"`
	Command    string `json:"command"`
}

// Payload encodes the command as the JSON request body the printer expects.
// Print control commands go in the "print" section; pushall goes in "pushing".
func (c Command) Payload() ([]byte, error) {
	section := "print"
	if c == CommandPushAll {
		section = "pushing"
	}

	data, err := json.Marshal(map[string]commandRequest{
		section: {SequenceID: "0", Command: string(c)},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s command: %w", c, err)
	}
	return data, nil
}

// printReport is the "print" section of a device report. The printer sends
// partial reports, so every field is optional.
type printReport struct {
	GcodeState    *string `json:"gcode_state"`
	SubtaskName   *string `json:"subtask_name"`
	GcodeFile     *string `json:"gcode_file"`
	Percent       *int    `json:"mc_percent"`
	RemainingMins *int    `json:"mc_remaining_time"`
	LayerNum      *int    `json:"layer_num"`
	TotalLayerNum *int    `json:"total_layer_num"`

	NozzleTemp       *float64    `json:"nozzle_temper"`
	NozzleTargetTemp *float64    `json:"nozzle_target_temper"`
	BedTemp          *float64    `json:"bed_temper"`
	BedTargetTemp    *float64    `json:"bed_target_temper"`
	ChamberTemp      *float64    `json:"chamber_temper"`
	HMS              *[]hmsEntry `json:"hms"`
}

type hmsEntry struct {
	Attr uint32 `json:"attr"`
	Code uint32 `json:"code"`
}

type reportEnvelope struct {
	Print *printReport `json:"print"`
}

// MergeReport applies a raw report payload on top of the last known
// telemetry. ok is false when the payload carries no print section, in which
// case current is returned unchanged. Remaining time is reported in minutes
// and stored in seconds. An hms list replaces the previous one; an empty list
// clears it.
func MergeReport(current model.Telemetry, payload []byte) (next model.Telemetry, ok bool, err error) {
	var env reportEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return current, false, fmt.Errorf("decode report: %w", err)
	}
	if env.Print == nil {
		return current, false, nil
	}

	next = current
	p := env.Print
	if p.GcodeState != nil {
		next.GcodeState = *p.GcodeState
	}
	if p.SubtaskName != nil {
		next.SubtaskName = *p.SubtaskName
	}
	if p.GcodeFile != nil {
		next.GcodeFile = *p.GcodeFile
	}
	if p.Percent != nil {
		next.PrintPercentage = *p.Percent
	}
	if p.RemainingMins != nil {
		next.RemainingTime = *p.RemainingMins * 60
	}
	if p.LayerNum != nil {
		next.CurrentLayer = *p.LayerNum
	}
	if p.TotalLayerNum != nil {
		next.TotalLayers = *p.TotalLayerNum
	}
	mergeTemp(&next.Temperatures.Nozzle, p.NozzleTemp)
	mergeTemp(&next.Temperatures.NozzleTarget, p.NozzleTargetTemp)
	mergeTemp(&next.Temperatures.Bed, p.BedTemp)
	mergeTemp(&next.Temperatures.BedTarget, p.BedTargetTemp)
	mergeTemp(&next.Temperatures.Chamber, p.ChamberTemp)
	if p.HMS != nil {
		next.HMS = nil
		for _, e := range *p.HMS {
			next.HMS = append(next.HMS, model.HMSError{Attr: e.Attr, Code: e.Code})
		}
	}

	return next, true, nil
}

func mergeTemp(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
