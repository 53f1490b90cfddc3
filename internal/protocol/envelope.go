// Package protocol defines the typed wire messages exchanged with Dezibot
// devices and the speculative decode machinery used to match inbound text
// against them.
//
// Every outbound request carries a three-field envelope: an action
// qualifier (read or write), a target subsystem name and a command name.
// Every inbound reply carries a status qualifier plus the same
// target/command pair, which is the only correlation key the protocol has.
package protocol

import (
	"encoding/json"

	"github.com/samber/oops"
)

// Wire targets and commands.
const (
	TargetIdentification = "identification"
	TargetColorDetection = "colorDetection"
	TargetLightDetection = "lightDetection"

	CommandName       = "name"
	CommandSetMode    = "setMode"
	CommandColor      = "color"
	CommandBrightness = "brightness"
)

// Action qualifies an outbound request as a read or a write. The zero
// value is invalid, so a request missing the action field is structurally
// rejected by the decoders.
type Action int

const (
	ActionRead Action = iota + 1
	ActionWrite
)

var actionNames = map[Action]string{
	ActionRead:  "read",
	ActionWrite: "write",
}

var actionFromName = map[string]Action{
	"read":  ActionRead,
	"write": ActionWrite,
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON rejects unknown wire strings so a message carrying a bogus
// action is structurally invalid for schema probing.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := actionFromName[s]
	if !ok {
		return oops.Errorf("unknown action %q", s)
	}
	*a = v
	return nil
}

// Status qualifies an inbound reply. The zero value is invalid.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusFailure
)

var statusNames = map[Status]string{
	StatusSuccess: "success",
	StatusFailure: "failure",
}

var statusFromName = map[string]Status{
	"success": StatusSuccess,
	"failure": StatusFailure,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, ok := statusFromName[raw]
	if !ok {
		return oops.Errorf("unknown status %q", raw)
	}
	*s = v
	return nil
}

// Mode selects how a sensor subsystem acquires values: on demand (manual)
// or continuously (cyclic).
type Mode int

const (
	ModeManual Mode = iota + 1
	ModeCyclic
)

var modeNames = map[Mode]string{
	ModeManual: "manual",
	ModeCyclic: "cyclic",
}

var modeFromName = map[string]Mode{
	"manual": ModeManual,
	"cyclic": ModeCyclic,
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := modeFromName[s]
	if !ok {
		return oops.Errorf("unknown mode %q", s)
	}
	*m = v
	return nil
}

// Sensor names one of the device's phototransistors.
type Sensor int

const (
	SensorIRFront Sensor = iota + 1
	SensorIRLeft
	SensorIRRight
	SensorIRBack
	SensorDaylightFront
	SensorDaylightBottom
)

var sensorNames = map[Sensor]string{
	SensorIRFront:        "irFront",
	SensorIRLeft:         "irLeft",
	SensorIRRight:        "irRight",
	SensorIRBack:         "irBack",
	SensorDaylightFront:  "daylightFront",
	SensorDaylightBottom: "daylightBottom",
}

var sensorFromName = map[string]Sensor{
	"irFront":        SensorIRFront,
	"irLeft":         SensorIRLeft,
	"irRight":        SensorIRRight,
	"irBack":         SensorIRBack,
	"daylightFront":  SensorDaylightFront,
	"daylightBottom": SensorDaylightBottom,
}

func (s Sensor) String() string {
	if n, ok := sensorNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Sensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Sensor) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, ok := sensorFromName[raw]
	if !ok {
		return oops.Errorf("unknown sensor %q", raw)
	}
	*s = v
	return nil
}

// Request is the envelope every outbound message carries.
type Request struct {
	Action  Action `json:"action"`
	Target  string `json:"target"`
	Command string `json:"command"`
}

// Reply is the envelope every inbound message carries.
type Reply struct {
	Status  Status `json:"status"`
	Target  string `json:"target"`
	Command string `json:"command"`
}

// OK reports whether the reply carries success status.
func (r Reply) OK() bool {
	return r.Status == StatusSuccess
}

// matches reports whether the reply is structurally valid for the given
// target/command pair: a known status plus the matching correlation pair.
func (r Reply) matches(target, command string) bool {
	return r.Status != 0 && r.Target == target && r.Command == command
}
