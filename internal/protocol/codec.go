package protocol

import (
	"encoding/json"

	"github.com/samber/oops"
)

// Encode renders a typed message as its wire text.
func Encode(msg any) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", oops.Wrapf(err, "encode message")
	}
	return string(data), nil
}

// The Decode functions probe inbound text against one schema each. The bool
// result is false on any structural mismatch: unparseable JSON, an unknown
// enum string, a missing required field, or a foreign target/command pair.
// A mismatch is a normal, expected outcome of speculative probing and never
// an error. Optional fields may be absent and the text still decodes.

// DecodeIdentifyReply probes text against the identification reply schema.
func DecodeIdentifyReply(text string) (IdentifyReply, bool) {
	var r IdentifyReply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return IdentifyReply{}, false
	}
	if !r.matches(TargetIdentification, CommandName) {
		return IdentifyReply{}, false
	}
	return r, true
}

// DecodeModeAck probes text against the mode-switch acknowledgement schema.
// Both sensor targets acknowledge setMode with the same shape.
func DecodeModeAck(text string) (ModeAck, bool) {
	var r ModeAck
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return ModeAck{}, false
	}
	if !r.matches(TargetColorDetection, CommandSetMode) && !r.matches(TargetLightDetection, CommandSetMode) {
		return ModeAck{}, false
	}
	return r, true
}

// DecodeColorReply probes text against the color telemetry schema.
func DecodeColorReply(text string) (ColorReply, bool) {
	var r ColorReply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return ColorReply{}, false
	}
	if !r.matches(TargetColorDetection, CommandColor) {
		return ColorReply{}, false
	}
	return r, true
}

// DecodeBrightnessReply probes text against the brightness telemetry
// schema. The sensor field is required; without it the value cannot be
// attributed to a table slot.
func DecodeBrightnessReply(text string) (BrightnessReply, bool) {
	var r BrightnessReply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return BrightnessReply{}, false
	}
	if !r.matches(TargetLightDetection, CommandBrightness) || r.Sensor == 0 {
		return BrightnessReply{}, false
	}
	return r, true
}

// Request-side decoders, used by the device end of the protocol (the
// simulated fleet) and by round-trip tests.

// DecodeRequest probes text against the bare request envelope. It matches
// any request with a known action and a non-empty correlation pair; devices
// use it to build failure replies for commands they do not implement.
func DecodeRequest(text string) (Request, bool) {
	var r Request
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return Request{}, false
	}
	if r.Action == 0 || r.Target == "" || r.Command == "" {
		return Request{}, false
	}
	return r, true
}

// DecodeIdentifyRequest probes text against the identification request schema.
func DecodeIdentifyRequest(text string) (IdentifyRequest, bool) {
	var r IdentifyRequest
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return IdentifyRequest{}, false
	}
	if r.Action != ActionRead || r.Target != TargetIdentification || r.Command != CommandName {
		return IdentifyRequest{}, false
	}
	return r, true
}

// DecodeModeRequest probes text against the mode-switch request schema.
func DecodeModeRequest(text string) (ModeRequest, bool) {
	var r ModeRequest
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return ModeRequest{}, false
	}
	if r.Action != ActionWrite || r.Command != CommandSetMode || r.Mode == 0 {
		return ModeRequest{}, false
	}
	if r.Target != TargetColorDetection && r.Target != TargetLightDetection {
		return ModeRequest{}, false
	}
	return r, true
}

// DecodeColorRequest probes text against the color read request schema.
func DecodeColorRequest(text string) (ColorRequest, bool) {
	var r ColorRequest
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return ColorRequest{}, false
	}
	if r.Action != ActionRead || r.Target != TargetColorDetection || r.Command != CommandColor {
		return ColorRequest{}, false
	}
	return r, true
}

// DecodeBrightnessRequest probes text against the brightness read request
// schema.
func DecodeBrightnessRequest(text string) (BrightnessRequest, bool) {
	var r BrightnessRequest
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return BrightnessRequest{}, false
	}
	if r.Action != ActionRead || r.Target != TargetLightDetection || r.Command != CommandBrightness || r.Sensor == 0 {
		return BrightnessRequest{}, false
	}
	return r, true
}
