package protocol

// Telemetry is implemented by replies that feed the per-device latest-value
// table. The sensor key identifies which table slot the reply overwrites.
type Telemetry interface {
	SensorKey() string
}

// IdentifyRequest asks a device for its display name. The hub issues one
// on every new connection.
type IdentifyRequest struct {
	Request
}

func NewIdentifyRequest() IdentifyRequest {
	return IdentifyRequest{Request{
		Action:  ActionRead,
		Target:  TargetIdentification,
		Command: CommandName,
	}}
}

// IdentifyReply carries the device's display name.
type IdentifyReply struct {
	Reply
	Name string `json:"name,omitempty"`
}

func NewIdentifyReply(name string) IdentifyReply {
	return IdentifyReply{
		Reply: Reply{
			Status:  StatusSuccess,
			Target:  TargetIdentification,
			Command: CommandName,
		},
		Name: name,
	}
}

// ModeRequest switches a sensor subsystem between manual and cyclic
// acquisition. Target is one of the sensor targets.
type ModeRequest struct {
	Request
	Mode Mode `json:"mode"`
}

func NewModeRequest(target string, mode Mode) ModeRequest {
	return ModeRequest{
		Request: Request{
			Action:  ActionWrite,
			Target:  target,
			Command: CommandSetMode,
		},
		Mode: mode,
	}
}

// ModeAck acknowledges a completed mode switch on the named sensor target.
type ModeAck struct {
	Reply
}

func NewModeAck(target string) ModeAck {
	return ModeAck{Reply{
		Status:  StatusSuccess,
		Target:  target,
		Command: CommandSetMode,
	}}
}

// ColorRequest reads the color sensor.
type ColorRequest struct {
	Request
}

func NewColorRequest() ColorRequest {
	return ColorRequest{Request{
		Action:  ActionRead,
		Target:  TargetColorDetection,
		Command: CommandColor,
	}}
}

// ColorReply carries one color sample.
type ColorReply struct {
	Reply
	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
	White int `json:"white"`
}

func NewColorReply(red, green, blue, white int) ColorReply {
	return ColorReply{
		Reply: Reply{
			Status:  StatusSuccess,
			Target:  TargetColorDetection,
			Command: CommandColor,
		},
		Red:   red,
		Green: green,
		Blue:  blue,
		White: white,
	}
}

func (ColorReply) SensorKey() string {
	return TargetColorDetection + "/" + CommandColor
}

// BrightnessRequest reads one phototransistor.
type BrightnessRequest struct {
	Request
	Sensor Sensor `json:"sensor"`
}

func NewBrightnessRequest(sensor Sensor) BrightnessRequest {
	return BrightnessRequest{
		Request: Request{
			Action:  ActionRead,
			Target:  TargetLightDetection,
			Command: CommandBrightness,
		},
		Sensor: sensor,
	}
}

// BrightnessReply carries one brightness sample for the named sensor.
type BrightnessReply struct {
	Reply
	Sensor Sensor `json:"sensor"`
	Value  int    `json:"value"`
}

func NewBrightnessReply(sensor Sensor, value int) BrightnessReply {
	return BrightnessReply{
		Reply: Reply{
			Status:  StatusSuccess,
			Target:  TargetLightDetection,
			Command: CommandBrightness,
		},
		Sensor: sensor,
		Value:  value,
	}
}

func (r BrightnessReply) SensorKey() string {
	return TargetLightDetection + "/" + CommandBrightness + "/" + r.Sensor.String()
}

// NewFailureReply builds the generic rejection a device sends for a request
// it cannot serve, echoing the correlation pair of the request.
func NewFailureReply(target, command string) Reply {
	return Reply{
		Status:  StatusFailure,
		Target:  target,
		Command: command,
	}
}
