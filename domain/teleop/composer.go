package teleop

// OutboundCommand is the payload sent to the vehicle once per controller
// event or bench test.
type OutboundCommand struct {
	Esc    []float64            `json:"esc"`
	Servo  GripperCommandVector `json:"servo"`
	Lights LightCommandVector   `json:"lights"`
}

// Compose builds the command for one controller reading. It must be called
// for every reading; the configuration may change between calls.
func Compose(reading ControllerReading, config RovConfiguration) OutboundCommand {
	scalars := Scalars(config.Sensitivity)
	intents := Intents(reading, scalars)

	return OutboundCommand{
		Esc:    Allocate(config, intents),
		Servo:  MapGrippers(reading, config),
		Lights: MapLights(reading),
	}
}
