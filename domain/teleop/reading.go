package teleop

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ButtonValue is a button reading. Consoles send either a boolean (digital
// buttons) or an analog value in 0..1 (triggers); both decode to a float.
type ButtonValue float64

// UnmarshalJSON accepts true, false, null or a number.
func (b *ButtonValue) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*b = 1
		return nil
	case "false", "null":
		*b = 0
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("button value must be a boolean or a number: %w", err)
	}
	*b = ButtonValue(v)
	return nil
}

// Held reports whether the button is pressed at all.
func (b ButtonValue) Held() bool {
	return b != 0
}

// Stick is a 2-axis joystick reading as [x, y], each in [-1, 1].
type Stick [2]float64

func (s Stick) X() float64 { return s[0] }
func (s Stick) Y() float64 { return s[1] }

// Axes holds the left and right sticks.
type Axes struct {
	L Stick `json:"L"`
	R Stick `json:"R"`
}

// Buttons holds the named buttons of the operator's gamepad.
type Buttons struct {
	Y     ButtonValue `json:"Y"`
	A     ButtonValue `json:"A"`
	B     ButtonValue `json:"B"`
	X     ButtonValue `json:"X"`
	Up    ButtonValue `json:"up"`
	Down  ButtonValue `json:"down"`
	Left  ButtonValue `json:"left"`
	Right ButtonValue `json:"right"`
	R1    ButtonValue `json:"R1"`
	R2    ButtonValue `json:"R2"`
	L1    ButtonValue `json:"L1"`
	L2    ButtonValue `json:"L2"`
}

// ControllerReading is one input-poll snapshot from an operator console.
// Missing axes and buttons decode as zero.
type ControllerReading struct {
	Axes    Axes    `json:"axes"`
	Buttons Buttons `json:"buttons"`
}
