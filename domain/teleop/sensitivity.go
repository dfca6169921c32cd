package teleop

// SensitivityLevel is an operator-facing sensitivity label.
type SensitivityLevel string

const (
	SensitivityHigh   SensitivityLevel = "High"
	SensitivityNormal SensitivityLevel = "Normal"
	SensitivityLow    SensitivityLevel = "Low"
)

var joystickScalars = map[SensitivityLevel]float64{
	SensitivityHigh:   1.0,
	SensitivityNormal: 0.75,
	SensitivityLow:    0.5,
}

var yawScalars = map[SensitivityLevel]float64{
	SensitivityHigh:   1.0,
	SensitivityNormal: 0.7,
	SensitivityLow:    0.4,
}

// SensitivityScalars are the multipliers applied to stick and trigger input.
type SensitivityScalars struct {
	Joystick float64
	Yaw      float64
}

// Scalars resolves the labels in s. Unknown or empty labels use High.
func Scalars(s Sensitivity) SensitivityScalars {
	joystick, ok := joystickScalars[s.Joystick]
	if !ok {
		joystick = joystickScalars[SensitivityHigh]
	}
	yaw, ok := yawScalars[s.Yaw]
	if !ok {
		yaw = yawScalars[SensitivityHigh]
	}
	return SensitivityScalars{Joystick: joystick, Yaw: yaw}
}
