package teleop

import "math"

// MovementIntents are the requested vehicle-frame motions. They are not
// clamped; clamping happens per thruster after allocation.
type MovementIntents struct {
	Surge float64
	Sway  float64
	Yaw   float64
	Heave float64
}

// Intents derives movement intents from a controller reading. Sway is
// reserved for a strafing input and is always 0.
func Intents(reading ControllerReading, scalars SensitivityScalars) MovementIntents {
	return MovementIntents{
		Surge: reading.Axes.L.Y() * scalars.Joystick,
		Sway:  0,
		Yaw:   float64(reading.Buttons.L2-reading.Buttons.R2) * scalars.Yaw,
		Heave: -reading.Axes.R.Y() * scalars.Joystick,
	}
}

// rawPower is the thrust-vectoring geometry: four angled thrusters in an X
// plus one vertical thruster.
func rawPower(location ThrusterLocation, in MovementIntents) float64 {
	switch location {
	case LocationTop:
		return in.Heave
	case LocationFrontLeft:
		return in.Sway + in.Yaw + in.Surge
	case LocationFrontRight:
		return -in.Surge + in.Sway - in.Yaw
	case LocationBackLeft:
		return -in.Surge - in.Sway + in.Yaw
	case LocationBackRight:
		return in.Surge + in.Sway + in.Yaw
	default:
		return 0
	}
}

// applyThruster applies enable, reversal, signed-zero normalization and
// clamping, in that order. A disabled thruster is always exactly 0.
func applyThruster(power float64, t Thruster) float64 {
	if !t.Enabled {
		return 0
	}
	if t.Reversed {
		power = -power
	}
	if power == 0 {
		// -0 compares equal to 0; reassigning drops the sign bit.
		power = 0
	}
	return clamp(power)
}

func clamp(power float64) float64 {
	return math.Max(-1, math.Min(1, power))
}

// Allocate maps intents onto the configured thrusters. The result is
// index-aligned with config.Thrusters.
func Allocate(config RovConfiguration, intents MovementIntents) []float64 {
	esc := make([]float64, len(config.Thrusters))
	for i, t := range config.Thrusters {
		esc[i] = applyThruster(rawPower(t.Location, intents), t)
	}
	return esc
}
