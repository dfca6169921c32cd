package teleop

// GripperCommandVector drives the servos: slots 0-1 are the front gripper,
// slots 2-3 the back gripper. Values are -1, 0 or 1.
type GripperCommandVector [4]float64

// LightCommandVector drives the light circuit. Both elements are always
// equal; the vehicle has a single light toggle.
type LightCommandVector [2]float64

// MapGrippers maps face buttons to the front gripper and the d-pad to the
// back gripper. Within a slot the later assignment wins: A overrides Y,
// X overrides B, down overrides up, right overrides left.
func MapGrippers(reading ControllerReading, config RovConfiguration) GripperCommandVector {
	var servo GripperCommandVector
	b := reading.Buttons

	if config.GripperEnabled(0) {
		if b.Y.Held() {
			servo[0] = 1
		}
		if b.A.Held() {
			servo[0] = -1
		}
		if b.B.Held() {
			servo[1] = 1
		}
		if b.X.Held() {
			servo[1] = -1
		}
	}

	if config.GripperEnabled(1) {
		if b.Up.Held() {
			servo[2] = 1
		}
		if b.Down.Held() {
			servo[2] = -1
		}
		if b.Left.Held() {
			servo[3] = 1
		}
		if b.Right.Held() {
			servo[3] = -1
		}
	}

	return servo
}

// MapLights turns the lights on while R1 is held.
func MapLights(reading ControllerReading) LightCommandVector {
	if reading.Buttons.R1.Held() {
		return LightCommandVector{1, 1}
	}
	return LightCommandVector{0, 0}
}
