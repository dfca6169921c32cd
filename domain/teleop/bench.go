package teleop

import (
	"errors"
	"fmt"
)

// NeutralESC is the zero-throttle value of the ESCs in bench-test mode.
// Normal teleoperation uses 0 as neutral; the two must not be mixed.
const NeutralESC = 0.5

var (
	ErrThrusterIndex = errors.New("thruster index out of range")
	ErrThrusterValue = errors.New("thruster test value out of range")
	ErrGripperIndex  = errors.New("gripper index out of range")
	ErrGripperValue  = errors.New("gripper test value out of range")
)

// ThrusterTest drives one thruster at value percent (-100..100).
type ThrusterTest struct {
	ThrusterIndex int     `json:"thrusterIndex"`
	Value         float64 `json:"value"`
}

// GripperTest drives both servos of one gripper group (1 or 2) at value
// (-1..1).
type GripperTest struct {
	GripperIndex int     `json:"gripperIndex"`
	Value        float64 `json:"value"`
}

func neutralEsc() []float64 {
	esc := make([]float64, ThrusterCount)
	for i := range esc {
		esc[i] = NeutralESC
	}
	return esc
}

// ThrusterTestCommand builds a command that isolates one thruster. Every
// other thruster sits at NeutralESC; grippers and lights are off.
func ThrusterTestCommand(t ThrusterTest) (OutboundCommand, error) {
	if t.ThrusterIndex < 0 || t.ThrusterIndex >= ThrusterCount {
		return OutboundCommand{}, fmt.Errorf("%w: %d (valid 0..%d)", ErrThrusterIndex, t.ThrusterIndex, ThrusterCount-1)
	}
	if t.Value < -100 || t.Value > 100 {
		return OutboundCommand{}, fmt.Errorf("%w: %v (valid -100..100)", ErrThrusterValue, t.Value)
	}

	esc := neutralEsc()
	power := t.Value / 100.0
	if power == 0 {
		power = 0
	}
	esc[t.ThrusterIndex] = power

	return OutboundCommand{Esc: esc}, nil
}

// GripperTestCommand builds a command that isolates one gripper group.
func GripperTestCommand(g GripperTest) (OutboundCommand, error) {
	if g.Value < -1 || g.Value > 1 {
		return OutboundCommand{}, fmt.Errorf("%w: %v (valid -1..1)", ErrGripperValue, g.Value)
	}

	value := g.Value
	if value == 0 {
		value = 0
	}

	var servo GripperCommandVector
	switch g.GripperIndex {
	case 1:
		servo[0], servo[1] = value, value
	case 2:
		servo[2], servo[3] = value, value
	default:
		return OutboundCommand{}, fmt.Errorf("%w: %d (valid 1..%d)", ErrGripperIndex, g.GripperIndex, GripperCount)
	}

	return OutboundCommand{Esc: neutralEsc(), Servo: servo}, nil
}
