package teleop

import (
	"math"
	"testing"
)

func TestAllocateStaysInRange(t *testing.T) {
	values := []float64{-3, -1.5, -1, -0.4, 0, 0.3, 1, 2.5}
	locations := []ThrusterLocation{LocationTop, LocationFrontLeft, LocationBackLeft, LocationFrontRight, LocationBackRight}

	for _, surge := range values {
		for _, yaw := range values {
			for _, heave := range values {
				intents := MovementIntents{Surge: surge, Yaw: yaw, Heave: heave}
				for _, loc := range locations {
					for _, reversed := range []bool{false, true} {
						cfg := RovConfiguration{Thrusters: []Thruster{{Location: loc, Enabled: true, Reversed: reversed}}}
						out := Allocate(cfg, intents)[0]
						if out < -1 || out > 1 {
							t.Fatalf("Expected %s output within [-1,1] for %+v, got %v", loc, intents, out)
						}

						cfg.Thrusters[0].Enabled = false
						out = Allocate(cfg, intents)[0]
						if out != 0 || math.Signbit(out) {
							t.Fatalf("Expected disabled %s to output exactly 0 for %+v, got %v", loc, intents, out)
						}
					}
				}
			}
		}
	}
}

func TestAllocateNormalizesNegativeZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	cfg := DefaultConfiguration()

	out := Allocate(cfg, MovementIntents{Heave: negZero})
	if out[0] != 0 || math.Signbit(out[0]) {
		t.Errorf("Expected top thruster to output +0, got %v (signbit=%v)", out[0], math.Signbit(out[0]))
	}

	cfg.Thrusters[0].Reversed = true
	out = Allocate(cfg, MovementIntents{Heave: 0})
	if math.Signbit(out[0]) {
		t.Errorf("Expected reversed zero to be normalized to +0")
	}
}

func TestAllocateUnknownLocation(t *testing.T) {
	cfg := RovConfiguration{Thrusters: []Thruster{{Location: "keel", Enabled: true}}}
	out := Allocate(cfg, MovementIntents{Surge: 1, Yaw: 1, Heave: 1})
	if out[0] != 0 {
		t.Errorf("Expected unknown location to output 0, got %v", out[0])
	}
}

func TestIntents(t *testing.T) {
	reading := ControllerReading{
		Axes:    Axes{L: Stick{0.2, 0.8}, R: Stick{0, -0.5}},
		Buttons: Buttons{L2: 1, R2: 0.5},
	}
	in := Intents(reading, Scalars(Sensitivity{Joystick: SensitivityNormal, Yaw: SensitivityNormal}))

	if math.Abs(in.Surge-0.6) > 1e-9 {
		t.Errorf("Expected surge 0.6, got %v", in.Surge)
	}
	if math.Abs(in.Heave-0.375) > 1e-9 {
		t.Errorf("Expected heave 0.375, got %v", in.Heave)
	}
	if math.Abs(in.Yaw-0.35) > 1e-9 {
		t.Errorf("Expected yaw 0.35, got %v", in.Yaw)
	}
	if in.Sway != 0 {
		t.Errorf("Expected sway 0, got %v", in.Sway)
	}
}

func TestScalars(t *testing.T) {
	cases := []struct {
		name     string
		in       Sensitivity
		joystick float64
		yaw      float64
	}{
		{"high", Sensitivity{Joystick: SensitivityHigh, Yaw: SensitivityHigh}, 1.0, 1.0},
		{"normal", Sensitivity{Joystick: SensitivityNormal, Yaw: SensitivityNormal}, 0.75, 0.7},
		{"low", Sensitivity{Joystick: SensitivityLow, Yaw: SensitivityLow}, 0.5, 0.4},
		{"unknown", Sensitivity{Joystick: "Extreme", Yaw: "Extreme"}, 1.0, 1.0},
		{"empty", Sensitivity{}, 1.0, 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Scalars(tc.in)
			if s.Joystick != tc.joystick {
				t.Errorf("Expected joystick scalar %v, got %v", tc.joystick, s.Joystick)
			}
			if s.Yaw != tc.yaw {
				t.Errorf("Expected yaw scalar %v, got %v", tc.yaw, s.Yaw)
			}
		})
	}
}
