package teleop

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ThrusterCount is the number of thrusters on the vehicle. The vehicle
// firmware consumes the ESC vector index-aligned with the thruster list.
const ThrusterCount = 5

// GripperCount is the number of gripper groups.
const GripperCount = 2

// ThrusterLocation identifies a thruster in the vectored layout.
type ThrusterLocation string

const (
	LocationTop        ThrusterLocation = "top"
	LocationFrontLeft  ThrusterLocation = "frontLeft"
	LocationBackLeft   ThrusterLocation = "backLeft"
	LocationFrontRight ThrusterLocation = "frontRight"
	LocationBackRight  ThrusterLocation = "backRight"
)

func (l ThrusterLocation) valid() bool {
	switch l {
	case LocationTop, LocationFrontLeft, LocationBackLeft, LocationFrontRight, LocationBackRight:
		return true
	}
	return false
}

// GripperLocation identifies a gripper group.
type GripperLocation string

const (
	GripperFront GripperLocation = "front"
	GripperBack  GripperLocation = "back"
)

// Thruster is the per-thruster configuration.
type Thruster struct {
	Location ThrusterLocation `json:"location" yaml:"location"`
	Enabled  bool             `json:"enabled" yaml:"enabled"`
	Reversed bool             `json:"reversed" yaml:"reversed"`
}

// Gripper is the per-gripper configuration.
type Gripper struct {
	Location GripperLocation `json:"location" yaml:"location"`
	Enabled  bool            `json:"enabled" yaml:"enabled"`
}

// Sensor is informational only; the bridge does not act on it.
type Sensor struct {
	Type    string `json:"type" yaml:"type"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Sensitivity holds the operator-selected sensitivity labels. An empty label
// is omitted from JSON and resolves like any unknown label.
type Sensitivity struct {
	Joystick SensitivityLevel `json:"joystick,omitempty" yaml:"joystick,omitempty"`
	Yaw      SensitivityLevel `json:"yaw,omitempty" yaml:"yaw,omitempty"`
}

// RovConfiguration is the vehicle configuration read by the allocator.
type RovConfiguration struct {
	Thrusters   []Thruster  `json:"thrusters" yaml:"thrusters"`
	Grippers    []Gripper   `json:"grippers" yaml:"grippers"`
	Sensors     []Sensor    `json:"sensors" yaml:"sensors"`
	Sensitivity Sensitivity `json:"sensitivity" yaml:"sensitivity"`
}

// DefaultConfiguration returns the configuration the bridge starts with.
func DefaultConfiguration() RovConfiguration {
	return RovConfiguration{
		Thrusters: []Thruster{
			{Location: LocationTop, Enabled: true},
			{Location: LocationFrontLeft, Enabled: true},
			{Location: LocationBackLeft, Enabled: true},
			{Location: LocationFrontRight, Enabled: true},
			{Location: LocationBackRight, Enabled: true},
		},
		Grippers: []Gripper{
			{Location: GripperFront, Enabled: true},
			{Location: GripperBack, Enabled: true},
		},
		Sensors: []Sensor{
			{Type: "depth", Enabled: true},
			{Type: "temperature", Enabled: true},
			{Type: "acceleration", Enabled: true},
			{Type: "rotation", Enabled: true},
		},
		Sensitivity: Sensitivity{
			Joystick: SensitivityHigh,
			Yaw:      SensitivityHigh,
		},
	}
}

// Clone returns a copy that shares no slices with c.
func (c RovConfiguration) Clone() RovConfiguration {
	out := c
	out.Thrusters = append([]Thruster(nil), c.Thrusters...)
	out.Grippers = append([]Gripper(nil), c.Grippers...)
	out.Sensors = append([]Sensor(nil), c.Sensors...)
	return out
}

// GripperEnabled reports whether gripper group i (0-based) exists and is
// enabled.
func (c RovConfiguration) GripperEnabled(i int) bool {
	if i < 0 || i >= len(c.Grippers) {
		return false
	}
	return c.Grippers[i].Enabled
}

// ConfigurationUpdate is a partial configuration. A non-nil field replaces
// the whole corresponding top-level field; nested objects are never merged.
// Clients changing one sensitivity label must resend the other one.
type ConfigurationUpdate struct {
	Thrusters   *[]Thruster  `json:"thrusters,omitempty" yaml:"thrusters,omitempty"`
	Grippers    *[]Gripper   `json:"grippers,omitempty" yaml:"grippers,omitempty"`
	Sensors     *[]Sensor    `json:"sensors,omitempty" yaml:"sensors,omitempty"`
	Sensitivity *Sensitivity `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ConfigurationUpdate) Empty() bool {
	return u.Thrusters == nil && u.Grippers == nil && u.Sensors == nil && u.Sensitivity == nil
}

// Validate checks the replaced lists against the vehicle layout.
func (u ConfigurationUpdate) Validate() error {
	var result error

	if u.Thrusters != nil {
		if err := validateThrusters(*u.Thrusters); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if u.Grippers != nil {
		if err := validateGrippers(*u.Grippers); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result
}

// Merge applies u to c with top-level replacement semantics.
func (c RovConfiguration) Merge(u ConfigurationUpdate) RovConfiguration {
	out := c.Clone()
	if u.Thrusters != nil {
		out.Thrusters = append([]Thruster(nil), (*u.Thrusters)...)
	}
	if u.Grippers != nil {
		out.Grippers = append([]Gripper(nil), (*u.Grippers)...)
	}
	if u.Sensors != nil {
		out.Sensors = append([]Sensor(nil), (*u.Sensors)...)
	}
	if u.Sensitivity != nil {
		out.Sensitivity = *u.Sensitivity
	}
	return out
}

// Validate checks a full configuration, e.g. one loaded from a seed file.
func (c RovConfiguration) Validate() error {
	return ConfigurationUpdate{Thrusters: &c.Thrusters, Grippers: &c.Grippers}.Validate()
}

func validateThrusters(thrusters []Thruster) error {
	var result error
	if len(thrusters) != ThrusterCount {
		result = multierror.Append(result, fmt.Errorf("thrusters: expected %d entries, got %d", ThrusterCount, len(thrusters)))
	}

	seen := make(map[ThrusterLocation]bool, len(thrusters))
	for i, t := range thrusters {
		if !t.Location.valid() {
			result = multierror.Append(result, fmt.Errorf("thrusters[%d]: unknown location %q", i, t.Location))
			continue
		}
		if seen[t.Location] {
			result = multierror.Append(result, fmt.Errorf("thrusters[%d]: duplicate location %q", i, t.Location))
		}
		seen[t.Location] = true
	}
	return result
}

func validateGrippers(grippers []Gripper) error {
	var result error
	if len(grippers) != GripperCount {
		return multierror.Append(result, fmt.Errorf("grippers: expected %d entries, got %d", GripperCount, len(grippers)))
	}

	expected := []GripperLocation{GripperFront, GripperBack}
	for i, g := range grippers {
		if g.Location != expected[i] {
			result = multierror.Append(result, fmt.Errorf("grippers[%d]: expected location %q, got %q", i, expected[i], g.Location))
		}
	}
	return result
}
