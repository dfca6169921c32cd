package teleop

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMergeIsShallow(t *testing.T) {
	current := DefaultConfiguration()

	var update ConfigurationUpdate
	if err := json.Unmarshal([]byte(`{"sensitivity":{"joystick":"Low"}}`), &update); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	merged := current.Merge(update)
	if merged.Sensitivity.Joystick != SensitivityLow {
		t.Errorf("Expected joystick Low, got %q", merged.Sensitivity.Joystick)
	}
	if merged.Sensitivity.Yaw != "" {
		t.Errorf("Expected yaw to be dropped by the replacement, got %q", merged.Sensitivity.Yaw)
	}

	data, err := json.Marshal(merged.Sensitivity)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"joystick":"Low"}` {
		t.Errorf("Expected yaw to be absent from JSON, got %s", data)
	}

	if len(merged.Thrusters) != ThrusterCount {
		t.Errorf("Expected thrusters untouched, got %d entries", len(merged.Thrusters))
	}
	if current.Sensitivity.Yaw != SensitivityHigh {
		t.Errorf("Expected merge not to mutate the receiver")
	}
}

func TestMergeReplacesLists(t *testing.T) {
	current := DefaultConfiguration()
	sensors := []Sensor{{Type: "depth", Enabled: false}}

	merged := current.Merge(ConfigurationUpdate{Sensors: &sensors})
	if len(merged.Sensors) != 1 || merged.Sensors[0].Enabled {
		t.Errorf("Expected sensor list to be replaced, got %+v", merged.Sensors)
	}

	sensors[0].Type = "mutated"
	if merged.Sensors[0].Type != "depth" {
		t.Errorf("Expected merged list not to alias the update")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	a := DefaultConfiguration()
	b := a.Clone()
	b.Thrusters[0].Enabled = false
	if !a.Thrusters[0].Enabled {
		t.Errorf("Expected clone to be independent")
	}
}

func TestUpdateValidate(t *testing.T) {
	short := []Thruster{{Location: LocationTop, Enabled: true}}
	dup := DefaultConfiguration().Thrusters
	dup[1].Location = LocationTop
	bad := DefaultConfiguration().Thrusters
	bad[2].Location = "keel"
	swapped := []Gripper{{Location: GripperBack}, {Location: GripperFront}}
	valid := DefaultConfiguration().Thrusters

	cases := []struct {
		name    string
		update  ConfigurationUpdate
		wantErr string
	}{
		{"valid", ConfigurationUpdate{Thrusters: &valid}, ""},
		{"short", ConfigurationUpdate{Thrusters: &short}, "expected 5 entries"},
		{"duplicate", ConfigurationUpdate{Thrusters: &dup}, "duplicate location"},
		{"unknown", ConfigurationUpdate{Thrusters: &bad}, "unknown location"},
		{"grippers", ConfigurationUpdate{Grippers: &swapped}, "grippers[0]"},
		{"sensitivity only", ConfigurationUpdate{Sensitivity: &Sensitivity{Joystick: "Extreme"}}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.update.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigurationValid(t *testing.T) {
	if err := DefaultConfiguration().Validate(); err != nil {
		t.Errorf("Expected default configuration to be valid, got %v", err)
	}
}
