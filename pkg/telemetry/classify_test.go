package telemetry

import (
	"testing"

	"github.com/raterudder/renacsync/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		key  string
		name string
		unit string
		role types.Role
	}{
		{"battery_voltage", "Battery Voltage", "V", types.RoleVoltage},
		{"BATTERY_VOLTAGE", "Battery Voltage", "V", types.RoleVoltage},
		{"pv1_current", "Pv1 Current", "A", types.RoleCurrent},
		{"grid_frequency", "Grid Frequency", "Hz", types.RoleGeneric},
		{"pv_power", "Pv Power", "W", types.RolePower},
		{"today_energy", "Today Energy", "kWh", types.RoleEnergy},
		{"battery_capacity", "Battery Capacity", "%", types.RoleGeneric},
		{"inner_temp", "Inner Temp", "°C", types.RoleTemperature},
		{"battery_soc", "Battery Soc", "%", types.RoleFillPercentage},
		{"battery_soh", "Battery Soh", "%", types.RoleFillPercentage},
		{"co2_reduced", "Co2 Reduced", "kg", types.RoleFillPercentage},
		{"so2_reduced", "So2 Reduced", "kg", types.RoleFillPercentage},
		{"charge_total", "Charge Total", "kWh", types.RoleEnergy},
		{"meter_in", "Meter In", "kWh", types.RoleEnergy},
		{"total_profit", "Total Profit", "€", types.RoleGeneric},
		{"station_name", "Station Name", types.UnitNone, types.RoleGeneric},
		// first match wins: "energy" is checked before "charge"
		{"charge_energy", "Charge Energy", "kWh", types.RoleEnergy},
		// "cur" is checked before "power"
		{"current_power", "Current Power", "A", types.RoleCurrent},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c := Classify(tt.key)
			assert.Equal(t, tt.name, c.Name)
			assert.Equal(t, tt.unit, c.Unit)
			assert.Equal(t, tt.role, c.Role)
		})
	}
}

func TestClassifyTotal(t *testing.T) {
	for _, key := range []string{"", "_", "__", "\xff\xfe", "ä_ö", " ", "none", "a.b-c"} {
		assert.NotPanics(t, func() {
			c1 := Classify(key)
			c2 := Classify(key)
			assert.Equal(t, c1, c2, "classify must be deterministic for %q", key)
			assert.NotEmpty(t, c1.Unit)
			assert.NotEmpty(t, c1.Role)
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Battery Voltage", DisplayName("battery_voltage"))
	assert.Equal(t, "Pv1 Power", DisplayName("PV1_POWER"))
	assert.Equal(t, "A B", DisplayName("a__b"))
	assert.Equal(t, "Ähm Öl", DisplayName("ähm_öL"))
	assert.Equal(t, "", DisplayName(""))
}
