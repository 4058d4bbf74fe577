package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservationPointID(t *testing.T) {
	t.Run("Station", func(t *testing.T) {
		o := Observation{Key: "saving.co2_reduced", StationID: 101}
		assert.Equal(t, "101", o.ChannelID())
		assert.Equal(t, "101.saving.co2_reduced", o.PointID())
	})

	t.Run("Device", func(t *testing.T) {
		o := Observation{Key: "inverter.pv1_voltage", StationID: 101, Device: "SN_1"}
		assert.Equal(t, "101.SN_1", o.ChannelID())
		assert.Equal(t, "101.SN_1.inverter.pv1_voltage", o.PointID())
	})

	t.Run("Meta", func(t *testing.T) {
		o := Observation{Name: "Battery Voltage", Unit: "V", Role: RoleVoltage, Type: ValueTypeNumber}
		meta := o.PointMeta()
		assert.Equal(t, ObjectKindState, meta.Kind)
		assert.True(t, meta.Read)
		assert.False(t, meta.Write)
		assert.Equal(t, "V", meta.Unit)
	})
}

func TestParseExclusionList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"Empty", "", nil},
		{"Single", "battery_voltage", []string{"battery_voltage"}},
		{"Spaces", " a , b ,c ", []string{"a", "b", "c"}},
		{"EmptyEntries", "a,,b,", []string{"a", "b"}},
		{"Duplicates", "a,b,a", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseExclusionList(tt.in))
		})
	}

	assert.Equal(t, "a,b", FormatExclusionList(ParseExclusionList("a, b")))
}
