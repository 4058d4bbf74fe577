package types

import (
	"strconv"
	"strings"
)

// Role is the semantic meaning of a measurement.
type Role string

const (
	RoleVoltage        Role = "voltage"
	RoleCurrent        Role = "current"
	RoleFrequency      Role = "frequency"
	RolePower          Role = "power"
	RoleEnergy         Role = "energy"
	RoleTemperature    Role = "temperature"
	RoleFillPercentage Role = "fill-percentage"
	RoleMonetary       Role = "monetary"
	RoleGeneric        Role = "generic"

	// RoleInfo is used for channel objects.
	RoleInfo Role = "info"
)

// ValueType is the declared type of a persisted point.
type ValueType string

const (
	ValueTypeNumber ValueType = "number"
	ValueTypeString ValueType = "string"
)

// UnitNone is stored for measurements without a recognizable unit.
const UnitNone = " "

// Observation is one named, typed, unit-tagged measurement derived from a
// telemetry payload for a single cycle.
type Observation struct {
	// Key is the sanitized observation key, optionally prefixed with a
	// subsection (e.g. "saving.co2_reduced").
	Key  string
	Name string
	// Value is either a float64 or a string, matching Type.
	Value     interface{}
	Type      ValueType
	Unit      string
	Role      Role
	StationID int
	// Device is the sanitized device serial for device-scoped observations.
	Device string
}

// StationScope returns the identifier of the station channel.
func (o Observation) StationScope() string {
	return strconv.Itoa(o.StationID)
}

// ChannelID returns the identifier of the channel the point lives under.
func (o Observation) ChannelID() string {
	if o.Device == "" {
		return o.StationScope()
	}
	return o.StationScope() + "." + o.Device
}

// PointID returns the fully-qualified identifier of the persisted point.
func (o Observation) PointID() string {
	return o.ChannelID() + "." + o.Key
}

// PointMeta returns the metadata used when creating the backing object.
func (o Observation) PointMeta() PointMeta {
	return PointMeta{
		Kind:  ObjectKindState,
		Name:  o.Name,
		Role:  o.Role,
		Type:  o.Type,
		Unit:  o.Unit,
		Read:  true,
		Write: false,
	}
}

// ParseExclusionList splits a comma-separated list of keys, trimming spaces and
// dropping empty and duplicate entries while keeping the first occurrence.
func ParseExclusionList(s string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// FormatExclusionList is the inverse of ParseExclusionList.
func FormatExclusionList(keys []string) string {
	return strings.Join(keys, ",")
}
