// Package telemetry turns raw Renac cloud payloads into observations.
package telemetry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raterudder/renacsync/pkg/types"
)

// Classification is the inferred presentation of a raw key.
type Classification struct {
	Name string
	Unit string
	Role types.Role
}

type unitRule struct {
	pattern string
	unit    string
	role    types.Role
}

// unitRules is checked top to bottom; the first match wins.
var unitRules = []unitRule{
	{"vol", "V", types.RoleVoltage},
	{"cur", "A", types.RoleCurrent},
	{"fre", "Hz", types.RoleGeneric},
	{"power", "W", types.RolePower},
	{"energy", "kWh", types.RoleEnergy},
	{"capac", "%", types.RoleGeneric},
	{"temp", "°C", types.RoleTemperature},
	{"soc", "%", types.RoleFillPercentage},
	{"soh", "%", types.RoleFillPercentage},
	{"co2", "kg", types.RoleFillPercentage},
	{"so2", "kg", types.RoleFillPercentage},
	{"charge", "kWh", types.RoleEnergy},
	{"meter", "kWh", types.RoleEnergy},
	{"profit", "€", types.RoleGeneric},
}

// Classify derives a display name, unit and role from a raw key. It never
// fails; unknown keys are unitless and generic.
func Classify(rawKey string) Classification {
	c := Classification{
		Name: DisplayName(rawKey),
		Unit: types.UnitNone,
		Role: types.RoleGeneric,
	}
	lower := strings.ToLower(rawKey)
	for _, r := range unitRules {
		if strings.Contains(lower, r.pattern) {
			c.Unit = r.unit
			c.Role = r.role
			break
		}
	}
	return c
}

// DisplayName turns "battery_voltage" into "Battery Voltage".
func DisplayName(rawKey string) string {
	words := strings.Fields(strings.ReplaceAll(rawKey, "_", " "))
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(word string) string {
	first, size := utf8.DecodeRuneInString(word)
	if first == utf8.RuneError && size <= 1 {
		return strings.ToLower(word)
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(word[size:])
}
