package telemetry

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/raterudder/renacsync/pkg/types"
	"github.com/tidwall/gjson"
)

// dropKey marks a field that must never be persisted.
const dropKey = "none"

// ErrInvalidPayload is returned when a payload is not valid JSON.
var ErrInvalidPayload = errors.New("invalid telemetry payload")

var invalidKeyChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SanitizeKey collapses every run of characters outside [A-Za-z0-9] into a
// single underscore.
func SanitizeKey(s string) string {
	return invalidKeyChars.ReplaceAllString(s, "_")
}

// Payload is one telemetry response shape. The caller picks the variant based
// on the endpoint that produced the data.
type Payload interface {
	fields(doc gjson.Result) []Field
	raw() json.RawMessage
}

// Flat is a payload whose top-level members are the measurements. Prefix is
// optional and becomes the subsection of every key.
type Flat struct {
	Data   json.RawMessage
	Prefix string
}

// Grouped is a payload mapping section names to a single-element array of
// measurement objects. Only the first element of each section is read.
type Grouped struct {
	Data json.RawMessage
}

// Field is one flattened (key, value) pair.
type Field struct {
	// Key is the sanitized, prefixed observation key.
	Key string
	// RawKey is the member name as sent by the cloud.
	RawKey string
	// Raw is the JSON text of the value.
	Raw json.RawMessage
}

// Flatten converts a payload into fields in document order.
func Flatten(p Payload) ([]Field, error) {
	data := p.raw()
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidPayload
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, nil
	}
	return p.fields(doc), nil
}

func (f Flat) raw() json.RawMessage { return f.Data }

func (f Flat) fields(doc gjson.Result) []Field {
	return objectFields(doc, f.Prefix)
}

func (g Grouped) raw() json.RawMessage { return g.Data }

func (g Grouped) fields(doc gjson.Result) []Field {
	var out []Field
	doc.ForEach(func(section, value gjson.Result) bool {
		name := section.String()
		if name == dropKey {
			return true
		}
		first := value
		if value.IsArray() {
			elems := value.Array()
			if len(elems) == 0 {
				return true
			}
			first = elems[0]
		}
		if first.IsObject() {
			out = append(out, objectFields(first, name)...)
			return true
		}
		out = append(out, Field{
			Key:    SanitizeKey(name),
			RawKey: name,
			Raw:    json.RawMessage(value.Raw),
		})
		return true
	})
	return out
}

func objectFields(obj gjson.Result, prefix string) []Field {
	var out []Field
	obj.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == dropKey {
			return true
		}
		k := SanitizeKey(name)
		if prefix != "" {
			k = SanitizeKey(prefix) + "." + k
		}
		out = append(out, Field{
			Key:    k,
			RawKey: name,
			Raw:    json.RawMessage(value.Raw),
		})
		return true
	})
	return out
}

// Infer converts the JSON text of a value into a typed value. Numbers and
// numeric strings become float64; everything else is stored as a string.
func Infer(raw json.RawMessage) (interface{}, types.ValueType) {
	v := gjson.ParseBytes(raw)
	switch v.Type {
	case gjson.Number:
		return v.Num, types.ValueTypeNumber
	case gjson.String:
		if f, ok := parseNumber(v.Str); ok {
			return f, types.ValueTypeNumber
		}
		return v.Str, types.ValueTypeString
	case gjson.True, gjson.False:
		return strconv.FormatBool(v.Bool()), types.ValueTypeString
	default:
		if v.Raw == "" {
			return "null", types.ValueTypeString
		}
		return v.Raw, types.ValueTypeString
	}
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Observations flattens a payload and classifies every field for the given
// station and (optional) device.
func Observations(p Payload, stationID int, device string) ([]types.Observation, error) {
	fields, err := Flatten(p)
	if err != nil {
		return nil, err
	}
	obs := make([]types.Observation, 0, len(fields))
	for _, f := range fields {
		c := Classify(f.RawKey)
		v, typ := Infer(f.Raw)
		obs = append(obs, types.Observation{
			Key:       f.Key,
			Name:      c.Name,
			Value:     v,
			Type:      typ,
			Unit:      c.Unit,
			Role:      c.Role,
			StationID: stationID,
			Device:    device,
		})
	}
	return obs, nil
}
