package types

import "time"

// ObjectKind distinguishes channel objects (folders) from state objects.
type ObjectKind string

const (
	ObjectKindChannel ObjectKind = "channel"
	ObjectKindState   ObjectKind = "state"
)

// PointMeta is the metadata of a persisted object.
type PointMeta struct {
	Kind  ObjectKind `json:"kind"`
	Name  string     `json:"name"`
	Role  Role       `json:"role,omitempty"`
	Type  ValueType  `json:"type,omitempty"`
	Unit  string     `json:"unit,omitempty"`
	Read  bool       `json:"read"`
	Write bool       `json:"write"`
}

// ChannelMeta returns the metadata for a channel object.
func ChannelMeta(name string) PointMeta {
	return PointMeta{
		Kind: ObjectKindChannel,
		Name: name,
		Role: RoleInfo,
		Read: true,
	}
}

// PointState is the latest value written to a point.
type PointState struct {
	Value     interface{} `json:"val"`
	Ack       bool        `json:"ack"`
	Timestamp time.Time   `json:"ts"`
}

// Point is a persisted object together with its latest state, if any.
type Point struct {
	ID    string      `json:"id"`
	Meta  PointMeta   `json:"meta"`
	State *PointState `json:"state,omitempty"`
}
