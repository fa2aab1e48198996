package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Reserved keys of the flattened object encoding
const (
	FieldID        = "id"
	FieldVersion   = "version"
	FieldType      = "type"
	FieldTimestamp = "timestamp"
	FieldUserID    = "userId"
)

// Fields is the open payload of a board object or operation
type Fields map[string]any

// Clone returns a shallow copy; nested values are shared and must not be mutated in place
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Payload clones f without the id/version envelope keys
func (f Fields) Payload() Fields {
	out := f.Clone()
	delete(out, FieldID)
	delete(out, FieldVersion)
	return out
}

// Merge shallow-assigns every key of changes into f
func (f Fields) Merge(changes Fields) {
	for k, v := range changes {
		if k == FieldID || k == FieldVersion {
			continue
		}
		f[k] = v
	}
}

// String returns the string value at key, or ""
func (f Fields) String(key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

// Timestamp reads the numeric "timestamp" field, falling back to 0
func (f Fields) Timestamp() int64 {
	return toInt64(f[FieldTimestamp])
}

// UserID reads the "userId" field
func (f Fields) UserID() string {
	return f.String(FieldUserID)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// BoardObject is the id/version envelope around an opaque field set.
// On the wire it is flattened: {"id":..,"version":..,"type":..,...fields}.
type BoardObject struct {
	ID      string
	Version int
	Fields  Fields
}

// Kind returns the object's "type" field
func (o *BoardObject) Kind() ObjectKind {
	return ObjectKind(o.Fields.String(FieldType))
}

// Timestamp returns the object's "timestamp" field, 0 if absent
func (o *BoardObject) Timestamp() int64 {
	return o.Fields.Timestamp()
}

// Clone copies the envelope and the top level of the field set
func (o *BoardObject) Clone() *BoardObject {
	if o == nil {
		return nil
	}
	return &BoardObject{ID: o.ID, Version: o.Version, Fields: o.Fields.Clone()}
}

// Flatten merges the envelope into a copy of the field set
func (o *BoardObject) Flatten() map[string]any {
	out := make(map[string]any, len(o.Fields)+2)
	for k, v := range o.Fields {
		out[k] = v
	}
	out[FieldID] = o.ID
	out[FieldVersion] = o.Version
	return out
}

func (o *BoardObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Flatten())
}

func (o *BoardObject) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, ok := raw[FieldID].(string)
	if !ok || id == "" {
		return fmt.Errorf("board object is missing an id")
	}
	o.ID = id
	o.Version = int(toInt64(raw[FieldVersion]))
	o.Fields = Fields(raw).Payload()
	return nil
}

// CloneObjects deep-copies an object list at the envelope level
func CloneObjects(objects []*BoardObject) []*BoardObject {
	out := make([]*BoardObject, len(objects))
	for i, obj := range objects {
		out[i] = obj.Clone()
	}
	return out
}
