// Package schema describes the attribute columns of an NGW vector layer.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
)

// FieldID identifies an attribute column on the server. It is stable across
// versions unless the schema itself changes.
type FieldID int64

// DataType is the NGW field data type.
type DataType string

const (
	Integer  DataType = "INTEGER"
	BigInt   DataType = "BIGINT"
	Real     DataType = "REAL"
	String   DataType = "STRING"
	Date     DataType = "DATE"
	Time     DataType = "TIME"
	DateTime DataType = "DATETIME"
)

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case Integer, BigInt, Real, String, Date, Time, DateTime:
		return true
	}
	return false
}

// IsNumeric reports whether values of t are numbers.
func (t DataType) IsNumeric() bool {
	return t == Integer || t == BigInt || t == Real
}

// Field is one attribute column.
type Field struct {
	ID          FieldID  `json:"id" yaml:"id"`
	Keyname     string   `json:"keyname" yaml:"keyname"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	DataType    DataType `json:"datatype" yaml:"datatype"`

	// Attribute is the column index in the local container.
	Attribute int `json:"attribute" yaml:"attribute"`
}

func (f Field) String() string {
	return fmt.Sprintf("%s(%d:%s)", f.Keyname, f.ID, f.DataType)
}

// Fields is an ordered field list.
type Fields []Field

// ByID returns the field with the given id.
func (fs Fields) ByID(id FieldID) (Field, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// ByKeyname returns the field with the given keyname.
func (fs Fields) ByKeyname(keyname string) (Field, bool) {
	for _, f := range fs {
		if f.Keyname == keyname {
			return f, true
		}
	}
	return Field{}, false
}

// IDs returns field ids in schema order.
func (fs Fields) IDs() []FieldID {
	ids := make([]FieldID, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
	}
	return ids
}

// Compatible compares two schemas field by field on id, keyname and data
// type. Display names and local attribute indexes are ignored.
func (fs Fields) Compatible(other Fields) bool {
	if len(fs) != len(other) {
		return false
	}
	for i := range fs {
		if fs[i].ID != other[i].ID ||
			fs[i].Keyname != other[i].Keyname ||
			fs[i].DataType != other[i].DataType {
			return false
		}
	}
	return true
}

// SameStructure compares keynames and data types only. It is used for the
// local layer columns, which have no server ids.
func (fs Fields) SameStructure(other Fields) bool {
	if len(fs) != len(other) {
		return false
	}
	for i := range fs {
		if fs[i].Keyname != other[i].Keyname || fs[i].DataType != other[i].DataType {
			return false
		}
	}
	return true
}

func (fs Fields) String() string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type wireField struct {
	ID          *FieldID `json:"id"`
	Keyname     *string  `json:"keyname"`
	DisplayName string   `json:"display_name"`
	DataType    DataType `json:"datatype"`
}

// FromJSON parses the NGW "fields" array. Attribute indexes follow array order.
func FromJSON(raw json.RawMessage) (Fields, error) {
	var wire []wireField
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, syncErrors.NewMalformedPayloadError(syncErrors.OpDecode,
			fmt.Errorf("invalid fields array: %w", err))
	}

	fields := make(Fields, 0, len(wire))
	for i, w := range wire {
		if w.ID == nil || w.Keyname == nil {
			return nil, syncErrors.NewMalformedPayloadError(syncErrors.OpDecode,
				fmt.Errorf("field %d: id and keyname are required", i))
		}
		if !w.DataType.Valid() {
			return nil, syncErrors.NewMalformedPayloadError(syncErrors.OpDecode,
				fmt.Errorf("field %q: unknown datatype %q", *w.Keyname, w.DataType))
		}
		fields = append(fields, Field{
			ID:          *w.ID,
			Keyname:     *w.Keyname,
			DisplayName: w.DisplayName,
			DataType:    w.DataType,
			Attribute:   i,
		})
	}
	return fields, nil
}
