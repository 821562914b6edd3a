// Package codec converts NGW change records to and from actions.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// record is the wire form of one change.
type record struct {
	Action string          `json:"action"`
	FID    *int64          `json:"fid,omitempty"`
	VID    *int64          `json:"vid,omitempty"`
	Fields json.RawMessage `json:"fields,omitempty"`
	Geom   *string         `json:"geom,omitempty"`
	URL    string          `json:"url,omitempty"`
}

// page is the object form of a fetch response.
type page struct {
	Changes  []json.RawMessage `json:"changes"`
	Continue *string           `json:"continue"`
}

// Serializer maps wire JSON to actions for one layer schema.
type Serializer struct {
	fields schema.Fields
}

// NewSerializer returns a serializer that validates field ids and value
// types against fields. A nil schema disables validation.
func NewSerializer(fields schema.Fields) *Serializer {
	return &Serializer{fields: fields}
}

func malformed(format string, args ...any) error {
	return syncErrors.NewMalformedPayloadError(syncErrors.OpDecode, fmt.Errorf(format, args...))
}

// FromJSON parses one page of changes. Both the array form
// [record, ..., {"action": "continue", "url": ...}] and the object form
// {"changes": [...], "continue": "url"} are accepted. A continuation is
// returned as a trailing actions.Continue.
func (s *Serializer) FromJSON(payload []byte) ([]actions.Action, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, malformed("empty payload")
	}

	var raws []json.RawMessage
	var continueURL *string

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, malformed("invalid change list: %v", err)
		}
	case '{':
		var p page
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, malformed("invalid change page: %v", err)
		}
		if p.Changes == nil {
			return nil, malformed("change page has no \"changes\" key")
		}
		raws = p.Changes
		continueURL = p.Continue
	default:
		return nil, malformed("unexpected payload starting with %q", trimmed[0])
	}

	result := make([]actions.Action, 0, len(raws)+1)
	for i, raw := range raws {
		action, err := s.decodeRecord(raw)
		if err != nil {
			return nil, syncErrors.WrapOpComponent(fmt.Errorf("record %d: %w", i, err), syncErrors.OpDecode, "codec")
		}
		if action.Type() == actions.ActionContinue && i != len(raws)-1 {
			return nil, malformed("record %d: continuation marker must be the last record", i)
		}
		result = append(result, action)
	}

	if continueURL != nil {
		if n := len(result); n > 0 && result[n-1].Type() == actions.ActionContinue {
			return nil, malformed("page carries two continuation markers")
		}
		if *continueURL == "" {
			return nil, malformed("empty continuation url")
		}
		result = append(result, actions.Continue{URL: *continueURL})
	}

	return result, nil
}

func (s *Serializer) decodeRecord(raw json.RawMessage) (actions.Action, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, malformed("invalid record: %v", err)
	}

	if r.Action == actions.WireContinue {
		if r.URL == "" {
			return nil, malformed("continuation marker without url")
		}
		return actions.Continue{URL: r.URL}, nil
	}

	if r.FID == nil {
		return nil, malformed("%s record without fid", r.Action)
	}
	fid := actions.FeatureID(*r.FID)

	var geom *actions.Geometry
	if r.Geom != nil {
		geom = actions.GeometryPtr(*r.Geom)
	}

	switch r.Action {
	case actions.WireCreate, actions.WireRestore:
		pairs, err := s.decodeFields(r.Fields)
		if err != nil {
			return nil, err
		}
		fields := make(map[schema.FieldID]any, len(pairs))
		for _, fv := range pairs {
			fields[fv.Field] = fv.Value
		}
		return actions.FeatureCreate{ID: fid, Fields: fields, Geom: geom}, nil

	case actions.WireUpdate:
		pairs, err := s.decodeFields(r.Fields)
		if err != nil {
			return nil, err
		}
		return actions.DataChange{ID: fid, Fields: pairs, Geom: geom}, nil

	case actions.WireDelete:
		return actions.FeatureDelete{ID: fid}, nil

	case "":
		return nil, malformed("record without action")
	default:
		return nil, malformed("unknown action %q", r.Action)
	}
}

func (s *Serializer) decodeFields(raw json.RawMessage) ([]actions.FieldValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, malformed("fields must be an array of [id, value] pairs: %v", err)
	}

	out := make([]actions.FieldValue, 0, len(pairs))
	for i, pairRaw := range pairs {
		dec := json.NewDecoder(bytes.NewReader(pairRaw))
		dec.UseNumber()
		var pair []any
		if err := dec.Decode(&pair); err != nil || len(pair) != 2 {
			return nil, malformed("field pair %d is not [id, value]", i)
		}

		id, ok := Simplify(pair[0]).(int64)
		if !ok {
			return nil, malformed("field pair %d has non-integer id %v", i, pair[0])
		}
		fieldID := schema.FieldID(id)
		value := Simplify(pair[1])

		if s.fields != nil {
			field, known := s.fields.ByID(fieldID)
			if !known {
				return nil, malformed("unknown field id %d", fieldID)
			}
			if err := checkValue(value, field.DataType); err != nil {
				return nil, malformed("field %s: %v", field.Keyname, err)
			}
		}

		out = append(out, actions.FieldValue{Field: fieldID, Value: value})
	}
	return out, nil
}

// ToJSON encodes actions in the array form accepted by FromJSON.
func (s *Serializer) ToJSON(list []actions.Action) ([]byte, error) {
	records := make([]record, 0, len(list))
	for i, a := range list {
		r, err := encodeRecord(a)
		if err != nil {
			return nil, err
		}
		if a.Type() == actions.ActionContinue && i != len(list)-1 {
			return nil, malformed("continuation marker must be the last action")
		}
		records = append(records, r)
	}
	return json.Marshal(records)
}

func encodeRecord(a actions.Action) (record, error) {
	fidPtr := func(fid actions.FeatureID) *int64 {
		v := int64(fid)
		return &v
	}
	geomPtr := func(g *actions.Geometry) *string {
		if g == nil {
			return nil
		}
		s := string(*g)
		return &s
	}

	switch a.Type() {
	case actions.ActionCreate:
		create := a.(actions.FeatureCreate)
		fields, err := encodeFields(create.SortedFields())
		if err != nil {
			return record{}, err
		}
		return record{Action: actions.WireCreate, FID: fidPtr(create.ID), Fields: fields, Geom: geomPtr(create.Geom)}, nil

	case actions.ActionDataChange:
		change := a.(actions.DataChange)
		fields, err := encodeFields(change.Fields)
		if err != nil {
			return record{}, err
		}
		return record{Action: actions.WireUpdate, FID: fidPtr(change.ID), Fields: fields, Geom: geomPtr(change.Geom)}, nil

	case actions.ActionDelete:
		return record{Action: actions.WireDelete, FID: fidPtr(a.(actions.FeatureDelete).ID)}, nil

	case actions.ActionContinue:
		return record{Action: actions.WireContinue, URL: a.(actions.Continue).URL}, nil
	}
	return record{}, malformed("unsupported action type %v", a.Type())
}

func encodeFields(fields []actions.FieldValue) (json.RawMessage, error) {
	pairs := make([][2]any, len(fields))
	for i, fv := range fields {
		pairs[i] = [2]any{int64(fv.Field), Serialize(fv.Value)}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, malformed("encode fields: %v", err)
	}
	return data, nil
}
