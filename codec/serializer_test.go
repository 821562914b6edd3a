package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

var testFields = schema.Fields{
	{ID: 10, Keyname: "name", DataType: schema.String},
	{ID: 11, Keyname: "height", DataType: schema.Real, Attribute: 1},
	{ID: 12, Keyname: "floors", DataType: schema.Integer, Attribute: 2},
	{ID: 13, Keyname: "built", DataType: schema.Date, Attribute: 3},
}

func TestFromJSONArrayForm(t *testing.T) {
	payload := []byte(`[
		{"action": "feature.create", "fid": 1, "vid": 5, "fields": [[10, "tower"], [12, 3]], "geom": "POINT (1 2)"},
		{"action": "feature.update", "fid": 2, "fields": [[11, 2.5], [13, {"year": 2020, "month": 5, "day": 7}]]},
		{"action": "feature.update", "fid": 3, "geom": "POINT (3 3)"},
		{"action": "feature.delete", "fid": 4},
		{"action": "continue", "url": "https://ngw.example.com/api/resource/1/feature/changes/fetch?cursor=2"}
	]`)

	got, err := NewSerializer(testFields).FromJSON(payload)
	require.NoError(t, err)
	require.Len(t, got, 5)

	create := got[0].(actions.FeatureCreate)
	assert.Equal(t, actions.FeatureID(1), create.ID)
	assert.Equal(t, map[schema.FieldID]any{10: "tower", 12: int64(3)}, create.Fields)
	assert.Equal(t, actions.Geometry("POINT (1 2)"), *create.Geom)

	update := got[1].(actions.DataChange)
	assert.Equal(t, []actions.FieldValue{{Field: 11, Value: 2.5}, {Field: 13, Value: "2020-05-07"}}, update.Fields)
	assert.Nil(t, update.Geom)

	geomOnly := got[2].(actions.DataChange)
	assert.Empty(t, geomOnly.Fields)
	assert.True(t, actions.TouchesGeometry(geomOnly))

	assert.Equal(t, actions.FeatureDelete{ID: 4}, got[3])
	assert.Equal(t, actions.ActionContinue, got[4].Type())
}

func TestFromJSONObjectForm(t *testing.T) {
	payload := []byte(`{"changes": [{"action": "feature.delete", "fid": 9}], "continue": "/next"}`)

	got, err := NewSerializer(nil).FromJSON(payload)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, actions.FeatureDelete{ID: 9}, got[0])
	assert.Equal(t, actions.Continue{URL: "/next"}, got[1])

	terminal, err := NewSerializer(nil).FromJSON([]byte(`{"changes": []}`))
	require.NoError(t, err)
	assert.Empty(t, terminal)
}

func TestFromJSONMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":                  ``,
		"null":                   `null`,
		"scalar":                 `42`,
		"missing fid":            `[{"action": "feature.update", "fields": []}]`,
		"missing action":         `[{"fid": 1}]`,
		"unknown action":         `[{"action": "feature.explode", "fid": 1}]`,
		"fields not array":       `[{"action": "feature.update", "fid": 1, "fields": {"10": "x"}}]`,
		"pair too short":         `[{"action": "feature.update", "fid": 1, "fields": [[10]]}]`,
		"unknown field":          `[{"action": "feature.update", "fid": 1, "fields": [[99, "x"]]}]`,
		"wrong value type":       `[{"action": "feature.update", "fid": 1, "fields": [[12, "three"]]}]`,
		"bad date":               `[{"action": "feature.update", "fid": 1, "fields": [[13, "yesterday"]]}]`,
		"continue not last":      `[{"action": "continue", "url": "/next"}, {"action": "feature.delete", "fid": 1}]`,
		"continue without url":   `[{"action": "continue"}]`,
		"two continuations":      `{"changes": [{"action": "continue", "url": "/a"}], "continue": "/b"}`,
		"object without changes": `{"continue": "/b"}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSerializer(testFields).FromJSON([]byte(payload))
			require.Error(t, err)
			assert.True(t, syncErrors.HasCode(err, syncErrors.ErrCodeMalformedPayload), "got %v", err)
		})
	}
}

func TestToJSONRoundTrip(t *testing.T) {
	list := []actions.Action{
		actions.FeatureCreate{ID: 1, Fields: map[schema.FieldID]any{12: int64(2), 10: "a"}, Geom: actions.GeometryPtr("POINT (0 0)")},
		actions.DataChange{ID: 2, Fields: []actions.FieldValue{{Field: 13, Value: Date{2021, time.March, 4}}}},
		actions.DataChange{ID: 3, Fields: []actions.FieldValue{}},
		actions.FeatureDelete{ID: 4},
		actions.Continue{URL: "/next"},
	}

	s := NewSerializer(testFields)
	data, err := s.ToJSON(list)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "feature.create", raw[0]["action"])
	assert.Equal(t, []any{[]any{float64(10), "a"}, []any{float64(12), float64(2)}}, raw[0]["fields"])

	back, err := s.FromJSON(data)
	require.NoError(t, err)
	require.Len(t, back, len(list))
	assert.Equal(t, list[0], back[0])
	assert.Equal(t, []actions.FieldValue{{Field: 13, Value: "2021-03-04"}}, back[1].(actions.DataChange).Fields)
	assert.Equal(t, list[3], back[3])
	assert.Equal(t, list[4], back[4])

	_, err = s.ToJSON([]actions.Action{actions.Continue{URL: "/x"}, actions.FeatureDelete{ID: 1}})
	assert.Error(t, err)
}
