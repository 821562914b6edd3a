package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

func TestConflictResolutionAction(t *testing.T) {
	res := ConflictResolution{
		FID:        4,
		Type:       Custom,
		Attributes: map[schema.FieldID]any{12: int64(1), 10: "a"},
		Geometry:   actions.GeometryPtr("POINT (1 2)"),
	}

	assert.Equal(t, actions.DataChange{
		ID:     4,
		Fields: []actions.FieldValue{{Field: 10, Value: "a"}, {Field: 12, Value: int64(1)}},
		Geom:   actions.GeometryPtr("POINT (1 2)"),
	}, res.Action())

	del := ConflictResolution{FID: 4, Type: Remote, Delete: true}
	assert.Equal(t, actions.FeatureDelete{ID: 4}, del.Action())
	assert.Nil(t, del.Feature())
}

func TestConflictResolutionActionAgainst(t *testing.T) {
	remote := &actions.Feature{
		FID:        4,
		Attributes: map[schema.FieldID]any{10: "a", 11: 2.5, 12: int64(1)},
		Geometry:   actions.GeometryPtr("POINT (0 0)"),
	}

	tests := []struct {
		name   string
		res    ConflictResolution
		remote *actions.Feature
		want   actions.FeatureAction
	}{
		{
			name:   "identical",
			res:    ConflictResolution{FID: 4, Attributes: map[schema.FieldID]any{10: "a", 11: 2.5, 12: int64(1)}, Geometry: actions.GeometryPtr("POINT (0 0)")},
			remote: remote,
			want:   nil,
		},
		{
			name:   "changed field and geometry",
			res:    ConflictResolution{FID: 4, Attributes: map[schema.FieldID]any{10: "a", 11: 3.0, 12: int64(1)}, Geometry: actions.GeometryPtr("POINT (1 1)")},
			remote: remote,
			want: actions.DataChange{
				ID:     4,
				Fields: []actions.FieldValue{{Field: 11, Value: 3.0}},
				Geom:   actions.GeometryPtr("POINT (1 1)"),
			},
		},
		{
			name:   "remote deleted, keep update",
			res:    ConflictResolution{FID: 4, Attributes: map[schema.FieldID]any{10: "a"}},
			remote: nil,
			want:   actions.FeatureCreate{ID: 4, Fields: map[schema.FieldID]any{10: "a"}},
		},
		{
			name:   "accept remote delete",
			res:    ConflictResolution{FID: 4, Delete: true},
			remote: nil,
			want:   nil,
		},
		{
			name:   "local delete over remote update",
			res:    ConflictResolution{FID: 4, Delete: true},
			remote: remote,
			want:   actions.FeatureDelete{ID: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.ActionAgainst(tt.remote))
		})
	}
}
