package conflicts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

func TestDetect(t *testing.T) {
	local := map[actions.FeatureID]actions.FeatureAction{
		1: change(1, nil, 10, "a"),
		2: actions.FeatureDelete{ID: 2},
		3: actions.FeatureDelete{ID: 3},
		4: change(4, nil, 10, "local only"),
		7: change(7, nil, 11, "x"),
	}
	remote := map[actions.FeatureID]actions.FeatureAction{
		7: actions.FeatureDelete{ID: 7},
		1: change(1, nil, 10, "b"),
		2: actions.FeatureDelete{ID: 2},
		3: change(3, nil, 10, "c"),
		5: change(5, nil, 10, "remote only"),
	}

	got, err := Detect(local, remote)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, actions.FeatureID(1), got[0].FID())
	assert.Equal(t, ShapeUpdateUpdate, got[0].Shape())
	assert.Equal(t, []schema.FieldID{10}, got[0].ConflictingFields())

	assert.Equal(t, actions.FeatureID(3), got[1].FID())
	assert.Equal(t, ShapeDeleteUpdate, got[1].Shape())

	assert.Equal(t, actions.FeatureID(7), got[2].FID())
	assert.Equal(t, ShapeUpdateDelete, got[2].Shape())
}

func TestDetectDeleteDeleteIsNotAConflict(t *testing.T) {
	local := map[actions.FeatureID]actions.FeatureAction{9: actions.FeatureDelete{ID: 9}}
	remote := map[actions.FeatureID]actions.FeatureAction{9: actions.FeatureDelete{ID: 9}}

	got, err := Detect(local, remote)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectRejectsMisfiledAction(t *testing.T) {
	local := map[actions.FeatureID]actions.FeatureAction{
		1: change(1, nil, 10, "a"),
		2: change(3, nil, 10, "filed under the wrong fid"),
	}
	remote := map[actions.FeatureID]actions.FeatureAction{
		1: change(1, nil, 10, "b"),
		2: change(2, nil, 10, "c"),
	}

	got, err := Detect(local, remote)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, syncErrors.ErrCodeValidationFailure, syncErrors.CodeOf(err))
	assert.Contains(t, err.Error(), "feature 2")
}

func TestDetectLogs(t *testing.T) {
	localLog := []actions.Action{
		change(1, nil, 10, "a"),
		change(1, nil, 11, "b"),
		actions.FeatureCreate{ID: 20, Fields: map[schema.FieldID]any{10: "new"}},
		actions.FeatureDelete{ID: 20},
		actions.FeatureDelete{ID: 3},
	}
	remoteLog := []actions.Action{
		change(1, actions.GeometryPtr("POINT (5 5)"), 11, "c"),
		actions.FeatureDelete{ID: 3},
		change(20, nil, 10, "remote"),
		actions.Continue{URL: "/ignored"},
	}

	got, err := DetectLogs(localLog, remoteLog)
	require.NoError(t, err)
	require.Len(t, got, 1, "created-then-deleted and deleted-on-both features do not conflict")
	assert.Equal(t, actions.FeatureID(1), got[0].FID())
	assert.Equal(t, []schema.FieldID{11}, got[0].ConflictingFields())
	assert.Equal(t, []actions.FieldValue{{Field: 10, Value: "a"}, {Field: 11, Value: "b"}}, got[0].LocalAction.(actions.DataChange).Fields)
}
