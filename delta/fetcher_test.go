package delta

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/container"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/internal/ngwtest"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
	"github.com/c0deZ3R0/ngw-sync-kit/transport/ngw"
)

const resourceID = 42

var layerFields = schema.Fields{
	{ID: 1, Keyname: "name", DataType: schema.String},
	{ID: 2, Keyname: "height", DataType: schema.Real, Attribute: 1},
}

type fakeSource struct {
	meta          container.Metadata
	fieldsChanged bool
	localFields   schema.Fields
}

func (s *fakeSource) Metadata(context.Context) (container.Metadata, error) { return s.meta, nil }
func (s *fakeSource) Fields(context.Context) (schema.Fields, error)         { return s.localFields, nil }
func (s *fakeSource) FieldsChanged(context.Context) (bool, error)           { return s.fieldsChanged, nil }

func newSource() *fakeSource {
	return &fakeSource{
		meta: container.Metadata{
			ResourceID:   resourceID,
			LayerName:    "buildings",
			Epoch:        7,
			Version:      10,
			GeometryType: "POINT",
			SRSID:        3857,
			Fields:       layerFields,
		},
		localFields: layerFields,
	}
}

func remoteLayer(pages ...[]gin.H) ngwtest.Layer {
	return ngwtest.Layer{
		Epoch:        7,
		Target:       12,
		Tstamp:       "2024-05-01T10:20:30",
		GeometryType: "POINT",
		SRSID:        3857,
		Fields:       layerFields,
		Pages:        pages,
	}
}

func newFetcher(t *testing.T, srv *ngwtest.Server, source container.MetadataSource, opts ...Option) *Fetcher {
	t.Helper()
	client, err := ngw.NewClient(srv.URL)
	require.NoError(t, err)
	return NewFetcher(client, source, opts...)
}

const fetchPath = "/api/resource/42/feature/changes/fetch"

func TestFetchFollowsContinuations(t *testing.T) {
	srv := ngwtest.New(t)
	srv.SetLayer(resourceID, remoteLayer(
		[]gin.H{
			{"action": "feature.create", "fid": 1, "fields": [][]any{{1, "a"}}},
			{"action": "feature.update", "fid": 2, "fields": [][]any{{2, 3.5}}},
		},
		[]gin.H{},
		[]gin.H{
			{"action": "feature.delete", "fid": 3},
		},
	))

	var pages []int
	f := newFetcher(t, srv, newSource(), WithHooks(Hooks{
		OnPage: func(_ context.Context, page, n int) { pages = append(pages, page) },
	}))

	result, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateComplete, f.State())
	assert.Equal(t, int64(12), result.Target)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC), result.Timestamp)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, []int{1, 2, 3}, pages)
	assert.Equal(t, 3, srv.CountPath(fetchPath), "exactly one request per continuation")

	require.Len(t, result.Delta, 3)
	assert.Equal(t, actions.FeatureID(1), result.Delta[0].(actions.FeatureCreate).ID)
	assert.Equal(t, actions.FeatureID(2), result.Delta[1].(actions.DataChange).ID)
	assert.Equal(t, actions.FeatureDelete{ID: 3}, result.Delta[2])
	for _, a := range result.Delta {
		assert.NotEqual(t, actions.ActionContinue, a.Type())
	}
}

func TestFetchNoChanges(t *testing.T) {
	srv := ngwtest.New(t)
	layer := remoteLayer()
	layer.Target = 10
	srv.SetLayer(resourceID, layer)

	f := newFetcher(t, srv, newSource())
	result, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Empty())
	assert.Equal(t, int64(10), result.Target)
	assert.Equal(t, StateComplete, f.State())
	assert.Zero(t, srv.CountPath(fetchPath))
}

func TestFetchVersioningDisabled(t *testing.T) {
	srv := ngwtest.New(t)
	layer := remoteLayer()
	layer.VersioningDisabled = true
	srv.SetLayer(resourceID, layer)

	f := newFetcher(t, srv, newSource())
	result, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, syncErrors.ErrCodeVersioningDisabled, syncErrors.CodeOf(err))
	assert.False(t, syncErrors.IsRetryable(err))
	assert.Equal(t, StateFailed, f.State())
}

func TestFetchCompatibilityGate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ngwtest.Layer, *fakeSource)
		code   syncErrors.ErrorCode
		notes  []string
	}{
		{
			name:   "epoch",
			modify: func(l *ngwtest.Layer, _ *fakeSource) { l.Epoch = 8; l.GeometryType = "LINESTRING" },
			code:   syncErrors.ErrCodeEpochChanged,
			notes:  []string{"Local: 7", "Remote: 8"},
		},
		{
			name:   "geometry type",
			modify: func(l *ngwtest.Layer, _ *fakeSource) { l.GeometryType = "MULTIPOINT" },
			code:   syncErrors.ErrCodeStructureChanged,
			notes:  []string{"Local: POINT", "Remote: MULTIPOINT"},
		},
		{
			name:   "srs",
			modify: func(l *ngwtest.Layer, _ *fakeSource) { l.SRSID = 4326 },
			code:   syncErrors.ErrCodeStructureChanged,
			notes:  []string{"Local: 3857", "Remote: 4326"},
		},
		{
			name:   "local fields",
			modify: func(_ *ngwtest.Layer, s *fakeSource) { s.fieldsChanged = true },
			code:   syncErrors.ErrCodeStructureChanged,
		},
		{
			name: "remote fields",
			modify: func(l *ngwtest.Layer, _ *fakeSource) {
				l.Fields = schema.Fields{{ID: 1, Keyname: "name", DataType: schema.String}}
			},
			code: syncErrors.ErrCodeStructureChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ngwtest.New(t)
			layer := remoteLayer([]gin.H{{"action": "feature.delete", "fid": 1}})
			source := newSource()
			tt.modify(&layer, source)
			srv.SetLayer(resourceID, layer)

			f := newFetcher(t, srv, source)
			result, err := f.Fetch(context.Background())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.code, syncErrors.CodeOf(err))
			assert.Zero(t, srv.CountPath(fetchPath), "no fetch request after a failed gate")

			var syncErr *syncErrors.SyncError
			require.True(t, errors.As(err, &syncErr))
			require.Len(t, syncErr.Notes, 2)
			if tt.notes != nil {
				assert.Equal(t, tt.notes, syncErr.Notes)
			}
		})
	}
}

func TestFetchFailureDiscardsPartialDelta(t *testing.T) {
	srv := ngwtest.New(t)
	layer := remoteLayer(
		[]gin.H{{"action": "feature.delete", "fid": 1}},
		[]gin.H{{"action": "feature.delete", "fid": 2}},
	)
	layer.FailPage = 2
	srv.SetLayer(resourceID, layer)

	var failures []error
	f := newFetcher(t, srv, newSource(), WithHooks(Hooks{
		OnFailure: func(_ context.Context, err error) { failures = append(failures, err) },
	}))

	result, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, syncErrors.ErrCodeSynchronizationFailure, syncErrors.CodeOf(err))
	assert.Equal(t, StateFailed, f.State())
	assert.Len(t, failures, 1)

	var serverErr *ngw.ServerError
	require.True(t, errors.As(err, &serverErr), "cause must be preserved")
	assert.Equal(t, 500, serverErr.StatusCode)
}

func TestFetchMalformedPage(t *testing.T) {
	srv := ngwtest.New(t)
	srv.SetLayer(resourceID, remoteLayer([]gin.H{{"action": "feature.update"}}))

	f := newFetcher(t, srv, newSource())
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncErrors.ErrCodeMalformedPayload, syncErrors.CodeOf(err))
}

// scriptedGetter answers the check request and then serves pages that
// always continue.
func scriptedGetter(onPage func(n int)) GetterFunc {
	n := 0
	return func(ctx context.Context, url string) (json.RawMessage, error) {
		if n == 0 {
			n++
			return json.RawMessage(`{
				"epoch": 7, "target": 11, "tstamp": "2024-05-01T10:20:30Z",
				"fetch": "/page", "geometry_type": "POINT", "srs": {"id": 3857},
				"fields": [
					{"id": 1, "keyname": "name", "datatype": "STRING"},
					{"id": 2, "keyname": "height", "datatype": "REAL"}
				]}`), nil
		}
		onPage(n)
		n++
		return json.RawMessage(`[{"action": "feature.delete", "fid": 1}, {"action": "continue", "url": "/page"}]`), nil
	}
}

func TestFetchCancellationBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requested := 0
	f := NewFetcher(scriptedGetter(func(n int) {
		requested = n
		if n == 2 {
			cancel()
		}
	}), newSource())

	result, err := f.Fetch(ctx)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 2, requested, "no page is requested after cancellation")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateFailed, f.State())
}

func TestFetchMaxPages(t *testing.T) {
	f := NewFetcher(scriptedGetter(func(int) {}), newSource(), WithMaxPages(5))

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncErrors.ErrCodeMalformedPayload, syncErrors.CodeOf(err))
	assert.Equal(t, 5, f.Page())
}

func TestFetchWrapsUnclassifiedFailure(t *testing.T) {
	cause := errors.New("disk on fire")
	f := NewFetcher(GetterFunc(func(context.Context, string) (json.RawMessage, error) {
		return nil, cause
	}), newSource())

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncErrors.ErrCodeSynchronizationFailure, syncErrors.CodeOf(err))
	assert.True(t, syncErrors.IsRetryable(err))
	assert.ErrorIs(t, err, cause)
}

func TestFetcherIsSingleUse(t *testing.T) {
	srv := ngwtest.New(t)
	layer := remoteLayer()
	layer.Target = 10
	srv.SetLayer(resourceID, layer)

	f := newFetcher(t, srv, newSource())
	_, err := f.Fetch(context.Background())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncErrors.ErrCodeValidationFailure, syncErrors.CodeOf(err))
}

func TestCheckURL(t *testing.T) {
	assert.Equal(t, "/api/resource/5/feature/changes/check?epoch=3&initial=9", CheckURL(5, 3, 9))
}

func TestParseCheckMalformed(t *testing.T) {
	cases := map[string]string{
		"not an object": `[]`,
		"no epoch":      `{"target": 1, "tstamp": "2024-01-01T00:00:00", "fetch": "/f", "srs": {"id": 1}, "fields": []}`,
		"no fetch":      `{"epoch": 1, "target": 1, "tstamp": "2024-01-01T00:00:00", "srs": {"id": 1}, "fields": []}`,
		"bad tstamp":    `{"epoch": 1, "target": 1, "tstamp": "yesterday", "fetch": "/f", "srs": {"id": 1}, "fields": []}`,
		"no srs":        `{"epoch": 1, "target": 1, "tstamp": "2024-01-01T00:00:00", "fetch": "/f", "fields": []}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCheck(json.RawMessage(payload))
			require.Error(t, err)
			assert.True(t, syncErrors.HasCode(err, syncErrors.ErrCodeMalformedPayload))
		})
	}
}
