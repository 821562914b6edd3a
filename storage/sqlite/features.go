package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/codec"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// encodeAttributes stores attributes as a JSON object keyed by field id.
func encodeAttributes(attrs map[schema.FieldID]any) (string, error) {
	obj := make(map[string]any, len(attrs))
	for id, v := range attrs {
		obj[strconv.FormatInt(int64(id), 10)] = codec.Serialize(v)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return string(data), nil
}

func decodeAttributes(data string) (map[schema.FieldID]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}

	attrs := make(map[schema.FieldID]any, len(obj))
	for k, v := range obj {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid field id %q", k)
		}
		attrs[schema.FieldID(id)] = codec.Simplify(v)
	}
	return attrs, nil
}

func getFeature(ctx context.Context, q querier, fid actions.FeatureID) (*actions.Feature, error) {
	var attrs string
	var geom sql.NullString
	err := q.QueryRowContext(ctx, `SELECT attributes, geometry FROM features WHERE fid = ?`, int64(fid)).Scan(&attrs, &geom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feature %d: %w", fid, err)
	}

	f := actions.NewFeature(fid)
	if f.Attributes, err = decodeAttributes(attrs); err != nil {
		return nil, fmt.Errorf("feature %d: %w", fid, err)
	}
	if geom.Valid {
		f.Geometry = actions.GeometryPtr(geom.String)
	}
	return f, nil
}

func putFeature(ctx context.Context, e execer, f *actions.Feature) error {
	attrs, err := encodeAttributes(f.Attributes)
	if err != nil {
		return err
	}
	var geom sql.NullString
	if f.Geometry != nil {
		geom = sql.NullString{String: string(*f.Geometry), Valid: true}
	}
	_, err = e.ExecContext(ctx,
		`INSERT INTO features (fid, attributes, geometry) VALUES (?, ?, ?)
		 ON CONFLICT(fid) DO UPDATE SET attributes = excluded.attributes, geometry = excluded.geometry`,
		int64(f.FID), attrs, geom)
	if err != nil {
		return fmt.Errorf("failed to store feature %d: %w", f.FID, err)
	}
	return nil
}

// appendPending stores one action in its wire form.
func appendPending(ctx context.Context, e execer, a actions.FeatureAction) error {
	data, err := codec.NewSerializer(nil).ToJSON([]actions.Action{a})
	if err != nil {
		return err
	}
	// ToJSON returns a one-element array; the row holds the bare record.
	record := bytes.TrimSpace(data)
	record = record[1 : len(record)-1]

	_, err = e.ExecContext(ctx, `INSERT INTO pending_actions (fid, action) VALUES (?, ?)`, int64(a.FID()), string(record))
	if err != nil {
		return fmt.Errorf("failed to append pending action for feature %d: %w", a.FID(), err)
	}
	return nil
}
