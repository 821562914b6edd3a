// Package sqlite provides a SQLite implementation of the detached-editing
// container.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/codec"
	"github.com/c0deZ3R0/ngw-sync-kit/container"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const component = "storage/sqlite"

// Custom errors for better error handling
var (
	ErrStoreClosed    = errors.New("store is closed")
	ErrNotInitialized = errors.New("container has no NGW metadata")
)

// Config holds configuration options for the container store.
//
// Defaults applied by DefaultConfig():
//   - WAL mode enabled
//   - Connection pool with 25 max open, 5 max idle connections
//   - Connection lifetimes of 1 hour max, 5 minutes max idle
type Config struct {
	// DataSourceName is the path of the container file.
	DataSourceName string

	// EnableWAL appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Logger defaults to the "storage/sqlite" component logger.
	Logger *logging.Logger

	MaxOpenConns    int           // Default: 25
	MaxIdleConns    int           // Default: 5
	ConnMaxLifetime time.Duration // Default: 1h
	ConnMaxIdleTime time.Duration // Default: 5m
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = logging.WithComponent(component)
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
}

// dsn returns the driver connection string.
func (c *Config) dsn() string {
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		return c.DataSourceName + sep + "_journal_mode=WAL"
	}
	return c.DataSourceName
}

// path strips driver options from the data source name.
func (c *Config) path() string {
	path, _, _ := strings.Cut(strings.TrimPrefix(c.DataSourceName, "file:"), "?")
	return path
}

// DefaultConfig returns a Config with WAL and pool defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Open opens or creates the container at path with DefaultConfig.
func Open(path string) (*Store, error) {
	return New(DefaultConfig(path))
}

// Store is a detached-editing container backed by one SQLite file.
//
// The features table holds the last synchronized state of every feature;
// local edits live in pending_actions until they are pushed.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger
	path   string
}

var _ container.Store = (*Store)(nil)

// New creates a Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, errors.New("config cannot be nil"))
	}
	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, errors.New("DataSourceName is required"))
	}

	logger := config.Logger
	logger.Debug("Opening container",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.dsn())
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, fmt.Errorf("failed to open sqlite database: %w", err))
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, fmt.Errorf("failed to connect to sqlite database: %w", err))
	}

	store := &Store{
		db:     db,
		logger: logger,
		path:   config.path(),
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, fmt.Errorf("failed to setup database schema: %w", err))
	}

	return store, nil
}

func (s *Store) setupSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}

// checkOpen reports context cancellation and a closed store.
func (s *Store) checkOpen(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func storageErr(err error, op syncErrors.Operation) error {
	return syncErrors.WrapOpComponentCode(err, op, component, syncErrors.ErrCodeStorageFailure)
}

// Path returns the container file path.
func (s *Store) Path() string {
	return s.path
}

// Initialize records the NGW binding of a freshly downloaded layer and its
// features. Both the cached remote schema and the local layer columns are
// set from meta.Fields.
func (s *Store) Initialize(ctx context.Context, meta container.Metadata, features []*actions.Feature) (err error) {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, syncErrors.OpStore)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM ngw_metadata`, `DELETE FROM ngw_fields`, `DELETE FROM layer_fields`,
		`DELETE FROM features`, `DELETE FROM pending_actions`,
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return storageErr(err, syncErrors.OpStore)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ngw_metadata (id, connection_id, resource_id, layer_name, epoch, version, geometry_type, srs_id, sync_date)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ConnectionID, meta.ResourceID, meta.LayerName, meta.Epoch, meta.Version,
		meta.GeometryType, meta.SRSID, nullTime(meta.SyncDate))
	if err != nil {
		return storageErr(err, syncErrors.OpStore)
	}

	for i, f := range meta.Fields {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO ngw_fields (attribute, ngw_id, keyname, display_name, datatype) VALUES (?, ?, ?, ?, ?)`,
			i, f.ID, f.Keyname, f.DisplayName, string(f.DataType)); err != nil {
			return storageErr(err, syncErrors.OpStore)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO layer_fields (attribute, keyname, datatype) VALUES (?, ?, ?)`,
			i, f.Keyname, string(f.DataType)); err != nil {
			return storageErr(err, syncErrors.OpStore)
		}
	}

	for _, f := range features {
		if err = putFeature(ctx, tx, f); err != nil {
			return storageErr(err, syncErrors.OpStore)
		}
	}

	if err = tx.Commit(); err != nil {
		return storageErr(err, syncErrors.OpStore)
	}

	s.logger.Debug("Container initialized",
		slog.String("layer", meta.LayerName),
		slog.Int("features", len(features)),
	)
	return nil
}

// Metadata returns the NGW binding of the container.
func (s *Store) Metadata(ctx context.Context) (container.Metadata, error) {
	if err := s.checkOpen(ctx); err != nil {
		return container.Metadata{}, err
	}

	meta := container.Metadata{ContainerPath: s.path}
	var syncDate sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT connection_id, resource_id, layer_name, epoch, version, geometry_type, srs_id, sync_date
		 FROM ngw_metadata WHERE id = 1`).
		Scan(&meta.ConnectionID, &meta.ResourceID, &meta.LayerName, &meta.Epoch, &meta.Version,
			&meta.GeometryType, &meta.SRSID, &syncDate)
	if errors.Is(err, sql.ErrNoRows) {
		return container.Metadata{}, syncErrors.NewStorageError(syncErrors.OpLoad, ErrNotInitialized)
	}
	if err != nil {
		return container.Metadata{}, storageErr(err, syncErrors.OpLoad)
	}
	if syncDate.Valid {
		meta.SyncDate = syncDate.Time
	}

	if meta.Fields, err = s.ngwFields(ctx); err != nil {
		return container.Metadata{}, err
	}
	return meta, nil
}

func (s *Store) ngwFields(ctx context.Context) (schema.Fields, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attribute, ngw_id, keyname, display_name, datatype FROM ngw_fields ORDER BY attribute`)
	if err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}
	defer rows.Close()

	fields := schema.Fields{}
	for rows.Next() {
		var f schema.Field
		var dt string
		if err := rows.Scan(&f.Attribute, &f.ID, &f.Keyname, &f.DisplayName, &dt); err != nil {
			return nil, storageErr(err, syncErrors.OpLoad)
		}
		f.DataType = schema.DataType(dt)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}
	return fields, nil
}

// Fields returns the local layer columns. Ids are taken from the cached
// remote schema where the column still has the same keyname.
func (s *Store) Fields(ctx context.Context) (schema.Fields, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT l.attribute, COALESCE(n.ngw_id, 0), l.keyname, COALESCE(n.display_name, ''), l.datatype
		 FROM layer_fields l
		 LEFT JOIN ngw_fields n ON n.attribute = l.attribute AND n.keyname = l.keyname
		 ORDER BY l.attribute`)
	if err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}
	defer rows.Close()

	fields := schema.Fields{}
	for rows.Next() {
		var f schema.Field
		var dt string
		if err := rows.Scan(&f.Attribute, &f.ID, &f.Keyname, &f.DisplayName, &dt); err != nil {
			return nil, storageErr(err, syncErrors.OpLoad)
		}
		f.DataType = schema.DataType(dt)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}
	return fields, nil
}

// FieldsChanged reports whether the layer columns no longer match the
// cached remote schema by keyname and data type.
func (s *Store) FieldsChanged(ctx context.Context) (bool, error) {
	local, err := s.Fields(ctx)
	if err != nil {
		return false, err
	}
	remote, err := s.ngwFields(ctx)
	if err != nil {
		return false, err
	}
	return !local.SameStructure(remote), nil
}

// AddLayerField appends a local column. The container then reports its
// fields as changed.
func (s *Store) AddLayerField(ctx context.Context, keyname string, dataType schema.DataType) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if !dataType.Valid() {
		return syncErrors.NewValidationError(syncErrors.OpStore, fmt.Errorf("unknown data type %q", dataType))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO layer_fields (attribute, keyname, datatype)
		 VALUES ((SELECT COALESCE(MAX(attribute) + 1, 0) FROM layer_fields), ?, ?)`,
		keyname, string(dataType))
	if err != nil {
		return storageErr(err, syncErrors.OpStore)
	}
	return nil
}

// Feature returns the synchronized record of fid, or nil when there is none.
func (s *Store) Feature(ctx context.Context, fid actions.FeatureID) (*actions.Feature, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	f, err := getFeature(ctx, s.db, fid)
	if err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}
	return f, nil
}

// FeatureCount returns the number of synchronized records.
func (s *Store) FeatureCount(ctx context.Context) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM features`).Scan(&n); err != nil {
		return 0, storageErr(err, syncErrors.OpLoad)
	}
	return n, nil
}

// RecordLocal appends local edits to the pending log.
func (s *Store) RecordLocal(ctx context.Context, list ...actions.FeatureAction) (err error) {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, syncErrors.OpStore)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, a := range list {
		if err = appendPending(ctx, tx, a); err != nil {
			return storageErr(err, syncErrors.OpStore)
		}
	}

	if err = tx.Commit(); err != nil {
		return storageErr(err, syncErrors.OpStore)
	}
	return nil
}

// PendingActions returns the local edits not yet pushed, oldest first.
func (s *Store) PendingActions(ctx context.Context) ([]actions.Action, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT action FROM pending_actions ORDER BY seq ASC`)
	if err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}
	defer rows.Close()

	var records []string
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, storageErr(err, syncErrors.OpLoad)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, syncErrors.OpLoad)
	}

	if len(records) == 0 {
		return []actions.Action{}, nil
	}
	list, err := codec.NewSerializer(nil).FromJSON([]byte("[" + strings.Join(records, ",") + "]"))
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpLoad, component)
	}
	return list, nil
}

// Commit applies the remote delta to the synchronized records, replaces the
// pending edits of resolved features and advances the version, all in one
// transaction.
func (s *Store) Commit(ctx context.Context, req container.CommitRequest) (err error) {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, syncErrors.OpCommit)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, a := range req.Delta {
		fa, ok := a.(actions.FeatureAction)
		if !ok {
			continue
		}
		var current *actions.Feature
		if current, err = getFeature(ctx, tx, fa.FID()); err != nil {
			return storageErr(err, syncErrors.OpCommit)
		}
		next := current.Apply(fa)
		if next == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM features WHERE fid = ?`, int64(fa.FID()))
		} else {
			err = putFeature(ctx, tx, next)
		}
		if err != nil {
			return storageErr(err, syncErrors.OpCommit)
		}
	}

	for fid, a := range req.Resolutions {
		if _, err = tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE fid = ?`, int64(fid)); err != nil {
			return storageErr(err, syncErrors.OpCommit)
		}
		if a == nil {
			continue
		}
		if err = appendPending(ctx, tx, a); err != nil {
			return storageErr(err, syncErrors.OpCommit)
		}
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE ngw_metadata SET version = ?, sync_date = ? WHERE id = 1`,
		req.Version, nullTime(req.SyncDate))
	if err != nil {
		return storageErr(err, syncErrors.OpCommit)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = syncErrors.NewStorageError(syncErrors.OpCommit, ErrNotInitialized)
		return err
	}

	if err = tx.Commit(); err != nil {
		return storageErr(err, syncErrors.OpCommit)
	}

	s.logger.Debug("Container committed",
		slog.Int("delta", len(req.Delta)),
		slog.Int("resolutions", len(req.Resolutions)),
		slog.Int64("version", req.Version),
	)
	return nil
}

// Stats returns database statistics for monitoring
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
