package sqlite

// schemaDDL creates the container tables if they do not exist.
//
//	ngw_metadata     single row binding the container to an NGW layer
//	ngw_fields       remote schema cached at creation
//	layer_fields     local columns, compared against ngw_fields before a sync
//	features         last synchronized record per feature
//	pending_actions  local edits not yet pushed, in edit order
const schemaDDL = `
CREATE TABLE IF NOT EXISTS ngw_metadata (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    connection_id   TEXT NOT NULL,
    resource_id     INTEGER NOT NULL,
    layer_name      TEXT NOT NULL,
    epoch           INTEGER NOT NULL,
    version         INTEGER NOT NULL,
    geometry_type   TEXT NOT NULL,
    srs_id          INTEGER NOT NULL,
    sync_date       TIMESTAMP
);
CREATE TABLE IF NOT EXISTS ngw_fields (
    attribute       INTEGER PRIMARY KEY,
    ngw_id          INTEGER NOT NULL UNIQUE,
    keyname         TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    datatype        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS layer_fields (
    attribute       INTEGER PRIMARY KEY,
    keyname         TEXT NOT NULL,
    datatype        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS features (
    fid             INTEGER PRIMARY KEY,
    attributes      TEXT NOT NULL,
    geometry        TEXT
);
CREATE TABLE IF NOT EXISTS pending_actions (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    fid             INTEGER NOT NULL,
    action          TEXT NOT NULL,
    created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_pending_fid ON pending_actions (fid);
`
