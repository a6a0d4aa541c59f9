package storage

const schemaDDL = `
CREATE TABLE IF NOT EXISTS database_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS policies (
	id   TEXT PRIMARY KEY,
	rev  INTEGER NOT NULL,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS zones (
	name             TEXT PRIMARY KEY,
	rev              INTEGER NOT NULL,
	pending_generate INTEGER NOT NULL DEFAULT 0,
	data             BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS key_data (
	zone    TEXT NOT NULL,
	locator TEXT NOT NULL,
	rev     INTEGER NOT NULL,
	data    BLOB NOT NULL,
	PRIMARY KEY (zone, locator)
);

CREATE TABLE IF NOT EXISTS hsm_keys (
	locator TEXT PRIMARY KEY,
	rev     INTEGER NOT NULL,
	data    BLOB NOT NULL
);
`

const schemaVersion = 1
