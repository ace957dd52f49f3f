package database

// migrationsSQL contains all database migrations.
// Migrations are applied in order by version number.
var migrationsSQL = map[int]string{
	1: migrationV1Profiles,
	2: migrationV2DateFormatAndTimezone,
}

// migrationV1Profiles creates the profile table with the columns the first
// deployment used. Birth dates in this shape carry no layout information.
const migrationV1Profiles = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    city TEXT NOT NULL,
    birth_date TEXT NOT NULL,
    birth_time TEXT NOT NULL,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL
);
`

// migrationV2DateFormatAndTimezone tags every birth date with its layout and
// adds the birth timezone plus audit timestamps.
//
// Rows that existed before this migration are tagged 'legacy' and cannot be
// read until NormalizeLegacyDates rewrites them.
const migrationV2DateFormatAndTimezone = `
ALTER TABLE users ADD COLUMN date_format TEXT NOT NULL DEFAULT 'legacy'
    CHECK (date_format IN ('legacy', 'iso-8601', 'dd/mm/yyyy'));

ALTER TABLE users ADD COLUMN timezone TEXT NOT NULL DEFAULT 'UTC';

-- SQLite rejects non-constant defaults in ADD COLUMN; backfill instead.
ALTER TABLE users ADD COLUMN created_at TEXT NOT NULL DEFAULT '';
ALTER TABLE users ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';

UPDATE users SET created_at = datetime('now') WHERE created_at = '';
UPDATE users SET updated_at = datetime('now') WHERE updated_at = '';

CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
CREATE INDEX IF NOT EXISTS idx_users_date_format ON users(date_format);
`
