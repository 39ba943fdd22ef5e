package database

import "strings"

// Migration represents a single schema migration step, with one DDL
// script per dialect.
type Migration struct {
	Version     int
	Description string
	SQLite      string
	Postgres    string
}

const initialSchema = `
CREATE TABLE IF NOT EXISTS regions (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS local_authorities (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    region_id TEXT REFERENCES regions(id)
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    authority TEXT NOT NULL DEFAULT '',
    local_authority_id TEXT REFERENCES local_authorities(id),
    region_id TEXT REFERENCES regions(id),
    rag_status TEXT NOT NULL DEFAULT 'Amber',
    status_label TEXT NOT NULL DEFAULT '',
    status_rationale TEXT NOT NULL DEFAULT '',
    latitude {{FLOAT}},
    longitude {{FLOAT}},
    location_description TEXT NOT NULL DEFAULT '',
    location_source TEXT NOT NULL DEFAULT '',
    location_confidence TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    title TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    source_url TEXT NOT NULL DEFAULT '',
    evidence_date TEXT NOT NULL,
    gathered_date TEXT NOT NULL,
    gathered_by TEXT NOT NULL DEFAULT '',
    raw_text TEXT NOT NULL DEFAULT '',
    sentiment TEXT NOT NULL DEFAULT '',
    latitude {{FLOAT}},
    longitude {{FLOAT}},
    location_description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_region ON projects(region_id);
CREATE INDEX IF NOT EXISTS idx_projects_rag ON projects(rag_status);
CREATE INDEX IF NOT EXISTS idx_evidence_project ON evidence(project_id);
CREATE INDEX IF NOT EXISTS idx_evidence_date ON evidence(evidence_date);
`

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		SQLite:      strings.ReplaceAll(initialSchema, "{{FLOAT}}", "REAL"),
		Postgres:    strings.ReplaceAll(initialSchema, "{{FLOAT}}", "DOUBLE PRECISION"),
	},
	{
		Version:     2,
		Description: "project name lookup index",
		SQLite:      `CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name);`,
		Postgres:    `CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name);`,
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
