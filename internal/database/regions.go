package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/infratracker/internal/model"
)

// FindOrCreateRegion returns the id of the named region, creating it if
// needed. An empty name yields an empty id.
func (db *DB) FindOrCreateRegion(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	id, err := db.lookupID(ctx, "regions", name)
	if err != nil || id != "" {
		return id, err
	}

	id = model.Slugify(name)
	err = db.exec(ctx, db.sb.Insert("regions").
		Columns("id", "name").
		Values(id, name).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return "", fmt.Errorf("inserting region %q: %w", name, err)
	}
	return id, nil
}

// FindOrCreateAuthority returns the id of the named local authority,
// creating it under regionID if needed.
func (db *DB) FindOrCreateAuthority(ctx context.Context, name, regionID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	id, err := db.lookupID(ctx, "local_authorities", name)
	if err != nil || id != "" {
		return id, err
	}

	id = model.Slugify(name)
	err = db.exec(ctx, db.sb.Insert("local_authorities").
		Columns("id", "name", "region_id").
		Values(id, name, nullString(regionID)).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return "", fmt.Errorf("inserting local authority %q: %w", name, err)
	}
	return id, nil
}

// ListRegions returns every region.
func (db *DB) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := db.query(ctx, db.sb.Select("id", "name").From("regions").OrderBy("name"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		var r Region
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// ListAuthorities returns every local authority.
func (db *DB) ListAuthorities(ctx context.Context) ([]Authority, error) {
	rows, err := db.query(ctx, db.sb.Select("id", "name", "region_id").From("local_authorities").OrderBy("name"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Authority
	for rows.Next() {
		var a Authority
		var regionID sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &regionID); err != nil {
			return nil, err
		}
		a.RegionID = regionID.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) lookupID(ctx context.Context, table, name string) (string, error) {
	row, err := db.queryRow(ctx, db.sb.Select("id").From(table).Where(sq.Eq{"name": name}))
	if err != nil {
		return "", err
	}
	var id string
	err = row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up %s %q: %w", table, name, err)
	}
	return id, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
