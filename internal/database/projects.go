package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/infratracker/internal/dedupe"
	"github.com/TobiSchelling/infratracker/internal/model"
)

var projectColumns = []string{
	"p.id", "p.name", "p.description", "p.authority", "COALESCE(r.name, '')",
	"p.rag_status", "p.status_label", "p.status_rationale",
	"p.latitude", "p.longitude", "p.location_description", "p.location_source", "p.location_confidence",
	"p.source", "p.url", "p.last_updated",
}

var upsertColumns = []string{
	"name", "description", "authority", "local_authority_id", "region_id",
	"rag_status", "status_label", "status_rationale",
	"latitude", "longitude", "location_description", "location_source", "location_confidence",
	"source", "url", "last_updated",
}

// UpsertProject inserts or updates a project keyed by id. A missing id is
// derived from the name. Region and authority rows are created on demand.
func (db *DB) UpsertProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = model.Slugify(p.Name)
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now().UTC()
	}
	if p.RAGStatus == "" {
		p.RAGStatus = model.Amber
	}

	regionID, err := db.FindOrCreateRegion(ctx, p.Region)
	if err != nil {
		return err
	}
	authorityID, err := db.FindOrCreateAuthority(ctx, p.Authority, regionID)
	if err != nil {
		return err
	}

	suffix := "ON CONFLICT (id) DO UPDATE SET "
	for i, c := range upsertColumns {
		if i > 0 {
			suffix += ", "
		}
		suffix += c + " = excluded." + c
	}

	updated := p.LastUpdated.UTC().Format(time.RFC3339)
	err = db.exec(ctx, db.sb.Insert("projects").
		Columns(append([]string{"id"}, append(upsertColumns, "created_at")...)...).
		Values(
			p.ID, p.Name, p.Description, p.Authority, nullString(authorityID), nullString(regionID),
			string(p.RAGStatus), p.StatusLabel, p.StatusRationale,
			nullFloat(p.Latitude), nullFloat(p.Longitude), p.LocationDescription, p.LocationSource, string(p.LocationConfidence),
			p.Source, p.URL, updated, updated,
		).
		Suffix(suffix))
	if err != nil {
		return fmt.Errorf("upserting project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject returns a project with its evidence, or nil if not found.
func (db *DB) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row, err := db.queryRow(ctx, db.selectProjects().Where(sq.Eq{"p.id": id}))
	if err != nil {
		return nil, err
	}
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project %s: %w", id, err)
	}

	if p.Evidence, err = db.ListEvidence(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects returns projects, most recently updated first, without evidence.
func (db *DB) ListProjects(ctx context.Context, f ProjectFilter) ([]model.Project, error) {
	q := db.selectProjects().OrderBy("p.last_updated DESC", "p.name")
	if f.RAGStatus != "" {
		q = q.Where(sq.Eq{"p.rag_status": string(f.RAGStatus)})
	}
	if f.Region != "" {
		q = q.Where(sq.Eq{"r.name": f.Region})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	rows, err := db.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// ExistingTitles maps normalized project names to ids.
func (db *DB) ExistingTitles(ctx context.Context) (map[string]string, error) {
	rows, err := db.query(ctx, db.sb.Select("id", "name").From("projects"))
	if err != nil {
		return nil, fmt.Errorf("listing project titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		key := dedupe.NormalizeTitle(name)
		if _, ok := titles[key]; !ok {
			titles[key] = id
		}
	}
	return titles, rows.Err()
}

func (db *DB) selectProjects() sq.SelectBuilder {
	return db.sb.Select(projectColumns...).
		From("projects p").
		LeftJoin("regions r ON r.id = p.region_id")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*model.Project, error) {
	var p model.Project
	var rag, conf, updated string
	var lat, lng sql.NullFloat64
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Authority, &p.Region,
		&rag, &p.StatusLabel, &p.StatusRationale,
		&lat, &lng, &p.LocationDescription, &p.LocationSource, &conf,
		&p.Source, &p.URL, &updated); err != nil {
		return nil, err
	}
	p.RAGStatus = model.RAGStatus(rag)
	p.LocationConfidence = model.Confidence(conf)
	p.Latitude = floatPtr(lat)
	p.Longitude = floatPtr(lng)
	p.LastUpdated, _ = time.Parse(time.RFC3339, updated)
	return &p, nil
}

// SaveProject upserts p and attaches its evidence create-if-absent,
// returning how many evidence rows were new.
func SaveProject(ctx context.Context, s Store, p *model.Project) (int, error) {
	if err := s.UpsertProject(ctx, p); err != nil {
		return 0, err
	}
	created := 0
	for _, e := range p.Evidence {
		ok, err := s.CreateEvidenceIfAbsent(ctx, p.ID, e)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
