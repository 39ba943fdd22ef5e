package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/TobiSchelling/infratracker/internal/model"
)

// CreateEvidenceIfAbsent stores e under projectID unless the project already
// holds an item matching on any of: source URL, source given as a URL,
// title or summary. Reports whether a row was created.
func (db *DB) CreateEvidenceIfAbsent(ctx context.Context, projectID string, e model.Evidence) (bool, error) {
	var match sq.Or
	if v := strings.TrimSpace(e.SourceURL); v != "" {
		match = append(match, sq.Eq{"source_url": v})
	}
	if v := strings.TrimSpace(e.Source); strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		match = append(match, sq.Eq{"source_url": v})
	}
	if v := strings.TrimSpace(e.Title); v != "" {
		match = append(match, sq.Eq{"title": v})
	}
	if v := strings.TrimSpace(e.Summary); v != "" {
		match = append(match, sq.Eq{"summary": v})
	}

	if len(match) > 0 {
		row, err := db.queryRow(ctx, db.sb.Select("id").From("evidence").
			Where(sq.Eq{"project_id": projectID}).
			Where(match).
			Limit(1))
		if err != nil {
			return false, err
		}
		var id string
		err = row.Scan(&id)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("checking evidence: %w", err)
		}
	}

	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := db.exec(ctx, db.sb.Insert("evidence").
		Columns("id", "project_id", "title", "summary", "source", "source_url",
			"evidence_date", "gathered_date", "gathered_by", "raw_text", "sentiment",
			"latitude", "longitude", "location_description", "created_at").
		Values(id, projectID, strings.TrimSpace(e.Title), strings.TrimSpace(e.Summary), e.Source, strings.TrimSpace(e.SourceURL),
			e.EvidenceDate, e.GatheredDate, e.GatheredBy, e.RawText, e.Sentiment,
			nullFloat(e.Latitude), nullFloat(e.Longitude), e.LocationDescription,
			time.Now().UTC().Format(time.RFC3339)))
	if err != nil {
		return false, fmt.Errorf("inserting evidence for %s: %w", projectID, err)
	}
	return true, nil
}

// ListEvidence returns a project's evidence, oldest first.
func (db *DB) ListEvidence(ctx context.Context, projectID string) ([]model.Evidence, error) {
	rows, err := db.query(ctx, db.sb.Select(
		"id", "title", "summary", "source", "source_url", "evidence_date", "gathered_date",
		"gathered_by", "raw_text", "sentiment", "latitude", "longitude", "location_description").
		From("evidence").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("evidence_date", "created_at"))
	if err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	defer rows.Close()

	var items []model.Evidence
	for rows.Next() {
		var e model.Evidence
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &e.Source, &e.SourceURL, &e.EvidenceDate,
			&e.GatheredDate, &e.GatheredBy, &e.RawText, &e.Sentiment, &lat, &lng, &e.LocationDescription); err != nil {
			return nil, err
		}
		e.Latitude = floatPtr(lat)
		e.Longitude = floatPtr(lng)
		items = append(items, e)
	}
	return items, rows.Err()
}
