package database

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/infratracker/internal/model"
)

// GetStats returns store-wide counts.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{ByRAG: make(map[model.RAGStatus]int)}

	for table, dst := range map[string]*int{
		"projects":          &s.Projects,
		"evidence":          &s.Evidence,
		"regions":           &s.Regions,
		"local_authorities": &s.Authorities,
	} {
		row, err := db.queryRow(ctx, db.sb.Select("COUNT(*)").From(table))
		if err != nil {
			return nil, err
		}
		if err := row.Scan(dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
	}

	rows, err := db.query(ctx, db.sb.Select("rag_status", "COUNT(*)").From("projects").GroupBy("rag_status"))
	if err != nil {
		return nil, fmt.Errorf("counting rag statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		s.ByRAG[model.RAGStatus(status)] = n
	}
	return s, rows.Err()
}
