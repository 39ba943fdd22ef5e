package database

import (
	"context"

	"github.com/TobiSchelling/infratracker/internal/model"
)

// Region is a row of the regions table.
type Region struct {
	ID   string
	Name string
}

// Authority is a row of the local_authorities table.
type Authority struct {
	ID       string
	Name     string
	RegionID string
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	RAGStatus model.RAGStatus
	Region    string
	Limit     int
}

// Stats holds store-wide counts.
type Stats struct {
	Projects    int
	Evidence    int
	Regions     int
	Authorities int
	ByRAG       map[model.RAGStatus]int
}

// ProjectRepository persists project status records.
type ProjectRepository interface {
	UpsertProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]model.Project, error)
	// ExistingTitles maps normalized project names to their ids.
	ExistingTitles(ctx context.Context) (map[string]string, error)
}

// EvidenceRepository persists evidence items owned by a project.
type EvidenceRepository interface {
	CreateEvidenceIfAbsent(ctx context.Context, projectID string, e model.Evidence) (bool, error)
	ListEvidence(ctx context.Context, projectID string) ([]model.Evidence, error)
}

// RegionRepository resolves region and local authority names to rows.
type RegionRepository interface {
	FindOrCreateRegion(ctx context.Context, name string) (string, error)
	FindOrCreateAuthority(ctx context.Context, name, regionID string) (string, error)
}

// Store is the full set of repository contracts the pipeline writes through.
type Store interface {
	ProjectRepository
	EvidenceRepository
	RegionRepository
}

var _ Store = (*DB)(nil)
