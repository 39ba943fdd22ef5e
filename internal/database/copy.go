package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CopyResult holds the counts of a store-to-store copy.
type CopyResult struct {
	Regions     int
	Authorities int
	Projects    int
	Evidence    int
}

// Copy replicates every region, local authority, project and evidence row
// from src into dst. Upserts and create-if-absent make it safe to re-run.
func Copy(ctx context.Context, src *DB, dst Store) (*CopyResult, error) {
	r := &CopyResult{}

	regions, err := src.ListRegions(ctx)
	if err != nil {
		return nil, err
	}
	regionIDs := make(map[string]string, len(regions))
	for _, reg := range regions {
		id, err := dst.FindOrCreateRegion(ctx, reg.Name)
		if err != nil {
			return r, err
		}
		regionIDs[reg.ID] = id
		r.Regions++
	}

	authorities, err := src.ListAuthorities(ctx)
	if err != nil {
		return r, err
	}
	for _, a := range authorities {
		if _, err := dst.FindOrCreateAuthority(ctx, a.Name, regionIDs[a.RegionID]); err != nil {
			return r, err
		}
		r.Authorities++
	}

	projects, err := src.ListProjects(ctx, ProjectFilter{})
	if err != nil {
		return r, err
	}
	for i := range projects {
		p := &projects[i]
		p.Evidence, err = src.ListEvidence(ctx, p.ID)
		if err != nil {
			return r, err
		}
		n, err := SaveProject(ctx, dst, p)
		if err != nil {
			return r, fmt.Errorf("copying project %s: %w", p.ID, err)
		}
		r.Projects++
		r.Evidence += n
	}

	zap.S().Infof("Copied %d regions, %d authorities, %d projects, %d new evidence rows",
		r.Regions, r.Authorities, r.Projects, r.Evidence)
	return r, nil
}
