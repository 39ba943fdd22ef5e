package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/evidence"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/model"
)

// LocalJSON reads a JSON array of project records from a file.
type LocalJSON struct {
	name string
	path string
	now  func() time.Time
}

// NewLocalJSON creates a file-backed connector.
func NewLocalJSON(name, path string) *LocalJSON {
	if name == "" {
		name = "local"
	}
	return &LocalJSON{name: name, path: path, now: time.Now}
}

func (l *LocalJSON) Name() string { return l.name }

type localRecord struct {
	Title          string           `json:"title"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Status         string           `json:"status"`
	Source         string           `json:"source"`
	URL            string           `json:"url"`
	Latitude       *float64         `json:"latitude"`
	Longitude      *float64         `json:"longitude"`
	LocalAuthority string           `json:"localAuthority"`
	Region         string           `json:"region"`
	UpdatedAt      string           `json:"updatedAt"`
	Evidence       []model.Evidence `json:"evidence"`
}

func (l *LocalJSON) FetchProjects(_ context.Context, since *time.Time) (*FetchResult, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.path, err)
	}

	var records []localRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.path, err)
	}

	res := &FetchResult{Connector: l.name}
	now := l.now()
	for _, r := range records {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = strings.TrimSpace(r.Name)
		}
		if title == "" {
			continue
		}

		updated := parseTimestamp(r.UpdatedAt)
		if !included(updated, since) {
			res.Filtered++
			continue
		}

		region := ""
		if r.Region != "" {
			var ok bool
			if region, ok = locale.NormalizeRegion(r.Region); !ok {
				zap.S().Warnf("Connector %s: unknown region %q on %q", l.name, r.Region, title)
			}
		}
		// Connector evidence always carries the connector marker, whatever the file says.
		by := attribution(l.name)
		items := make([]model.Evidence, len(r.Evidence))
		for i, e := range r.Evidence {
			e.GatheredBy = by
			items[i] = e
		}

		source := r.Source
		if source == "" {
			source = attribution(l.name)
		}

		res.Projects = append(res.Projects, model.Candidate{
			Title:          title,
			Description:    r.Description,
			Status:         r.Status,
			Source:         source,
			URL:            r.URL,
			Latitude:       r.Latitude,
			Longitude:      r.Longitude,
			LocalAuthority: r.LocalAuthority,
			Region:         region,
			UpdatedAt:      updated,
			Evidence:       evidence.Normalize(items, by, now),
		})
	}
	return res, nil
}
