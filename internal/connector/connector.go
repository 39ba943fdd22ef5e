// Package connector pulls supplementary project records from configured
// data sources so they can be merged with discovered projects.
package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/config"
	"github.com/TobiSchelling/infratracker/internal/model"
)

// FetchResult is what one connector produced.
type FetchResult struct {
	Connector string
	Projects  []model.Candidate
	// Filtered counts records dropped by the since cutoff.
	Filtered int
}

// Connector is a named, configuration-driven project source.
type Connector interface {
	Name() string
	FetchProjects(ctx context.Context, since *time.Time) (*FetchResult, error)
}

// FromConfig builds the connectors to run. When names is non-empty only
// those connectors are built, enabled or not; otherwise every enabled one.
func FromConfig(cfgs []config.Connector, names []string) ([]Connector, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var out []Connector
	for _, c := range cfgs {
		if len(want) > 0 {
			if !want[strings.ToLower(c.Name)] {
				continue
			}
			delete(want, strings.ToLower(c.Name))
		} else if !c.IsEnabled() {
			continue
		}

		conn, err := New(c)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}

	for n := range want {
		return nil, fmt.Errorf("unknown connector %q", n)
	}
	return out, nil
}

// New builds a single connector from its configuration.
func New(c config.Connector) (Connector, error) {
	switch strings.ToLower(c.Type) {
	case "", "json", "local", "local-json":
		if c.Path == "" {
			return nil, fmt.Errorf("connector %q: path is required", c.Name)
		}
		return NewLocalJSON(c.Name, c.Path), nil
	case "feed", "rss", "atom":
		src := c.URL
		if src == "" {
			src = c.Path
		}
		if src == "" {
			return nil, fmt.Errorf("connector %q: url or path is required", c.Name)
		}
		return NewFeed(c.Name, src), nil
	default:
		return nil, fmt.Errorf("connector %q: unknown type %q", c.Name, c.Type)
	}
}

// FetchAll runs every connector in order. A failing connector is logged
// and skipped.
func FetchAll(ctx context.Context, connectors []Connector, since *time.Time) []model.Candidate {
	var all []model.Candidate
	for _, c := range connectors {
		res, err := c.FetchProjects(ctx, since)
		if err != nil {
			zap.S().Errorf("Connector %s failed: %v", c.Name(), err)
			continue
		}
		zap.S().Infof("Connector %s: %d projects (%d filtered by cutoff)", c.Name(), len(res.Projects), res.Filtered)
		all = append(all, res.Projects...)
	}
	return all
}

// included applies the since cutoff. Records without a timestamp are
// always included.
func included(updatedAt *time.Time, since *time.Time) bool {
	if since == nil || updatedAt == nil {
		return true
	}
	return !updatedAt.Before(*since)
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return &t
	}
	return nil
}

func attribution(name string) string {
	return model.GatheredByConnector + ":" + name
}
