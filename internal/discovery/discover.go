// Package discovery asks an LLM with web search to enumerate candidate
// infrastructure projects, one locale at a time.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/dedupe"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/model"
)

// Themes is the fixed rotation of focus themes used to diversify passes.
var Themes = []string{
	"roads",
	"rail",
	"transit",
	"digital",
	"energy",
	"water",
	"regeneration",
	"public estate",
	"utilities",
}

var themeDescriptions = map[string]string{
	"roads":         "roads, bridges, junctions and highway schemes",
	"rail":          "railway lines, stations and rail electrification",
	"transit":       "trams, light rail, bus rapid transit and active travel",
	"digital":       "broadband, fibre, 5G and digital connectivity",
	"energy":        "power generation, grid, heat networks and renewables",
	"water":         "water supply, wastewater, flood defence and drainage",
	"regeneration":  "town centre regeneration, housing-led and mixed-use development",
	"public estate": "hospitals, schools, prisons and civic buildings",
	"utilities":     "gas, electricity distribution and other utility networks",
}

const discoveryPrompt = `You are compiling a tracker of UK infrastructure projects.

Search the web and list at least %d distinct, real infrastructure projects in %s.
%s
Prefer projects with recent activity: planning decisions, consultations, funding announcements, construction milestones or problems.
%s
Respond with ONLY this JSON:
{
    "projects": [
        {
            "title": "Official project name",
            "description": "One or two sentences on scope",
            "status": "Planning" | "Consultation" | "Approved" | "Under construction" | "Complete" | "Paused" | "Cancelled",
            "source": "Publisher or body",
            "url": "https://...",
            "latitude": 53.8,
            "longitude": -1.5,
            "localAuthority": "Council name",
            "region": "UK region"
        }
    ],
    "summary": "One sentence describing what you found"
}

Use null for latitude/longitude if unknown.`

// Result is what one discovery call produced.
type Result struct {
	Projects []model.Candidate
	Summary  string
	Failed   bool
}

// Discoverer issues single-locale discovery calls.
type Discoverer struct {
	gen llm.Generator
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(gen llm.Generator) *Discoverer {
	return &Discoverer{gen: gen}
}

type discoveryResponse struct {
	Projects []struct {
		Title          string   `json:"title"`
		Description    string   `json:"description"`
		Status         string   `json:"status"`
		Source         string   `json:"source"`
		URL            string   `json:"url"`
		Latitude       *float64 `json:"latitude"`
		Longitude      *float64 `json:"longitude"`
		LocalAuthority string   `json:"localAuthority"`
		Region         string   `json:"region"`
	} `json:"projects"`
	Summary string `json:"summary"`
}

// Discover asks for at least minResults projects in loc, hinting the
// titles to exclude and an optional focus theme. Unknown themes are
// dropped with a warning. An unparseable answer is a soft failure.
func (d *Discoverer) Discover(ctx context.Context, loc locale.Locale, minResults int, exclude []string, focus string) (*Result, error) {
	if minResults <= 0 {
		minResults = 1
	}
	focusDesc := ""
	if focus != "" {
		desc, ok := themeDescriptions[focus]
		if !ok {
			zap.S().Warnf("Unknown focus theme %q, searching without one", focus)
			focus = ""
		} else {
			focusDesc = "Focus on " + desc + "."
		}
	}

	req := llm.Request{
		Task:      llm.TaskDiscovery,
		Prompt:    fmt.Sprintf(discoveryPrompt, minResults, areaName(loc), focusDesc, exclusionText(exclude)),
		WebSearch: true,
		Meta: map[string]string{
			"locale": loc.Name,
			"region": loc.Region,
			"target": strconv.Itoa(minResults),
			"focus":  focus,
		},
	}

	label := "Discovery: " + loc.Name
	if focus != "" {
		label += " (" + focus + ")"
	}

	var parsed discoveryResponse
	if _, err := llm.GenerateJSON(ctx, d.gen, label, req, &parsed); err != nil {
		if errors.Is(err, llm.ErrUnparseable) {
			zap.S().Warnf("%s: response could not be parsed", label)
			return &Result{Summary: "Discovery failed: the response could not be parsed.", Failed: true}, nil
		}
		return nil, fmt.Errorf("discovering projects in %s: %w", loc.Name, err)
	}

	seen := dedupe.NewSet()
	res := &Result{Summary: strings.TrimSpace(parsed.Summary)}
	for _, p := range parsed.Projects {
		title := strings.TrimSpace(p.Title)
		if !seen.Add(title) {
			continue
		}
		region := loc.Region
		if p.Region != "" {
			if r, ok := locale.NormalizeRegion(p.Region); ok {
				region = r
			} else {
				zap.S().Debugf("Ignoring unknown region %q for %q", p.Region, title)
			}
		}
		source := strings.TrimSpace(p.Source)
		if source == "" {
			source = "AI web search"
		}
		res.Projects = append(res.Projects, model.Candidate{
			Title:          title,
			Description:    strings.TrimSpace(p.Description),
			Status:         strings.TrimSpace(p.Status),
			Source:         source,
			URL:            strings.TrimSpace(p.URL),
			Latitude:       p.Latitude,
			Longitude:      p.Longitude,
			LocalAuthority: strings.TrimSpace(p.LocalAuthority),
			Region:         region,
		})
	}
	return res, nil
}

func areaName(loc locale.Locale) string {
	if loc.Region != "" && loc.Region != loc.Name {
		return fmt.Sprintf("%s (%s, UK)", loc.Name, loc.Region)
	}
	return loc.Name + ", UK"
}

func exclusionText(titles []string) string {
	if len(titles) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Do not repeat these already catalogued projects:\n")
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String()
}
