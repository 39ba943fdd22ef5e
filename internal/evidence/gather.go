// Package evidence collects dated, sourced evidence items for a project
// and enforces the evidence date rules on every item that enters the
// pipeline.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/dedupe"
	"github.com/TobiSchelling/infratracker/internal/llm"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/model"
)

// DefaultMaxItems caps the evidence list when the caller passes zero.
const DefaultMaxItems = 8

const evidencePrompt = `You are researching a UK infrastructure project for a public project tracker.

Project: %s
Description: %s
Area: %s

Search the web for recent news articles, planning documents, council minutes, public consultations, budget announcements and technical updates about this specific project.
Return at most %d evidence items, most significant first.

Respond with ONLY this JSON:
{
    "evidence": [
        {
            "title": "Headline of the source",
            "summary": "One or two sentences on what happened",
            "source": "Publisher or body",
            "sourceUrl": "https://...",
            "evidenceDate": "YYYY-MM-DD",
            "rawText": "Short verbatim excerpt",
            "sentiment": "Positive" | "Neutral" | "Negative",
            "latitude": 53.8,
            "longitude": -1.5,
            "locationDescription": "Where the work is happening",
            "localAuthority": "Council name",
            "region": "UK region"
        }
    ],
    "summary": "One paragraph on the overall state of the project",
    "projectLocation": {
        "latitude": 53.8,
        "longitude": -1.5,
        "description": "Site description",
        "source": "Where the location came from",
        "confidence": "LOW" | "MEDIUM" | "HIGH"
    }
}

evidenceDate must be the date the reported event happened, in strict YYYY-MM-DD format, and never in the future.
Mark delays, cost overruns, cancellations, legal challenges or funding gaps as Negative.
Use null for projectLocation and for any location field you cannot determine.`

// Result is the evidence collected for one project.
type Result struct {
	Evidence        []model.Evidence
	Summary         string
	ProjectLocation *model.Location
	// Failed is set when the response could not be parsed.
	Failed bool
}

// Gatherer asks an LLM with web search for evidence about a project.
type Gatherer struct {
	gen llm.Generator
	now func() time.Time
}

// NewGatherer creates an evidence gatherer.
func NewGatherer(gen llm.Generator) *Gatherer {
	return &Gatherer{gen: gen, now: time.Now}
}

type evidenceResponse struct {
	Evidence []struct {
		Title               string   `json:"title"`
		Summary             string   `json:"summary"`
		Source              string   `json:"source"`
		SourceURL           string   `json:"sourceUrl"`
		EvidenceDate        string   `json:"evidenceDate"`
		RawText             string   `json:"rawText"`
		Sentiment           string   `json:"sentiment"`
		Latitude            *float64 `json:"latitude"`
		Longitude           *float64 `json:"longitude"`
		LocationDescription string   `json:"locationDescription"`
		LocalAuthority      string   `json:"localAuthority"`
		Region              string   `json:"region"`
	} `json:"evidence"`
	Summary         string `json:"summary"`
	ProjectLocation *struct {
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		Description string   `json:"description"`
		Source      string   `json:"source"`
		Confidence  string   `json:"confidence"`
	} `json:"projectLocation"`
}

// Gather collects up to maxItems evidence items for a project. An
// unparseable answer is a soft failure: the result is empty and Failed is
// set. Provider errors that survive recovery are returned.
func (g *Gatherer) Gather(ctx context.Context, title, description, area string, maxItems int) (*Result, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if area == "" {
		area = locale.UKWide
	}

	req := llm.Request{
		Task:      llm.TaskEvidence,
		Prompt:    fmt.Sprintf(evidencePrompt, title, description, area, maxItems),
		WebSearch: true,
		Meta:      map[string]string{"title": title, "locale": area},
	}

	var parsed evidenceResponse
	resp, err := llm.GenerateJSON(ctx, g.gen, "Evidence: "+title, req, &parsed)
	if errors.Is(err, llm.ErrUnparseable) {
		zap.S().Warnf("Evidence response for %q could not be parsed", title)
		return &Result{
			Summary: "Evidence gathering failed: the response could not be parsed.",
			Failed:  true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gathering evidence for %q: %w", title, err)
	}

	today := g.now()
	items := make([]model.Evidence, 0, len(parsed.Evidence))
	for _, e := range parsed.Evidence {
		items = append(items, model.Evidence{
			Title:               e.Title,
			Summary:             e.Summary,
			Source:              e.Source,
			SourceURL:           e.SourceURL,
			EvidenceDate:        e.EvidenceDate,
			RawText:             e.RawText,
			Sentiment:           e.Sentiment,
			Latitude:            e.Latitude,
			Longitude:           e.Longitude,
			LocationDescription: e.LocationDescription,
			LocalAuthority:      e.LocalAuthority,
			Region:              e.Region,
		})
	}
	gatheredBy := model.GatheredByAI
	if resp.Mocked() {
		gatheredBy = model.GatheredByAI + ":mock"
	}
	items = Normalize(items, gatheredBy, today)
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	result := &Result{Evidence: items, Summary: strings.TrimSpace(parsed.Summary)}
	if pl := parsed.ProjectLocation; pl != nil && validCoordinates(pl.Latitude, pl.Longitude) {
		conf := model.ParseConfidence(pl.Confidence)
		if conf == "" {
			conf = model.ConfidenceLow
		}
		result.ProjectLocation = &model.Location{
			Latitude:    *pl.Latitude,
			Longitude:   *pl.Longitude,
			Description: pl.Description,
			Source:      pl.Source,
			Confidence:  conf,
		}
	}

	zap.S().Infof("Gathered %d evidence items for %s", len(items), title)
	return result, nil
}

// Normalize cleans evidence from any origin: drops empty items, applies
// the date fallback chain, validates sentiment, coordinates and region,
// stamps gathered date and attribution where missing, and removes
// duplicates (first seen wins).
func Normalize(items []model.Evidence, gatheredBy string, today time.Time) []model.Evidence {
	gathered := dateOnly(today).Format(DateLayout)
	out := make([]model.Evidence, 0, len(items))
	for _, e := range items {
		e.Title = strings.TrimSpace(e.Title)
		e.Summary = strings.TrimSpace(e.Summary)
		e.Source = strings.TrimSpace(e.Source)
		e.SourceURL = strings.TrimSpace(e.SourceURL)
		if e.Title == "" && e.Summary == "" {
			continue
		}

		date, ok := NormalizeDate(e.EvidenceDate, today, e.Title, e.Summary, e.RawText)
		if !ok {
			zap.S().Warnf("No valid evidence date for %q (got %q), using today", e.Title, e.EvidenceDate)
		}
		e.EvidenceDate = date

		if !ValidateDate(e.GatheredDate, today) {
			e.GatheredDate = gathered
		}
		if e.GatheredBy == "" {
			e.GatheredBy = gatheredBy
		}
		e.Sentiment = normalizeSentiment(e.Sentiment)
		if !validCoordinates(e.Latitude, e.Longitude) {
			e.Latitude, e.Longitude = nil, nil
		}
		if e.Region != "" {
			region, ok := locale.NormalizeRegion(e.Region)
			if !ok {
				zap.S().Warnf("Dropping unknown region %q on evidence %q", e.Region, e.Title)
			}
			e.Region = region
		}
		out = append(out, e)
	}
	return dedupe.Evidence(out)
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return model.SentimentPositive
	case "negative":
		return model.SentimentNegative
	case "neutral":
		return model.SentimentNeutral
	default:
		return ""
	}
}

func validCoordinates(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}
