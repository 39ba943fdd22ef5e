package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RAGStatus is the Red/Amber/Green health classification of a project.
type RAGStatus string

const (
	Red   RAGStatus = "Red"
	Amber RAGStatus = "Amber"
	Green RAGStatus = "Green"
)

// ParseRAG folds free text into a RAG status. Anything that mentions
// neither red nor green is Amber.
func ParseRAG(text string) RAGStatus {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "red"):
		return Red
	case strings.Contains(lower, "green"):
		return Green
	default:
		return Amber
	}
}

// Confidence is the tier attached to a best-guess project location.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// ParseConfidence returns the normalized tier, or "" if s is not one.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToUpper(strings.TrimSpace(s))) {
	case ConfidenceLow:
		return ConfidenceLow
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceHigh:
		return ConfidenceHigh
	}
	return ""
}

// Sentiment tags carried on evidence items.
const (
	SentimentPositive = "Positive"
	SentimentNeutral  = "Neutral"
	SentimentNegative = "Negative"
)

// Attribution prefixes for Evidence.GatheredBy.
const (
	GatheredByAI        = "ai"
	GatheredByConnector = "connector"
)

// Candidate is a project surfaced by discovery or a connector, before any
// evidence has been gathered for it.
type Candidate struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status,omitempty"`
	Source         string     `json:"source"`
	URL            string     `json:"url,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	LocalAuthority string     `json:"localAuthority,omitempty"`
	Region         string     `json:"region,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	Evidence       []Evidence `json:"evidence,omitempty"`
}

// Evidence is a single dated, sourced fact about a project.
type Evidence struct {
	ID                  string   `json:"id,omitempty"`
	Title               string   `json:"title"`
	Summary             string   `json:"summary"`
	Source              string   `json:"source"`
	SourceURL           string   `json:"sourceUrl"`
	EvidenceDate        string   `json:"evidenceDate"`
	GatheredDate        string   `json:"gatheredDate"`
	GatheredBy          string   `json:"gatheredBy"`
	RawText             string   `json:"rawText"`
	Sentiment           string   `json:"sentiment,omitempty"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	LocationDescription string   `json:"locationDescription,omitempty"`
	LocalAuthority      string   `json:"localAuthority,omitempty"`
	Region              string   `json:"region,omitempty"`
}

// IsNegative reports whether the item carries a negative sentiment tag.
func (e Evidence) IsNegative() bool {
	return strings.EqualFold(strings.TrimSpace(e.Sentiment), SentimentNegative)
}

// Location is a best-guess geocode for a project.
type Location struct {
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Description string     `json:"description,omitempty"`
	Source      string     `json:"source,omitempty"`
	Confidence  Confidence `json:"confidence,omitempty"`
}

// Project is the persisted status record for one tracked project.
type Project struct {
	ID                  string     `json:"id"`
	Authority           string     `json:"authority"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	RAGStatus           RAGStatus  `json:"ragStatus"`
	StatusLabel         string     `json:"statusLabel,omitempty"`
	StatusRationale     string     `json:"statusRationale,omitempty"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	LocationDescription string     `json:"locationDescription,omitempty"`
	LocationSource      string     `json:"locationSource,omitempty"`
	LocationConfidence  Confidence `json:"locationConfidence,omitempty"`
	Region              string     `json:"region,omitempty"`
	Source              string     `json:"source,omitempty"`
	URL                 string     `json:"url,omitempty"`
	Evidence            []Evidence `json:"evidence"`
	LastUpdated         time.Time  `json:"lastUpdated"`
}

// ApplyLocation copies a location guess onto the project.
func (p *Project) ApplyLocation(loc *Location) {
	if loc == nil {
		return
	}
	lat, lng := loc.Latitude, loc.Longitude
	p.Latitude = &lat
	p.Longitude = &lng
	p.LocationDescription = loc.Description
	p.LocationSource = loc.Source
	p.LocationConfidence = loc.Confidence
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 80

// Slugify derives a stable project id from a title. Slugs longer than
// maxSlugLen are cut and suffixed with a hash of the full slug, so titles
// sharing a long prefix keep distinct ids.
func Slugify(title string) string {
	s := strings.ToLower(strings.ReplaceAll(title, "&", " and "))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte(s)).String()[:8]
		s = strings.TrimRight(s[:maxSlugLen-len(sum)-1], "-") + "-" + sum
	}
	if s == "" {
		return "project"
	}
	return s
}
