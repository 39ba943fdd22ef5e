package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// MockProjectCount is the size of the fixed offline discovery list.
const MockProjectCount = 10

var mockProjectTemplates = []struct {
	name, description, status string
}{
	{"Mass Transit System", "New light rail and tram-train network linking the main urban centres.", "Planning"},
	{"Bus Rapid Transit Corridor", "Segregated bus lanes and priority signalling on the busiest radial route.", "Consultation"},
	{"Station Gateway Regeneration", "Redevelopment of the main rail station forecourt and surrounding streets.", "Under construction"},
	{"Strategic Road Junction Upgrade", "Capacity and safety improvements at a congested trunk road junction.", "Approved"},
	{"Full Fibre Rollout", "Gigabit-capable broadband programme for rural and urban premises.", "In delivery"},
	{"Flood Alleviation Scheme", "Flood walls, storage areas and natural flood management along the river.", "Under construction"},
	{"District Heat Network", "Low-carbon heat network serving civic buildings and new housing.", "Feasibility"},
	{"Active Travel Network", "Protected cycle tracks and walking routes connecting town centres.", "Planning"},
	{"Hospital Estate Redevelopment", "Replacement acute hospital buildings on the existing site.", "Business case"},
	{"Water Treatment Works Upgrade", "Expanded treatment capacity and storm overflow reduction.", "Procurement"},
}

// MockProvider answers every request with deterministic canned JSON. It is
// the offline backend used when LLM calls are disabled or the budget is spent.
type MockProvider struct {
	calls atomic.Int64
}

// NewMockProvider creates the offline backend.
func NewMockProvider() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Kind() Kind         { return Mock }
func (m *MockProvider) IsConfigured() bool { return true }
func (m *MockProvider) SetAPIKey(string)   {}

// Calls returns how many requests the mock has served.
func (m *MockProvider) Calls() int64 { return m.calls.Load() }

func (m *MockProvider) Generate(_ context.Context, _ string, req Request) (string, error) {
	m.calls.Add(1)

	var payload any
	switch req.Task {
	case TaskDiscovery:
		payload = mockDiscovery(req.Meta["locale"], req.Meta["region"])
	case TaskEvidence:
		payload = mockEvidence(req.Meta["title"])
	case TaskRAG:
		return string(mockRAG(req.Meta["provisional"])), nil
	case TaskEvaluate:
		payload = map[string]any{
			"status":    mockRAG(req.Meta["provisional"]),
			"rationale": "Offline evaluation based on the sentiment of gathered evidence.",
			"location":  nil,
		}
	default:
		payload = map[string]any{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling mock response: %w", err)
	}
	return string(data), nil
}

func mockRAG(provisional string) string {
	switch provisional {
	case "Red", "Green":
		return provisional
	default:
		return "Amber"
	}
}

func mockDiscovery(locale, region string) map[string]any {
	if locale == "" {
		locale = "UK"
	}
	projects := make([]map[string]any, 0, MockProjectCount)
	for _, t := range mockProjectTemplates {
		projects = append(projects, map[string]any{
			"title":          fmt.Sprintf("%s %s", locale, t.name),
			"description":    t.description,
			"status":         t.status,
			"source":         "Mock data",
			"url":            "",
			"localAuthority": "",
			"region":         region,
		})
	}
	return map[string]any{
		"projects": projects,
		"summary":  fmt.Sprintf("Mock discovery returned %d projects for %s.", len(projects), locale),
	}
}

func mockEvidence(title string) map[string]any {
	if title == "" {
		title = "Project"
	}
	return map[string]any{
		"evidence": []map[string]any{
			{
				"title":        title + " approved by council",
				"summary":      "The scheme received planning approval following public consultation.",
				"source":       "Mock Council Minutes",
				"sourceUrl":    "https://example.org/mock/approval",
				"evidenceDate": "2024-03-12",
				"rawText":      "Members resolved to grant planning permission for the scheme.",
				"sentiment":    "Positive",
			},
			{
				"title":        title + " consultation opens",
				"summary":      "A public consultation on the detailed design opened for eight weeks.",
				"source":       "Mock Local News",
				"sourceUrl":    "https://example.org/mock/consultation",
				"evidenceDate": "2024-06-03",
				"rawText":      "Residents are invited to comment on the proposals until August.",
				"sentiment":    "Neutral",
			},
			{
				"title":        title + " costs rise",
				"summary":      "Updated estimates show the budget has increased and the timetable has slipped.",
				"source":       "Mock Trade Press",
				"sourceUrl":    "https://example.org/mock/costs",
				"evidenceDate": "2025-01-20",
				"rawText":      "The revised cost estimate is significantly above the original business case.",
				"sentiment":    "Negative",
			},
		},
		"summary":         "Mock evidence set.",
		"projectLocation": nil,
	}
}
