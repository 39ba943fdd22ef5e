package dedupe

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/TobiSchelling/infratracker/internal/model"
)

func TestNormalizeTitle(t *testing.T) {
	a := NormalizeTitle("Leeds Public Transport Investment Programme")
	b := NormalizeTitle("leeds  public transport investment programme!!")
	c := NormalizeTitle("Leeds Public Transport Investment Programme Phase 2")

	if a != b {
		t.Errorf("expected %q == %q", a, b)
	}
	if a == c {
		t.Errorf("expected %q != %q", a, c)
	}
	if got := NormalizeTitle("  Road & Rail  "); got != "road and rail" {
		t.Errorf("expected 'road and rail', got %q", got)
	}
	if got := NormalizeTitle("A1(M)/A66 -- junction"); got != "a1 m a66 junction" {
		t.Errorf("unexpected normalization %q", got)
	}
}

func TestMergeCandidatesConnectorFirst(t *testing.T) {
	connector := []model.Candidate{
		{Title: "Leeds Station Gateway", Source: "connector:local"},
	}
	discovered := []model.Candidate{
		{Title: "leeds station gateway!", Source: "AI"},
		{Title: "Bradford Interchange", Source: "AI"},
		{Title: "Bradford  Interchange", Source: "AI"},
	}

	merged := MergeCandidates(connector, discovered)

	var got []string
	for _, c := range merged {
		got = append(got, c.Title+"|"+c.Source)
	}
	want := []string{"Leeds Station Gateway|connector:local", "Bradford Interchange|AI"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestSet(t *testing.T) {
	s := NewSet("Flood Scheme")
	if !s.Has("flood scheme.") {
		t.Error("expected normalized lookup to match")
	}
	if s.Add("FLOOD SCHEME") {
		t.Error("expected duplicate add to report false")
	}
	if s.Add("") {
		t.Error("expected empty title to be rejected")
	}
	if !s.Add("Heat Network") {
		t.Error("expected new title to be added")
	}
}

func TestEvidenceFirstSeenWins(t *testing.T) {
	items := []model.Evidence{
		{Title: "Approved", Summary: "Council approval", Source: "BBC", SourceURL: "https://a", RawText: "first"},
		{Title: "approved", Summary: "Council approval ", Source: "bbc", SourceURL: "https://a", RawText: "second"},
		{Title: "Approved", Summary: "Council approval", Source: "BBC", SourceURL: "https://b"},
	}

	got := Evidence(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].RawText != "first" {
		t.Errorf("expected first occurrence to win, got %q", got[0].RawText)
	}
	if got[1].SourceURL != "https://b" {
		t.Errorf("expected distinct url to survive, got %q", got[1].SourceURL)
	}
}
