package database

import (
	"context"
	"testing"

	"github.com/TobiSchelling/infratracker/internal/model"
)

func TestCopy(t *testing.T) {
	src, dst := openTestDB(t), openTestDB(t)
	ctx := context.Background()

	p := testProject()
	p.Evidence = []model.Evidence{
		{Title: "Approved", Summary: "Outline business case approved", SourceURL: "https://example.org/a", EvidenceDate: "2025-01-10"},
		{Title: "Delayed", Summary: "Opening pushed back a year", SourceURL: "https://example.org/b", EvidenceDate: "2025-04-02", Sentiment: model.SentimentNegative},
	}
	if _, err := SaveProject(ctx, src, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := src.FindOrCreateRegion(ctx, "Wales"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := Copy(ctx, src, dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Regions != 2 || r.Authorities != 1 || r.Projects != 1 || r.Evidence != 2 {
		t.Errorf("unexpected copy result %+v", r)
	}

	got, err := dst.GetProject(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("expected copied project, got %v (%v)", got, err)
	}
	if got.Authority != "Leeds City Council" || got.Region != "Yorkshire and the Humber" {
		t.Errorf("unexpected authority/region %q %q", got.Authority, got.Region)
	}

	// Re-running adds nothing.
	r, err = Copy(ctx, src, dst)
	if err != nil {
		t.Fatalf("unexpected error on rerun: %v", err)
	}
	if r.Evidence != 0 {
		t.Errorf("expected no new evidence on rerun, got %d", r.Evidence)
	}
	stats, _ := dst.GetStats(ctx)
	if stats.Projects != 1 || stats.Evidence != 2 || stats.Regions != 2 {
		t.Errorf("unexpected stats after rerun %+v", stats)
	}
}
