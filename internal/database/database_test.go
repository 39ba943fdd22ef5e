package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/infratracker/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(SQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(f float64) *float64 { return &f }

func testProject() *model.Project {
	return &model.Project{
		Name:            "Leeds Mass Transit",
		Description:     "Tram network",
		Authority:       "Leeds City Council",
		Region:          "Yorkshire and the Humber",
		RAGStatus:       model.Amber,
		StatusLabel:     "Planning",
		StatusRationale: "Funding confirmed, route undecided.",
		Latitude:        ptr(53.8),
		Longitude:       ptr(-1.55),
		Source:          "AI web search",
		LastUpdated:     time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsertAndGetProject(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := testProject()

	if err := db.UpsertProject(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "leeds-mass-transit" {
		t.Errorf("expected slug id, got %q", p.ID)
	}

	got, err := db.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected project, got nil")
	}
	if got.Region != "Yorkshire and the Humber" || got.Authority != "Leeds City Council" {
		t.Errorf("unexpected region/authority %q %q", got.Region, got.Authority)
	}
	if got.Latitude == nil || *got.Latitude != 53.8 {
		t.Errorf("expected latitude 53.8, got %v", got.Latitude)
	}
	if !got.LastUpdated.Equal(p.LastUpdated) {
		t.Errorf("expected last updated %v, got %v", p.LastUpdated, got.LastUpdated)
	}

	p.RAGStatus = model.Red
	p.Latitude = nil
	if err := db.UpsertProject(ctx, p); err != nil {
		t.Fatalf("unexpected error on update: %v", err)
	}
	got, _ = db.GetProject(ctx, p.ID)
	if got.RAGStatus != model.Red || got.Latitude != nil {
		t.Errorf("expected update to apply, got %s %v", got.RAGStatus, got.Latitude)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Projects != 1 || stats.Regions != 1 || stats.Authorities != 1 || stats.ByRAG[model.Red] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGetMissingProject(t *testing.T) {
	db := openTestDB(t)
	p, err := db.GetProject(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected nil for missing project")
	}
}

func TestExistingTitles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := testProject()
	if err := db.UpsertProject(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	titles, err := db.ExistingTitles(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if titles["leeds mass transit"] != p.ID {
		t.Errorf("expected normalized title lookup, got %v", titles)
	}
}

func TestCreateEvidenceIfAbsent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := testProject()
	if err := db.UpsertProject(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := model.Evidence{
		Title: "Funding confirmed", Summary: "£200m confirmed", Source: "GOV.UK",
		SourceURL: "https://gov.uk/a", EvidenceDate: "2024-03-12", GatheredDate: "2025-05-01",
		GatheredBy: model.GatheredByAI, Sentiment: model.SentimentPositive,
	}
	created, err := db.CreateEvidenceIfAbsent(ctx, p.ID, first)
	if err != nil || !created {
		t.Fatalf("expected creation, got %v %v", created, err)
	}

	dupes := []model.Evidence{
		{Title: "Other", Summary: "Other", SourceURL: "https://gov.uk/a", EvidenceDate: "2024-01-01", GatheredDate: "2025-05-01"},
		{Title: "Funding confirmed", Summary: "Different", EvidenceDate: "2024-01-01", GatheredDate: "2025-05-01"},
		{Title: "Different", Summary: "£200m confirmed", EvidenceDate: "2024-01-01", GatheredDate: "2025-05-01"},
		{Title: "Different again", Source: "https://gov.uk/a", EvidenceDate: "2024-01-01", GatheredDate: "2025-05-01"},
	}
	for i, e := range dupes {
		created, err := db.CreateEvidenceIfAbsent(ctx, p.ID, e)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created {
			t.Errorf("dupe %d: expected OR-match to suppress creation", i)
		}
	}

	created, err = db.CreateEvidenceIfAbsent(ctx, p.ID, model.Evidence{
		Title: "Delay", Summary: "Opening slips", SourceURL: "https://bbc.co.uk/b",
		EvidenceDate: "2024-01-05", GatheredDate: "2025-05-01", Sentiment: model.SentimentNegative,
	})
	if err != nil || !created {
		t.Fatalf("expected creation of distinct item, got %v %v", created, err)
	}

	items, err := db.ListEvidence(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 evidence items, got %d", len(items))
	}
	if items[0].Title != "Delay" {
		t.Errorf("expected oldest first, got %q", items[0].Title)
	}
}

func TestSaveProject(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := testProject()
	p.Evidence = []model.Evidence{
		{Title: "A", Summary: "a", SourceURL: "https://a", EvidenceDate: "2024-01-01", GatheredDate: "2025-01-01"},
		{Title: "B", Summary: "b", SourceURL: "https://b", EvidenceDate: "2024-02-01", GatheredDate: "2025-01-01"},
	}

	n, err := SaveProject(ctx, db, p)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 new evidence rows, got %d %v", n, err)
	}
	n, err = SaveProject(ctx, db, p)
	if err != nil || n != 0 {
		t.Fatalf("expected no new evidence on resave, got %d %v", n, err)
	}
}

func TestListProjectsFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := testProject()
	b := &model.Project{Name: "Cardiff Crossrail", Region: "Wales", RAGStatus: model.Green}
	for _, p := range []*model.Project{a, b} {
		if err := db.UpsertProject(ctx, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, err := db.ListProjects(ctx, ProjectFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 projects, got %d %v", len(all), err)
	}
	green, _ := db.ListProjects(ctx, ProjectFilter{RAGStatus: model.Green})
	if len(green) != 1 || green[0].Name != "Cardiff Crossrail" {
		t.Errorf("unexpected green projects %+v", green)
	}
	wales, _ := db.ListProjects(ctx, ProjectFilter{Region: "Wales"})
	if len(wales) != 1 {
		t.Errorf("expected 1 project in Wales, got %d", len(wales))
	}
	limited, _ := db.ListProjects(ctx, ProjectFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestFindOrCreateRegion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id1, err := db.FindOrCreateRegion(ctx, "North West")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, _ := db.FindOrCreateRegion(ctx, "North West")
	if id1 != id2 || id1 != "north-west" {
		t.Errorf("expected stable id, got %q and %q", id1, id2)
	}
	if id, _ := db.FindOrCreateRegion(ctx, " "); id != "" {
		t.Errorf("expected empty id for blank name, got %q", id)
	}

	authID, err := db.FindOrCreateAuthority(ctx, "Manchester City Council", id1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	auths, _ := db.ListAuthorities(ctx)
	if len(auths) != 1 || auths[0].ID != authID || auths[0].RegionID != id1 {
		t.Errorf("unexpected authorities %+v", auths)
	}
	regions, _ := db.ListRegions(ctx)
	if len(regions) != 1 {
		t.Errorf("expected 1 region, got %d", len(regions))
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := Open(Postgres, ""); err == nil {
		t.Error("expected error for empty postgres DSN")
	}
}
