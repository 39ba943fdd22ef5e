// Package staging writes batch results to reviewable JSON snapshots and
// commits them to the durable store without creating duplicates.
package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/database"
	"github.com/TobiSchelling/infratracker/internal/dedupe"
	"github.com/TobiSchelling/infratracker/internal/evidence"
	"github.com/TobiSchelling/infratracker/internal/model"
)

const filePrefix = "stage-"

// Payload is the at-rest shape of a staged batch.
type Payload struct {
	CreatedAt time.Time       `json:"createdAt"`
	Source    string          `json:"source"`
	Projects  []model.Project `json:"projects"`
}

// CommitResult holds the results of a commit run.
type CommitResult struct {
	Files     int
	Committed int
	Skipped   int
	Evidence  int
	Errors    int
}

// Stager owns one staging directory.
type Stager struct {
	dir string
	now func() time.Time
}

// NewStager creates a stager writing to dir.
func NewStager(dir string) *Stager {
	return &Stager{dir: dir, now: time.Now}
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// Stage writes projects to a new timestamped file and returns its path.
// The durable store is not touched.
func (s *Stager) Stage(projects []model.Project, source string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}

	created := s.now().UTC()
	payload := Payload{CreatedAt: created, Source: source, Projects: projects}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding staged batch: %w", err)
	}

	path := filepath.Join(s.dir, FileName(created))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing staged batch: %w", err)
	}
	zap.S().Infof("Staged %d projects from %s to %s", len(projects), source, path)
	return path, nil
}

// FileName is stage-<ISO timestamp with colons replaced by dashes>.json.
func FileName(t time.Time) string {
	ts := strings.ReplaceAll(t.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
	return filePrefix + ts + ".json"
}

// List returns the staged files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading staging directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Load reads one staged file.
func Load(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &p, nil
}

// commitNow is the reference date for staged evidence validation.
var commitNow = time.Now

// Commit writes staged projects to the store. A project is skipped when an
// equivalent title was already committed in this batch or already exists
// in the store; in the latter case it adopts the stored id and only its
// new evidence is attached. Re-running on the same files commits nothing.
// Staged evidence goes through the same date and attribution checks as
// freshly gathered evidence, since staged files may be edited by hand.
func Commit(ctx context.Context, store database.Store, files []string) (*CommitResult, error) {
	existing, err := store.ExistingTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing titles: %w", err)
	}

	r := &CommitResult{}
	batch := dedupe.NewSet()
	for _, file := range files {
		payload, err := Load(file)
		if err != nil {
			zap.S().Errorf("Skipping staged file: %v", err)
			r.Errors++
			continue
		}
		r.Files++

		for i := range payload.Projects {
			p := &payload.Projects[i]
			p.Evidence = evidence.Normalize(p.Evidence, model.GatheredByAI, commitNow())
			key := dedupe.NormalizeTitle(p.Name)
			if !batch.Add(p.Name) {
				r.Skipped++
				continue
			}

			if id, ok := existing[key]; ok {
				p.ID = id
				n, err := attachEvidence(ctx, store, p)
				if err != nil {
					zap.S().Errorf("Attaching evidence to %s: %v", p.Name, err)
					r.Errors++
				}
				r.Evidence += n
				r.Skipped++
				continue
			}

			n, err := database.SaveProject(ctx, store, p)
			r.Evidence += n
			if err != nil {
				zap.S().Errorf("Committing %s: %v", p.Name, err)
				r.Errors++
				continue
			}
			existing[key] = p.ID
			r.Committed++
		}
		zap.S().Infof("Committed %s", filepath.Base(file))
	}

	zap.S().Infof("Commit complete: %d committed, %d skipped, %d new evidence, %d errors",
		r.Committed, r.Skipped, r.Evidence, r.Errors)
	return r, nil
}

func attachEvidence(ctx context.Context, store database.EvidenceRepository, p *model.Project) (int, error) {
	created := 0
	for _, e := range p.Evidence {
		ok, err := store.CreateEvidenceIfAbsent(ctx, p.ID, e)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
