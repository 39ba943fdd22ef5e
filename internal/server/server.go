package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/infratracker/internal/database"
	"github.com/TobiSchelling/infratracker/internal/locale"
	"github.com/TobiSchelling/infratracker/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Store is the read side of the durable store the dashboard needs.
type Store interface {
	ListProjects(ctx context.Context, f database.ProjectFilter) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListEvidence(ctx context.Context, projectID string) ([]model.Evidence, error)
	GetStats(ctx context.Context) (*database.Stats, error)
}

// Server is the read-only project dashboard.
type Server struct {
	store   Store
	pages   map[string]*template.Template
	router  *mux.Router
	metrics http.Handler
}

// New creates a new Server. metrics may be nil.
func New(store Store, metrics http.Handler) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(f *float64) string {
			if f == nil {
				return ""
			}
			return strconv.FormatFloat(*f, 'f', 4, 64)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so "content" and "title" don't collide.
	pageNames := []string{"index.html", "project.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	s := &Server{store: store, pages: pages, router: mux.NewRouter(), metrics: metrics}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/projects/{id}", s.handleProject).Methods(http.MethodGet)
	s.router.HandleFunc("/api/projects", s.handleAPIProjects).Methods(http.MethodGet)
	s.router.HandleFunc("/api/projects/{id}", s.handleAPIProject).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
}

// filter reads ?rag= and ?region= from the query string. Unknown values are ignored.
func filter(r *http.Request) database.ProjectFilter {
	var f database.ProjectFilter
	q := r.URL.Query()
	if v := q.Get("rag"); v != "" {
		if status := model.ParseRAG(v); string(status) == v {
			f.RAGStatus = status
		}
	}
	if v := q.Get("region"); v != "" {
		if region, ok := locale.NormalizeRegion(v); ok {
			f.Region = region
		}
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	return f
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	f := filter(r)
	projects, err := s.store.ListProjects(r.Context(), f)
	if err != nil {
		s.fail(w, "listing projects", err)
		return
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.fail(w, "loading stats", err)
		return
	}

	counts := map[string]int{}
	for status, n := range stats.ByRAG {
		counts[string(status)] = n
	}
	label := string(f.RAGStatus)
	if f.Region != "" {
		if label != "" {
			label += " in "
		}
		label += f.Region
	}

	s.render(w, "index.html", map[string]any{
		"Projects": projects,
		"Stats":    stats,
		"Counts":   counts,
		"Filter":   label,
	})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	s.render(w, "project.html", map[string]any{
		"Project":  project,
		"Evidence": project.Evidence,
	})
}

func (s *Server) handleAPIProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), filter(r))
	if err != nil {
		s.fail(w, "listing projects", err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, projects)
}

func (s *Server) handleAPIProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, project)
}

// loadProject fetches the {id} project with its evidence, writing a 404 or
// 500 itself when it cannot.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*model.Project, bool) {
	id := mux.Vars(r)["id"]
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.fail(w, "loading project", err)
		return nil, false
	}
	if project == nil {
		http.NotFound(w, r)
		return nil, false
	}
	evidence, err := s.store.ListEvidence(r.Context(), id)
	if err != nil {
		s.fail(w, "loading evidence", err)
		return nil, false
	}
	project.Evidence = evidence
	return project, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		zap.S().Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.fail(w, "rendering "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	zap.S().Errorf("Error %s: %v", what, err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		zap.S().Errorf("Error encoding response: %v", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the dashboard on the given port, logging each request.
func Serve(ctx context.Context, store Store, metrics http.Handler, port int) error {
	srv, err := New(store, metrics)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(os.Stderr, srv.Handler()),
	}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	zap.S().Infof("Server listening on http://%s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
