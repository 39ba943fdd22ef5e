package connector

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/infratracker/internal/evidence"
	"github.com/TobiSchelling/infratracker/internal/model"
)

const maxPerFeed = 50

// Feed turns RSS/Atom items into project candidates, each carrying the
// item itself as one evidence entry.
type Feed struct {
	name   string
	source string
	parser *gofeed.Parser
	now    func() time.Time
}

// NewFeed creates a feed connector; source is a URL or a local file path.
func NewFeed(name, source string) *Feed {
	if name == "" {
		name = "feed"
	}
	return &Feed{name: name, source: source, parser: gofeed.NewParser(), now: time.Now}
}

func (f *Feed) Name() string { return f.name }

func (f *Feed) FetchProjects(ctx context.Context, since *time.Time) (*FetchResult, error) {
	feed, err := f.parse(ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", f.source, err)
	}

	publisher := strings.TrimSpace(feed.Title)
	if publisher == "" {
		publisher = f.name
	}

	res := &FetchResult{Connector: f.name}
	now := f.now()
	for _, item := range feed.Items {
		if len(res.Projects) >= maxPerFeed {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		link := item.Link
		if link == "" {
			link = item.GUID
		}

		updated := item.UpdatedParsed
		if updated == nil {
			updated = item.PublishedParsed
		}
		if !included(updated, since) {
			res.Filtered++
			continue
		}

		content := item.Description
		if content == "" {
			content = item.Content
		}
		content = stripHTML(content)

		var date string
		if item.PublishedParsed != nil {
			date = item.PublishedParsed.Format(evidence.DateLayout)
		} else if updated != nil {
			date = updated.Format(evidence.DateLayout)
		}

		res.Projects = append(res.Projects, model.Candidate{
			Title:       title,
			Description: content,
			Source:      publisher,
			URL:         link,
			UpdatedAt:   updated,
			Evidence: evidence.Normalize([]model.Evidence{{
				Title:        title,
				Summary:      truncate(content, 500),
				Source:       publisher,
				SourceURL:    link,
				EvidenceDate: date,
				RawText:      truncate(content, 2000),
			}}, attribution(f.name), now),
		})
	}
	return res, nil
}

func (f *Feed) parse(ctx context.Context) (*gofeed.Feed, error) {
	if u, err := url.Parse(f.source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.parser.ParseURLWithContext(f.source, ctx)
	}
	file, err := os.Open(f.source)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return f.parser.Parse(file)
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			result.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	s := strings.NewReplacer(
		"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'",
	).Replace(result.String())
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
