// Package the961 implements the961.com: a sitemap-addressed source whose
// article metadata lives in the yoast schema-graph JSON embedded in each
// page.
package the961

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jswain/newsharvest/internal/harvest"
)

// Source is the canonical name used in batch filenames, logs and metrics.
const Source = "the961"

// schemaNode is one entry of the yoast @graph array. @type is a string or
// an array of strings depending on the page.
type schemaNode struct {
	Type          any    `json:"@type"`
	InLanguage    string `json:"inLanguage"`
	DatePublished string `json:"datePublished"`
	DateModified  string `json:"dateModified"`
	Headline      string `json:"headline"`
}

type schemaGraph struct {
	Graph []schemaNode `json:"@graph"`
}

// Extractor maps the961.com pages onto Records.
type Extractor struct{}

// NewExtractor builds an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract implements pipeline.Extractor. Every field is validated against
// the schema graph; any missing piece is an extraction failure the pipeline
// degrades per its soft-fail policy.
func (e *Extractor) Extract(doc *goquery.Document, url string) (harvest.Record, error) {
	node, err := articleNode(doc)
	if err != nil {
		return harvest.Record{}, fmt.Errorf("article %s: %w", url, err)
	}

	if node.InLanguage != "en-US" {
		return harvest.Record{}, fmt.Errorf("article %s: inLanguage %q is not en-US", url, node.InLanguage)
	}

	published, err := parseSchemaTime(node.DatePublished)
	if err != nil {
		return harvest.Record{}, fmt.Errorf("article %s: datePublished: %w", url, err)
	}
	modified, err := parseSchemaTime(node.DateModified)
	if err != nil {
		return harvest.Record{}, fmt.Errorf("article %s: dateModified: %w", url, err)
	}
	if node.Headline == "" {
		return harvest.Record{}, fmt.Errorf("article %s: no headline in schema", url)
	}

	modTime := harvest.NewTime(modified)
	record := harvest.Record{
		Language:  harvest.LanguageEnglish,
		Title:     html.UnescapeString(node.Headline),
		Published: harvest.NewTime(published),
		Modified:  &modTime,
	}

	body := doc.Find("div.body-color").First()
	if body.Length() == 0 {
		return harvest.Record{}, fmt.Errorf("article %s: no article body", url)
	}
	var paragraphs []string
	body.ChildrenFiltered("p").Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, s.Text())
	})
	record.Text = strings.Join(paragraphs, " ")

	return record, nil
}

// articleNode pulls the Article entry out of the page's schema graph.
func articleNode(doc *goquery.Document) (schemaNode, error) {
	raw := doc.Find("script.yoast-schema-graph").First().Text()
	if strings.TrimSpace(raw) == "" {
		return schemaNode{}, fmt.Errorf("no schema graph")
	}
	var graph schemaGraph
	if err := json.Unmarshal([]byte(raw), &graph); err != nil {
		return schemaNode{}, fmt.Errorf("decode schema graph: %w", err)
	}
	for _, node := range graph.Graph {
		if isArticleType(node.Type) {
			return node, nil
		}
	}
	return schemaNode{}, fmt.Errorf("no Article node in schema graph")
}

func isArticleType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.Contains(v, "Article")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.Contains(s, "Article") {
				return true
			}
		}
	}
	return false
}

// parseSchemaTime parses the second-precision, colon-offset timestamps the
// schema graph carries.
func parseSchemaTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	for _, layout := range []string{"2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05-0700"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
