// Package xmldump streams a MediaWiki XML export dump page by page,
// grounded on
// original_source/src/holocron/wiki_processing/process_wiki_dump.py's
// WikiDumpProcessor (ET.iterparse(events=('end',)) over <page>
// elements, namespace filtering to {0, 14}, and periodic progress
// counters). Go's encoding/xml token decoder gives the same
// constant-memory streaming behavior without loading the whole dump.
package xmldump

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"holocron/internal/contentfilter"
	"holocron/internal/logging"
	"holocron/internal/model"
)

// allowedNamespaces mirrors the original's [0, 14] filter: main content
// pages and category pages. Every other namespace (talk, user, file,
// template, ...) is skipped before it ever reaches the pipeline.
var allowedNamespaces = map[int]bool{0: true, 14: true}

// Counts tallies what a dump pass saw, logged every progressLogInterval
// pages the way the original logs every 10,000 pages processed.
type Counts struct {
	Total           int
	Processed       int
	Canon           int
	Legends         int
	Undetermined    int
	Redirects       int
	Disambiguations int
	Stubs           int
	MetaFiltered    int
	OtherFiltered   int
}

const progressLogInterval = 10000

// page is the subset of a MediaWiki <page> element this pipeline needs.
// encoding/xml matches elements by local name regardless of namespace
// prefix, the same namespace-agnostic matching the original falls back
// to by checking elem.tag.endswith("page").
type page struct {
	Title    string `xml:"title"`
	Ns       int    `xml:"ns"`
	Revision struct {
		ID   string `xml:"id"`
		Text string `xml:"text"`
	} `xml:"revision"`
}

// Processor turns a dump's raw XML into RawArticle values ready for the
// markup normalizer and content filter.
type Processor struct {
	log logging.Logger
}

// New builds a Processor.
func New() *Processor {
	return &Processor{log: logging.WithComponent("xmldump")}
}

// Emit is called once per in-namespace page that parses cleanly.
// Returning an error aborts Process.
type Emit func(ctx context.Context, article model.RawArticle) error

// Process streams r, extracting one RawArticle per <page> in an
// allowed namespace and passing it to emit, in document order. It
// mirrors the original's is_canonical/categories bookkeeping for
// progress reporting only: classification used to gate the pipeline
// happens downstream, in the content filter.
func (p *Processor) Process(ctx context.Context, r io.Reader, emit Emit) (Counts, error) {
	var counts Counts
	dec := xml.NewDecoder(r)

	for {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return counts, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}

		var pg page
		if err := dec.DecodeElement(&pg, &start); err != nil {
			p.log.Error("failed to decode page element", "error", err)
			counts.OtherFiltered++
			continue
		}
		counts.Total++

		if !allowedNamespaces[pg.Ns] {
			continue
		}
		if pg.Title == "" || pg.Revision.ID == "" || pg.Revision.Text == "" {
			continue
		}

		categories := extractCategories(pg.Revision.Text)
		p.tallyClass(&counts, pg.Title, pg.Revision.Text, categories)
		counts.Processed++

		article := model.RawArticle{
			Title:      pg.Title,
			Namespace:  pg.Ns,
			RevisionID: pg.Revision.ID,
			Markup:     pg.Revision.Text,
			Categories: categories,
		}

		if err := emit(ctx, article); err != nil {
			return counts, err
		}

		if counts.Processed%progressLogInterval == 0 {
			p.logProgress(counts)
		}
	}

	p.logProgress(counts)
	return counts, nil
}

func (p *Processor) tallyClass(counts *Counts, title, text string, categories []string) {
	switch contentfilter.Classify(title, text, categories) {
	case model.ContentClassRedirect:
		counts.Redirects++
	case model.ContentClassDisambiguation:
		counts.Disambiguations++
	case model.ContentClassMetaUtility:
		counts.MetaFiltered++
	case model.ContentClassStub:
		counts.Stubs++
	}

	switch contentfilter.Canonicity(text, categories) {
	case model.CanonicityCanon:
		counts.Canon++
	case model.CanonicityLegends:
		counts.Legends++
	default:
		counts.Undetermined++
	}
}

func (p *Processor) logProgress(counts Counts) {
	p.log.Info("dump processing progress",
		"total", counts.Total,
		"processed", counts.Processed,
		"canon", counts.Canon,
		"legends", counts.Legends,
		"undetermined", counts.Undetermined,
		"redirects", counts.Redirects,
		"disambiguations", counts.Disambiguations,
		"stubs", counts.Stubs,
		"meta_filtered", counts.MetaFiltered,
		"other_filtered", counts.OtherFiltered,
	)
}

// extractCategories collects MediaWiki [[Category:Name]] wikilinks, the
// same extraction the original's _extract_categories regex performs.
func extractCategories(text string) []string {
	const prefix = "[[category:"
	lower := strings.ToLower(text)

	var categories []string
	seen := make(map[string]bool)

	start := 0
	for {
		idx := strings.Index(lower[start:], prefix)
		if idx < 0 {
			break
		}
		idx += start
		end := strings.Index(text[idx:], "]]")
		if end < 0 {
			break
		}
		inner := text[idx+len(prefix) : idx+end]
		if pipe := strings.Index(inner, "|"); pipe >= 0 {
			inner = inner[:pipe]
		}
		name := "Category:" + strings.TrimSpace(inner)
		if !seen[name] {
			seen[name] = true
			categories = append(categories, name)
		}
		start = idx + end + 2
	}
	return categories
}
