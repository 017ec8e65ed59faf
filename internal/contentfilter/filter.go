// Package contentfilter classifies MediaWiki pages as redirect,
// disambiguation, meta/utility, stub or content (the hard processing
// gate — only redirect/disambiguation/meta_utility are actually
// dropped, stub proceeds tagged), and separately tags canon/legends
// canonicity as metadata only — never as a filter — per spec §4.2.
package contentfilter

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"holocron/internal/model"
)

// fold is Unicode-aware case folding used for the canonicity keyword
// matching below, instead of strings.ToLower's ASCII-biased mapping,
// since article titles and categories pull from MediaWiki's full
// Unicode character set.
var fold = cases.Fold()

var (
	redirectPattern = regexp.MustCompile(`(?i)^\s*#redirect\s*\[\[`)

	disambigTitlePattern = regexp.MustCompile(`(?i)\(disambiguation\)`)
	disambigPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\{\{(disambig|disambiguation|dab)[|}]`),
		regexp.MustCompile(`(?i)may refer to`),
		regexp.MustCompile(`(?i)disambiguation page`),
	}

	metaUtilityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\{\{(cleanup|delete|speedy|copyvio|copypaste)[|}]`),
		regexp.MustCompile(`(?i)\{\{(merge|split)[|}]`),
		regexp.MustCompile(`(?m)^__(NOTOC|NOEDITSECTION|FORCETOC|NEWSECTIONLINK)__`),
	}

	templateOpenPattern = regexp.MustCompile(`\{\{`)

	importantTemplates = []string{
		"canon", "legends", "infobox", "quote", "citation", "cite",
		"reference", "c", "character", "era", "faction", "location",
		"planet", "species", "vehicle", "weapon", "organization",
		"class", "appearance", "featured", "film", "media", "eras",
	}

	canonPattern = regexp.MustCompile(`(?i)\{\{canon\}\}|\{\{canon article\}\}|\[\[category:canon articles\]\]|\[\[category:.*?canon.*?\]\]`)
	legendsPattern = regexp.MustCompile(`(?i)\{\{legends\}\}|\{\{legends article\}\}|\{\{star wars legends\}\}|\[\[category:legends articles\]\]|\[\[category:.*?legends.*?\]\]`)
	legendsMentionPattern = regexp.MustCompile(`(?i)legends`)

	// disneyEraMarkers are proper nouns that only exist in Disney-canon
	// continuity; their presence without an explicit Legends marker is a
	// soft signal for canon per spec §4.2's heuristic fallback.
	disneyEraMarkers = []string{
		"sequel trilogy", "the mandalorian", "ahsoka (television series)",
		"the bad batch", "andor", "obi-wan kenobi (television series)",
		"rebels", "rogue one", "solo: a star wars story",
	}

	templateRatioThreshold = 0.35
)

// Classify returns the hard-gate content class for title + raw markup
// + the page's extracted categories, per spec §4.2. Stubs are not
// filtered out in the current policy (spec §4.2, "a prior decision");
// they are processed like content and only tagged in metadata.
func Classify(title, rawMarkup string, categories []string) model.ContentClass {
	if redirectPattern.MatchString(rawMarkup) {
		return model.ContentClassRedirect
	}
	if isDisambiguation(title, rawMarkup) {
		return model.ContentClassDisambiguation
	}
	if isMetaUtility(rawMarkup) {
		return model.ContentClassMetaUtility
	}
	if isStub(categories) {
		return model.ContentClassStub
	}
	return model.ContentClassContent
}

// isStub flags pages filed under a "... stub" maintenance category,
// e.g. "Category:Character stubs". Moved here from internal/xmldump so
// both the dump and live-crawl ingest paths tag it identically instead
// of only the dump path's progress counter seeing it.
func isStub(categories []string) bool {
	for _, c := range categories {
		folded := fold.String(c)
		if strings.HasSuffix(folded, "stub") || strings.HasSuffix(folded, "stubs") {
			return true
		}
	}
	return false
}

func isDisambiguation(title, content string) bool {
	if disambigTitlePattern.MatchString(title) {
		return true
	}
	for _, p := range disambigPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

func isMetaUtility(content string) bool {
	for _, p := range metaUtilityPatterns {
		if p.MatchString(content) {
			return true
		}
	}

	totalTemplates := len(templateOpenPattern.FindAllString(content, -1))
	important := countImportantTemplates(content)
	length := len(content)
	if length == 0 {
		return false
	}
	ratio := float64(totalTemplates-important) / float64(length)
	return ratio > templateRatioThreshold
}

func countImportantTemplates(content string) int {
	lower := fold.String(content)
	count := 0
	for _, tmpl := range importantTemplates {
		count += strings.Count(lower, "{{"+tmpl)
	}
	return count
}

// Canonicity scans for explicit canon/legends markers first, falling
// back to heuristics only when no explicit marker is present, per
// spec §4.2's ordering. It is never used as a processing gate.
func Canonicity(content string, categories []string) model.Canonicity {
	if canonPattern.MatchString(content) || categoryMentions(categories, "canon") {
		return model.CanonicityCanon
	}
	if legendsPattern.MatchString(content) || categoryMentions(categories, "legends") {
		return model.CanonicityLegends
	}

	lower := fold.String(content)
	for _, marker := range disneyEraMarkers {
		if strings.Contains(lower, marker) {
			return model.CanonicityCanon
		}
	}

	mentions := len(legendsMentionPattern.FindAllString(content, -1))
	if mentions >= 5 && len(content) < 5000 {
		return model.CanonicityLegends
	}

	return model.CanonicityUnknown
}

func categoryMentions(categories []string, keyword string) bool {
	for _, c := range categories {
		if strings.Contains(fold.String(c), keyword) {
			return true
		}
	}
	return false
}
