// Package markup converts MediaWiki markup to clean plain text while
// preserving structure (section headers, lists) well enough for
// downstream chunking. It is a fixed, ordered pipeline of regex passes,
// not a full wiki parser — the same approach the system it's grounded on
// takes, and matching spec's "never contains {{, [[, <ref>, or wiki table
// delimiters" contract without building a parse tree.
package markup

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	commentPattern    = regexp.MustCompile(`(?s)<!--.*?-->`)
	refPattern        = regexp.MustCompile(`(?si)<ref[^>]*?(/>|>.*?</ref>)`)
	templatePattern   = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	internalLinkRe    = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	externalLinkRe    = regexp.MustCompile(`\[(?:https?|ftp)://[^\[\]\s]+\s+([^\]]+)\]`)
	filePattern       = regexp.MustCompile(`(?i)\[\[(File|Image):[^\]]+\]\]`)
	categoryPattern   = regexp.MustCompile(`(?i)\[\[Category:[^\]]+\]\]`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	boldItalicPattern = regexp.MustCompile(`'{2,5}`)
	sectionPattern    = regexp.MustCompile(`^(=+)\s*(.*?)\s*=+$`)
	listPattern       = regexp.MustCompile(`^[*#:;]+\s*`)
	tablePattern      = regexp.MustCompile(`(?s)\{\|.*?\|\}`)
	tableCellPattern  = regexp.MustCompile(`\|\s*([^|\n\[\]{}]+)`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe   = regexp.MustCompile(`[ \t]+\n`)

	// skipTemplates are maintenance/citation templates collapsed to
	// nothing rather than having an argument extracted.
	skipTemplates = []string{"cite", "ref", "dead link", "citation needed", "clarify", "fact"}
)

// Normalize converts MediaWiki markup to plain text following the
// ordered pass list from spec §4.1. It never panics or returns an error:
// unknown constructs fall through unchanged.
func Normalize(wikiText string) string {
	text := wikiText

	text = stripCommentsAndRefs(text)
	text = collapseTemplates(text)
	text = resolveLinks(text)
	text = stripFilesAndCategories(text)
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = stripBoldItalic(text)
	text = formatSections(text)
	text = formatLists(text)
	text = extractTableCells(text)
	text = cleanWhitespace(text)

	return text
}

func stripCommentsAndRefs(text string) string {
	text = commentPattern.ReplaceAllString(text, "")
	text = refPattern.ReplaceAllString(text, "")
	return text
}

// collapseTemplates applies the innermost-first fixpoint collapse: a
// template body containing no further "{{" is resolved on each pass,
// which naturally unwinds nested templates from the inside out since
// the regex never matches across unbalanced braces.
func collapseTemplates(text string) string {
	const maxPasses = 50 // guards against pathological malformed input
	for i := 0; i < maxPasses; i++ {
		if !templatePattern.MatchString(text) {
			break
		}
		next := templatePattern.ReplaceAllStringFunc(text, resolveTemplate)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func resolveTemplate(match string) string {
	inner := templatePattern.FindStringSubmatch(match)
	if len(inner) < 2 {
		return ""
	}
	content := inner[1]
	lower := strings.ToLower(content)
	for _, skip := range skipTemplates {
		if strings.Contains(lower, skip) {
			return ""
		}
	}

	parts := strings.Split(content, "|")
	if len(parts) <= 1 {
		return ""
	}
	for i := len(parts) - 1; i >= 1; i-- {
		p := strings.TrimSpace(parts[i])
		if p != "" && !strings.Contains(p, "=") {
			return p
		}
	}
	return ""
}

func resolveLinks(text string) string {
	text = internalLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		if filePattern.MatchString(m) || categoryPattern.MatchString(m) {
			return m // removed whole by stripFilesAndCategories
		}
		inner := internalLinkRe.FindStringSubmatch(m)[1]
		if idx := strings.LastIndex(inner, "|"); idx >= 0 {
			return inner[idx+1:]
		}
		return inner
	})
	text = externalLinkRe.ReplaceAllString(text, "$1")
	return text
}

func stripFilesAndCategories(text string) string {
	text = filePattern.ReplaceAllString(text, "")
	text = categoryPattern.ReplaceAllString(text, "")
	return text
}

func stripBoldItalic(text string) string {
	return boldItalicPattern.ReplaceAllString(text, "")
}

func formatSections(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		m := sectionPattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		level := len(m[1])
		title := strings.TrimSpace(m[2])
		if level <= 2 {
			lines[i] = fmt.Sprintf("# %s", title)
		} else {
			lines[i] = fmt.Sprintf("## %s", title)
		}
	}
	return strings.Join(lines, "\n")
}

func formatLists(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || !strings.ContainsAny(string(trimmed[0]), "*#:;") {
			continue
		}
		item := listPattern.ReplaceAllString(trimmed, "")
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}

func extractTableCells(text string) string {
	return tablePattern.ReplaceAllStringFunc(text, func(table string) string {
		matches := tableCellPattern.FindAllStringSubmatch(table, -1)
		var cells []string
		for _, m := range matches {
			cell := strings.TrimSpace(m[1])
			if cell == "" || strings.HasPrefix(cell, "{") || strings.HasPrefix(cell, "!") {
				continue
			}
			cells = append(cells, cell)
		}
		return strings.Join(cells, "\n")
	})
}

func cleanWhitespace(text string) string {
	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
