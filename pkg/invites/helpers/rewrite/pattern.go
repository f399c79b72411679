package rewrite

import (
	"html"
	"regexp"
	"strings"
)

var (
	headOpenRe    = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	htmlOpenRe    = regexp.MustCompile(`(?i)<html(\s[^>]*)?>`)
	baseRe        = regexp.MustCompile(`(?i)<base\s[^>]*>`)
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	descriptionRe = regexp.MustCompile(`(?is)<meta\s+[^>]*name\s*=\s*["']description["'][^>]*>`)
	contentAttrRe = regexp.MustCompile(`(?is)content\s*=\s*"([^"]*)"|content\s*=\s*'([^']*)'`)
	commentRe     = regexp.MustCompile(`(?s)<!--.*?(?:-->|$)`)
	blockRe       = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(blockStart) + `.*?` + regexp.QuoteMeta(blockEnd))
)

// Pattern rewrites pages with narrow text substitutions anchored on the <head> tag.
type Pattern struct{}

func (Pattern) Title(page string) string {
	m := titleRe.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

func (Pattern) Description(page string) string {
	tag := descriptionRe.FindString(page)
	if tag == "" {
		return ""
	}
	m := contentAttrRe.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1] + m[2]))
}

func (Pattern) Rewrite(page string, meta Meta) string {
	page = blockRe.ReplaceAllString(page, "")
	page = ensureHead(page)

	loc := findTag(headOpenRe, page, 0)
	insertAt := loc[1]

	// an existing base tag directly after <head> keeps its place; the block goes after it
	var inject string
	if findTag(baseRe, page, 0) == nil {
		inject = baseTag(meta.BaseHref)
	} else if b := findTag(baseRe, page, insertAt); b != nil && strings.TrimSpace(page[insertAt:b[0]]) == "" {
		insertAt = b[1]
	}
	inject += metaBlock(meta)
	return page[:insertAt] + inject + page[insertAt:]
}

// ensureHead synthesises a <head> when the page has none.
func ensureHead(page string) string {
	if findTag(headOpenRe, page, 0) != nil {
		return page
	}
	if loc := findTag(htmlOpenRe, page, 0); loc != nil {
		return page[:loc[1]] + "<head></head>" + page[loc[1]:]
	}
	return "<head></head>" + page
}

// findTag returns the first match of re starting at or after from that is not inside
// an HTML comment.
func findTag(re *regexp.Regexp, page string, from int) []int {
	comments := commentRe.FindAllStringIndex(page, -1)
	for _, loc := range re.FindAllStringIndex(page, -1) {
		if loc[0] < from || inComment(loc[0], comments) {
			continue
		}
		return loc
	}
	return nil
}

func inComment(pos int, comments [][]int) bool {
	for _, c := range comments {
		if pos >= c[0] && pos < c[1] {
			return true
		}
	}
	return false
}
