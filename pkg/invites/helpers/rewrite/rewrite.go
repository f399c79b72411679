// Package rewrite injects the base tag and social-preview metadata into an
// invitation page before it is served.
package rewrite

import (
	"fmt"
	"html"
	"strings"
)

const (
	DefaultTitle       = "Invitation"
	DefaultDescription = "You are invited. Open the invitation for all the details."

	blockStart = "<!-- invite-meta -->"
	blockEnd   = "<!-- /invite-meta -->"
)

// Meta is everything needed to rewrite one page.
type Meta struct {
	BaseHref     string
	CanonicalURL string
	Title        string
	Description  string
	ImageURL     string
	ImageWidth   int
	ImageHeight  int
}

// Rewriter transforms a page. Implementations must be idempotent: rewriting an
// already rewritten page keeps a single base tag and a single metadata block.
type Rewriter interface {
	// Title returns the page's own title text, or "" when it has none.
	Title(page string) string
	// Description returns the page's meta description, or "".
	Description(page string) string
	Rewrite(page string, meta Meta) string
}

// New returns the rewriter registered under name ("pattern" or "document").
func New(name string) (Rewriter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pattern":
		return Pattern{}, nil
	case "document":
		return Document{}, nil
	default:
		return nil, fmt.Errorf("unknown html rewriter %q", name)
	}
}

func baseTag(href string) string {
	return fmt.Sprintf(`<base href="%s">`, html.EscapeString(href))
}

// metaBlock renders the ordered social-preview block, wrapped in marker comments.
func metaBlock(m Meta) string {
	attr := html.EscapeString
	var b strings.Builder
	b.WriteString(blockStart)
	fmt.Fprintf(&b, `<link rel="canonical" href="%s" data-invite-meta>`, attr(m.CanonicalURL))
	fmt.Fprintf(&b, `<meta property="og:type" content="website" data-invite-meta>`)
	fmt.Fprintf(&b, `<meta property="og:url" content="%s" data-invite-meta>`, attr(m.CanonicalURL))
	fmt.Fprintf(&b, `<meta property="og:title" content="%s" data-invite-meta>`, attr(m.Title))
	fmt.Fprintf(&b, `<meta property="og:description" content="%s" data-invite-meta>`, attr(m.Description))
	fmt.Fprintf(&b, `<meta property="og:image" content="%s" data-invite-meta>`, attr(m.ImageURL))
	fmt.Fprintf(&b, `<meta property="og:image:width" content="%d" data-invite-meta>`, m.ImageWidth)
	fmt.Fprintf(&b, `<meta property="og:image:height" content="%d" data-invite-meta>`, m.ImageHeight)
	fmt.Fprintf(&b, `<meta name="twitter:card" content="summary_large_image" data-invite-meta>`)
	fmt.Fprintf(&b, `<meta name="twitter:title" content="%s" data-invite-meta>`, attr(m.Title))
	fmt.Fprintf(&b, `<meta name="twitter:description" content="%s" data-invite-meta>`, attr(m.Description))
	fmt.Fprintf(&b, `<meta name="twitter:image" content="%s" data-invite-meta>`, attr(m.ImageURL))
	b.WriteString(blockEnd)
	return b.String()
}
