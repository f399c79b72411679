package rewrite

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document rewrites pages through a parsed DOM. Output is re-serialised by the
// HTML parser, so formatting of the original page may change.
type Document struct{}

func (Document) parse(page string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

func (d Document) Title(page string) string {
	doc, err := d.parse(page)
	if err != nil {
		return Pattern{}.Title(page)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func (d Document) Description(page string) string {
	doc, err := d.parse(page)
	if err != nil {
		return Pattern{}.Description(page)
	}
	v, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

func (d Document) Rewrite(page string, meta Meta) string {
	doc, err := d.parse(page)
	if err != nil {
		return Pattern{}.Rewrite(page, meta)
	}
	head := doc.Find("head").First()

	head.Find("[data-invite-meta]").Remove()
	head.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#comment" {
			return
		}
		text := strings.TrimSpace(s.Nodes[0].Data)
		if text == "invite-meta" || text == "/invite-meta" {
			s.Remove()
		}
	})

	// an author-provided leading base tag stays in front of the block
	leading := head.Children().First()
	leadingBase := leading.Length() > 0 && goquery.NodeName(leading) == "base"
	if leadingBase {
		leading.Remove()
	}
	head.PrependHtml(metaBlock(meta))
	switch {
	case leadingBase:
		head.PrependSelection(leading)
	case doc.Find("base").Length() == 0:
		head.PrependHtml(baseTag(meta.BaseHref))
	}

	out, err := doc.Html()
	if err != nil {
		return Pattern{}.Rewrite(page, meta)
	}
	return out
}
