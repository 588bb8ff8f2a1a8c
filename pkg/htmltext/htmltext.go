package htmltext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n\s*\n\s*\n+`)

// ToText renders an HTML email body as plain text. Block elements become line breaks
// and anchors keep their target as "text (url)" so action links survive.
func ToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	doc.Find("script, style, head, title").Remove()

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		text := strings.TrimSpace(s.Text())
		if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "#") {
			return
		}
		if text == "" || text == href {
			s.SetText(href)
			return
		}
		s.SetText(text + " (" + href + ")")
	})

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, table, ul, ol").AppendHtml("\n")
	doc.Find("li").PrependHtml("- ")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		lines = append(lines, strings.Join(strings.Fields(line), " "))
	}
	text := strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
