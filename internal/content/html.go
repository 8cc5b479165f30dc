package content

import (
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Document is a web page prepared as generation source material.
type Document struct {
	URL             string
	Title           string
	Author          string
	SiteName        string
	Language        string
	PublicationDate *time.Time
	Text            string
	Markdown        string
	Headings        []string
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FromHTML extracts the readable part of a page.
func FromHTML(pageURL, page string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Document{
		URL:      pageURL,
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Author:   metaContent(doc, `meta[name="author"]`),
		SiteName: metaContent(doc, `meta[property="og:site_name"]`),
	}
	if d.Title == "" {
		d.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok {
		d.Language = strings.TrimSpace(lang)
	}
	if published := metaContent(doc, `meta[property="article:published_time"]`); published != "" {
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, published); err == nil {
				t = t.UTC()
				d.PublicationDate = &t
				break
			}
		}
	}

	doc.Find("script, style, noscript, iframe, object, embed, nav, header, footer, aside, form").Remove()

	body := doc.Find("article").First()
	if body.Length() == 0 {
		body = doc.Find("main").First()
	}
	if body.Length() == 0 {
		body = doc.Find("body")
	}

	body.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if h := strings.Join(strings.Fields(s.Text()), " "); h != "" {
			d.Headings = append(d.Headings, h)
		}
	})
	d.Text = strings.Join(strings.Fields(body.Text()), " ")

	inner, err := goquery.OuterHtml(body)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}
	d.Markdown, err = toMarkdown(pageURL, inner)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return d, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func toMarkdown(pageURL, page string) (string, error) {
	converter := md.NewConverter(Domain(pageURL), true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(page)
}

// Request builds a generation request for the document.
func (d *Document) Request(lessonType, studentLevel, targetLanguage string) *types.GenerationRequest {
	quality := Analyze(d.Text)
	words, minutes := quality.WordCount, quality.ReadingTime
	req := &types.GenerationRequest{
		SourceText:     d.Text,
		LessonType:     lessonType,
		StudentLevel:   studentLevel,
		TargetLanguage: targetLanguage,
		SourceURL:      d.URL,
		ContentMetadata: &types.SourceMetadata{
			Title:           d.Title,
			Author:          d.Author,
			PublicationDate: d.PublicationDate,
			SiteName:        d.SiteName,
			Language:        d.Language,
		},
		WordCount:   &words,
		ReadingTime: &minutes,
	}
	if d.Markdown != "" {
		req.StructuredContent = &types.StructuredText{
			Format:  "markdown",
			Body:    d.Markdown,
			Heading: d.Headings,
		}
	}
	return req
}
