// Package content measures and prepares source material for lesson
// generation.
package content

import (
	"html"
	"math"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

const (
	// WordsPerMinute is the reading speed used for reading time estimates.
	WordsPerMinute = 200

	idealMinWords = 150
	idealMaxWords = 2000
	longWords     = 8000
	longScore     = 0.3
)

var strict = bluemonday.StrictPolicy()

// Sanitize strips all markup from text and collapses runs of whitespace.
func Sanitize(text string) string {
	clean := html.UnescapeString(strict.Sanitize(text))
	return strings.Join(strings.Fields(clean), " ")
}

// Analyze computes quality figures for text.
func Analyze(text string) types.ContentQuality {
	words := len(strings.Fields(html.UnescapeString(strict.Sanitize(text))))
	return types.ContentQuality{
		WordCount:        words,
		ReadingTime:      ReadingTime(words),
		SuitabilityScore: Suitability(words),
	}
}

// ReadingTime returns whole minutes to read words, at least one for any
// non-empty text.
func ReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / WordsPerMinute))
}

// Suitability scores how well a text of the given length fits a single
// lesson, from 0 to 1.
func Suitability(words int) float64 {
	switch {
	case words <= 0:
		return 0
	case words < idealMinWords:
		return float64(words) / idealMinWords
	case words <= idealMaxWords:
		return 1
	case words >= longWords:
		return longScore
	default:
		over := float64(words-idealMaxWords) / float64(longWords-idealMaxWords)
		return 1 - over*(1-longScore)
	}
}

// Domain returns the host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Build assembles the extracted content recorded on a completed session.
func Build(req *types.GenerationRequest, lesson types.Lesson) *types.ExtractedContent {
	quality := Analyze(req.SourceText)
	if req.WordCount != nil {
		quality.WordCount = *req.WordCount
		quality.SuitabilityScore = Suitability(*req.WordCount)
		quality.ReadingTime = ReadingTime(*req.WordCount)
	}
	if req.ReadingTime != nil {
		quality.ReadingTime = *req.ReadingTime
	}

	meta := types.ContentMetadata{
		SourceURL: req.SourceURL,
		Domain:    Domain(req.SourceURL),
	}
	title := lesson.Title()
	if m := req.ContentMetadata; m != nil {
		meta.Author = m.Author
		if m.PublicationDate != nil {
			d := *m.PublicationDate
			meta.PublicationDate = &d
		}
		if title == "" {
			title = m.Title
		}
	}
	if title == "" {
		title = meta.Domain
	}

	return &types.ExtractedContent{
		Text:     Sanitize(req.SourceText),
		Title:    title,
		Metadata: meta,
		Quality:  quality,
	}
}
