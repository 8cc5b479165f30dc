package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestAnalyze(t *testing.T) {
	q := Analyze("")
	assert.Equal(t, types.ContentQuality{}, q)

	q = Analyze(words(300))
	assert.Equal(t, 300, q.WordCount)
	assert.Equal(t, 2, q.ReadingTime)
	assert.Equal(t, 1.0, q.SuitabilityScore)

	q = Analyze("<p>Hello <b>bright</b> world</p>")
	assert.Equal(t, 3, q.WordCount)
	assert.Equal(t, 1, q.ReadingTime)
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{0, 0},
		{1, 1},
		{200, 1},
		{201, 2},
		{1000, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadingTime(tt.words), "words=%d", tt.words)
	}
}

func TestSuitability(t *testing.T) {
	tests := []struct {
		words int
		want  float64
	}{
		{0, 0},
		{75, 0.5},
		{150, 1},
		{2000, 1},
		{5000, 0.65},
		{8000, 0.3},
		{20000, 0.3},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Suitability(tt.words), 1e-9, "words=%d", tt.words)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Fish & chips are tasty", Sanitize("<p>Fish &amp; chips</p>\n\n<div>are   tasty</div>"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://www.Example.com/articles/1"))
	assert.Equal(t, "news.example.org", Domain("http://news.example.org:8080/x"))
	assert.Equal(t, "", Domain("not a url"))
}

func TestBuild(t *testing.T) {
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	req := &types.GenerationRequest{
		SourceText:     words(400),
		LessonType:     "discussion",
		StudentLevel:   "B1",
		TargetLanguage: "en",
		SourceURL:      "https://www.example.com/story",
		ContentMetadata: &types.SourceMetadata{
			Title:           "Page Title",
			Author:          "A. Writer",
			PublicationDate: &published,
		},
	}

	t.Run("lesson title wins", func(t *testing.T) {
		c := Build(req, types.Lesson(`{"title":"Lesson Title"}`))
		assert.Equal(t, "Lesson Title", c.Title)
		assert.Equal(t, "example.com", c.Metadata.Domain)
		assert.Equal(t, "https://www.example.com/story", c.Metadata.SourceURL)
		assert.Equal(t, "A. Writer", c.Metadata.Author)
		require.NotNil(t, c.Metadata.PublicationDate)
		assert.True(t, published.Equal(*c.Metadata.PublicationDate))
		assert.Equal(t, 400, c.Quality.WordCount)
		assert.Equal(t, 2, c.Quality.ReadingTime)
	})

	t.Run("metadata title fallback", func(t *testing.T) {
		c := Build(req, types.Lesson(`{"sections":[]}`))
		assert.Equal(t, "Page Title", c.Title)
	})

	t.Run("domain fallback", func(t *testing.T) {
		bare := *req
		bare.ContentMetadata = nil
		c := Build(&bare, types.Lesson(`{}`))
		assert.Equal(t, "example.com", c.Title)
		assert.Empty(t, c.Metadata.Author)
		assert.Nil(t, c.Metadata.PublicationDate)
	})

	t.Run("request figures override", func(t *testing.T) {
		wc, rt := 1200, 9
		withCounts := *req
		withCounts.WordCount = &wc
		withCounts.ReadingTime = &rt
		c := Build(&withCounts, types.Lesson(`{}`))
		assert.Equal(t, 1200, c.Quality.WordCount)
		assert.Equal(t, 9, c.Quality.ReadingTime)
		assert.Equal(t, 1.0, c.Quality.SuitabilityScore)
	})
}

const samplePage = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Ocean Currents</title>
  <meta name="author" content="Jo Rivers">
  <meta property="og:site_name" content="Sea Weekly">
  <meta property="article:published_time" content="2024-05-06T10:00:00Z">
  <style>body { color: red; }</style>
</head>
<body>
  <nav><a href="/">Home</a></nav>
  <article>
    <h1>How currents move</h1>
    <p>Warm water flows toward the poles.</p>
    <h2>Cold water</h2>
    <p>Cold water sinks and returns.</p>
  </article>
  <script>track();</script>
  <footer>Copyright</footer>
</body>
</html>`

func TestFromHTML(t *testing.T) {
	d, err := FromHTML("https://www.seaweekly.com/currents", samplePage)
	require.NoError(t, err)

	assert.Equal(t, "Ocean Currents", d.Title)
	assert.Equal(t, "Jo Rivers", d.Author)
	assert.Equal(t, "Sea Weekly", d.SiteName)
	assert.Equal(t, "en", d.Language)
	require.NotNil(t, d.PublicationDate)
	assert.Equal(t, time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC), *d.PublicationDate)

	assert.Equal(t, []string{"How currents move", "Cold water"}, d.Headings)
	assert.Contains(t, d.Text, "Warm water flows toward the poles.")
	assert.NotContains(t, d.Text, "Home")
	assert.NotContains(t, d.Text, "Copyright")
	assert.NotContains(t, d.Text, "track")

	assert.Contains(t, d.Markdown, "# How currents move")
	assert.Contains(t, d.Markdown, "## Cold water")

	req := d.Request("discussion", "B2", "en")
	require.NoError(t, req.Validate())
	require.NotNil(t, req.StructuredContent)
	assert.Equal(t, "markdown", req.StructuredContent.Format)
	require.NotNil(t, req.WordCount)
	assert.Equal(t, len(strings.Fields(d.Text)), *req.WordCount)
	assert.Equal(t, "Jo Rivers", req.ContentMetadata.Author)
}

func TestFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("just   some\ntext"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := NewFetcher(5 * time.Second)
	ctx := context.Background()

	d, err := f.Fetch(ctx, server.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Ocean Currents", d.Title)

	d, err = f.Fetch(ctx, server.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "just some text", d.Text)

	_, err = f.Fetch(ctx, server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = f.Fetch(ctx, "ftp://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http:// or https://")
}
