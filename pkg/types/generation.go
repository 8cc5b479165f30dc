package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// GenerationRequest is the body sent once per generation run.
type GenerationRequest struct {
	SourceText     string `json:"sourceText"`
	LessonType     string `json:"lessonType"`
	StudentLevel   string `json:"studentLevel"`
	TargetLanguage string `json:"targetLanguage"`
	SourceURL      string `json:"sourceUrl"`

	ContentMetadata   *SourceMetadata `json:"contentMetadata,omitempty"`
	StructuredContent *StructuredText `json:"structuredContent,omitempty"`
	WordCount         *int            `json:"wordCount,omitempty"`
	ReadingTime       *int            `json:"readingTime,omitempty"`
}

// Validate checks the fields the generation service requires.
func (r *GenerationRequest) Validate() error {
	switch {
	case r.SourceText == "":
		return errors.New("sourceText is required")
	case r.LessonType == "":
		return errors.New("lessonType is required")
	case r.StudentLevel == "":
		return errors.New("studentLevel is required")
	case r.TargetLanguage == "":
		return errors.New("targetLanguage is required")
	case r.SourceURL == "":
		return errors.New("sourceUrl is required")
	}
	return nil
}

// SourceMetadata is optional page metadata gathered during extraction.
type SourceMetadata struct {
	Title           string     `json:"title,omitempty"`
	Author          string     `json:"author,omitempty"`
	PublicationDate *time.Time `json:"publicationDate,omitempty"`
	SiteName        string     `json:"siteName,omitempty"`
	Language        string     `json:"language,omitempty"`
}

// StructuredText carries a markup-preserving rendition of the source.
type StructuredText struct {
	Format  string   `json:"format"` // "markdown"
	Body    string   `json:"body"`
	Heading []string `json:"headings,omitempty"`
}

// Lesson is the structured lesson produced by the generation service.
// Its content is opaque to the pipeline but is always a JSON object.
type Lesson json.RawMessage

// MarshalJSON returns the raw lesson document.
func (l Lesson) MarshalJSON() ([]byte, error) {
	if len(l) == 0 {
		return []byte("null"), nil
	}
	return l, nil
}

// UnmarshalJSON stores a copy of data.
func (l *Lesson) UnmarshalJSON(data []byte) error {
	if l == nil {
		return errors.New("types.Lesson: UnmarshalJSON on nil pointer")
	}
	*l = append((*l)[0:0], data...)
	return nil
}

// IsObject reports whether the lesson is a JSON object.
func (l Lesson) IsObject() bool {
	trimmed := bytes.TrimSpace(l)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// Title returns the lesson's top-level "title" field, if any.
func (l Lesson) Title() string {
	var head struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(l, &head); err != nil {
		return ""
	}
	return head.Title
}

// GenerationError is the structured error payload relayed by the
// generation service.
type GenerationError struct {
	Type            string   `json:"type"`
	Message         string   `json:"message"`
	ActionableSteps []string `json:"actionableSteps"`
	ErrorID         string   `json:"errorId"`
	SupportContact  string   `json:"supportContact,omitempty"`
}
