package domain

import "strings"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType tags one element of a multimodal message.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ImageURL points at an uploaded image.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is a single conversation entry. When Parts is non-empty it is the
// message body and Content is ignored. Hidden messages are sent to the model
// but never rendered.
type Message struct {
	Role       Role
	Content    string
	Parts      []ContentPart
	Hidden     bool
	References []Reference
}

// TextMessage builds a plain text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// ImageMessage builds a user message with a text part followed by an image part.
func ImageMessage(text, url string) Message {
	return Message{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: PartText, Text: text},
			{Type: PartImageURL, ImageURL: &ImageURL{URL: url}},
		},
	}
}

// Text returns the textual body of the message.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ImageURL returns the first attached image URL, or "".
func (m Message) ImageURL() string {
	for _, p := range m.Parts {
		if p.Type == PartImageURL && p.ImageURL != nil {
			return p.ImageURL.URL
		}
	}
	return ""
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]ContentPart, len(m.Parts))
		for i, p := range m.Parts {
			if p.ImageURL != nil {
				u := *p.ImageURL
				p.ImageURL = &u
			}
			out.Parts[i] = p
		}
	}
	if m.References != nil {
		out.References = append([]Reference(nil), m.References...)
	}
	return out
}

// Reference is a retrieved passage attached to an assistant message.
type Reference struct {
	Text   string
	Score  float64
	Source string
}

// Match is one result of a similarity search.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Reference converts a match into a Reference using the "text" and optional
// "source" metadata keys.
func (m Match) Reference() Reference {
	ref := Reference{Score: m.Score}
	if v, ok := m.Metadata["text"].(string); ok {
		ref.Text = v
	}
	if v, ok := m.Metadata["source"].(string); ok {
		ref.Source = v
	}
	return ref
}

// Record is a vector with metadata to be upserted into an index.
type Record struct {
	ID       string
	Vector   []float64
	Metadata map[string]any
}

// Document represents a single text file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Source  string
	Content string
}

// Digest is the condensed form of a transcript: its recurring terms and the
// sentences that best cover them.
type Digest struct {
	Keywords  []string
	Sentences []string
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
}
