package model

import "time"

// Chunk is a window of extracted text together with where it came from.
type Chunk struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Position int    `json:"position"`
}

// EmbeddedChunk pairs a chunk with its vector. Vectors are computed once at
// ingestion time and never mutated.
type EmbeddedChunk struct {
	Chunk  Chunk     `json:"chunk"`
	Vector []float32 `json:"-"`
}

type SearchResult struct {
	EmbeddedChunk
	Distance float32 `json:"distance"`
}

type ConversationTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Sources  []Chunk   `json:"sources,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

// SourceInfo describes one ingested document or web page.
type SourceInfo struct {
	Source      string    `json:"source"`
	Kind        string    `json:"kind"`
	Chunks      int       `json:"chunks"`
	Fingerprint string    `json:"fingerprint"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// IngestResult is reported back for every file or URL submitted.
type IngestResult struct {
	Source    string `json:"source"`
	Status    string `json:"status"`
	Chunks    int    `json:"chunks"`
	Error     string `json:"error,omitempty"`
	ErrorKind Kind   `json:"kind,omitempty"`
}

const (
	IngestStatusOK        = "ok"
	IngestStatusDuplicate = "duplicate"
	IngestStatusFailed    = "failed"
)

type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type URLRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

type AskResponse struct {
	Answer  string  `json:"answer"`
	Context []Chunk `json:"context"`
}

type SessionView struct {
	ID        string             `json:"id"`
	Documents []SourceInfo       `json:"documents"`
	Chunks    int                `json:"chunks"`
	History   []ConversationTurn `json:"history"`
}
