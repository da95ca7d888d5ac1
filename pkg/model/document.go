package model

import (
	"fmt"
	"time"
)

// SearchDocument is the denormalized, embedding-augmented projection of an Entry held
// by the search index. EntryID is a weak reference: the document may be missing or
// briefly stale relative to its Entry.
type SearchDocument struct {
	EntryID     EntryID   `json:"entry_id"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSearchDocument builds the document for entry with its description embedding.
func NewSearchDocument(entry *Entry, embedding []float32) *SearchDocument {
	return &SearchDocument{
		EntryID:     entry.ID,
		Embedding:   embedding,
		Description: entry.Description,
		Location:    entry.Location,
		Time:        entry.Time,
		CreatedAt:   time.Now().UTC(),
	}
}

// Matches reports whether the document carries the current searchable fields of entry.
func (x *SearchDocument) Matches(entry *Entry) bool {
	return x.EntryID == entry.ID &&
		x.Description == entry.Description &&
		x.Location == entry.Location &&
		x.Time == entry.Time
}

// Hit is one ranked retrieval result. Higher Score is a better match.
type Hit struct {
	EntryID     EntryID `json:"entry_id"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Time        string  `json:"time"`
}

// Line renders the hit as a context line for the language model.
func (x *Hit) Line() string {
	return fmt.Sprintf("At %s, in %s, %s", x.Time, x.Location, x.Description)
}
