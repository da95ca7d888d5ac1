package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type EntryID string

// NewEntryID generates a new unique EntryID. UUIDv7 keeps the lexical order of IDs close
// to creation order, so listing by ID also lists oldest first.
func NewEntryID() EntryID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return EntryID("entry_" + id.String())
}

func (x EntryID) String() string { return string(x) }

// Entry is a single stored memory. The Primary Store owns its lifecycle.
type Entry struct {
	ID          EntryID   `json:"id" firestore:"id" yaml:"id,omitempty"`
	Time        string    `json:"time" firestore:"time" yaml:"time"`
	Location    string    `json:"location" firestore:"location" yaml:"location"`
	Description string    `json:"description" firestore:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" firestore:"updated_at,omitempty" yaml:"-"`
}

// Validate checks fields required to store an entry
func (x *Entry) Validate() error {
	if x.Description == "" {
		return goerr.New("entry description is empty", goerr.V("id", x.ID))
	}
	if x.Time == "" {
		return goerr.New("entry time is empty", goerr.V("id", x.ID))
	}
	return nil
}

// Copy returns a shallow copy. Entries hold no reference fields, so it is a full copy.
func (x *Entry) Copy() *Entry {
	if x == nil {
		return nil
	}
	c := *x
	return &c
}

// EntryUpdate is a partial update. Nil fields are left untouched.
type EntryUpdate struct {
	Time        *string `json:"time,omitempty"`
	Location    *string `json:"location,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (x *EntryUpdate) Validate() error {
	if x == nil || (x.Time == nil && x.Location == nil && x.Description == nil) {
		return goerr.New("no fields to update")
	}
	if x.Description != nil && *x.Description == "" {
		return goerr.New("entry description is empty")
	}
	return nil
}

// Apply merges the update into entry and stamps UpdatedAt.
func (x *EntryUpdate) Apply(entry *Entry, now time.Time) {
	if x.Time != nil {
		entry.Time = *x.Time
	}
	if x.Location != nil {
		entry.Location = *x.Location
	}
	if x.Description != nil {
		entry.Description = *x.Description
	}
	entry.UpdatedAt = now
}
