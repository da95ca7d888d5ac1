package model

import "github.com/m-mizutani/goerr/v2"

type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeModify ChangeKind = "MODIFY"
	ChangeRemove ChangeKind = "REMOVE"
)

func (x ChangeKind) Validate() error {
	switch x {
	case ChangeInsert, ChangeModify, ChangeRemove:
		return nil
	default:
		return goerr.New("invalid change kind", goerr.V("kind", x))
	}
}

// EntryChange is one record of the change feed. For REMOVE only Entry.ID is meaningful.
// Sequence is assigned by the feed and increases per delivery; redelivered records may
// repeat an earlier Entry with a new Sequence.
type EntryChange struct {
	Kind     ChangeKind `json:"event"`
	Entry    *Entry     `json:"entry"`
	Sequence int64      `json:"sequence,omitempty"`
}

func (x *EntryChange) Validate() error {
	if err := x.Kind.Validate(); err != nil {
		return err
	}
	if x.Entry == nil || x.Entry.ID == "" {
		return goerr.New("change record has no entry id", goerr.V("kind", x.Kind))
	}
	return nil
}
