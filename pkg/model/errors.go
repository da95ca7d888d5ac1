package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrTagBackend marks a failed call to the entry store or the search index.
	ErrTagBackend = goerr.NewTag("backend")
	// ErrTagEmbedding marks an embedding provider failure or a malformed vector.
	ErrTagEmbedding = goerr.NewTag("embedding")
	// ErrTagGeneration marks a language model failure.
	ErrTagGeneration = goerr.NewTag("generation")
	// ErrTagConfig marks a configuration error that is fatal at startup.
	ErrTagConfig = goerr.NewTag("config")
	// ErrTagNotFound marks a write addressed to an entry that does not exist.
	ErrTagNotFound = goerr.NewTag("not_found")
)

var (
	ErrEntryNotFound     = goerr.New("entry not found", goerr.T(ErrTagNotFound))
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch", goerr.T(ErrTagConfig))
)
